package calibdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/pcdfusion/internal/fusion"
	"github.com/banshee-data/pcdfusion/internal/geometry"
	"github.com/banshee-data/pcdfusion/internal/monitoring"
	"github.com/banshee-data/pcdfusion/internal/timeutil"
)

// Extrinsics is a sensor's transform into the common frame.
type Extrinsics struct {
	Sensor    string                  `json:"sensor"`
	Transform geometry.RigidTransform `json:"transform"`
	UpdatedAt int64                   `json:"updated_at"` // unix nanos
}

// IgnoreArea is a stored oriented box for one sensor.
type IgnoreArea struct {
	AreaID    string               `json:"area_id"`
	Sensor    string               `json:"sensor"`
	Box       geometry.OrientedBox `json:"box"`
	Label     string               `json:"label,omitempty"`
	CreatedAt int64                `json:"created_at"`
}

// CalibrationStore provides persistence for extrinsics and ignore areas.
type CalibrationStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewCalibrationStore creates a new CalibrationStore.
func NewCalibrationStore(db *sql.DB) *CalibrationStore {
	return &CalibrationStore{db: db, clock: timeutil.RealClock{}}
}

// PutExtrinsics inserts or replaces the transform for sensor.
func (s *CalibrationStore) PutExtrinsics(sensor string, t geometry.RigidTransform) error {
	if sensor == "" {
		return fmt.Errorf("put extrinsics: empty sensor name")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if !t.IsRigid() {
		monitoring.Warnf("extrinsics for %s are not a rigid transform", sensor)
	}
	payload, err := json.Marshal(t.Rows())
	if err != nil {
		return fmt.Errorf("encode extrinsics: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO sensor_extrinsics (sensor, transform_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(sensor) DO UPDATE SET
			transform_json = excluded.transform_json,
			updated_at = excluded.updated_at
	`, sensor, string(payload), s.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("put extrinsics: %w", err)
	}
	return nil
}

// GetExtrinsics returns the stored transform for sensor. It returns an
// error wrapping sql.ErrNoRows when none is stored.
func (s *CalibrationStore) GetExtrinsics(sensor string) (*Extrinsics, error) {
	var payload string
	e := &Extrinsics{Sensor: sensor}
	err := s.db.QueryRow(
		`SELECT transform_json, updated_at FROM sensor_extrinsics WHERE sensor = ?`, sensor,
	).Scan(&payload, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get extrinsics %s: %w", sensor, err)
	}

	var rows [][]float64
	if err := json.Unmarshal([]byte(payload), &rows); err != nil {
		return nil, fmt.Errorf("decode extrinsics %s: %w", sensor, err)
	}
	if e.Transform, err = geometry.NewRigidTransform(rows); err != nil {
		return nil, fmt.Errorf("decode extrinsics %s: %w", sensor, err)
	}
	return e, nil
}

// ListSensors returns every sensor with stored extrinsics, sorted by name.
func (s *CalibrationStore) ListSensors() ([]string, error) {
	rows, err := s.db.Query(`SELECT sensor FROM sensor_extrinsics ORDER BY sensor`)
	if err != nil {
		return nil, fmt.Errorf("list sensors: %w", err)
	}
	defer rows.Close()

	var sensors []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan sensor: %w", err)
		}
		sensors = append(sensors, name)
	}
	return sensors, rows.Err()
}

// AddIgnoreArea stores box for sensor under a new UUID.
func (s *CalibrationStore) AddIgnoreArea(sensor string, box geometry.OrientedBox, label string) (*IgnoreArea, error) {
	if sensor == "" {
		return nil, fmt.Errorf("add ignore area: empty sensor name")
	}
	if err := box.Validate(); err != nil {
		return nil, err
	}
	area := &IgnoreArea{
		AreaID:    uuid.New().String(),
		Sensor:    sensor,
		Box:       box,
		Label:     label,
		CreatedAt: s.clock.Now().UnixNano(),
	}

	_, err := s.db.Exec(`
		INSERT INTO ignore_areas (
			area_id, sensor, center_x, center_y, center_z,
			length, width, height, yaw, label, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		area.AreaID, area.Sensor,
		box.X, box.Y, box.Z,
		box.Length, box.Width, box.Height, box.Yaw,
		nullString(label), area.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ignore area: %w", err)
	}
	return area, nil
}

// ListIgnoreAreas returns the areas stored for sensor in insertion order.
func (s *CalibrationStore) ListIgnoreAreas(sensor string) ([]*IgnoreArea, error) {
	rows, err := s.db.Query(`
		SELECT area_id, sensor, center_x, center_y, center_z,
		       length, width, height, yaw, label, created_at
		FROM ignore_areas
		WHERE sensor = ?
		ORDER BY created_at, area_id
	`, sensor)
	if err != nil {
		return nil, fmt.Errorf("list ignore areas: %w", err)
	}
	defer rows.Close()

	var areas []*IgnoreArea
	for rows.Next() {
		a := &IgnoreArea{}
		var label sql.NullString
		err := rows.Scan(
			&a.AreaID, &a.Sensor, &a.Box.X, &a.Box.Y, &a.Box.Z,
			&a.Box.Length, &a.Box.Width, &a.Box.Height, &a.Box.Yaw,
			&label, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ignore area: %w", err)
		}
		if label.Valid {
			a.Label = label.String
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

// DeleteIgnoreArea removes an area by ID.
func (s *CalibrationStore) DeleteIgnoreArea(areaID string) error {
	result, err := s.db.Exec(`DELETE FROM ignore_areas WHERE area_id = ?`, areaID)
	if err != nil {
		return fmt.Errorf("delete ignore area: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete ignore area rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApplyTo fills in stored calibration for sources keyed by name. A source's
// own transform or ignore areas take precedence over stored ones.
func (s *CalibrationStore) ApplyTo(sources []fusion.Source) ([]fusion.Source, error) {
	out := make([]fusion.Source, len(sources))
	for i, src := range sources {
		if src.Transform == nil {
			e, err := s.GetExtrinsics(src.Name)
			switch {
			case err == nil:
				t := e.Transform
				src.Transform = &t
			case !errors.Is(err, sql.ErrNoRows):
				return nil, err
			}
		}
		if len(src.IgnoreAreas) == 0 {
			areas, err := s.ListIgnoreAreas(src.Name)
			if err != nil {
				return nil, err
			}
			for _, a := range areas {
				src.IgnoreAreas = append(src.IgnoreAreas, a.Box)
			}
		}
		out[i] = src
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
