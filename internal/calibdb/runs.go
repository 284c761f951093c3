package calibdb

import (
	"database/sql"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/banshee-data/pcdfusion/internal/fusion"
	"github.com/banshee-data/pcdfusion/internal/timeutil"
)

// Run is one recorded fusion run.
type Run struct {
	RunID        string      `json:"run_id"`
	CreatedAt    int64       `json:"created_at"` // unix nanos
	Mode         string      `json:"mode"`
	Encoding     string      `json:"encoding"`
	TotalPoints  int         `json:"total_points"`
	OutputDigest string      `json:"output_digest"`
	OutputSize   int         `json:"output_size"`
	HasSnapshot  bool        `json:"has_snapshot"`
	Notes        string      `json:"notes,omitempty"`
	Sources      []RunSource `json:"sources,omitempty"`
}

// RunSource is the stored accounting for one source of a run.
type RunSource struct {
	Position     int    `json:"position"`
	Name         string `json:"name"`
	InputDigest  string `json:"input_digest"`
	InputPoints  int    `json:"input_points"`
	OutputPoints int    `json:"output_points"`
	Dropped      int    `json:"dropped"`
	Filtered     int    `json:"filtered"`
	Error        string `json:"error,omitempty"`
}

// RunStore records fusion runs.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, clock: timeutil.RealClock{}}
}

// Digest is the hex xxhash64 of b as stored in the run tables.
func Digest(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

// RecordRun stores res with the encoded output. sources must be the slice
// passed to fusion; their data is digested, not stored. When keepSnapshot
// is set the output is stored zstd-compressed.
func (s *RunStore) RecordRun(res fusion.Result, sources []fusion.Source, output []byte, keepSnapshot bool, notes string) (*Run, error) {
	run := &Run{
		RunID:        uuid.New().String(),
		CreatedAt:    s.clock.Now().UnixNano(),
		Mode:         string(res.Mode),
		TotalPoints:  res.Points(),
		OutputDigest: Digest(output),
		OutputSize:   len(output),
		HasSnapshot:  keepSnapshot,
		Notes:        notes,
	}
	if res.Cloud != nil {
		run.Encoding = string(res.Cloud.Encoding())
	}

	// res.Sources holds one report per input, in input order.
	for i, rep := range res.Sources {
		rs := RunSource{
			Position:     i,
			Name:         rep.Name,
			InputPoints:  rep.Input,
			OutputPoints: rep.Output,
			Dropped:      rep.Dropped,
			Filtered:     rep.Filtered,
		}
		if i < len(sources) {
			rs.InputDigest = Digest(sources[i].Data)
		}
		if rep.Err != nil {
			rs.Error = rep.Err.Error()
		}
		run.Sources = append(run.Sources, rs)
	}

	var snapshot []byte
	if keepSnapshot {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		snapshot = enc.EncodeAll(output, nil)
		enc.Close()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin run tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO fusion_runs (
			run_id, created_at, mode, encoding, total_points,
			output_digest, output_size, snapshot_zstd, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID, run.CreatedAt, run.Mode, run.Encoding, run.TotalPoints,
		run.OutputDigest, run.OutputSize, snapshot, nullString(notes),
	)
	if err != nil {
		return nil, fmt.Errorf("insert fusion run: %w", err)
	}

	for _, rs := range run.Sources {
		_, err = tx.Exec(`
			INSERT INTO fusion_run_sources (
				run_id, position, name, input_digest, input_points,
				output_points, dropped, filtered, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.RunID, rs.Position, rs.Name, rs.InputDigest, rs.InputPoints,
			rs.OutputPoints, rs.Dropped, rs.Filtered, nullString(rs.Error),
		)
		if err != nil {
			return nil, fmt.Errorf("insert fusion run source %d: %w", rs.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run tx: %w", err)
	}
	return run, nil
}

const runColumns = `run_id, created_at, mode, encoding, total_points,
	output_digest, output_size, snapshot_zstd IS NOT NULL, notes`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	r := &Run{}
	var notes sql.NullString
	err := row.Scan(
		&r.RunID, &r.CreatedAt, &r.Mode, &r.Encoding, &r.TotalPoints,
		&r.OutputDigest, &r.OutputSize, &r.HasSnapshot, &notes,
	)
	if err != nil {
		return nil, err
	}
	if notes.Valid {
		r.Notes = notes.String
	}
	return r, nil
}

// GetRun returns a run with its sources.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM fusion_runs WHERE run_id = ?`, runID))
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	rows, err := s.db.Query(`
		SELECT position, name, input_digest, input_points,
		       output_points, dropped, filtered, error
		FROM fusion_run_sources
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get run sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rs RunSource
		var errText sql.NullString
		err := rows.Scan(
			&rs.Position, &rs.Name, &rs.InputDigest, &rs.InputPoints,
			&rs.OutputPoints, &rs.Dropped, &rs.Filtered, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run source: %w", err)
		}
		if errText.Valid {
			rs.Error = errText.String
		}
		r.Sources = append(r.Sources, rs)
	}
	return r, rows.Err()
}

// ListRuns returns the most recent runs first, without sources. A limit of
// zero or less returns every run.
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM fusion_runs ORDER BY created_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadSnapshot returns the decompressed output of a run and checks it
// against the stored digest.
func (s *RunStore) LoadSnapshot(runID string) ([]byte, error) {
	var blob []byte
	var digest string
	err := s.db.QueryRow(
		`SELECT snapshot_zstd, output_digest FROM fusion_runs WHERE run_id = ?`, runID,
	).Scan(&blob, &digest)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", runID, err)
	}
	if blob == nil {
		return nil, fmt.Errorf("run %s has no snapshot", runID)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot %s: %w", runID, err)
	}
	if got := Digest(out); got != digest {
		return nil, fmt.Errorf("snapshot %s digest mismatch: got %s, want %s", runID, got, digest)
	}
	return out, nil
}

// DeleteRun removes a run and its sources.
func (s *RunStore) DeleteRun(runID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM fusion_run_sources WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run sources: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM fusion_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}
