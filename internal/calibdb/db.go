// Package calibdb persists sensor calibration (extrinsic transforms and
// ignore areas) and a history of fusion runs in SQLite.
package calibdb

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/pcdfusion/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(1)",
}

// DB wraps the calibration database.
type DB struct {
	*sql.DB
	clock timeutil.Clock
}

func dsn(path string) string {
	params := make([]string, len(pragmas))
	for i, p := range pragmas {
		params[i] = "_pragma=" + p
	}
	return path + "?" + strings.Join(params, "&")
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open calibration db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open calibration db: %w", err)
	}
	db := &DB{DB: sqlDB, clock: timeutil.RealClock{}}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the clock used to stamp new rows.
func (db *DB) SetClock(c timeutil.Clock) { db.clock = c }

// Calibration returns a CalibrationStore over db.
func (db *DB) Calibration() *CalibrationStore {
	return &CalibrationStore{db: db.DB, clock: db.clock}
}

// Runs returns a RunStore over db.
func (db *DB) Runs() *RunStore {
	return &RunStore{db: db.DB, clock: db.clock}
}
