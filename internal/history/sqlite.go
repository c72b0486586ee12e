package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS solar_readings (
	id TEXT PRIMARY KEY,
	datetime TEXT NOT NULL,
	location TEXT NOT NULL,
	cloud_cover REAL NOT NULL,
	power_output_above_clouds REAL NOT NULL,
	power_output_on_ground REAL NOT NULL,
	status TEXT NOT NULL,
	solar_power_status TEXT NOT NULL,
	is_fallback INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_solar_readings_location_datetime ON solar_readings(location, datetime);
`

// SQLiteStore is a Sink and Reader backed by a local SQLite file.
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore opens the database at path and creates the table if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteStore{sqlStore{
		name: "sqlite",
		db:   db,
		insertQuery: `INSERT OR IGNORE INTO solar_readings
			(id, datetime, location, cloud_cover, power_output_above_clouds, power_output_on_ground, status, solar_power_status, is_fallback)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recentQuery: `SELECT id, datetime, location, cloud_cover, power_output_above_clouds, power_output_on_ground, status, solar_power_status, is_fallback
			FROM solar_readings WHERE location = ? ORDER BY datetime DESC LIMIT ?`,
	}}, nil
}
