package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS solar_readings (
	id TEXT PRIMARY KEY,
	datetime TEXT NOT NULL,
	location TEXT NOT NULL,
	cloud_cover DOUBLE PRECISION NOT NULL,
	power_output_above_clouds DOUBLE PRECISION NOT NULL,
	power_output_on_ground DOUBLE PRECISION NOT NULL,
	status TEXT NOT NULL,
	solar_power_status TEXT NOT NULL,
	is_fallback BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_solar_readings_location_datetime ON solar_readings(location, datetime);
`

// PostgresStore is a Sink and Reader backed by PostgreSQL.
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore connects with dsn, verifies the connection and creates the table if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &PostgresStore{sqlStore{
		name: "postgres",
		db:   db,
		insertQuery: `INSERT INTO solar_readings
			(id, datetime, location, cloud_cover, power_output_above_clouds, power_output_on_ground, status, solar_power_status, is_fallback)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
		recentQuery: `SELECT id, datetime, location, cloud_cover, power_output_above_clouds, power_output_on_ground, status, solar_power_status, is_fallback
			FROM solar_readings WHERE location = $1 ORDER BY datetime DESC LIMIT $2`,
	}}, nil
}
