package history

import (
	"context"
	"database/sql"
	"fmt"
)

// sqlStore is the database/sql implementation shared by the sqlite and postgres sinks.
// Queries are per dialect because placeholder syntax differs.
type sqlStore struct {
	name        string
	db          *sql.DB
	insertQuery string
	recentQuery string
}

func (s *sqlStore) Name() string { return s.name }

// Save inserts rec; a record whose ID already exists is ignored.
func (s *sqlStore) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, s.insertQuery,
		rec.ID, rec.Datetime, rec.Location, rec.CloudCover,
		rec.PowerOutputAboveClouds, rec.PowerOutputOnGround,
		rec.Status, rec.SolarPowerStatus, rec.IsFallback,
	)
	if err != nil {
		return fmt.Errorf("%s insert: %w", s.name, err)
	}
	return nil
}

// Recent implements Reader.
func (s *sqlStore) Recent(ctx context.Context, location string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.recentQuery, location, limit)
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", s.name, err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.Datetime, &rec.Location, &rec.CloudCover,
			&rec.PowerOutputAboveClouds, &rec.PowerOutputOnGround,
			&rec.Status, &rec.SolarPowerStatus, &rec.IsFallback,
		); err != nil {
			return nil, fmt.Errorf("%s scan: %w", s.name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", s.name, err)
	}
	return out, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
