// Package postgres provides a PostgreSQL-backed implementation of
// [store.Store].
//
// Reports live in a single reports table. The structured record is kept as
// JSONB in the same shape the HTTP API returns, with the patient name and
// diagnosis copied into plain columns for listing and indexing.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
//
//	_ = s.Save(ctx, store.Report{ID: id, Record: rec, Summary: text})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlReports = `
CREATE TABLE IF NOT EXISTS reports (
    id            TEXT         PRIMARY KEY,
    record        JSONB        NOT NULL,
    summary       TEXT         NOT NULL DEFAULT '',
    patient_name  TEXT         NOT NULL DEFAULT '',
    diagnosis     TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reports_created_at
    ON reports (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_reports_diagnosis
    ON reports (diagnosis);
`

// Migrate creates the reports table and its indexes. It is idempotent and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlReports); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
