package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nv-mldev/emr/pkg/clinical"
	"github.com/nv-mldev/emr/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed report store. It holds a single
// [pgxpool.Pool]. All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the PostgreSQL database at dsn, verifies the
// connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Save implements [store.Store]. A replaced report keeps its original
// created_at.
func (s *Store) Save(ctx context.Context, r store.Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	recJSON, err := json.Marshal(r.Record)
	if err != nil {
		return fmt.Errorf("postgres store: marshal record: %w", err)
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const q = `
		INSERT INTO reports (id, record, summary, patient_name, diagnosis, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
		    record       = EXCLUDED.record,
		    summary      = EXCLUDED.summary,
		    patient_name = EXCLUDED.patient_name,
		    diagnosis    = EXCLUDED.diagnosis,
		    updated_at   = now()`

	_, err = s.pool.Exec(ctx, q,
		r.ID,
		recJSON,
		r.Summary,
		r.Record.Patient.Name,
		r.Record.Admission.Diagnosis,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: save %q: %w", r.ID, err)
	}
	return nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, id string) (store.Report, error) {
	const q = `
		SELECT id, record, summary, created_at
		FROM   reports
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return store.Report{}, fmt.Errorf("postgres store: get %q: %w", id, err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanReport)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Report{}, store.ErrNotFound
	}
	if err != nil {
		return store.Report{}, fmt.Errorf("postgres store: get %q: %w", id, err)
	}
	return r, nil
}

// List implements [store.Store].
func (s *Store) List(ctx context.Context, opts store.ListOptions) ([]store.Report, error) {
	const q = `
		SELECT id, record, summary, created_at
		FROM   reports
		ORDER  BY created_at DESC, id
		LIMIT  $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, q, opts.EffectiveLimit(), max(opts.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	reports, err := pgx.CollectRows(rows, scanReport)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	if reports == nil {
		reports = []store.Report{}
	}
	return reports, nil
}

// Delete implements [store.Store].
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres store: delete %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// scanReport scans one reports row.
func scanReport(row pgx.CollectableRow) (store.Report, error) {
	var (
		r       store.Report
		recJSON []byte
	)
	if err := row.Scan(&r.ID, &recJSON, &r.Summary, &r.CreatedAt); err != nil {
		return store.Report{}, err
	}
	r.Record = new(clinical.Record)
	if err := json.Unmarshal(recJSON, r.Record); err != nil {
		return store.Report{}, fmt.Errorf("decode record %q: %w", r.ID, err)
	}
	return r, nil
}
