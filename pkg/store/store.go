// Package store persists generated discharge reports.
//
// A [Report] pairs the structured [clinical.Record] with the rendered
// summary text under a unique identifier. Implementations: [MemStore] for
// single-process deployments and tests, and the PostgreSQL store in the
// postgres sub-package for durable storage.
//
// All implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nv-mldev/emr/pkg/clinical"
)

var (
	// ErrNotFound is returned by Get and Delete when no report has the ID.
	ErrNotFound = errors.New("store: report not found")

	// ErrInvalidReport is returned by Save for a report without an ID or record.
	ErrInvalidReport = errors.New("store: report needs an id and a record")
)

// Report is one generated discharge summary.
type Report struct {
	// ID uniquely identifies the report.
	ID string `json:"id"`

	// Record is the structured data the summary was rendered from.
	Record *clinical.Record `json:"structured_data"`

	// Summary is the rendered plain-text discharge summary.
	Summary string `json:"report"`

	// CreatedAt is when the report was first saved.
	CreatedAt time.Time `json:"created_at"`
}

// Validate reports whether r can be saved.
func (r Report) Validate() error {
	if r.ID == "" || r.Record == nil {
		return ErrInvalidReport
	}
	return nil
}

// ListOptions pages through [Store.List] results.
type ListOptions struct {
	// Limit caps the number of reports returned. Zero or negative means
	// [DefaultListLimit].
	Limit int

	// Offset skips this many reports from the newest.
	Offset int
}

// DefaultListLimit is the page size used when ListOptions.Limit is unset.
const DefaultListLimit = 50

// EffectiveLimit returns the limit to apply for o.
func (o ListOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// Store persists reports.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Save inserts r, or replaces the report with the same ID. CreatedAt is
	// set by the store when zero. Returns [ErrInvalidReport] when r has no
	// ID or record.
	Save(ctx context.Context, r Report) error

	// Get returns the report with id, or [ErrNotFound].
	Get(ctx context.Context, id string) (Report, error)

	// List returns reports newest first. An empty store yields an empty,
	// non-nil slice.
	List(ctx context.Context, opts ListOptions) ([]Report, error)

	// Delete removes the report with id, or returns [ErrNotFound].
	Delete(ctx context.Context, id string) error
}
