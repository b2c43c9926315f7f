// Package report renders a [clinical.Record] into a human-readable discharge
// summary.
//
// Rendering is total: every section header is always emitted, and fields that
// were not captured are shown with a placeholder such as "Not specified" or
// "Not recorded". Optional sections (other investigations, course in
// hospital, medical team, emergency contacts) are omitted when empty.
//
// The renderer never mutates the record it is given.
package report

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nv-mldev/emr/pkg/clinical"
)

// ErrMissingInput is returned by [Renderer.Render] when the record is nil.
var ErrMissingInput = errors.New("report: no structured data provided")

// Document is the rendered output for one record.
type Document struct {
	// Summary is the plain-text discharge summary.
	Summary string `json:"discharge_summary"`

	// Data is the record the summary was rendered from.
	Data *clinical.Record `json:"json_data"`

	// GeneratedAt is the time the document was rendered.
	GeneratedAt time.Time `json:"generated_at"`
}

// Renderer produces [Document] values. It is safe for concurrent use.
type Renderer struct {
	now func() time.Time
	log *slog.Logger
}

// Option configures a [Renderer].
type Option func(*Renderer)

// WithClock sets the clock used for Document.GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a [Renderer].
func New(opts ...Option) *Renderer {
	r := &Renderer{now: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render formats rec as a discharge summary. Apart from GeneratedAt the
// result depends only on rec, so rendering the same record twice yields the
// same summary.
func (r *Renderer) Render(rec *clinical.Record) (*Document, error) {
	if rec == nil {
		return nil, ErrMissingInput
	}

	summary := FormatSummary(rec)
	r.log.Debug("report: rendered discharge summary", "chars", len(summary))

	return &Document{
		Summary:     summary,
		Data:        rec,
		GeneratedAt: r.now(),
	}, nil
}
