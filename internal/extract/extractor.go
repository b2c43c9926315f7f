// Package extract turns free-text clinical dictation into a structured
// [clinical.Record].
//
// The [Extractor] runs an ordered battery of [Rule] probes over the
// transcript. Each rule looks for one family of facts (demographics,
// diagnosis, vitals, labs, medications, ...) and writes what it finds into the
// record. Rules are independent: a rule that finds nothing leaves its fields
// at their defaults and never prevents later rules from running.
//
// Extraction never fails. Empty or unrecognisable input yields a record with
// every field at its default and a confidence score of zero. The only
// non-text input is the clock used for metadata and lab snapshot dates, so
// with a fixed clock ([WithClock]) the output is fully deterministic.
//
// An [Extractor] is immutable after construction and safe for concurrent use.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nv-mldev/emr/internal/vocab"
	"github.com/nv-mldev/emr/pkg/clinical"
)

// StrategyRuleBased is the processing model recorded by the [Extractor].
const StrategyRuleBased = "rule_based"

// ErrEmptyInput is returned by callers that refuse to process an empty
// transcript. The [Extractor] itself degrades to a default record instead.
var ErrEmptyInput = errors.New("extract: empty transcript")

// Strategy produces a structured record from a transcript.
//
// Implementations must be safe for concurrent use.
type Strategy interface {
	// Structure extracts a record from transcript. The returned record's
	// Metadata.ProcessingModel names the strategy that actually produced it.
	Structure(ctx context.Context, transcript string) (*clinical.Record, error)
}

// Rule is one probe in the extraction battery.
//
// Apply inspects text and writes any facts it finds into rec. It must not
// fail and must not depend on the output of other rules.
type Rule interface {
	Name() string
	Apply(text string, rec *clinical.Record)
}

var _ Strategy = (*Extractor)(nil)

// Extractor is the rule-based [Strategy].
type Extractor struct {
	now        func() time.Time
	org        clinical.Organisation
	vocabulary []string
	extra      []Rule
	rules      []Rule
	log        *slog.Logger
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithClock sets the clock used for metadata timestamps and lab snapshot
// dates. Defaults to [time.Now].
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithOrganisation sets the department identity copied into every record.
// Defaults to [clinical.DefaultOrganisation].
func WithOrganisation(org clinical.Organisation) Option {
	return func(e *Extractor) {
		e.org = org.Clone()
	}
}

// WithVocabulary sets the drug names recognised as medications without a
// dosage-form prefix. Names are matched case-insensitively on word
// boundaries; list longer names first when one name is a prefix of another.
// Defaults to the built-in drug vocabulary.
func WithVocabulary(drugs []string) Option {
	return func(e *Extractor) {
		e.vocabulary = append([]string{}, drugs...)
	}
}

// WithRules appends extra rules after the built-in battery.
func WithRules(rules ...Rule) Option {
	return func(e *Extractor) {
		e.extra = append(e.extra, rules...)
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an [Extractor] and compiles its rule battery.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		now: time.Now,
		org: clinical.DefaultOrganisation(),
		log: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.vocabulary == nil {
		e.vocabulary = vocab.BuiltinNames(vocab.KindDrug)
	}

	e.rules = []Rule{
		demographicsRule{},
		diagnosisRule{},
		vitalsRule{},
		systemsRule{},
		labsRule{now: e.now},
		newMedicationsRule(e.vocabulary),
		attendingRule{},
		historyRule{},
	}
	e.rules = append(e.rules, e.extra...)
	return e
}

// Rules returns the names of the rules in execution order.
func (e *Extractor) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Extract builds a record from transcript. It never fails; input in which
// nothing is recognised yields a record with every field at its default.
func (e *Extractor) Extract(transcript string) *clinical.Record {
	rec := clinical.NewRecord(transcript, e.org)

	if strings.TrimSpace(transcript) != "" {
		for _, r := range e.rules {
			r.Apply(transcript, rec)
		}
	}

	rec.Metadata = clinical.Metadata{
		GeneratedAt:     e.now(),
		ProcessingModel: StrategyRuleBased,
		ConfidenceScore: clinical.Confidence(rec),
	}

	e.log.Debug("extract: record structured",
		"chars", len(transcript),
		"confidence", rec.Metadata.ConfidenceScore,
		"medications", len(rec.Treatment.Medications),
		"lab_snapshots", len(rec.Investigations.LabResults),
	)
	return rec
}

// Structure implements [Strategy]. It never returns an error.
func (e *Extractor) Structure(_ context.Context, transcript string) (*clinical.Record, error) {
	return e.Extract(transcript), nil
}
