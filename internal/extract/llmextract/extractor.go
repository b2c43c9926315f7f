// Package llmextract implements an [extract.Strategy] that asks a language
// model to structure a dictated transcript.
//
// The rule-based [extract.Extractor] always runs first and provides the
// baseline record. The model's reply is then merged over it: a field the
// model filled replaces the baseline value, a field it left empty keeps the
// baseline. When the model fails or its reply cannot be parsed, the baseline
// record is returned unchanged, so the strategy degrades to rule-based
// extraction instead of failing the request.
package llmextract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nv-mldev/emr/internal/extract"
	"github.com/nv-mldev/emr/pkg/clinical"
	"github.com/nv-mldev/emr/pkg/provider/llm"
)

// StrategyLLM is the configuration name of this strategy.
const StrategyLLM = "llm"

const defaultTemperature = 0.0

// systemPrompt describes the reply shape. Field names match the record's
// JSON shape so the reply can be merged field by field.
const systemPrompt = `You structure dictated paediatric oncology case notes into JSON.

Return ONLY a JSON object with exactly these fields (no markdown, no prose):
{
  "patient_details": {"cr_no": "", "name": "", "age": "", "sex": "", "attending_oncologist": ""},
  "admission_details": {"diagnosis": "", "histology": "", "stage": "", "doa": "", "dod": "", "reason_for_admission": ""},
  "history": {"chief_complaints": ""},
  "clinical_examination": {
    "general_condition": "",
    "vitals": {"hr": "", "bp": "", "temp": "", "rr": ""},
    "systems": {"respiratory_system": "", "cardiovascular_system": "", "gastrointestinal_system": "", "neurological_system": "", "other_systems": ""}
  },
  "investigations": {
    "lab_results": [{"date": "", "hb": "", "wbc": "", "platelet": "", "dc_neutrophils": "", "lymphocytes": ""}],
    "other_investigations": {"blood_culture": "", "procalcitonin": "", "cxr": "", "urine_culture": "", "other": ""}
  },
  "treatment": {"medications": [{"name": "", "dose": "", "frequency": "", "duration": ""}]},
  "course_in_hospital": ""
}

Instructions:
- Use an empty string for anything that was not dictated. Never guess or invent values.
- age is the number of years only. sex is "M" or "F".
- Format vitals with units: hr "120/min", bp "104/60mmhg", temp "100.3°F", rr "24/min".
- Medication names keep their dosage form prefix when dictated (e.g. "Inj. Cefoperazone").
- attending_oncologist is written as "Dr. <Name>".
- Dates are DD/MM/YYYY.`

// ModelNamer is implemented by providers that report the model they call.
type ModelNamer interface {
	Model() string
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithModelName sets the model name recorded in the processing model.
// Defaults to the provider's [ModelNamer] value when it has one.
func WithModelName(name string) Option {
	return func(e *Extractor) {
		e.model = name
	}
}

// WithTemperature sets the sampling temperature. Default: 0.
func WithTemperature(temp float64) Option {
	return func(e *Extractor) {
		e.temperature = temp
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

var _ extract.Strategy = (*Extractor)(nil)

// Extractor is the LLM [extract.Strategy]. It is safe for concurrent use.
type Extractor struct {
	llm         llm.Provider
	rules       *extract.Extractor
	model       string
	temperature float64
	log         *slog.Logger
}

// New creates an [Extractor] that calls provider and falls back to rules.
func New(provider llm.Provider, rules *extract.Extractor, opts ...Option) *Extractor {
	e := &Extractor{
		llm:         provider,
		rules:       rules,
		temperature: defaultTemperature,
		log:         slog.Default(),
	}
	if mn, ok := provider.(ModelNamer); ok {
		e.model = mn.Model()
	}
	for _, o := range opts {
		o(e)
	}
	if e.rules == nil {
		e.rules = extract.New(extract.WithLogger(e.log))
	}
	return e
}

// ProcessingModel returns the value recorded in Metadata.ProcessingModel for
// records this extractor structured, e.g. "llm:gpt-4o-mini".
func (e *Extractor) ProcessingModel() string {
	if e.model == "" {
		return StrategyLLM
	}
	return StrategyLLM + ":" + e.model
}

// Structure implements [extract.Strategy].
//
// The returned record's Metadata.ProcessingModel is [Extractor.ProcessingModel]
// when the model's reply was used and [extract.StrategyRuleBased] when the
// strategy fell back. Only context cancellation is returned as an error.
func (e *Extractor) Structure(ctx context.Context, transcript string) (*clinical.Record, error) {
	base := e.rules.Extract(transcript)
	if strings.TrimSpace(transcript) == "" {
		return base, nil
	}

	r, err := e.ask(ctx, transcript)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("llmextract: %w", ctxErr)
		}
		e.log.Warn("llmextract: falling back to rule-based extraction", "err", err)
		return base, nil
	}

	rec := base.Clone()
	r.mergeInto(rec, base.Metadata.GeneratedAt.Format(extract.LabDateLayout))
	rec.Metadata.ProcessingModel = e.ProcessingModel()
	rec.Metadata.ConfidenceScore = clinical.Confidence(rec)

	e.log.Debug("llmextract: record structured",
		"model", e.model,
		"confidence", rec.Metadata.ConfidenceScore,
		"baseline_confidence", base.Metadata.ConfidenceScore,
	)
	return rec, nil
}

// ask sends transcript to the model and decodes its reply.
func (e *Extractor) ask(ctx context.Context, transcript string) (*reply, error) {
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  e.temperature,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: transcript},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llmextract: complete: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, fmt.Errorf("llmextract: %w", llm.ErrEmptyResponse)
	}
	return parseReply(resp.Content)
}

// parseReply decodes the JSON object in content.
func parseReply(content string) (*reply, error) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("llmextract: parse reply: %w", err)
	}
	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("llmextract: parse reply: %w", err)
	}
	return &r, nil
}

// errNotText is returned when a reply value is neither a string, a number
// nor null.
var errNotText = errors.New("llmextract: value is not text")
