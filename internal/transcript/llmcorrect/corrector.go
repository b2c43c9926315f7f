// Package llmcorrect implements a language-model-based transcript correction
// stage that repairs misheard drug, diagnosis and lab names the phonetic
// matcher could not resolve.
//
// The [Corrector] sends the transcript text to an [llm.Provider] along with
// the clinical vocabulary. The model is instructed (via a conservative system
// prompt) to fix only words that look like misheard vocabulary terms and to
// return JSON holding the corrected text and an itemised list of
// substitutions.
//
// Every change the model makes is cross-checked against the substitutions it
// declared; undeclared edits are reverted, so the model cannot silently
// rewrite dosages, numbers or findings. When the reply cannot be parsed, the
// corrector returns the original text unchanged rather than surfacing an
// error.
package llmcorrect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nv-mldev/emr/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
)

// systemPromptTemplate is the base system prompt. The vocabulary is appended
// at call time.
const systemPromptTemplate = `You are a transcript correction assistant for dictated paediatric oncology case notes.

Your task: fix misheard medical terms in the provided speech-to-text transcript.

Rules:
- ONLY correct words that appear to be misheard versions of the vocabulary terms listed below.
- Do NOT change numbers, doses, units, dates, ordinary English words, grammar, punctuation, or sentence structure.
- Be conservative. If you are not confident a word is a misheard vocabulary term, leave it unchanged.
- Corrected terms must use the canonical spelling from the vocabulary exactly.

Vocabulary:
%s
Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected_text": "<full corrected transcript>",
  "corrections": [
    {"original": "<original words>", "corrected": "<vocabulary term>", "confidence": <0.0-1.0>}
  ]
}

If no corrections are needed, return an empty corrections array and corrected_text equal to the input.`

// Correction captures a single substitution produced by the LLM corrector.
// The pipeline maps these to [transcript.Correction] values with Method set
// to "llm".
type Correction struct {
	// Original is the text as it appeared in the input transcript.
	Original string

	// Corrected is the replacement vocabulary term suggested by the LLM.
	Corrected string

	// Confidence is the LLM's reported confidence for this substitution (0.0–1.0).
	Confidence float64
}

// llmResponse is the expected JSON structure returned by the LLM.
type llmResponse struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the LLM sampling temperature. Lower values produce
// more deterministic corrections. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Corrector) {
		if l != nil {
			c.log = l
		}
	}
}

// Corrector uses an [llm.Provider] to correct misheard vocabulary terms in
// transcript text. It is safe for concurrent use.
//
// To use a specific model for correction, construct the [llm.Provider] with
// that model configured.
type Corrector struct {
	llm         llm.Provider
	temperature float64
	log         *slog.Logger
}

// New returns a new [Corrector] backed by the given [llm.Provider].
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		temperature: defaultTemperature,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct sends text to the LLM with vocabulary as context and asks it to fix
// misheard terms. Only substitutions the model declared survive; any other
// edit is reverted to the original words.
//
// When the LLM reply is unparseable, Correct returns the original text
// unchanged with nil corrections and a nil error. Context cancellation and
// provider errors are returned as non-nil errors.
func (c *Corrector) Correct(ctx context.Context, text string, vocabulary []string) (string, []Correction, error) {
	if len(vocabulary) == 0 || strings.TrimSpace(text) == "" {
		return text, nil, nil
	}

	req := llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(vocabulary),
		Temperature:  c.temperature,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: text},
		},
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		return text, nil, fmt.Errorf("llm corrector: complete: %w", err)
	}
	if resp == nil {
		return text, nil, nil
	}

	corrected, corrections, err := parseResponse(resp.Content, text)
	if err != nil {
		c.log.Warn("llm corrector: unusable reply, keeping original text", "err", err)
		return text, nil, nil
	}

	verified, kept := verifyCorrectedText(text, corrected, corrections)
	if dropped := len(corrections) - len(kept); dropped > 0 || verified != corrected {
		c.log.Debug("llm corrector: reverted undeclared edits", "declared", len(corrections), "kept", len(kept))
	}
	return verified, kept, nil
}

// buildSystemPrompt formats the system prompt template with the vocabulary.
func buildSystemPrompt(vocabulary []string) string {
	var sb strings.Builder
	for _, v := range vocabulary {
		sb.WriteString("- ")
		sb.WriteString(v)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

// parseResponse decodes the JSON object in the LLM reply into the corrected
// text and its declared substitutions.
func parseResponse(content, originalText string) (string, []Correction, error) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return "", nil, fmt.Errorf("llm corrector: parse response: %w", err)
	}

	var r llmResponse
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return "", nil, fmt.Errorf("llm corrector: parse response: %w", err)
	}

	if r.CorrectedText == "" {
		return originalText, nil, nil
	}

	corrections := make([]Correction, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == c.Corrected || c.Original == "" {
			continue
		}
		corrections = append(corrections, Correction{
			Original:   c.Original,
			Corrected:  c.Corrected,
			Confidence: c.Confidence,
		})
	}

	return r.CorrectedText, corrections, nil
}
