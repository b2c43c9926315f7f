package transcript

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nv-mldev/emr/internal/transcript/llmcorrect"
	"github.com/nv-mldev/emr/internal/transcript/phonetic"
	"github.com/nv-mldev/emr/pkg/provider/stt"
)

const (
	defaultLLMConfidenceThreshold = 0.85

	// trailingPunct is stripped from a word before matching and put back
	// after the replacement.
	trailingPunct = ".,;:!?"
)

// PipelineOption is a functional option for configuring a [CorrectionPipeline].
type PipelineOption func(*CorrectionPipeline)

// WithPhoneticMatcher attaches a [PhoneticMatcher] as the first correction
// stage. When nil (the default), the phonetic stage is skipped entirely.
func WithPhoneticMatcher(m PhoneticMatcher) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.phonetic = m
	}
}

// WithLLMCorrector attaches an [llmcorrect.Corrector] as the second correction
// stage. When nil (the default), the LLM stage is skipped entirely.
func WithLLMCorrector(c *llmcorrect.Corrector) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.llmCorrector = c
	}
}

// WithLLMOnLowConfidence sets the transcript confidence below which the LLM
// stage runs. Transcripts from providers that report no confidence (zero)
// always go to the LLM when one is configured. Default: 0.85.
func WithLLMOnLowConfidence(threshold float64) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.llmThreshold = threshold
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *CorrectionPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// CorrectionPipeline is the two-stage implementation of [Pipeline]. Stages
// are optional and are applied in order:
//
//  1. [PhoneticMatcher]: in-process vocabulary alignment.
//  2. [llmcorrect.Corrector]: LLM review of low-confidence transcripts.
//
// CorrectionPipeline is safe for concurrent use.
type CorrectionPipeline struct {
	phonetic     PhoneticMatcher
	llmCorrector *llmcorrect.Corrector
	llmThreshold float64
	log          *slog.Logger
}

var _ Pipeline = (*CorrectionPipeline)(nil)

// NewPipeline constructs a [CorrectionPipeline] with the supplied options.
// By default both stages are disabled; use [WithPhoneticMatcher] and
// [WithLLMCorrector] to activate them.
func NewPipeline(opts ...PipelineOption) *CorrectionPipeline {
	p := &CorrectionPipeline{
		llmThreshold: defaultLLMConfidenceThreshold,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Correct applies the configured correction stages to t.
//
// Pipeline flow:
//  1. The text is split into whitespace-separated tokens.
//  2. When a [PhoneticMatcher] is configured, phrase windows from the longest
//     vocabulary term's word count down to one word are tested at each
//     position; the longest match wins.
//  3. When an [llmcorrect.Corrector] is configured and the transcript's
//     confidence is unknown or below the threshold, the LLM reviews the
//     phonetically corrected text.
//  4. Phonetic and LLM corrections are returned in stage order.
//
// An LLM failure is returned as an error; callers that prefer degraded
// output can fall back to the phonetic result by running without the LLM
// stage.
func (p *CorrectionPipeline) Correct(
	ctx context.Context,
	t stt.Transcript,
	vocabulary []string,
) (*CorrectedTranscript, error) {
	result := &CorrectedTranscript{
		Original:    t,
		Corrected:   t.Text,
		Corrections: []Correction{},
	}
	if len(vocabulary) == 0 || strings.TrimSpace(t.Text) == "" {
		return result, nil
	}

	// ---- Stage 1: phonetic matching ----
	if p.phonetic != nil {
		text, corrections := p.applyPhonetic(t.Text, vocabulary)
		result.Corrected = text
		result.Corrections = append(result.Corrections, corrections...)
	}

	// ---- Stage 2: LLM correction ----
	if p.llmCorrector != nil && (t.Confidence == 0 || t.Confidence < p.llmThreshold) {
		text, raw, err := p.llmCorrector.Correct(ctx, result.Corrected, vocabulary)
		if err != nil {
			return nil, err
		}
		result.Corrected = text
		for _, rc := range raw {
			result.Corrections = append(result.Corrections, Correction{
				Original:   rc.Original,
				Corrected:  rc.Corrected,
				Confidence: rc.Confidence,
				Method:     MethodLLM,
			})
		}
	}

	if len(result.Corrections) > 0 {
		p.log.Debug("transcript: corrected vocabulary terms", "corrections", len(result.Corrections))
	}
	return result, nil
}

// applyPhonetic runs the phonetic matching stage over text and returns the
// corrected text with the corrections applied.
//
// Trailing punctuation is ignored while matching and reattached to the
// replacement. A window never spans punctuation inside it, so terms are not
// stitched across sentence or list boundaries.
func (p *CorrectionPipeline) applyPhonetic(text string, vocabulary []string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	// The concrete matcher can prepare the vocabulary once per transcript.
	var matchFn func(string) (string, float64, bool)
	var maxWords int
	if pm, ok := p.phonetic.(*phonetic.Matcher); ok {
		es := phonetic.PrepareEntities(vocabulary)
		maxWords = es.MaxWords()
		matchFn = func(word string) (string, float64, bool) {
			return pm.MatchPrepared(word, es)
		}
	} else {
		maxWords = maxWordCount(vocabulary)
		matchFn = func(word string) (string, float64, bool) {
			return p.phonetic.Match(word, vocabulary)
		}
	}
	// A split word ("cefo perazone") is one term spoken as two words.
	maxWords++

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := min(maxWords, len(tokens)-i)

		matched := false
		for n := maxN; n >= 1; n-- {
			window, punct, ok := matchWindow(tokens[i : i+n])
			if !ok {
				continue
			}
			term, conf, ok := matchFn(window)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(term)...)
			output[len(output)-1] += punct
			if window != term {
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  term,
					Confidence: conf,
					Method:     MethodPhonetic,
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// matchWindow joins tokens into a phrase for matching. It strips trailing
// punctuation from the last token and returns it separately; ok is false
// when an earlier token ends in punctuation.
func matchWindow(tokens []string) (window, punct string, ok bool) {
	last := len(tokens) - 1
	for _, tok := range tokens[:last] {
		if strings.TrimRight(tok, trailingPunct) != tok {
			return "", "", false
		}
	}
	word := strings.TrimRight(tokens[last], trailingPunct)
	if word == "" {
		return "", "", false
	}
	punct = tokens[last][len(word):]

	if last == 0 {
		return word, punct, true
	}
	return strings.Join(tokens[:last], " ") + " " + word, punct, true
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any vocabulary term. Returns 1 when vocabulary is empty.
func maxWordCount(vocabulary []string) int {
	n := 1
	for _, v := range vocabulary {
		n = max(n, len(strings.Fields(v)))
	}
	return n
}
