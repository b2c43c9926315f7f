package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/nv-mldev/emr/internal/config"
	"github.com/nv-mldev/emr/internal/extract"
	"github.com/nv-mldev/emr/internal/extract/llmextract"
	"github.com/nv-mldev/emr/internal/transcript"
	"github.com/nv-mldev/emr/internal/transcript/llmcorrect"
	"github.com/nv-mldev/emr/internal/transcript/phonetic"
	"github.com/nv-mldev/emr/internal/vocab"
)

// processing is the part of the pipeline that can be rebuilt while the
// service runs. A value is never mutated after it is published.
type processing struct {
	// vocabulary holds every term name and alias for correction.
	vocabulary []string

	corrector *transcript.CorrectionPipeline

	// phoneticOnly is used when the LLM correction stage fails.
	phoneticOnly *transcript.CorrectionPipeline

	strategy     extract.Strategy
	strategyName string
}

// buildProcessing loads the vocabulary and assembles the correction
// pipeline and extraction strategy for cfg.
func (a *App) buildProcessing(ctx context.Context, cfg *config.Config) (*processing, error) {
	vs, err := vocab.NewDefaultStore(ctx, cfg.Extraction.VocabularyFile)
	if err != nil {
		return nil, fmt.Errorf("app: load vocabulary: %w", err)
	}
	all, err := vocab.Names(ctx, vs, "")
	if err != nil {
		return nil, fmt.Errorf("app: list vocabulary: %w", err)
	}
	drugs, err := vocab.Names(ctx, vs, vocab.KindDrug)
	if err != nil {
		return nil, fmt.Errorf("app: list drug names: %w", err)
	}

	p := &processing{vocabulary: all}

	// ── Correction ───────────────────────────────────────────────────────
	var base []transcript.PipelineOption
	base = append(base, transcript.WithLogger(a.log))
	if cfg.Extraction.PhoneticEnabled() {
		base = append(base, transcript.WithPhoneticMatcher(phonetic.New()))
	}
	p.phoneticOnly = transcript.NewPipeline(base...)
	p.corrector = p.phoneticOnly
	if cfg.Extraction.LLMCorrection {
		if a.llm == nil {
			a.log.Warn("extraction.llm_correction is set but no LLM provider is available")
		} else {
			opts := append(slices.Clip(base), transcript.WithLLMCorrector(llmcorrect.New(a.llm, llmcorrect.WithLogger(a.log))))
			p.corrector = transcript.NewPipeline(opts...)
		}
	}

	// ── Extraction ───────────────────────────────────────────────────────
	rules := extract.New(
		extract.WithClock(a.now),
		extract.WithOrganisation(cfg.OrganisationOrDefault()),
		extract.WithVocabulary(drugs),
		extract.WithLogger(a.log),
	)
	p.strategy, p.strategyName = rules, extract.StrategyRuleBased
	if cfg.Extraction.Strategy == config.StrategyLLM {
		if a.llm == nil {
			a.log.Warn("extraction.strategy is llm but no LLM provider is available, using rules")
		} else {
			le := llmextract.New(a.llm, rules,
				llmextract.WithModelName(cfg.Providers.LLM.Model),
				llmextract.WithLogger(a.log),
			)
			p.strategy, p.strategyName = le, le.ProcessingModel()
		}
	}
	return p, nil
}

// ApplyChange applies the hot-reloadable parts of a configuration change:
// the log level, the organisation identity, the vocabulary and the
// extraction settings. Sections that need a restart are only reported. On
// error the running state is left unchanged.
func (a *App) ApplyChange(ctx context.Context, c config.Change) error {
	d := c.Diff
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config change needs a restart to take effect", "sections", d.RestartRequired)
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if !d.OrganisationChanged && !d.VocabularyChanged && !d.ExtractionChanged {
		return nil
	}

	p, err := a.buildProcessing(ctx, c.New)
	if err != nil {
		a.log.Error("config reload failed, keeping previous extraction settings", "err", err)
		return err
	}
	a.proc.Store(p)
	a.log.Info("extraction settings reloaded",
		"strategy", p.strategyName,
		"vocabulary_terms", len(p.vocabulary),
		"organisation", d.OrganisationChanged,
		"vocabulary", d.VocabularyChanged,
	)
	return nil
}

// Strategy returns the processing model of the active extraction strategy.
func (a *App) Strategy() string {
	return a.proc.Load().strategyName
}
