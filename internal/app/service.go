package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/nv-mldev/emr/internal/clientlog"
	"github.com/nv-mldev/emr/internal/extract"
	"github.com/nv-mldev/emr/internal/observe"
	"github.com/nv-mldev/emr/internal/report"
	"github.com/nv-mldev/emr/internal/transcript"
	"github.com/nv-mldev/emr/pkg/audio"
	"github.com/nv-mldev/emr/pkg/provider/stt"
	"github.com/nv-mldev/emr/pkg/store"
)

// Transcription is the result of [App.Transcribe].
type Transcription struct {
	// Text is the transcript after vocabulary correction.
	Text string

	// Raw is the transcript as returned by the speech-to-text provider.
	Raw string

	// Corrections lists the vocabulary substitutions applied to Raw.
	Corrections []transcript.Correction

	// Duration is the length of the uploaded recording.
	Duration time.Duration
}

// ── Transcription ────────────────────────────────────────────────────────────

// Transcribe converts an uploaded WAV recording to corrected text.
//
// Returns [stt.ErrEmptyAudio] for an empty upload, [stt.ErrAudioTooLarge]
// when the audio exceeds the configured limit, [ErrInvalidAudio] for
// anything but 16-bit PCM WAV, and [ErrNoTranscriber] when no provider is
// configured.
func (a *App) Transcribe(ctx context.Context, data []byte) (*Transcription, error) {
	ctx, span := observe.StartSpan(ctx, "app.transcribe")
	defer span.End()
	log := observe.Logger(ctx)

	if len(data) == 0 {
		return nil, stt.ErrEmptyAudio
	}
	if limit := a.cfg.Server.MaxUploadBytes; limit > 0 && len(data) > limit {
		return nil, fmt.Errorf("app: upload of %d bytes: %w", len(data), stt.ErrAudioTooLarge)
	}
	if a.stt == nil {
		return nil, ErrNoTranscriber
	}
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}
	span.SetAttributes(attribute.Int("audio.bytes", len(data)), attribute.String("audio.duration", clip.Duration().String()))

	start := time.Now()
	raw, err := stt.TranscribeChunked(ctx, a.stt, stt.Audio{Clip: clip, Language: a.cfg.Transcribe.Language}, a.cfg.ChunkPolicy())
	status := observe.StatusOK
	if err != nil {
		status = observe.StatusError
	}
	a.metrics.STTDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("status", status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		return nil, fmt.Errorf("app: transcribe: %w", err)
	}

	p := a.proc.Load()
	corrected, err := p.corrector.Correct(ctx, raw, p.vocabulary)
	if err != nil && p.corrector != p.phoneticOnly && ctx.Err() == nil {
		log.Warn("llm transcript correction failed, using phonetic corrections only", "err", err)
		corrected, err = p.phoneticOnly.Correct(ctx, raw, p.vocabulary)
	}
	if err != nil {
		return nil, fmt.Errorf("app: correct transcript: %w", err)
	}
	a.recordCorrections(ctx, corrected.Corrections)

	log.Info("recording transcribed",
		"duration", clip.Duration(),
		"chars", len(corrected.Corrected),
		"corrections", len(corrected.Corrections),
	)
	return &Transcription{
		Text:        corrected.Corrected,
		Raw:         raw.Text,
		Corrections: corrected.Corrections,
		Duration:    clip.Duration(),
	}, nil
}

func (a *App) recordCorrections(ctx context.Context, cs []transcript.Correction) {
	counts := make(map[string]int, 2)
	for _, c := range cs {
		counts[c.Method]++
	}
	for method, n := range counts {
		a.metrics.RecordCorrections(ctx, method, n)
	}
}

// ── Reports ──────────────────────────────────────────────────────────────────

// Summarise structures text into a clinical record and renders its discharge
// summary without storing it. Returns [extract.ErrEmptyInput] for blank
// text.
func (a *App) Summarise(ctx context.Context, text string) (*report.Document, error) {
	ctx, span := observe.StartSpan(ctx, "app.summarise")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, extract.ErrEmptyInput
	}

	p := a.proc.Load()
	start := time.Now()
	rec, err := p.strategy.Structure(ctx, text)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("app: structure transcript: %w", err)
	}
	strategy := strategyLabel(rec.Metadata.ProcessingModel)
	a.metrics.RecordExtraction(ctx, strategy, time.Since(start).Seconds(), rec.Metadata.ConfidenceScore)
	span.SetAttributes(
		attribute.String("extraction.strategy", rec.Metadata.ProcessingModel),
		attribute.Float64("extraction.confidence", rec.Metadata.ConfidenceScore),
	)

	doc, err := a.renderer.Render(rec)
	if err != nil {
		return nil, fmt.Errorf("app: render summary: %w", err)
	}
	return doc, nil
}

// GenerateReport summarises text and stores the result under a new ID.
func (a *App) GenerateReport(ctx context.Context, text string) (store.Report, error) {
	doc, err := a.Summarise(ctx, text)
	if err != nil {
		return store.Report{}, err
	}

	r := store.Report{
		ID:        a.newID(),
		Record:    doc.Data,
		Summary:   doc.Summary,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.Save(ctx, r); err != nil {
		return store.Report{}, fmt.Errorf("app: save report: %w", err)
	}
	a.metrics.RecordReport(ctx, strategyLabel(doc.Data.Metadata.ProcessingModel))

	observe.Logger(ctx).Info("report generated",
		"id", r.ID,
		"strategy", doc.Data.Metadata.ProcessingModel,
		"confidence", doc.Data.Metadata.ConfidenceScore,
	)
	return r, nil
}

// Report returns the stored report with id, or an error wrapping
// [store.ErrNotFound].
func (a *App) Report(ctx context.Context, id string) (store.Report, error) {
	r, err := a.store.Get(ctx, id)
	if err != nil {
		return store.Report{}, fmt.Errorf("app: get report %q: %w", id, err)
	}
	return r, nil
}

// Reports lists stored reports newest first.
func (a *App) Reports(ctx context.Context, opts store.ListOptions) ([]store.Report, error) {
	rs, err := a.store.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("app: list reports: %w", err)
	}
	return rs, nil
}

// DeleteReport removes the stored report with id.
func (a *App) DeleteReport(ctx context.Context, id string) error {
	if err := a.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("app: delete report %q: %w", id, err)
	}
	return nil
}

// LogClientError records an error reported by the browser front end.
func (a *App) LogClientError(ctx context.Context, message string, attrs map[string]string) {
	a.metrics.RecordClientError(ctx)
	args := make([]any, 0, 2+2*len(attrs))
	args = append(args, "message", message)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	log := observe.Logger(ctx)
	log.Warn("client error", args...)

	if a.clientLog == nil {
		return
	}
	rec := clientlog.Record{
		Timestamp:     a.now().UTC(),
		CorrelationID: observe.CorrelationID(ctx),
		Message:       message,
		Attrs:         attrs,
	}
	if err := a.clientLog.Append(rec); err != nil {
		log.Error("failed to persist client error", "path", a.clientLog.Path(), "err", err)
	}
}

// strategyLabel strips the model name from a processing model so metric
// labels stay bounded ("llm:gpt-4o" becomes "llm").
func strategyLabel(model string) string {
	if i := strings.IndexByte(model, ':'); i >= 0 {
		return model[:i]
	}
	if model == "" {
		return extract.StrategyRuleBased
	}
	return model
}

// IsBadInput reports whether err was caused by the request content rather
// than by the service.
func IsBadInput(err error) bool {
	return errors.Is(err, extract.ErrEmptyInput) ||
		errors.Is(err, stt.ErrEmptyAudio) ||
		errors.Is(err, ErrInvalidAudio)
}
