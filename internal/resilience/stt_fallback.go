package resilience

import (
	"context"
	"errors"

	"github.com/nv-mldev/emr/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker. Upload errors
// ([stt.ErrEmptyAudio], [stt.ErrAudioTooLarge]) are returned without failover.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	cfg.Permanent = orPermanent(cfg.Permanent, func(err error) bool {
		return errors.Is(err, stt.ErrEmptyAudio) || errors.Is(err, stt.ErrAudioTooLarge)
	})
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Group exposes the underlying group for health reporting.
func (f *STTFallback) Group() *FallbackGroup[stt.Provider] { return f.group }

// Transcribe sends the clip to the first healthy provider. If the primary
// fails, subsequent fallbacks are tried.
func (f *STTFallback) Transcribe(ctx context.Context, a stt.Audio) (stt.Transcript, error) {
	t, _, err := ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, a)
	})
	return t, err
}

func orPermanent(a, b func(error) bool) func(error) bool {
	if a == nil {
		return b
	}
	return func(err error) bool { return a(err) || b(err) }
}
