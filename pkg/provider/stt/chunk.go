package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Upload size policy applied by [TranscribeChunked].
const (
	// DefaultMaxBytes is the largest clip accepted.
	DefaultMaxBytes = 10 << 20

	// DefaultChunkThreshold is the clip size above which the clip is split.
	DefaultChunkThreshold = 500 << 10

	// DefaultChunkBytes is the size of each piece of a split clip.
	DefaultChunkBytes = 400 << 10

	// DefaultChunkConcurrency bounds the number of pieces in flight.
	DefaultChunkConcurrency = 4
)

// ChunkPolicy controls how [TranscribeChunked] treats large clips.
type ChunkPolicy struct {
	// MaxBytes rejects larger clips with [ErrAudioTooLarge]. Zero disables
	// the limit.
	MaxBytes int

	// Threshold is the size above which clips are split.
	Threshold int

	// ChunkBytes is the size of each piece.
	ChunkBytes int

	// Concurrency bounds the pieces transcribed at once. Values below 1 mean 1.
	Concurrency int
}

// DefaultChunkPolicy returns the default upload policy.
func DefaultChunkPolicy() ChunkPolicy {
	return ChunkPolicy{
		MaxBytes:    DefaultMaxBytes,
		Threshold:   DefaultChunkThreshold,
		ChunkBytes:  DefaultChunkBytes,
		Concurrency: DefaultChunkConcurrency,
	}
}

// Check validates a clip against the size policy.
func (p ChunkPolicy) Check(a Audio) error {
	if a.Len() == 0 {
		return ErrEmptyAudio
	}
	if p.MaxBytes > 0 && a.Len() > p.MaxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrAudioTooLarge, a.Len(), p.MaxBytes)
	}
	return nil
}

// TranscribeChunked transcribes a with provider, applying the size policy.
// Clips above the threshold are split into pieces that are transcribed
// concurrently and joined in order with single spaces. A piece that fails is
// logged and skipped; the call fails only when every piece fails.
func TranscribeChunked(ctx context.Context, provider Provider, a Audio, policy ChunkPolicy) (Transcript, error) {
	if err := policy.Check(a); err != nil {
		return Transcript{}, err
	}
	if policy.Threshold <= 0 || a.Len() <= policy.Threshold {
		return provider.Transcribe(ctx, a)
	}

	pieces := a.Split(policy.ChunkBytes)
	results := make([]Transcript, len(pieces))
	errs := make([]error, len(pieces))

	slog.Debug("stt: transcribing in chunks", "bytes", a.Len(), "chunks", len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(policy.Concurrency, 1))
	for i, piece := range pieces {
		g.Go(func() error {
			t, err := provider.Transcribe(gctx, Audio{Clip: piece, Language: a.Language})
			if err != nil {
				// Cancellation of the parent aborts the whole request.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				errs[i] = fmt.Errorf("chunk %d: %w", i, err)
				slog.Warn("stt: chunk transcription failed, skipping", "chunk", i, "err", err)
				return nil
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Transcript{}, err
	}

	var (
		texts   []string
		confSum float64
		ok      int
	)
	for i, t := range results {
		if errs[i] != nil {
			continue
		}
		ok++
		confSum += t.Confidence
		if s := strings.TrimSpace(t.Text); s != "" {
			texts = append(texts, s)
		}
	}
	if ok == 0 {
		return Transcript{}, fmt.Errorf("stt: all %d chunks failed: %w", len(pieces), errors.Join(errs...))
	}

	return Transcript{
		Text:       strings.Join(texts, " "),
		Confidence: confSum / float64(ok),
		Duration:   a.Duration(),
	}, nil
}
