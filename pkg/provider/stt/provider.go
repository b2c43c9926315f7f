// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp server,
// an in-process whisper model, or a cloud API such as Deepgram) and turns a
// complete recorded [Audio] clip into a [Transcript]. Dictations are short,
// bounded uploads, so the interface is batch rather than streaming; long
// uploads are cut into pieces and transcribed concurrently by
// [TranscribeChunked].
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"

	"github.com/nv-mldev/emr/pkg/audio"
)

var (
	// ErrEmptyAudio is returned when a clip holds no audio data.
	ErrEmptyAudio = errors.New("stt: no audio data")

	// ErrAudioTooLarge is returned when a clip exceeds the configured upload
	// limit.
	ErrAudioTooLarge = errors.New("stt: audio exceeds size limit")
)

// Audio is a recorded clip submitted for transcription.
type Audio struct {
	audio.Clip

	// Language is the BCP-47 language tag for recognition (e.g. "en-IN").
	// An empty string selects the provider default.
	Language string
}

// Transcript is the result of transcribing one [Audio] clip.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Transcribe converts the clip to text. The clip's PCM is 16-bit signed
	// little-endian; implementations convert it to whatever their backend
	// needs.
	//
	// Returns [ErrEmptyAudio] for a clip without data. An empty Text with a
	// nil error means the backend heard no speech.
	Transcribe(ctx context.Context, a Audio) (Transcript, error)
}
