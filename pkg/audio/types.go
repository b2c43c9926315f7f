// Package audio holds the PCM audio container used for transcription
// uploads: a [Clip] of 16-bit signed little-endian samples, WAV
// decoding and encoding, and the down-mix and resampling helpers that bring
// an upload into the 16 kHz mono format speech providers expect.
package audio

import (
	"fmt"
	"time"
)

const (
	// BytesPerSample is fixed at 2 for 16-bit PCM.
	BytesPerSample = 2

	// SpeechSampleRate is the sample rate speech providers are fed.
	SpeechSampleRate = 16000
)

// Format describes the sample rate and channel count of a clip.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is the 16 kHz mono format used for transcription.
var SpeechFormat = Format{SampleRate: SpeechSampleRate, Channels: 1}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// frameSize is the number of bytes in one sample frame (all channels).
func (f Format) frameSize() int {
	if f.Channels <= 0 {
		return BytesPerSample
	}
	return f.Channels * BytesPerSample
}

// Clip is a complete recording of interleaved 16-bit signed little-endian
// PCM.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Format returns the clip's format.
func (c Clip) Format() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// Len returns the size of the PCM payload in bytes.
func (c Clip) Len() int { return len(c.PCM) }

// Duration returns the playback length of the clip. Clips with an unknown
// format report zero.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / c.Format().frameSize()
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Split cuts the clip into consecutive pieces of at most maxBytes each. Cuts
// fall on frame boundaries so that no sample is split across pieces. A
// non-positive maxBytes, or a clip that already fits, returns the clip
// unchanged as the only piece.
func (c Clip) Split(maxBytes int) []Clip {
	frame := c.Format().frameSize()
	maxBytes -= maxBytes % frame
	if maxBytes <= 0 || len(c.PCM) <= maxBytes {
		return []Clip{c}
	}

	pieces := make([]Clip, 0, len(c.PCM)/maxBytes+1)
	for off := 0; off < len(c.PCM); off += maxBytes {
		end := min(off+maxBytes, len(c.PCM))
		pieces = append(pieces, Clip{
			PCM:        c.PCM[off:end],
			SampleRate: c.SampleRate,
			Channels:   c.Channels,
		})
	}
	return pieces
}
