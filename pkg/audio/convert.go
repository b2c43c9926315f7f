package audio

import (
	"encoding/binary"
	"log/slog"
)

// Normalize converts the clip to target. Resampling runs before the
// down-mix when the target is mono so that fewer channels are touched; a
// clip already in the target format is returned unchanged.
//
// Only down-mixing to mono and mono-to-stereo up-mixing are supported; other
// channel conversions keep the source channel count.
func Normalize(c Clip, target Format) Clip {
	if len(c.PCM)%BytesPerSample != 0 {
		slog.Warn("audio: odd byte count in PCM data, dropping trailing byte", "bytes", len(c.PCM))
		c.PCM = c.PCM[:len(c.PCM)-1]
	}
	if c.Format() == target {
		return c
	}

	slog.Debug("audio: converting clip", "from", c.Format().String(), "to", target.String())

	pcm := c.PCM
	channels := c.Channels

	if target.Channels == 1 && channels > 1 {
		pcm = DownmixToMono(pcm, channels)
		channels = 1
	}

	if c.SampleRate != target.SampleRate {
		if channels == 1 {
			pcm = ResampleMono16(pcm, c.SampleRate, target.SampleRate)
		} else {
			pcm = resampleInterleaved16(pcm, channels, c.SampleRate, target.SampleRate)
		}
	}

	if target.Channels == 2 && channels == 1 {
		pcm = MonoToStereo(pcm)
		channels = 2
	}

	return Clip{PCM: pcm, SampleRate: target.SampleRate, Channels: channels}
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// StereoToMono averages L+R per stereo frame.
func StereoToMono(pcm []byte) []byte {
	return DownmixToMono(pcm, 2)
}

// DownmixToMono averages all channels of each interleaved frame into one
// sample, clamping to the int16 range.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := channels * BytesPerSample
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*BytesPerSample)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(sampleAt(pcm, i*channels+ch))
		}
		putSample(out, i, clamp16(sum/int32(channels)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. If the rates match, or either is invalid, the input
// is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resampleInterleaved16(pcm, 1, srcRate, dstRate)
}

// resampleInterleaved16 resamples interleaved 16-bit PCM with any channel
// count using linear interpolation per channel.
func resampleInterleaved16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (channels * BytesPerSample)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*channels*BytesPerSample)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)

		for ch := range channels {
			s0 := float64(sampleAt(pcm, idx*channels+ch))
			s1 := float64(sampleAt(pcm, next*channels+ch))
			putSample(out, i*channels+ch, int16(s0*(1-frac)+s1*frac))
		}
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
}

func putSample(pcm []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(v))
}

func clamp16(v int32) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}
