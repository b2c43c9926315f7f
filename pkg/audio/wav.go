package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrNotWAV is returned by [DecodeWAV] when the data is not a RIFF/WAVE
	// container.
	ErrNotWAV = errors.New("audio: not a RIFF/WAVE container")

	// ErrUnsupportedEncoding is returned by [DecodeWAV] for WAV files that do
	// not hold 16-bit integer PCM.
	ErrUnsupportedEncoding = errors.New("audio: only 16-bit PCM WAV is supported")
)

const (
	wavHeaderSize   = 44
	wavFormatPCM    = 1
	wavFormatExtend = 0xFFFE
)

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV parses a RIFF/WAVE container holding 16-bit PCM. Chunks other
// than "fmt " and "data" are skipped. A data chunk whose declared size runs
// past the end of the input (as written by some streaming recorders) is
// truncated to what is present.
func DecodeWAV(data []byte) (Clip, error) {
	if !IsWAV(data) {
		return Clip{}, ErrNotWAV
	}

	var (
		format   Format
		bits     uint16
		haveFmt  bool
		pcm      []byte
		haveData bool
	)

	off := 12
	for off+8 <= len(data) && !haveData {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(data) || end < body {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return Clip{}, fmt.Errorf("audio: fmt chunk too short (%d bytes)", end-body)
			}
			tag := binary.LittleEndian.Uint16(data[body : body+2])
			if tag != wavFormatPCM && tag != wavFormatExtend {
				return Clip{}, fmt.Errorf("%w: format tag %#x", ErrUnsupportedEncoding, tag)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			pcm = data[body:end]
			haveData = true
		}

		// Chunks are word aligned.
		off = end + size%2
	}

	if !haveFmt {
		return Clip{}, errors.New("audio: WAV has no fmt chunk")
	}
	if bits != 16 {
		return Clip{}, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedEncoding, bits)
	}
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("audio: invalid WAV format %s", format)
	}
	if !haveData {
		return Clip{}, errors.New("audio: WAV has no data chunk")
	}

	// Drop any trailing partial frame.
	pcm = pcm[:len(pcm)-len(pcm)%format.frameSize()]

	return Clip{
		PCM:        bytes.Clone(pcm),
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}

// EncodeWAV wraps the clip in a canonical 44-byte-header RIFF/WAVE
// container.
func EncodeWAV(c Clip) []byte {
	channels := max(c.Channels, 1)
	byteRate := c.SampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample
	dataSize := len(c.PCM)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(c.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], c.PCM)

	return buf
}
