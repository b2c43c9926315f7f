package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nv-mldev/emr/pkg/audio"
	"github.com/nv-mldev/emr/pkg/provider/stt"
	"github.com/nv-mldev/emr/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceForm captures the form fields of the last /inference request.
type inferenceForm struct {
	mu     sync.Mutex
	fields map[string]string
	file   []byte
}

func (f *inferenceForm) get(k string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fields[k]
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. It increments *callCount on every
// matched request and records the form fields into form when non-nil.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32, form *inferenceForm) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if form != nil {
			form.mu.Lock()
			form.fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				form.fields[k] = v[0]
			}
			if fhs := r.MultipartForm.File["file"]; len(fhs) > 0 {
				if f, err := fhs[0].Open(); err == nil {
					form.file, _ = io.ReadAll(f)
					f.Close()
				}
			}
			form.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// makeSpeechPCM generates a 440 Hz sine-wave PCM buffer whose RMS is well
// above the default silence threshold.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// makeSilencePCM generates a zero-valued PCM buffer.
func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

func speechAudio(samples int) stt.Audio {
	return stt.Audio{Clip: audio.Clip{PCM: makeSpeechPCM(samples), SampleRate: 16000, Channels: 1}}
}

// ---- tests ------------------------------------------------------------------

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty server URL, got nil")
	}
}

func TestTranscribe_ReturnsServerText(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newMockServer(t, "  patient is a 7 year old girl  ", &calls, nil)
	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := p.Transcribe(context.Background(), speechAudio(16000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "patient is a 7 year old girl" {
		t.Errorf("Text = %q", tr.Text)
	}
	if tr.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", tr.Duration)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestTranscribe_SilenceSkipsServer(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newMockServer(t, "should not appear", &calls, nil)
	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a := stt.Audio{Clip: audio.Clip{PCM: makeSilencePCM(8000), SampleRate: 16000, Channels: 1}}
	tr, err := p.Transcribe(context.Background(), a)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("Text = %q, want empty", tr.Text)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times for silent clip", calls.Load())
	}
}

func TestTranscribe_SilenceThresholdDisabled(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newMockServer(t, "", &calls, nil)
	p, err := whisper.New(srv.URL, whisper.WithSilenceThreshold(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a := stt.Audio{Clip: audio.Clip{PCM: makeSilencePCM(800), SampleRate: 16000, Channels: 1}}
	if _, err := p.Transcribe(context.Background(), a); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestTranscribe_FormFields(t *testing.T) {
	t.Parallel()

	form := &inferenceForm{}
	srv := newMockServer(t, "ok", nil, form)
	p, err := whisper.New(srv.URL+"/", whisper.WithModel("small"), whisper.WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Transcribe(context.Background(), speechAudio(1600)); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got := form.get("response_format"); got != "json" {
		t.Errorf("response_format = %q, want json", got)
	}
	if got := form.get("model"); got != "small" {
		t.Errorf("model = %q, want small", got)
	}
	if got := form.get("language"); got != "de" {
		t.Errorf("language = %q, want de", got)
	}

	form.mu.Lock()
	file := form.file
	form.mu.Unlock()
	if !audio.IsWAV(file) {
		t.Fatal("uploaded file is not a WAV")
	}
	clip, err := audio.DecodeWAV(file)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.Format() != audio.SpeechFormat {
		t.Errorf("uploaded format = %v, want %v", clip.Format(), audio.SpeechFormat)
	}
}

func TestTranscribe_ClipLanguageOverridesDefault(t *testing.T) {
	t.Parallel()

	form := &inferenceForm{}
	srv := newMockServer(t, "ok", nil, form)
	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a := speechAudio(1600)
	a.Language = "ml"
	if _, err := p.Transcribe(context.Background(), a); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got := form.get("language"); got != "ml" {
		t.Errorf("language = %q, want ml", got)
	}
	if got := form.get("model"); got != "" {
		t.Errorf("model = %q, want omitted", got)
	}
}

func TestTranscribe_ResamplesStereoInput(t *testing.T) {
	t.Parallel()

	form := &inferenceForm{}
	srv := newMockServer(t, "ok", nil, form)
	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mono := makeSpeechPCM(4800)
	a := stt.Audio{Clip: audio.Clip{PCM: audio.MonoToStereo(mono), SampleRate: 48000, Channels: 2}}
	tr, err := p.Transcribe(context.Background(), a)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Duration != 100*time.Millisecond {
		t.Errorf("Duration = %v, want 100ms", tr.Duration)
	}

	form.mu.Lock()
	file := form.file
	form.mu.Unlock()
	clip, err := audio.DecodeWAV(file)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.Format() != audio.SpeechFormat {
		t.Errorf("uploaded format = %v, want %v", clip.Format(), audio.SpeechFormat)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "x", nil, nil)
	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Transcribe(context.Background(), stt.Audio{Clip: audio.Clip{SampleRate: 16000, Channels: 1}})
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), speechAudio(1600)); err == nil {
		t.Fatal("expected error for HTTP 500, got nil")
	}
}

func TestTranscribe_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	t.Cleanup(srv.Close)

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), speechAudio(1600)); err == nil {
		t.Fatal("expected JSON decode error, got nil")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "x", nil, nil)
	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, speechAudio(1600)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
