package deepgram

import (
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/nv-mldev/emr/pkg/audio"
	"github.com/nv-mldev/emr/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(audio.SpeechFormat, "")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_CustomModel(t *testing.T) {
	p, err := New("key", WithModel("nova-2-medical"), WithLanguage("en-IN"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(audio.Format{SampleRate: 48000, Channels: 2}, "")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "nova-2-medical", q.Get("model"))
	assertEqual(t, "language", "en-IN", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "channels", "2", q.Get("channels"))
}

func TestBuildURL_LanguageOverride(t *testing.T) {
	// The clip language takes precedence over the provider-level default.
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(audio.SpeechFormat, "ml-IN")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "ml-IN", u.Query().Get("language"))
}

func TestBuildURL_Keywords(t *testing.T) {
	p, err := New("key", WithKeywords([]Keyword{
		{Term: "Cefoperazone", Boost: 5},
		{Term: "Oseltamivir", Boost: 3.5},
		{Term: "Meropenem"},
		{Term: ""},
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(audio.SpeechFormat, "")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	kws := u.Query()["keywords"]
	if len(kws) != 3 {
		t.Fatalf("expected 3 keywords, got %d: %v", len(kws), kws)
	}

	found := map[string]bool{}
	for _, kw := range kws {
		found[kw] = true
	}
	for _, want := range []string{"Cefoperazone:5", "Oseltamivir:3.5", "Meropenem"} {
		if !found[want] {
			t.Errorf("expected keyword %q, got %v", want, kws)
		}
	}
}

func TestBuildURL_NoKeywords(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(audio.SpeechFormat, "")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	if _, ok := u.Query()["keywords"]; ok {
		t.Error("expected no 'keywords' param when none provided")
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse_Final(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [{
				"transcript": "Hello world",
				"confidence": 0.95,
				"words": [
					{"word": "Hello", "start": 0.1, "end": 0.5, "confidence": 0.97},
					{"word": "world", "start": 0.6, "end": 1.0, "confidence": 0.93}
				]
			}]
		}
	}`)

	seg, kind := parseDeepgramResponse(raw)
	if kind != messageResult {
		t.Fatalf("kind = %v, want messageResult", kind)
	}
	if !seg.IsFinal {
		t.Error("expected IsFinal=true")
	}
	assertEqual(t, "text", "Hello world", seg.Text)
	if seg.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", seg.Confidence)
	}
}

func TestParseDeepgramResponse_Partial(t *testing.T) {
	raw := []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hello","confidence":0.7}]}}`)

	seg, kind := parseDeepgramResponse(raw)
	if kind != messageResult {
		t.Fatalf("kind = %v, want messageResult", kind)
	}
	if seg.IsFinal {
		t.Error("expected IsFinal=false for partial result")
	}
	assertEqual(t, "text", "Hello", seg.Text)
}

func TestParseDeepgramResponse_Kinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want messageKind
	}{
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`, want: messageMetadata},
		{name: "error", raw: `{"type":"Error","description":"bad audio"}`, want: messageError},
		{name: "speech started", raw: `{"type":"SpeechStarted"}`, want: messageIgnored},
		{name: "empty alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`, want: messageIgnored},
		{name: "invalid json", raw: `{invalid`, want: messageIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, kind := parseDeepgramResponse([]byte(tt.raw)); kind != tt.want {
				t.Errorf("kind = %v, want %v", kind, tt.want)
			}
		})
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	assertEqual(t, "endpoint", deepgramEndpoint, p.endpoint)
}

// ---- Transcribe tests ----

// fakeServer is a minimal Deepgram live endpoint. It accumulates binary
// audio until CloseStream and then replies with the configured messages.
type fakeServer struct {
	replies []string

	mu        sync.Mutex
	auth      string
	query     url.Values
	audio     int
	gotClose  bool
	closeConn bool
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.query = r.URL.Query()
	f.mu.Unlock()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	ctx := r.Context()
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageBinary {
			f.mu.Lock()
			f.audio += len(msg)
			f.mu.Unlock()
			continue
		}
		if string(msg) == `{"type":"CloseStream"}` {
			f.mu.Lock()
			f.gotClose = true
			f.mu.Unlock()
			break
		}
	}
	for _, m := range f.replies {
		if err := conn.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
			return
		}
	}
	if f.closeConn {
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	// Wait for the client to hang up.
	_, _, _ = conn.Read(ctx)
}

func newFakeServer(t *testing.T, f *fakeServer) *Provider {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	p, err := New("secret", WithEndpoint(srv.URL+"/v1/listen"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func toneClip(samples int) stt.Audio {
	pcm := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(i%2000)))
	}
	return stt.Audio{Clip: audio.Clip{PCM: pcm, SampleRate: 16000, Channels: 1}}
}

func TestTranscribe_JoinsFinalResults(t *testing.T) {
	f := &fakeServer{replies: []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"seven year","confidence":0.4}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"Seven year old girl.","confidence":0.9}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"","confidence":0}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"Temperature 100.3 F.","confidence":0.7}]}}`,
		`{"type":"Metadata","request_id":"r1"}`,
	}}
	p := newFakeServer(t, f)

	// 40000 samples spans two binary frames.
	tr, err := p.Transcribe(context.Background(), toneClip(40000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "Seven year old girl. Temperature 100.3 F.", tr.Text)
	if tr.Confidence < 0.799 || tr.Confidence > 0.801 {
		t.Errorf("Confidence = %f, want 0.8", tr.Confidence)
	}
	if tr.Duration != 2500*time.Millisecond {
		t.Errorf("Duration = %v, want 2.5s", tr.Duration)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	assertEqual(t, "auth", "Token secret", f.auth)
	assertEqual(t, "encoding", "linear16", f.query.Get("encoding"))
	if f.audio != 80000 {
		t.Errorf("server received %d audio bytes, want 80000", f.audio)
	}
	if !f.gotClose {
		t.Error("server never received CloseStream")
	}
}

func TestTranscribe_NormalCloseEndsStream(t *testing.T) {
	f := &fakeServer{
		replies:   []string{`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"ok","confidence":1}]}}`},
		closeConn: true,
	}
	p := newFakeServer(t, f)

	tr, err := p.Transcribe(context.Background(), toneClip(1600))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "ok", tr.Text)
}

func TestTranscribe_ServerError(t *testing.T) {
	f := &fakeServer{replies: []string{`{"type":"Error","description":"unsupported encoding"}`}}
	p := newFakeServer(t, f)

	if _, err := p.Transcribe(context.Background(), toneClip(1600)); err == nil {
		t.Fatal("expected error for server Error message")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Audio{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p, err := New("bad", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), toneClip(1600)); err == nil {
		t.Fatal("expected dial error")
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
