// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// live WebSocket API. A clip is streamed in full, the stream is closed, and
// the final results are joined into one transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/nv-mldev/emr/pkg/audio"
	"github.com/nv-mldev/emr/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// frameBytes is the size of each binary audio message.
	frameBytes = 32 << 10
)

var _ stt.Provider = (*Provider)(nil)

// Keyword is a term whose recognition Deepgram should favour. Boost is the
// intensifier; zero sends the term without one.
type Keyword struct {
	Term  string
	Boost float64
}

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "nova-2-medical").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "en-IN").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithKeywords sets terms sent as keyword boosts on every request. Drug and
// diagnosis names are the usual candidates.
func WithKeywords(kw []Keyword) Option {
	return func(p *Provider) {
		p.keywords = kw
	}
}

// WithEndpoint overrides the listen endpoint. Useful for self-hosted
// deployments and tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram live API.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
	keywords []Keyword
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams the clip to Deepgram and returns the joined final
// results. Confidence is the mean over the non-empty final segments.
func (p *Provider) Transcribe(ctx context.Context, a stt.Audio) (stt.Transcript, error) {
	if a.Len() == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}
	clip := audio.Normalize(a.Clip, audio.SpeechFormat)

	wsURL, err := p.buildURL(clip.Format(), a.Language)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	var segments []segment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writeClip(gctx, conn, clip.PCM)
	})
	g.Go(func() error {
		var err error
		segments, err = readResults(gctx, conn)
		return err
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stt.Transcript{}, fmt.Errorf("deepgram: %w", ctxErr)
		}
		return stt.Transcript{}, err
	}
	conn.Close(websocket.StatusNormalClosure, "transcription complete")

	return joinSegments(segments, clip), nil
}

// buildURL constructs the Deepgram endpoint URL for a clip in format f.
func (p *Provider) buildURL(f audio.Format, language string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(f.SampleRate))
	q.Set("channels", strconv.Itoa(f.Channels))

	for _, kw := range p.keywords {
		if kw.Term == "" {
			continue
		}
		// Deepgram keyword format: word:boost (e.g., "Meropenem:2")
		val := kw.Term
		if kw.Boost != 0 {
			val = fmt.Sprintf("%s:%g", kw.Term, kw.Boost)
		}
		q.Add("keywords", val)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// writeClip sends pcm as binary frames and then asks Deepgram to flush.
func writeClip(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for len(pcm) > 0 {
		n := min(frameBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[:n]); err != nil {
			return fmt.Errorf("deepgram: send audio: %w", err)
		}
		pcm = pcm[n:]
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// readResults collects final segments until Deepgram reports the stream
// metadata or closes the connection normally.
func readResults(ctx context.Context, conn *websocket.Conn) ([]segment, error) {
	var out []segment
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return out, nil
			}
			return out, fmt.Errorf("deepgram: read: %w", err)
		}

		seg, kind := parseDeepgramResponse(msg)
		switch kind {
		case messageMetadata:
			return out, nil
		case messageResult:
			if seg.IsFinal {
				out = append(out, seg)
			}
		case messageError:
			return out, fmt.Errorf("deepgram: server error: %s", seg.Text)
		}
	}
}

func joinSegments(segments []segment, clip audio.Clip) stt.Transcript {
	var (
		parts []string
		conf  float64
	)
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		conf += s.Confidence
	}
	t := stt.Transcript{
		Text:     strings.Join(parts, " "),
		Duration: clip.Duration(),
	}
	if len(parts) > 0 {
		t.Confidence = conf / float64(len(parts))
	}
	slog.Debug("deepgram: transcription complete", "segments", len(parts), "confidence", t.Confidence)
	return t
}

// ---- wire format ----

// deepgramResponse is the JSON structure returned by Deepgram.
type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	Description string `json:"description"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type messageKind int

const (
	messageIgnored messageKind = iota
	messageResult
	messageMetadata
	messageError
)

// segment is one recognised result. For error messages Text carries the
// server's description.
type segment struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// parseDeepgramResponse classifies a raw Deepgram WebSocket message and
// extracts the top alternative of a Results message.
func parseDeepgramResponse(data []byte) (segment, messageKind) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return segment{}, messageIgnored
	}
	switch resp.Type {
	case "Metadata":
		return segment{}, messageMetadata
	case "Error":
		return segment{Text: resp.Description}, messageError
	case "Results":
	default:
		return segment{}, messageIgnored
	}
	if len(resp.Channel.Alternatives) == 0 {
		return segment{}, messageIgnored
	}

	alt := resp.Channel.Alternatives[0]
	return segment{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}, messageResult
}
