package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/nv-mldev/emr/internal/app"
	"github.com/nv-mldev/emr/internal/observe"
	"github.com/nv-mldev/emr/internal/resilience"
	"github.com/nv-mldev/emr/internal/transcript"
	"github.com/nv-mldev/emr/pkg/provider/stt"
	"github.com/nv-mldev/emr/pkg/store"
)

// errBadRequest marks malformed requests.
var errBadRequest = errors.New("bad request")

// ── Request and response bodies ──────────────────────────────────────────────

type transcribeResponse struct {
	Transcription    string                  `json:"transcription"`
	RawTranscription string                  `json:"raw_transcription"`
	Corrections      []transcript.Correction `json:"corrections"`
	DurationSeconds  float64                 `json:"duration_seconds"`
}

type generateRequest struct {
	Transcription string `json:"transcription"`
}

type listResponse struct {
	Reports []store.Report `json:"reports"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

type clientError struct {
	Message   string `json:"message"`
	Source    string `json:"source"`
	Line      int    `json:"line"`
	Stack     string `json:"stack"`
	URL       string `json:"url"`
	UserAgent string `json:"user_agent"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxUpload+multipartOverhead))
	if err := r.ParseMultipartForm(int64(s.maxUpload)); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("audio")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: no audio file provided", errBadRequest))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, int64(s.maxUpload)+1))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: read upload: %w", errBadRequest, err))
		return
	}
	if len(data) > s.maxUpload {
		s.writeError(w, r, fmt.Errorf("api: upload: %w", stt.ErrAudioTooLarge))
		return
	}

	t, err := s.svc.Transcribe(r.Context(), data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transcribeResponse{
		Transcription:    t.Text,
		RawTranscription: t.Raw,
		Corrections:      t.Corrections,
		DurationSeconds:  t.Duration.Seconds(),
	})
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rep, err := s.svc.GenerateReport(r.Context(), req.Transcription)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := store.ListOptions{Limit: limit, Offset: offset}
	reports, err := s.svc.Reports(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Reports: reports, Limit: opts.EffectiveLimit(), Offset: offset})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleSummaryText(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rep, err := s.svc.Report(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "discharge_summary_"+id+".txt"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rep.Summary)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteReport(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogError(w http.ResponseWriter, r *http.Request) {
	var ce clientError
	if err := decodeJSON(w, r, &ce); err != nil {
		s.writeError(w, r, err)
		return
	}
	attrs := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			attrs[k] = v
		}
	}
	set("source", ce.Source)
	set("url", ce.URL)
	set("stack", ce.Stack)
	set("user_agent", ce.UserAgent)
	if ce.Line > 0 {
		attrs["line"] = strconv.Itoa(ce.Line)
	}
	s.svc.LogClientError(r.Context(), ce.Message, attrs)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged"})
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// decodeJSON decodes a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", errBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON: %w", errBadRequest, err)
	}
	return nil
}

// queryInt parses a non-negative integer query parameter. Absent means 0.
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, key)
	}
	return n, nil
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, stt.ErrAudioTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest), app.IsBadInput(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrNoTranscriber):
		return http.StatusServiceUnavailable
	case errors.Is(err, resilience.ErrAllFailed), errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes the JSON error body. Server errors carry a
// generic message; the details stay in the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := observe.Logger(r.Context())
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
		msg = http.StatusText(status)
	} else {
		log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
