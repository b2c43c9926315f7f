// Package api exposes the dictation pipeline over HTTP.
//
// Routes:
//
//	POST   /api/transcribe                 multipart "audio" WAV upload → {transcription}
//	POST   /api/generate-report            {transcription} → {id, structured_data, report}
//	GET    /api/reports                    list stored reports (limit, offset)
//	GET    /api/reports/{id}               one stored report
//	GET    /api/reports/{id}/summary.txt   plain-text discharge summary download
//	DELETE /api/reports/{id}               remove a stored report
//	POST   /api/log-error                  error report from the browser front end
//	GET    /healthz, /readyz               liveness and readiness probes
//	GET    /metrics                        Prometheus scrape endpoint (path configurable)
//
// Errors are returned as {"error": "..."} with a status derived from the
// error: bad input 400, unknown report 404, oversized upload 413, no or
// failing provider 502/503, everything else 500.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nv-mldev/emr/internal/app"
	"github.com/nv-mldev/emr/internal/health"
	"github.com/nv-mldev/emr/internal/observe"
	"github.com/nv-mldev/emr/pkg/store"
)

const (
	// defaultMaxUploadBytes caps audio uploads when no limit is configured.
	defaultMaxUploadBytes = 10 << 20

	// multipartOverhead is allowed on top of the audio limit for the
	// multipart envelope.
	multipartOverhead = 1 << 20

	// maxJSONBytes caps JSON request bodies.
	maxJSONBytes = 1 << 20

	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Service is the application surface the HTTP layer drives.
// [app.App] is the production implementation.
type Service interface {
	Transcribe(ctx context.Context, data []byte) (*app.Transcription, error)
	GenerateReport(ctx context.Context, text string) (store.Report, error)
	Report(ctx context.Context, id string) (store.Report, error)
	Reports(ctx context.Context, opts store.ListOptions) ([]store.Report, error)
	DeleteReport(ctx context.Context, id string) error
	LogClientError(ctx context.Context, message string, attrs map[string]string)
}

var _ Service = (*app.App)(nil)

// Server serves the HTTP API.
type Server struct {
	svc            Service
	maxUpload      int
	timeout        time.Duration
	metrics        *observe.Metrics
	checkers       []health.Checker
	metricsPath    string
	metricsHandler http.Handler
	certFile       string
	keyFile        string
	log            *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Server)

// WithMaxUploadBytes caps the size of audio uploads. Default: 10 MiB.
func WithMaxUploadBytes(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithRequestTimeout bounds the processing time of each API request. Zero
// disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithMetrics sets the instruments used by the request middleware. Default:
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheckers registers the readiness checks served on /readyz.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// WithMetricsHandler serves h on path. Without this option no metrics
// endpoint is mounted.
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metricsHandler = h
	}
}

// WithTLS serves HTTPS using the given PEM files.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a [Server] for svc.
func New(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		maxUpload: defaultMaxUploadBytes,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the fully routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.withTimeout(h))
	}
	api("POST /api/transcribe", s.handleTranscribe)
	api("POST /api/generate-report", s.handleGenerateReport)
	api("GET /api/reports", s.handleListReports)
	api("GET /api/reports/{id}", s.handleGetReport)
	api("GET /api/reports/{id}/summary.txt", s.handleSummaryText)
	api("DELETE /api/reports/{id}", s.handleDeleteReport)
	api("POST /api/log-error", s.handleLogError)

	health.New(s.checkers...).Register(mux)
	if s.metricsHandler != nil && s.metricsPath != "" {
		mux.Handle("GET "+s.metricsPath, s.metricsHandler)
	}

	return observe.Middleware(s.metrics)(mux)
}

// withTimeout derives a request context bounded by the configured timeout.
func (s *Server) withTimeout(h http.Handler) http.Handler {
	if s.timeout <= 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts the
// server down gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", ln.Addr().String(), "tls", s.certFile != "")
		if s.certFile != "" {
			errCh <- srv.ServeTLS(ln, s.certFile, s.keyFile)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: serve: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}
