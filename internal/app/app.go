// Package app wires the EMR subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates the provider failover
// groups, the report store, the vocabulary and the extraction strategy;
// the service methods ([App.Transcribe], [App.GenerateReport], ...) run the
// dictation-to-summary pipeline; and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithMetrics, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nv-mldev/emr/internal/clientlog"
	"github.com/nv-mldev/emr/internal/config"
	"github.com/nv-mldev/emr/internal/health"
	"github.com/nv-mldev/emr/internal/observe"
	"github.com/nv-mldev/emr/internal/report"
	"github.com/nv-mldev/emr/internal/resilience"
	"github.com/nv-mldev/emr/pkg/provider/llm"
	"github.com/nv-mldev/emr/pkg/provider/stt"
	"github.com/nv-mldev/emr/pkg/store"
	"github.com/nv-mldev/emr/pkg/store/postgres"
)

// ErrNoTranscriber is returned by [App.Transcribe] when no speech-to-text
// provider is configured.
var ErrNoTranscriber = errors.New("app: no speech-to-text provider configured")

// ErrInvalidAudio is returned by [App.Transcribe] when the upload is not a
// 16-bit PCM WAV file.
var ErrInvalidAudio = errors.New("app: invalid audio upload")

// Named pairs a provider with the name it is configured under.
type Named[T any] struct {
	Name     string
	Provider T
}

// Providers holds the configured provider instances, primary first. Empty
// slices mean the capability is not configured. Populated by main.go via the
// config registry.
type Providers struct {
	STT []Named[stt.Provider]
	LLM []Named[llm.Provider]
}

// App owns all subsystem lifetimes and serves the dictation pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	store     store.Store
	clientLog *clientlog.FileStore
	stt       *resilience.STTFallback
	llm       *resilience.LLMFallback
	renderer  *report.Renderer
	metrics   *observe.Metrics
	level     *slog.LevelVar
	log       *slog.Logger
	now       func() time.Time
	newID     func() string

	// proc holds the hot-reloadable extraction state.
	proc atomic.Pointer[processing]

	checkers []health.Checker

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithStore injects a report store instead of creating one from
// cfg.Storage.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.ApplyChange] adjust the log level at runtime.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithClock overrides the time source used for report timestamps and the
// admission date.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithIDGenerator overrides the report ID generator. Default: random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(a *App) { a.newID = fn }
}

// New creates an App by wiring all subsystems together. Use functional
// options to inject test doubles; otherwise real implementations are created
// from cfg.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Provider failover groups ──────────────────────────────────────
	a.initProviders()

	// ── 2. Report store ──────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, err
	}

	// ── 3. Vocabulary, correction and extraction ─────────────────────────
	proc, err := a.buildProcessing(ctx, cfg)
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.proc.Store(proc)

	// ── 4. Renderer ──────────────────────────────────────────────────────
	a.renderer = report.New(report.WithClock(a.now), report.WithLogger(a.log))

	// ── 5. Readiness checks ──────────────────────────────────────────────
	a.initCheckers()

	a.log.Info("app initialised",
		"stt_providers", len(providers.STT),
		"llm_providers", len(providers.LLM),
		"strategy", proc.strategyName,
		"vocabulary_terms", len(proc.vocabulary),
	)
	return a, nil
}

// initProviders builds one failover group per capability. Every provider is
// instrumented and every breaker transition is counted.
func (a *App) initProviders() {
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  a.cfg.Resilience.MaxFailures,
			ResetTimeout: a.cfg.Resilience.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				a.log.Warn("circuit breaker state change", "breaker", name, "from", from, "to", to)
				a.metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
			},
		},
	}

	for i, p := range a.providers.STT {
		if c, ok := p.Provider.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
		inst := &instrumentedSTT{name: p.Name, provider: p.Provider, metrics: a.metrics}
		if i == 0 {
			a.stt = resilience.NewSTTFallback(inst, "stt/"+p.Name, fbCfg)
			continue
		}
		a.stt.AddFallback("stt/"+p.Name, inst)
	}
	for i, p := range a.providers.LLM {
		inst := &instrumentedLLM{name: p.Name, provider: p.Provider, metrics: a.metrics}
		if i == 0 {
			a.llm = resilience.NewLLMFallback(inst, "llm/"+p.Name, fbCfg)
			continue
		}
		a.llm.AddFallback("llm/"+p.Name, inst)
	}
}

// initStore opens the PostgreSQL store when a DSN is configured and falls
// back to an in-memory store otherwise. It also opens the client error log.
func (a *App) initStore(ctx context.Context) error {
	if path := a.cfg.Storage.ClientErrorLog; path != "" {
		a.clientLog = clientlog.NewFileStore(path)
	}
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		a.log.Warn("storage.postgres_dsn not set, reports are kept in memory only")
		a.store = store.NewMemStore()
		return nil
	}
	pg, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return fmt.Errorf("app: open report store: %w", err)
	}
	a.store = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	a.log.Info("report store connected", "backend", "postgres")
	return nil
}

// initCheckers builds the readiness checks for the configured subsystems.
func (a *App) initCheckers() {
	if p, ok := a.store.(health.Pinger); ok {
		a.checkers = append(a.checkers, health.PingChecker("store", p))
	}
	if a.stt != nil {
		a.checkers = append(a.checkers, health.BreakerChecker("stt", breakerStates(a.stt.Group())))
	}
	if a.llm != nil {
		a.checkers = append(a.checkers, health.BreakerChecker("llm", breakerStates(a.llm.Group())))
	}
}

// Checkers returns the readiness checks for the application's dependencies.
func (a *App) Checkers() []health.Checker {
	return a.checkers
}

// breakerStates adapts a failover group to [health.BreakerChecker].
func breakerStates[T any](g *resilience.FallbackGroup[T]) func() map[string]string {
	return func() map[string]string {
		states := g.States()
		out := make(map[string]string, len(states))
		for name, s := range states {
			out[name] = s.String()
		}
		return out
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}
