// Command emr serves the dictation-to-discharge-summary API.
//
// Server mode (default) loads the YAML configuration, builds the configured
// speech-to-text and LLM providers and serves the HTTP API until interrupted:
//
//	emr -config config.yaml
//
// Offline mode renders a discharge summary for a transcript file without
// starting the server or contacting any provider:
//
//	emr -transcript notes.txt [-json]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/nv-mldev/emr/internal/api"
	"github.com/nv-mldev/emr/internal/app"
	"github.com/nv-mldev/emr/internal/config"
	"github.com/nv-mldev/emr/internal/observe"
	"github.com/nv-mldev/emr/internal/vocab"
	"github.com/nv-mldev/emr/pkg/provider/llm"
	"github.com/nv-mldev/emr/pkg/provider/llm/anyllm"
	oaillm "github.com/nv-mldev/emr/pkg/provider/llm/openai"
	"github.com/nv-mldev/emr/pkg/provider/stt"
	"github.com/nv-mldev/emr/pkg/provider/stt/deepgram"
	"github.com/nv-mldev/emr/pkg/provider/stt/whisper"
	"github.com/nv-mldev/emr/pkg/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// keywordBoost is the Deepgram boost applied to vocabulary drug names.
const keywordBoost = 1.5

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	transcriptPath := flag.String("transcript", "", "render a summary for this transcript file (- for stdin) and exit")
	asJSON := flag.Bool("json", false, "with -transcript, print the structured record and summary as JSON")
	flag.Parse()

	if *transcriptPath != "" {
		return runOffline(*configPath, *transcriptPath, *asJSON)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "emr: config file %q not found, pass -config or create one\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "emr: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("emr starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	keywords, err := drugKeywords(ctx, cfg.Extraction.VocabularyFile)
	if err != nil {
		slog.Error("failed to load vocabulary", "err", err)
		return 1
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, keywords)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLevelVar(&level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(c config.Change) {
		_ = application.ApplyChange(ctx, c)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	opts := []api.Option{
		api.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		api.WithRequestTimeout(cfg.Server.RequestTimeout),
		api.WithHealthCheckers(application.Checkers()...),
		api.WithMetricsHandler(cfg.Telemetry.MetricsPath, observe.MetricsHandler(nil)),
	}
	if tls := cfg.Server.TLS; tls != nil {
		opts = append(opts, api.WithTLS(tls.CertFile, tls.KeyFile))
	}
	server := api.New(application, opts...)

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := server.ListenAndServe(ctx, cfg.Server.ListenAddr)
	if runErr != nil {
		slog.Error("server error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Offline mode ──────────────────────────────────────────────────────────────

// runOffline renders a summary for one transcript with the rule-based
// extractor. A missing config file is not an error here; the defaults apply.
func runOffline(configPath, transcriptPath string, asJSON bool) int {
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "emr: %v\n", err)
		return 1
	}
	cfg.Extraction.Strategy = config.StrategyRuleBased
	cfg.Extraction.LLMCorrection = false

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.LogLevel.Level()})))

	text, err := readTranscript(transcriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "emr: %v\n", err)
		return 1
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, nil, app.WithStore(store.NewMemStore()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "emr: %v\n", err)
		return 1
	}
	defer func() { _ = application.Shutdown(ctx) }()

	doc, err := application.Summarise(ctx, text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "emr: %v\n", err)
		return 1
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			fmt.Fprintf(os.Stderr, "emr: encode: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Print(doc.Summary)
	return 0
}

func readTranscript(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(b), nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// keywords are the vocabulary drug names boosted by providers that support
// keyword hints.
func registerBuiltinProviders(reg *config.Registry, keywords []string) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai uses the official SDK so OpenAI-compatible gateways with an
	// organisation header or custom timeout work.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		if d, err := time.ParseDuration(optString(entry.Options, "timeout")); err == nil && d > 0 {
			opts = append(opts, oaillm.WithTimeout(d))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile all
	// share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if len(keywords) > 0 {
			kw := make([]deepgram.Keyword, len(keywords))
			for i, k := range keywords {
				kw[i] = deepgram.Keyword{Term: k, Boost: keywordBoost}
			}
			opts = append(opts, deepgram.WithKeywords(kw))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	for _, kind := range []string{"llm", "stt"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the primary and fallback providers named in
// cfg using the registry, primary first.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if cfg.Providers.STT.Name != "" {
		for _, entry := range append([]config.ProviderEntry{cfg.Providers.STT}, cfg.Providers.STTFallbacks...) {
			p, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
			}
			ps.STT = append(ps.STT, app.Named[stt.Provider]{Name: entry.Name, Provider: p})
			slog.Info("provider created", "kind", "stt", "name", entry.Name)
		}
	}

	if cfg.Providers.LLM.Name != "" {
		for _, entry := range append([]config.ProviderEntry{cfg.Providers.LLM}, cfg.Providers.LLMFallbacks...) {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
			}
			ps.LLM = append(ps.LLM, app.Named[llm.Provider]{Name: entry.Name, Provider: p})
			slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
		}
	}

	return ps, nil
}

// drugKeywords returns the vocabulary drug names used as recognition hints.
func drugKeywords(ctx context.Context, vocabularyFile string) ([]string, error) {
	vs, err := vocab.NewDefaultStore(ctx, vocabularyFile)
	if err != nil {
		return nil, err
	}
	return vocab.Names(ctx, vs, vocab.KindDrug)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           EMR: startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	fmt.Printf("║  STT fallbacks   : %-19d ║\n", len(cfg.Providers.STTFallbacks))
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Printf("║  LLM fallbacks   : %-19d ║\n", len(cfg.Providers.LLMFallbacks))
	fmt.Printf("║  Extraction      : %-19s ║\n", cfg.Extraction.Strategy)
	storage := "memory"
	if cfg.Storage.PostgresDSN != "" {
		storage = "postgres"
	}
	fmt.Printf("║  Report store    : %-19s ║\n", storage)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
