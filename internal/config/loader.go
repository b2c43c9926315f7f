package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nv-mldev/emr/pkg/provider/stt"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper", "whisper-native"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given: rule-based
// extraction, in-memory storage and no providers.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.MaxUploadBytes == 0 {
		s.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}

	t := &cfg.Transcribe
	if t.ChunkThresholdBytes == 0 {
		t.ChunkThresholdBytes = stt.DefaultChunkThreshold
	}
	if t.ChunkBytes == 0 {
		t.ChunkBytes = stt.DefaultChunkBytes
	}
	if t.Concurrency == 0 {
		t.Concurrency = stt.DefaultChunkConcurrency
	}

	if cfg.Extraction.Strategy == "" {
		cfg.Extraction.Strategy = StrategyRuleBased
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.MetricsPath == "" {
		cfg.Telemetry.MetricsPath = DefaultMetricsPath
	}
}

// ChunkPolicy returns the upload policy described by cfg.
func (c *Config) ChunkPolicy() stt.ChunkPolicy {
	return stt.ChunkPolicy{
		MaxBytes:    c.Server.MaxUploadBytes,
		Threshold:   c.Transcribe.ChunkThresholdBytes,
		ChunkBytes:  c.Transcribe.ChunkBytes,
		Concurrency: c.Transcribe.Concurrency,
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout %s must not be negative", cfg.Server.RequestTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", fb.Name)
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	if len(cfg.Providers.STTFallbacks) > 0 && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt_fallbacks requires providers.stt"))
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; audio transcription will be unavailable")
	}

	// Transcription
	t := cfg.Transcribe
	if t.ChunkThresholdBytes < 0 || t.ChunkBytes < 0 || t.Concurrency < 0 {
		errs = append(errs, errors.New("transcription sizes and concurrency must not be negative"))
	}
	if t.ChunkBytes > 0 && t.ChunkThresholdBytes > 0 && t.ChunkBytes > t.ChunkThresholdBytes {
		errs = append(errs, fmt.Errorf("transcription.chunk_bytes %d exceeds chunk_threshold_bytes %d", t.ChunkBytes, t.ChunkThresholdBytes))
	}

	// Extraction ↔ LLM cross-validation
	if cfg.Extraction.Strategy != "" && !cfg.Extraction.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("extraction.strategy %q is invalid; valid values: rule_based, llm", cfg.Extraction.Strategy))
	}
	if cfg.Extraction.Strategy == StrategyLLM && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("extraction.strategy llm requires providers.llm"))
	}
	if cfg.Extraction.LLMCorrection && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("extraction.llm_correction requires providers.llm"))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	// Organisation
	if org := cfg.Organisation; org != nil {
		for i, c := range org.EmergencyContacts {
			if strings.TrimSpace(c.Label) == "" || strings.TrimSpace(c.Number) == "" {
				errs = append(errs, fmt.Errorf("organisation.emergency_contacts[%d] requires label and number", i))
			}
		}
	}

	// Telemetry
	if p := cfg.Telemetry.MetricsPath; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", p))
	}

	// Storage
	if cfg.Storage.PostgresDSN == "" {
		slog.Debug("storage.postgres_dsn is empty; reports are kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
