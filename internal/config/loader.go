package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"anthropic", "openai", "mock"},
	"stt": {"deepgram", "mock"},
	"tts": {"elevenlabs", "mock"},
}

// defaultSyncIntervalMinutes is applied when Calendar.SyncIntervalMinutes is
// unset.
const defaultSyncIntervalMinutes = 15

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config]. Environment variables are not consulted.
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible production
// defaults. Called by both LoadFromReader and FromEnv so the two composition
// paths agree on defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = "./data"
	}
	if cfg.Call.ASRConfidenceThreshold == 0 {
		cfg.Call.ASRConfidenceThreshold = 0.6
	}
	if cfg.Call.SilenceTimeout == 0 {
		cfg.Call.SilenceTimeout = 1500_000_000 // 1.5s, in ns
	}
	if cfg.Call.MaxCallDuration == 0 {
		cfg.Call.MaxCallDuration = 600_000_000_000 // 10m, in ns
	}
	if cfg.Calendar.SyncIntervalMinutes == 0 {
		cfg.Calendar.SyncIntervalMinutes = defaultSyncIntervalMinutes
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Store.DataDir == "" {
		errs = append(errs, errors.New("store.data_dir must not be empty"))
	}

	if cfg.Security.EncryptionKeyHex != "" {
		key, err := hex.DecodeString(cfg.Security.EncryptionKeyHex)
		if err != nil {
			errs = append(errs, fmt.Errorf("security.encryption_key_hex is not valid hex: %w", err))
		} else if len(key) != 32 {
			errs = append(errs, fmt.Errorf("security.encryption_key_hex decodes to %d bytes; AES-256 requires 32", len(key)))
		}
	} else {
		slog.Warn("security.encryption_key_hex is empty; the credential vault cannot be used until one is configured")
	}

	if cfg.Coordinator.RedisURL == "" {
		slog.Warn("coordinator.redis_url is empty; running in degraded single-instance coordination mode")
	}

	if cfg.Call.ASRConfidenceThreshold < 0 || cfg.Call.ASRConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("call.asr_confidence_threshold %.2f is out of range [0, 1]", cfg.Call.ASRConfidenceThreshold))
	}

	if cfg.Calendar.SyncIntervalMinutes < 0 {
		errs = append(errs, fmt.Errorf("calendar.sync_interval_minutes %d must not be negative", cfg.Calendar.SyncIntervalMinutes))
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
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
