package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv builds a [Config] entirely from environment variables, applies the
// same defaults as [LoadFromReader], and validates the result. This is the
// entry point used by cmd/voicereceptiond, which is configured purely
// through the environment per twelve-factor convention; [Load] remains
// available for tests and for operators who prefer a YAML file checked into
// their deployment repo.
//
// Recognised variables:
//
//	PORT, PUBLIC_URL, LOG_LEVEL
//	DATA_DIR
//	ENCRYPTION_KEY (hex-encoded, 32 bytes), ADMIN_API_KEY
//	LLM_PROVIDER, LLM_API_KEY, LLM_MODEL
//	STT_PROVIDER, STT_API_KEY
//	TTS_PROVIDER, TTS_API_KEY
//	COORDINATOR_URL
//	GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET
//	OUTLOOK_CLIENT_ID, OUTLOOK_CLIENT_SECRET, OUTLOOK_TENANT_ID
//	CALENDAR_SYNC_INTERVAL_MIN
//	ASR_CONFIDENCE_THRESHOLD, SILENCE_TIMEOUT_MS, MAX_CALL_DURATION_MS
//	FEATURE_<NAME>=true|false (repeatable; NAME is lowercased into the
//	Features map)
func FromEnv() (*Config, error) {
	cfg := &Config{Features: map[string]bool{}}

	cfg.Server.PublicURL = os.Getenv("PUBLIC_URL")
	cfg.Server.LogLevel = LogLevel(os.Getenv("LOG_LEVEL"))
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: PORT=%q: %w", v, err)
		}
		cfg.Server.Port = p
	}

	cfg.Store.DataDir = os.Getenv("DATA_DIR")

	cfg.Security.EncryptionKeyHex = os.Getenv("ENCRYPTION_KEY")
	cfg.Security.AdminAPIKey = os.Getenv("ADMIN_API_KEY")

	cfg.Providers.LLM = ProviderEntry{
		Name:   os.Getenv("LLM_PROVIDER"),
		APIKey: os.Getenv("LLM_API_KEY"),
		Model:  os.Getenv("LLM_MODEL"),
	}
	cfg.Providers.STT = ProviderEntry{
		Name:   os.Getenv("STT_PROVIDER"),
		APIKey: os.Getenv("STT_API_KEY"),
	}
	cfg.Providers.TTS = ProviderEntry{
		Name:   os.Getenv("TTS_PROVIDER"),
		APIKey: os.Getenv("TTS_API_KEY"),
	}

	cfg.Coordinator.RedisURL = os.Getenv("COORDINATOR_URL")

	cfg.Calendar.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.Calendar.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.Calendar.OutlookClientID = os.Getenv("OUTLOOK_CLIENT_ID")
	cfg.Calendar.OutlookClientSecret = os.Getenv("OUTLOOK_CLIENT_SECRET")
	cfg.Calendar.OutlookTenantID = os.Getenv("OUTLOOK_TENANT_ID")

	if v := os.Getenv("CALENDAR_SYNC_INTERVAL_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: CALENDAR_SYNC_INTERVAL_MIN=%q: %w", v, err)
		}
		cfg.Calendar.SyncIntervalMinutes = n
	}

	if v := os.Getenv("ASR_CONFIDENCE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("config: ASR_CONFIDENCE_THRESHOLD=%q: %w", v, err)
		}
		cfg.Call.ASRConfidenceThreshold = f
	}
	if v := os.Getenv("SILENCE_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: SILENCE_TIMEOUT_MS=%q: %w", v, err)
		}
		cfg.Call.SilenceTimeout = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("MAX_CALL_DURATION_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: MAX_CALL_DURATION_MS=%q: %w", v, err)
		}
		cfg.Call.MaxCallDuration = time.Duration(ms) * time.Millisecond
	}

	for _, kv := range os.Environ() {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "FEATURE_") {
			continue
		}
		flag := strings.ToLower(strings.TrimPrefix(name, "FEATURE_"))
		cfg.Features[flag] = val == "true" || val == "1"
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
