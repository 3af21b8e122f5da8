// Package config provides the configuration schema, loader, and provider
// registry for voicereceptiond.
//
// Static, rarely-changed settings (provider selection, store paths) are
// loaded from a YAML file via [Load]. Deployment-tunable knobs that operators
// expect to set per-environment (timeouts, feature flags, secrets) are read
// from the process environment via [FromEnv]. The two are alternative
// sources: each builds a complete [Config] on its own, and they are not
// merged.
package config

import "time"

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// Config is the root configuration structure for voicereceptiond.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Security    SecurityConfig    `yaml:"security"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Calendar    CalendarConfig    `yaml:"calendar"`
	Call        CallConfig        `yaml:"call"`
	Features    map[string]bool   `yaml:"features"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// Port is the TCP port the HTTP/WebSocket server listens on.
	Port int `yaml:"port"`

	// PublicURL is the externally-reachable base URL used to build callback
	// and media-stream URLs handed back to the telephony provider.
	PublicURL string `yaml:"public_url"`

	// LogLevel controls slog verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	// DataDir is the directory holding the shared registry database and all
	// per-tenant database files.
	DataDir string `yaml:"data_dir"`
}

// SecurityConfig holds secrets and access-control settings.
type SecurityConfig struct {
	// EncryptionKeyHex is the 32-byte (64 hex-char) AES-256 key used by the
	// credential vault to encrypt calendar OAuth tokens at rest.
	EncryptionKeyHex string `yaml:"encryption_key_hex"`

	// AdminAPIKey authorizes privileged operations: tenant provisioning and
	// the webhook signature bypass used in local development.
	AdminAPIKey string `yaml:"admin_api_key"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage, plus their credentials.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. Name selects the registered constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "anthropic", "deepgram", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// CoordinatorConfig configures the cross-instance coordination backend.
type CoordinatorConfig struct {
	// RedisURL is the Redis connection URL (e.g. "redis://host:6379/0").
	// Empty disables cross-instance coordination and falls back to an
	// in-process degraded mode — acceptable only for single-instance
	// deployments.
	RedisURL string `yaml:"redis_url"`

	// MaxGlobalActiveCalls caps concurrently admitted calls across every
	// tenant on the cluster. Zero means unbounded.
	MaxGlobalActiveCalls int `yaml:"max_global_active_calls"`

	// MaxTenantActiveCalls caps concurrently admitted calls for a single
	// tenant. Zero means unbounded.
	MaxTenantActiveCalls int `yaml:"max_tenant_active_calls"`

	// QueueEnabled allows admit_call to queue a call that exceeds a cap
	// instead of rejecting it outright.
	QueueEnabled bool `yaml:"queue_enabled"`

	// QueueMaxSize is the maximum length of a tenant's FIFO admission queue.
	QueueMaxSize int `yaml:"queue_max_size"`

	// SessionTTL is how long an admitted call's counters and session key
	// survive without a refresh_call before they are treated as stale.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// WebhookIdempotencyTTL is how long a mark_webhook_processed key is
	// retained before a redelivery would be treated as fresh again.
	WebhookIdempotencyTTL time.Duration `yaml:"webhook_idempotency_ttl"`
}

// CalendarConfig configures the calendar sync loop and the OAuth apps used
// to connect tenants' calendars.
type CalendarConfig struct {
	// SyncIntervalMinutes is how often each active tenant's appointment
	// cache is reconciled against its calendar provider.
	SyncIntervalMinutes int `yaml:"sync_interval_minutes"`

	// GoogleClientID/GoogleClientSecret identify the OAuth app registered in
	// the Google Cloud console that tenants consent to when connecting a
	// Google Calendar. Shared across every tenant; only the resulting
	// per-tenant tokens differ.
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`

	// OutlookClientID/OutlookClientSecret/OutlookTenantID identify the Azure
	// AD app registration backing Microsoft Outlook/Graph calendar
	// connections.
	OutlookClientID     string `yaml:"outlook_client_id"`
	OutlookClientSecret string `yaml:"outlook_client_secret"`
	OutlookTenantID     string `yaml:"outlook_tenant_id"`
}

// CallConfig holds voice-session tuning knobs shared by every tenant.
type CallConfig struct {
	// ASRConfidenceThreshold is the minimum STT confidence accepted as a
	// reliable final transcript; below this the orchestrator asks the
	// caller to repeat themselves rather than acting on a low-confidence
	// guess.
	ASRConfidenceThreshold float64 `yaml:"asr_confidence_threshold"`

	// SilenceTimeout is how long the orchestrator waits after the caller
	// stops speaking, with no Final transcript arriving, before treating the
	// turn as complete.
	SilenceTimeout time.Duration `yaml:"silence_timeout"`

	// MaxCallDuration is the hard ceiling on a single call's wall-clock
	// duration, after which the call is terminated unconditionally.
	MaxCallDuration time.Duration `yaml:"max_call_duration"`
}
