package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/glyphoxa/internal/config"
)

const validYAML = `
server:
  port: 9090
  public_url: https://voice.example.com
  log_level: debug
store:
  data_dir: /var/lib/voicereceptiond
security:
  encryption_key_hex: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
providers:
  llm:
    name: anthropic
    api_key: sk-ant-test
  stt:
    name: deepgram
    api_key: dg-test
  tts:
    name: elevenlabs
    api_key: el-test
coordinator:
  redis_url: redis://localhost:6379/0
call:
  asr_confidence_threshold: 0.7
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Call.ASRConfidenceThreshold != 0.7 {
		t.Errorf("call.asr_confidence_threshold = %v, want 0.7", cfg.Call.ASRConfidenceThreshold)
	}
	// Defaults fill in unset duration fields.
	if cfg.Call.SilenceTimeout == 0 {
		t.Error("expected default silence timeout to be applied")
	}
	if cfg.Calendar.SyncIntervalMinutes != 15 {
		t.Errorf("calendar.sync_interval_minutes default = %d, want 15", cfg.Calendar.SyncIntervalMinutes)
	}
}

func TestLoadFromReaderInvalidLogLevel(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`server: {log_level: "loud"}`))
	if err == nil {
		t.Fatal("expected error for invalid log_level")
	}
}

func TestLoadFromReaderInvalidEncryptionKeyLength(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`security: {encryption_key_hex: "abcd"}`))
	if err == nil {
		t.Fatal("expected error for short encryption key")
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("bogus_field: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestValidatePortRange(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Port = 70000
	cfg.Store.DataDir = "/tmp"
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}
