package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/efreitasn/venue/internal/domain"
	"github.com/efreitasn/venue/internal/engine"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.SettlementInterval != time.Minute {
		t.Errorf("SettlementInterval = %v, want 1m", cfg.SettlementInterval)
	}
	if cfg.WebhookTimeout != 5*time.Second {
		t.Errorf("WebhookTimeout = %v, want 5s", cfg.WebhookTimeout)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", cfg.IdleTimeout)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
	if cfg.ResidualPolicy != engine.PolicyRest {
		t.Errorf("ResidualPolicy = %q, want rest", cfg.ResidualPolicy)
	}
	if cfg.DefaultMarketState != domain.MarketStateTrading {
		t.Errorf("DefaultMarketState = %v, want trading", cfg.DefaultMarketState)
	}
	if cfg.MaxExecs != 100 || cfg.JournalQueueSize != 1024 || cfg.NotifyQueueSize != 1024 {
		t.Errorf("sizes = %d/%d/%d", cfg.MaxExecs, cfg.JournalQueueSize, cfg.NotifyQueueSize)
	}
	if cfg.DataDir != "" || cfg.JournalSync {
		t.Errorf("journal = %q sync=%v, want in-memory", cfg.DataDir, cfg.JournalSync)
	}
	if len(cfg.KafkaBrokers) != 0 || cfg.KafkaTopic != "venue.events" {
		t.Errorf("kafka = %v %q", cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if len(cfg.AccountGroups) != 0 {
		t.Errorf("AccountGroups = %v, want none", cfg.AccountGroups)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SETTLEMENT_INTERVAL", "500ms")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")
	t.Setenv("RESIDUAL_POLICY", "fok")
	t.Setenv("DEFAULT_MARKET_STATE", "created")
	t.Setenv("DATA_DIR", "/var/lib/venue")
	t.Setenv("JOURNAL_SYNC", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("MAX_EXECS", "25")
	t.Setenv("ACCOUNT_GROUPS", "MARAYL=DESK1, GOSAYL=DESK1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.SettlementInterval != 500*time.Millisecond {
		t.Errorf("SettlementInterval = %v, want 500ms", cfg.SettlementInterval)
	}
	if cfg.WebhookTimeout != 3*time.Second {
		t.Errorf("WebhookTimeout = %v, want 3s", cfg.WebhookTimeout)
	}
	if cfg.ResidualPolicy != engine.PolicyFOK {
		t.Errorf("ResidualPolicy = %q, want fok", cfg.ResidualPolicy)
	}
	if cfg.DefaultMarketState != domain.MarketStateCreated {
		t.Errorf("DefaultMarketState = %v, want created", cfg.DefaultMarketState)
	}
	if cfg.DataDir != "/var/lib/venue" || !cfg.JournalSync {
		t.Errorf("journal = %q sync=%v", cfg.DataDir, cfg.JournalSync)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Errorf("KafkaBrokers = %q", cfg.KafkaBrokers)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.MaxExecs != 25 {
		t.Errorf("MaxExecs = %d, want 25", cfg.MaxExecs)
	}
	if len(cfg.AccountGroups) != 2 || cfg.AccountGroups["GOSAYL"] != "DESK1" {
		t.Errorf("AccountGroups = %v", cfg.AccountGroups)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"PORT":                 "not-a-number",
		"LOG_LEVEL":            "verbose",
		"RESIDUAL_POLICY":      "gtc",
		"DEFAULT_MARKET_STATE": "closed",
		"JOURNAL_SYNC":         "sometimes",
		"MAX_EXECS":            "0",
		"JOURNAL_QUEUE_SIZE":   "-1",
		"NOTIFY_QUEUE_SIZE":    "many",
		"ACCOUNT_GROUPS":       "MARAYL",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, val)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	for _, key := range durationEnvKeys {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, "not-a-duration")

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for invalid %s", key)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PORT=7070\nKAFKA_TOPIC=fills\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KAFKA_TOPIC", "from-env")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want 7070 from the file", cfg.Port)
	}
	if cfg.KafkaTopic != "from-env" {
		t.Errorf("KafkaTopic = %q, the environment must win", cfg.KafkaTopic)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file err = %v", err)
	}
}
