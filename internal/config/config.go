package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/efreitasn/venue/internal/domain"
	"github.com/efreitasn/venue/internal/engine"
)

// Config holds all runtime configuration for the venue.
type Config struct {
	Port            int
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	WebhookTimeout  time.Duration

	ResidualPolicy     engine.Policy
	DefaultMarketState domain.MarketState
	SettlementInterval time.Duration
	MaxExecs           int

	DataDir          string // empty keeps the journal in memory
	JournalQueueSize int
	JournalSync      bool

	NotifyQueueSize int
	KafkaBrokers    []string
	KafkaTopic      string

	RefDataFile   string
	AccountGroups map[string]string // account mnemonic -> settlement group
	CORSOrigins   []string
}

// LoadDotEnv preloads variables from a .env file. Variables already set in
// the environment win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	cfg := &Config{Port: port, LogLevel: logLevel}
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"READ_TIMEOUT", 5 * time.Second, &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", 10 * time.Second, &cfg.WriteTimeout},
		{"IDLE_TIMEOUT", 60 * time.Second, &cfg.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", 10 * time.Second, &cfg.ShutdownTimeout},
		{"WEBHOOK_TIMEOUT", 5 * time.Second, &cfg.WebhookTimeout},
		{"SETTLEMENT_INTERVAL", 1 * time.Minute, &cfg.SettlementInterval},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	policy, ok := engine.ParsePolicy(getStr("RESIDUAL_POLICY", string(engine.PolicyRest)))
	if !ok {
		return nil, fmt.Errorf("invalid RESIDUAL_POLICY: %q, must be one of: rest, ioc, fok", os.Getenv("RESIDUAL_POLICY"))
	}
	cfg.ResidualPolicy = policy

	state, ok := domain.ParseMarketState(getStr("DEFAULT_MARKET_STATE", "trading"))
	if !ok || state == domain.MarketStateClosed {
		return nil, fmt.Errorf("invalid DEFAULT_MARKET_STATE: %q, must be one of: created, trading, suspended", os.Getenv("DEFAULT_MARKET_STATE"))
	}
	cfg.DefaultMarketState = state

	sizes := []struct {
		key string
		def int
		dst *int
	}{
		{"MAX_EXECS", 100, &cfg.MaxExecs},
		{"JOURNAL_QUEUE_SIZE", 1024, &cfg.JournalQueueSize},
		{"NOTIFY_QUEUE_SIZE", 1024, &cfg.NotifyQueueSize},
	}
	for _, s := range sizes {
		v, err := getInt(s.key, s.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", s.key, err)
		}
		if v < 1 {
			return nil, fmt.Errorf("invalid %s: %d, must be positive", s.key, v)
		}
		*s.dst = v
	}

	cfg.JournalSync, err = getBool("JOURNAL_SYNC", false)
	if err != nil {
		return nil, fmt.Errorf("invalid JOURNAL_SYNC: %w", err)
	}

	cfg.DataDir = getStr("DATA_DIR", "")
	cfg.KafkaBrokers = getList("KAFKA_BROKERS")
	cfg.KafkaTopic = getStr("KAFKA_TOPIC", "venue.events")
	cfg.RefDataFile = getStr("REFDATA_FILE", "")
	cfg.AccountGroups, err = getPairs("ACCOUNT_GROUPS")
	if err != nil {
		return nil, fmt.Errorf("invalid ACCOUNT_GROUPS: %w", err)
	}
	cfg.CORSOrigins = getList("CORS_ORIGINS")
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	return cfg, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated value, dropping empty items.
func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getPairs parses a comma-separated list of key=value items.
func getPairs(key string) (map[string]string, error) {
	out := make(map[string]string)
	for _, item := range getList(key) {
		k, v, ok := strings.Cut(item, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("%q is not of the form name=value", item)
		}
		out[k] = v
	}
	return out, nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
