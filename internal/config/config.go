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
	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for the exchange sandbox.
type Config struct {
	Port            int
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	TakerFee       decimal.Decimal
	MakerFee       decimal.Decimal
	MaxQueueDepth  int
	MaxDepthAge    time.Duration
	DefaultAccount string

	Feed    FeedConfig
	Markets Markets

	DatabaseURL  string
	KafkaBrokers []string
	KafkaTopic   string
}

// FeedConfig configures the Binance market-data adapters.
type FeedConfig struct {
	Enabled           bool
	APIBase           string
	WSBase            string
	PollInterval      time.Duration
	DepthLimit        int
	RequestsPerSecond float64
	ReconnectDelay    time.Duration
	MaxRetries        int
}

// Load reads a .env file when present, then configuration from environment
// variables. It applies defaults and validates values, returning an error
// for any invalid value.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	cfg := &Config{
		Port:           port,
		LogLevel:       logLevel,
		DefaultAccount: getStr("DEFAULT_ACCOUNT", "demo"),
		DatabaseURL:    getStr("DATABASE_URL", ""),
		KafkaBrokers:   getList("KAFKA_BROKERS"),
		KafkaTopic:     getStr("KAFKA_TOPIC", "spotsim.events"),
		Feed: FeedConfig{
			APIBase: strings.TrimRight(getStr("BINANCE_API_BASE", "https://api.binance.com"), "/"),
			WSBase:  strings.TrimRight(getStr("BINANCE_WS_BASE", "wss://stream.binance.com:9443"), "/"),
		},
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"READ_TIMEOUT", 5 * time.Second, &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", 10 * time.Second, &cfg.WriteTimeout},
		{"IDLE_TIMEOUT", 60 * time.Second, &cfg.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", 10 * time.Second, &cfg.ShutdownTimeout},
		{"MAX_DEPTH_AGE", 0, &cfg.MaxDepthAge},
		{"POLL_INTERVAL", 15 * time.Second, &cfg.Feed.PollInterval},
		{"WS_RECONNECT_DELAY", time.Second, &cfg.Feed.ReconnectDelay},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", d.key)
		}
		*d.dst = v
	}
	if cfg.Feed.PollInterval == 0 {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: must be positive")
	}

	if cfg.TakerFee, err = getRate("TAKER_FEE", "0.001"); err != nil {
		return nil, fmt.Errorf("invalid TAKER_FEE: %w", err)
	}
	if cfg.MakerFee, err = getRate("MAKER_FEE", "0.001"); err != nil {
		return nil, fmt.Errorf("invalid MAKER_FEE: %w", err)
	}

	if cfg.MaxQueueDepth, err = getInt("MAX_QUEUE_DEPTH", 100); err != nil || cfg.MaxQueueDepth < 1 {
		return nil, fmt.Errorf("invalid MAX_QUEUE_DEPTH: must be a positive integer")
	}
	if cfg.Feed.DepthLimit, err = getInt("DEPTH_LIMIT", 100); err != nil || !validDepthLimit(cfg.Feed.DepthLimit) {
		return nil, fmt.Errorf("invalid DEPTH_LIMIT: must be one of 5, 10, 20, 50, 100, 500, 1000, 5000")
	}
	if cfg.Feed.MaxRetries, err = getInt("WS_MAX_RETRIES", 5); err != nil || cfg.Feed.MaxRetries < 0 {
		return nil, fmt.Errorf("invalid WS_MAX_RETRIES: must be a non-negative integer")
	}
	if cfg.Feed.RequestsPerSecond, err = getFloat("REQUESTS_PER_SECOND", 5); err != nil || cfg.Feed.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("invalid REQUESTS_PER_SECOND: must be a positive number")
	}
	if cfg.Feed.Enabled, err = getBool("FEED_ENABLED", false); err != nil {
		return nil, fmt.Errorf("invalid FEED_ENABLED: %w", err)
	}

	if path := getStr("MARKETS_FILE", ""); path != "" {
		if cfg.Markets, err = LoadMarkets(path); err != nil {
			return nil, fmt.Errorf("invalid MARKETS_FILE: %w", err)
		}
	} else {
		cfg.Markets = DefaultMarkets()
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

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
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

// getRate parses a fee rate in [0, 1).
func getRate(key, defaultVal string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getStr(key, defaultVal))
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be in [0, 1)", d)
	}
	return d, nil
}

// getList splits a comma-separated value, dropping empty entries.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// validDepthLimit reports whether n is a limit the Binance depth endpoint
// accepts.
func validDepthLimit(n int) bool {
	switch n {
	case 5, 10, 20, 50, 100, 500, 1000, 5000:
		return true
	}
	return false
}
