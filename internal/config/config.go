package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	TelegramBotToken string
	TelegramChatID   int64
	DatabaseURL      string
	RedisURL         string
	BybitBaseURL     string
	HTTPAddr         string
	APIKey           string

	ScanInterval    time.Duration
	MaxConcurrency  int
	RateLimitPerMin int
	ScanTimeout     time.Duration
	CandleInterval  string
	CandleLimit     int

	BaseThreshold          float64
	HighLiquidityStartHour int
	HighLiquidityEndHour   int
	AlertCooldown          time.Duration
	RetentionDays          int
	ComboCatalogPath       string
	OIFloor                float64

	LogLevel       string
	LogFormat      string
	TracingEnabled bool
	OTLPEndpoint   string
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		BybitBaseURL:     strings.TrimSpace(os.Getenv("BYBIT_BASE_URL")),
		HTTPAddr:         strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		APIKey:           os.Getenv("API_KEY"),
		ComboCatalogPath: strings.TrimSpace(os.Getenv("COMBO_CATALOG_PATH")),
		LogLevel:         strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		LogFormat:        strings.TrimSpace(os.Getenv("LOG_FORMAT")),
		OTLPEndpoint:     strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		CandleInterval:   strings.TrimSpace(os.Getenv("CANDLE_INTERVAL")),
	}

	if cfg.TelegramBotToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, Telegram bot disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, alerts are kept in memory only")
	}
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.BybitBaseURL == "" {
		cfg.BybitBaseURL = "https://api.bybit.com"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.CandleInterval == "" {
		cfg.CandleInterval = "15"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = n
		} else {
			log.Warn().Str("value", v).Msg("invalid TELEGRAM_CHAT_ID, notifications disabled")
		}
	}

	cfg.ScanInterval = time.Duration(intEnv("SCAN_INTERVAL_SECS", 900, 1, 86400)) * time.Second
	cfg.MaxConcurrency = intEnv("MAX_CONCURRENCY", 15, 1, 200)
	cfg.RateLimitPerMin = intEnv("RATE_LIMIT_PER_MIN", 100, 1, 10000)
	cfg.ScanTimeout = time.Duration(intEnv("SCAN_TIMEOUT_SECS", 60, 1, 3600)) * time.Second
	cfg.CandleLimit = intEnv("CANDLE_LIMIT", 50, 20, 1000)
	cfg.BaseThreshold = floatEnv("BASE_THRESHOLD", 7.0, 3, 10)
	cfg.HighLiquidityStartHour = intEnv("HIGH_LIQUIDITY_START_HOUR", 14, 0, 23)
	cfg.HighLiquidityEndHour = intEnv("HIGH_LIQUIDITY_END_HOUR", 16, 0, 23)
	cfg.AlertCooldown = time.Duration(intEnv("ALERT_COOLDOWN_SECS", 300, 0, 86400)) * time.Second
	cfg.RetentionDays = intEnv("RETENTION_DAYS", 30, 1, 3650)
	cfg.OIFloor = floatEnv("OI_FLOOR", 1_000_000, 0, 1e15)

	cfg.TracingEnabled = !strings.EqualFold(strings.TrimSpace(os.Getenv("TRACING_ENABLED")), "false")

	return cfg
}

// Retention is how long resolved and pending alerts are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func intEnv(key string, def, min, max int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		log.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("invalid config value, using default")
		return def
	}
	return n
}

func floatEnv(key string, def, min, max float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < min || n > max {
		log.Warn().Str("key", key).Str("value", v).Float64("default", def).Msg("invalid config value, using default")
		return def
	}
	return n
}
