package config

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds all configuration for the application.
type Config struct {
	AppEnv   string
	DBPath   string
	DBDriver string

	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SeriesCacheTTL time.Duration

	GRPCPort              int
	GRPCReflectionEnabled bool
	GRPCLoggingEnabled    bool
	GRPCMaxRecvMsgBytes   int
	GRPCKeepaliveTime     time.Duration

	MetricsAddr string

	ReviewWorkers        int
	ReviewQueueSize      int
	ReviewProcessTimeout time.Duration

	SnapshotInterval    time.Duration
	SnapshotConcurrency int

	LLM LLMConfig

	OTel OTelConfig
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	RateRPS     float64
	RateBurst   int
}

type OTelConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

// LoadFromEnv loads configuration from environment variables. Values that
// fail to parse fall back to their defaults.
func LoadFromEnv() *Config {
	return &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		DBPath:   getEnv("DB_PATH", "file:./data/reviews.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"),
		DBDriver: getEnv("DB_DRIVER", "sqlite3"),

		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getInt("LOG_MAX_BACKUPS", 30),
		LogMaxAgeDays: getInt("LOG_MAX_AGE_DAYS", 90),

		RedisAddr:      getEnvAllowEmpty("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getInt("REDIS_DB", 0),
		SeriesCacheTTL: getDuration("SERIES_CACHE_TTL", time.Minute),

		GRPCPort:              getInt("GRPC_PORT", 50051),
		GRPCReflectionEnabled: getBool("GRPC_REFLECTION_ENABLED", false),
		GRPCLoggingEnabled:    getBool("GRPC_LOGGING_ENABLED", true),
		GRPCMaxRecvMsgBytes:   getInt("GRPC_MAX_RECV_MSG_BYTES", 4<<20),
		GRPCKeepaliveTime:     getDuration("GRPC_KEEPALIVE_TIME", 2*time.Hour),

		MetricsAddr: getEnvAllowEmpty("METRICS_ADDR", ":9090"),

		ReviewWorkers:        getInt("REVIEW_WORKERS", 4),
		ReviewQueueSize:      getInt("REVIEW_QUEUE_SIZE", 256),
		ReviewProcessTimeout: getDuration("REVIEW_PROCESS_TIMEOUT", 0),

		SnapshotInterval:    getDuration("SNAPSHOT_INTERVAL", 15*time.Minute),
		SnapshotConcurrency: getInt("SNAPSHOT_CONCURRENCY", 5),

		LLM: LLMConfig{
			APIKey:      getEnv("LLM_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			Temperature: getFloat("LLM_TEMPERATURE", 0.2),
			MaxTokens:   getInt("LLM_MAX_TOKENS", 2048),
			RateRPS:     getFloat("LLM_RATE_RPS", 2),
			RateBurst:   getInt("LLM_RATE_BURST", 4),
		},

		OTel: OTelConfig{
			Enabled:     getBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "qa-review-engine"),
			SampleRatio: getFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
}

// NewLogger creates a new Zap logger based on the config. When LogFile is set
// Info and above are also written as JSON to a rotated file.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.AppEnv == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil || cfg.LogFile == "" {
		return logger, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
		}),
		zap.InfoLevel,
	)
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvAllowEmpty lets an explicitly empty variable override the fallback.
func getEnvAllowEmpty(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
