package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	NodeID      int64

	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis RedisConfig

	Gateway GatewayConfig

	Scheduler SchedulerConfig

	MetricsPush MetricsPushConfig

	PolicyFile string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// ObservabilityConfig covers logging and the OTLP exporters.
type ObservabilityConfig struct {
	LogLevel      string
	Stacktraces   bool
	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string
	SamplingRatio float64
}

type GatewayConfig struct {
	Provider  string
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

type SchedulerConfig struct {
	Enabled            bool
	DailyInterval      time.Duration
	WeeklyInterval     time.Duration
	RecoveryInterval   time.Duration
	Concurrency        int
	BatchSize          int
	StaleProcessingAge time.Duration
	JobTimeout         time.Duration
	EnabledJobs        []string
}

type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "payflow"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		NodeID:       getenvInt64("NODE_ID", 1),

		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			OtelEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "payflow.db"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},

		Gateway: GatewayConfig{
			Provider:  strings.ToLower(strings.TrimSpace(getenv("GATEWAY_PROVIDER", "sandbox"))),
			BaseURL:   strings.TrimSpace(getenv("GATEWAY_BASE_URL", "https://api.tosspayments.com")),
			SecretKey: strings.TrimSpace(getenv("GATEWAY_SECRET_KEY", "")),
			Timeout:   getenvDuration("GATEWAY_TIMEOUT", 10*time.Second),
		},

		Scheduler: SchedulerConfig{
			Enabled:            getenvBool("SCHEDULER_ENABLED", true),
			DailyInterval:      getenvDuration("SCHEDULER_DAILY_INTERVAL", 24*time.Hour),
			WeeklyInterval:     getenvDuration("SCHEDULER_WEEKLY_INTERVAL", 7*24*time.Hour),
			RecoveryInterval:   getenvDuration("SCHEDULER_RECOVERY_INTERVAL", time.Hour),
			Concurrency:        int(getenvInt64("SCHEDULER_CONCURRENCY", 4)),
			BatchSize:          int(getenvInt64("SCHEDULER_BATCH_SIZE", 100)),
			StaleProcessingAge: getenvDuration("SCHEDULER_STALE_PROCESSING_AGE", 30*time.Minute),
			JobTimeout:         getenvDuration("SCHEDULER_JOB_TIMEOUT", 10*time.Minute),
			EnabledJobs:        getenvList("SCHEDULER_JOBS"),
		},

		MetricsPush: MetricsPushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
		},

		PolicyFile: strings.TrimSpace(getenv("POLICY_FILE", "")),
	}
	cfg.Observability.OtelEnabled = getenvBool("OTEL_ENABLED", cfg.IsProduction())
	cfg.Observability.Stacktraces = getenvBool("LOG_STACKTRACE", !cfg.IsProduction())

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
