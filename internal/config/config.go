package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process level configuration read from the environment.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr    string
	AdminToken  string
	ViewerToken string

	Telemetry TelemetryConfig

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
	DBRunMigrations   bool

	Redis RedisConfig

	Scheduler SchedulerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// TelemetryConfig feeds internal/observability.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type SchedulerConfig struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	EnabledJobs []string
	SweepDryRun bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "obligo"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		AdminToken:        strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		ViewerToken:       strings.TrimSpace(getenv("VIEWER_API_TOKEN", "")),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvRatio("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "obligo"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "obligo.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBRunMigrations:   getenvBool("DATABASE_RUN_MIGRATIONS", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Scheduler: SchedulerConfig{
			RunInterval: getenvDuration("SCHEDULER_RUN_INTERVAL", time.Hour),
			JobTimeout:  getenvDuration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
			EnabledJobs: parseList(getenv("SCHEDULER_ENABLED_JOBS", "")),
			SweepDryRun: getenvBool("SCHEDULER_SWEEP_DRY_RUN", false),
		},
	}

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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// getenvRatio parses a value in [0, 1].
func getenvRatio(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 || parsed > 1 {
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

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
