package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingCredentials = errors.New("missing_credentials")

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Withorb     WithorbConfig
	Metabase    MetabaseConfig
	Sync        SyncConfig
	Scheduler   SchedulerConfig
	Redis       RedisConfig
	MetricsPush MetricsPushConfig
}

// TelemetryConfig drives logging, tracing and OTel metrics.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

// WithorbConfig configures the billing provider API client.
type WithorbConfig struct {
	APIKey       string
	BaseURL      string
	PageSize     int
	MaxRecords   int
	RequestDelay time.Duration
	Timeout      time.Duration
}

// MetabaseConfig points at the analytics database that carries the
// wallet-to-company mapping.
type MetabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSL      bool
}

type SyncConfig struct {
	UsageWindowDays    int
	UsageBatchSize     int
	CreateOnMiss       bool
	RunLockEnabled     bool
	RunLockTTL         time.Duration
	SharedThrottle     bool
	SharedThrottleRate float64
}

type SchedulerConfig struct {
	Enabled           bool
	FullSyncInterval  time.Duration
	FullSyncAt        string
	UsageSyncInterval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
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
		AppName:      getenv("APP_SERVICE", "crmsync"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Withorb: WithorbConfig{
			APIKey:       strings.TrimSpace(getenv("WITHORB_API_KEY", "")),
			BaseURL:      strings.TrimRight(getenv("WITHORB_BASE_URL", "https://api.withorb.com/v1"), "/"),
			PageSize:     getenvInt("WITHORB_PAGE_SIZE", 100),
			MaxRecords:   getenvInt("WITHORB_MAX_RECORDS", 10000),
			RequestDelay: getenvDuration("WITHORB_REQUEST_DELAY", 100*time.Millisecond),
			Timeout:      getenvDuration("WITHORB_TIMEOUT", 30*time.Second),
		},
		Metabase: MetabaseConfig{
			Host:     strings.TrimSpace(getenv("METABASE_DB_HOST", "")),
			Port:     getenv("METABASE_DB_PORT", "5432"),
			Name:     getenv("METABASE_DB_NAME", ""),
			User:     getenv("METABASE_DB_USER", ""),
			Password: getenv("METABASE_DB_PASSWORD", ""),
			SSL:      getenvBool("METABASE_DB_SSL", false),
		},
		Sync: SyncConfig{
			UsageWindowDays:    getenvInt("SYNC_USAGE_WINDOW_DAYS", 30),
			UsageBatchSize:     getenvInt("SYNC_USAGE_BATCH_SIZE", 50),
			CreateOnMiss:       getenvBool("SYNC_CREATE_ON_MISS", true),
			RunLockEnabled:     getenvBool("SYNC_RUN_LOCK_ENABLED", false),
			RunLockTTL:         getenvDuration("SYNC_RUN_LOCK_TTL", 2*time.Hour),
			SharedThrottle:     getenvBool("SYNC_SHARED_THROTTLE_ENABLED", false),
			SharedThrottleRate: getenvFloat("SYNC_SHARED_THROTTLE_RATE", 10),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getenvBool("SCHEDULER_ENABLED", true),
			FullSyncInterval:  getenvDuration("SCHEDULER_FULL_SYNC_INTERVAL", 24*time.Hour),
			FullSyncAt:        getenv("SCHEDULER_FULL_SYNC_AT", "02:00"),
			UsageSyncInterval: getenvDuration("SCHEDULER_USAGE_SYNC_INTERVAL", 6*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		MetricsPush: MetricsPushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
		},
	}

	return cfg
}

// RequireWithorb fails fast when the billing provider cannot be reached
// because no API key is configured.
func (c Config) RequireWithorb() error {
	if c.Withorb.APIKey == "" {
		return errors.Join(ErrMissingCredentials, errors.New("WITHORB_API_KEY is required"))
	}
	return nil
}

// RequireMetabase fails fast when a query-based wallet import has no
// analytics database to read from.
func (c Config) RequireMetabase() error {
	if c.Metabase.Host == "" || c.Metabase.Name == "" {
		return errors.Join(ErrMissingCredentials, errors.New("METABASE_DB_HOST and METABASE_DB_NAME are required"))
	}
	return nil
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
	if err != nil {
		return def
	}
	return parsed
}
