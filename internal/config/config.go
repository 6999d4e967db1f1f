package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewSyncConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

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

	Provider ProviderConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Quota    QuotaConfig

	Scheduler SchedulerConfig

	TokenEncryptionKey string
}

type ProviderConfig struct {
	AppID      string
	AppSecret  string
	APIVersion string
	BaseURL    string
}

type StorageConfig struct {
	Mode        string
	LocalRoot   string
	Endpoint    string
	AccessKey   string
	SecretKey   string
	Bucket      string
	Region      string
	Compression string
}

type RedisConfig struct {
	Addr                  string
	Password              string
	DB                    int
	RefreshLockTTLSeconds int
}

type SchedulerConfig struct {
	Enabled              bool
	RunIntervalSeconds   int
	RefreshIntervalHours int
	BatchSize            int
	Concurrency          int
	RunTimeoutMinutes    int
}

type QuotaConfig struct {
	Enabled       bool
	RefreshPerDay int
	Enforce       bool
}

const (
	StorageModeLocal = "local"
	StorageModeR2    = "r2"
	StorageModeS3    = "s3"

	CompressionNone   = "none"
	CompressionSnappy = "snappy"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "insightsync"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "insights"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "insightsync.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Provider: ProviderConfig{
			AppID:      strings.TrimSpace(getenv("META_APP_ID", "")),
			AppSecret:  strings.TrimSpace(getenv("META_APP_SECRET", "")),
			APIVersion: getenv("META_API_VERSION", "v23.0"),
			BaseURL:    strings.TrimRight(getenv("META_BASE_URL", "https://graph.facebook.com"), "/"),
		},
		Storage: StorageConfig{
			Mode:        normalizeStorageMode(getenv("STORAGE_MODE", StorageModeLocal)),
			LocalRoot:   getenv("LOCAL_DATA_ROOT", "./data"),
			Endpoint:    strings.TrimSpace(getenv("STORAGE_ENDPOINT", "")),
			AccessKey:   strings.TrimSpace(getenv("STORAGE_ACCESS_KEY", "")),
			SecretKey:   strings.TrimSpace(getenv("STORAGE_SECRET_KEY", "")),
			Bucket:      strings.TrimSpace(getenv("STORAGE_BUCKET", "")),
			Region:      getenv("STORAGE_REGION", "auto"),
			Compression: strings.ToLower(getenv("STORAGE_COMPRESSION", CompressionNone)),
		},
		Redis: RedisConfig{
			Addr:                  strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:              strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:                    getenvInt("REDIS_DB", 0),
			RefreshLockTTLSeconds: getenvInt("REFRESH_LOCK_TTL_SECONDS", 1800),
		},
		Quota: QuotaConfig{
			Enabled:       getenvBool("REFRESH_QUOTA_ENABLED", false),
			RefreshPerDay: getenvInt("REFRESH_QUOTA_PER_DAY", 1),
			Enforce:       getenvBool("REFRESH_QUOTA_ENFORCE", false),
		},
		Scheduler: SchedulerConfig{
			Enabled:              getenvBool("SCHEDULER_ENABLED", true),
			RunIntervalSeconds:   getenvInt("SCHEDULER_RUN_INTERVAL_SECONDS", 60),
			RefreshIntervalHours: getenvInt("REFRESH_INTERVAL_HOURS", 24),
			BatchSize:            getenvInt("SCHEDULER_BATCH_SIZE", 50),
			Concurrency:          getenvInt("SCHEDULER_CONCURRENCY", 4),
			RunTimeoutMinutes:    getenvInt("REFRESH_RUN_TIMEOUT_MINUTES", 30),
		},
		TokenEncryptionKey: strings.TrimSpace(getenv("TOKEN_ENCRYPTION_KEY", "")),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeStorageMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StorageModeR2:
		return StorageModeR2
	case StorageModeS3:
		return StorageModeS3
	default:
		return StorageModeLocal
	}
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
