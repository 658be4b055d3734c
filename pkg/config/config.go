package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Import   ImportConfig
	CORS     CORSConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig points at the object store holding uploads and error reports.
type StorageConfig struct {
	BaseDir      string
	ImportBucket string
}

// ImportConfig tunes the bulk-import pipeline.
type ImportConfig struct {
	SectionCapacity     int
	MinSectionOccupancy int
	MaxRowsPerJob       int
	EmployeeNoPrefix    string
	WorkerConcurrency   int
	WorkerRetries       int
	RollbackWindow      time.Duration
	AllocationLockTTL   time.Duration
	LoginURL            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Storage = StorageConfig{
		BaseDir:      v.GetString("STORAGE_BASE_DIR"),
		ImportBucket: v.GetString("STORAGE_IMPORT_BUCKET"),
	}

	cfg.Import = ImportConfig{
		SectionCapacity:     v.GetInt("IMPORT_SECTION_CAPACITY"),
		MinSectionOccupancy: v.GetInt("IMPORT_MIN_SECTION_OCCUPANCY"),
		MaxRowsPerJob:       v.GetInt("IMPORT_MAX_ROWS"),
		EmployeeNoPrefix:    v.GetString("IMPORT_EMPLOYEE_NO_PREFIX"),
		WorkerConcurrency:   v.GetInt("IMPORT_WORKER_CONCURRENCY"),
		WorkerRetries:       v.GetInt("IMPORT_WORKER_RETRIES"),
		RollbackWindow:      parseDuration(v.GetString("IMPORT_ROLLBACK_WINDOW"), 24*time.Hour),
		AllocationLockTTL:   parseDuration(v.GetString("IMPORT_ALLOCATION_LOCK_TTL"), time.Minute),
		LoginURL:            v.GetString("IMPORT_LOGIN_URL"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_records")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("STORAGE_BASE_DIR", "./objects")
	v.SetDefault("STORAGE_IMPORT_BUCKET", "bulk-imports")

	v.SetDefault("IMPORT_SECTION_CAPACITY", 70)
	v.SetDefault("IMPORT_MIN_SECTION_OCCUPANCY", 5)
	v.SetDefault("IMPORT_MAX_ROWS", 500)
	v.SetDefault("IMPORT_EMPLOYEE_NO_PREFIX", "SOA")
	v.SetDefault("IMPORT_WORKER_CONCURRENCY", 2)
	v.SetDefault("IMPORT_WORKER_RETRIES", 3)
	v.SetDefault("IMPORT_ROLLBACK_WINDOW", "24h")
	v.SetDefault("IMPORT_ALLOCATION_LOCK_TTL", "1m")
	v.SetDefault("IMPORT_LOGIN_URL", "http://localhost:8000/auth/login")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
