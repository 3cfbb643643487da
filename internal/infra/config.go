package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"agrinix/internal/domain"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	LogLevel    string
	Port        string
	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	JWTSecret   string

	StoragePath    string
	StorageBaseURL string
	GeoIPDBPath    string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	RoboflowAPIKey   string
	RoboflowEndpoint string
	RoboflowTimeout  time.Duration

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string
	GeminiAPIKey      string
	GeminiModel       string
	GeminiBaseURL     string
	WikipediaBaseURL  string
	DiseaseTablePath  string
	EnrichmentTimeout time.Duration

	MaxImageBytes      int
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerLease        time.Duration
	JobMaxAttempts     int
	JobBackoffBase     time.Duration
	JobBackoffMax      time.Duration
	PersistAttempts    int
	JobRetention       time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		Port:        port,
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/agrinix.db"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),

		RoboflowAPIKey:   os.Getenv("ROBOFLOW_PRIVATE_API_KEY"),
		RoboflowEndpoint: getEnv("ROBOFLOW_ENDPOINT", "https://serverless.roboflow.com/infer/workflows/agrinix/agrinix-workflow-3"),
		RoboflowTimeout:  getEnvDuration("ROBOFLOW_TIMEOUT", 10*time.Second),

		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		WikipediaBaseURL:  getEnv("WIKIPEDIA_BASE_URL", "https://en.wikipedia.org/api/rest_v1"),
		DiseaseTablePath:  os.Getenv("DISEASE_TABLE_PATH"),
		EnrichmentTimeout: getEnvDuration("ENRICHMENT_PROVIDER_TIMEOUT", 15*time.Second),

		MaxImageBytes:      getEnvInt("MAX_IMAGE_BYTES", 5*1024*1024),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		WorkerLease:        getEnvDuration("WORKER_LEASE", 5*time.Minute),
		JobMaxAttempts:     getEnvInt("JOB_MAX_ATTEMPTS", domain.MaxJobAttempts),
		JobBackoffBase:     getEnvDuration("JOB_BACKOFF_BASE", 2*time.Second),
		JobBackoffMax:      getEnvDuration("JOB_BACKOFF_MAX", time.Minute),
		PersistAttempts:    getEnvInt("PERSIST_ATTEMPTS", 3),
		JobRetention:       getEnvDuration("JOB_RETENTION", 168*time.Hour),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.JobMaxAttempts <= 0 || cfg.JobMaxAttempts > domain.MaxJobAttempts {
		cfg.JobMaxAttempts = domain.MaxJobAttempts
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.PersistAttempts <= 0 {
		cfg.PersistAttempts = 1
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 5 * 1024 * 1024
	}

	return cfg, nil
}

// HasCloudinary reports whether all Cloudinary credentials are present.
func (c *Config) HasCloudinary() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings and bare integers as seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return time.Duration(i) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
