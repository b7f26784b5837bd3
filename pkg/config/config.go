package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// DefaultBaseURL is the root of the remote chat service
const DefaultBaseURL = "https://beta.character.ai"

// Config holds all client configuration
type Config struct {
	// Remote service configuration
	Service struct {
		BaseURL   string
		Timeout   time.Duration // zero means no client-side timeout
		UserAgent string
	}

	// Credentials and default character, supplied by the host
	Auth struct {
		AccessToken string
		CharacterID string
	}

	// Streaming reply parsing
	Stream struct {
		SkipMalformedLines bool
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Lookup cache settings
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
		RedisURL    string
	}

	// Observability
	Observability struct {
		ServiceName    string
		MetricsAddr    string
		TracingEnabled bool
	}
}

var (
	instance *Config
	once     sync.Once
)

// New returns the process configuration, loading it on first use
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the environment without touching the singleton
func Load() *Config {
	cfg := &Config{}

	cfg.Service.BaseURL = strings.TrimRight(getEnvString("CHARACTERAI_BASE_URL", DefaultBaseURL), "/")
	cfg.Service.Timeout = getEnvDuration("CHARACTERAI_HTTP_TIMEOUT", 0)
	cfg.Service.UserAgent = getEnvString("CHARACTERAI_USER_AGENT", "characterai-go")

	cfg.Auth.AccessToken = getEnvString("CHARACTERAI_TOKEN", "")
	cfg.Auth.CharacterID = getEnvString("CHARACTERAI_CHARID", "")

	cfg.Stream.SkipMalformedLines = getEnvBool("CHARACTERAI_SKIP_MALFORMED_LINES", false)

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "text")

	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 256)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)
	cfg.Cache.RedisURL = getEnvString("REDIS_URL", "")

	cfg.Observability.ServiceName = getEnvString("SERVICE_NAME", "characterai-client")
	cfg.Observability.MetricsAddr = getEnvString("METRICS_ADDR", "")
	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)

	return cfg
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
