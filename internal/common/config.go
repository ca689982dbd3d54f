package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Worker   WorkerConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr    string
	GinMode string
}

// LLMConfig holds model-calling configuration
type LLMConfig struct {
	OpenAIAPIKey    string
	GoogleAPIKey    string
	OpenAIBaseURL   string
	DefaultProvider string
	DefaultModel    string
	Temperature     float32
	CallTimeout     time.Duration
}

// PipelineConfig holds chunking and retry tuning
type PipelineConfig struct {
	ChunkThreshold   int
	ChunkSize        int
	ChunkOverlap     int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration
}

// WorkerConfig holds worker pool tuning
type WorkerConfig struct {
	Workers       int
	PollInterval  time.Duration
	JobTimeout    time.Duration
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is applied first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr:    getEnv("HTTP_ADDR", ":8080"),
			GinMode: getEnv("GIN_MODE", "release"),
		},
		LLM: LLMConfig{
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			GoogleAPIKey:    getEnv("GOOGLE_API_KEY", ""),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
			DefaultProvider: getEnv("LLM_PROVIDER", "openai"),
			DefaultModel:    getEnv("LLM_MODEL", "gpt-4o"),
			Temperature:     getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			CallTimeout:     getEnvAsDuration("LLM_CALL_TIMEOUT", 120*time.Second),
		},
		Pipeline: PipelineConfig{
			ChunkThreshold:   getEnvAsInt("CHUNK_THRESHOLD", 50_000),
			ChunkSize:        getEnvAsInt("CHUNK_SIZE", 40_000),
			ChunkOverlap:     getEnvAsInt("CHUNK_OVERLAP", 2_000),
			MaxRetries:       getEnvAsInt("JOB_MAX_RETRIES", 10),
			RetryBackoffBase: getEnvAsDuration("JOB_RETRY_BACKOFF_BASE", 30*time.Second),
			RetryBackoffCap:  getEnvAsDuration("JOB_RETRY_BACKOFF_CAP", 10*time.Minute),
		},
		Worker: WorkerConfig{
			Workers:       getEnvAsInt("WORKERS", 4),
			PollInterval:  getEnvAsDuration("WORKER_POLL_INTERVAL", 2*time.Second),
			JobTimeout:    getEnvAsDuration("JOB_TIMEOUT", 30*time.Minute),
			StaleAfter:    getEnvAsDuration("JOB_STALE_AFTER", time.Hour),
			SweepInterval: getEnvAsDuration("WORKER_SWEEP_INTERVAL", time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.LLM.OpenAIAPIKey == "" && c.LLM.GoogleAPIKey == "" {
		return NewAppError("CONFIG_ERROR", "at least one provider API key is required", ErrInvalidInput)
	}
	if c.Pipeline.ChunkSize <= c.Pipeline.ChunkOverlap {
		return NewAppError("CONFIG_ERROR", "CHUNK_SIZE must exceed CHUNK_OVERLAP", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
