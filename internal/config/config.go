package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend selects the thread state persistence layer.
const (
	BackendJSON     = "json"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamo"
)

// Config holds application configuration.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	StateBackend  string
	DataDir       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ThreadStateTable    string

	UseMemoryQueue   bool
	WorkflowQueueURL string
	QueueBuffer      int
	ReceiveWaitSecs  int
	ReceiveBatchSize int

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StateBackend:  strings.ToLower(strings.TrimSpace(getEnv("STATE_BACKEND", BackendJSON))),
		DataDir:       getEnv("DATA_DIR", "data"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ThreadStateTable:    getEnv("THREAD_STATE_TABLE", "thread_states"),

		UseMemoryQueue:   getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkflowQueueURL: getEnv("WORKFLOW_QUEUE_URL", ""),
		QueueBuffer:      getEnvAsInt("QUEUE_BUFFER", 128),
		ReceiveWaitSecs:  getEnvAsInt("RECEIVE_WAIT_SECONDS", 10),
		ReceiveBatchSize: getEnvAsInt("RECEIVE_BATCH_SIZE", 1),

		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}
