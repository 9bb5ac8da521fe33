// Package config loads the runtime configuration for the review queue
// core from environment variables (optionally seeded from a .env file).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates every configuration surface named in spec.md §6.
type Config struct {
	Store       StoreConfig
	Queue       QueueConfig
	Worker      WorkerConfig
	Maintenance MaintenanceConfig
	Database    DatabaseConfig
	Analyzer    AnalyzerConfig
	Server      ServerConfig
}

// StoreConfig connects to the Redis-compatible queue store.
type StoreConfig struct {
	Host     string
	Port     string
	DB       int
	Password string
	PoolSize int
	Timeout  time.Duration
}

// QueueConfig names the four logical queues and their behavioral knobs.
type QueueConfig struct {
	MainQueue         string
	ProcessingQueue   string
	FailedQueue       string
	VisibilityTimeout time.Duration
	MaxRetries        int
	BlockingTimeout   time.Duration
}

// RetryQueue derives the retry sorted-set name from the main queue name,
// per spec.md §6 ("retry ZSet name: `<MAIN_QUEUE>:retry`").
func (q QueueConfig) RetryQueue() string {
	return q.MainQueue + ":retry"
}

// WorkerConfig tunes the worker's in-process bounded retry.
type WorkerConfig struct {
	InnerRetries int
	InnerDelay   time.Duration
	PollInterval time.Duration
}

// MaintenanceConfig tunes the background maintenance cycle and its
// health-threshold alerts.
type MaintenanceConfig struct {
	Interval          time.Duration
	SnapshotInterval  time.Duration
	MainWarnThreshold int64
	VisWarnThreshold  int64
	FailedWarnThresh  int64
	RetryWarnThresh   int64
}

// DatabaseConfig connects to the durable PostgreSQL record store.
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConnections int
	ConnTimeout    time.Duration
}

// AnalyzerConfig points at the external analysis service.
type AnalyzerConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ServerConfig is the operator-facing metrics/health HTTP endpoint.
type ServerConfig struct {
	Host string
	Port string
}

// Load builds a Config from process environment variables, applying the
// defaults listed in spec.md §6. It first attempts to load a .env file
// from the working directory; a missing file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	mainQueue := getEnv("MAIN_QUEUE", "customer_reviews_queue")

	return &Config{
		Store: StoreConfig{
			Host:     getEnv("STORE_HOST", "localhost"),
			Port:     getEnv("STORE_PORT", "6379"),
			DB:       getIntEnv("STORE_DB", 0),
			Password: getEnv("STORE_PASSWORD", ""),
			PoolSize: getIntEnv("STORE_POOL_SIZE", 10),
			Timeout:  getDurationEnv("STORE_TIMEOUT", 5*time.Second),
		},
		Queue: QueueConfig{
			MainQueue:         mainQueue,
			ProcessingQueue:   getEnv("PROCESSING_QUEUE", mainQueue+"_processing"),
			FailedQueue:       getEnv("FAILED_QUEUE", mainQueue+"_failed"),
			VisibilityTimeout: getDurationEnv("VISIBILITY_TIMEOUT", 300*time.Second),
			MaxRetries:        getIntEnv("MAX_RETRIES", 3),
			BlockingTimeout:   getDurationEnv("BLOCKING_TIMEOUT", 1*time.Second),
		},
		Worker: WorkerConfig{
			InnerRetries: getIntEnv("WORKER_INNER_RETRIES", 3),
			InnerDelay:   getDurationEnv("WORKER_INNER_DELAY", 5*time.Second),
			PollInterval: getDurationEnv("WORKER_POLL_INTERVAL", 1*time.Second),
		},
		Maintenance: MaintenanceConfig{
			Interval:          getDurationEnv("MAINTENANCE_INTERVAL", 30*time.Second),
			SnapshotInterval:  getDurationEnv("MAINTENANCE_SNAPSHOT_INTERVAL", 5*time.Minute),
			MainWarnThreshold: int64(getIntEnv("MAIN_QUEUE_WARN_THRESHOLD", 1000)),
			VisWarnThreshold:  int64(getIntEnv("VISIBILITY_KEYS_WARN_THRESHOLD", 100)),
			FailedWarnThresh:  int64(getIntEnv("FAILED_QUEUE_WARN_THRESHOLD", 50)),
			RetryWarnThresh:   int64(getIntEnv("RETRY_QUEUE_WARN_THRESHOLD", 100)),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "reviewqueue"),
			Password:       getEnv("DB_PASSWORD", ""),
			Name:           getEnv("DB_NAME", "reviewqueue"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConnections: getIntEnv("DB_MAX_CONNECTIONS", 10),
			ConnTimeout:    getDurationEnv("DB_CONN_TIMEOUT", 10*time.Second),
		},
		Analyzer: AnalyzerConfig{
			BaseURL: getEnv("ANALYZER_BASE_URL", "http://localhost:9090"),
			Timeout: getDurationEnv("ANALYZER_TIMEOUT", 30*time.Second),
		},
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
