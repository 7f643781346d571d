// Package config provides configuration management for dvsync, handling
// environment variables, .env files, and runtime defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root application configuration.
type Config struct {
	Versioning  VersioningConfig  `json:"versioning"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	SyncState   SyncStateConfig   `json:"sync_state"`
	Chunking    ChunkingConfig    `json:"chunking"`
	Concurrency ConcurrencyConfig `json:"concurrency"`
	Manifest    ManifestConfig    `json:"manifest"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
}

// VersioningConfig configures the connection to the SQL-schema
// versioning engine (a Dolt-compatible, Postgres-wire-protocol server).
type VersioningConfig struct {
	DSN            string `json:"-"` // never serialize, may carry credentials
	Database       string `json:"database"`
	DefaultBranch  string `json:"default_branch"`
	ConnectTimeout int    `json:"connect_timeout_seconds"`
}

// VectorStoreConfig configures the connection to the vector document
// store. Backend selects between the Chroma (HTTP) and Qdrant (gRPC)
// implementations.
type VectorStoreConfig struct {
	Backend        string `json:"backend"` // "chroma" | "qdrant"
	Endpoint       string `json:"endpoint"`
	APIKey         string `json:"-"`
	UseTLS         bool   `json:"use_tls"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	RetryAttempts  int    `json:"retry_attempts"`
}

// SyncStateConfig configures the local embedded SQL store shared by the
// sync-state store and the deletion tracker.
type SyncStateConfig struct {
	DBPath string `json:"db_path"`
}

// ChunkingConfig configures the chunker/reassembler.
type ChunkingConfig struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

// ConcurrencyConfig bounds the pipeline and detection concurrency model.
type ConcurrencyConfig struct {
	DetectionConcurrency  int `json:"detection_concurrency"`
	DetectionDeadlineSecs int `json:"detection_deadline_seconds"`
	BackendCallTimeoutSec int `json:"backend_call_timeout_seconds"`
}

// ManifestConfig points at the manifest file (external collaborator f).
type ManifestConfig struct {
	Path string `json:"path"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// MetricsConfig configures the optional cross-process queue-depth
// metric mirror.
type MetricsConfig struct {
	RedisAddr string `json:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Versioning: VersioningConfig{
			DSN:            "postgresql://root@127.0.0.1:5432/dvsync?sslmode=disable",
			Database:       "dvsync",
			DefaultBranch:  "main",
			ConnectTimeout: 10,
		},
		VectorStore: VectorStoreConfig{
			Backend:        "chroma",
			Endpoint:       "http://localhost:8000",
			UseTLS:         false,
			TimeoutSeconds: 30,
			RetryAttempts:  3,
		},
		SyncState: SyncStateConfig{
			DBPath: "./data/dvsync-state.db",
		},
		Chunking: ChunkingConfig{
			ChunkSize:    512,
			ChunkOverlap: 50,
		},
		Concurrency: ConcurrencyConfig{
			DetectionConcurrency:  4,
			DetectionDeadlineSecs: 45,
			BackendCallTimeoutSec: 30,
		},
		Manifest: ManifestConfig{
			Path: "./dvsync.manifest.yaml",
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
		Metrics: MetricsConfig{
			RedisAddr: "",
		},
	}
}

// LoadConfig loads configuration from a .env file (if present) and
// environment variables, overriding DefaultConfig.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := DefaultConfig()
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.VectorStore.Backend != "chroma" && c.VectorStore.Backend != "qdrant" {
		return fmt.Errorf("vector_store.backend must be \"chroma\" or \"qdrant\", got %q", c.VectorStore.Backend)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be non-negative and smaller than chunk_size")
	}
	if c.Concurrency.DetectionConcurrency < 1 {
		return fmt.Errorf("concurrency.detection_concurrency must be at least 1")
	}
	return nil
}

func loadFromEnv(cfg *Config) {
	loadVersioningConfig(cfg)
	loadVectorStoreConfig(cfg)
	loadSyncStateConfig(cfg)
	loadChunkingConfig(cfg)
	loadConcurrencyConfig(cfg)
	loadManifestConfig(cfg)
	loadLoggingConfig(cfg)
	loadMetricsConfig(cfg)
}

func loadVersioningConfig(cfg *Config) {
	cfg.Versioning.DSN = getStringEnvWithDefault("DVSYNC_VERSIONING_DSN", cfg.Versioning.DSN)
	cfg.Versioning.Database = getStringEnvWithDefault("DVSYNC_VERSIONING_DATABASE", cfg.Versioning.Database)
	cfg.Versioning.DefaultBranch = getStringEnvWithDefault("DVSYNC_VERSIONING_DEFAULT_BRANCH", cfg.Versioning.DefaultBranch)
	cfg.Versioning.ConnectTimeout = getIntEnvWithDefault("DVSYNC_VERSIONING_CONNECT_TIMEOUT_SECONDS", cfg.Versioning.ConnectTimeout)
}

func loadVectorStoreConfig(cfg *Config) {
	cfg.VectorStore.Backend = getStringEnvWithDefault("DVSYNC_VECTOR_STORE_BACKEND", cfg.VectorStore.Backend)
	cfg.VectorStore.Endpoint = getStringEnvWithDefault("DVSYNC_VECTOR_STORE_ENDPOINT", cfg.VectorStore.Endpoint)
	cfg.VectorStore.APIKey = getStringEnvWithDefault("DVSYNC_VECTOR_STORE_API_KEY", cfg.VectorStore.APIKey)
	cfg.VectorStore.UseTLS = getBoolEnvWithDefault("DVSYNC_VECTOR_STORE_USE_TLS", cfg.VectorStore.UseTLS)
	cfg.VectorStore.TimeoutSeconds = getIntEnvWithDefault("DVSYNC_VECTOR_STORE_TIMEOUT_SECONDS", cfg.VectorStore.TimeoutSeconds)
	cfg.VectorStore.RetryAttempts = getIntEnvWithDefault("DVSYNC_VECTOR_STORE_RETRY_ATTEMPTS", cfg.VectorStore.RetryAttempts)
}

func loadSyncStateConfig(cfg *Config) {
	cfg.SyncState.DBPath = getStringEnvWithDefault("DVSYNC_SYNC_STATE_DB_PATH", cfg.SyncState.DBPath)
}

func loadChunkingConfig(cfg *Config) {
	cfg.Chunking.ChunkSize = getIntEnvWithDefault("DVSYNC_CHUNK_SIZE", cfg.Chunking.ChunkSize)
	cfg.Chunking.ChunkOverlap = getIntEnvWithDefault("DVSYNC_CHUNK_OVERLAP", cfg.Chunking.ChunkOverlap)
}

func loadConcurrencyConfig(cfg *Config) {
	cfg.Concurrency.DetectionConcurrency = getIntEnvWithDefault("DVSYNC_DETECTION_CONCURRENCY", cfg.Concurrency.DetectionConcurrency)
	cfg.Concurrency.DetectionDeadlineSecs = getIntEnvWithDefault("DVSYNC_DETECTION_DEADLINE_SECONDS", cfg.Concurrency.DetectionDeadlineSecs)
	cfg.Concurrency.BackendCallTimeoutSec = getIntEnvWithDefault("DVSYNC_BACKEND_CALL_TIMEOUT_SECONDS", cfg.Concurrency.BackendCallTimeoutSec)
}

func loadManifestConfig(cfg *Config) {
	cfg.Manifest.Path = getStringEnvWithDefault("DVSYNC_MANIFEST_PATH", cfg.Manifest.Path)
}

func loadLoggingConfig(cfg *Config) {
	cfg.Logging.Level = getStringEnvWithDefault("DVSYNC_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.JSON = getBoolEnvWithDefault("DVSYNC_LOG_JSON", cfg.Logging.JSON)
}

func loadMetricsConfig(cfg *Config) {
	cfg.Metrics.RedisAddr = getStringEnvWithDefault("DVSYNC_METRICS_REDIS_ADDR", cfg.Metrics.RedisAddr)
}

func getStringEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

// BackendCallTimeout returns the configured per-call timeout as a
// time.Duration.
func (c *Config) BackendCallTimeout() time.Duration {
	return time.Duration(c.Concurrency.BackendCallTimeoutSec) * time.Second
}

// DetectionDeadline returns the configured multi-collection detection
// deadline as a time.Duration.
func (c *Config) DetectionDeadline() time.Duration {
	return time.Duration(c.Concurrency.DetectionDeadlineSecs) * time.Second
}
