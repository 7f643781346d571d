package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "dvsync", cfg.Versioning.Database)
	assert.Equal(t, "main", cfg.Versioning.DefaultBranch)

	assert.Equal(t, "chroma", cfg.VectorStore.Backend)
	assert.Equal(t, "http://localhost:8000", cfg.VectorStore.Endpoint)
	assert.Equal(t, 3, cfg.VectorStore.RetryAttempts)

	assert.Equal(t, 512, cfg.Chunking.ChunkSize)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)

	assert.Equal(t, 45, cfg.Concurrency.DetectionDeadlineSecs)
	assert.Equal(t, 30, cfg.Concurrency.BackendCallTimeoutSec)

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsBadBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VectorStore.Backend = "not-a-backend"
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsBadChunking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize
	assert.Error(t, cfg.Validate())
}

func TestLoadConfig_WithEnvVars(t *testing.T) {
	envVars := map[string]string{
		"DVSYNC_VERSIONING_DATABASE":   "custom_repo",
		"DVSYNC_VECTOR_STORE_BACKEND":  "qdrant",
		"DVSYNC_VECTOR_STORE_ENDPOINT": "http://custom:6333",
		"DVSYNC_CHUNK_SIZE":            "1024",
		"DVSYNC_CHUNK_OVERLAP":         "100",
		"DVSYNC_LOG_LEVEL":             "debug",
	}
	for key, value := range envVars {
		_ = os.Setenv(key, value)
	}
	defer func() {
		for key := range envVars {
			_ = os.Unsetenv(key)
		}
	}()

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "custom_repo", cfg.Versioning.Database)
	assert.Equal(t, "qdrant", cfg.VectorStore.Backend)
	assert.Equal(t, "http://custom:6333", cfg.VectorStore.Endpoint)
	assert.Equal(t, 1024, cfg.Chunking.ChunkSize)
	assert.Equal(t, 100, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_WithInvalidIntEnvVar(t *testing.T) {
	_ = os.Setenv("DVSYNC_CHUNK_SIZE", "not-a-number")
	defer func() { _ = os.Unsetenv("DVSYNC_CHUNK_SIZE") }()

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Chunking.ChunkSize)
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30, int(cfg.BackendCallTimeout().Seconds()))
	assert.Equal(t, 45, int(cfg.DetectionDeadline().Seconds()))
}
