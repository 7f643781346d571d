package di

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvsync/internal/config"
	"dvsync/internal/manifest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	// lib/pq and the Chroma client are both lazy: Open/NewChromaStore
	// never dial out, so a zero connect timeout keeps this test free of
	// any live backend dependency.
	cfg.Versioning.ConnectTimeout = 0
	cfg.Versioning.DSN = "postgresql://root@127.0.0.1:5432/dvsync?sslmode=disable"
	cfg.VectorStore.Backend = "chroma"
	cfg.SyncState.DBPath = filepath.Join(t.TempDir(), "state.db")
	return cfg
}

func TestBuild_WithoutManifest_UsesRepositoryDefaults(t *testing.T) {
	cfg := testConfig(t)
	manifestPath := filepath.Join(t.TempDir(), "dvsync.manifest.yaml")

	rc, err := Build(cfg, manifestPath)
	require.NoError(t, err)
	defer rc.Close()

	assert.Nil(t, rc.Manifest)
	assert.NotNil(t, rc.VersioningClient)
	assert.NotNil(t, rc.VectorStore)
	assert.NotNil(t, rc.Tables)
	assert.NotNil(t, rc.SyncState)
	assert.NotNil(t, rc.Deletions)
	assert.NotNil(t, rc.Chunker)
	assert.NotNil(t, rc.BackendQueue)
	assert.NotNil(t, rc.Manager)
}

func TestBuild_WithManifest_OverridesRepositoryAndBranch(t *testing.T) {
	cfg := testConfig(t)
	manifestPath := filepath.Join(t.TempDir(), "dvsync.manifest.yaml")
	m := manifest.New("docs-repo", "feature/alpha")
	require.NoError(t, m.Save(manifestPath))

	rc, err := Build(cfg, manifestPath)
	require.NoError(t, err)
	defer rc.Close()

	require.NotNil(t, rc.Manifest)
	assert.Equal(t, "docs-repo", rc.Manifest.Repository)
	assert.Equal(t, "feature/alpha", rc.Manifest.Branch)
}

func TestBuild_QdrantBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Backend = "qdrant"
	cfg.VectorStore.Endpoint = "127.0.0.1:6334"
	manifestPath := filepath.Join(t.TempDir(), "dvsync.manifest.yaml")

	rc, err := Build(cfg, manifestPath)
	require.NoError(t, err)
	defer rc.Close()

	assert.NotNil(t, rc.VectorStore)
}
