package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dvsync.manifest.yaml")

	m := New("dvsync", "main")
	m.RemoteURL = "postgresql://dolt-remote:5432/dvsync"
	m.Collections = map[string]CollectionOverride{
		"large-docs": {ChunkSize: 2048, ChunkOverlap: 200},
	}
	require.NoError(t, m.Save(path))

	assert.True(t, Exists(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dvsync", loaded.Repository)
	assert.Equal(t, "main", loaded.Branch)
	assert.Equal(t, "postgresql://dolt-remote:5432/dvsync", loaded.RemoteURL)
	assert.Equal(t, 2048, loaded.Collections["large-docs"].ChunkSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestExists_MissingFile(t *testing.T) {
	assert.False(t, Exists(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestValidate_RequiresRepositoryAndBranch(t *testing.T) {
	m := &Manifest{}
	assert.Error(t, m.Validate())

	m.Repository = "dvsync"
	assert.Error(t, m.Validate())

	m.Branch = "main"
	assert.NoError(t, m.Validate())
}

func TestValidate_RejectsBadCollectionOverride(t *testing.T) {
	m := New("dvsync", "main")
	m.Collections = map[string]CollectionOverride{
		"docs": {ChunkSize: 100, ChunkOverlap: 100},
	}
	assert.Error(t, m.Validate())
}

func TestChunkSizeFor_FallsBackWithoutOverride(t *testing.T) {
	m := New("dvsync", "main")
	assert.Equal(t, 512, m.ChunkSizeFor("docs", 512))
	assert.Equal(t, 50, m.ChunkOverlapFor("docs", 50))

	m.Collections = map[string]CollectionOverride{
		"docs": {ChunkSize: 1024, ChunkOverlap: 100},
	}
	assert.Equal(t, 1024, m.ChunkSizeFor("docs", 512))
	assert.Equal(t, 100, m.ChunkOverlapFor("docs", 50))
	assert.Equal(t, 512, m.ChunkSizeFor("other", 512))
}
