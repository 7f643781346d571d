// Package manifest loads and saves the per-repository manifest: a YAML
// file declaring which versioning-engine repository and branch a
// working directory is bound to, plus any per-collection overrides of
// the default chunk size and chunk overlap.
package manifest

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CollectionOverride customizes chunk size and overlap for one
// collection, layered on top of the repository-wide defaults.
type CollectionOverride struct {
	ChunkSize    int `yaml:"chunk_size,omitempty"`
	ChunkOverlap int `yaml:"chunk_overlap,omitempty"`
}

// Manifest is the declared desired state of a repository's sync
// binding: which versioning-engine database and branch it tracks, and
// any per-collection parameter overrides.
type Manifest struct {
	Repository  string                         `yaml:"repository"`
	Branch      string                         `yaml:"branch"`
	RemoteURL   string                         `yaml:"remote_url,omitempty"`
	Collections map[string]CollectionOverride `yaml:"collections,omitempty"`
}

// Validate checks required fields on a manifest.
func (m *Manifest) Validate() error {
	if m.Repository == "" {
		return errors.New("manifest: repository cannot be empty")
	}
	if m.Branch == "" {
		return errors.New("manifest: branch cannot be empty")
	}
	for name, override := range m.Collections {
		if override.ChunkSize < 0 {
			return fmt.Errorf("manifest: collections.%s.chunk_size cannot be negative", name)
		}
		if override.ChunkOverlap < 0 {
			return fmt.Errorf("manifest: collections.%s.chunk_overlap cannot be negative", name)
		}
		if override.ChunkSize > 0 && override.ChunkOverlap >= override.ChunkSize {
			return fmt.Errorf("manifest: collections.%s.chunk_overlap must be smaller than chunk_size", name)
		}
	}
	return nil
}

// ChunkSizeFor returns the effective chunk size for collection, falling
// back to defaultSize when no override (or a zero override) is set.
func (m *Manifest) ChunkSizeFor(collection string, defaultSize int) int {
	if o, ok := m.Collections[collection]; ok && o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return defaultSize
}

// ChunkOverlapFor returns the effective chunk overlap for collection,
// falling back to defaultOverlap when no override is set. The override
// is only honored if its own ChunkSize is also set, so a partial
// override can't silently pair a new overlap with the wrong size.
func (m *Manifest) ChunkOverlapFor(collection string, defaultOverlap int) int {
	if o, ok := m.Collections[collection]; ok && o.ChunkSize > 0 {
		return o.ChunkOverlap
	}
	return defaultOverlap
}

// Load reads and validates a manifest from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Exists reports whether a manifest file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Save validates and writes the manifest to path.
func (m *Manifest) Save(path string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// New builds the manifest written by `syncd init` for a fresh
// repository binding, with no collection overrides yet.
func New(repository, branch string) *Manifest {
	return &Manifest{Repository: repository, Branch: branch}
}
