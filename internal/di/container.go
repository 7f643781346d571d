// Package di builds the RepositoryContext explicit value for one
// repository: the versioning client, vector store, sync-state and
// deletion stores, chunker, manifest, logger, and per-repository
// pipeline mutex, wired together once at startup instead of living
// behind package-level singletons.
package di

import (
	"database/sql"
	"fmt"

	"dvsync/internal/backendqueue"
	"dvsync/internal/chunking"
	"dvsync/internal/config"
	"dvsync/internal/deletions"
	"dvsync/internal/logging"
	"dvsync/internal/manifest"
	"dvsync/internal/syncmanager"
	"dvsync/internal/syncstate"
	"dvsync/internal/vectorstore"
	"dvsync/internal/versioning"
)

// RepositoryContext holds every collaborator a repository's pipelines
// need, built once per repository and threaded into the CLI dispatcher.
type RepositoryContext struct {
	Config   *config.Config
	Manifest *manifest.Manifest
	Logger   *logging.EnhancedLogger

	VersioningClient versioning.Client
	VectorStore      vectorstore.Store
	Tables           versioning.TableStore

	StateDB      *sql.DB
	SyncState    *syncstate.Store
	Deletions    *deletions.Tracker
	Chunker      *chunking.Chunker
	BackendQueue *backendqueue.QueuedStore

	Manager *syncmanager.Manager
}

// Build wires a RepositoryContext for the repository described by cfg
// and the manifest at manifestPath. A missing manifest file is not an
// error: callers that haven't run `syncd init` yet get a nil Manifest
// and repository-wide defaults.
func Build(cfg *config.Config, manifestPath string) (*RepositoryContext, error) {
	logger := logging.GetComponentLogger("di")

	var mf *manifest.Manifest
	if manifest.Exists(manifestPath) {
		loaded, err := manifest.Load(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("load manifest: %w", err)
		}
		mf = loaded
		logger.Info("loaded manifest", "path", manifestPath, "repository", mf.Repository, "branch", mf.Branch)
	} else {
		logger.Info("no manifest found, using repository defaults", "path", manifestPath)
	}

	client, err := versioning.NewPqClient(&cfg.Versioning)
	if err != nil {
		return nil, fmt.Errorf("connect to versioning engine: %w", err)
	}
	tables := versioning.NewSQLTableStore(client.DB())

	rawStore, err := newVectorStore(&cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("connect to vector store: %w", err)
	}
	cbStore := vectorstore.NewCircuitBreakerStore(rawStore, nil)
	queueCfg := backendqueue.DefaultConfig()
	if cfg.Concurrency.DetectionConcurrency > 0 {
		queueCfg.WorkerCount = cfg.Concurrency.DetectionConcurrency
	}
	queueCfg.RedisAddr = cfg.Metrics.RedisAddr
	queuedStore := backendqueue.New(cbStore, queueCfg)

	stateDB, err := syncstate.Open(cfg.SyncState.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local state database: %w", err)
	}
	syncState := syncstate.NewStore(stateDB)
	tracker := deletions.NewTracker(stateDB)

	chunkCfg := &chunking.Config{ChunkSize: cfg.Chunking.ChunkSize, ChunkOverlap: cfg.Chunking.ChunkOverlap}
	chunker := chunking.NewChunker(chunkCfg)

	branch := cfg.Versioning.DefaultBranch
	repoPath := cfg.Versioning.Database
	if mf != nil {
		branch = mf.Branch
		repoPath = mf.Repository
	}

	managerCfg := syncmanager.Config{
		RepoPath:              repoPath,
		DefaultBranch:         branch,
		DetectionConcurrency:  cfg.Concurrency.DetectionConcurrency,
		DetectionDeadlineSecs: cfg.Concurrency.DetectionDeadlineSecs,
		AutoStageFromVector:   true,
	}
	manager := syncmanager.New(managerCfg, queuedStore, client, tables, syncState, tracker, chunker)

	return &RepositoryContext{
		Config:           cfg,
		Manifest:         mf,
		Logger:           logger,
		VersioningClient: client,
		VectorStore:      queuedStore,
		Tables:           tables,
		StateDB:          stateDB,
		SyncState:        syncState,
		Deletions:        tracker,
		Chunker:          chunker,
		BackendQueue:     queuedStore,
		Manager:          manager,
	}, nil
}

// newVectorStore selects the Chroma or Qdrant backend per
// cfg.Backend and returns the Qdrant constructor's error as is; Build
// wraps it as a vector-store connection error.
func newVectorStore(cfg *config.VectorStoreConfig) (vectorstore.Store, error) {
	switch cfg.Backend {
	case "qdrant":
		return vectorstore.NewQdrantStore(cfg)
	default:
		return vectorstore.NewChromaStore(cfg), nil
	}
}

// Close releases the repository's backend connections: the bounded
// backend queue (and its optional Redis mirror), the versioning
// engine's *sql.DB, and the local sync-state database.
func (rc *RepositoryContext) Close() error {
	if err := rc.BackendQueue.Close(); err != nil {
		return err
	}
	if db := rc.VersioningClient.DB(); db != nil {
		if err := db.Close(); err != nil {
			return err
		}
	}
	return rc.StateDB.Close()
}
