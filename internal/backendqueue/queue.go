// Package backendqueue bounds concurrent access to the vector store
// backend behind a worker pool, so a burst of pipeline calls (a
// multi-collection Commit, a full-repository FullSync) cannot open an
// unbounded number of backend connections at once. It tracks a live
// queue-depth gauge and logs when the queue saturates, optionally
// mirroring the depth to Redis for cross-process observation when
// several syncd processes share a repository.
package backendqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"dvsync/internal/logging"
	"dvsync/internal/vectorstore"
)

// Config bounds the worker pool fronting the vector store backend.
type Config struct {
	WorkerCount int
	QueueSize   int

	// SaturationLogInterval throttles the "queue saturated" warning to
	// at most once per interval.
	SaturationLogInterval time.Duration

	// RedisAddr, if set, mirrors the queue-depth gauge to Redis under
	// RedisKey so other syncd processes sharing a repository can read
	// it. Empty disables the mirror.
	RedisAddr string
	RedisKey  string
}

// DefaultConfig returns sensible defaults for a single-process syncd.
func DefaultConfig() *Config {
	return &Config{
		WorkerCount:           8,
		QueueSize:             256,
		SaturationLogInterval: 10 * time.Second,
		RedisKey:              "dvsync:backendqueue:depth",
	}
}

type task struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

// QueuedStore wraps a vectorstore.Store behind a bounded worker pool.
// It implements vectorstore.Store itself, so it composes with
// CircuitBreakerStore the same way that decorator composes with the
// raw Chroma/Qdrant client.
type QueuedStore struct {
	store vectorstore.Store

	tasks  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	queued int64 // atomic: tasks currently queued or running

	logger      *logging.EnhancedLogger
	logInterval time.Duration
	lastLogMu   sync.Mutex
	lastLogTime time.Time

	redis    *redis.Client
	redisKey string
}

var _ vectorstore.Store = (*QueuedStore)(nil)

// New wraps store behind a worker pool sized by cfg. A nil cfg uses
// DefaultConfig. If cfg.RedisAddr is set but unreachable, the mirror is
// disabled and a warning is logged; the queue itself still works.
func New(store vectorstore.Store, cfg *Config) *QueuedStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	logInterval := cfg.SaturationLogInterval
	if logInterval <= 0 {
		logInterval = 10 * time.Second
	}
	redisKey := cfg.RedisKey
	if redisKey == "" {
		redisKey = "dvsync:backendqueue:depth"
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &QueuedStore{
		store:       store,
		tasks:       make(chan task, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logging.GetComponentLogger("backendqueue"),
		logInterval: logInterval,
		redisKey:    redisKey,
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pingCancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			q.logger.Warn("queue depth redis mirror unreachable, continuing without it",
				"addr", cfg.RedisAddr, "error", err.Error())
		} else {
			q.redis = client
		}
	}

	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.runWorker()
	}
	return q
}

func (q *QueuedStore) runWorker() {
	defer q.wg.Done()
	for {
		select {
		case t := <-q.tasks:
			t.done <- t.run(t.ctx)
			q.setQueued(atomic.AddInt64(&q.queued, -1))
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *QueuedStore) setQueued(depth int64) {
	if q.redis != nil {
		if err := q.redis.Set(q.ctx, q.redisKey, depth, 0).Err(); err != nil {
			q.logger.Debug("queue depth redis mirror write failed", "error", err.Error())
		}
	}
}

// QueueDepth returns the number of backend calls currently queued or
// in flight.
func (q *QueuedStore) QueueDepth() int {
	return int(atomic.LoadInt64(&q.queued))
}

func (q *QueuedStore) maybeLogSaturation() {
	depth := q.QueueDepth()
	if depth < cap(q.tasks) {
		return
	}
	q.lastLogMu.Lock()
	defer q.lastLogMu.Unlock()
	if time.Since(q.lastLogTime) < q.logInterval {
		return
	}
	q.lastLogTime = time.Now()
	q.logger.Warn("backend queue saturated", "depth", depth, "capacity", cap(q.tasks))
}

// submit enqueues run and blocks until it completes or ctx is
// cancelled. run itself always observes ctx, matching the
// circuitbreaker.Execute closure convention used elsewhere in
// vectorstore.
func (q *QueuedStore) submit(ctx context.Context, run func(ctx context.Context) error) error {
	depth := atomic.AddInt64(&q.queued, 1)
	q.setQueued(depth)
	q.maybeLogSaturation()

	done := make(chan error, 1)
	t := task{ctx: ctx, run: run, done: done}

	select {
	case q.tasks <- t:
	case <-ctx.Done():
		q.setQueued(atomic.AddInt64(&q.queued, -1))
		return ctx.Err()
	case <-q.ctx.Done():
		q.setQueued(atomic.AddInt64(&q.queued, -1))
		return fmt.Errorf("backend queue is shutting down")
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new work, waits for in-flight tasks to drain,
// and closes the Redis mirror if one is attached.
func (q *QueuedStore) Close() error {
	q.cancel()
	q.wg.Wait()
	if q.redis != nil {
		return q.redis.Close()
	}
	return nil
}

func (q *QueuedStore) ListCollections(ctx context.Context, offset, limit int) ([]vectorstore.CollectionInfo, error) {
	var result []vectorstore.CollectionInfo
	err := q.submit(ctx, func(ctx context.Context) error {
		var err error
		result, err = q.store.ListCollections(ctx, offset, limit)
		return err
	})
	return result, err
}

func (q *QueuedStore) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error {
	return q.submit(ctx, func(ctx context.Context) error {
		return q.store.CreateCollection(ctx, name, metadata)
	})
}

func (q *QueuedStore) DeleteCollection(ctx context.Context, name string) error {
	return q.submit(ctx, func(ctx context.Context) error {
		return q.store.DeleteCollection(ctx, name)
	})
}

func (q *QueuedStore) GetCollection(ctx context.Context, name string) (*vectorstore.CollectionInfo, error) {
	var result *vectorstore.CollectionInfo
	err := q.submit(ctx, func(ctx context.Context) error {
		var err error
		result, err = q.store.GetCollection(ctx, name)
		return err
	})
	return result, err
}

func (q *QueuedStore) CollectionCount(ctx context.Context, name string) (int, error) {
	var result int
	err := q.submit(ctx, func(ctx context.Context) error {
		var err error
		result, err = q.store.CollectionCount(ctx, name)
		return err
	})
	return result, err
}

func (q *QueuedStore) Add(ctx context.Context, collection string, contents, ids []string, metadatas []map[string]interface{}, allowDuplicateIDs, markAsLocalChange bool) error {
	return q.submit(ctx, func(ctx context.Context) error {
		return q.store.Add(ctx, collection, contents, ids, metadatas, allowDuplicateIDs, markAsLocalChange)
	})
}

func (q *QueuedStore) Get(ctx context.Context, collection string, ids []string, where map[string]interface{}, limit int) (*vectorstore.GetResult, error) {
	var result *vectorstore.GetResult
	err := q.submit(ctx, func(ctx context.Context) error {
		var err error
		result, err = q.store.Get(ctx, collection, ids, where, limit)
		return err
	})
	return result, err
}

func (q *QueuedStore) Update(ctx context.Context, collection string, ids []string, documents []string, metadatas []map[string]interface{}, markAsLocalChange bool) error {
	return q.submit(ctx, func(ctx context.Context) error {
		return q.store.Update(ctx, collection, ids, documents, metadatas, markAsLocalChange)
	})
}

func (q *QueuedStore) Delete(ctx context.Context, collection string, ids []string) error {
	return q.submit(ctx, func(ctx context.Context) error {
		return q.store.Delete(ctx, collection, ids)
	})
}

func (q *QueuedStore) Query(ctx context.Context, collection string, queryTexts []string, nResults int, where, whereDocument map[string]interface{}) (*vectorstore.GetResult, error) {
	var result *vectorstore.GetResult
	err := q.submit(ctx, func(ctx context.Context) error {
		var err error
		result, err = q.store.Query(ctx, collection, queryTexts, nResults, where, whereDocument)
		return err
	})
	return result, err
}
