package backendqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvsync/internal/vectorstore"
)

func TestQueuedStore_DelegatesToWrappedStore(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMockStore()
	q := New(store, &Config{WorkerCount: 2, QueueSize: 4})
	defer q.Close()

	require.NoError(t, q.CreateCollection(ctx, "col1", nil))
	got, err := q.GetCollection(ctx, "col1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "col1", got.Name)

	require.NoError(t, q.Add(ctx, "col1", []string{"hello"}, []string{"d1_chunk_0"},
		[]map[string]interface{}{{"source_id": "d1"}}, false, false))

	res, err := q.Get(ctx, "col1", nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1_chunk_0"}, res.IDs)
}

// blockingStore lets a test hold a worker busy so queue depth can be
// observed mid-flight.
type blockingStore struct {
	vectorstore.Store
	release chan struct{}
	entered chan struct{}
}

func (b *blockingStore) CollectionCount(ctx context.Context, name string) (int, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return 0, nil
}

func TestQueuedStore_BoundsConcurrencyAndTracksDepth(t *testing.T) {
	ctx := context.Background()
	inner := vectorstore.NewMockStore()
	blocker := &blockingStore{Store: inner, release: make(chan struct{}), entered: make(chan struct{}, 1)}
	q := New(blocker, &Config{WorkerCount: 1, QueueSize: 4, SaturationLogInterval: time.Millisecond})
	defer func() {
		close(blocker.release)
		q.Close()
	}()

	var wg sync.WaitGroup
	var completed int32
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.CollectionCount(ctx, "col1")
			atomic.AddInt32(&completed, 1)
		}()
	}

	<-blocker.entered
	// With a single worker, the first call is in flight and the other
	// two are queued: depth should reflect all three.
	require.Eventually(t, func() bool { return q.QueueDepth() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&completed), "no call should complete while the worker is blocked")

	close(blocker.release)
	blocker.release = make(chan struct{}) // avoid double-close from deferred cleanup
	wg.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&completed))
	assert.Equal(t, 0, q.QueueDepth())
}

func TestQueuedStore_SubmitRespectsContextCancellation(t *testing.T) {
	store := vectorstore.NewMockStore()
	q := New(store, &Config{WorkerCount: 0, QueueSize: 0}) // clamps to 1 worker, 1 slot
	defer q.Close()

	// Keep the single worker busy so the next submit has to sit queued
	// rather than run.
	blocked := make(chan struct{})
	go func() {
		_ = q.submit(context.Background(), func(ctx context.Context) error {
			<-blocked
			return nil
		})
	}()
	require.Eventually(t, func() bool { return q.QueueDepth() >= 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.submit(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(blocked)
}
