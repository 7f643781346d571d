package vectorstore

import (
	"context"
	"time"

	"dvsync/internal/circuitbreaker"
	syncerrors "dvsync/internal/errors"
	"dvsync/internal/logging"
)

// CircuitBreakerStore wraps a Store with circuit breaker protection so a
// faltering vector store cannot cascade failures into every pipeline
// call.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.CircuitBreaker
}

// NewCircuitBreakerStore wraps store behind a circuit breaker. A nil
// config uses sensible defaults.
func NewCircuitBreakerStore(store Store, cfg *circuitbreaker.Config) *CircuitBreakerStore {
	logger := logging.GetComponentLogger("vectorstore.circuitbreaker")
	if cfg == nil {
		cfg = &circuitbreaker.Config{
			FailureThreshold:      5,
			SuccessThreshold:      2,
			Timeout:               30 * time.Second,
			MaxConcurrentRequests: 3,
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("vector store circuit breaker state change", "from", from.String(), "to", to.String())
			},
		}
	}
	return &CircuitBreakerStore{store: store, cb: circuitbreaker.New(cfg)}
}

func (s *CircuitBreakerStore) ListCollections(ctx context.Context, offset, limit int) ([]CollectionInfo, error) {
	var result []CollectionInfo
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.store.ListCollections(ctx, offset, limit)
		return err
	})
	return result, wrapUnavailable(err)
}

func (s *CircuitBreakerStore) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error {
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.CreateCollection(ctx, name, metadata)
	})
	return wrapUnavailable(err)
}

func (s *CircuitBreakerStore) DeleteCollection(ctx context.Context, name string) error {
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.DeleteCollection(ctx, name)
	})
	return wrapUnavailable(err)
}

func (s *CircuitBreakerStore) GetCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	var result *CollectionInfo
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.store.GetCollection(ctx, name)
		return err
	})
	return result, wrapUnavailable(err)
}

func (s *CircuitBreakerStore) CollectionCount(ctx context.Context, name string) (int, error) {
	var result int
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.store.CollectionCount(ctx, name)
		return err
	})
	return result, wrapUnavailable(err)
}

func (s *CircuitBreakerStore) Add(ctx context.Context, collection string, contents, ids []string, metadatas []map[string]interface{}, allowDuplicateIDs, markAsLocalChange bool) error {
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Add(ctx, collection, contents, ids, metadatas, allowDuplicateIDs, markAsLocalChange)
	})
	return wrapUnavailable(err)
}

func (s *CircuitBreakerStore) Get(ctx context.Context, collection string, ids []string, where map[string]interface{}, limit int) (*GetResult, error) {
	var result *GetResult
	err := s.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = s.store.Get(ctx, collection, ids, where, limit)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			result = &GetResult{}
			return nil
		},
	)
	return result, wrapUnavailable(err)
}

func (s *CircuitBreakerStore) Update(ctx context.Context, collection string, ids []string, documents []string, metadatas []map[string]interface{}, markAsLocalChange bool) error {
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Update(ctx, collection, ids, documents, metadatas, markAsLocalChange)
	})
	return wrapUnavailable(err)
}

func (s *CircuitBreakerStore) Delete(ctx context.Context, collection string, ids []string) error {
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, collection, ids)
	})
	return wrapUnavailable(err)
}

func (s *CircuitBreakerStore) Query(ctx context.Context, collection string, queryTexts []string, nResults int, where, whereDocument map[string]interface{}) (*GetResult, error) {
	var result *GetResult
	err := s.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = s.store.Query(ctx, collection, queryTexts, nResults, where, whereDocument)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			result = &GetResult{}
			return nil
		},
	)
	return result, wrapUnavailable(err)
}

// wrapUnavailable classifies a circuit-breaker-surfaced failure as
// BackendUnavailable so callers can branch on error kind.
func wrapUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return syncerrors.NewBackendUnavailable("vector store", err)
}
