package usecases_test

import (
	"context"
	"strconv"

	"github.com/samirrijal/geosearch/internal/core/domain"
	"github.com/samirrijal/geosearch/internal/core/ports"
)

// --- Mock RecordRepository ---

type mockRecordRepo struct {
	searchFn      func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error)
	getByIDFn     func(ctx context.Context, index, objectID string) (*domain.Record, error)
	upsertBatchFn func(ctx context.Context, records []domain.Record) error
	deleteBatchFn func(ctx context.Context, index string, objectIDs []string) error
	listIndexesFn func(ctx context.Context) ([]domain.IndexStats, error)
	searchCalls   int
}

func (m *mockRecordRepo) Search(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
	m.searchCalls++
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return nil, 0, nil
}

func (m *mockRecordRepo) GetByID(ctx context.Context, index, objectID string) (*domain.Record, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, index, objectID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockRecordRepo) GetBatch(ctx context.Context, index string, objectIDs []string) ([]domain.Record, error) {
	return nil, nil
}

func (m *mockRecordRepo) UpsertBatch(ctx context.Context, records []domain.Record) error {
	if m.upsertBatchFn != nil {
		return m.upsertBatchFn(ctx, records)
	}
	return nil
}

func (m *mockRecordRepo) DeleteBatch(ctx context.Context, index string, objectIDs []string) error {
	if m.deleteBatchFn != nil {
		return m.deleteBatchFn(ctx, index, objectIDs)
	}
	return nil
}

func (m *mockRecordRepo) ListIndexes(ctx context.Context) ([]domain.IndexStats, error) {
	if m.listIndexesFn != nil {
		return m.listIndexesFn(ctx)
	}
	return nil, nil
}

// --- In-memory CacheService ---

type memCache struct {
	data map[string][]byte
	ttls map[string]int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := c.data[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.data[key] = value
	c.ttls[key] = ttlSeconds
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *memCache) Incr(ctx context.Context, key string) (int64, error) {
	n, _ := strconv.ParseInt(string(c.data[key]), 10, 64)
	n++
	c.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// --- Mock InsightsPublisher ---

type mockInsightsPublisher struct {
	events    []*domain.InsightsEvent
	publishFn func(ctx context.Context, e *domain.InsightsEvent) error
}

func (m *mockInsightsPublisher) PublishInsightsEvent(ctx context.Context, e *domain.InsightsEvent) error {
	if m.publishFn != nil {
		if err := m.publishFn(ctx, e); err != nil {
			return err
		}
	}
	m.events = append(m.events, e)
	return nil
}
