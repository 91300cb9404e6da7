package ports

import (
	"context"
	"errors"

	"github.com/samirrijal/geosearch/internal/core/domain"
)

// InsightsPublisher publishes analytics events to a message broker.
type InsightsPublisher interface {
	PublishInsightsEvent(ctx context.Context, event *domain.InsightsEvent) error
}

// IndexEventPublisher announces that the content of an index changed.
type IndexEventPublisher interface {
	PublishIndexUpdated(ctx context.Context, index string) error
}

// IndexEventSubscriber receives index change notifications.
type IndexEventSubscriber interface {
	SubscribeIndexUpdates(ctx context.Context, handler func(ctx context.Context, index string) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
	// Incr atomically increments the integer at key and returns the new value.
	// A missing key counts as zero.
	Incr(ctx context.Context, key string) (int64, error)
}

// ErrCacheMiss is returned by CacheService.Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")
