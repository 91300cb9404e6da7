package ports

import (
	"context"

	"github.com/samirrijal/geosearch/internal/core/domain"
)

// RecordQuery is a resolved search against one index.
type RecordQuery struct {
	Index string
	Query string
	// Boxes restricts hits to the union of the boxes. Empty means no restriction.
	Boxes []domain.BoundingBox
	// Around and RadiusMeters restrict hits to a circle. RadiusMeters <= 0 means
	// the circle only orders results by distance.
	Around       *domain.LatLng
	RadiusMeters int
	Limit        int
	Offset       int
}

// RecordRepository persists indexed records.
type RecordRepository interface {
	// Search returns one page of records and the total number of matches.
	Search(ctx context.Context, q RecordQuery) ([]domain.Record, int, error)
	GetByID(ctx context.Context, index, objectID string) (*domain.Record, error)
	// GetBatch returns the records of objectIDs that exist. Missing IDs are skipped.
	GetBatch(ctx context.Context, index string, objectIDs []string) ([]domain.Record, error)
	// UpsertBatch writes all records or none of them.
	UpsertBatch(ctx context.Context, records []domain.Record) error
	DeleteBatch(ctx context.Context, index string, objectIDs []string) error
	ListIndexes(ctx context.Context) ([]domain.IndexStats, error)
}
