package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/geosearch/internal/core/domain"
	"github.com/samirrijal/geosearch/internal/core/ports"
	"github.com/samirrijal/geosearch/internal/pkg/geospatial"
	"github.com/samirrijal/geosearch/internal/pkg/metrics"
	"github.com/samirrijal/geosearch/internal/pkg/telemetry"
)

const (
	DefaultHitsPerPage = 20
	MaxHitsPerPage     = 100
	MaxPage            = 1000
	maxQueryLength     = 512
)

// ErrInvalidSearch is returned for search parameters the backend cannot run.
var ErrInvalidSearch = errors.New("invalid search parameters")

// SearchService runs geo searches against the record index.
type SearchService struct {
	records     ports.RecordRepository
	cache       ports.CacheService
	cacheTTL    int
	hitsPerPage int
}

// NewSearchService creates a new SearchService. cache may be nil.
// cacheTTL is in seconds; zero disables caching.
func NewSearchService(records ports.RecordRepository, cache ports.CacheService, cacheTTL, hitsPerPage int) *SearchService {
	if hitsPerPage <= 0 || hitsPerPage > MaxHitsPerPage {
		hitsPerPage = DefaultHitsPerPage
	}
	return &SearchService{records: records, cache: cache, cacheTTL: cacheTTL, hitsPerPage: hitsPerPage}
}

// Search returns one page of hits for params.
func (s *SearchService) Search(ctx context.Context, params domain.SearchParameters) (*domain.SearchResults, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanSearch, trace.WithAttributes(
		telemetry.AttrIndex.String(params.Index),
		telemetry.AttrQuery.String(params.Query),
	))
	defer span.End()

	q, err := s.resolve(params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	var key string
	if s.cache != nil && s.cacheTTL > 0 {
		if gen, ok := s.generation(ctx, q.Index); ok {
			key = cacheKey(q, gen)
		}
	}
	results, hit := s.cached(ctx, key)
	span.SetAttributes(telemetry.AttrCacheHit.Bool(hit))
	if !hit {
		records, total, err := s.records.Search(ctx, q)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository search failed")
			return nil, fmt.Errorf("search %s: %w", q.Index, err)
		}
		metrics.SearchDuration.WithLabelValues(q.Index).Observe(time.Since(start).Seconds())

		results = buildResults(q, params.Query, records, total)
		s.store(ctx, key, results)
	}
	metrics.Searches.WithLabelValues(q.Index).Inc()

	// Query IDs identify this response for click and conversion events.
	results.QueryID = strings.ReplaceAll(uuid.NewString(), "-", "")
	for i := range results.Hits {
		results.Hits[i].QueryID = results.QueryID
	}
	results.ProcessingTimeMS = time.Since(start).Milliseconds()

	span.SetAttributes(telemetry.AttrNbHits.Int(results.NbHits))
	return results, nil
}

// GetRecord returns a single record.
func (s *SearchService) GetRecord(ctx context.Context, index, objectID string) (*domain.Record, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanGetRecord, trace.WithAttributes(
		telemetry.AttrIndex.String(index),
	))
	defer span.End()

	var key string
	if s.cache != nil {
		if gen, ok := s.generation(ctx, index); ok {
			key = "record:" + index + ":" + gen + ":" + objectID
		}
	}
	if key != "" {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var rec domain.Record
			if err := json.Unmarshal(data, &rec); err == nil {
				metrics.CacheHits.WithLabelValues("record").Inc()
				return &rec, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("record").Inc()
	}

	rec, err := s.records.GetByID(ctx, index, objectID)
	if err != nil {
		return nil, err
	}

	if key != "" && s.cacheTTL > 0 {
		if data, err := json.Marshal(rec); err == nil {
			_ = s.cache.Set(ctx, key, data, s.cacheTTL*2)
		}
	}
	return rec, nil
}

// resolve validates params and turns them into a repository query.
func (s *SearchService) resolve(params domain.SearchParameters) (ports.RecordQuery, error) {
	if params.Index == "" {
		return ports.RecordQuery{}, fmt.Errorf("%w: index is required", ErrInvalidSearch)
	}
	if len(params.Query) > maxQueryLength {
		return ports.RecordQuery{}, fmt.Errorf("%w: query too long (max %d characters)", ErrInvalidSearch, maxQueryLength)
	}

	hitsPerPage := params.HitsPerPage
	switch {
	case hitsPerPage <= 0:
		hitsPerPage = s.hitsPerPage
	case hitsPerPage > MaxHitsPerPage:
		hitsPerPage = MaxHitsPerPage
	}
	page := params.Page
	if page < 0 {
		page = 0
	}
	if page > MaxPage {
		return ports.RecordQuery{}, fmt.Errorf("%w: page must be at most %d", ErrInvalidSearch, MaxPage)
	}

	q := ports.RecordQuery{
		Index:        params.Index,
		Query:        params.Query,
		RadiusMeters: params.AroundRadius,
		Limit:        hitsPerPage,
		Offset:       page * hitsPerPage,
	}

	if params.InsideBoundingBox != nil {
		q.Boxes = params.InsideBoundingBox.All()
		if len(q.Boxes) == 0 {
			return ports.RecordQuery{}, fmt.Errorf("%w: %w", ErrInvalidSearch, domain.ErrInvalidBoundingBox)
		}
	}
	if params.AroundLatLng != "" {
		pos, err := domain.ParseAroundLatLng(params.AroundLatLng)
		if err != nil {
			return ports.RecordQuery{}, fmt.Errorf("%w: %w", ErrInvalidSearch, err)
		}
		q.Around = pos
	}
	return q, nil
}

func (s *SearchService) cached(ctx context.Context, key string) (*domain.SearchResults, bool) {
	if key == "" {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues("search").Inc()
		return nil, false
	}
	var results domain.SearchResults
	if err := json.Unmarshal(data, &results); err != nil {
		metrics.CacheMisses.WithLabelValues("search").Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("search").Inc()
	return &results, true
}

func (s *SearchService) store(ctx context.Context, key string, results *domain.SearchResults) {
	if key == "" {
		return
	}
	if data, err := json.Marshal(results); err == nil {
		_ = s.cache.Set(ctx, key, data, s.cacheTTL)
	}
}

func buildResults(q ports.RecordQuery, query string, records []domain.Record, total int) *domain.SearchResults {
	hits := make([]domain.Hit, len(records))
	for i, rec := range records {
		hit := domain.Hit{
			ObjectID:   rec.ObjectID,
			Geoloc:     rec.Geoloc,
			Attributes: rec.Attributes,
			Position:   q.Offset + i + 1,
		}
		if q.Around != nil && rec.Geoloc != nil {
			d := geospatial.Haversine(q.Around.Lat, q.Around.Lng, rec.Geoloc.Lat, rec.Geoloc.Lng)
			hit.GeoDistance = &d
		}
		hits[i] = hit
	}

	nbPages := 0
	if q.Limit > 0 {
		nbPages = (total + q.Limit - 1) / q.Limit
	}
	return &domain.SearchResults{
		Index:       q.Index,
		Query:       query,
		Hits:        hits,
		NbHits:      total,
		Page:        q.Offset / q.Limit,
		HitsPerPage: q.Limit,
		NbPages:     nbPages,
	}
}

// generation returns the current cache generation of index. When it cannot
// be read ok is false and the call bypasses the cache.
func (s *SearchService) generation(ctx context.Context, index string) (gen string, ok bool) {
	data, err := s.cache.Get(ctx, generationKey(index))
	switch {
	case err == nil:
		return string(data), true
	case errors.Is(err, ports.ErrCacheMiss):
		return "0", true
	default:
		return "", false
	}
}

func generationKey(index string) string { return "index-gen:" + index }

func cacheKey(q ports.RecordQuery, gen string) string {
	var b strings.Builder
	b.WriteString("search:")
	b.WriteString(q.Index)
	b.WriteString(":g")
	b.WriteString(gen)
	b.WriteString(":")
	b.WriteString(strconv.Quote(q.Query))
	for _, box := range q.Boxes {
		b.WriteString(":b=")
		b.WriteString(box.String())
	}
	if q.Around != nil {
		fmt.Fprintf(&b, ":a=%g,%g,%d", q.Around.Lat, q.Around.Lng, q.RadiusMeters)
	}
	fmt.Fprintf(&b, ":%d:%d", q.Offset, q.Limit)
	return b.String()
}

const indexesKey = "indexes:list"

// InvalidateIndex makes every cached search page and record of index stale
// by bumping its cache generation, and drops the index list.
func (s *SearchService) InvalidateIndex(ctx context.Context, index string) error {
	if s.cache == nil {
		return nil
	}
	if _, err := s.cache.Incr(ctx, generationKey(index)); err != nil {
		return fmt.Errorf("invalidate %s: %w", index, err)
	}
	if err := s.cache.Delete(ctx, indexesKey); err != nil {
		return fmt.Errorf("invalidate %s: %w", index, err)
	}
	return nil
}

// ListIndexes returns every index with its record counts.
func (s *SearchService) ListIndexes(ctx context.Context) ([]domain.IndexStats, error) {
	const key = indexesKey
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var stats []domain.IndexStats
			if err := json.Unmarshal(data, &stats); err == nil {
				return stats, nil
			}
		}
	}

	stats, err := s.records.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			_ = s.cache.Set(ctx, key, data, 60)
		}
	}
	return stats, nil
}
