package usecases_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/samirrijal/geosearch/internal/core/domain"
	"github.com/samirrijal/geosearch/internal/core/ports"
	"github.com/samirrijal/geosearch/internal/core/usecases"
)

func bilbaoRecords() []domain.Record {
	return []domain.Record{
		{ObjectID: "abando", Index: "places", Geoloc: &domain.LatLng{Lat: 43.2614, Lng: -2.9275}},
		{ObjectID: "moyua", Index: "places", Geoloc: &domain.LatLng{Lat: 43.2630, Lng: -2.9350}},
		{ObjectID: "online-only", Index: "places"},
	}
}

func TestSearchService_Search(t *testing.T) {
	repo := &mockRecordRepo{
		searchFn: func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
			if q.Index != "places" {
				t.Errorf("expected index places, got %s", q.Index)
			}
			if q.Limit != 20 || q.Offset != 0 {
				t.Errorf("expected default paging, got limit=%d offset=%d", q.Limit, q.Offset)
			}
			return bilbaoRecords(), 3, nil
		},
	}

	svc := usecases.NewSearchService(repo, nil, 0, 20)
	res, err := svc.Search(context.Background(), domain.SearchParameters{Index: "places"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NbHits != 3 || len(res.Hits) != 3 {
		t.Fatalf("expected 3 hits, got %d/%d", res.NbHits, len(res.Hits))
	}
	if res.NbPages != 1 {
		t.Errorf("expected 1 page, got %d", res.NbPages)
	}
	if res.QueryID == "" {
		t.Error("expected a query ID")
	}
	for i, h := range res.Hits {
		if h.Position != i+1 {
			t.Errorf("hit %d: expected position %d, got %d", i, i+1, h.Position)
		}
		if h.QueryID != res.QueryID {
			t.Errorf("hit %d: query ID not propagated", i)
		}
	}
}

func TestSearchService_Search_Paging(t *testing.T) {
	repo := &mockRecordRepo{
		searchFn: func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
			if q.Limit != 100 {
				t.Errorf("expected limit clamped to 100, got %d", q.Limit)
			}
			if q.Offset != 200 {
				t.Errorf("expected offset 200, got %d", q.Offset)
			}
			return bilbaoRecords()[:1], 250, nil
		},
	}

	svc := usecases.NewSearchService(repo, nil, 0, 20)
	res, err := svc.Search(context.Background(), domain.SearchParameters{Index: "places", Page: 2, HitsPerPage: 999})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Page != 2 || res.NbPages != 3 {
		t.Errorf("expected page 2 of 3, got %d of %d", res.Page, res.NbPages)
	}
	if res.Hits[0].Position != 201 {
		t.Errorf("expected absolute position 201, got %d", res.Hits[0].Position)
	}
}

func TestSearchService_Search_GeoFilters(t *testing.T) {
	repo := &mockRecordRepo{
		searchFn: func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
			if len(q.Boxes) != 2 {
				t.Errorf("expected 2 boxes, got %d", len(q.Boxes))
			}
			if q.Around == nil || q.Around.Lat != 43.2614 {
				t.Errorf("expected around point, got %+v", q.Around)
			}
			if q.RadiusMeters != 1000 {
				t.Errorf("expected radius 1000, got %d", q.RadiusMeters)
			}
			return bilbaoRecords(), 3, nil
		},
	}

	svc := usecases.NewSearchService(repo, nil, 0, 20)
	res, err := svc.Search(context.Background(), domain.SearchParameters{
		Index:        "places",
		AroundLatLng: "43.2614, -2.9275",
		AroundRadius: 1000,
		InsideBoundingBox: &domain.BoundingBoxParam{Boxes: [][]float64{
			{43.3, -2.9, 43.2, -3.0},
			{40.5, -3.6, 40.3, -3.8},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d := res.Hits[0].GeoDistance; d == nil || *d != 0 {
		t.Errorf("expected zero distance for the center hit, got %v", d)
	}
	if d := res.Hits[1].GeoDistance; d == nil || *d < 500 {
		t.Errorf("expected distance for the second hit, got %v", d)
	}
	if res.Hits[2].GeoDistance != nil {
		t.Error("expected no distance for a hit without _geoloc")
	}
}

func TestSearchService_Search_Invalid(t *testing.T) {
	svc := usecases.NewSearchService(&mockRecordRepo{}, nil, 0, 20)

	cases := map[string]domain.SearchParameters{
		"missing index": {},
		"bad box":       {Index: "places", InsideBoundingBox: domain.BoundingBoxText("1,2,3")},
		"bad around":    {Index: "places", AroundLatLng: "north"},
		"page too far":  {Index: "places", Page: usecases.MaxPage + 1},
		"huge page":     {Index: "places", Page: math.MaxInt},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Search(context.Background(), params)
			if !errors.Is(err, usecases.ErrInvalidSearch) {
				t.Errorf("expected ErrInvalidSearch, got %v", err)
			}
		})
	}

	_, err := svc.Search(context.Background(), cases["bad box"])
	if !errors.Is(err, domain.ErrInvalidBoundingBox) {
		t.Errorf("expected ErrInvalidBoundingBox in chain, got %v", err)
	}
}

func TestSearchService_Search_Cache(t *testing.T) {
	repo := &mockRecordRepo{
		searchFn: func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
			return bilbaoRecords(), 3, nil
		},
	}
	cache := newMemCache()
	svc := usecases.NewSearchService(repo, cache, 300, 20)
	params := domain.SearchParameters{Index: "places", InsideBoundingBox: domain.BoundingBoxText("43.3,-2.9,43.2,-3.0")}

	first, err := svc.Search(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Search(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.searchCalls != 1 {
		t.Errorf("expected repository to be hit once, got %d", repo.searchCalls)
	}
	if len(second.Hits) != 3 {
		t.Errorf("expected cached hits, got %d", len(second.Hits))
	}
	if first.QueryID == second.QueryID {
		t.Error("expected a fresh query ID per response")
	}
	for k, ttl := range cache.ttls {
		if ttl != 300 {
			t.Errorf("%s: expected ttl 300, got %d", k, ttl)
		}
	}
}

func TestSearchService_Search_RepoError(t *testing.T) {
	boom := errors.New("connection refused")
	repo := &mockRecordRepo{
		searchFn: func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
			return nil, 0, boom
		},
	}

	svc := usecases.NewSearchService(repo, nil, 0, 20)
	_, err := svc.Search(context.Background(), domain.SearchParameters{Index: "places"})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped repository error, got %v", err)
	}
}

func TestSearchService_GetRecord(t *testing.T) {
	calls := 0
	repo := &mockRecordRepo{
		getByIDFn: func(ctx context.Context, index, objectID string) (*domain.Record, error) {
			calls++
			return &domain.Record{ObjectID: objectID, Index: index}, nil
		},
	}
	svc := usecases.NewSearchService(repo, newMemCache(), 300, 20)

	for i := 0; i < 2; i++ {
		rec, err := svc.GetRecord(context.Background(), "places", "abando")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.ObjectID != "abando" {
			t.Errorf("expected abando, got %s", rec.ObjectID)
		}
	}
	if calls != 1 {
		t.Errorf("expected one repository call, got %d", calls)
	}
}

func TestSearchService_GetRecord_NotFound(t *testing.T) {
	svc := usecases.NewSearchService(&mockRecordRepo{}, nil, 0, 20)
	_, err := svc.GetRecord(context.Background(), "places", "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchService_ListIndexes_CachedUntilInvalidated(t *testing.T) {
	calls := 0
	repo := &mockRecordRepo{
		listIndexesFn: func(ctx context.Context) ([]domain.IndexStats, error) {
			calls++
			return []domain.IndexStats{{Name: "places", Records: 3, Geolocated: 2}}, nil
		},
	}
	svc := usecases.NewSearchService(repo, newMemCache(), 300, 20)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		stats, err := svc.ListIndexes(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(stats) != 1 || stats[0].Geolocated != 2 {
			t.Fatalf("unexpected stats %+v", stats)
		}
	}
	if calls != 1 {
		t.Errorf("expected one repository call before invalidation, got %d", calls)
	}

	if err := svc.InvalidateIndex(ctx, "places"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := svc.ListIndexes(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected a repository call after invalidation, got %d", calls)
	}
}

func TestSearchService_InvalidateIndex_NoCache(t *testing.T) {
	svc := usecases.NewSearchService(&mockRecordRepo{}, nil, 0, 20)
	if err := svc.InvalidateIndex(context.Background(), "places"); err != nil {
		t.Errorf("expected no error without a cache, got %v", err)
	}
}

func TestSearchService_InvalidateIndex_RefetchesSearchesAndRecords(t *testing.T) {
	name := "Abando"
	repo := &mockRecordRepo{
		searchFn: func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
			return []domain.Record{{ObjectID: "abando", Index: q.Index, Attributes: map[string]any{"name": name}}}, 1, nil
		},
		getByIDFn: func(ctx context.Context, index, objectID string) (*domain.Record, error) {
			return &domain.Record{ObjectID: objectID, Index: index, Attributes: map[string]any{"name": name}}, nil
		},
	}
	svc := usecases.NewSearchService(repo, newMemCache(), 300, 20)
	ctx := context.Background()
	places := domain.SearchParameters{Index: "places"}
	shops := domain.SearchParameters{Index: "shops"}

	for _, p := range []domain.SearchParameters{places, shops} {
		if _, err := svc.Search(ctx, p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := svc.GetRecord(ctx, "places", "abando"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	name = "Abando Station"
	if err := svc.InvalidateIndex(ctx, "places"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	res, err := svc.Search(ctx, places)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.Hits[0].Attributes["name"]; got != "Abando Station" {
		t.Errorf("expected fresh hit after invalidation, got %v", got)
	}
	if repo.searchCalls != 3 {
		t.Errorf("expected 3 repository searches, got %d", repo.searchCalls)
	}

	// Other indexes keep their cached pages.
	if _, err := svc.Search(ctx, shops); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.searchCalls != 3 {
		t.Errorf("expected shops to stay cached, got %d repository searches", repo.searchCalls)
	}

	rec, err := svc.GetRecord(ctx, "places", "abando")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Attributes["name"]; got != "Abando Station" {
		t.Errorf("expected fresh record after invalidation, got %v", got)
	}
}
