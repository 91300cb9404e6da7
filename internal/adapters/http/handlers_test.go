package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/geosearch/internal/adapters/http"
	"github.com/samirrijal/geosearch/internal/core/domain"
	"github.com/samirrijal/geosearch/internal/core/ports"
	"github.com/samirrijal/geosearch/internal/core/usecases"
)

// ---- Mocks ----

type mockRecordRepo struct {
	searchFn      func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error)
	getByIDFn     func(ctx context.Context, index, objectID string) (*domain.Record, error)
	listIndexesFn func(ctx context.Context) ([]domain.IndexStats, error)
}

func (m *mockRecordRepo) Search(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
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
func (m *mockRecordRepo) GetBatch(ctx context.Context, index string, ids []string) ([]domain.Record, error) {
	return nil, nil
}
func (m *mockRecordRepo) UpsertBatch(ctx context.Context, records []domain.Record) error { return nil }
func (m *mockRecordRepo) DeleteBatch(ctx context.Context, index string, ids []string) error {
	return nil
}
func (m *mockRecordRepo) ListIndexes(ctx context.Context) ([]domain.IndexStats, error) {
	if m.listIndexesFn != nil {
		return m.listIndexesFn(ctx)
	}
	return nil, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return v, nil
}
func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}
func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := strconv.ParseInt(string(c.data[key]), 10, 64)
	n++
	c.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*domain.InsightsEvent
}

func (m *mockPublisher) PublishInsightsEvent(ctx context.Context, e *domain.InsightsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	d := &handler.Dependencies{
		Search:   usecases.NewSearchService(&mockRecordRepo{}, nil, 0, 20),
		Insights: usecases.NewInsightsService(&mockPublisher{}),
		UIState:  usecases.NewUIStateService(&memCache{data: map[string][]byte{}}, 3600),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func withRepo(repo *mockRecordRepo) func(*handler.Dependencies) {
	return func(d *handler.Dependencies) {
		d.Search = usecases.NewSearchService(repo, nil, 0, 20)
	}
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func decodeError(t *testing.T, body io.Reader) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.Unmarshal(readBody(t, body), &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return apiErr
}

func geoRecord(id string, lat, lng float64) domain.Record {
	return domain.Record{ObjectID: id, Index: "places", Geoloc: &domain.LatLng{Lat: lat, Lng: lng}}
}

// ---- Index handler tests ----

func TestListIndexes_Pagination(t *testing.T) {
	stats := make([]domain.IndexStats, 5)
	for i := range stats {
		stats[i] = domain.IndexStats{Name: fmt.Sprintf("idx%d", i), Records: i}
	}
	app := setupApp(makeDeps(withRepo(&mockRecordRepo{
		listIndexesFn: func(ctx context.Context) ([]domain.IndexStats, error) { return stats, nil },
	})))

	req := httptest.NewRequest("GET", "/v1/indexes?offset=2&limit=2", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.IndexStats `json:"data"`
		Pagination handler.Pagination  `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 5 {
		t.Errorf("expected total 5, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 2 || result.Data[0].Name != "idx2" {
		t.Errorf("expected idx2 and idx3, got %+v", result.Data)
	}

	link := resp.Header.Get("Link")
	for _, rel := range []string{`rel="first"`, `rel="prev"`, `rel="next"`, `rel="last"`} {
		if !strings.Contains(link, rel) {
			t.Errorf("expected %s in Link header, got %s", rel, link)
		}
	}
}

func TestListIndexes_OffsetPastEnd(t *testing.T) {
	app := setupApp(makeDeps(withRepo(&mockRecordRepo{
		listIndexesFn: func(ctx context.Context) ([]domain.IndexStats, error) {
			return []domain.IndexStats{{Name: "places"}}, nil
		},
	})))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/indexes?offset=10", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := string(readBody(t, resp.Body)); !strings.Contains(body, `"data":[]`) {
		t.Errorf("expected empty data array, got %s", body)
	}
}

// ---- Search handler tests ----

func TestSearch_BoundingBox(t *testing.T) {
	var got ports.RecordQuery
	app := setupApp(makeDeps(withRepo(&mockRecordRepo{
		searchFn: func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
			got = q
			return []domain.Record{geoRecord("abando", 43.26, -2.93)}, 1, nil
		},
	})))

	req := httptest.NewRequest("GET", "/v1/indexes/places/search?query=cafe&insideBoundingBox=43.3,-2.9,43.2,-3.0&hitsPerPage=5", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}

	var results domain.SearchResults
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatal(err)
	}
	if results.NbHits != 1 || len(results.Hits) != 1 {
		t.Fatalf("expected 1 hit, got %+v", results)
	}
	if results.QueryID == "" || results.Hits[0].QueryID != results.QueryID {
		t.Errorf("expected hits to carry the response queryID, got %q / %q", results.Hits[0].QueryID, results.QueryID)
	}
	if results.Hits[0].Position != 1 {
		t.Errorf("expected position 1, got %d", results.Hits[0].Position)
	}

	if got.Index != "places" || got.Query != "cafe" || got.Limit != 5 {
		t.Errorf("unexpected repository query %+v", got)
	}
	if len(got.Boxes) != 1 || got.Boxes[0].NorthEast.Lat != 43.3 {
		t.Errorf("expected one box from the query string, got %+v", got.Boxes)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "private, max-age=0" {
		t.Errorf("expected private Cache-Control, got %q", cc)
	}
}

func TestSearch_ArrayBoundingBox(t *testing.T) {
	var got ports.RecordQuery
	app := setupApp(makeDeps(withRepo(&mockRecordRepo{
		searchFn: func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
			got = q
			return nil, 0, nil
		},
	})))

	req := httptest.NewRequest("GET", `/v1/indexes/places/search?insideBoundingBox=[[10,12,12,14],[1,2,3,4]]`, nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(got.Boxes) != 2 {
		t.Errorf("expected both boxes to reach the repository, got %+v", got.Boxes)
	}
}

func TestSearch_InvalidBoundingBox(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/indexes/places/search?insideBoundingBox=1,2,3", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if apiErr := decodeError(t, resp.Body); apiErr.Code != "bad_request" {
		t.Errorf("expected bad_request, got %q", apiErr.Code)
	}
}

func TestSearch_InvalidAroundLatLng(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/indexes/places/search?aroundLatLng=north", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSearch_PageOutOfRange(t *testing.T) {
	app := setupApp(makeDeps())

	for _, page := range []string{"1001", "9223372036854775807"} {
		req := httptest.NewRequest("GET", "/v1/indexes/places/search?page="+page, nil)
		resp, _ := app.Test(req, -1)
		if resp.StatusCode != 400 {
			t.Errorf("page=%s: expected 400, got %d", page, resp.StatusCode)
		}
	}
}

func TestSearch_RepositoryError(t *testing.T) {
	app := setupApp(makeDeps(withRepo(&mockRecordRepo{
		searchFn: func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
			return nil, 0, errors.New("connection reset")
		},
	})))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/indexes/places/search", nil), -1)
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if apiErr := decodeError(t, resp.Body); strings.Contains(apiErr.Message, "connection reset") {
		t.Errorf("internal error details leaked: %q", apiErr.Message)
	}
}

func TestLegacySearch_DeprecationHeaders(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/search?index=places", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header")
	}
	if resp.Header.Get("Sunset") == "" {
		t.Error("expected Sunset header")
	}
	if !strings.Contains(resp.Header.Get("Link"), "successor-version") {
		t.Errorf("expected successor link, got %q", resp.Header.Get("Link"))
	}
}

func TestLegacySearch_MissingIndex(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/search", nil), -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Record handler tests ----

func TestGetRecord_Success(t *testing.T) {
	app := setupApp(makeDeps(withRepo(&mockRecordRepo{
		getByIDFn: func(ctx context.Context, index, objectID string) (*domain.Record, error) {
			rec := geoRecord(objectID, 43.26, -2.93)
			return &rec, nil
		},
	})))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/indexes/places/records/abando", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rec domain.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.ObjectID != "abando" {
		t.Errorf("expected abando, got %q", rec.ObjectID)
	}
	if resp.Header.Get("ETag") == "" {
		t.Error("expected ETag on a cacheable response")
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/indexes/places/records/missing", nil), -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if apiErr := decodeError(t, resp.Body); apiErr.Code != "not_found" {
		t.Errorf("expected not_found, got %q", apiErr.Code)
	}
}

func TestGetRecord_ETagNotModified(t *testing.T) {
	app := setupApp(makeDeps(withRepo(&mockRecordRepo{
		getByIDFn: func(ctx context.Context, index, objectID string) (*domain.Record, error) {
			return &domain.Record{ObjectID: objectID, Index: index}, nil
		},
	})))

	first, _ := app.Test(httptest.NewRequest("GET", "/v1/indexes/places/records/abando", nil), -1)
	etag := first.Header.Get("ETag")

	req := httptest.NewRequest("GET", "/v1/indexes/places/records/abando", nil)
	req.Header.Set("If-None-Match", etag)
	second, _ := app.Test(req, -1)
	if second.StatusCode != 304 {
		t.Fatalf("expected 304, got %d", second.StatusCode)
	}
}

// ---- UI state handler tests ----

func TestUIState_PutThenGet(t *testing.T) {
	app := setupApp(makeDeps())

	body := `{"geoSearch":{"boundingBox":"10,12,12,14"}}`
	req := httptest.NewRequest("PUT", "/v1/sessions/s1/ui-state", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/v1/sessions/s1/ui-state", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var ui domain.IndexUIState
	if err := json.NewDecoder(resp.Body).Decode(&ui); err != nil {
		t.Fatal(err)
	}
	if ui.GeoSearch == nil || ui.GeoSearch.BoundingBox != "10,12,12,14" {
		t.Errorf("unexpected ui state %+v", ui)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "private, no-store" {
		t.Errorf("expected no-store, got %q", cc)
	}
}

func TestUIState_GetUnknownSessionIsEmpty(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/sessions/nobody/ui-state", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := strings.TrimSpace(string(readBody(t, resp.Body))); body != "{}" {
		t.Errorf("expected empty state, got %s", body)
	}
}

func TestUIState_PutInvalidBox(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("PUT", "/v1/sessions/s1/ui-state", strings.NewReader(`{"geoSearch":{"boundingBox":"north"}}`))
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUIState_PutMalformedBody(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("PUT", "/v1/sessions/s1/ui-state", strings.NewReader(`{`))
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Insights handler tests ----

func TestInsights_Accepted(t *testing.T) {
	pub := &mockPublisher{}
	app := setupApp(makeDeps(func(d *handler.Dependencies) {
		d.Insights = usecases.NewInsightsService(pub)
	}))

	body := `{"eventType":"click","widgetType":"ais.geoSearch","payload":{"eventName":"Location Clicked","index":"places","objectIDs":["abando"],"positions":[1],"queryID":"q1"}}`
	req := httptest.NewRequest("POST", "/v1/insights", strings.NewReader(body))
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.events))
	}
	if pub.events[0].InsightsMethod != "clickedObjectIDsAfterSearch" {
		t.Errorf("expected the click method to be filled in, got %q", pub.events[0].InsightsMethod)
	}
}

func TestInsights_UnknownEventType(t *testing.T) {
	app := setupApp(makeDeps())

	body := `{"eventType":"hover","payload":{"index":"places","objectIDs":["abando"]}}`
	resp, _ := app.Test(httptest.NewRequest("POST", "/v1/insights", strings.NewReader(body)), -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- GraphQL tests ----

func TestGraphQL_GeoSearch(t *testing.T) {
	app := setupApp(makeDeps(withRepo(&mockRecordRepo{
		searchFn: func(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
			return []domain.Record{geoRecord("abando", 43.26, -2.93)}, 1, nil
		},
	})))

	query := `{"query":"{ geoSearch(index: \"places\", aroundLatLng: \"43.26, -2.93\") { nbHits hits { objectID position geoDistance geoloc { lat lng } } } }"}`
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(query))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			GeoSearch struct {
				NbHits int `json:"nbHits"`
				Hits   []struct {
					ObjectID    string        `json:"objectID"`
					Position    int           `json:"position"`
					GeoDistance *float64      `json:"geoDistance"`
					Geoloc      domain.LatLng `json:"geoloc"`
				} `json:"hits"`
			} `json:"geoSearch"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	hits := result.Data.GeoSearch.Hits
	if result.Data.GeoSearch.NbHits != 1 || len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %+v", result.Data.GeoSearch)
	}
	if hits[0].ObjectID != "abando" || hits[0].Position != 1 {
		t.Errorf("unexpected hit %+v", hits[0])
	}
	if hits[0].GeoDistance == nil || *hits[0].GeoDistance > 1 {
		t.Errorf("expected a near-zero distance, got %v", hits[0].GeoDistance)
	}
}

func TestGraphQL_InvalidBody(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Health and middleware tests ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
}

func TestReady_NoDB(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestAPIVersionHeader(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if v := resp.Header.Get("X-API-Version"); v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/ws/geosearch?index=places", nil), -1)
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}

func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(handler.AccessLogMiddleware())
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "test-req-123")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp.Body); !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", body)
	}
}
