package http

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/geosearch/internal/adapters/postgres"
	"github.com/samirrijal/geosearch/internal/adapters/valkey"
	"github.com/samirrijal/geosearch/internal/core/usecases"
	"github.com/samirrijal/geosearch/internal/geosearch"
	"github.com/samirrijal/geosearch/internal/session"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Search   *usecases.SearchService
	Insights *usecases.InsightsService
	UIState  *usecases.UIStateService
	Sessions *session.Registry

	// Widget holds the defaults for live sessions.
	Widget        geosearch.Params
	SearchTimeout time.Duration

	// OpenAPIPath locates the document served under /docs.
	OpenAPIPath string

	NATS  *nats.Conn
	DB    *postgres.DB
	Cache *valkey.Cache
}
