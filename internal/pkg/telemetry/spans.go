package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span names.
const (
	SpanHTTPRequest  = "http.request"
	SpanSearch       = "search.query"
	SpanGetRecord    = "search.get_record"
	SpanInsights     = "insights.send"
	SpanUIStateLoad  = "uistate.load"
	SpanUIStateSave  = "uistate.save"
	SpanUpsertBatch  = "indexer.upsert_batch"
	SpanIndexUpdated = "indexer.index_updated"
)

// Attribute keys.
var (
	AttrIndex     = attribute.Key("geosearch.index")
	AttrQuery     = attribute.Key("geosearch.query")
	AttrCacheHit  = attribute.Key("geosearch.cache_hit")
	AttrNbHits    = attribute.Key("geosearch.nb_hits")
	AttrEventType = attribute.Key("geosearch.event_type")
	AttrSessionID = attribute.Key("geosearch.session_id")
	AttrBatchSize = attribute.Key("geosearch.batch_size")
	AttrRoute     = attribute.Key("http.route")
	AttrStatus    = attribute.Key("http.status_code")
)
