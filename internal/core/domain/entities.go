package domain

import (
	"time"
)

// Record is a document stored in a search index.
type Record struct {
	ObjectID   string         `json:"objectID" yaml:"objectID"`
	Index      string         `json:"index" yaml:"index"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Geoloc     *LatLng        `json:"_geoloc,omitempty" yaml:"_geoloc,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at" yaml:"-"`
}

// Hit is a single search result.
type Hit struct {
	ObjectID    string         `json:"objectID"`
	Geoloc      *LatLng        `json:"_geoloc,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Position    int            `json:"__position"`
	QueryID     string         `json:"__queryID,omitempty"`
	GeoDistance *float64       `json:"geo_distance,omitempty"` // meters, computed
}

// SearchParameters is the query state a search is run with.
type SearchParameters struct {
	Index             string            `json:"index"`
	Query             string            `json:"query,omitempty"`
	AroundLatLng      string            `json:"aroundLatLng,omitempty"`
	AroundRadius      int               `json:"aroundRadius,omitempty"` // meters
	InsideBoundingBox *BoundingBoxParam `json:"insideBoundingBox,omitempty"`
	Page              int               `json:"page"`
	HitsPerPage       int               `json:"hitsPerPage"`
}

// Position returns the parsed aroundLatLng, or nil when absent or malformed.
func (p SearchParameters) Position() *LatLng {
	if p.AroundLatLng == "" {
		return nil
	}
	pos, err := ParseAroundLatLng(p.AroundLatLng)
	if err != nil {
		return nil
	}
	return pos
}

// SearchResults is the response of one search.
type SearchResults struct {
	Index            string `json:"index"`
	Query            string `json:"query"`
	QueryID          string `json:"queryID,omitempty"`
	Hits             []Hit  `json:"hits"`
	NbHits           int    `json:"nbHits"`
	Page             int    `json:"page"`
	HitsPerPage      int    `json:"hitsPerPage"`
	NbPages          int    `json:"nbPages"`
	ProcessingTimeMS int64  `json:"processingTimeMS"`
}

// GeoSearchUIState is the persisted part of the geo search widget.
type GeoSearchUIState struct {
	BoundingBox string `json:"boundingBox,omitempty"`
}

// IndexUIState is the persisted UI state of one index.
type IndexUIState struct {
	GeoSearch *GeoSearchUIState `json:"geoSearch,omitempty"`
}

// Insights event types.
const (
	EventView       = "view"
	EventClick      = "click"
	EventConversion = "conversion"
)

// InsightsPayload is the analytics payload of an insights event.
type InsightsPayload struct {
	EventName string   `json:"eventName"`
	Index     string   `json:"index"`
	ObjectIDs []string `json:"objectIDs"`
	Positions []int    `json:"positions,omitempty"`
	QueryID   string   `json:"queryID,omitempty"`
}

// InsightsEvent is an analytics event emitted by a widget.
type InsightsEvent struct {
	EventType      string          `json:"eventType"`
	InsightsMethod string          `json:"insightsMethod"`
	WidgetType     string          `json:"widgetType"`
	Hits           []Hit           `json:"hits,omitempty"`
	Payload        InsightsPayload `json:"payload"`
}

// InsightsMethods maps each supported event type to its insights method.
var InsightsMethods = map[string]string{
	EventView:       "viewedObjectIDs",
	EventClick:      "clickedObjectIDsAfterSearch",
	EventConversion: "convertedObjectIDsAfterSearch",
}

// IndexStats summarizes the content of one index.
type IndexStats struct {
	Name       string    `json:"name"`
	Records    int       `json:"records"`
	Geolocated int       `json:"geolocated"`
	UpdatedAt  time.Time `json:"updated_at"`
}
