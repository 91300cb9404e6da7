package geosearch

import (
	"log/slog"

	"github.com/samirrijal/geosearch/internal/core/domain"
)

// Controls exposes the widget operations to the view layer. The same
// *Controls is handed out in every RenderState of a widget.
type Controls struct {
	w *Widget
}

// Refine restricts the search to box and requests a new search.
func (c *Controls) Refine(box domain.BoundingBox) {
	h := c.w.helper
	if h == nil {
		return
	}

	state := h.State()
	state.InsideBoundingBox = domain.BoundingBoxText(box.String())
	state.Page = 0
	h.SetState(state)

	c.w.mapMoved = false
	c.w.lastBoundingBox = &box

	h.Search()
}

// ClearMapRefinement drops the bounding box and requests a new search.
func (c *Controls) ClearMapRefinement() {
	h := c.w.helper
	if h == nil {
		return
	}

	state := h.State()
	state.InsideBoundingBox = nil
	state.Page = 0
	h.SetState(state)
	h.Search()
}

// IsRefinedWithMap reports whether a bounding box is currently applied.
func (c *Controls) IsRefinedWithMap() bool {
	if c.w.helper == nil {
		return false
	}
	return c.w.helper.State().InsideBoundingBox.Resolve() != nil
}

// ToggleRefineOnMapMove flips the toggle and re-renders.
func (c *Controls) ToggleRefineOnMapMove() {
	c.w.refineOnMapMove = !c.w.refineOnMapMove
	c.w.rerender()
}

// IsRefineOnMapMove reports the toggle.
func (c *Controls) IsRefineOnMapMove() bool {
	return c.w.refineOnMapMove
}

// SetMapMoveSinceLastRefine records a map move. It re-renders only when the
// flag was not already set.
func (c *Controls) SetMapMoveSinceLastRefine() {
	if c.w.mapMoved {
		return
	}
	c.w.mapMoved = true
	c.w.rerender()
}

// HasMapMoveSinceLastRefine reports whether the map moved since the last refinement.
func (c *Controls) HasMapMoveSinceLastRefine() bool {
	return c.w.mapMoved
}

// SendEvent forwards a view, click or conversion event for hits to the
// insights client. Unknown event types are dropped.
func (c *Controls) SendEvent(eventType string, hits []domain.Hit, eventName string) {
	if c.w.insights == nil || len(hits) == 0 {
		return
	}

	event, ok := c.buildEvent(eventType, hits, eventName)
	if !ok {
		slog.Warn("geosearch: dropping insights event", "event_type", eventType)
		return
	}
	c.w.insights.SendEventToInsights(event)
}

func (c *Controls) buildEvent(eventType string, hits []domain.Hit, eventName string) (domain.InsightsEvent, bool) {
	method, ok := domain.InsightsMethods[eventType]
	if !ok {
		return domain.InsightsEvent{}, false
	}

	objectIDs := make([]string, len(hits))
	for i, h := range hits {
		objectIDs[i] = h.ObjectID
	}

	event := domain.InsightsEvent{
		EventType:      eventType,
		InsightsMethod: method,
		WidgetType:     WidgetType,
		Hits:           hits,
		Payload: domain.InsightsPayload{
			EventName: eventName,
			Index:     c.index(),
			ObjectIDs: objectIDs,
		},
	}

	switch eventType {
	case domain.EventView:
		if event.Payload.EventName == "" {
			event.Payload.EventName = "Hits Viewed"
		}
	case domain.EventClick:
		positions := make([]int, len(hits))
		for i, h := range hits {
			positions[i] = h.Position
		}
		event.Payload.Positions = positions
		event.Payload.QueryID = hits[0].QueryID
	case domain.EventConversion:
		event.Payload.QueryID = hits[0].QueryID
	}
	return event, true
}

func (c *Controls) index() string {
	if c.w.results != nil && c.w.results.Index != "" {
		return c.w.results.Index
	}
	if c.w.helper != nil {
		return c.w.helper.State().Index
	}
	return ""
}
