// Package geosearch tracks the map refinement state of a geo search widget.
//
// A Widget mirrors the insideBoundingBox and aroundLatLng search parameters,
// remembers whether the map moved since the last refinement and derives a
// RenderState on every init/render cycle. A Widget is not safe for concurrent
// use: every call, including the Controls methods, must come from the same
// goroutine.
package geosearch

import (
	"errors"

	"github.com/samirrijal/geosearch/internal/core/domain"
)

// WidgetType identifies the widget in render state and insights events.
const WidgetType = "ais.geoSearch"

// ErrInvalidRender is returned by New when no render function is supplied.
var ErrInvalidRender = errors.New("the render function is not valid")

// Helper owns the search parameters the widget reads and writes.
type Helper interface {
	State() domain.SearchParameters
	SetState(domain.SearchParameters)
	// Search requests a new search. It must not block on the result.
	Search()
}

// InsightsClient receives analytics events emitted by the widget.
type InsightsClient interface {
	SendEventToInsights(domain.InsightsEvent)
}

// RenderFunc is called once per cycle with the derived state.
type RenderFunc func(state RenderState, isFirstRender bool)

// UnmountFunc is called when the widget is disposed.
type UnmountFunc func()

// TransformMeta is passed alongside the items to TransformItemsFunc.
type TransformMeta struct {
	Results *domain.SearchResults
}

// TransformItemsFunc rewrites the geolocated hits before they are rendered.
type TransformItemsFunc func(items []domain.Hit, meta TransformMeta) []domain.Hit

// Params configures a Widget.
type Params struct {
	// EnableRefineOnMapMove defaults to true when nil.
	EnableRefineOnMapMove *bool              `json:"enableRefineOnMapMove,omitempty"`
	TransformItems        TransformItemsFunc `json:"-"`
}

// Bool returns a pointer to v, for Params.EnableRefineOnMapMove.
func Bool(v bool) *bool { return &v }

// InitOptions are the inputs of the first cycle.
type InitOptions struct {
	Helper   Helper
	Insights InsightsClient
}

// RenderOptions are the inputs of a render cycle.
type RenderOptions struct {
	Helper          Helper
	Insights        InsightsClient
	Results         *domain.SearchResults
	IsSearchStalled bool
}

// DisposeOptions carries the state the widget is removed from.
type DisposeOptions struct {
	State domain.SearchParameters
}

// Widget is the refinement state store of one geo search widget.
type Widget struct {
	render  RenderFunc
	unmount UnmountFunc
	params  Params

	refineOnMapMove bool
	mapMoved        bool
	lastBoundingBox *domain.BoundingBox
	lastPosition    *domain.LatLng

	controls   *Controls
	helper     Helper
	insights   InsightsClient
	results    *domain.SearchResults
	viewed     *domain.SearchResults
	lastRender *RenderOptions
}

// New creates a widget. unmount may be nil.
func New(render RenderFunc, unmount UnmountFunc, params Params) (*Widget, error) {
	if render == nil {
		return nil, ErrInvalidRender
	}

	w := &Widget{
		render:          render,
		unmount:         unmount,
		params:          params,
		refineOnMapMove: true,
	}
	if params.EnableRefineOnMapMove != nil {
		w.refineOnMapMove = *params.EnableRefineOnMapMove
	}
	w.controls = &Controls{w: w}
	return w, nil
}

// Type returns WidgetType.
func (w *Widget) Type() string { return WidgetType }

// Controls returns the handle shared by every RenderState of this widget.
func (w *Widget) Controls() *Controls { return w.controls }

// Init runs the first cycle and renders with isFirstRender set.
func (w *Widget) Init(opts InitOptions) {
	w.helper = opts.Helper
	w.insights = opts.Insights
	w.sync(opts.Helper.State())

	// Control changes re-render only once a Render cycle has run.
	w.render(w.WidgetRenderState(RenderOptions{Helper: opts.Helper, Insights: opts.Insights}), true)
}

// Render runs a cycle with fresh results.
func (w *Widget) Render(opts RenderOptions) {
	w.helper = opts.Helper
	w.insights = opts.Insights
	w.results = opts.Results
	w.sync(opts.Helper.State())

	last := opts
	w.lastRender = &last

	state := w.WidgetRenderState(opts)
	// Hits are reported as viewed once per result set.
	if !opts.IsSearchStalled && len(state.Items) > 0 && opts.Results != w.viewed {
		w.viewed = opts.Results
		w.controls.SendEvent(domain.EventView, state.Items, "")
	}
	w.render(state, false)
}

// Dispose removes the map refinement from state and returns the result.
func (w *Widget) Dispose(opts DisposeOptions) domain.SearchParameters {
	if w.unmount != nil {
		w.unmount()
	}
	state := opts.State
	state.InsideBoundingBox = nil
	return state
}

// sync applies the map-move transition rule against the live parameters.
func (w *Widget) sync(state domain.SearchParameters) {
	box := state.InsideBoundingBox.Resolve()
	if !sameBox(box, w.lastBoundingBox) {
		w.mapMoved = false
		w.lastBoundingBox = box
	}

	pos := state.Position()
	if !samePosition(pos, w.lastPosition) {
		w.mapMoved = false
		w.lastPosition = pos
	}
}

func (w *Widget) rerender() {
	if w.lastRender == nil {
		return
	}
	w.render(w.WidgetRenderState(*w.lastRender), false)
}

func sameBox(a, b *domain.BoundingBox) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func samePosition(a, b *domain.LatLng) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
