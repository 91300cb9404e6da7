package geosearch

import "github.com/samirrijal/geosearch/internal/core/domain"

// RenderStateKey is the key used by RenderStateInto.
const RenderStateKey = "geoSearch"

// RenderState is what the view layer receives on every cycle.
type RenderState struct {
	Items             []domain.Hit
	Position          *domain.LatLng
	CurrentRefinement *domain.BoundingBox
	Controls          *Controls
	WidgetParams      Params
}

// WidgetRenderState derives the render state from opts without side effects
// on the map-move flag.
func (w *Widget) WidgetRenderState(opts RenderOptions) RenderState {
	var state domain.SearchParameters
	if opts.Helper != nil {
		state = opts.Helper.State()
	}

	items := []domain.Hit{}
	if opts.Results != nil {
		items = geolocated(opts.Results.Hits)
		if w.params.TransformItems != nil {
			items = w.params.TransformItems(items, TransformMeta{Results: opts.Results})
		}
	}

	return RenderState{
		Items:             items,
		Position:          state.Position(),
		CurrentRefinement: state.InsideBoundingBox.Resolve(),
		Controls:          w.controls,
		WidgetParams:      w.params,
	}
}

// RenderStateInto returns a copy of dst with this widget's render state set
// under RenderStateKey.
func (w *Widget) RenderStateInto(dst map[string]any, opts RenderOptions) map[string]any {
	out := make(map[string]any, len(dst)+1)
	for k, v := range dst {
		out[k] = v
	}
	out[RenderStateKey] = w.WidgetRenderState(opts)
	return out
}

func geolocated(hits []domain.Hit) []domain.Hit {
	out := make([]domain.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Geoloc != nil {
			out = append(out, h)
		}
	}
	return out
}
