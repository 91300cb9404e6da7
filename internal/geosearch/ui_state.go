package geosearch

import "github.com/samirrijal/geosearch/internal/core/domain"

// UIState stores the current bounding box of params in ui. ui is returned
// unchanged when there is no box or the same box is already stored.
func (w *Widget) UIState(ui domain.IndexUIState, params domain.SearchParameters) domain.IndexUIState {
	box := params.InsideBoundingBox.Resolve()
	if box == nil {
		return ui
	}

	value := box.String()
	if ui.GeoSearch != nil && ui.GeoSearch.BoundingBox == value {
		return ui
	}

	ui.GeoSearch = &domain.GeoSearchUIState{BoundingBox: value}
	return ui
}

// SearchParameters applies the bounding box stored in ui to params, or
// removes it when ui holds none.
func (w *Widget) SearchParameters(params domain.SearchParameters, ui domain.IndexUIState) domain.SearchParameters {
	if ui.GeoSearch == nil || ui.GeoSearch.BoundingBox == "" {
		params.InsideBoundingBox = nil
		return params
	}

	params.InsideBoundingBox = domain.BoundingBoxText(ui.GeoSearch.BoundingBox)
	return params
}
