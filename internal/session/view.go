package session

import (
	"github.com/samirrijal/geosearch/internal/core/domain"
	"github.com/samirrijal/geosearch/internal/geosearch"
)

// View is a JSON friendly snapshot of one widget render.
type View struct {
	SessionID                 string              `json:"sessionID"`
	IsFirstRender             bool                `json:"isFirstRender"`
	Items                     []domain.Hit        `json:"items"`
	Position                  *domain.LatLng      `json:"position,omitempty"`
	CurrentRefinement         *domain.BoundingBox `json:"currentRefinement,omitempty"`
	IsRefineOnMapMove         bool                `json:"isRefineOnMapMove"`
	HasMapMoveSinceLastRefine bool                `json:"hasMapMoveSinceLastRefine"`
	IsRefinedWithMap          bool                `json:"isRefinedWithMap"`
	IsSearchStalled           bool                `json:"isSearchStalled"`
	Query                     string              `json:"query,omitempty"`
	QueryID                   string              `json:"queryID,omitempty"`
	NbHits                    int                 `json:"nbHits"`
	Page                      int                 `json:"page"`
	NbPages                   int                 `json:"nbPages"`
	Error                     string              `json:"error,omitempty"`
}

func (s *Session) snapshot(state geosearch.RenderState, isFirstRender bool) View {
	c := state.Controls
	v := View{
		SessionID:                 s.cfg.ID,
		IsFirstRender:             isFirstRender,
		Items:                     state.Items,
		Position:                  state.Position,
		CurrentRefinement:         state.CurrentRefinement,
		IsRefineOnMapMove:         c.IsRefineOnMapMove(),
		HasMapMoveSinceLastRefine: c.HasMapMoveSinceLastRefine(),
		IsRefinedWithMap:          c.IsRefinedWithMap(),
		IsSearchStalled:           s.stalled,
		Query:                     s.state.Query,
	}
	if r := s.lastResults; r != nil && !isFirstRender {
		v.QueryID = r.QueryID
		v.NbHits = r.NbHits
		v.Page = r.Page
		v.NbPages = r.NbPages
	}
	if s.lastErr != nil {
		v.Error = s.lastErr.Error()
	}
	return v
}
