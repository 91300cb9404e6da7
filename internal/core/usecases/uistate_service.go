package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/geosearch/internal/core/domain"
	"github.com/samirrijal/geosearch/internal/core/ports"
	"github.com/samirrijal/geosearch/internal/pkg/telemetry"
)

const maxSessionIDLength = 128

// ErrInvalidSession is returned for empty or oversized session IDs.
var ErrInvalidSession = errors.New("invalid session id")

// UIStateService persists the widget UI state of a session.
type UIStateService struct {
	cache ports.CacheService
	ttl   int
}

// NewUIStateService creates a new UIStateService. ttl is in seconds.
func NewUIStateService(cache ports.CacheService, ttl int) *UIStateService {
	return &UIStateService{cache: cache, ttl: ttl}
}

// Load returns the stored UI state, or an empty state when none is stored.
func (s *UIStateService) Load(ctx context.Context, sessionID string) (domain.IndexUIState, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanUIStateLoad, trace.WithAttributes(
		telemetry.AttrSessionID.String(sessionID),
	))
	defer span.End()

	if err := validateSessionID(sessionID); err != nil {
		return domain.IndexUIState{}, err
	}

	data, err := s.cache.Get(ctx, uiStateKey(sessionID))
	if errors.Is(err, ports.ErrCacheMiss) {
		return domain.IndexUIState{}, nil
	}
	if err != nil {
		return domain.IndexUIState{}, fmt.Errorf("load ui state: %w", err)
	}

	var ui domain.IndexUIState
	if err := json.Unmarshal(data, &ui); err != nil {
		return domain.IndexUIState{}, fmt.Errorf("decode ui state: %w", err)
	}
	return ui, nil
}

// Save stores ui for the session. The bounding box, when set, must parse.
func (s *UIStateService) Save(ctx context.Context, sessionID string, ui domain.IndexUIState) error {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanUIStateSave, trace.WithAttributes(
		telemetry.AttrSessionID.String(sessionID),
	))
	defer span.End()

	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if ui.GeoSearch != nil && ui.GeoSearch.BoundingBox != "" {
		if _, err := domain.ParseBoundingBox(ui.GeoSearch.BoundingBox); err != nil {
			return err
		}
	}

	data, err := json.Marshal(ui)
	if err != nil {
		return fmt.Errorf("encode ui state: %w", err)
	}
	if err := s.cache.Set(ctx, uiStateKey(sessionID), data, s.ttl); err != nil {
		return fmt.Errorf("save ui state: %w", err)
	}
	return nil
}

// Delete forgets the UI state of a session.
func (s *UIStateService) Delete(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	return s.cache.Delete(ctx, uiStateKey(sessionID))
}

func uiStateKey(sessionID string) string {
	return "uistate:" + sessionID
}

func validateSessionID(id string) error {
	if id == "" || len(id) > maxSessionIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidSession, id)
	}
	return nil
}
