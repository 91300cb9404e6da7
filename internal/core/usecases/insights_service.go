package usecases

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/geosearch/internal/core/domain"
	"github.com/samirrijal/geosearch/internal/core/ports"
	"github.com/samirrijal/geosearch/internal/pkg/metrics"
	"github.com/samirrijal/geosearch/internal/pkg/telemetry"
)

const maxEventObjectIDs = 20

// InsightsService validates and publishes widget analytics events.
type InsightsService struct {
	publisher ports.InsightsPublisher
}

// NewInsightsService creates a new InsightsService.
func NewInsightsService(publisher ports.InsightsPublisher) *InsightsService {
	return &InsightsService{publisher: publisher}
}

// Send validates event and publishes it.
func (s *InsightsService) Send(ctx context.Context, event *domain.InsightsEvent) error {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanInsights, trace.WithAttributes(
		telemetry.AttrEventType.String(event.EventType),
	))
	defer span.End()

	if err := validateEvent(event); err != nil {
		return err
	}

	if err := s.publisher.PublishInsightsEvent(ctx, event); err != nil {
		metrics.InsightsErrors.Inc()
		span.RecordError(err)
		return fmt.Errorf("publish insights event: %w", err)
	}

	metrics.InsightsEvents.WithLabelValues(event.EventType).Inc()
	return nil
}

func validateEvent(event *domain.InsightsEvent) error {
	method, ok := domain.InsightsMethods[event.EventType]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownEvent, event.EventType)
	}
	if event.InsightsMethod == "" {
		event.InsightsMethod = method
	}
	if event.InsightsMethod != method {
		return fmt.Errorf("%w: method %q does not match event type %q", domain.ErrInvalidEvent, event.InsightsMethod, event.EventType)
	}

	p := event.Payload
	if p.Index == "" {
		return fmt.Errorf("%w: index is required", domain.ErrInvalidEvent)
	}
	if len(p.ObjectIDs) == 0 {
		return fmt.Errorf("%w: objectIDs must not be empty", domain.ErrInvalidEvent)
	}
	if len(p.ObjectIDs) > maxEventObjectIDs {
		return fmt.Errorf("%w: at most %d objectIDs per event", domain.ErrInvalidEvent, maxEventObjectIDs)
	}
	if event.EventType == domain.EventClick && len(p.Positions) != len(p.ObjectIDs) {
		return fmt.Errorf("%w: click events need one position per objectID", domain.ErrInvalidEvent)
	}
	return nil
}
