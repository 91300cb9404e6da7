package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/samirrijal/geosearch/internal/core/domain"
)

const (
	insightsStream  = "GEOSEARCH_INSIGHTS"
	insightsSubject = "geosearch.insights."
	indexSubject    = "geosearch.index."
)

// Publisher implements ports.InsightsPublisher and ports.IndexEventPublisher
// using NATS. Insights go through JetStream; index updates are core NATS
// broadcasts so every API replica sees them.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      insightsStream,
		Subjects:  []string{insightsSubject + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishInsightsEvent stores the event on the insights stream.
func (p *Publisher) PublishInsightsEvent(ctx context.Context, event *domain.InsightsEvent) error {
	data, err := EncodeInsightsEvent(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(InsightsSubject(event.EventType), data, nats.Context(ctx))
	return err
}

// PublishIndexUpdated announces that index changed.
func (p *Publisher) PublishIndexUpdated(ctx context.Context, index string) error {
	return p.conn.Publish(IndexUpdatedSubject(index), []byte(index))
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// InsightsSubject is the subject events of eventType are published on.
func InsightsSubject(eventType string) string {
	return insightsSubject + eventType
}

// IndexUpdatedSubject is the subject update notices for index go to.
func IndexUpdatedSubject(index string) string {
	return indexSubject + index + ".updated"
}

// EncodeInsightsEvent serializes an event as a protobuf Struct. Hits are
// left out; the payload carries the object IDs.
func EncodeInsightsEvent(event *domain.InsightsEvent) ([]byte, error) {
	trimmed := *event
	trimmed.Hits = nil
	raw, err := json.Marshal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("encode insights event: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode insights event: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode insights event: %w", err)
	}
	return proto.Marshal(st)
}

// DecodeInsightsEvent reverses EncodeInsightsEvent.
func DecodeInsightsEvent(data []byte) (*domain.InsightsEvent, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode insights event: %w", err)
	}
	raw, err := st.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("decode insights event: %w", err)
	}
	var event domain.InsightsEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("decode insights event: %w", err)
	}
	return &event, nil
}

// RawConn creates a plain NATS connection.
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("geosearch"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
