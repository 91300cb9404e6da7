package natsadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// Subscriber implements ports.IndexEventSubscriber using core NATS.
type Subscriber struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewSubscriber opens its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Subscriber{conn: conn}, nil
}

// SubscribeIndexUpdates calls handler with the index name of every update
// notice. Handler errors are logged; notices are not redelivered.
func (s *Subscriber) SubscribeIndexUpdates(ctx context.Context, handler func(ctx context.Context, index string) error) error {
	sub, err := s.conn.Subscribe(indexSubject+"*.updated", func(msg *nats.Msg) {
		index := indexFromSubject(msg.Subject)
		if index == "" {
			return
		}
		if err := handler(ctx, index); err != nil {
			slog.Warn("index update handler failed", "index", index, "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	s.mu.Lock()
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
	s.mu.Unlock()
	_ = s.conn.Drain()
}

func indexFromSubject(subject string) string {
	rest, ok := strings.CutPrefix(subject, indexSubject)
	if !ok {
		return ""
	}
	index, ok := strings.CutSuffix(rest, ".updated")
	if !ok {
		return ""
	}
	return index
}
