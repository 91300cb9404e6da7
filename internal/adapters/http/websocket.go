package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/geosearch/internal/core/domain"
	"github.com/samirrijal/geosearch/internal/geosearch"
	"github.com/samirrijal/geosearch/internal/pkg/metrics"
	"github.com/samirrijal/geosearch/internal/session"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsPingInterval  = 30 * time.Second
	wsActionTimeout = 5 * time.Second
)

// wsMessage is sent from client to drive its live session.
type wsMessage struct {
	Action      string              `json:"action"`
	BoundingBox *domain.BoundingBox `json:"boundingBox,omitempty"` // refine
	EventType   string              `json:"eventType,omitempty"`   // sendEvent
	EventName   string              `json:"eventName,omitempty"`   // sendEvent
	Hits        []domain.Hit        `json:"hits,omitempty"`        // sendEvent
	Query       *string             `json:"query,omitempty"`       // search
	Page        *int                `json:"page,omitempty"`        // search
}

// wsOutbound is pushed from server to client.
type wsOutbound struct {
	Type   string        `json:"type"` // "view" | "ack" | "error"
	Action string        `json:"action,omitempty"`
	View   *session.View `json:"view,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// WebSocketHandler returns a handler that binds a live geo search session to
// the connection. The session is configured from the query string:
// ?session=<id>&index=<index>&query=&aroundLatLng=&aroundRadius=&hitsPerPage=
// Every render is pushed as {"type":"view"}; clients send actions such as
// {"action":"refine","boundingBox":{...}}.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			return c.WriteMessage(websocket.TextMessage, data)
		}

		index := c.Query("index")
		if index == "" {
			_ = writeJSON(wsOutbound{Type: "error", Error: "index query parameter is required"})
			return
		}

		cfg := session.Config{
			ID: c.Query("session"),
			Initial: domain.SearchParameters{
				Index:        index,
				Query:        c.Query("query"),
				AroundLatLng: c.Query("aroundLatLng"),
				AroundRadius: queryInt(c.Query("aroundRadius")),
				HitsPerPage:  queryInt(c.Query("hitsPerPage")),
			},
			Widget:        deps.Widget,
			Searcher:      deps.Search,
			SearchTimeout: deps.SearchTimeout,
			View: func(v session.View) {
				_ = writeJSON(wsOutbound{Type: "view", View: &v})
			},
		}
		if deps.Insights != nil {
			cfg.Events = deps.Insights
		}
		if deps.UIState != nil && cfg.ID != "" {
			cfg.UIStore = deps.UIState
		}

		sess, err := session.New(cfg)
		if err != nil {
			_ = writeJSON(wsOutbound{Type: "error", Error: err.Error()})
			return
		}
		log := slog.Default().With("session_id", sess.ID(), "remote", c.RemoteAddr().String())

		if deps.Sessions != nil {
			if !deps.Sessions.Add(sess) {
				_ = writeJSON(wsOutbound{Type: "error", Error: "session already connected"})
				return
			}
			defer deps.Sessions.Remove(sess)
		}

		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			sess.Run(ctx)
		}()

		// Keep-alive ping
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(wsPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		log.Info("ws session connected")

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(wsOutbound{Type: "error", Error: "invalid JSON"})
				continue
			}

			metrics.WidgetActions.WithLabelValues("ws").Inc()
			actx, acancel := context.WithTimeout(ctx, wsActionTimeout)
			err = applyAction(actx, sess, m)
			acancel()
			if err != nil {
				_ = writeJSON(wsOutbound{Type: "error", Action: m.Action, Error: err.Error()})
				continue
			}
			_ = writeJSON(wsOutbound{Type: "ack", Action: m.Action})
		}

		cancel()
		wg.Wait()
		log.Info("ws session disconnected")
	}
}

// liveSession is the part of a session the WebSocket actions drive.
type liveSession interface {
	Do(ctx context.Context, fn func(*geosearch.Controls)) error
	Update(ctx context.Context, fn func(*domain.SearchParameters)) error
}

// applyAction runs one client action against the session.
func applyAction(ctx context.Context, sess liveSession, m wsMessage) error {
	switch m.Action {
	case "refine":
		if m.BoundingBox == nil {
			return fmt.Errorf("%w: boundingBox is required", domain.ErrInvalidBoundingBox)
		}
		box := *m.BoundingBox
		return sess.Do(ctx, func(c *geosearch.Controls) { c.Refine(box) })
	case "clearMapRefinement":
		return sess.Do(ctx, func(c *geosearch.Controls) { c.ClearMapRefinement() })
	case "toggleRefineOnMapMove":
		return sess.Do(ctx, func(c *geosearch.Controls) { c.ToggleRefineOnMapMove() })
	case "setMapMoveSinceLastRefine":
		return sess.Do(ctx, func(c *geosearch.Controls) { c.SetMapMoveSinceLastRefine() })
	case "sendEvent":
		if _, ok := domain.InsightsMethods[m.EventType]; !ok {
			return fmt.Errorf("%w: %q", domain.ErrUnknownEvent, m.EventType)
		}
		return sess.Do(ctx, func(c *geosearch.Controls) { c.SendEvent(m.EventType, m.Hits, m.EventName) })
	case "search":
		return sess.Update(ctx, func(p *domain.SearchParameters) {
			if m.Query != nil {
				p.Query = *m.Query
				p.Page = 0
			}
			if m.Page != nil {
				p.Page = *m.Page
			}
		})
	default:
		return fmt.Errorf("unknown action: %s", m.Action)
	}
}

func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
