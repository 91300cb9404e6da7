// Package session runs one geo search widget per client.
//
// A Session owns the search parameters and the widget. Every widget call,
// including control actions coming from a transport, runs on the goroutine
// executing Run. Searches run in the background; a newer search cancels the
// previous one and results of superseded searches are dropped.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/geosearch/internal/core/domain"
	"github.com/samirrijal/geosearch/internal/geosearch"
	"github.com/samirrijal/geosearch/internal/pkg/metrics"
)

// ErrClosed is returned for commands sent to a session that is no longer running.
var ErrClosed = errors.New("session closed")

const (
	defaultSearchTimeout = 5 * time.Second
	defaultStalledAfter  = 200 * time.Millisecond
	eventTimeout         = 5 * time.Second
	persistTimeout       = 2 * time.Second
)

// Searcher runs a search.
type Searcher interface {
	Search(ctx context.Context, params domain.SearchParameters) (*domain.SearchResults, error)
}

// EventSender delivers insights events.
type EventSender interface {
	Send(ctx context.Context, event *domain.InsightsEvent) error
}

// UIStore loads and saves the UI state of a session.
type UIStore interface {
	Load(ctx context.Context, sessionID string) (domain.IndexUIState, error)
	Save(ctx context.Context, sessionID string, ui domain.IndexUIState) error
}

// Config configures a Session. Searcher is required.
type Config struct {
	ID       string
	Initial  domain.SearchParameters
	Widget   geosearch.Params
	Searcher Searcher
	Events   EventSender
	UIStore  UIStore
	// View receives a snapshot after every render, on the session goroutine.
	View   func(View)
	Logger *slog.Logger

	SearchTimeout time.Duration
	// StalledAfter is how long a search may run before the widget renders
	// with IsSearchStalled set.
	StalledAfter time.Duration
}

type searchResult struct {
	seq     uint64
	results *domain.SearchResults
	err     error
}

// Session is a running widget bound to one client.
type Session struct {
	cfg    Config
	log    *slog.Logger
	widget *geosearch.Widget

	cmds    chan func()
	results chan searchResult
	done    chan struct{}

	// Owned by the Run goroutine.
	runCtx       context.Context
	state        domain.SearchParameters
	seq          uint64
	cancelSearch context.CancelFunc
	stalledTimer *time.Timer
	stalledC     <-chan time.Time
	stalled      bool
	lastResults  *domain.SearchResults
	lastErr      error
	pending      errgroup.Group
}

// New creates a session. It does nothing until Run is called.
func New(cfg Config) (*Session, error) {
	if cfg.Searcher == nil {
		return nil, errors.New("session: searcher is required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = defaultSearchTimeout
	}
	if cfg.StalledAfter <= 0 {
		cfg.StalledAfter = defaultStalledAfter
	}

	s := &Session{
		cfg:     cfg,
		log:     cfg.Logger.With("session_id", cfg.ID),
		cmds:    make(chan func()),
		results: make(chan searchResult),
		done:    make(chan struct{}),
		state:   cfg.Initial,
	}

	w, err := geosearch.New(s.render, s.unmount, cfg.Widget)
	if err != nil {
		return nil, err
	}
	s.widget = w
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.cfg.ID }

// Run restores the UI state, initializes the widget, issues the first search
// and serves commands until ctx is done. On return the widget is disposed
// and its UI state persisted.
func (s *Session) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.runCtx = runCtx

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	s.restore(runCtx)

	host := (*widgetHost)(s)
	s.widget.Init(geosearch.InitOptions{Helper: host, Insights: host})
	s.startSearch()

	defer s.shutdown(ctx)

	for {
		select {
		case <-runCtx.Done():
			return
		case cmd := <-s.cmds:
			cmd()
		case r := <-s.results:
			s.apply(r)
		case <-s.stalledC:
			s.stalledC = nil
			s.renderWith(s.lastResults, true)
		}
	}
}

// Do runs fn with the widget controls on the session goroutine and waits
// for it to return.
func (s *Session) Do(ctx context.Context, fn func(*geosearch.Controls)) error {
	return s.enqueue(ctx, func() {
		metrics.WidgetActions.WithLabelValues("do").Inc()
		fn(s.widget.Controls())
	})
}

// Refresh re-runs the current search.
func (s *Session) Refresh(ctx context.Context) error {
	return s.enqueue(ctx, s.startSearch)
}

// Update changes the search parameters with fn and searches.
func (s *Session) Update(ctx context.Context, fn func(*domain.SearchParameters)) error {
	return s.enqueue(ctx, func() {
		fn(&s.state)
		s.startSearch()
	})
}

// Parameters returns a copy of the current search parameters.
func (s *Session) Parameters(ctx context.Context) (domain.SearchParameters, error) {
	var out domain.SearchParameters
	err := s.enqueue(ctx, func() { out = s.state })
	return out, err
}

func (s *Session) enqueue(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case s.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) restore(ctx context.Context) {
	if s.cfg.UIStore == nil {
		return
	}
	ui, err := s.cfg.UIStore.Load(ctx, s.cfg.ID)
	if err != nil {
		s.log.Warn("ui state not restored", "error", err)
		return
	}
	if ui.GeoSearch != nil {
		s.state = s.widget.SearchParameters(s.state, ui)
	}
}

func (s *Session) shutdown(parent context.Context) {
	if s.cancelSearch != nil {
		s.cancelSearch()
	}
	s.disarmStalled()
	close(s.done)
	_ = s.pending.Wait()

	ui := s.widget.UIState(domain.IndexUIState{}, s.state)
	s.state = s.widget.Dispose(geosearch.DisposeOptions{State: s.state})

	if s.cfg.UIStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), persistTimeout)
	defer cancel()
	if err := s.cfg.UIStore.Save(ctx, s.cfg.ID, ui); err != nil {
		s.log.Warn("ui state not persisted", "error", err)
	}
}

func (s *Session) startSearch() {
	if s.cancelSearch != nil {
		s.cancelSearch()
	}
	s.seq++
	seq := s.seq
	params := s.state

	ctx, cancel := context.WithTimeout(s.runCtx, s.cfg.SearchTimeout)
	s.cancelSearch = cancel
	s.armStalled()

	s.pending.Go(func() error {
		defer cancel()
		res, err := s.cfg.Searcher.Search(ctx, params)
		select {
		case s.results <- searchResult{seq: seq, results: res, err: err}:
		case <-s.done:
		}
		return nil
	})
}

func (s *Session) apply(r searchResult) {
	if r.seq != s.seq {
		metrics.StaleResults.Inc()
		s.log.Debug("stale search results dropped", "seq", r.seq, "current", s.seq)
		return
	}
	s.disarmStalled()

	if r.err != nil {
		s.log.Error("search failed", "error", r.err)
		s.lastErr = r.err
		s.renderWith(s.lastResults, false)
		s.lastErr = nil
		return
	}
	s.lastResults = r.results
	s.renderWith(r.results, false)
}

func (s *Session) renderWith(results *domain.SearchResults, stalled bool) {
	s.stalled = stalled
	host := (*widgetHost)(s)
	s.widget.Render(geosearch.RenderOptions{
		Helper:          host,
		Insights:        host,
		Results:         results,
		IsSearchStalled: stalled,
	})
}

func (s *Session) armStalled() {
	s.disarmStalled()
	s.stalledTimer = time.NewTimer(s.cfg.StalledAfter)
	s.stalledC = s.stalledTimer.C
}

func (s *Session) disarmStalled() {
	if s.stalledTimer != nil {
		s.stalledTimer.Stop()
		s.stalledTimer = nil
	}
	s.stalledC = nil
}

// render is the widget render callback.
func (s *Session) render(state geosearch.RenderState, isFirstRender bool) {
	metrics.WidgetRenders.WithLabelValues(strconv.FormatBool(isFirstRender)).Inc()
	if s.cfg.View == nil {
		return
	}
	s.cfg.View(s.snapshot(state, isFirstRender))
}

func (s *Session) unmount() {
	s.log.Debug("widget unmounted")
}

// widgetHost is the Helper and InsightsClient the widget sees.
type widgetHost Session

func (h *widgetHost) State() domain.SearchParameters { return h.state }

func (h *widgetHost) SetState(p domain.SearchParameters) { h.state = p }

func (h *widgetHost) Search() {
	metrics.WidgetActions.WithLabelValues("search").Inc()
	(*Session)(h).startSearch()
}

func (h *widgetHost) SendEventToInsights(e domain.InsightsEvent) {
	s := (*Session)(h)
	if s.cfg.Events == nil {
		return
	}
	parent := s.runCtx
	s.pending.Go(func() error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), eventTimeout)
		defer cancel()
		if err := s.cfg.Events.Send(ctx, &e); err != nil {
			s.log.Warn("insights event not sent", "event_type", e.EventType, "error", err)
		}
		return nil
	})
}

// RefreshIndex re-runs the current search when it targets index.
func (s *Session) RefreshIndex(ctx context.Context, index string) error {
	return s.enqueue(ctx, func() {
		if s.state.Index == index {
			s.startSearch()
		}
	})
}
