package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/geosearch/internal/adapters/http"
	natsadapter "github.com/samirrijal/geosearch/internal/adapters/nats"
	"github.com/samirrijal/geosearch/internal/adapters/postgres"
	"github.com/samirrijal/geosearch/internal/adapters/valkey"
	"github.com/samirrijal/geosearch/internal/core/usecases"
	"github.com/samirrijal/geosearch/internal/geosearch"
	"github.com/samirrijal/geosearch/internal/pkg/config"
	"github.com/samirrijal/geosearch/internal/pkg/logging"
	"github.com/samirrijal/geosearch/internal/pkg/metrics"
	"github.com/samirrijal/geosearch/internal/pkg/telemetry"
	"github.com/samirrijal/geosearch/internal/session"
)

const poolMetricsInterval = 15 * time.Second

func main() {
	cfg, err := config.Load("geosearch-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()

	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer publisher.Close()

	subscriber, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer subscriber.Close()

	// Connection used by the readiness check
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer natsConn.Close()

	gs := cfg.GeoSearch
	searchSvc := usecases.NewSearchService(postgres.NewRecordRepo(db), cache, gs.CacheTTL, gs.HitsPerPage)
	insightsSvc := usecases.NewInsightsService(publisher)
	uiStateSvc := usecases.NewUIStateService(cache, gs.UIStateTTL)
	sessions := session.NewRegistry()

	deps := &http.Dependencies{
		Search:        searchSvc,
		Insights:      insightsSvc,
		UIState:       uiStateSvc,
		Sessions:      sessions,
		Widget:        geosearch.Params{EnableRefineOnMapMove: geosearch.Bool(gs.EnableRefineOnMapMove)},
		SearchTimeout: time.Duration(gs.SearchTimeout) * time.Second,
		NATS:          natsConn,
		DB:            db,
		Cache:         cache,
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "GeoSearch API",
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))
	http.SetupRoutes(app, deps)

	// Live sessions re-run their search when their index changes.
	err = subscriber.SubscribeIndexUpdates(ctx, func(ctx context.Context, index string) error {
		if err := searchSvc.InvalidateIndex(ctx, index); err != nil {
			slog.Warn("index cache not invalidated", "index", index, "error", err)
		}
		slog.Info("index updated", "index", index, "sessions", sessions.Len())
		return sessions.RefreshIndex(ctx, index)
	})
	if err != nil {
		log.Fatalf("subscribe index updates: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		return app.Listen(addr)
	})

	g.Go(func() error {
		ticker := time.NewTicker(poolMetricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Stat())
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		// Give in-flight requests and live sessions up to 10s to finish
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server stopped with error", "error", err)
	}
	slog.Info("server stopped")
}
