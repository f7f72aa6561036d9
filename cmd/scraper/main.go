package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"moverscan/pkg/config"
	"moverscan/pkg/database"
	"moverscan/pkg/htmlfetch"
	"moverscan/pkg/logger"
	"moverscan/pkg/marketwindow"
	"moverscan/pkg/models"
	"moverscan/pkg/orchestrator"
	"moverscan/pkg/quotecache"
	"moverscan/pkg/redisclient"
	"moverscan/pkg/scrape"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("config error: " + err.Error())
	}

	// 2. Init logger
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	// 3. Connect to Postgres and run migrations
	db, err := database.New(database.NewConfig())
	if err != nil {
		logger.Log.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.RunMigrations(migrateCtx); err != nil {
		cancelMigrate()
		logger.Log.Fatal("migrations failed", zap.Error(err))
	}
	cancelMigrate()

	// 4. Connect to Redis
	rdb, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	// 5. Build the scrape pipeline. Benzinga serves plain HTML; Investing
	// needs a rendered page, so its adapters share one headless browser.
	fetcher := htmlfetch.New(cfg.FetchTimeout, cfg.FetchRetries, cfg.FetchRetryDelay)
	renderer := htmlfetch.NewRenderer(cfg.RenderTimeout, cfg.RenderSettle)
	defer renderer.Shutdown()

	store := database.NewStockStore(db)
	cache := quotecache.New(rdb)

	orch := orchestrator.New(store, cache, cfg.PacingDelay)
	orch.Register(scrape.NewBenzingaPreMarket(fetcher))
	orch.Register(scrape.NewInvestingPreMarket(renderer))
	orch.Register(scrape.NewBenzingaMovers(fetcher))
	orch.Register(scrape.NewInvestingGainers(renderer))
	orch.Register(scrape.NewInvestingLosers(renderer))
	orch.Register(scrape.NewInvestingAfterHours(renderer))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. Schedule recurring cycles, plus one immediately when we start
	// inside an open window.
	sched := cron.New()
	if _, err := sched.AddFunc(cfg.CronSchedule, func() { runCycle(ctx, orch) }); err != nil {
		logger.Log.Fatal("invalid cron schedule",
			zap.String("schedule", cfg.CronSchedule), zap.Error(err))
	}
	sched.Start()
	logger.Log.Info("scheduler started", zap.String("schedule", cfg.CronSchedule))

	if marketwindow.Classify() != models.WindowNone {
		go runCycle(ctx, orch)
	}

	// 7. HTTP surface: manual trigger, health, metrics
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: newRouter(db, rdb, orch),
	}
	go func() {
		logger.Log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("http server failed", zap.Error(err))
		}
	}()

	// 8. Graceful shutdown
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Log.Info("shutdown signal received")

	cronCtx := sched.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("http shutdown incomplete", zap.Error(err))
	}

	// Let a running cron-invoked cycle drain before cancelling its context
	// and tearing down clients.
	select {
	case <-cronCtx.Done():
	case <-time.After(10 * time.Second):
		logger.Log.Warn("gave up waiting for running cycle")
	}
	cancel()

	logger.Log.Info("scraper stopped")
}

// runCycle executes one cycle and logs the outcome. Overlap refusals are
// expected near window boundaries and only logged at debug.
func runCycle(ctx context.Context, orch *orchestrator.Orchestrator) {
	res, err := orch.RunCycle(ctx)
	switch {
	case errors.Is(err, orchestrator.ErrCycleInFlight):
		logger.Log.Debug("scheduled cycle skipped, previous still running")
	case err != nil:
		logger.Log.Error("scheduled cycle failed", zap.Error(err))
	default:
		logger.Log.Info("scheduled cycle done",
			zap.String("window", res.Window.String()), zap.Int("saved", res.Saved))
	}
}

func newRouter(db *database.DB, rdb *redisclient.Client, orch *orchestrator.Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	trigger := func(w http.ResponseWriter, req *http.Request) {
		res, err := orch.RunCycle(req.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, orchestrator.ErrCycleInFlight) {
				status = http.StatusConflict
			}
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":   true,
			"window":    res.Window.String(),
			"saved":     res.Saved,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
	r.Get("/cron/scrape", trigger)
	r.Post("/cron/scrape", trigger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "degraded", "error": err.Error()})
			return
		}
		if err := rdb.Client().Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "degraded", "error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "ok",
			"window":   marketwindow.Classify().String(),
			"inFlight": orch.InFlight(),
		})
	})

	r.Get("/migrations", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		status, err := db.GetMigrationStatus(ctx)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(status)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}
