package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/quake-notify/internal/api"
	"github.com/mr1hm/quake-notify/internal/config"
	"github.com/mr1hm/quake-notify/internal/dispatch"
	"github.com/mr1hm/quake-notify/internal/geocode"
	"github.com/mr1hm/quake-notify/internal/ingestion"
	"github.com/mr1hm/quake-notify/internal/logging"
	"github.com/mr1hm/quake-notify/internal/push"
	"github.com/mr1hm/quake-notify/internal/repository"
	"github.com/mr1hm/quake-notify/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanup := worker.NewPool(cfg.Dispatch.CleanupWorkers, cfg.Dispatch.CleanupBuffer)
	cleanup.Start(ctx)

	transport := push.NewClient(cfg.Push.Endpoint, cfg.Push.APIKey, cfg.Push.DryRun)
	dispatcher := dispatch.NewDispatcher(transport, db, cleanup, cfg.Dispatch.BatchSize)

	var geocoder geocode.Geocoder
	if cfg.Geocoder.Enabled {
		geocoder = geocode.NewNominatim(cfg.Geocoder.URL)
	}

	var sources []ingestion.Source
	if cfg.Sources.USGS.Enabled {
		sources = append(sources, ingestion.USGSSource(cfg.Sources.USGS.URL, cfg.Sources.USGS.PollInterval))
	}
	if cfg.Sources.EMSC.Enabled {
		sources = append(sources, ingestion.EMSCSource(cfg.Sources.EMSC.URL, cfg.Sources.EMSC.PollInterval))
	}
	if cfg.Sources.Secondary.Enabled {
		sources = append(sources, ingestion.SecondarySource(cfg.Sources.Secondary.URL, cfg.Sources.Secondary.PollInterval))
	}

	coordinator := ingestion.NewCoordinator(sources, db, db, db, dispatcher, geocoder)
	coordinator.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(5, 10)) // 5 req/s global limit

	handler := api.NewHandler(db, coordinator)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	coordinator.Stop()
	cleanup.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
