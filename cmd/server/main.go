package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeagentswarm/swarm-backend/internal/blob"
	"github.com/codeagentswarm/swarm-backend/internal/config"
	"github.com/codeagentswarm/swarm-backend/internal/handler"
	"github.com/codeagentswarm/swarm-backend/internal/logger"
	"github.com/codeagentswarm/swarm-backend/internal/service"
	"github.com/codeagentswarm/swarm-backend/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.InitLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Initialize database store
	st, err := store.NewSQLiteStore(cfg.Storage.Path, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	// Initialize blob storage
	blobs, err := blob.NewFileStore(cfg.Blob.Root, cfg.Server.BaseURL, cfg.Blob.SigningSecret)
	if err != nil {
		log.Fatal("failed to open blob storage", zap.Error(err))
	}

	if cfg.Auth.AccessSecret == "" || cfg.Auth.RefreshSecret == "" {
		log.Warn("JWT secrets not set, authentication endpoints are disabled")
	}
	if cfg.Reports.AppSecret == "" {
		log.Warn("APP_SECRET not set, error reporting is disabled")
	}

	// Initialize API handler
	api := handler.NewAPI(cfg, log, st, blobs)
	defer api.Close()

	r := chi.NewRouter()
	api.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("base_url", cfg.Server.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Start periodic sweep of expired sessions and counters
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweeper := service.NewSweepService(st, 2*cfg.Reports.ErrorWindow, log)
	go sweeper.Run(sweepCtx, cfg.Sweep.Interval)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited properly")
}
