package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"docchat/handler"
	"docchat/internal/bootstrap"
	"docchat/internal/config"
	"docchat/internal/logger"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	slog.SetDefault(log)
	if cfg.AppEnv == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	// ---- Components ----
	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build application", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	// ---- Ingestion runs before the listener opens ----
	res, err := app.Ingest.EnsureIndexed(ctx)
	if err != nil {
		log.Error("ingestion failed", "err", err)
		os.Exit(1)
	}
	if !res.Skipped {
		log.Info("ingestion complete", "files", len(res.Files), "chunks", res.Chunks, "indexed", res.Indexed)
	}

	// ---- Transport ----
	h, err := handler.NewHandler(app.Chat, app.Sessions, log)
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: h.Router(handler.RouterConfig{
			ServiceName: bootstrap.ServiceName,
			CORSOrigins: cfg.Server.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "err", err)
	}
	log.Info("server exited")
}
