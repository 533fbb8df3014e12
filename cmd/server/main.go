package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tawarln-chat/internal/bootstrap"
	"tawarln-chat/internal/config"
	"tawarln-chat/internal/platform/logger"
	"tawarln-chat/internal/platform/tracing"
	httptransport "tawarln-chat/internal/transport/http"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env failed: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logg, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer logg.Sync()

	shutdownTracing, err := tracing.Init(ctx, logg, cfg.App, cfg.Tracing)
	if err != nil {
		logg.Error("init tracing failed", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.New(ctx, cfg, logg)
	if err != nil {
		logg.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logg.Warn("close resources failed", "error", err)
		}
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logg.Warn("shutdown tracing failed", "error", err)
		}
	}()

	router := httptransport.NewRouter(app)
	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logg.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(server, logg)
}

func waitForShutdown(server *http.Server, logg *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Streams in flight get a grace period before their contexts are cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Warn("server shutdown failed", "error", err)
	}
}
