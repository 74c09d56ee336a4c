package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/katakuxiko/ragdocs/internal/api"
	"github.com/katakuxiko/ragdocs/internal/app"
	"github.com/katakuxiko/ragdocs/internal/config"
	"github.com/katakuxiko/ragdocs/internal/logger"
)

func main() {
	// .env необязателен
	_ = godotenv.Load()

	// config
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// services
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		if errors.Is(err, config.ErrInvalid) {
			log.Fatal("invalid configuration", "error", err)
		}
		log.Fatal("startup failed", "error", err)
	}
	defer a.Close()

	// api
	srv := api.NewApp(api.NewHandler(a.RAG, a.LLM, log), log)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error("shutdown", "error", err)
		}
	}()

	log.Info("server started", "addr", cfg.ServerAddr, "backend", a.Backend)
	if err := srv.Listen(cfg.ServerAddr); err != nil {
		log.Error("listen", "error", err)
	}
}
