package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ksurdhar/draft-editor-sub002/internal/app"
	httpx "github.com/ksurdhar/draft-editor-sub002/internal/http"
	"github.com/ksurdhar/draft-editor-sub002/internal/relay"
	"github.com/ksurdhar/draft-editor-sub002/internal/store"
	"github.com/ksurdhar/draft-editor-sub002/internal/ws"
	"github.com/ksurdhar/draft-editor-sub002/pkg/auth"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres connection + migrations
	pg, err := store.NewPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("postgres connect", "err", err)
		log.Fatal(err)
	}
	defer pg.Close()
	if err := store.RunMigrations(ctx, pg, logger); err != nil {
		logger.Error("migrations", "err", err)
		log.Fatal(err)
	}

	// Redis bus so relays on different instances share rooms
	var bus *ws.RedisBus
	if cfg.RedisAddr != "" {
		bus, err = ws.NewRedisBus(ctx, cfg, logger)
		if err != nil {
			logger.Error("redis connect", "err", err)
			log.Fatal(err)
		}
		defer bus.Close()
	}

	// Relay registry + websocket boundary
	registry := relay.NewRegistry(logger)
	wsrv := ws.NewServer(logger, registry, bus, pg, auth.New(cfg.JWTSecret))
	go wsrv.Run(ctx)

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, wsrv, registry, pg)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("server.shutdown.complete")
}
