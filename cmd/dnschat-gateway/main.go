// Command dnschat-gateway serves the DNS transport engine as a local
// JSON API, for clients that cannot speak DNS directly.
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

	"github.com/dnschat/dnschat/internal/chat"
	"github.com/dnschat/dnschat/internal/config"
	"github.com/dnschat/dnschat/internal/ratelimit"
	"github.com/dnschat/dnschat/internal/transport"
	"github.com/dnschat/dnschat/internal/web"
	"github.com/dnschat/dnschat/internal/web/handlers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Engine
	engine := chat.NewService(chat.Options{
		DefaultServer: cfg.Server,
		Transports: []transport.Transport{
			&transport.Resolver{},
			&transport.UDP{},
			&transport.TCP{},
			&transport.DoH{Endpoint: cfg.DoHEndpoint},
		},
		MaxRetries:    cfg.MaxRetries,
		Timeout:       cfg.QueryTimeout,
		RateLimit:     cfg.RateLimit,
		RateInterval:  cfg.RateInterval,
		BackoffBase:   cfg.BackoffBase,
		BackoffCap:    cfg.BackoffCap,
		BackoffJitter: cfg.BackoffJitter,
	})

	// Rate limiter
	limiter := ratelimit.NewLimiter(cfg.GatewayRateLimitRPS, cfg.GatewayRateLimitBurst)

	// Router
	router := web.NewRouter(web.RouterDeps{
		AskHandler: handlers.NewAskHandler(engine),
		Limiter:    limiter,
	})

	// Server
	addr := fmt.Sprintf(":%d", cfg.GatewayPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("dnschat gateway starting", "addr", addr, "server", cfg.Server)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
