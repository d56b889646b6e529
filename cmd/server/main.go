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

	"swap_go/internal/api"
	"swap_go/internal/app"
	"swap_go/internal/dex"
	"swap_go/internal/engine"
	"swap_go/internal/infra"

	"github.com/shopspring/decimal"
)

func main() {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	cfg := bootstrap.Config
	infra.PrintBanner(cfg)

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Simulated DEX router (the quote/execution provider)
	router := dex.NewMockDexRouter(dex.Config{
		BasePrice:      decimal.NewFromFloat(cfg.Dex.BasePrice),
		QuoteLatency:   time.Duration(cfg.Dex.QuoteLatencyMS) * time.Millisecond,
		ExecMinLatency: time.Duration(cfg.Dex.ExecMinLatencyMS) * time.Millisecond,
		ExecMaxLatency: time.Duration(cfg.Dex.ExecMaxLatencyMS) * time.Millisecond,
		FailRate:       cfg.Dex.FailRate,
	})

	// 4. Order engine (the single-loop core)
	var journal engine.Journal
	if bootstrap.Journal != nil {
		journal = bootstrap.Journal
	}
	eng := engine.New(engine.Config{
		MaxConcurrent: cfg.Engine.MaxConcurrent,
		MaxAttempts:   cfg.Engine.MaxAttempts,
		BaseDelay:     time.Duration(cfg.Engine.BaseDelayMS) * time.Millisecond,
		MaxDelay:      time.Duration(cfg.Engine.MaxDelayMS) * time.Millisecond,
		InboxSize:     cfg.Engine.InboxSize,
	}, router, journal, nil)

	go eng.Run(ctx)
	slog.InfoContext(ctx, "✅ Engine started")

	// 5. HTTP + WebSocket API
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(eng).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("✅ API listening", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "✨ SwapGo fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("API shutdown incomplete", slog.Any("error", err))
	}
}
