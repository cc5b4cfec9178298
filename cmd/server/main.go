// Package main runs the chat front end and the HTTP API (health, metrics,
// payment webhook). With -sweep, or the memory store, it also runs the sweep
// worker in-process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wallet-watch/internal/api"
	"github.com/wallet-watch/internal/app"
	"github.com/wallet-watch/internal/config"
	"github.com/wallet-watch/internal/metrics"
	"github.com/wallet-watch/internal/service"
	"github.com/wallet-watch/internal/telegram"
)

func main() {
	runSweep := flag.Bool("sweep", false, "also run the sweep worker in this process")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	logger := app.InitLogging(cfg)
	logger.WithFields(cfg.Redacted()).Info("Wallet watch server starting")

	res, err := app.Open(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer res.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	wallets := service.NewWalletService(res.Store, app.Catalog(cfg))

	bot, err := app.NewBot(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Telegram bot")
	}
	handler := telegram.New(bot, wallets, app.SessionStore(cfg, res))

	deps := api.Dependencies{
		Store:    res.Store,
		Checkout: wallets,
		Metrics:  m,
	}

	// The memory store is not shared between processes, so the sweep has to
	// live next to the registry.
	if *runSweep || cfg.Database.Driver == config.StoreDriverMemory {
		sweep, err := app.NewSweep(ctx, cfg, res, bot, m)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create sweep worker")
		}
		defer sweep.Close()

		if err := sweep.Worker.Start(context.Background()); err != nil {
			logger.WithError(err).Fatal("Failed to start sweep worker")
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sweep.Worker.Stop(stopCtx); err != nil {
				logger.WithError(err).Warn("Error stopping sweep worker")
			}
		}()
		deps.Worker = sweep.Worker
		deps.Explorer = sweep.Explorer
	}

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		WebhookSecret:   cfg.Payment.WebhookSecret,
	}, deps)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("API server failed")
			stop()
		}
	}()

	// Blocks until ctx is cancelled
	handler.Run(ctx, bot)

	logger.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server shutdown error")
	}
	logger.Info("Server stopped")
}
