// Package main provides the sweep worker entry point: it polls the explorer
// for every registered wallet and sends Telegram alerts.
package main

import (
	"context"
	"errors"
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
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration:\n%v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Driver == config.StoreDriverMemory {
		fmt.Fprintln(os.Stderr, "STORE_DRIVER=memory cannot be shared with the server; run the server with -sweep instead")
		os.Exit(1)
	}

	logger := app.InitLogging(cfg)
	logger.WithFields(cfg.Redacted()).Info("Sweep worker starting")

	res, err := app.Open(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer res.Close()

	bot, err := app.NewBot(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Telegram bot")
	}

	m := metrics.New()
	sweep, err := app.NewSweep(context.Background(), cfg, res, bot, m)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create sweep worker")
	}
	defer sweep.Close()

	// Not tied to the signal context: Stop lets in-flight wallets finish.
	if err := sweep.Worker.Start(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to start sweep worker")
	}

	server := api.NewServer(&api.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Worker.MetricsPort,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, api.Dependencies{
		Store:    res.Store,
		Worker:   sweep.Worker,
		Explorer: sweep.Explorer,
		Metrics:  m,
	})
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutdown signal received, stopping sweep worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sweep.Worker.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Error stopping sweep worker")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Metrics server shutdown error")
	}

	status := sweep.Worker.GetStatus()
	logger.WithField("sweeps", status.SweepsCompleted).Info("Sweep worker stopped")
}
