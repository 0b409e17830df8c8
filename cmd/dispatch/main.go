// dispatch delivers every pending document in the outbox to the hub,
// registrations and time series first, contracts second.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gridforge-lab/gridforge/internal/batch"
	"github.com/gridforge-lab/gridforge/internal/config"
	"github.com/gridforge-lab/gridforge/internal/delivery"
)

func main() {
	configPath := flag.String("config", "gridforge.yaml", "Path to configuration file")
	concurrent := flag.Bool("concurrent", false, "Send in bounded concurrent blocks")
	blockSize := flag.Int("block", 0, "Concurrent block size (default from config)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	router := delivery.NewRouter(cfg.BaseURL, cfg.Routing.DSO, cfg.Routing.DDQ)
	sender, err := delivery.NewSender(router, cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.Paths.LogDir)
	if err != nil {
		slog.Error("Failed to initialize sender", "error", err)
		os.Exit(1)
	}

	size := cfg.Dispatch.BlockSize
	if *blockSize > 0 {
		size = *blockSize
	}
	runner := batch.NewRunner(sender, cfg.Paths.Outbox,
		batch.WithBlockSize(size),
		batch.WithPhaseCooldown(cfg.PhaseCooldown()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, stopping dispatch...")
		cancel()
	}()

	var summary batch.Summary
	if *concurrent {
		summary, err = runner.RunConcurrent(ctx)
	} else {
		summary, err = runner.RunSequential(ctx)
	}

	if err != nil {
		if errors.Is(err, delivery.ErrUnavailable) {
			slog.Error("Hub backend unavailable, run aborted",
				"run_id", summary.RunID, "succeeded", summary.Succeeded, "failed", summary.Failed)
		} else {
			slog.Error("Dispatch run failed", "run_id", summary.RunID, "error", err)
		}
		os.Exit(1)
	}

	if summary.Failed > 0 {
		os.Exit(1)
	}
}
