// queuedrain empties the hub's outbound queue, archiving every peeked
// acknowledgement before dequeueing it.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gridforge-lab/gridforge/internal/config"
	"github.com/gridforge-lab/gridforge/internal/document"
	"github.com/gridforge-lab/gridforge/internal/queue"
)

func main() {
	configPath := flag.String("config", "gridforge.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		slog.Error("Failed to load client certificate", "error", err)
		os.Exit(1)
	}
	client := &http.Client{
		Timeout: cfg.HTTPTimeout(),
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		},
	}

	builder, err := document.NewBuilder()
	if err != nil {
		slog.Error("Failed to load document templates", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, stopping drain...")
		cancel()
	}()

	drainer := queue.NewDrainer(client, builder, cfg.QueuePollURL, cfg.Paths.PeekDir)
	stats, err := drainer.Drain(ctx)
	if err != nil {
		slog.Error("Queue drain failed", "error", err,
			"total", stats.Total, "accepted", stats.Accepted, "rejected", stats.Rejected)
		os.Exit(1)
	}
}
