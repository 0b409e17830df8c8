// loadgen synthesizes hourly consumption for the point catalogs, records
// it in the ledger and assembles the time-series documents.
package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridforge-lab/gridforge/internal/catalog"
	"github.com/gridforge-lab/gridforge/internal/config"
	"github.com/gridforge-lab/gridforge/internal/consumption"
	"github.com/gridforge-lab/gridforge/internal/document"
	"github.com/gridforge-lab/gridforge/internal/ledger"
	"github.com/gridforge-lab/gridforge/internal/series"
)

func main() {
	configPath := flag.String("config", "gridforge.yaml", "Path to configuration file")
	startDate := flag.String("start", "", "Start date, d.m.yyyy")
	numDays := flag.Int("days", 1, "Number of days to generate")
	quality := flag.String("quality", "", "Quality code for every observation (empty, Z01, Z02 or 99)")
	interactive := flag.Bool("interactive", false, "Start the interactive shell")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	store, err := ledger.Open(cfg.Ledger.Type, cfg.Ledger.DSN, cfg.Ledger.AutoMigrate)
	if err != nil {
		slog.Error("Failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	builder, err := document.NewBuilder()
	if err != nil {
		slog.Error("Failed to load document templates", "error", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	gen := consumption.NewGenerator(rng, newSynthesizer(cfg, rng), store, builder, cfg.Paths.Outbox)

	if *interactive {
		runShell(cfg, gen)
		return
	}

	if *startDate == "" {
		slog.Error("Missing -start date (or use -interactive)")
		os.Exit(1)
	}

	origin, err := series.ParseStart(*startDate, "00:00")
	if err != nil {
		slog.Error("Invalid start date", "start", *startDate, "error", err)
		os.Exit(1)
	}
	s, err := series.Hourly(origin, *numDays, 24)
	if err != nil {
		slog.Error("Invalid generation window", "error", err)
		os.Exit(1)
	}

	generated, err := generateAll(context.Background(), cfg, gen, s, *quality)
	if err != nil {
		slog.Error("Generation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Generation finished", "documents", generated)
}

func newSynthesizer(cfg *config.Config, rng *rand.Rand) *consumption.Synthesizer {
	var opts []consumption.Option
	if v := cfg.Generator.StaticOverrideAP; v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			opts = append(opts, consumption.WithStaticAP(d))
		} else {
			slog.Warn("Ignoring bad generator.static_override_ap", "value", v)
		}
	}
	if v := cfg.Generator.StaticOverrideRP; v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			opts = append(opts, consumption.WithStaticRP(d))
		} else {
			slog.Warn("Ignoring bad generator.static_override_rp", "value", v)
		}
	}
	return consumption.New(rng, opts...)
}

// generateAll reads both catalogs and runs them through the generator. A
// missing catalog file is skipped, matching a setup where only one side
// has been generated.
func generateAll(ctx context.Context, cfg *config.Config, gen *consumption.Generator, s *series.Series, quality string) (int, error) {
	var aps []catalog.AccountingPoint
	var rps []catalog.ExchangePoint

	if _, err := os.Stat(cfg.Paths.APCatalog); err == nil {
		aps, err = catalog.ReadAccountingPoints(cfg.Paths.APCatalog)
		if err != nil {
			return 0, err
		}
	} else {
		slog.Warn("Accounting point catalog missing, skipping", "path", cfg.Paths.APCatalog)
	}

	if _, err := os.Stat(cfg.Paths.RPCatalog); err == nil {
		rps, err = catalog.ReadExchangePoints(cfg.Paths.RPCatalog)
		if err != nil {
			return 0, err
		}
	} else {
		slog.Warn("Exchange point catalog missing, skipping", "path", cfg.Paths.RPCatalog)
	}

	return gen.GenerateAll(ctx, aps, rps, s, quality)
}
