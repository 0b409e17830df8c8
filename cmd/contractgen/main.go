// contractgen assembles a supply contract document for every accounting
// point in the catalog, with a synthetic Finnish consumer per contract.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/gridforge-lab/gridforge/internal/catalog"
	"github.com/gridforge-lab/gridforge/internal/config"
	"github.com/gridforge-lab/gridforge/internal/document"
	"github.com/gridforge-lab/gridforge/internal/identity"
)

const (
	consumerBirthYearMin = 1920
	consumerBirthYearMax = 2005
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

	if err := run(cfg); err != nil {
		slog.Error("Contract generation failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	points, err := catalog.ReadAccountingPoints(cfg.Paths.APCatalog)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return fmt.Errorf("catalog %s is empty, run pointgen first", cfg.Paths.APCatalog)
	}

	builder, err := document.NewBuilder()
	if err != nil {
		return err
	}
	names, err := identity.LoadNameBook()
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	written := 0
	for _, point := range points {
		consumerID, err := identity.NationalID(rng, consumerBirthYearMin, consumerBirthYearMax)
		if err != nil {
			return fmt.Errorf("failed to generate consumer id for %s: %w", point.ID, err)
		}

		data, err := builder.Contract(document.ContractParams{
			MessageID:         identity.MessageID(rng),
			TransactionID:     identity.SessionID(rng, identity.DefaultSessionIDLength),
			DDQ:               point.Supplier,
			PointID:           point.ID,
			MGA:               point.MGA,
			ContractReference: "sopimus_" + point.ID,
			ConsumerID:        consumerID,
			ConsumerName:      names.PersonName(rng),
		})
		if err != nil {
			return fmt.Errorf("failed to assemble contract for %s: %w", point.ID, err)
		}
		if _, err := document.WriteFile(cfg.Paths.Outbox, document.ContractFilename(point.ID), data); err != nil {
			return err
		}
		written++
	}

	slog.Info("Contract documents written", "outbox", cfg.Paths.Outbox, "count", written)
	return nil
}
