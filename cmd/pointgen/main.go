// pointgen manufactures metering point catalogs: accounting points with
// registration documents, or exchange points between two grid areas.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gridforge-lab/gridforge/internal/catalog"
	"github.com/gridforge-lab/gridforge/internal/config"
	"github.com/gridforge-lab/gridforge/internal/document"
	"github.com/gridforge-lab/gridforge/internal/identity"
)

func main() {
	configPath := flag.String("config", "gridforge.yaml", "Path to configuration file")
	dso := flag.String("dso", "", "DSO organization id")
	mga := flag.String("mga", "", "Metering grid area id")
	count := flag.Int("count", 0, "Number of points to generate")
	apType := flag.String("type", "", "Accounting point type (AG01 or AG02)")
	remote := flag.String("remote", "", "Remote readable flag (0 or 1)")
	method := flag.String("method", "", "Metering method (E13, E14 or E16)")
	exchange := flag.Bool("exchange", false, "Generate exchange points instead of accounting points")
	inArea := flag.String("in", "", "In area for exchange points")
	outArea := flag.String("out", "", "Out area for exchange points")
	minKWh := flag.Int("min", 0, "Lower reading bound for exchange points (tenths of kWh)")
	maxKWh := flag.Int("max", 0, "Upper reading bound for exchange points (tenths of kWh)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if *exchange {
		if err := runExchange(cfg, rng, *dso, *count, *inArea, *outArea, *minKWh, *maxKWh); err != nil {
			slog.Error("Exchange point generation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	spec, err := resolveSpec(cfg, *dso, *mga, *count, *apType, *remote, *method)
	if err != nil {
		slog.Error("Invalid generation parameters", "error", err)
		os.Exit(1)
	}

	if err := runAccounting(cfg, rng, spec); err != nil {
		slog.Error("Accounting point generation failed", "error", err)
		os.Exit(1)
	}
}

// resolveSpec builds the generation spec from flags, or prompts for every
// value when no flag was given. Partially flagged runs are rejected so a
// forgotten flag never silently falls back to a prompt default.
func resolveSpec(cfg *config.Config, dso, mga string, count int, apType, remote, method string) (catalog.GenerateSpec, error) {
	flagged := 0
	for _, set := range []bool{dso != "", mga != "", count > 0, apType != "", remote != "", method != ""} {
		if set {
			flagged++
		}
	}

	switch flagged {
	case 6:
	case 0:
		var err error
		dso, mga, count, apType, remote, method, err = promptSpec(cfg)
		if err != nil {
			return catalog.GenerateSpec{}, err
		}
	default:
		return catalog.GenerateSpec{}, fmt.Errorf("either pass all of -dso -mga -count -type -remote -method, or none for interactive mode")
	}

	return catalog.GenerateSpec{
		DSO:            dso,
		MGA:            mga,
		Count:          count,
		Type:           apType,
		RemoteReadable: remote,
		MeteringMethod: method,
		Dealers:        cfg.Generator.DealerList,
		RangeStart:     cfg.Generator.IDRangeStart,
		RowLimit:       cfg.Generator.CatalogRowLimit,
	}, nil
}

func promptSpec(cfg *config.Config) (dso, mga string, count int, apType, remote, method string, err error) {
	in := bufio.NewScanner(os.Stdin)

	dso, err = promptChoice(in, "DSO organization", cfg.Generator.DSOList)
	if err != nil {
		return
	}
	mga, err = promptChoice(in, "Metering grid area", cfg.Generator.MGAList)
	if err != nil {
		return
	}
	countStr, err := prompt(in, "Number of points")
	if err != nil {
		return
	}
	count, err = strconv.Atoi(countStr)
	if err != nil {
		err = fmt.Errorf("point count must be a number: %w", err)
		return
	}
	apType, err = promptDefault(in, "AP type (AG01 consumption, AG02 production)", catalog.TypeNonProduction)
	if err != nil {
		return
	}
	remote, err = promptDefault(in, "Remote readable (0/1)", "1")
	if err != nil {
		return
	}
	method, err = promptDefault(in, "Metering method (E13/E14/E16)", catalog.MethodContinuous)
	if err != nil {
		return
	}
	return
}

func prompt(in *bufio.Scanner, label string) (string, error) {
	fmt.Printf("%s: ", label)
	if !in.Scan() {
		return "", fmt.Errorf("input closed")
	}
	return strings.TrimSpace(in.Text()), nil
}

func promptDefault(in *bufio.Scanner, label, fallback string) (string, error) {
	answer, err := prompt(in, fmt.Sprintf("%s [%s]", label, fallback))
	if err != nil {
		return "", err
	}
	if answer == "" {
		return fallback, nil
	}
	return answer, nil
}

func promptChoice(in *bufio.Scanner, label string, options []string) (string, error) {
	if len(options) == 0 {
		return prompt(in, label)
	}
	fmt.Printf("%s:\n", label)
	for i, option := range options {
		fmt.Printf("  %d) %s\n", i+1, option)
	}
	answer, err := prompt(in, fmt.Sprintf("Choice [1-%d]", len(options)))
	if err != nil {
		return "", err
	}
	idx, err := strconv.Atoi(answer)
	if err != nil || idx < 1 || idx > len(options) {
		return options[0], nil
	}
	return options[idx-1], nil
}

func runAccounting(cfg *config.Config, rng *rand.Rand, spec catalog.GenerateSpec) error {
	book, err := catalog.LoadAddressBook()
	if err != nil {
		return err
	}

	points, err := catalog.GenerateAccountingPoints(rng, book, spec)
	if err != nil {
		return err
	}

	if err := catalog.AppendAccountingPoints(cfg.Paths.APCatalog, points); err != nil {
		return err
	}
	slog.Info("Catalog updated", "path", cfg.Paths.APCatalog, "points", len(points))

	builder, err := document.NewBuilder()
	if err != nil {
		return err
	}

	for _, point := range points {
		number := "1"
		street := point.Street
		if i := strings.LastIndex(point.Street, " "); i > 0 {
			street, number = point.Street[:i], point.Street[i+1:]
		}
		data, err := builder.MasterData(document.MasterDataParams{
			MessageID:      identity.MessageID(rng),
			TransactionID:  identity.SessionID(rng, identity.DefaultSessionIDLength),
			DSO:            point.DSO,
			PointID:        point.ID,
			MGA:            point.MGA,
			Type:           point.Type,
			Street:         street,
			BuildingNumber: number,
			Zip:            point.Zip,
			City:           point.City,
			RemoteReadable: point.RemoteReadable,
			MeteringMethod: point.MeteringMethod,
		})
		if err != nil {
			return fmt.Errorf("failed to assemble registration for %s: %w", point.ID, err)
		}
		if _, err := document.WriteFile(cfg.Paths.Outbox, document.MasterDataFilename(point.ID), data); err != nil {
			return err
		}
	}

	slog.Info("Registration documents written", "outbox", cfg.Paths.Outbox, "count", len(points))
	return nil
}

func runExchange(cfg *config.Config, rng *rand.Rand, dso string, count int, inArea, outArea string, min, max int) error {
	if dso == "" || count <= 0 || inArea == "" || outArea == "" {
		return fmt.Errorf("exchange mode needs -dso -count -in -out -min -max")
	}

	spec := catalog.GenerateSpec{
		DSO:        dso,
		Count:      count,
		RangeStart: cfg.Generator.IDRangeStart,
		RowLimit:   cfg.Generator.CatalogRowLimit,
	}
	points, err := catalog.GenerateExchangePoints(rng, spec, inArea, outArea, min, max)
	if err != nil {
		return err
	}
	if err := catalog.AppendExchangePoints(cfg.Paths.RPCatalog, points); err != nil {
		return err
	}
	slog.Info("Catalog updated", "path", cfg.Paths.RPCatalog, "points", len(points))
	return nil
}
