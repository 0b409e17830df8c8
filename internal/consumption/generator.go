package consumption

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/gridforge-lab/gridforge/internal/catalog"
	"github.com/gridforge-lab/gridforge/internal/document"
	"github.com/gridforge-lab/gridforge/internal/identity"
	"github.com/gridforge-lab/gridforge/internal/ledger"
	"github.com/gridforge-lab/gridforge/internal/series"
)

// Generator records synthesized readings in the ledger and assembles the
// matching time-series documents. Documents are always rebuilt from a
// ledger read-back, so what goes on the wire is exactly what was stored,
// duplicates from earlier runs included.
type Generator struct {
	rng     *rand.Rand
	synth   *Synthesizer
	store   *ledger.Store
	builder *document.Builder
	outbox  string

	metricID string
	unit     string
}

func NewGenerator(rng *rand.Rand, synth *Synthesizer, store *ledger.Store, builder *document.Builder, outbox string) *Generator {
	return &Generator{
		rng:      rng,
		synth:    synth,
		store:    store,
		builder:  builder,
		outbox:   outbox,
		metricID: document.MetricActiveEnergy,
		unit:     document.UnitActiveEnergy,
	}
}

// SetMetric switches the product code and unit stamped on subsequent
// time-series documents. Defaults to active energy.
func (g *Generator) SetMetric(metricID, unit string) {
	g.metricID = metricID
	g.unit = unit
}

// GenerateAccounting synthesizes one accounting point's series, stores it
// and writes the document. Returns the document path.
func (g *Generator) GenerateAccounting(ctx context.Context, point catalog.AccountingPoint, s *series.Series, quality string) (string, error) {
	sessionID := identity.SessionID(g.rng, identity.DefaultSessionIDLength)

	readings := make([]ledger.Reading, 0, s.Len())
	for _, ts := range s.Timestamps() {
		readings = append(readings, ledger.Reading{
			SessionID:  identity.SessionID(g.rng, identity.DefaultSessionIDLength),
			PointID:    point.ID,
			Timestamp:  ts,
			Value:      g.synth.Value(Accounting, 0, 0),
			DSO:        point.DSO,
			MGA:        point.MGA,
			Supplier:   point.Supplier,
			Type:       point.Type,
			RemoteRead: point.RemoteReadable,
			Method:     point.MeteringMethod,
		})
	}

	res, err := g.store.InsertAccountingBatch(ctx, readings)
	if err != nil {
		return "", fmt.Errorf("failed to store readings for %s: %w", point.ID, err)
	}
	if res.Duplicates > 0 {
		slog.Info("[Generator] Readings already present for part of the period",
			"point_id", point.ID, "duplicates", res.Duplicates, "inserted", res.Inserted)
	}

	stored, err := g.store.AccountingReadingsForPeriod(ctx, point.ID, s.StartTime(), s.EndTime())
	if err != nil {
		return "", fmt.Errorf("failed to read back readings for %s: %w", point.ID, err)
	}

	data, err := g.builder.AccountingTimeSeries(document.TimeSeriesParams{
		MessageID:     sessionID,
		TransactionID: identity.SessionID(g.rng, identity.DefaultSessionIDLength),
		DSO:           point.DSO,
		PointID:       point.ID,
		MGA:           point.MGA,
		MetricID:      g.metricID,
		Unit:          g.unit,
		Start:         s.StartTime(),
		End:           s.EndTime(),
		Observations:  observations(stored, quality),
	})
	if err != nil {
		return "", fmt.Errorf("failed to assemble series document for %s: %w", point.ID, err)
	}

	return document.WriteFile(g.outbox, document.AccountingSeriesFilename(point.ID, s.StartTime()), data)
}

// GenerateExchange synthesizes one exchange point's series within its
// configured consumption interval.
func (g *Generator) GenerateExchange(ctx context.Context, point catalog.ExchangePoint, s *series.Series, quality string) (string, error) {
	sessionID := identity.SessionID(g.rng, identity.DefaultSessionIDLength)

	readings := make([]ledger.Reading, 0, s.Len())
	for _, ts := range s.Timestamps() {
		readings = append(readings, ledger.Reading{
			SessionID: identity.SessionID(g.rng, identity.DefaultSessionIDLength),
			PointID:   point.ID,
			Timestamp: ts,
			Value:     g.synth.Value(Exchange, point.Min, point.Max),
			DSO:       point.DSO,
			InArea:    point.InArea,
			OutArea:   point.OutArea,
		})
	}

	res, err := g.store.InsertExchangeBatch(ctx, readings)
	if err != nil {
		return "", fmt.Errorf("failed to store readings for %s: %w", point.ID, err)
	}
	if res.Duplicates > 0 {
		slog.Info("[Generator] Readings already present for part of the period",
			"point_id", point.ID, "duplicates", res.Duplicates, "inserted", res.Inserted)
	}

	stored, err := g.store.ExchangeReadingsForPeriod(ctx, point.ID, s.StartTime(), s.EndTime())
	if err != nil {
		return "", fmt.Errorf("failed to read back readings for %s: %w", point.ID, err)
	}

	data, err := g.builder.ExchangeTimeSeries(document.TimeSeriesParams{
		MessageID:     sessionID,
		TransactionID: identity.SessionID(g.rng, identity.DefaultSessionIDLength),
		DSO:           point.DSO,
		PointID:       point.ID,
		InArea:        point.InArea,
		OutArea:       point.OutArea,
		MetricID:      g.metricID,
		Unit:          g.unit,
		Start:         s.StartTime(),
		End:           s.EndTime(),
		Observations:  observations(stored, quality),
	})
	if err != nil {
		return "", fmt.Errorf("failed to assemble series document for %s: %w", point.ID, err)
	}

	return document.WriteFile(g.outbox, document.ExchangeSeriesFilename(point.ID, s.StartTime()), data)
}

// GenerateAll runs the full catalogs through generation. Failing points are
// reported and skipped so one bad row does not sink the batch.
func (g *Generator) GenerateAll(ctx context.Context, aps []catalog.AccountingPoint, rps []catalog.ExchangePoint, s *series.Series, quality string) (int, error) {
	generated := 0
	for _, point := range aps {
		if err := ctx.Err(); err != nil {
			return generated, err
		}
		path, err := g.GenerateAccounting(ctx, point, s, quality)
		if err != nil {
			slog.Error("[Generator] Accounting point failed", "point_id", point.ID, "error", err)
			continue
		}
		slog.Debug("[Generator] Document written", "path", path)
		generated++
	}
	for _, point := range rps {
		if err := ctx.Err(); err != nil {
			return generated, err
		}
		path, err := g.GenerateExchange(ctx, point, s, quality)
		if err != nil {
			slog.Error("[Generator] Exchange point failed", "point_id", point.ID, "error", err)
			continue
		}
		slog.Debug("[Generator] Document written", "path", path)
		generated++
	}
	return generated, nil
}

// observations maps stored readings to document observations in timestamp
// order, sequenced from one.
func observations(readings []ledger.Reading, quality string) []document.Observation {
	obs := make([]document.Observation, 0, len(readings))
	for i, r := range readings {
		obs = append(obs, document.Observation{
			Sequence: i + 1,
			Quantity: r.Value,
			Quality:  quality,
		})
	}
	return obs
}
