package consumption

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gridforge-lab/gridforge/internal/catalog"
	"github.com/gridforge-lab/gridforge/internal/document"
	"github.com/gridforge-lab/gridforge/internal/ledger"
	"github.com/gridforge-lab/gridforge/internal/series"
)

var testPoint = catalog.AccountingPoint{
	ID:             "643006966000000069",
	MeteringArea:   "FI001",
	Supplier:       "64300618",
	DSO:            "64300696",
	MGA:            "64300696600",
	Type:           "AG01",
	RemoteReadable: "1",
	MeteringMethod: "E13",
}

var testExchange = catalog.ExchangePoint{
	ID:      "643006966000000076",
	DSO:     "64300696",
	InArea:  "64300696600",
	OutArea: "64300696601",
	Min:     10,
	Max:     50,
}

func newTestGenerator(t *testing.T) (*Generator, sqlmock.Sqlmock, string) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	builder, err := document.NewBuilder(document.WithClock(func() time.Time {
		return time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC)
	}))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	synth := New(rng, WithStaticAP(decimal.RequireFromString("2.5")),
		WithStaticRP(decimal.RequireFromString("12.0")))
	outbox := t.TempDir()
	gen := NewGenerator(rng, synth, ledger.NewWithDB(db), builder, outbox)
	return gen, mock, outbox
}

func testWindow(t *testing.T) *series.Series {
	t.Helper()
	origin := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	s, err := series.Hourly(origin, 1, 2)
	require.NoError(t, err)
	return s
}

func accountingRows(s *series.Series, value string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"session_id", "point_id", "ts", "value",
		"dso", "mga", "supplier", "ap_type", "remote_read", "method",
	})
	for _, ts := range s.Timestamps() {
		rows.AddRow("session", testPoint.ID, ts, value,
			testPoint.DSO, testPoint.MGA, testPoint.Supplier,
			testPoint.Type, testPoint.RemoteReadable, testPoint.MeteringMethod)
	}
	return rows
}

func expectAccountingRun(mock sqlmock.Sqlmock, s *series.Series) {
	mock.ExpectBegin()
	for range s.Timestamps() {
		mock.ExpectExec("INSERT INTO ap_readings").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM ap_readings").
		WithArgs(testPoint.ID, s.StartTime(), s.EndTime()).
		WillReturnRows(accountingRows(s, "2.5"))
}

func TestGenerateAccounting_WritesDocument(t *testing.T) {
	gen, mock, outbox := newTestGenerator(t)
	s := testWindow(t)
	expectAccountingRun(mock, s)

	path, err := gen.GenerateAccounting(context.Background(), testPoint, s, "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(outbox, document.AccountingSeriesFilename(testPoint.ID, s.StartTime())), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, testPoint.ID)
	require.Contains(t, content, document.MetricActiveEnergy)
	require.Contains(t, content, "KWH")
	require.Contains(t, content, "2.5")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateAccounting_ReactiveMetric(t *testing.T) {
	gen, mock, _ := newTestGenerator(t)
	gen.SetMetric(document.MetricReactiveEnergy, document.UnitReactiveEnergy)
	s := testWindow(t)
	expectAccountingRun(mock, s)

	path, err := gen.GenerateAccounting(context.Background(), testPoint, s, "")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), document.MetricReactiveEnergy)
	require.Contains(t, string(data), "KVR")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateExchange_WritesDocument(t *testing.T) {
	gen, mock, outbox := newTestGenerator(t)
	s := testWindow(t)

	mock.ExpectBegin()
	for range s.Timestamps() {
		mock.ExpectExec("INSERT INTO rp_readings").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
	rows := sqlmock.NewRows([]string{
		"session_id", "point_id", "ts", "value", "dso", "in_area", "out_area",
	})
	for _, ts := range s.Timestamps() {
		rows.AddRow("session", testExchange.ID, ts, "12.0",
			testExchange.DSO, testExchange.InArea, testExchange.OutArea)
	}
	mock.ExpectQuery("SELECT (.+) FROM rp_readings").
		WithArgs(testExchange.ID, s.StartTime(), s.EndTime()).
		WillReturnRows(rows)

	path, err := gen.GenerateExchange(context.Background(), testExchange, s, "Z01")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(outbox, document.ExchangeSeriesFilename(testExchange.ID, s.StartTime())), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), testExchange.InArea)
	require.Contains(t, string(data), "Z01")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateAll_SkipsFailingPoint(t *testing.T) {
	gen, mock, _ := newTestGenerator(t)
	s := testWindow(t)

	// First point fails on insert and is skipped.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ap_readings").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	expectAccountingRun(mock, s)

	broken := testPoint
	broken.ID = "643006966000000045"
	generated, err := gen.GenerateAll(context.Background(),
		[]catalog.AccountingPoint{broken, testPoint}, nil, s, "")
	require.NoError(t, err)
	require.Equal(t, 1, generated)
	require.NoError(t, mock.ExpectationsWereMet())
}
