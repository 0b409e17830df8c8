// Package ledger is the durable keyed store for generated readings: one row
// per (point id, timestamp), append-only, duplicate-tolerant so a partially
// completed batch can be re-run safely.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridforge-lab/gridforge/internal/migrations"

	_ "github.com/lib/pq"        // postgres backend
	_ "modernc.org/sqlite"       // default single-file backend
)

// ErrDuplicate is returned when a reading for the same (point_id, ts) key
// already exists.
var ErrDuplicate = errors.New("reading already recorded")

const connectPingTimeout = 5 * time.Second

// Reading is one (point, hour) record with its denormalized context, copied
// at write time.
type Reading struct {
	SessionID string
	PointID   string
	Timestamp time.Time
	Value     decimal.Decimal

	// Accounting point context.
	DSO        string
	MGA        string
	Supplier   string
	Type       string
	RemoteRead string
	Method     string

	// Exchange point context.
	InArea  string
	OutArea string
}

// BatchResult reports one point's insert pass.
type BatchResult struct {
	Inserted   int
	Duplicates int
}

// Store wraps the ledger database. The driver is either "sqlite" (default,
// single-file) or "postgres".
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the ledger, pings it, and runs migrations when
// autoMigrate is set.
func Open(driver, dsn string, autoMigrate bool) (*Store, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", driver, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s ledger: %w", driver, err)
	}

	if driver == "sqlite" {
		// Cross-connection file locking instead of immediate "database is
		// locked" failures under concurrent workers.
		if _, err := db.Exec("PRAGMA busy_timeout = 10000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	if err := migrations.Run(db, driver, autoMigrate); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("[Ledger] Opened", "driver", driver)
	return &Store{db: db, driver: driver}, nil
}

// NewWithDB wraps an existing database handle. Used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, driver: "sqlite"}
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

const (
	queryInsertAccounting = `
		INSERT INTO ap_readings (
			session_id, point_id, ts, value,
			dso, mga, supplier, ap_type, remote_read, method
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (point_id, ts) DO NOTHING
	`

	queryInsertExchange = `
		INSERT INTO rp_readings (
			session_id, point_id, ts, value, dso, in_area, out_area
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (point_id, ts) DO NOTHING
	`

	queryAccountingPeriod = `
		SELECT session_id, point_id, ts, value, dso, mga, supplier, ap_type, remote_read, method
		FROM ap_readings
		WHERE point_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC
	`

	queryExchangePeriod = `
		SELECT session_id, point_id, ts, value, dso, in_area, out_area
		FROM rp_readings
		WHERE point_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC
	`
)

// InsertAccountingBatch records one accounting point's full run in a single
// transaction: either every new hour is committed or none are. Rows whose
// (point_id, ts) key already exists are counted as duplicates and skipped,
// not treated as errors.
func (s *Store) InsertAccountingBatch(ctx context.Context, readings []Reading) (BatchResult, error) {
	return s.insertBatch(ctx, queryInsertAccounting, readings, func(r Reading) []any {
		return []any{
			r.SessionID, r.PointID, r.Timestamp, r.Value.String(),
			r.DSO, r.MGA, r.Supplier, r.Type, r.RemoteRead, r.Method,
		}
	})
}

// InsertExchangeBatch records one exchange point's full run, same semantics
// as InsertAccountingBatch.
func (s *Store) InsertExchangeBatch(ctx context.Context, readings []Reading) (BatchResult, error) {
	return s.insertBatch(ctx, queryInsertExchange, readings, func(r Reading) []any {
		return []any{
			r.SessionID, r.PointID, r.Timestamp, r.Value.String(),
			r.DSO, r.InArea, r.OutArea,
		}
	})
}

func (s *Store) insertBatch(ctx context.Context, query string, readings []Reading, args func(Reading) []any) (BatchResult, error) {
	var res BatchResult
	if len(readings) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}

	for _, r := range readings {
		out, err := tx.ExecContext(ctx, query, args(r)...)
		if err != nil {
			tx.Rollback()
			return BatchResult{}, fmt.Errorf("failed to insert reading for %s at %s: %w",
				r.PointID, r.Timestamp.Format(time.RFC3339), err)
		}
		affected, err := out.RowsAffected()
		if err != nil {
			tx.Rollback()
			return BatchResult{}, fmt.Errorf("failed to read insert result: %w", err)
		}
		if affected == 0 {
			slog.Debug("[Ledger] Duplicate reading skipped",
				"point_id", r.PointID,
				"ts", r.Timestamp.Format(time.RFC3339),
			)
			res.Duplicates++
			continue
		}
		res.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{}, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return res, nil
}

// InsertAccounting records a single reading. Returns ErrDuplicate when the
// (point_id, ts) key already exists.
func (s *Store) InsertAccounting(ctx context.Context, r Reading) error {
	res, err := s.InsertAccountingBatch(ctx, []Reading{r})
	if err != nil {
		return err
	}
	if res.Duplicates > 0 {
		return ErrDuplicate
	}
	return nil
}

// AccountingReadingsForPeriod returns one point's readings in [start, end)
// in timestamp order. Documents are regenerated from this, so what is sent
// always matches what the ledger holds.
func (s *Store) AccountingReadingsForPeriod(ctx context.Context, pointID string, start, end time.Time) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx, queryAccountingPeriod, pointID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounting readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		var value string
		if err := rows.Scan(&r.SessionID, &r.PointID, &r.Timestamp, &value,
			&r.DSO, &r.MGA, &r.Supplier, &r.Type, &r.RemoteRead, &r.Method); err != nil {
			return nil, fmt.Errorf("failed to scan accounting reading: %w", err)
		}
		if r.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("bad ledger value %q: %w", value, err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounting readings: %w", err)
	}
	return readings, nil
}

// ExchangeReadingsForPeriod returns one exchange point's readings in
// [start, end) in timestamp order.
func (s *Store) ExchangeReadingsForPeriod(ctx context.Context, pointID string, start, end time.Time) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx, queryExchangePeriod, pointID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		var value string
		if err := rows.Scan(&r.SessionID, &r.PointID, &r.Timestamp, &value,
			&r.DSO, &r.InArea, &r.OutArea); err != nil {
			return nil, fmt.Errorf("failed to scan exchange reading: %w", err)
		}
		if r.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("bad ledger value %q: %w", value, err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exchange readings: %w", err)
	}
	return readings, nil
}
