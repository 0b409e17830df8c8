// Package catalog reads and writes the flat point catalogs: the accounting
// point file produced by the generation step and the exchange point file.
// Both are header-row CSV, append-only.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// AccountingPointType codes.
const (
	TypeNonProduction = "AG01"
	TypeProduction    = "AG02"
)

// Metering method codes.
const (
	MethodContinuous = "E13"
	MethodPeriodic   = "E14"
	MethodUnmetered  = "E16"
)

// ErrNotFound is returned when a point id is absent from a catalog.
var ErrNotFound = errors.New("point not found in catalog")

// AccountingPoint is one metering location row.
type AccountingPoint struct {
	ID             string
	MeteringArea   string
	Supplier       string
	DSO            string
	MGA            string
	Zip            string
	Street         string
	City           string
	Type           string
	RemoteReadable string
	MeteringMethod string
}

// ExchangePoint is one grid interconnection row. Min/Max bound the random
// reading synthesis for the point.
type ExchangePoint struct {
	ID      string
	DSO     string
	InArea  string
	OutArea string
	Min     int
	Max     int
}

var apHeader = []string{
	"Accounting point", "Metering Area", "Supplier", "DSO", "MGA",
	"ZIP", "Street", "City", "AP type", "Remote readable", "Metering method",
}

var rpHeader = []string{"ID", "DSO", "IN_AREA", "OUT_AREA", "MIN_KWH", "MAX_KWH"}

// AppendAccountingPoints appends rows to the catalog at path, writing the
// header only when the file does not exist yet. Rows are never mutated or
// removed, only appended.
func AppendAccountingPoints(path string, points []AccountingPoint) error {
	f, writeHeader, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(apHeader); err != nil {
			return fmt.Errorf("failed to write catalog header: %w", err)
		}
	}
	for _, p := range points {
		row := []string{
			p.ID, p.MeteringArea, p.Supplier, p.DSO, p.MGA,
			p.Zip, p.Street, p.City, p.Type, p.RemoteReadable, p.MeteringMethod,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write catalog row for %s: %w", p.ID, err)
		}
	}
	w.Flush()
	return w.Error()
}

// AppendExchangePoints appends rows to the exchange point catalog.
func AppendExchangePoints(path string, points []ExchangePoint) error {
	f, writeHeader, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(rpHeader); err != nil {
			return fmt.Errorf("failed to write catalog header: %w", err)
		}
	}
	for _, p := range points {
		row := []string{
			p.ID, p.DSO, p.InArea, p.OutArea,
			strconv.Itoa(p.Min), strconv.Itoa(p.Max),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write catalog row for %s: %w", p.ID, err)
		}
	}
	w.Flush()
	return w.Error()
}

func openAppend(path string) (*os.File, bool, error) {
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	return f, writeHeader, nil
}

// ReadAccountingPoints loads the full accounting point catalog.
func ReadAccountingPoints(path string) ([]AccountingPoint, error) {
	records, err := readRecords(path, len(apHeader))
	if err != nil {
		return nil, err
	}
	points := make([]AccountingPoint, 0, len(records))
	for _, rec := range records {
		points = append(points, AccountingPoint{
			ID: rec[0], MeteringArea: rec[1], Supplier: rec[2], DSO: rec[3],
			MGA: rec[4], Zip: rec[5], Street: rec[6], City: rec[7],
			Type: rec[8], RemoteReadable: rec[9], MeteringMethod: rec[10],
		})
	}
	return points, nil
}

// ReadExchangePoints loads the full exchange point catalog.
func ReadExchangePoints(path string) ([]ExchangePoint, error) {
	records, err := readRecords(path, len(rpHeader))
	if err != nil {
		return nil, err
	}
	points := make([]ExchangePoint, 0, len(records))
	for _, rec := range records {
		min, err := strconv.Atoi(rec[4])
		if err != nil {
			return nil, fmt.Errorf("bad MIN_KWH %q for %s: %w", rec[4], rec[0], err)
		}
		max, err := strconv.Atoi(rec[5])
		if err != nil {
			return nil, fmt.Errorf("bad MAX_KWH %q for %s: %w", rec[5], rec[0], err)
		}
		points = append(points, ExchangePoint{
			ID: rec[0], DSO: rec[1], InArea: rec[2], OutArea: rec[3],
			Min: min, Max: max,
		})
	}
	return points, nil
}

// FindAccountingPoint scans the catalog for one id.
func FindAccountingPoint(path, id string) (AccountingPoint, error) {
	points, err := ReadAccountingPoints(path)
	if err != nil {
		return AccountingPoint{}, err
	}
	for _, p := range points {
		if p.ID == id {
			return p, nil
		}
	}
	return AccountingPoint{}, fmt.Errorf("accounting point %s: %w", id, ErrNotFound)
}

func readRecords(path string, wantFields int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = wantFields

	// Header row.
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read catalog header in %s: %w", path, err)
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog row in %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
