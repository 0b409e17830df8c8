package catalog

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"math/rand"
	"strings"

	"github.com/gridforge-lab/gridforge/internal/identity"
)

//go:embed addresses.txt
var addressFile embed.FS

// Address is one synthetic street address drawn for a generated point.
type Address struct {
	Zip    string
	Street string
	City   string
}

// AddressBook draws random addresses from the embedded list.
type AddressBook struct {
	entries []Address
}

// LoadAddressBook parses the embedded zip,street,city address list.
func LoadAddressBook() (*AddressBook, error) {
	data, err := addressFile.ReadFile("addresses.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to read address list: %w", err)
	}
	var entries []Address
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed address line %q", line)
		}
		entries = append(entries, Address{
			Zip:    strings.TrimSpace(parts[0]),
			Street: strings.TrimSpace(parts[1]),
			City:   strings.TrimSpace(parts[2]),
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("address list is empty")
	}
	return &AddressBook{entries: entries}, nil
}

// Random returns one address. The street number is randomized per call.
func (b *AddressBook) Random(r *rand.Rand) Address {
	a := b.entries[r.Intn(len(b.entries))]
	a.Street = fmt.Sprintf("%s %d", a.Street, 1+r.Intn(100))
	return a
}

// GenerateSpec describes one accounting point generation run.
type GenerateSpec struct {
	DSO            string // full DSO id; its 8-char prefix seeds the point ids
	MGA            string
	Count          int
	Type           string
	RemoteReadable string
	MeteringMethod string
	Dealers        []string // suppliers drawn randomly per point
	RangeStart     int      // 0 picks a random start below the ceiling
	RowLimit       int
}

func (s GenerateSpec) validate() error {
	if len(s.DSO) < 8 {
		return fmt.Errorf("DSO id %q is shorter than the 8-character prefix", s.DSO)
	}
	if s.MGA == "" {
		return fmt.Errorf("MGA id is required")
	}
	if s.Count < 1 {
		return fmt.Errorf("point count must be positive, got %d", s.Count)
	}
	if s.RowLimit > 0 && s.Count > s.RowLimit {
		return fmt.Errorf("point count %d exceeds catalog row limit %d", s.Count, s.RowLimit)
	}
	if len(s.Dealers) == 0 {
		return fmt.Errorf("dealer list is empty")
	}
	switch s.Type {
	case TypeNonProduction, TypeProduction:
	default:
		return fmt.Errorf("unknown accounting point type %q", s.Type)
	}
	switch s.MeteringMethod {
	case MethodContinuous, MethodPeriodic, MethodUnmetered:
	default:
		return fmt.Errorf("unknown metering method %q", s.MeteringMethod)
	}
	switch s.RemoteReadable {
	case "0", "1":
	default:
		return fmt.Errorf("remote readable must be 0 or 1, got %q", s.RemoteReadable)
	}
	return nil
}

// GenerateAccountingPoints manufactures a batch of accounting points: a
// checksummed id sequence, one shared address per run, and a random supplier
// per point. The metering area is the DSO prefix padded with zeros.
func GenerateAccountingPoints(r *rand.Rand, book *AddressBook, spec GenerateSpec) ([]AccountingPoint, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	start := spec.RangeStart
	if start <= 0 {
		start = 1 + r.Intn(identity.SequenceCeiling-spec.Count)
	}

	prefix := spec.DSO[:8]
	ids, err := identity.Sequence(prefix, start, spec.Count)
	if err != nil {
		return nil, err
	}

	addr := book.Random(r)
	meteringArea := prefix + "00000000"

	points := make([]AccountingPoint, 0, len(ids))
	for _, id := range ids {
		points = append(points, AccountingPoint{
			ID:             id,
			MeteringArea:   meteringArea,
			Supplier:       spec.Dealers[r.Intn(len(spec.Dealers))],
			DSO:            spec.DSO,
			MGA:            spec.MGA,
			Zip:            addr.Zip,
			Street:         addr.Street,
			City:           addr.City,
			Type:           spec.Type,
			RemoteReadable: spec.RemoteReadable,
			MeteringMethod: spec.MeteringMethod,
		})
	}
	return points, nil
}

// GenerateExchangePoints manufactures interconnection points between two
// grid areas with the given reading bounds.
func GenerateExchangePoints(r *rand.Rand, spec GenerateSpec, inArea, outArea string, min, max int) ([]ExchangePoint, error) {
	if len(spec.DSO) < 8 {
		return nil, fmt.Errorf("DSO id %q is shorter than the 8-character prefix", spec.DSO)
	}
	if spec.Count < 1 {
		return nil, fmt.Errorf("point count must be positive, got %d", spec.Count)
	}
	if min >= max {
		return nil, fmt.Errorf("reading bounds [%d, %d] are not an interval", min, max)
	}

	start := spec.RangeStart
	if start <= 0 {
		start = 1 + r.Intn(identity.SequenceCeiling-spec.Count)
	}
	ids, err := identity.Sequence(spec.DSO[:8], start, spec.Count)
	if err != nil {
		return nil, err
	}

	points := make([]ExchangePoint, 0, len(ids))
	for _, id := range ids {
		points = append(points, ExchangePoint{
			ID: id, DSO: spec.DSO, InArea: inArea, OutArea: outArea,
			Min: min, Max: max,
		})
	}
	return points, nil
}
