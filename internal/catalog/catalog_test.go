package catalog

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/gridforge-lab/gridforge/internal/identity"
	"github.com/stretchr/testify/require"
)

func sampleAP(id string) AccountingPoint {
	return AccountingPoint{
		ID:             id,
		MeteringArea:   "6427020100000000",
		Supplier:       "6427010100003",
		DSO:            "6427020100000",
		MGA:            "6427020100000000",
		Zip:            "00100",
		Street:         "Mannerheimintie 5",
		City:           "Helsinki",
		Type:           TypeNonProduction,
		RemoteReadable: "1",
		MeteringMethod: MethodContinuous,
	}
}

func TestAppendAndReadAccountingPoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kp.csv")

	require.NoError(t, AppendAccountingPoints(path, []AccountingPoint{sampleAP("a1")}))
	require.NoError(t, AppendAccountingPoints(path, []AccountingPoint{sampleAP("a2")}))

	points, err := ReadAccountingPoints(path)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "a1", points[0].ID)
	require.Equal(t, "a2", points[1].ID)
	require.Equal(t, MethodContinuous, points[1].MeteringMethod)

	// Header written exactly once.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, countOccurrences(string(raw), "Accounting point"))
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}

func TestFindAccountingPoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kp.csv")
	require.NoError(t, AppendAccountingPoints(path, []AccountingPoint{sampleAP("a1"), sampleAP("a2")}))

	p, err := FindAccountingPoint(path, "a2")
	require.NoError(t, err)
	require.Equal(t, "a2", p.ID)

	_, err = FindAccountingPoint(path, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAppendAndReadExchangePoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rp.csv")
	rp := ExchangePoint{
		ID: "642702010000000019", DSO: "6427020100000",
		InArea: "6427020100000000", OutArea: "6427020100000100",
		Min: 10, Max: 50,
	}
	require.NoError(t, AppendExchangePoints(path, []ExchangePoint{rp}))

	points, err := ReadExchangePoints(path)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, rp, points[0])
}

func TestGenerateAccountingPoints(t *testing.T) {
	book, err := LoadAddressBook()
	require.NoError(t, err)

	r := rand.New(rand.NewSource(1))
	spec := GenerateSpec{
		DSO:            "6427020100000",
		MGA:            "6427020100000000",
		Count:          5,
		Type:           TypeNonProduction,
		RemoteReadable: "1",
		MeteringMethod: MethodContinuous,
		Dealers:        []string{"6427010100003", "6427010200000"},
		RangeStart:     100,
		RowLimit:       10000,
	}

	points, err := GenerateAccountingPoints(r, book, spec)
	require.NoError(t, err)
	require.Len(t, points, 5)

	seen := map[string]bool{}
	for _, p := range points {
		require.Len(t, p.ID, 18)
		require.True(t, identity.Verify(p.ID), "check digit for %s", p.ID)
		require.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
		require.Equal(t, "6427020100000000", p.MeteringArea)
		require.Contains(t, spec.Dealers, p.Supplier)
	}
}

func TestGenerateAccountingPoints_Validation(t *testing.T) {
	book, err := LoadAddressBook()
	require.NoError(t, err)
	r := rand.New(rand.NewSource(1))

	base := GenerateSpec{
		DSO: "6427020100000", MGA: "6427020100000000", Count: 1,
		Type: TypeNonProduction, RemoteReadable: "1", MeteringMethod: MethodContinuous,
		Dealers: []string{"6427010100003"},
	}

	noDealers := base
	noDealers.Dealers = nil
	_, err = GenerateAccountingPoints(r, book, noDealers)
	require.Error(t, err)

	overLimit := base
	overLimit.Count = 11
	overLimit.RowLimit = 10
	_, err = GenerateAccountingPoints(r, book, overLimit)
	require.Error(t, err)

	badType := base
	badType.Type = "AG99"
	_, err = GenerateAccountingPoints(r, book, badType)
	require.Error(t, err)
}

func TestGenerateAccountingPoints_CeilingPropagates(t *testing.T) {
	book, err := LoadAddressBook()
	require.NoError(t, err)
	r := rand.New(rand.NewSource(1))

	spec := GenerateSpec{
		DSO: "6427020100000", MGA: "6427020100000000", Count: 5,
		Type: TypeNonProduction, RemoteReadable: "1", MeteringMethod: MethodContinuous,
		Dealers:    []string{"6427010100003"},
		RangeStart: 89_999_999,
	}
	_, err = GenerateAccountingPoints(r, book, spec)
	require.ErrorIs(t, err, identity.ErrRangeExceeded)
}

func TestGenerateExchangePoints(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	spec := GenerateSpec{DSO: "6427020100000", Count: 3, RangeStart: 7}

	points, err := GenerateExchangePoints(r, spec, "6427020100000000", "6427020100000100", 10, 50)
	require.NoError(t, err)
	require.Len(t, points, 3)
	for _, p := range points {
		require.True(t, identity.Verify(p.ID))
		require.Equal(t, 10, p.Min)
		require.Equal(t, 50, p.Max)
	}

	_, err = GenerateExchangePoints(r, spec, "in", "out", 50, 10)
	require.Error(t, err)
}
