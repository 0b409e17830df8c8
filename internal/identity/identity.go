// Package identity generates the synthetic identifiers used across the
// test-data pipeline: GTIN-style point identifiers with a weighted check
// digit, random session and message identifiers, and HETU-style personal
// identifiers for contract consumers.
package identity

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

const (
	// SequenceCeiling is the highest value the 9-digit numeric body of a
	// point identifier may reach. Never changes; raising it would overflow
	// the fixed-width identifier format.
	SequenceCeiling = 90_000_000

	prefixLen = 8
	bodyLen   = 9

	sessionAlphabet = "abcdef1234567890"
	checkAlphabet   = "0123456789ABCDEFHJKLMNPRSTUVWXY"

	messageIDPrefix = "MaSi"
	messageIDLen    = 24

	// DefaultSessionIDLength gives 128 bits over the 16-symbol alphabet,
	// enough that collisions are not a practical concern at test-data volume.
	DefaultSessionIDLength = 32
)

// ErrRangeExceeded is returned when a requested identifier sequence would
// run past SequenceCeiling.
var ErrRangeExceeded = errors.New("identifier sequence exceeds ceiling")

// CheckDigit computes the GTIN/EAN-13 style check digit for a numeric body.
// Positions are indexed from 1; odd positions are weighted 3.
func CheckDigit(body string) (int, error) {
	oddSum, evenSum := 0, 0
	for i, r := range body {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("check digit input %q contains non-digit %q", body, r)
		}
		if (i+1)%2 == 0 {
			evenSum += int(r - '0')
		} else {
			oddSum += int(r - '0')
		}
	}
	total := oddSum*3 + evenSum
	return (10 - total%10) % 10, nil
}

// AppendCheckDigit returns body with its computed check digit appended.
func AppendCheckDigit(body string) (string, error) {
	d, err := CheckDigit(body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", body, d), nil
}

// Verify reports whether id's last digit is the correct check digit for the
// rest of the identifier.
func Verify(id string) bool {
	if len(id) < 2 {
		return false
	}
	d, err := CheckDigit(id[:len(id)-1])
	if err != nil {
		return false
	}
	return id[len(id)-1] == byte('0'+d)
}

// PointID builds one point identifier: an 8-character numeric prefix, the
// sequence number zero-padded to 9 digits, and the check digit.
func PointID(prefix string, seq int) (string, error) {
	if len(prefix) != prefixLen {
		return "", fmt.Errorf("prefix %q must be %d characters", prefix, prefixLen)
	}
	if seq < 1 || seq > SequenceCeiling {
		return "", fmt.Errorf("sequence number %d out of range [1, %d]: %w", seq, SequenceCeiling, ErrRangeExceeded)
	}
	return AppendCheckDigit(fmt.Sprintf("%s%0*d", prefix, bodyLen, seq))
}

// Sequence produces count consecutive point identifiers starting at start.
// Fails with ErrRangeExceeded before generating anything if the run would
// pass the ceiling.
func Sequence(prefix string, start, count int) ([]string, error) {
	if count < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}
	if start < 1 {
		return nil, fmt.Errorf("start must be positive, got %d", start)
	}
	if start+count > SequenceCeiling {
		return nil, fmt.Errorf("range [%d, %d) passes %d: %w", start, start+count, SequenceCeiling, ErrRangeExceeded)
	}
	ids := make([]string, 0, count)
	for i := start; i < start+count; i++ {
		id, err := PointID(prefix, i)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SessionID returns a uniform-random string over the hex-like alphabet.
// It is a uniqueness tag, not a business key; no collision check is made.
func SessionID(r *rand.Rand, length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = sessionAlphabet[r.Intn(len(sessionAlphabet))]
	}
	return string(b)
}

// MessageID returns a document/message identifier in the fixed
// "MaSi" + 24 hex symbols format the counterparty expects.
func MessageID(r *rand.Rand) string {
	return messageIDPrefix + SessionID(r, messageIDLen)
}

// centurySeparator maps the century of a birth year to the HETU separator
// character.
func centurySeparator(year int) byte {
	switch year / 100 {
	case 18:
		return '+'
	case 19:
		return '-'
	default:
		return 'A'
	}
}

// NationalID generates a HETU-style personal identifier with a real calendar
// birth date inside [startYear, endYear]: DDMMYY, century separator, 3-digit
// individual number, and a check character from the 31-symbol alphabet
// indexed by the nine-digit DDMMYYIII value.
func NationalID(r *rand.Rand, startYear, endYear int) (string, error) {
	if startYear > endYear {
		return "", fmt.Errorf("invalid year range [%d, %d]", startYear, endYear)
	}
	year := startYear + r.Intn(endYear-startYear+1)
	month := 1 + r.Intn(12)
	day := 1 + r.Intn(daysIn(year, time.Month(month)))
	individual := 2 + r.Intn(898) // 002-899

	base := fmt.Sprintf("%02d%02d%02d%03d", day, month, year%100, individual)
	var n int
	for _, c := range base {
		n = n*10 + int(c-'0')
	}
	return fmt.Sprintf("%02d%02d%02d%c%03d%c",
		day, month, year%100, centurySeparator(year), individual, checkAlphabet[n%31]), nil
}

// daysIn returns the number of days in the given month, leap-aware.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
