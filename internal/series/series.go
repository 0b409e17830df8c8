// Package series expands a (start date, day count, start time, hours per
// day) configuration into the ordered hourly timestamps of one generation
// run, plus the ISO-8601 bounds embedded in the message envelope.
package series

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ISOFormat is the timestamp layout used in message envelopes.
const ISOFormat = "2006-01-02T15:04:05Z"

// ErrInvalidDate is returned for malformed or impossible calendar input.
var ErrInvalidDate = errors.New("invalid date")

// Series is one generation run's hourly timeline. It is immutable once
// built; regenerating with the same inputs yields the same timestamps.
type Series struct {
	origin time.Time
	hours  int
}

// ParseStart parses a day-first dot-separated date ("1.7.2024" or
// "01.07.2024") and an "HH:MM" start time into the series origin instant,
// interpreted as UTC.
func ParseStart(date, clock string) (time.Time, error) {
	parts := strings.Split(date, ".")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("date %q is not D.M.YYYY: %w", date, ErrInvalidDate)
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("date %q has non-numeric fields: %w", date, ErrInvalidDate)
	}
	if year < 1 || month < 1 || month > 12 || day < 1 {
		return time.Time{}, fmt.Errorf("date %q out of range: %w", date, ErrInvalidDate)
	}

	hour, minute, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	// time.Date normalizes impossible dates (31.4 becomes 1.5); reject them.
	if t.Day() != day || t.Month() != time.Month(month) || t.Year() != year {
		return time.Time{}, fmt.Errorf("date %q does not exist: %w", date, ErrInvalidDate)
	}
	return t, nil
}

func parseClock(clock string) (hour, minute int, err error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time %q is not HH:MM: %w", clock, ErrInvalidDate)
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q out of range: %w", clock, ErrInvalidDate)
	}
	return hour, minute, nil
}

// Hourly builds the series starting at origin with numDays*hoursPerDay
// entries, each one hour after the previous.
func Hourly(origin time.Time, numDays, hoursPerDay int) (*Series, error) {
	if numDays < 1 {
		return nil, fmt.Errorf("day count must be positive, got %d", numDays)
	}
	if hoursPerDay < 1 {
		return nil, fmt.Errorf("hours per day must be positive, got %d", hoursPerDay)
	}
	return &Series{origin: origin, hours: numDays * hoursPerDay}, nil
}

// Len returns the number of hourly entries.
func (s *Series) Len() int { return s.hours }

// At returns the i-th timestamp (0-based).
func (s *Series) At(i int) time.Time { return s.origin.Add(time.Duration(i) * time.Hour) }

// Timestamps materializes the full ordered timeline.
func (s *Series) Timestamps() []time.Time {
	out := make([]time.Time, s.hours)
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}

// Start returns the origin instant formatted for the message envelope.
func (s *Series) Start() string { return s.origin.UTC().Format(ISOFormat) }

// End returns origin + total hours, the declared validity terminal rather
// than wall-clock now.
func (s *Series) End() string {
	return s.origin.Add(time.Duration(s.hours) * time.Hour).UTC().Format(ISOFormat)
}

// StartTime returns the origin instant.
func (s *Series) StartTime() time.Time { return s.origin }

// EndTime returns the terminal instant.
func (s *Series) EndTime() time.Time {
	return s.origin.Add(time.Duration(s.hours) * time.Hour)
}

// FilenameDate renders the origin date as ddmmyyyy for deterministic
// document names.
func (s *Series) FilenameDate() string { return s.origin.Format("02012006") }
