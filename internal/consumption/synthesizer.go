// Package consumption produces the per-hour reading values: a configured
// static override per point class, a bounded random draw, or the default
// random distribution, always with one implied decimal place.
package consumption

import (
	"math/rand"

	"github.com/shopspring/decimal"
)

// PointClass distinguishes the two point families for static overrides.
type PointClass int

const (
	Accounting PointClass = iota
	Exchange
)

// Synthesizer draws reading values. It carries its own rand source so a
// fixed seed reproduces the exact value stream.
type Synthesizer struct {
	rand       *rand.Rand
	overrideAP *decimal.Decimal
	overrideRP *decimal.Decimal
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithStaticAP pins every accounting-point value to v.
func WithStaticAP(v decimal.Decimal) Option {
	return func(s *Synthesizer) { s.overrideAP = &v }
}

// WithStaticRP pins every exchange-point value to v.
func WithStaticRP(v decimal.Decimal) Option {
	return func(s *Synthesizer) { s.overrideRP = &v }
}

// New creates a Synthesizer over the given rand source.
func New(r *rand.Rand, opts ...Option) *Synthesizer {
	s := &Synthesizer{rand: r}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Value returns one reading for the given point class. A (min, max) bound
// with min < max selects a uniform integer in [min, max] scaled down by 10;
// otherwise the default [0, 100]/10 distribution applies.
func (s *Synthesizer) Value(class PointClass, min, max int) decimal.Decimal {
	switch class {
	case Accounting:
		if s.overrideAP != nil {
			return *s.overrideAP
		}
	case Exchange:
		if s.overrideRP != nil {
			return *s.overrideRP
		}
	}
	if min < max {
		return scaled(s.rand, min, max)
	}
	return scaled(s.rand, 0, 100)
}

func scaled(r *rand.Rand, min, max int) decimal.Decimal {
	n := min + r.Intn(max-min+1)
	return decimal.New(int64(n), -1)
}
