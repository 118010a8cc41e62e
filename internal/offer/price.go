// Package offer rolls prices and amounts and draws live offers from a market's pool.
package offer

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/shopspring/decimal"

	"market_go/internal/domain"
)

// PricePrecision is the number of decimal places a rolled price keeps.
const PricePrecision = 2

// RoundingMode selects how a banded price draw is rounded.
type RoundingMode int

const (
	RoundHalfUp RoundingMode = iota
	RoundCeiling
)

// String returns the string representation of RoundingMode
func (m RoundingMode) String() string {
	if m == RoundCeiling {
		return "ceiling"
	}
	return "half_up"
}

// ParseRoundingMode accepts "half_up" and "ceiling". Empty means half_up.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "half_up", "half-up":
		return RoundHalfUp, nil
	case "ceiling", "ceil":
		return RoundCeiling, nil
	default:
		return RoundHalfUp, fmt.Errorf("unknown rounding mode %q", s)
	}
}

// Policy holds the rounding mode for each side. Sell always rounds against the house
// unless configured otherwise.
type Policy struct {
	Buy  RoundingMode
	Sell RoundingMode
}

// DefaultPolicy rounds buy prices half-up and sell prices up.
func DefaultPolicy() Policy {
	return Policy{Buy: RoundHalfUp, Sell: RoundCeiling}
}

// Round applies mode at PricePrecision.
func Round(d decimal.Decimal, mode RoundingMode) decimal.Decimal {
	if mode == RoundCeiling {
		return d.RoundCeil(PricePrecision)
	}
	return d.Round(PricePrecision)
}

// RollPrice resolves a price band. It returns nil when the band is unset.
// A fixed price passes through unrounded; a band whose bounds are both <= 0 yields 0.
func RollPrice(band domain.PriceBand, mode RoundingMode) *decimal.Decimal {
	if band.Fixed != nil {
		p := *band.Fixed
		return &p
	}
	if band.Min == nil || band.Max == nil {
		return nil
	}

	lo, hi := *band.Min, *band.Max
	if !lo.IsPositive() && !hi.IsPositive() {
		p := decimal.Zero
		return &p
	}

	span := hi.Sub(lo)
	raw := lo.Add(span.Mul(decimal.NewFromFloat(rand.Float64())))
	p := Round(raw, mode)
	return &p
}

// RollAmount resolves an amount range, inclusive of both bounds. Unset means 1.
func RollAmount(a domain.AmountRange) int {
	if a.Fixed != nil {
		return *a.Fixed
	}
	if a.Min == nil || a.Max == nil {
		return 1
	}
	lo, hi := *a.Min, *a.Max
	if hi <= lo {
		return lo
	}
	return lo + rand.IntN(hi-lo+1)
}

// RollEnchant rolls an enchantment level, or returns nil if the roll is disabled.
func RollEnchant(e domain.EnchantRoll) *domain.EnchantSpec {
	if !e.Enabled {
		return nil
	}
	level := e.Min
	if e.Max > e.Min {
		level += rand.IntN(e.Max - e.Min + 1)
	}
	return &domain.EnchantSpec{Level: level, Treasure: e.Treasure}
}

// FormatCurrency renders an amount for display: at most two decimals, rounded up,
// trailing zeros dropped.
func FormatCurrency(d decimal.Decimal) string {
	return d.RoundCeil(PricePrecision).String()
}
