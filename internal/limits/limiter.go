// Package limits caps how much an account may stake, per market and in
// total, on top of the wallet balance check.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrMarketStakeExceeded is returned when a wager would push an
	// account's cumulative stake in one market beyond MaxPerMarket.
	ErrMarketStakeExceeded = errors.New("limits: per-market stake limit exceeded")

	// ErrTotalStakeExceeded is returned when a wager would push an
	// account's cumulative stake across all markets beyond MaxTotal.
	ErrTotalStakeExceeded = errors.New("limits: total stake limit exceeded")
)

// StakeLimiter enforces cumulative stake caps. A zero cap disables that check.
type StakeLimiter struct {
	// MaxPerMarket is the maximum cumulative cost of an account's wagers
	// in a single market.
	MaxPerMarket decimal.Decimal

	// MaxTotal is the maximum cumulative cost of an account's wagers
	// across every market.
	MaxTotal decimal.Decimal
}

// NewStakeLimiter creates a limiter. Negative caps are treated as zero.
func NewStakeLimiter(maxPerMarket, maxTotal decimal.Decimal) *StakeLimiter {
	if maxPerMarket.IsNegative() {
		maxPerMarket = decimal.Zero
	}
	if maxTotal.IsNegative() {
		maxTotal = decimal.Zero
	}
	return &StakeLimiter{
		MaxPerMarket: maxPerMarket,
		MaxTotal:     maxTotal,
	}
}

// Enabled reports whether any cap is active.
func (l *StakeLimiter) Enabled() bool {
	return l != nil && (l.MaxPerMarket.IsPositive() || l.MaxTotal.IsPositive())
}

// CheckLimit validates whether a wager of cost on marketID respects the caps.
//
// existing maps market ID to the account's current cumulative stake; nil is
// treated as empty.
func (l *StakeLimiter) CheckLimit(
	marketID string,
	cost decimal.Decimal,
	existing map[string]decimal.Decimal,
) error {
	if !l.Enabled() {
		return nil
	}

	// 1. Per-market cap.
	if l.MaxPerMarket.IsPositive() {
		if existing[marketID].Add(cost).GreaterThan(l.MaxPerMarket) {
			return ErrMarketStakeExceeded
		}
	}

	// 2. Total cap.
	if l.MaxTotal.IsPositive() {
		total := cost
		for _, stake := range existing {
			total = total.Add(stake)
		}
		if total.GreaterThan(l.MaxTotal) {
			return ErrTotalStakeExceeded
		}
	}

	return nil
}
