// Package pricing maps a chosen outcome (the number of "yes" respondents a
// bettor predicts) to the dollar cost of the wager.
//
// Two rules are supported, selected by configuration:
//   - Linear:     cost = baseUnit * outcome
//   - Escalating: cost = basePrice * outcome * (1 + volatility * (outcome - minOutcome)^2)
//
// Every strategy is pure. All arithmetic is fixed-point decimal and the
// result is rounded half-up to cents exactly once, at the end.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/piki/wager-engine/internal/model"
)

// Strategy names accepted in Config.Strategy.
const (
	StrategyLinear     = "linear"
	StrategyEscalating = "escalating"
)

// CostScale is the number of decimal places costs are rounded to.
const CostScale int32 = 2

var (
	// ErrOutOfRange is returned for outcomes outside the permitted range,
	// including outcomes below an escalating market's floor.
	ErrOutOfRange = errors.New("pricing: outcome outside permitted range")

	// ErrInvalidConfig is returned when a Config cannot build a strategy.
	ErrInvalidConfig = errors.New("pricing: invalid configuration")

	// ErrUnknownStrategy is returned for an unrecognised Config.Strategy.
	ErrUnknownStrategy = errors.New("pricing: unknown strategy")
)

// Strategy prices outcomes over a closed range [lo, hi].
type Strategy interface {
	// Price returns the cost of a wager on outcome, or ErrOutOfRange.
	Price(outcome int) (decimal.Decimal, error)
	// Range returns the permitted closed range of outcomes.
	Range() (lo, hi int)
	// Name returns the strategy identifier used in configuration.
	Name() string
}

// Config selects and parameterises a strategy.
type Config struct {
	Strategy   string
	BaseUnit   decimal.Decimal // linear
	BasePrice  decimal.Decimal // escalating
	MinOutcome int             // escalating floor
	Volatility decimal.Decimal // escalating
	Lo, Hi     int             // permitted range
}

// New builds the strategy described by cfg.
func New(cfg Config) (Strategy, error) {
	switch cfg.Strategy {
	case StrategyLinear:
		return NewLinear(cfg.BaseUnit, cfg.Lo, cfg.Hi)
	case StrategyEscalating:
		return NewEscalating(cfg.BasePrice, cfg.Volatility, cfg.MinOutcome, cfg.Lo, cfg.Hi)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}

func validateRange(lo, hi int) error {
	if lo < 0 {
		return fmt.Errorf("%w: range lower bound %d is negative", ErrInvalidConfig, lo)
	}
	if lo > hi {
		return fmt.Errorf("%w: empty range [%d, %d]", ErrInvalidConfig, lo, hi)
	}
	return nil
}

func checkRange(outcome, lo, hi int) error {
	if outcome < lo || outcome > hi {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, outcome, lo, hi)
	}
	return nil
}

// Linear charges a fixed unit per predicted "yes".
type Linear struct {
	baseUnit decimal.Decimal
	lo, hi   int
}

// NewLinear creates a linear strategy over [lo, hi].
func NewLinear(baseUnit decimal.Decimal, lo, hi int) (*Linear, error) {
	if !baseUnit.IsPositive() {
		return nil, fmt.Errorf("%w: base unit must be positive", ErrInvalidConfig)
	}
	if err := validateRange(lo, hi); err != nil {
		return nil, err
	}
	return &Linear{baseUnit: baseUnit, lo: lo, hi: hi}, nil
}

// Price computes round(baseUnit * outcome, 2).
func (l *Linear) Price(outcome int) (decimal.Decimal, error) {
	if err := checkRange(outcome, l.lo, l.hi); err != nil {
		return decimal.Zero, err
	}
	return l.baseUnit.Mul(decimal.NewFromInt(int64(outcome))).Round(CostScale), nil
}

// Range returns the permitted range.
func (l *Linear) Range() (int, int) { return l.lo, l.hi }

// Name returns StrategyLinear.
func (l *Linear) Name() string { return StrategyLinear }

// Escalating prices outcomes away from a floor with a quadratic premium.
// The floor outcome costs basePrice * minOutcome exactly; outcomes below
// the floor are not offered.
type Escalating struct {
	basePrice  decimal.Decimal
	volatility decimal.Decimal
	minOutcome int
	lo, hi     int
}

// NewEscalating creates an escalating strategy. The effective lower bound
// is max(lo, minOutcome).
func NewEscalating(basePrice, volatility decimal.Decimal, minOutcome, lo, hi int) (*Escalating, error) {
	if !basePrice.IsPositive() {
		return nil, fmt.Errorf("%w: base price must be positive", ErrInvalidConfig)
	}
	if volatility.IsNegative() {
		return nil, fmt.Errorf("%w: volatility must not be negative", ErrInvalidConfig)
	}
	if err := validateRange(lo, hi); err != nil {
		return nil, err
	}
	if minOutcome > hi {
		return nil, fmt.Errorf("%w: floor %d above range upper bound %d", ErrInvalidConfig, minOutcome, hi)
	}
	if minOutcome > lo {
		lo = minOutcome
	}
	return &Escalating{
		basePrice:  basePrice,
		volatility: volatility,
		minOutcome: minOutcome,
		lo:         lo,
		hi:         hi,
	}, nil
}

// Price computes round(basePrice * outcome * (1 + volatility * distance^2), 2)
// where distance = outcome - minOutcome.
func (e *Escalating) Price(outcome int) (decimal.Decimal, error) {
	if err := checkRange(outcome, e.lo, e.hi); err != nil {
		return decimal.Zero, err
	}
	distance := decimal.NewFromInt(int64(outcome - e.minOutcome))
	multiplier := decimal.NewFromInt(1).Add(e.volatility.Mul(distance).Mul(distance))
	cost := e.basePrice.Mul(decimal.NewFromInt(int64(outcome))).Mul(multiplier)
	return cost.Round(CostScale), nil
}

// Range returns the effective permitted range.
func (e *Escalating) Range() (int, int) { return e.lo, e.hi }

// Name returns StrategyEscalating.
func (e *Escalating) Name() string { return StrategyEscalating }

// MinOutcome returns the floor outcome.
func (e *Escalating) MinOutcome() int { return e.minOutcome }

// Quotes returns the advisory cost of every permitted outcome, ascending.
func Quotes(s Strategy) []model.Quote {
	lo, hi := s.Range()
	quotes := make([]model.Quote, 0, hi-lo+1)
	for o := lo; o <= hi; o++ {
		cost, err := s.Price(o)
		if err != nil {
			continue
		}
		quotes = append(quotes, model.Quote{Outcome: o, Cost: cost})
	}
	return quotes
}
