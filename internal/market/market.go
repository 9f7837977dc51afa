// Package market holds the immutable catalog of betting questions and the
// pricing rule attached to each one.
package market

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/piki/wager-engine/internal/model"
	"github.com/piki/wager-engine/internal/pricing"
)

// idRegex matches market slugs, e.g. "cornell-tech".
var idRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

var (
	ErrInvalidID = errors.New("market: invalid market id")
	ErrDuplicate = errors.New("market: duplicate market id")
	ErrNotFound  = errors.New("market: market not found")
	ErrEmpty     = errors.New("market: catalog has no markets")
)

// Definition is the configuration of one market.
type Definition struct {
	ID          string
	Question    string
	Description string
	Pricing     pricing.Config
}

// Market is a configured, read-only betting question.
type Market struct {
	id          string
	question    string
	description string
	strategy    pricing.Strategy
}

// ValidateID checks the market id format.
func ValidateID(id string) error {
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q (expected lowercase letters, digits and dashes)", ErrInvalidID, id)
	}
	return nil
}

// New builds a market from its definition.
func New(def Definition) (*Market, error) {
	if err := ValidateID(def.ID); err != nil {
		return nil, err
	}
	strategy, err := pricing.New(def.Pricing)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", def.ID, err)
	}
	return &Market{
		id:          def.ID,
		question:    def.Question,
		description: def.Description,
		strategy:    strategy,
	}, nil
}

func (m *Market) ID() string       { return m.id }
func (m *Market) Question() string { return m.question }

// Strategy returns the pricing rule of the market.
func (m *Market) Strategy() pricing.Strategy { return m.strategy }

// Price returns the authoritative cost of a wager on outcome.
func (m *Market) Price(outcome int) (decimal.Decimal, error) {
	return m.strategy.Price(outcome)
}

// Info returns the public view of the market, including the advisory
// price of every permitted outcome.
func (m *Market) Info() model.MarketInfo {
	lo, hi := m.strategy.Range()
	return model.MarketInfo{
		ID:          m.id,
		Question:    m.question,
		Description: m.description,
		Strategy:    m.strategy.Name(),
		MinOutcome:  lo,
		MaxOutcome:  hi,
		Quotes:      pricing.Quotes(m.strategy),
	}
}

// Catalog is the fixed set of markets served by the process. It is built
// once at startup and never mutated.
type Catalog struct {
	markets   map[string]*Market
	order     []string
	defaultID string
}

// NewCatalog builds a catalog from definitions. An empty defaultID selects
// the first definition.
func NewCatalog(defs []Definition, defaultID string) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, ErrEmpty
	}
	c := &Catalog{markets: make(map[string]*Market, len(defs))}
	for _, def := range defs {
		if _, ok := c.markets[def.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, def.ID)
		}
		m, err := New(def)
		if err != nil {
			return nil, err
		}
		c.markets[m.id] = m
		c.order = append(c.order, m.id)
	}
	if defaultID == "" {
		defaultID = c.order[0]
	}
	if _, ok := c.markets[defaultID]; !ok {
		return nil, fmt.Errorf("%w: default %s", ErrNotFound, defaultID)
	}
	c.defaultID = defaultID
	return c, nil
}

// Get returns the market with the given id. An empty id resolves to the
// default market.
func (c *Catalog) Get(id string) (*Market, error) {
	if id == "" {
		id = c.defaultID
	}
	m, ok := c.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// Default returns the default market.
func (c *Catalog) Default() *Market {
	return c.markets[c.defaultID]
}

// List returns all markets in definition order.
func (c *Catalog) List() []*Market {
	markets := make([]*Market, 0, len(c.order))
	for _, id := range c.order {
		markets = append(markets, c.markets[id])
	}
	return markets
}

// DefaultDefinitions returns the demo markets: the escalating "yes count"
// question and its flat-priced linear variant.
func DefaultDefinitions() []Definition {
	const question = "Do you like Cornell Tech?"
	const description = `Bet on the exact number of "Yes" answers among the next 10 respondents.`
	return []Definition{
		{
			ID:          "cornell-tech",
			Question:    question,
			Description: description,
			Pricing: pricing.Config{
				Strategy:   pricing.StrategyEscalating,
				BasePrice:  decimal.RequireFromString("0.15"),
				MinOutcome: 5,
				Volatility: decimal.RequireFromString("0.08"),
				Lo:         5,
				Hi:         10,
			},
		},
		{
			ID:          "cornell-tech-linear",
			Question:    question,
			Description: description,
			Pricing: pricing.Config{
				Strategy: pricing.StrategyLinear,
				BaseUnit: decimal.RequireFromString("0.10"),
				Lo:       0,
				Hi:       10,
			},
		},
	}
}
