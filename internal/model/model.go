// Package model defines the core domain types shared across the wager engine.
// All monetary values use shopspring/decimal, never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a bettor's wallet. Balance is never negative and only the
// ledger's debit path changes it.
type Account struct {
	ID           string          `json:"id" db:"id"`
	Username     string          `json:"username" db:"username"`
	PasswordHash string          `json:"-" db:"password_hash"`
	Balance      decimal.Decimal `json:"wallet" db:"balance"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

// Wager is an immutable record of a priced bet.
// Cost is frozen at creation and never recomputed.
type Wager struct {
	ID        string          `json:"id" db:"id"`
	AccountID string          `json:"userId" db:"account_id"`
	MarketID  string          `json:"questionId" db:"market_id"`
	Outcome   int             `json:"selectedOption" db:"outcome"`
	Cost      decimal.Decimal `json:"cost" db:"cost"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Quote is the advisory cost of one outcome, as shown next to each option.
type Quote struct {
	Outcome int             `json:"outcome"`
	Cost    decimal.Decimal `json:"cost"`
}

// MarketInfo is the public view of a configured market.
type MarketInfo struct {
	ID          string  `json:"id"`
	Question    string  `json:"question"`
	Description string  `json:"description,omitempty"`
	Strategy    string  `json:"strategy"`
	MinOutcome  int     `json:"minOutcome"`
	MaxOutcome  int     `json:"maxOutcome"`
	Quotes      []Quote `json:"quotes"`
}
