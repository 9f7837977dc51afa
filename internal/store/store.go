// Package store defines the persistence interface for the wager engine.
// Implementations include in-memory (default, and for testing), PostgreSQL
// and a Redis read-through cache wrapper.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/piki/wager-engine/internal/model"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrUsernameTaken     = errors.New("store: username already exists")
	ErrInsufficientFunds = errors.New("store: insufficient funds")
)

// Store is the persistence interface. Every method is atomic on its own.
type Store interface {
	// --- Accounts ---

	// CreateAccount persists a new account. Usernames are unique.
	CreateAccount(ctx context.Context, account *model.Account) error

	// GetAccount retrieves an account by its ID.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// GetAccountByUsername retrieves an account by its username.
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)

	// ListAccounts returns all accounts by descending balance, ties in
	// insertion order.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// --- Wagers ---

	// ApplyWager debits wager.Cost from the owning account and appends the
	// wager, or does neither. Returns ErrInsufficientFunds when the balance
	// is below the cost and ErrNotFound when the account does not exist.
	// The returned account carries the new balance.
	ApplyWager(ctx context.Context, wager *model.Wager) (*model.Account, error)

	// ListWagersByAccount returns an account's wagers in creation order.
	ListWagersByAccount(ctx context.Context, accountID string) ([]model.Wager, error)

	// ListWagersByMarket returns a market's wagers in creation order.
	ListWagersByMarket(ctx context.Context, marketID string) ([]model.Wager, error)

	// StakeByAccount returns the account's cumulative stake per market.
	StakeByAccount(ctx context.Context, accountID string) (map[string]decimal.Decimal, error)
}
