// Package ledger owns account balances and wager records. It prices a
// requested outcome with the market's rule and debits the account, keeping
// every balance non-negative.
//
// All monetary values use shopspring/decimal, never float64 for money.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/piki/wager-engine/internal/limits"
	"github.com/piki/wager-engine/internal/market"
	"github.com/piki/wager-engine/internal/metrics"
	"github.com/piki/wager-engine/internal/model"
	"github.com/piki/wager-engine/internal/pricing"
	"github.com/piki/wager-engine/internal/store"
)

var (
	ErrAccountNotFound   = errors.New("ledger: account not found")
	ErrMarketNotFound    = errors.New("ledger: market not found")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrUsernameTaken     = errors.New("ledger: username already exists")
)

// DefaultStartingBalance is the wallet every new account is opened with.
var DefaultStartingBalance = decimal.NewFromInt(10)

// Notifier is told about every accepted wager.
type Notifier interface {
	WagerPlaced(wager model.Wager, balance decimal.Decimal)
}

// Options configures a Ledger. Zero values select defaults.
type Options struct {
	StartingBalance decimal.Decimal
	Limiter         *limits.StakeLimiter // nil disables stake caps
	Notifier        Notifier             // nil disables notifications
	Clock           func() time.Time
}

// Ledger places wagers. Calls for the same account are serialized so two
// concurrent wagers cannot both pass the funds check on a stale balance;
// different accounts proceed in parallel.
type Ledger struct {
	store           store.Store
	catalog         *market.Catalog
	limiter         *limits.StakeLimiter
	notifier        Notifier
	startingBalance decimal.Decimal
	now             func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a ledger over st serving the markets in catalog.
func New(st store.Store, catalog *market.Catalog, opts Options) *Ledger {
	l := &Ledger{
		store:           st,
		catalog:         catalog,
		limiter:         opts.Limiter,
		notifier:        opts.Notifier,
		startingBalance: opts.StartingBalance,
		now:             opts.Clock,
		locks:           make(map[string]*sync.Mutex),
	}
	if !l.startingBalance.IsPositive() {
		l.startingBalance = DefaultStartingBalance
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Catalog returns the markets served by the ledger.
func (l *Ledger) Catalog() *market.Catalog {
	return l.catalog
}

// lockFor returns the mutex serializing wagers on accountID.
func (l *Ledger) lockFor(accountID string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()

	mu, ok := l.locks[accountID]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[accountID] = mu
	}
	return mu
}

// OpenAccount creates an account funded with the starting balance.
func (l *Ledger) OpenAccount(ctx context.Context, username, passwordHash string) (*model.Account, error) {
	account := &model.Account{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Balance:      l.startingBalance,
		CreatedAt:    l.now().UTC(),
	}

	if err := l.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
		}
		return nil, fmt.Errorf("open account: %w", err)
	}

	metrics.AccountsOpened.Inc()
	slog.Info("account opened",
		"account_id", account.ID,
		"username", username,
		"balance", account.Balance.String(),
	)
	return account, nil
}

// GetAccount returns the account with the given ID.
func (l *Ledger) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, accountErr(accountID, err)
	}
	return a, nil
}

// GetAccountByUsername returns the account registered under username.
func (l *Ledger) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	a, err := l.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, accountErr(username, err)
	}
	return a, nil
}

// Quote returns the advisory cost of outcome in marketID. It applies the
// same rule PlaceWager charges, but nothing is reserved.
func (l *Ledger) Quote(marketID string, outcome int) (decimal.Decimal, error) {
	m, err := l.catalog.Get(marketID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrMarketNotFound, marketID)
	}
	return m.Price(outcome)
}

// Receipt is the result of an accepted wager.
type Receipt struct {
	Wager   model.Wager
	Balance decimal.Decimal // balance right after the debit
}

// PlaceWager prices outcome in marketID (empty selects the default market)
// and debits the account. Either the balance is debited and exactly one
// wager recorded, or nothing changes.
func (l *Ledger) PlaceWager(ctx context.Context, accountID, marketID string, outcome int) (*model.Wager, error) {
	receipt, err := l.Place(ctx, accountID, marketID, outcome)
	if err != nil {
		return nil, err
	}
	return &receipt.Wager, nil
}

// Place is PlaceWager that also reports the post-debit balance, read under
// the same lock as the debit.
func (l *Ledger) Place(ctx context.Context, accountID, marketID string, outcome int) (*Receipt, error) {
	start := l.now()

	mu := l.lockFor(accountID)
	mu.Lock()
	defer mu.Unlock()

	// 1. Resolve account.
	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, l.reject("account_not_found", accountErr(accountID, err))
	}

	// 2. Resolve market.
	m, err := l.catalog.Get(marketID)
	if err != nil {
		return nil, l.reject("market_not_found", fmt.Errorf("%w: %s", ErrMarketNotFound, marketID))
	}

	// 3. Price server-side; range check happens here.
	cost, err := m.Price(outcome)
	if err != nil {
		if errors.Is(err, pricing.ErrOutOfRange) {
			return nil, l.reject("out_of_range", err)
		}
		return nil, fmt.Errorf("price outcome %d: %w", outcome, err)
	}

	// 4. Stake caps.
	if l.limiter.Enabled() {
		stakes, err := l.store.StakeByAccount(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("load stakes: %w", err)
		}
		if err := l.limiter.CheckLimit(m.ID(), cost, stakes); err != nil {
			return nil, l.reject("stake_limit", err)
		}
	}

	// 5. Funds.
	if account.Balance.LessThan(cost) {
		return nil, l.reject("insufficient_funds", fmt.Errorf("%w: balance %s, cost %s",
			ErrInsufficientFunds, account.Balance, cost))
	}

	// 6. Debit and record atomically.
	wager := &model.Wager{
		ID:        uuid.New().String(),
		AccountID: accountID,
		MarketID:  m.ID(),
		Outcome:   outcome,
		Cost:      cost,
		Timestamp: l.now().UTC(),
	}

	updated, err := l.store.ApplyWager(ctx, wager)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientFunds):
			return nil, l.reject("insufficient_funds", fmt.Errorf("%w: %v", ErrInsufficientFunds, err))
		case errors.Is(err, store.ErrNotFound):
			return nil, l.reject("account_not_found", accountErr(accountID, err))
		}
		return nil, fmt.Errorf("record wager: %w", err)
	}

	metrics.WagersTotal.WithLabelValues(m.ID(), strconv.Itoa(outcome)).Inc()
	metrics.StakedVolume.WithLabelValues(m.ID()).Add(cost.InexactFloat64())
	metrics.WagerLatency.WithLabelValues(m.ID()).Observe(l.now().Sub(start).Seconds())

	slog.Info("wager placed",
		"wager_id", wager.ID,
		"account_id", accountID,
		"market_id", m.ID(),
		"outcome", outcome,
		"cost", cost.String(),
		"balance", updated.Balance.String(),
	)

	if l.notifier != nil {
		l.notifier.WagerPlaced(*wager, updated.Balance)
	}

	return &Receipt{Wager: *wager, Balance: updated.Balance}, nil
}

// ListWagers returns the account's wagers in creation order.
func (l *Ledger) ListWagers(ctx context.Context, accountID string) ([]model.Wager, error) {
	wagers, err := l.store.ListWagersByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list wagers: %w", err)
	}
	if wagers == nil {
		wagers = []model.Wager{}
	}
	return wagers, nil
}

// ListMarketWagers returns every wager placed on marketID in creation order.
func (l *Ledger) ListMarketWagers(ctx context.Context, marketID string) ([]model.Wager, error) {
	m, err := l.catalog.Get(marketID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, marketID)
	}
	wagers, err := l.store.ListWagersByMarket(ctx, m.ID())
	if err != nil {
		return nil, fmt.Errorf("list market wagers: %w", err)
	}
	if wagers == nil {
		wagers = []model.Wager{}
	}
	return wagers, nil
}

// ListAccounts returns all accounts by descending balance, ties broken by
// insertion order.
func (l *Ledger) ListAccounts(ctx context.Context) ([]model.Account, error) {
	accounts, err := l.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	return accounts, nil
}

func (l *Ledger) reject(reason string, err error) error {
	metrics.WagerRejections.WithLabelValues(reason).Inc()
	slog.Debug("wager rejected", "reason", reason, "err", err)
	return err
}

func accountErr(key string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return fmt.Errorf("load account %s: %w", key, err)
}
