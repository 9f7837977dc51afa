package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/piki/wager-engine/internal/model"
)

type memAccount struct {
	model.Account
	seq int64
}

// MemoryStore implements Store with in-memory maps. Data lives for the
// process lifetime only.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]*memAccount
	byUsername map[string]string
	wagers     []model.Wager
	nextSeq    int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*memAccount),
		byUsername: make(map[string]string),
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[a.Username]; ok {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, a.Username)
	}
	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("account %s already exists", a.ID)
	}

	s.nextSeq++
	s.accounts[a.ID] = &memAccount{Account: *a, seq: s.nextSeq}
	s.byUsername[a.Username] = a.ID
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	copy := a.Account
	return &copy, nil
}

func (s *MemoryStore) GetAccountByUsername(_ context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, fmt.Errorf("account %q: %w", username, ErrNotFound)
	}
	copy := s.accounts[id].Account
	return &copy, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	all := make([]*memAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		copy := *a
		all = append(all, &copy)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if c := all[i].Balance.Cmp(all[j].Balance); c != 0 {
			return c > 0
		}
		return all[i].seq < all[j].seq
	})

	accounts := make([]model.Account, 0, len(all))
	for _, a := range all {
		accounts = append(accounts, a.Account)
	}
	return accounts, nil
}

func (s *MemoryStore) ApplyWager(_ context.Context, w *model.Wager) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[w.AccountID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", w.AccountID, ErrNotFound)
	}
	if a.Balance.LessThan(w.Cost) {
		return nil, fmt.Errorf("balance %s below cost %s: %w", a.Balance, w.Cost, ErrInsufficientFunds)
	}

	a.Balance = a.Balance.Sub(w.Cost)
	s.wagers = append(s.wagers, *w)

	copy := a.Account
	return &copy, nil
}

func (s *MemoryStore) ListWagersByAccount(_ context.Context, accountID string) ([]model.Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Wager
	for _, w := range s.wagers {
		if w.AccountID == accountID {
			result = append(result, w)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListWagersByMarket(_ context.Context, marketID string) ([]model.Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Wager
	for _, w := range s.wagers {
		if w.MarketID == marketID {
			result = append(result, w)
		}
	}
	return result, nil
}

func (s *MemoryStore) StakeByAccount(_ context.Context, accountID string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stakes := make(map[string]decimal.Decimal)
	for _, w := range s.wagers {
		if w.AccountID == accountID {
			stakes[w.MarketID] = stakes[w.MarketID].Add(w.Cost)
		}
	}
	return stakes, nil
}
