package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/piki/wager-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Balances read through the cache are advisory: ApplyWager always checks
// funds against the primary store.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.rdb.Del(ctx, leaderboardKey)
	return nil
}

func (s *CachedStore) ApplyWager(ctx context.Context, w *model.Wager) (*model.Account, error) {
	a, err := s.primary.ApplyWager(ctx, w)
	if err != nil {
		return nil, err
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, accountKey(w.AccountID), wagersKey(w.AccountID), leaderboardKey)
	return a, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	if s.load(ctx, accountKey(id), &a) {
		return &a, nil
	}

	// Cache miss: read from primary.
	acc, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	s.save(ctx, accountKey(id), acc)
	return acc, nil
}

func (s *CachedStore) ListWagersByAccount(ctx context.Context, accountID string) ([]model.Wager, error) {
	var wagers []model.Wager
	if s.load(ctx, wagersKey(accountID), &wagers) {
		return wagers, nil
	}

	wagers, err := s.primary.ListWagersByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	s.save(ctx, wagersKey(accountID), wagers)
	return wagers, nil
}

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if s.load(ctx, leaderboardKey, &accounts) {
		return accounts, nil
	}

	accounts, err := s.primary.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	s.save(ctx, leaderboardKey, accounts)
	return accounts, nil
}

// --- Passthrough (not cached) ---

// GetAccountByUsername is used for login and must see the password hash,
// which is never serialized into the cache.
func (s *CachedStore) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return s.primary.GetAccountByUsername(ctx, username)
}

func (s *CachedStore) ListWagersByMarket(ctx context.Context, marketID string) ([]model.Wager, error) {
	return s.primary.ListWagersByMarket(ctx, marketID)
}

func (s *CachedStore) StakeByAccount(ctx context.Context, accountID string) (map[string]decimal.Decimal, error) {
	return s.primary.StakeByAccount(ctx, accountID)
}

// --- Cache helpers ---

func (s *CachedStore) load(ctx context.Context, key string, dst interface{}) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) save(ctx context.Context, key string, v interface{}) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

const leaderboardKey = "leaderboard"

func accountKey(id string) string { return fmt.Sprintf("account:%s", id) }
func wagersKey(id string) string { return fmt.Sprintf("wagers:%s", id) }
