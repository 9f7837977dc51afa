package ledger

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/piki/wager-engine/internal/limits"
	"github.com/piki/wager-engine/internal/market"
	"github.com/piki/wager-engine/internal/model"
	"github.com/piki/wager-engine/internal/pricing"
	"github.com/piki/wager-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestLedger creates a ledger over an in-memory store serving the demo
// markets ("cornell-tech" escalating by default, "cornell-tech-linear").
func newTestLedger(t *testing.T, opts Options) (*Ledger, *store.MemoryStore) {
	t.Helper()
	catalog, err := market.NewCatalog(market.DefaultDefinitions(), "")
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	ms := store.NewMemoryStore()
	return New(ms, catalog, opts), ms
}

// seedAccount inserts an account with an explicit balance.
func seedAccount(t *testing.T, ms *store.MemoryStore, id string, balance float64) {
	t.Helper()
	err := ms.CreateAccount(context.Background(), &model.Account{
		ID:        id,
		Username:  "user-" + id,
		Balance:   d(balance),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
}

type snapshot struct {
	balance decimal.Decimal
	wagers  int
}

func (s snapshot) equal(o snapshot) bool {
	return s.balance.Equal(o.balance) && s.wagers == o.wagers
}

func takeSnapshot(t *testing.T, l *Ledger, accountID string) snapshot {
	t.Helper()
	a, err := l.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	wagers, _ := l.ListWagers(context.Background(), accountID)
	return snapshot{balance: a.Balance, wagers: len(wagers)}
}

type recordingNotifier struct {
	mu       sync.Mutex
	wagers   []model.Wager
	balances []decimal.Decimal
}

func (n *recordingNotifier) WagerPlaced(w model.Wager, balance decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.wagers = append(n.wagers, w)
	n.balances = append(n.balances, balance)
}

// --- Accounts ---

func TestOpenAccount_StartingBalance(t *testing.T) {
	l, _ := newTestLedger(t, Options{})

	a, err := l.OpenAccount(context.Background(), "alice", "hash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == "" {
		t.Error("expected non-empty account id")
	}
	if !a.Balance.Equal(d(10)) {
		t.Errorf("expected starting balance 10.00, got %s", a.Balance)
	}

	byName, err := l.GetAccountByUsername(context.Background(), "alice")
	if err != nil || byName.ID != a.ID {
		t.Errorf("lookup by username failed: %v %v", byName, err)
	}
}

func TestOpenAccount_UsernameTaken(t *testing.T) {
	l, _ := newTestLedger(t, Options{})
	l.OpenAccount(context.Background(), "alice", "hash")

	_, err := l.OpenAccount(context.Background(), "alice", "other")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	l, _ := newTestLedger(t, Options{})
	if _, err := l.GetAccount(context.Background(), "nobody"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

// --- PlaceWager scenarios ---

func TestPlaceWager_FloorOutcome(t *testing.T) {
	l, ms := newTestLedger(t, Options{})
	seedAccount(t, ms, "a", 10)

	w, err := l.PlaceWager(context.Background(), "a", "cornell-tech", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Cost.Equal(d(0.75)) {
		t.Errorf("expected cost 0.75, got %s", w.Cost)
	}
	if w.ID == "" || w.Timestamp.IsZero() {
		t.Errorf("wager should carry id and timestamp: %+v", w)
	}

	a, _ := l.GetAccount(context.Background(), "a")
	if !a.Balance.Equal(d(9.25)) {
		t.Errorf("expected balance 9.25, got %s", a.Balance)
	}

	wagers, _ := l.ListWagers(context.Background(), "a")
	if len(wagers) != 1 || !wagers[0].Cost.Equal(d(0.75)) {
		t.Errorf("expected one wager with cost 0.75, got %+v", wagers)
	}
}

func TestPlace_ReceiptBalance(t *testing.T) {
	l, ms := newTestLedger(t, Options{})
	seedAccount(t, ms, "a", 10)

	r, err := l.Place(context.Background(), "a", "cornell-tech", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Wager.Cost.Equal(d(1.39)) {
		t.Errorf("expected cost 1.39, got %s", r.Wager.Cost)
	}
	if !r.Balance.Equal(d(8.61)) {
		t.Errorf("expected receipt balance 8.61, got %s", r.Balance)
	}
}

func TestPlaceWager_InsufficientFunds(t *testing.T) {
	l, ms := newTestLedger(t, Options{})
	seedAccount(t, ms, "a", 3)

	before := takeSnapshot(t, l, "a")
	_, err := l.PlaceWager(context.Background(), "a", "cornell-tech", 10)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	after := takeSnapshot(t, l, "a")

	if !after.balance.Equal(d(3)) {
		t.Errorf("balance should remain 3.00, got %s", after.balance)
	}
	if after.wagers != before.wagers {
		t.Errorf("no wager should be recorded: before=%d after=%d", before.wagers, after.wagers)
	}
}

func TestPlaceWager_BelowFloor(t *testing.T) {
	l, ms := newTestLedger(t, Options{})
	seedAccount(t, ms, "a", 1000)

	before := takeSnapshot(t, l, "a")
	_, err := l.PlaceWager(context.Background(), "a", "cornell-tech", 4)
	if !errors.Is(err, pricing.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if after := takeSnapshot(t, l, "a"); !after.balance.Equal(before.balance) || after.wagers != 0 {
		t.Errorf("state changed on rejected wager: %+v", after)
	}
}

func TestPlaceWager_DefaultMarket(t *testing.T) {
	l, ms := newTestLedger(t, Options{})
	seedAccount(t, ms, "a", 10)

	w, err := l.PlaceWager(context.Background(), "a", "", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.MarketID != "cornell-tech" || !w.Cost.Equal(d(4.5)) {
		t.Errorf("expected default market at 4.50, got %+v", w)
	}
}

func TestPlaceWager_LinearMarket(t *testing.T) {
	l, ms := newTestLedger(t, Options{})
	seedAccount(t, ms, "a", 10)

	w, err := l.PlaceWager(context.Background(), "a", "cornell-tech-linear", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Cost.IsZero() {
		t.Errorf("outcome 0 should cost 0, got %s", w.Cost)
	}
}

func TestPlaceWager_UnknownAccount(t *testing.T) {
	l, _ := newTestLedger(t, Options{})
	if _, err := l.PlaceWager(context.Background(), "nobody", "", 5); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPlaceWager_UnknownMarket(t *testing.T) {
	l, ms := newTestLedger(t, Options{})
	seedAccount(t, ms, "a", 10)
	if _, err := l.PlaceWager(context.Background(), "a", "no-such-market", 5); !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
}

func TestPlaceWager_StakeLimit(t *testing.T) {
	l, ms := newTestLedger(t, Options{
		Limiter: limits.NewStakeLimiter(d(1.5), decimal.Zero),
	})
	seedAccount(t, ms, "a", 10)

	for i := 0; i < 2; i++ {
		if _, err := l.PlaceWager(context.Background(), "a", "cornell-tech", 5); err != nil {
			t.Fatalf("wager %d: unexpected error: %v", i, err)
		}
	}

	before := takeSnapshot(t, l, "a")
	_, err := l.PlaceWager(context.Background(), "a", "cornell-tech", 5)
	if !errors.Is(err, limits.ErrMarketStakeExceeded) {
		t.Fatalf("expected ErrMarketStakeExceeded, got %v", err)
	}
	if after := takeSnapshot(t, l, "a"); !after.equal(before) {
		t.Errorf("state changed on rejected wager: before=%+v after=%+v", before, after)
	}
}

func TestPlaceWager_Notifies(t *testing.T) {
	n := &recordingNotifier{}
	l, ms := newTestLedger(t, Options{Notifier: n})
	seedAccount(t, ms, "a", 10)

	l.PlaceWager(context.Background(), "a", "cornell-tech", 5)
	l.PlaceWager(context.Background(), "a", "cornell-tech", 4) // rejected

	if len(n.wagers) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(n.wagers))
	}
	if !n.balances[0].Equal(d(9.25)) {
		t.Errorf("expected notified balance 9.25, got %s", n.balances[0])
	}
}

func TestPlaceWager_CostFrozen(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l, ms := newTestLedger(t, Options{Clock: func() time.Time { return fixed }})
	seedAccount(t, ms, "a", 10)

	w, _ := l.PlaceWager(context.Background(), "a", "cornell-tech", 6)
	wagers, _ := l.ListWagers(context.Background(), "a")
	if !wagers[0].Cost.Equal(w.Cost) || !wagers[0].Timestamp.Equal(fixed) {
		t.Errorf("stored wager differs from returned wager: %+v vs %+v", wagers[0], w)
	}
}

// --- Invariants ---

func TestPlaceWager_BalanceNeverNegative(t *testing.T) {
	l, ms := newTestLedger(t, Options{})
	seedAccount(t, ms, "a", 10)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		outcome := rng.Intn(9) + 3 // 3..11, includes out-of-range values
		before := takeSnapshot(t, l, "a")
		_, err := l.PlaceWager(context.Background(), "a", "cornell-tech", outcome)
		after := takeSnapshot(t, l, "a")

		if after.balance.IsNegative() {
			t.Fatalf("balance went negative after attempt %d: %s", i, after.balance)
		}
		if err != nil && !after.equal(before) {
			t.Fatalf("failed attempt %d changed state: before=%+v after=%+v", i, before, after)
		}
		if err == nil && after.wagers != before.wagers+1 {
			t.Fatalf("successful attempt %d did not record exactly one wager", i)
		}
	}
}

func TestPlaceWager_ConcurrentSameAccount(t *testing.T) {
	l, ms := newTestLedger(t, Options{})
	seedAccount(t, ms, "a", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.PlaceWager(context.Background(), "a", "cornell-tech", 5); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 13 * 0.75 = 9.75 <= 10 < 14 * 0.75.
	if accepted != 13 {
		t.Errorf("expected 13 accepted wagers, got %d", accepted)
	}
	a, _ := l.GetAccount(context.Background(), "a")
	if !a.Balance.Equal(d(0.25)) {
		t.Errorf("expected remaining balance 0.25, got %s", a.Balance)
	}
}

// --- Reads ---

func TestListAccounts_Leaderboard(t *testing.T) {
	l, ms := newTestLedger(t, Options{})
	seedAccount(t, ms, "first", 5)
	seedAccount(t, ms, "rich", 20)
	seedAccount(t, ms, "second", 5)

	accounts, err := l.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"rich", "first", "second"}
	for i, id := range want {
		if accounts[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, accounts[i].ID)
		}
	}
}

func TestListWagers_EmptyNotNil(t *testing.T) {
	l, _ := newTestLedger(t, Options{})
	wagers, err := l.ListWagers(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wagers == nil || len(wagers) != 0 {
		t.Errorf("expected empty slice, got %v", wagers)
	}
}

func TestListMarketWagers(t *testing.T) {
	l, ms := newTestLedger(t, Options{})
	seedAccount(t, ms, "a", 10)
	seedAccount(t, ms, "b", 10)

	l.PlaceWager(context.Background(), "a", "cornell-tech", 5)
	l.PlaceWager(context.Background(), "b", "cornell-tech-linear", 3)
	l.PlaceWager(context.Background(), "b", "cornell-tech", 6)

	wagers, err := l.ListMarketWagers(context.Background(), "cornell-tech")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wagers) != 2 || wagers[0].AccountID != "a" || wagers[1].AccountID != "b" {
		t.Errorf("unexpected market wagers: %+v", wagers)
	}
	if _, err := l.ListMarketWagers(context.Background(), "zzz"); !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
}

func TestQuote(t *testing.T) {
	l, _ := newTestLedger(t, Options{})

	cost, err := l.Quote("cornell-tech", 10)
	if err != nil || !cost.Equal(d(4.5)) {
		t.Errorf("expected 4.50, got %s %v", cost, err)
	}
	if _, err := l.Quote("cornell-tech", 4); !errors.Is(err, pricing.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := l.Quote("zzz", 5); !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
}
