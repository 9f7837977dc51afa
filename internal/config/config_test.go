package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/piki/wager-engine/internal/market"
	"github.com/piki/wager-engine/internal/pricing"
)

const sampleMarkets = `
default: yes-count-linear
markets:
  - id: yes-count
    question: Do you like Cornell Tech?
    pricing:
      strategy: escalating
      base_price: "0.15"
      min_outcome: 5
      volatility: "0.08"
      range: [5, 10]
  - id: yes-count-linear
    question: Do you like Cornell Tech?
    pricing:
      strategy: linear
      base_unit: 0.10
      range: [0, 10]
`

func TestParseMarkets(t *testing.T) {
	file, err := ParseMarkets([]byte(sampleMarkets))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if file.Default != "yes-count-linear" {
		t.Errorf("expected default yes-count-linear, got %s", file.Default)
	}
	if len(file.Definitions) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(file.Definitions))
	}

	esc := file.Definitions[0].Pricing
	if esc.Strategy != pricing.StrategyEscalating || esc.MinOutcome != 5 || esc.Lo != 5 || esc.Hi != 10 {
		t.Errorf("unexpected escalating config: %+v", esc)
	}
	if !esc.BasePrice.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("expected base price 0.15, got %s", esc.BasePrice)
	}

	lin := file.Definitions[1].Pricing
	if !lin.BaseUnit.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("expected base unit 0.10, got %s", lin.BaseUnit)
	}

	catalog, err := market.NewCatalog(file.Definitions, file.Default)
	if err != nil {
		t.Fatalf("definitions should build a catalog: %v", err)
	}
	cost, _ := catalog.Default().Price(7)
	if !cost.Equal(decimal.RequireFromString("0.7")) {
		t.Errorf("expected 0.70, got %s", cost)
	}
}

func TestParseMarkets_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":       "markets: []",
		"bad yaml":    "markets: [",
		"bad range":   "markets:\n  - id: a\n    pricing:\n      strategy: linear\n      range: [1]\n",
		"bad decimal": "markets:\n  - id: a\n    pricing:\n      strategy: linear\n      base_unit: abc\n      range: [0, 1]\n",
	}
	for name, doc := range tests {
		if _, err := ParseMarkets([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "")
	t.Setenv("MARKETS_FILE", "")
	t.Setenv("STARTING_BALANCE", "")
	t.Setenv("CACHE_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "3001" {
		t.Errorf("expected port 3001, got %s", cfg.Server.Port)
	}
	if !cfg.Ledger.StartingBalance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected starting balance 10, got %s", cfg.Ledger.StartingBalance)
	}
	if cfg.Storage.CacheTTL != 30*time.Second {
		t.Errorf("expected cache ttl 30s, got %v", cfg.Storage.CacheTTL)
	}
	if len(cfg.Markets) != len(market.DefaultDefinitions()) {
		t.Errorf("expected built-in markets, got %d", len(cfg.Markets))
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Error("expected error without JWT_SECRET")
	}
}

func TestLoad_MarketsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markets.yaml")
	if err := os.WriteFile(path, []byte(sampleMarkets), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MARKETS_FILE", path)
	t.Setenv("DEFAULT_MARKET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultMarket != "yes-count-linear" || len(cfg.Markets) != 2 {
		t.Errorf("unexpected markets config: default=%s n=%d", cfg.DefaultMarket, len(cfg.Markets))
	}
}
