// Package config loads service configuration from the environment, an
// optional .env file and an optional YAML markets file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/piki/wager-engine/internal/market"
	"github.com/piki/wager-engine/internal/pricing"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Auth    AuthConfig
	Ledger  LedgerConfig
	Markets []market.Definition
	// DefaultMarket selects the market used when a wager names none.
	DefaultMarket string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string
}

// StorageConfig selects the store. An empty DatabaseURL means in-memory.
type StorageConfig struct {
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret string
}

// LedgerConfig holds wallet and stake settings.
type LedgerConfig struct {
	StartingBalance   decimal.Decimal
	MaxStakePerMarket decimal.Decimal
	MaxStakeTotal     decimal.Decimal
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// A missing .env is fine in production.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on system environment")
	}

	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("CACHE_TTL: %w", err)
	}

	startingBalance, err := getDecimal("STARTING_BALANCE", "10.00")
	if err != nil {
		return nil, err
	}
	maxPerMarket, err := getDecimal("MAX_STAKE_PER_MARKET", "0")
	if err != nil {
		return nil, err
	}
	maxTotal, err := getDecimal("MAX_STAKE_TOTAL", "0")
	if err != nil {
		return nil, err
	}
	if startingBalance.IsNegative() {
		return nil, fmt.Errorf("STARTING_BALANCE must not be negative")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3001"),
		},
		Storage: StorageConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
			RedisURL:    getEnv("REDIS_URL", ""),
			CacheTTL:    cacheTTL,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Ledger: LedgerConfig{
			StartingBalance:   startingBalance,
			MaxStakePerMarket: maxPerMarket,
			MaxStakeTotal:     maxTotal,
		},
		DefaultMarket: getEnv("DEFAULT_MARKET", ""),
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if path := getEnv("MARKETS_FILE", ""); path != "" {
		file, err := LoadMarketsFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Markets = file.Definitions
		if cfg.DefaultMarket == "" {
			cfg.DefaultMarket = file.Default
		}
	} else {
		cfg.Markets = market.DefaultDefinitions()
	}

	return cfg, nil
}

// getEnv gets an environment variable with a fallback default value.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

// MarketsFile is a parsed YAML markets file.
type MarketsFile struct {
	Default     string
	Definitions []market.Definition
}

// marketsYAML is the on-disk layout:
//
//	default: cornell-tech
//	markets:
//	  - id: cornell-tech
//	    question: Do you like Cornell Tech?
//	    pricing:
//	      strategy: escalating
//	      base_price: "0.15"
//	      min_outcome: 5
//	      volatility: "0.08"
//	      range: [5, 10]
type marketsYAML struct {
	Default string `yaml:"default"`
	Markets []struct {
		ID          string `yaml:"id"`
		Question    string `yaml:"question"`
		Description string `yaml:"description"`
		Pricing     struct {
			Strategy   string `yaml:"strategy"`
			BaseUnit   string `yaml:"base_unit"`
			BasePrice  string `yaml:"base_price"`
			MinOutcome int    `yaml:"min_outcome"`
			Volatility string `yaml:"volatility"`
			Range      []int  `yaml:"range"`
		} `yaml:"pricing"`
	} `yaml:"markets"`
}

// LoadMarketsFile reads market definitions from a YAML file.
func LoadMarketsFile(path string) (*MarketsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markets file: %w", err)
	}
	return ParseMarkets(data)
}

// ParseMarkets decodes YAML market definitions.
func ParseMarkets(data []byte) (*MarketsFile, error) {
	var raw marketsYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse markets: %w", err)
	}
	if len(raw.Markets) == 0 {
		return nil, fmt.Errorf("parse markets: no markets defined")
	}

	out := &MarketsFile{Default: raw.Default}
	for _, m := range raw.Markets {
		p := m.Pricing
		if len(p.Range) != 2 {
			return nil, fmt.Errorf("market %s: range must be [lo, hi]", m.ID)
		}
		cfg := pricing.Config{
			Strategy:   p.Strategy,
			MinOutcome: p.MinOutcome,
			Lo:         p.Range[0],
			Hi:         p.Range[1],
		}
		var err error
		if cfg.BaseUnit, err = optionalDecimal(p.BaseUnit); err != nil {
			return nil, fmt.Errorf("market %s: base_unit: %w", m.ID, err)
		}
		if cfg.BasePrice, err = optionalDecimal(p.BasePrice); err != nil {
			return nil, fmt.Errorf("market %s: base_price: %w", m.ID, err)
		}
		if cfg.Volatility, err = optionalDecimal(p.Volatility); err != nil {
			return nil, fmt.Errorf("market %s: volatility: %w", m.ID, err)
		}
		out.Definitions = append(out.Definitions, market.Definition{
			ID:          m.ID,
			Question:    m.Question,
			Description: m.Description,
			Pricing:     cfg,
		})
	}
	return out, nil
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
