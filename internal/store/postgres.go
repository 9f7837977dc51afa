package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/piki/wager-engine/internal/model"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, username, password_hash, balance, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
		a.ID, a.Username, a.PasswordHash, a.Balance.String(), a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, a.Username)
	}
	return err
}

const accountColumns = `id, username, password_hash, balance::TEXT, created_at`

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("get account %q: %w", username, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY balance DESC, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// ApplyWager locks the account row, checks funds, debits and inserts the
// wager in a single transaction.
func (s *PostgresStore) ApplyWager(ctx context.Context, w *model.Wager) (*model.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	a, err := scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, w.AccountID))
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", w.AccountID, err)
	}

	if a.Balance.LessThan(w.Cost) {
		return nil, fmt.Errorf("balance %s below cost %s: %w", a.Balance, w.Cost, ErrInsufficientFunds)
	}
	a.Balance = a.Balance.Sub(w.Cost)

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = $2::NUMERIC WHERE id = $1`,
		a.ID, a.Balance.String()); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO wagers (id, account_id, market_id, outcome, cost, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		w.ID, w.AccountID, w.MarketID, w.Outcome, w.Cost.String(), w.Timestamp); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

const wagerColumns = `id, account_id, market_id, outcome, cost::TEXT, timestamp`

func (s *PostgresStore) ListWagersByAccount(ctx context.Context, accountID string) ([]model.Wager, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+wagerColumns+` FROM wagers WHERE account_id = $1 ORDER BY seq`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWagers(rows)
}

func (s *PostgresStore) ListWagersByMarket(ctx context.Context, marketID string) ([]model.Wager, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+wagerColumns+` FROM wagers WHERE market_id = $1 ORDER BY seq`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWagers(rows)
}

func (s *PostgresStore) StakeByAccount(ctx context.Context, accountID string) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, COALESCE(SUM(cost), 0)::TEXT
		 FROM wagers WHERE account_id = $1
		 GROUP BY market_id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stakes := make(map[string]decimal.Decimal)
	for rows.Next() {
		var marketID, sumS string
		if err := rows.Scan(&marketID, &sumS); err != nil {
			return nil, err
		}
		stakes[marketID], _ = decimal.NewFromString(sumS)
	}
	return stakes, rows.Err()
}

// scanAccount reads one account row. pgx.ErrNoRows becomes ErrNotFound.
func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	var balanceS string
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &balanceS, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Balance, _ = decimal.NewFromString(balanceS)
	return &a, nil
}

// pgxRows is the subset of pgx.Rows used by scanWagers.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanWagers(rows pgxRows) ([]model.Wager, error) {
	var wagers []model.Wager
	for rows.Next() {
		var w model.Wager
		var costS string

		if err := rows.Scan(&w.ID, &w.AccountID, &w.MarketID, &w.Outcome,
			&costS, &w.Timestamp); err != nil {
			return nil, err
		}

		w.Cost, _ = decimal.NewFromString(costS)
		wagers = append(wagers, w)
	}
	return wagers, rows.Err()
}
