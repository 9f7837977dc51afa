// Package api provides the HTTP handlers for registration, login, wager
// placement and the read-only market and leaderboard queries.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/piki/wager-engine/internal/auth"
	"github.com/piki/wager-engine/internal/ledger"
	"github.com/piki/wager-engine/internal/limits"
	"github.com/piki/wager-engine/internal/model"
	"github.com/piki/wager-engine/internal/pricing"
)

// Handler serves the wager API on top of a ledger.
type Handler struct {
	ledger *ledger.Ledger
	issuer *auth.Issuer
}

// NewHandler creates a new API handler.
func NewHandler(l *ledger.Ledger, issuer *auth.Issuer) *Handler {
	return &Handler{ledger: l, issuer: issuer}
}

// --- Request/Response types ---

// CredentialsRequest is the JSON body for register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserSummary is the account view returned with a token.
type UserSummary struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Wallet   decimal.Decimal `json:"wallet"`
}

// AuthResponse is returned from register and login.
type AuthResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    UserSummary `json:"user"`
}

// BetRequest is the JSON body for POST /api/bet. Any client-supplied cost
// is accepted for compatibility and ignored.
type BetRequest struct {
	QuestionID     string           `json:"questionId"`
	SelectedOption *int             `json:"selectedOption"`
	Cost           *decimal.Decimal `json:"cost,omitempty"`
}

// BetResponse is the JSON body returned from POST /api/bet.
type BetResponse struct {
	Message          string          `json:"message"`
	Bet              model.Wager     `json:"bet"`
	NewWalletBalance decimal.Decimal `json:"newWalletBalance"`
}

// QuoteResponse is the advisory cost of one outcome.
type QuoteResponse struct {
	MarketID string          `json:"marketId"`
	Outcome  int             `json:"outcome"`
	Cost     decimal.Decimal `json:"cost"`
}

// --- HTTP Handlers ---

// Register handles POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("hash password failed", "err", err)
		writeError(w, "Server error", http.StatusInternalServerError)
		return
	}

	account, err := h.ledger.OpenAccount(r.Context(), req.Username, hash)
	if err != nil {
		if errors.Is(err, ledger.ErrUsernameTaken) {
			writeError(w, "Username already exists", http.StatusBadRequest)
			return
		}
		slog.Error("open account failed", "err", err)
		writeError(w, "Server error", http.StatusInternalServerError)
		return
	}

	h.respondWithToken(w, http.StatusCreated, "User created successfully", account)
}

// Login handles POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	account, err := h.ledger.GetAccountByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			writeError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		slog.Error("login lookup failed", "err", err)
		writeError(w, "Server error", http.StatusInternalServerError)
		return
	}
	if err := auth.CheckPassword(account.PasswordHash, req.Password); err != nil {
		writeError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	h.respondWithToken(w, http.StatusOK, "Login successful", account)
}

// Profile handles GET /api/profile
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountID(r.Context())

	account, err := h.ledger.GetAccount(r.Context(), accountID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// PlaceBet handles POST /api/bet
// The cost is always computed server-side from the market's pricing rule.
func (h *Handler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req BetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SelectedOption == nil {
		writeError(w, "selectedOption is required", http.StatusBadRequest)
		return
	}

	accountID, _ := auth.AccountID(r.Context())
	ctx := r.Context()

	receipt, err := h.ledger.Place(ctx, accountID, req.QuestionID, *req.SelectedOption)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	wager := receipt.Wager

	if req.Cost != nil && !req.Cost.Equal(wager.Cost) {
		slog.Warn("client cost ignored",
			"account_id", accountID,
			"client_cost", req.Cost.String(),
			"cost", wager.Cost.String(),
		)
	}

	writeJSON(w, http.StatusOK, BetResponse{
		Message:          "Bet placed successfully",
		Bet:              wager,
		NewWalletBalance: receipt.Balance,
	})
}

// ListBets handles GET /api/bets
func (h *Handler) ListBets(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountID(r.Context())

	wagers, err := h.ledger.ListWagers(r.Context(), accountID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.Wager{"bets": wagers})
}

// ListUsers handles GET /api/users
// Returns the leaderboard: descending balance, ties in registration order.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.ListAccounts(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.Account{"users": accounts})
}

// ListMarkets handles GET /api/markets
func (h *Handler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	catalog := h.ledger.Catalog()
	markets := make([]model.MarketInfo, 0, len(catalog.List()))
	for _, m := range catalog.List() {
		markets = append(markets, m.Info())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"markets": markets,
		"default": catalog.Default().ID(),
	})
}

// GetMarket handles GET /api/markets/{marketID}
func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.ledger.Catalog().Get(chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, "Market not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m.Info())
}

// GetQuote handles GET /api/markets/{marketID}/quote?outcome=N
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	outcome, err := strconv.Atoi(r.URL.Query().Get("outcome"))
	if err != nil {
		writeError(w, "outcome must be an integer", http.StatusBadRequest)
		return
	}

	cost, err := h.ledger.Quote(marketID, outcome)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteResponse{MarketID: marketID, Outcome: outcome, Cost: cost})
}

// GetMarketBets handles GET /api/markets/{marketID}/bets
// Returns every wager on the market in creation order.
func (h *Handler) GetMarketBets(w http.ResponseWriter, r *http.Request) {
	wagers, err := h.ledger.ListMarketWagers(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.Wager{"bets": wagers})
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) respondWithToken(w http.ResponseWriter, status int, message string, account *model.Account) {
	token, err := h.issuer.Issue(account.ID)
	if err != nil {
		slog.Error("issue token failed", "err", err)
		writeError(w, "Server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, AuthResponse{
		Message: message,
		Token:   token,
		User: UserSummary{
			ID:       account.ID,
			Username: account.Username,
			Wallet:   account.Balance,
		},
	})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, "Username and password required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// writeLedgerError maps ledger failures to HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, "User not found", http.StatusNotFound)
	case errors.Is(err, ledger.ErrMarketNotFound):
		writeError(w, "Market not found", http.StatusNotFound)
	case errors.Is(err, pricing.ErrOutOfRange):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, "Insufficient funds", http.StatusBadRequest)
	case errors.Is(err, limits.ErrMarketStakeExceeded), errors.Is(err, limits.ErrTotalStakeExceeded):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("request failed", "err", err)
		writeError(w, "Server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
