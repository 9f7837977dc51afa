package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/piki/wager-engine/internal/auth"
	"github.com/piki/wager-engine/internal/metrics"
)

// NewRouter wires the API routes with the standard middleware stack.
// hub may be nil, in which case /api/ws is not served.
func NewRouter(h *Handler, issuer *auth.Issuer, hub *WSHub) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors)

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// WebSocket is long-lived and stays outside the request timeout.
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/health", h.Health)
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Get("/markets", h.ListMarkets)
			r.Get("/markets/{marketID}", h.GetMarket)
			r.Get("/markets/{marketID}/quote", h.GetQuote)
			r.Get("/markets/{marketID}/bets", h.GetMarketBets)

			r.Group(func(r chi.Router) {
				r.Use(issuer.Middleware)
				r.Get("/profile", h.Profile)
				r.Post("/bet", h.PlaceBet)
				r.Get("/bets", h.ListBets)
				r.Get("/users", h.ListUsers)
			})
		})
	})

	return r
}

// cors allows cross-origin requests from the browser frontend.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
