/**
 * @description
 * This file sets up the HTTP router for the payment service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication. Provider callback endpoints are
 * mounted unauthenticated: their authenticity check is the signature verification
 * inside the gateway adapters.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the client-facing surface.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PaymentRoutes creates and returns a new router for the payment service.
func PaymentRoutes(h *PaymentHandlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Provider callbacks. Unauthenticated by design: each adapter verifies the payload
	// signature before any state can change.
	r.Post("/payments/callback/{method}", h.PaymentCallbackHandler)

	// Group routes that require user authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/orders", h.CreateOrderHandler)
		r.Get("/orders", h.ListOrdersHandler)
		r.Get("/orders/{orderNo}", h.GetOrderHandler)
		r.Post("/orders/{orderNo}/refund", h.RefundOrderHandler)

		r.Get("/subscriptions/current", h.CurrentSubscriptionHandler)

		// Creator earnings ledger
		r.Get("/earnings", h.ListIncomeHandler)
		r.Get("/earnings/balance", h.WithdrawableBalanceHandler)
		r.Get("/earnings/summaries", h.SettlementSummariesHandler)
		r.Post("/earnings/{incomeID}/withdraw", h.RequestWithdrawalHandler)
		r.Post("/withdrawals", h.CreateWithdrawalBatchHandler)
	})

	// Server-to-server surface for the payout processor.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/withdrawals/{batchID}/complete", h.CompleteWithdrawalBatchHandler)
		r.Post("/internal/incomes/{incomeID}/complete", h.CompleteWithdrawalHandler)
	})

	return r
}
