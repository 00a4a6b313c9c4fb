package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/barter-exchange/internal/application"
	"github.com/viralforge/barter-exchange/internal/ports"
)

// ReadinessCheck reports whether backing stores are reachable.
type ReadinessCheck func(ctx context.Context) error

type Handler struct {
	service  *application.Service
	verifier ports.TokenVerifier
	ready    ReadinessCheck
}

func NewHandler(service *application.Service, verifier ports.TokenVerifier, ready ReadinessCheck) *Handler {
	return &Handler{service: service, verifier: verifier, ready: ready}
}

// NewRouter registers the exchange routes. Every /api/v1 route requires a bearer token.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestMetaMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(recoverMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(handler.authMiddleware)

		r.Post("/transactions", handler.createTransaction)
		r.Get("/transactions/{id}", handler.getTransaction)
		r.Post("/transactions/{id}/dispute", handler.addDispute)
		r.Get("/transactions/{id}/disputes", handler.listTransactionDisputes)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/transactions", handler.listTransactions)
			r.Put("/transactions/{id}", handler.updateTransactionStatus)
			r.Get("/dispute/{id}", handler.getDispute)
			r.Put("/dispute/{id}/resolve", handler.resolveDispute)
			r.Put("/dispute/{id}/approve", handler.approveDispute)
			r.Put("/dispute/{id}/deny", handler.denyDispute)
		})
	})

	return r
}
