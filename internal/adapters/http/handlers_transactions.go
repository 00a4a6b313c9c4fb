package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/viralforge/barter-exchange/internal/application"
)

// createTransactionBody accepts the amount as a JSON number or a numeric string.
type createTransactionBody struct {
	UserID          string              `json:"userId"`
	ProductID       string              `json:"productId"`
	TransactionType string              `json:"transactionType"`
	Amount          decimal.NullDecimal `json:"amount"`
	Description     string              `json:"description"`
}

func (b createTransactionBody) request() application.CreateTransactionRequest {
	req := application.CreateTransactionRequest{
		UserID:          b.UserID,
		ProductID:       b.ProductID,
		TransactionType: b.TransactionType,
		Description:     b.Description,
	}
	if b.Amount.Valid {
		req.Amount = b.Amount.Decimal.String()
	}
	return req
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var body createTransactionBody
	if err := decodeBody(w, r, &body); err != nil {
		writeValidationError(r.Context(), w, "create_transaction", err)
		return
	}
	res, err := h.service.CreateTransaction(r.Context(), actorFromContext(r.Context()), body.request(), r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeMappedError(r.Context(), w, "create_transaction", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Transaction created successfully and notifications sent!", map[string]any{
		"transaction":   res.Transaction,
		"notifications": res.Notifications,
	})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := q.Get("user")
	if strings.TrimSpace(user) == "" {
		user = q.Get("userId")
	}
	items, err := h.service.ListTransactions(r.Context(), application.TransactionQuery{
		TransactionType: q.Get("transactionType"),
		UserID:          user,
		Status:          q.Get("status"),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "list_transactions", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Transactions fetched successfully.", map[string]any{
		"transactions": items,
	})
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.GetTransaction(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_transaction", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Transaction fetched successfully.", map[string]any{
		"transaction": tx,
	})
}

func (h *Handler) updateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	var req application.UpdateTransactionStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "update_transaction_status", err)
		return
	}
	tx, err := h.service.UpdateTransactionStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeMappedError(r.Context(), w, "update_transaction_status", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Transaction status updated successfully.", map[string]any{
		"transaction": tx,
	})
}
