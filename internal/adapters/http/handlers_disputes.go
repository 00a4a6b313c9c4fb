package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/barter-exchange/internal/application"
)

func (h *Handler) addDispute(w http.ResponseWriter, r *http.Request) {
	var req application.AddDisputeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "add_dispute", err)
		return
	}
	dispute, err := h.service.AddDispute(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeMappedError(r.Context(), w, "add_dispute", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Dispute added successfully.", map[string]any{
		"dispute": dispute,
	})
}

func (h *Handler) listTransactionDisputes(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListTransactionDisputes(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(r.Context(), w, "list_transaction_disputes", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Disputes fetched successfully.", map[string]any{
		"disputes": items,
	})
}

func (h *Handler) getDispute(w http.ResponseWriter, r *http.Request) {
	dispute, err := h.service.GetDispute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_dispute", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Dispute fetched successfully.", map[string]any{
		"dispute": dispute,
	})
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	var req application.ResolveDisputeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "resolve_dispute", err)
		return
	}
	dispute, err := h.service.ResolveDispute(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeMappedError(r.Context(), w, "resolve_dispute", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Dispute updated successfully.", map[string]any{
		"dispute": dispute,
	})
}

func (h *Handler) approveDispute(w http.ResponseWriter, r *http.Request) {
	var empty struct{}
	if err := decodeOptionalBody(w, r, &empty); err != nil {
		writeValidationError(r.Context(), w, "approve_dispute", err)
		return
	}
	dispute, err := h.service.ApproveDispute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(r.Context(), w, "approve_dispute", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Dispute resolved and approved successfully", map[string]any{
		"dispute": dispute,
	})
}

func (h *Handler) denyDispute(w http.ResponseWriter, r *http.Request) {
	var empty struct{}
	if err := decodeOptionalBody(w, r, &empty); err != nil {
		writeValidationError(r.Context(), w, "deny_dispute", err)
		return
	}
	dispute, err := h.service.DenyDispute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(r.Context(), w, "deny_dispute", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Dispute denied successfully", map[string]any{
		"dispute": dispute,
	})
}
