package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

type CreateTransactionRequest struct {
	UserID          string `json:"userId"`
	ProductID       string `json:"productId"`
	TransactionType string `json:"transactionType"`
	Amount          string `json:"amount"`
	Description     string `json:"description"`
}

type TransactionQuery struct {
	TransactionType string
	UserID          string
	Status          string
}

type UpdateTransactionStatusRequest struct {
	Status  string `json:"status"`
	Version *int   `json:"version,omitempty"`
}

type AddDisputeRequest struct {
	Reason string `json:"reason"`
}

type ResolveDisputeRequest struct {
	Status     string `json:"status"`
	Resolution string `json:"resolution,omitempty"`
}

type UserSummary struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type ProductSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// TransactionResponse exposes the record as stored: amount and description stay sealed.
type TransactionResponse struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	ProductID        string          `json:"productId"`
	TransactionType  string          `json:"transactionType"`
	Amount           string          `json:"amount"`
	AmountIV         string          `json:"amountIv"`
	AmountKeyID      string          `json:"amountKeyId"`
	Description      string          `json:"description"`
	DescriptionIV    string          `json:"descriptionIv"`
	DescriptionKeyID string          `json:"descriptionKeyId"`
	Status           string          `json:"status"`
	Version          int             `json:"version"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	User             *UserSummary    `json:"user,omitempty"`
	Product          *ProductSummary `json:"product,omitempty"`
}

type NotificationSummary struct {
	Delivered int  `json:"delivered"`
	Failed    int  `json:"failed"`
	Requeued  int  `json:"requeued"`
	Broadcast bool `json:"broadcast"`
}

type CreateTransactionResult struct {
	Transaction   TransactionResponse `json:"transaction"`
	Notifications NotificationSummary `json:"notifications"`
}

type DisputeResponse struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transactionId"`
	RaisedBy      string     `json:"raisedBy,omitempty"`
	Reason        string     `json:"reason"`
	Status        string     `json:"status"`
	Resolution    string     `json:"resolution,omitempty"`
	Version       int        `json:"version"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
}

func toTransactionResponse(tx domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:               tx.TransactionID.String(),
		UserID:           tx.UserID.String(),
		ProductID:        tx.ProductID.String(),
		TransactionType:  tx.TransactionType,
		Amount:           tx.Amount.Ciphertext,
		AmountIV:         tx.Amount.IV,
		AmountKeyID:      tx.Amount.KeyID,
		Description:      tx.Description.Ciphertext,
		DescriptionIV:    tx.Description.IV,
		DescriptionKeyID: tx.Description.KeyID,
		Status:           string(tx.Status),
		Version:          tx.Version,
		CreatedAt:        tx.CreatedAt,
		UpdatedAt:        tx.UpdatedAt,
	}
}

func toTransactionViewResponse(view ports.TransactionView) TransactionResponse {
	resp := toTransactionResponse(view.Transaction)
	if view.User != nil {
		resp.User = &UserSummary{
			ID:          view.User.UserID.String(),
			Email:       view.User.Email,
			DisplayName: view.User.DisplayName,
		}
	}
	if view.Product != nil {
		resp.Product = &ProductSummary{
			ID:    view.Product.ProductID.String(),
			Title: view.Product.Title,
		}
	}
	return resp
}

func toDisputeResponse(d domain.Dispute) DisputeResponse {
	resp := DisputeResponse{
		ID:            d.DisputeID.String(),
		TransactionID: d.TransactionID.String(),
		Reason:        d.Reason,
		Status:        string(d.Status),
		Resolution:    d.Resolution,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		ResolvedAt:    d.ResolvedAt,
	}
	if d.RaisedBy != uuid.Nil {
		resp.RaisedBy = d.RaisedBy.String()
	}
	return resp
}
