package postgres

import (
	"errors"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
	"gorm.io/gorm"
)

func toDomainUser(row userModel) domain.User {
	return domain.User{
		UserID:      row.UserID,
		Email:       row.Email,
		DisplayName: row.DisplayName,
		Role:        domain.NormalizeRole(row.Role),
		UpdatedAt:   row.UpdatedAt,
	}
}

func toDomainProduct(row productModel) domain.Product {
	p := domain.Product{
		ProductID: row.ProductID,
		Title:     row.Title,
		UpdatedAt: row.UpdatedAt,
	}
	if row.OwnerID != nil {
		p.OwnerID = *row.OwnerID
	}
	return p
}

func toTransactionModel(tx domain.Transaction) transactionModel {
	return transactionModel{
		TransactionID:         tx.TransactionID,
		UserID:                tx.UserID,
		ProductID:             tx.ProductID,
		TransactionType:       tx.TransactionType,
		AmountCiphertext:      tx.Amount.Ciphertext,
		AmountIV:              tx.Amount.IV,
		AmountKeyID:           tx.Amount.KeyID,
		DescriptionCiphertext: tx.Description.Ciphertext,
		DescriptionIV:         tx.Description.IV,
		DescriptionKeyID:      tx.Description.KeyID,
		Status:                string(tx.Status),
		Version:               tx.Version,
		CreatedAt:             tx.CreatedAt,
		UpdatedAt:             tx.UpdatedAt,
	}
}

func toDomainTransaction(row transactionModel) domain.Transaction {
	return domain.Transaction{
		TransactionID:   row.TransactionID,
		UserID:          row.UserID,
		ProductID:       row.ProductID,
		TransactionType: row.TransactionType,
		Amount: domain.SealedField{
			Ciphertext: row.AmountCiphertext,
			IV:         row.AmountIV,
			KeyID:      row.AmountKeyID,
		},
		Description: domain.SealedField{
			Ciphertext: row.DescriptionCiphertext,
			IV:         row.DescriptionIV,
			KeyID:      row.DescriptionKeyID,
		},
		Status:    domain.TransactionStatus(row.Status),
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toTransactionView(row transactionModel) ports.TransactionView {
	view := ports.TransactionView{Transaction: toDomainTransaction(row)}
	if row.User != nil {
		u := toDomainUser(*row.User)
		view.User = &u
	}
	if row.Product != nil {
		p := toDomainProduct(*row.Product)
		view.Product = &p
	}
	return view
}

func toDisputeModel(d domain.Dispute) disputeModel {
	return disputeModel{
		DisputeID:     d.DisputeID,
		TransactionID: d.TransactionID,
		RaisedBy:      nullableUUID(d.RaisedBy),
		Reason:        d.Reason,
		Status:        string(d.Status),
		Resolution:    d.Resolution,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		ResolvedAt:    d.ResolvedAt,
	}
}

func toDomainDispute(row disputeModel) domain.Dispute {
	d := domain.Dispute{
		DisputeID:     row.DisputeID,
		TransactionID: row.TransactionID,
		Reason:        row.Reason,
		Status:        domain.DisputeStatus(row.Status),
		Resolution:    row.Resolution,
		Version:       row.Version,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		ResolvedAt:    row.ResolvedAt,
	}
	if row.RaisedBy != nil {
		d.RaisedBy = *row.RaisedBy
	}
	return d
}

func toOutboxModels(events []ports.OutboxEvent) []outboxModel {
	rows := make([]outboxModel, 0, len(events))
	for _, e := range events {
		payload := string(e.Payload)
		if payload == "" {
			payload = "{}"
		}
		rows = append(rows, outboxModel{
			OutboxID:     e.EventID,
			EventType:    e.EventType,
			PartitionKey: e.PartitionKey,
			Payload:      payload,
			CreatedAt:    e.OccurredAt,
		})
	}
	return rows
}

func toOutboxRecord(row outboxModel) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:       row.OutboxID,
		EventType:      row.EventType,
		PartitionKey:   row.PartitionKey,
		Payload:        []byte(row.Payload),
		RetryCount:     row.RetryCount,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		PublishedAt:    row.PublishedAt,
		LastErrorAt:    row.LastErrorAt,
		ClaimToken:     row.ClaimToken,
		ClaimUntil:     row.ClaimUntil,
		DeadLetteredAt: row.DeadLetteredAt,
	}
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func isForeignKeyViolation(err error) bool {
	return errors.Is(err, gorm.ErrForeignKeyViolated)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// insertOutbox writes events inside the caller's transaction.
func insertOutbox(tx *gorm.DB, events []ports.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := toOutboxModels(events)
	return tx.Create(&rows).Error
}
