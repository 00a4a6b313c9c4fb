package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

const eventSchemaVersion = "1.0"

type eventEnvelope struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	SourceService string `json:"source_service"`
	SchemaVersion string `json:"schema_version"`
	PartitionKey  string `json:"partition_key"`
	Data          any    `json:"data"`
}

type transactionEventData struct {
	TransactionID   string `json:"transaction_id"`
	UserID          string `json:"user_id"`
	ProductID       string `json:"product_id"`
	TransactionType string `json:"transaction_type"`
	Status          string `json:"status"`
	PreviousStatus  string `json:"previous_status,omitempty"`
	Version         int    `json:"version"`
}

type disputeEventData struct {
	DisputeID     string `json:"dispute_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Resolution    string `json:"resolution,omitempty"`
	RaisedBy      string `json:"raised_by,omitempty"`
}

// emailRequestData keeps the body sealed so that outbox rows never hold plaintext transaction details.
type emailRequestData struct {
	To      string             `json:"to"`
	Subject string             `json:"subject"`
	Body    domain.SealedField `json:"body"`
}

func (s *Service) newOutboxEvent(eventType, partitionKey string, data any, occurredAt time.Time) (ports.OutboxEvent, error) {
	eventID := uuid.New()
	payload, err := json.Marshal(eventEnvelope{
		EventID:       eventID.String(),
		EventType:     eventType,
		OccurredAt:    occurredAt.Format(time.RFC3339Nano),
		SourceService: s.cfg.ServiceName,
		SchemaVersion: eventSchemaVersion,
		PartitionKey:  partitionKey,
		Data:          data,
	})
	if err != nil {
		return ports.OutboxEvent{}, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return ports.OutboxEvent{
		EventID:      eventID,
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      payload,
		OccurredAt:   occurredAt,
	}, nil
}

func transactionEvent(tx domain.Transaction, previous domain.TransactionStatus) transactionEventData {
	return transactionEventData{
		TransactionID:   tx.TransactionID.String(),
		UserID:          tx.UserID.String(),
		ProductID:       tx.ProductID.String(),
		TransactionType: tx.TransactionType,
		Status:          string(tx.Status),
		PreviousStatus:  string(previous),
		Version:         tx.Version,
	}
}

func disputeEvent(d domain.Dispute) disputeEventData {
	data := disputeEventData{
		DisputeID:     d.DisputeID.String(),
		TransactionID: d.TransactionID.String(),
		Status:        string(d.Status),
		Resolution:    d.Resolution,
	}
	if d.RaisedBy != uuid.Nil {
		data.RaisedBy = d.RaisedBy.String()
	}
	return data
}

func (s *Service) emailRequestEvent(to, subject, body, partitionKey string, at time.Time) (ports.OutboxEvent, error) {
	sealed, err := s.cipher.Encrypt(body)
	if err != nil {
		return ports.OutboxEvent{}, err
	}
	return s.newOutboxEvent(domain.EventNotificationEmailRequested, partitionKey, emailRequestData{
		To:      to,
		Subject: subject,
		Body:    sealed,
	}, at)
}

// DeliverQueuedEmail makes one delivery attempt for an outbox email request. A returned error
// leaves the record to the outbox retry count.
func (s *Service) DeliverQueuedEmail(ctx context.Context, payload []byte) error {
	var envelope struct {
		EventType string           `json:"event_type"`
		Data      emailRequestData `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("%w: invalid email request payload", domain.ErrInvalidInput)
	}
	if envelope.EventType != domain.EventNotificationEmailRequested {
		return fmt.Errorf("%w: unexpected event type %q", domain.ErrInvalidInput, envelope.EventType)
	}
	body, err := s.cipher.Decrypt(envelope.Data.Body)
	if err != nil {
		return err
	}
	return s.dispatcher.SendOnce(ctx, Recipient{Address: envelope.Data.To}, envelope.Data.Subject, body).Err
}
