package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
)

type directoryEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type userEventData struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type productEventData struct {
	ProductID string `json:"product_id"`
	OwnerID   string `json:"owner_id"`
	Title     string `json:"title"`
}

// HandleDirectoryEvent applies an inbound user or product event to the local read-model.
// Unknown topics are ignored.
func (s *Service) HandleDirectoryEvent(ctx context.Context, topic string, payload []byte) error {
	var evt directoryEnvelope
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("%w: invalid %s payload", domain.ErrInvalidInput, topic)
	}
	eventType := evt.EventType
	if eventType == "" {
		eventType = topic
	}
	switch eventType {
	case domain.EventUserRegistered, domain.EventUserUpdated, domain.EventUserDeleted, domain.EventProductUpserted:
	default:
		return nil
	}

	if evt.EventID != "" && s.eventDedup != nil {
		dup, err := s.eventDedup.IsDuplicate(ctx, evt.EventID)
		if err != nil {
			return err
		}
		if dup {
			return nil
		}
	}

	var err error
	switch eventType {
	case domain.EventUserRegistered, domain.EventUserUpdated:
		err = s.applyUserUpsert(ctx, evt)
	case domain.EventUserDeleted:
		err = s.applyUserDeleted(ctx, evt)
	case domain.EventProductUpserted:
		err = s.applyProductUpsert(ctx, evt)
	}
	if err != nil {
		return err
	}

	if evt.EventID != "" && s.eventDedup != nil {
		if err := s.eventDedup.MarkProcessed(ctx, evt.EventID, eventType, s.cfg.EventDedupTTL); err != nil {
			logWarn(ctx, "handle_directory_event", "event dedup mark failed", err, "event_id", evt.EventID)
		}
	}
	return nil
}

func (s *Service) applyUserUpsert(ctx context.Context, evt directoryEnvelope) error {
	var data userEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return fmt.Errorf("%w: invalid user data", domain.ErrInvalidInput)
	}
	userID, err := uuid.Parse(strings.TrimSpace(data.UserID))
	if err != nil {
		return fmt.Errorf("%w: invalid user_id", domain.ErrInvalidInput)
	}
	if err := s.users.Upsert(ctx, domain.User{
		UserID:      userID,
		Email:       strings.TrimSpace(data.Email),
		DisplayName: strings.TrimSpace(data.DisplayName),
		Role:        domain.NormalizeRole(data.Role),
		UpdatedAt:   eventTime(evt.OccurredAt, s.nowFn()),
	}); err != nil {
		return err
	}
	s.invalidateAdmins(ctx)
	return nil
}

func (s *Service) applyUserDeleted(ctx context.Context, evt directoryEnvelope) error {
	var data userEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return fmt.Errorf("%w: invalid user data", domain.ErrInvalidInput)
	}
	userID, err := uuid.Parse(strings.TrimSpace(data.UserID))
	if err != nil {
		return fmt.Errorf("%w: invalid user_id", domain.ErrInvalidInput)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	s.invalidateAdmins(ctx)
	return nil
}

func (s *Service) applyProductUpsert(ctx context.Context, evt directoryEnvelope) error {
	var data productEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return fmt.Errorf("%w: invalid product data", domain.ErrInvalidInput)
	}
	productID, err := uuid.Parse(strings.TrimSpace(data.ProductID))
	if err != nil {
		return fmt.Errorf("%w: invalid product_id", domain.ErrInvalidInput)
	}
	product := domain.Product{
		ProductID: productID,
		Title:     strings.TrimSpace(data.Title),
		UpdatedAt: eventTime(evt.OccurredAt, s.nowFn()),
	}
	if ownerID, err := uuid.Parse(strings.TrimSpace(data.OwnerID)); err == nil {
		product.OwnerID = ownerID
	}
	return s.products.Upsert(ctx, product)
}

func (s *Service) invalidateAdmins(ctx context.Context) {
	if s.adminCache == nil {
		return
	}
	if err := s.adminCache.Invalidate(ctx); err != nil {
		logWarn(ctx, "invalidate_admins", "admin cache invalidation failed", err)
	}
}

func eventTime(raw string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw)); err == nil {
		return t.UTC()
	}
	return fallback
}
