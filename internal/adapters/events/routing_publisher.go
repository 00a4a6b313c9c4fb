package events

import (
	"context"

	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

// EmailRelay delivers a queued email request.
type EmailRelay interface {
	DeliverQueuedEmail(ctx context.Context, payload []byte) error
}

// RoutingPublisher sends email requests to the local relay and every other event downstream.
type RoutingPublisher struct {
	relay      EmailRelay
	downstream ports.EventPublisher
}

func NewRoutingPublisher(relay EmailRelay, downstream ports.EventPublisher) *RoutingPublisher {
	return &RoutingPublisher{relay: relay, downstream: downstream}
}

func (p *RoutingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	if eventType == domain.EventNotificationEmailRequested {
		return p.relay.DeliverQueuedEmail(ctx, payload)
	}
	return p.downstream.Publish(ctx, eventType, payload, partitionKey)
}
