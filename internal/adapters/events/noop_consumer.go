package events

import "context"

// NoopConsumer stands in when no brokers are configured. The directory read-model then only
// changes through direct database seeding.
type NoopConsumer struct{}

var _ Consumer = NoopConsumer{}

func NewNoopConsumer() NoopConsumer { return NoopConsumer{} }

func (NoopConsumer) Poll(context.Context, int) ([]Message, error) { return nil, nil }
