package events

import (
	"context"
	"log/slog"
	"time"
)

type Message struct {
	Topic     string
	EventType string
	Key       string
	Partition int
	Offset    int64
	Payload   []byte
}

// kind prefers the event_type header over the topic so renamed topics still route.
func (m Message) kind() string {
	if m.EventType != "" {
		return m.EventType
	}
	return m.Topic
}

type Consumer interface {
	Poll(ctx context.Context, max int) ([]Message, error)
}

// DirectoryHandler projects user and product events into the local read-model.
type DirectoryHandler interface {
	HandleDirectoryEvent(ctx context.Context, topic string, payload []byte) error
}

type ConsumerWorker struct {
	logger   *slog.Logger
	consumer Consumer
	handler  DirectoryHandler
	interval time.Duration
}

func NewConsumerWorker(logger *slog.Logger, consumer Consumer, handler DirectoryHandler, interval time.Duration) *ConsumerWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerWorker{
		logger: logger, consumer: consumer, handler: handler, interval: interval,
	}
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "consumer iteration failed",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *ConsumerWorker) processOnce(ctx context.Context) error {
	msgs, err := w.consumer.Poll(ctx, 50)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := w.handler.HandleDirectoryEvent(ctx, msg.kind(), msg.Payload); err != nil {
			w.logger.WarnContext(ctx, "directory event not applied",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "handle_event",
				"outcome", "failure",
				"topic", msg.Topic,
				"event_type", msg.EventType,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
	return nil
}
