package events

import (
	"context"
	"encoding/json"
	"log/slog"
)

// LoggingPublisher stands in for Kafka in local runs. It logs envelope identifiers only; payload
// data never reaches the log.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger.With("module", "events.logging_publisher", "layer", "adapter")}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	var envelope struct {
		EventID       string `json:"event_id"`
		SchemaVersion string `json:"schema_version"`
	}
	_ = json.Unmarshal(payload, &envelope)
	p.logger.InfoContext(ctx, "domain event emitted without broker",
		"operation", "publish",
		"outcome", "logged",
		"event_type", eventType,
		"event_id", envelope.EventID,
		"schema_version", envelope.SchemaVersion,
		"partition_key", partitionKey,
	)
	return nil
}
