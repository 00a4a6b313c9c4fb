package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConsumer reads the directory topics as one consumer group. A new group starts from the
// earliest retained offset so a fresh deployment backfills the user and product read-model.
type KafkaConsumer struct {
	reader      *kafka.Reader
	readTimeout time.Duration
}

func NewKafkaConsumer(brokers []string, groupID string, topics []string) (*KafkaConsumer, error) {
	switch {
	case len(brokers) == 0:
		return nil, fmt.Errorf("directory consumer: no kafka brokers configured")
	case groupID == "":
		return nil, fmt.Errorf("directory consumer: consumer group is required")
	case len(trimNonEmpty(topics)) == 0:
		return nil, fmt.Errorf("directory consumer: no topics configured")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		GroupTopics:    trimNonEmpty(topics),
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        500 * time.Millisecond,
	})
	return &KafkaConsumer{reader: reader, readTimeout: 250 * time.Millisecond}, nil
}

// Poll drains up to max messages and returns early once no message arrives within the read timeout.
func (c *KafkaConsumer) Poll(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	var out []Message
	for len(out) < max {
		readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
		msg, err := c.reader.ReadMessage(readCtx)
		cancel()
		switch {
		case err == nil:
			out = append(out, fromKafka(msg))
		case ctx.Err() != nil:
			return out, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return out, nil
		default:
			return out, fmt.Errorf("read %d directory messages: %w", len(out), err)
		}
	}
	return out, nil
}

func fromKafka(msg kafka.Message) Message {
	out := Message{
		Topic:     msg.Topic,
		Key:       string(msg.Key),
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Payload:   msg.Value,
	}
	for _, h := range msg.Headers {
		if h.Key == eventTypeHeader {
			out.EventType = string(h.Value)
		}
	}
	return out
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
