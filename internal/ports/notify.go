package ports

import "context"

type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// Broadcaster pushes a real-time event to a single channel.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, message []byte) error
}
