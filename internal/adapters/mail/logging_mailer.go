package mail

import (
	"context"
	"log/slog"

	"github.com/viralforge/barter-exchange/internal/ports"
)

// LoggingMailer stands in for SMTP in local runs. Bodies are not logged.
type LoggingMailer struct{}

func (LoggingMailer) Send(ctx context.Context, msg ports.EmailMessage) error {
	slog.Default().InfoContext(ctx, "email suppressed",
		"module", "mail.logging",
		"layer", "adapter",
		"operation", "send",
		"outcome", "skipped",
		"subject", msg.Subject,
		"body_bytes", len(msg.Body),
	)
	return nil
}
