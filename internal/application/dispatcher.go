package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

// RetryPolicy bounds email delivery attempts. Backoff doubles from InitialBackoff up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	if p.MaxBackoff > 0 && p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// Backoff returns the wait before retry number n (1-based).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n <= 0 || p.InitialBackoff <= 0 {
		return 0
	}
	d := p.InitialBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Recipient is one fan-out target. Channels are the real-time channel ids scoped to the recipient.
type Recipient struct {
	Address  string
	Channels []string
}

type DeliveryResult struct {
	Address  string
	Attempts int
	Err      error
}

// DispatchReport lists per-recipient outcomes in input order.
type DispatchReport struct {
	Delivered []DeliveryResult
	Failed    []DeliveryResult
}

func (r DispatchReport) Merge(other DispatchReport) DispatchReport {
	return DispatchReport{
		Delivered: append(append([]DeliveryResult(nil), r.Delivered...), other.Delivered...),
		Failed:    append(append([]DeliveryResult(nil), r.Failed...), other.Failed...),
	}
}

// Err joins the failures; nil when every recipient was delivered.
func (r DispatchReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

type DispatcherConfig struct {
	DeliveryTimeout time.Duration
	Retry           RetryPolicy
	ChannelPrefix   string
}

// Dispatcher fans a notification out to email recipients and real-time channels.
type Dispatcher struct {
	mailer        ports.Mailer
	broadcaster   ports.Broadcaster
	timeout       time.Duration
	retry         RetryPolicy
	channelPrefix string
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(mailer ports.Mailer, broadcaster ports.Broadcaster, cfg DispatcherConfig) *Dispatcher {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.ChannelPrefix) == "" {
		cfg.ChannelPrefix = "exchange"
	}
	return &Dispatcher{
		mailer:        mailer,
		broadcaster:   broadcaster,
		timeout:       cfg.DeliveryTimeout,
		retry:         cfg.Retry.normalized(),
		channelPrefix: cfg.ChannelPrefix,
		sleep:         sleepContext,
	}
}

// Notify delivers the same message to every recipient concurrently and waits for all of them.
func (d *Dispatcher) Notify(ctx context.Context, recipients []Recipient, subject, body string) DispatchReport {
	results := make([]DeliveryResult, len(recipients))
	var wg sync.WaitGroup
	for i, rcpt := range recipients {
		wg.Add(1)
		go func(i int, rcpt Recipient) {
			defer wg.Done()
			results[i] = d.deliver(ctx, rcpt, subject, body, d.retry.MaxAttempts)
		}(i, rcpt)
	}
	wg.Wait()

	var report DispatchReport
	for _, res := range results {
		if res.Err != nil {
			report.Failed = append(report.Failed, res)
			dispatcherLogger().WarnContext(ctx, "email delivery failed",
				"operation", "notify",
				"outcome", "failure",
				"attempts", res.Attempts,
				"error", res.Err,
			)
			continue
		}
		report.Delivered = append(report.Delivered, res)
	}
	return report
}

// SendOnce makes a single bounded delivery attempt. Callers that own a retry schedule use it instead of Notify.
func (d *Dispatcher) SendOnce(ctx context.Context, rcpt Recipient, subject, body string) DeliveryResult {
	return d.deliver(ctx, rcpt, subject, body, 1)
}

func (d *Dispatcher) deliver(ctx context.Context, rcpt Recipient, subject, body string, maxAttempts int) DeliveryResult {
	res := DeliveryResult{Address: strings.TrimSpace(rcpt.Address)}
	if res.Address == "" {
		res.Err = fmt.Errorf("%w: recipient has no email address", domain.ErrNotification)
		return res
	}
	msg := ports.EmailMessage{To: res.Address, Subject: subject, Body: body}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		lastErr = d.mailer.Send(attemptCtx, msg)
		cancel()
		if lastErr == nil {
			return res
		}
		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		if err := d.sleep(ctx, d.retry.Backoff(attempt)); err != nil {
			break
		}
	}
	res.Err = fmt.Errorf("%w: %s after %d attempt(s): %v", domain.ErrNotification, res.Address, res.Attempts, lastErr)
	return res
}

type realtimeMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Broadcast publishes the event on the global channel and on each distinct recipient channel.
func (d *Dispatcher) Broadcast(ctx context.Context, eventName string, payload any, channels []string) error {
	raw, err := json.Marshal(realtimeMessage{Event: eventName, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode realtime message: %w", err)
	}
	targets := d.channelNames(channels)
	var errs []error
	for _, channel := range targets {
		if err := d.broadcaster.Publish(ctx, channel, raw); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) GlobalChannel() string { return d.channelPrefix + ":global" }

func (d *Dispatcher) UserChannel(id string) string { return d.channelPrefix + ":user:" + id }

func (d *Dispatcher) channelNames(ids []string) []string {
	out := []string{d.GlobalChannel()}
	seen := map[string]struct{}{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, d.UserChannel(id))
	}
	return out
}

// ChannelsOf collects the channel ids of all recipients.
func ChannelsOf(recipients []Recipient) []string {
	var out []string
	for _, r := range recipients {
		out = append(out, r.Channels...)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func dispatcherLogger() *slog.Logger {
	return slog.Default().With(
		"module", "application.dispatcher",
		"layer", "application",
	)
}
