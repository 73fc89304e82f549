// Package mailer routes outbound messages to a transport, either directly or
// through a delivery queue.
package mailer

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/shineum/ses-mailer/internal/delivery"
	"github.com/shineum/ses-mailer/internal/email"
	"github.com/shineum/ses-mailer/internal/metrics"
	"github.com/shineum/ses-mailer/internal/transport"
)

// Policy holds the global recipient rules. Empty fields are unset.
type Policy struct {
	// OverrideRecipient replaces every recipient when set.
	OverrideRecipient string
	// GlobalCc is appended to every message's destinations.
	GlobalCc string
	// GlobalBcc is appended after GlobalCc.
	GlobalBcc string
}

// Enqueuer hands a delivery job to a queue engine.
type Enqueuer interface {
	Enqueue(ctx context.Context, job delivery.Job) error
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithQueue defers delivery to q. A nil q keeps sends synchronous.
func WithQueue(q Enqueuer) Option {
	return func(a *Adapter) {
		a.queue = q
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// Adapter is the entry point applications send mail through.
type Adapter struct {
	client transport.Client
	policy Policy
	queue  Enqueuer
	logger *slog.Logger

	mu   sync.Mutex
	last *transport.Response
}

// New creates an Adapter sending through client under policy.
func New(client transport.Client, policy Policy, opts ...Option) *Adapter {
	a := &Adapter{
		client: client,
		policy: policy,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Resolve returns the destinations for msg. With an override recipient the
// result is that address alone. Otherwise it is To, Cc and Bcc followed by
// the global Cc and Bcc, in order and without removing duplicates.
func (a *Adapter) Resolve(msg *email.Message) []string {
	if a.policy.OverrideRecipient != "" {
		return []string{a.policy.OverrideRecipient}
	}

	destinations := make([]string, 0, len(msg.To)+len(msg.Cc)+len(msg.Bcc)+2)
	destinations = append(destinations, email.Addresses(msg.To)...)
	destinations = append(destinations, email.Addresses(msg.Cc)...)
	destinations = append(destinations, email.Addresses(msg.Bcc)...)
	if a.policy.GlobalCc != "" {
		destinations = append(destinations, a.policy.GlobalCc)
	}
	if a.policy.GlobalBcc != "" {
		destinations = append(destinations, a.policy.GlobalBcc)
	}
	return destinations
}

// Send delivers msg. With a queue configured it reports whether the job was
// accepted by the queue, not whether the message was delivered. Without one
// it reports whether the provider accepted the message. Failures are logged
// and never returned; LastResponse exposes the provider's answer.
func (a *Adapter) Send(ctx context.Context, msg *email.Message) bool {
	destinations := a.Resolve(msg)

	raw, err := msg.Serialize()
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to serialize message",
			slog.String("subject", msg.Subject),
			slog.Any("error", err),
		)
		metrics.Sends.WithLabelValues(a.path(), "error").Inc()
		return false
	}

	if a.queue != nil {
		return a.enqueue(ctx, delivery.NewJob(destinations, msg.Subject, raw))
	}

	resp, err := transport.Send(ctx, a.logger, a.client, destinations, raw)
	if err != nil {
		a.setLast(nil)
		a.logger.WarnContext(ctx, "failed to send message",
			slog.String("client", a.client.Name()),
			slog.Any("destinations", destinations),
			slog.String("subject", msg.Subject),
			slog.Any("error", err),
		)
		metrics.Sends.WithLabelValues("direct", "error").Inc()
		return false
	}

	a.setLast(&resp)
	if !resp.Successful() {
		a.logger.WarnContext(ctx, "provider did not accept message",
			slog.String("client", a.client.Name()),
			slog.String("message_id", resp.MessageID),
			slog.Int("status", resp.StatusCode),
		)
		metrics.Sends.WithLabelValues("direct", "rejected").Inc()
		return false
	}

	a.logger.InfoContext(ctx, "message sent",
		slog.String("client", a.client.Name()),
		slog.String("message_id", resp.MessageID),
		slog.Int("destinations", len(destinations)),
	)
	metrics.Sends.WithLabelValues("direct", "ok").Inc()
	return true
}

// LastResponse returns the response of the most recent synchronous send.
// It reports false when no send happened yet or the last one failed in transport.
func (a *Adapter) LastResponse() (transport.Response, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return transport.Response{}, false
	}
	return *a.last, true
}

func (a *Adapter) enqueue(ctx context.Context, job delivery.Job) bool {
	if err := a.queue.Enqueue(ctx, job); err != nil {
		a.logger.ErrorContext(ctx, "failed to enqueue delivery job",
			slog.String("title", job.Title()),
			slog.Any("error", err),
		)
		metrics.Sends.WithLabelValues("queue", "error").Inc()
		return false
	}

	a.logger.DebugContext(ctx, "delivery job enqueued",
		slog.String("title", job.Title()),
		slog.String("signature", job.Signature()),
	)
	metrics.Sends.WithLabelValues("queue", "ok").Inc()
	return true
}

func (a *Adapter) setLast(resp *transport.Response) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = resp
}

func (a *Adapter) path() string {
	if a.queue != nil {
		return "queue"
	}
	return "direct"
}
