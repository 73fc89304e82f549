// Package transport defines the raw send contract shared by the mailer and
// the delivery job, and the single retry applied to it.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shineum/ses-mailer/internal/metrics"
)

var (
	// ErrSendFailed wraps any error returned by a provider API call.
	ErrSendFailed = errors.New("transport: send failed")

	// ErrUnsuccessfulResponse is returned when a call completed but its
	// response does not satisfy Response.Successful.
	ErrUnsuccessfulResponse = errors.New("transport: unsuccessful response")
)

// transientMarker identifies the one receive failure worth a second attempt.
// Any other error, including a bare connection reset, is returned as is.
const transientMarker = "cURL error 56"

// Response is the part of a provider reply the mailer cares about.
type Response struct {
	MessageID  string `json:"message_id"`
	StatusCode int    `json:"status_code"`
}

// Successful reports whether the provider accepted the message: a message id
// was returned and the HTTP status is exactly 200.
func (r Response) Successful() bool {
	return r.MessageID != "" && r.StatusCode == http.StatusOK
}

// Client sends an already serialized message to an ordered destination list.
type Client interface {
	// SendRaw performs one provider call. Errors wrap ErrSendFailed.
	SendRaw(ctx context.Context, destinations []string, raw string) (Response, error)

	// Name returns the human-readable name of this client.
	Name() string
}

// IsTransient reports whether err carries the known transient receive failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), transientMarker)
}

// Send calls the client and retries exactly once, without delay, when the
// first error is transient. The second outcome is returned as is. The retry
// is logged to log, or to the default logger when log is nil.
func Send(ctx context.Context, log *slog.Logger, c Client, destinations []string, raw string) (Response, error) {
	resp, err := c.SendRaw(ctx, destinations, raw)
	if err == nil || !IsTransient(err) {
		return resp, err
	}

	if log == nil {
		log = slog.Default()
	}
	log.WarnContext(ctx, "transient transport error, retrying once",
		slog.String("client", c.Name()),
		slog.Any("error", err),
	)
	metrics.TransportRetries.WithLabelValues(c.Name()).Inc()

	return c.SendRaw(ctx, destinations, raw)
}
