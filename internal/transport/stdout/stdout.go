// Package stdout implements a transport.Client that prints messages to standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/shineum/ses-mailer/internal/transport"
)

// Client prints raw messages in a human-readable frame.
type Client struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Client that writes to os.Stdout.
func New() *Client {
	return &Client{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Client that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Client {
	return &Client{writer: w}
}

// SendRaw prints the destinations and the raw message. It answers like an
// accepting provider: a generated message id and status 200.
func (c *Client) SendRaw(_ context.Context, destinations []string, raw string) (transport.Response, error) {
	id := uuid.NewString()

	var b strings.Builder
	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("Message-Id: %s\n", id))
	b.WriteString(fmt.Sprintf("Destinations: %s\n", strings.Join(destinations, ", ")))
	b.WriteString(fmt.Sprintf("Size: %s\n", formatSize(len(raw))))
	b.WriteString("----------------------------------------\n")
	b.WriteString(strings.ReplaceAll(raw, "\r\n", "\n"))
	if !strings.HasSuffix(raw, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("========================================\n")

	if _, err := fmt.Fprint(c.writer, b.String()); err != nil {
		return transport.Response{}, fmt.Errorf("%w: stdout: %w", transport.ErrSendFailed, err)
	}

	return transport.Response{MessageID: id, StatusCode: http.StatusOK}, nil
}

// Name returns the client name.
func (c *Client) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
