package stdout

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shineum/ses-mailer/internal/transport"
)

func TestSendRaw_PrintsMessage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewWithWriter(&buf)

	raw := "From: sender@example.com\r\nSubject: Monthly Report\r\n\r\nPlease find the report attached."
	resp, err := c.SendRaw(context.Background(), []string{"alice@example.com", "bob@example.com"}, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Destinations: alice@example.com, bob@example.com") {
		t.Error("output missing destinations")
	}
	if !strings.Contains(output, "Subject: Monthly Report\n") {
		t.Error("output missing raw headers with normalized line endings")
	}
	if !strings.Contains(output, "Please find the report attached.\n") {
		t.Error("output missing body text")
	}
	if !strings.Contains(output, "Message-Id: "+resp.MessageID) {
		t.Error("output should print the generated message id")
	}
	if !strings.HasPrefix(output, "========================================\n") {
		t.Error("output should start with separator line")
	}
	if !strings.HasSuffix(output, "========================================\n") {
		t.Error("output should end with separator line")
	}
	if !resp.Successful() {
		t.Errorf("response should be successful, got %+v", resp)
	}
}

func TestSendRaw_UniqueIDs(t *testing.T) {
	t.Parallel()

	c := NewWithWriter(&bytes.Buffer{})
	first, _ := c.SendRaw(context.Background(), []string{"a@example.com"}, "x")
	second, _ := c.SendRaw(context.Background(), []string{"a@example.com"}, "x")
	if first.MessageID == second.MessageID {
		t.Errorf("message ids should differ, both %q", first.MessageID)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestSendRaw_WriteError(t *testing.T) {
	t.Parallel()

	c := NewWithWriter(failingWriter{})
	_, err := c.SendRaw(context.Background(), []string{"a@example.com"}, "x")
	if !errors.Is(err, transport.ErrSendFailed) {
		t.Fatalf("error: got %v, want ErrSendFailed", err)
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	p := New()
	if p.Name() != "stdout" {
		t.Errorf("Name: got %q, want %q", p.Name(), "stdout")
	}
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		bytes int
		want  string
	}{
		{name: "zero bytes", bytes: 0, want: "0 B"},
		{name: "small bytes", bytes: 512, want: "512 B"},
		{name: "kilobytes", bytes: 46080, want: "45.0 KB"},
		{name: "megabytes", bytes: 1258291, want: "1.2 MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := formatSize(tt.bytes)
			if got != tt.want {
				t.Errorf("formatSize(%d): got %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}
