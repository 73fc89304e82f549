package email

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

// ErrMissingSender is returned when a message without a raw form has no From address.
var ErrMissingSender = errors.New("email: message has no sender")

// ErrInvalidMessageID is returned when a Message-ID contains a line break.
var ErrInvalidMessageID = errors.New("email: message id contains a line break")

// now is replaced in tests to get a stable Date header.
var now = time.Now

// Serialize returns the raw RFC 5322 form of the message.
// Bcc recipients are never written to the headers.
func (m *Message) Serialize() (string, error) {
	if m.Raw != "" {
		return m.Raw, nil
	}
	if m.From.Address == "" {
		return "", ErrMissingSender
	}
	if strings.ContainsAny(m.MessageID, "\r\n") {
		return "", ErrInvalidMessageID
	}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	if len(m.ReplyTo) > 0 {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", joinAddresses(m.ReplyTo))
	}
	if len(m.To) > 0 {
		fmt.Fprintf(&buf, "To: %s\r\n", joinAddresses(m.To))
	}
	if len(m.Cc) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", joinAddresses(m.Cc))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now().Format(time.RFC1123Z))
	if m.MessageID != "" {
		fmt.Fprintf(&buf, "Message-ID: %s\r\n", m.MessageID)
	}
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	var err error
	switch {
	case len(m.Attachments) > 0:
		err = m.writeMixed(&buf)
	case m.TextBody != "" && m.HTMLBody != "":
		err = m.writeAlternative(&buf, nil)
	case m.HTMLBody != "":
		err = writeSinglePart(&buf, "text/html", m.HTMLBody)
	default:
		err = writeSinglePart(&buf, "text/plain", m.TextBody)
	}
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}

// writeSinglePart writes a non-multipart body with its content headers.
func writeSinglePart(buf *bytes.Buffer, mediaType, body string) error {
	fmt.Fprintf(buf, "Content-Type: %s; charset=UTF-8\r\n", mediaType)
	fmt.Fprintf(buf, "Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	return writeQuotedPrintable(buf, body)
}

// writeAlternative writes text and html bodies as multipart/alternative.
// With a parent writer the alternative becomes a nested part.
func (m *Message) writeAlternative(buf *bytes.Buffer, parent *multipart.Writer) error {
	var target *bytes.Buffer
	if parent == nil {
		target = buf
	} else {
		target = &bytes.Buffer{}
	}

	writer := multipart.NewWriter(target)
	if parent == nil {
		fmt.Fprintf(buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", writer.Boundary())
	}

	for _, body := range []struct{ mediaType, content string }{
		{"text/plain", m.TextBody},
		{"text/html", m.HTMLBody},
	} {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", body.mediaType+"; charset=UTF-8")
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		part, err := writer.CreatePart(header)
		if err != nil {
			return fmt.Errorf("failed to create %s part: %w", body.mediaType, err)
		}
		if err := writeQuotedPrintable(part, body.content); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close alternative part: %w", err)
	}

	if parent == nil {
		return nil
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", writer.Boundary()))
	part, err := parent.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create alternative part: %w", err)
	}
	_, err = part.Write(target.Bytes())
	return err
}

// writeMixed writes the body followed by base64 encoded attachments.
func (m *Message) writeMixed(buf *bytes.Buffer) error {
	writer := multipart.NewWriter(buf)
	fmt.Fprintf(buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	switch {
	case m.TextBody != "" && m.HTMLBody != "":
		if err := m.writeAlternative(buf, writer); err != nil {
			return err
		}
	case m.HTMLBody != "" || m.TextBody != "":
		mediaType, content := "text/plain", m.TextBody
		if m.HTMLBody != "" {
			mediaType, content = "text/html", m.HTMLBody
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", mediaType+"; charset=UTF-8")
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		part, err := writer.CreatePart(header)
		if err != nil {
			return fmt.Errorf("failed to create body part: %w", err)
		}
		if err := writeQuotedPrintable(part, content); err != nil {
			return err
		}
	}

	for _, att := range m.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", contentType)
		header.Set("Content-Transfer-Encoding", "base64")
		header.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", mime.QEncoding.Encode("UTF-8", att.Filename)))

		part, err := writer.CreatePart(header)
		if err != nil {
			return fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write([]byte(encodeBase64WithLineBreaks(att.Content))); err != nil {
			return fmt.Errorf("failed to write attachment %q: %w", att.Filename, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart message: %w", err)
	}
	return nil
}

func writeQuotedPrintable(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	return qp.Close()
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
