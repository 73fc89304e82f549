// Package email defines the outbound message model handed to the mailer.
package email

import (
	"net/mail"
	"strings"
)

// Address is a single mailbox with an optional display name.
type Address struct {
	Address string
	Name    string
}

// String formats the address for use in a header.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return (&mail.Address{Name: a.Name, Address: a.Address}).String()
}

// Message represents an outgoing email message.
// To, Cc and Bcc keep the order in which the caller added recipients.
type Message struct {
	From        Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	ReplyTo     []Address
	Subject     string
	MessageID   string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment

	// Raw is the already serialized message, headers included.
	// When set, Serialize returns it untouched.
	Raw string
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Addresses returns the bare addresses of the given list in order.
func Addresses(list []Address) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

// joinAddresses formats a header value for an address list.
func joinAddresses(list []Address) string {
	parts := make([]string, 0, len(list))
	for _, a := range list {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}
