// Package mail delivers the few emails Pur Beurre sends (password resets).
//
// Three backends implement Mailer:
//   - SESMailer sends through Amazon SES (production)
//   - FileMailer writes each message to a file (development)
//   - Outbox keeps messages in memory (tests)
package mail

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Validate checks the recipient and that the message has a subject.
func (m Message) Validate() error {
	if _, err := netmail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("mail: invalid recipient %q: %w", m.To, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("mail: empty subject")
	}
	return nil
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
