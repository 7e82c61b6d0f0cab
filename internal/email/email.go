// Package email renders and delivers the transactional mail behind
// notification triggers. Bodies are rendered up front and stored on the
// notification outbox, so delivery only needs a single generic send.
package email

import "context"

// Sender delivers an already rendered email.
type Sender interface {
	SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error
}

// NoopSender is used when email delivery is disabled. Sends succeed without
// doing anything so outbox records settle instead of retrying forever.
type NoopSender struct{}

func (NoopSender) SendCustomEmail(context.Context, string, string, string) error { return nil }
