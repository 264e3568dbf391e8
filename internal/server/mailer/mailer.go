// Package mailer delivers password-reset emails. SMTPSender talks to a real
// SMTP relay; LogSender writes the mail to the log for local development.
package mailer

import (
	"context"
	"time"
)

// ResetCodeNotification is the content of a "your reset code" email.
type ResetCodeNotification struct {
	Email     string
	Code      string
	ExpiresAt time.Time
	Validity  time.Duration
}

// Sender delivers password-reset related emails.
type Sender interface {
	SendResetCode(ctx context.Context, n ResetCodeNotification) error
	SendPasswordChanged(ctx context.Context, email string) error
}
