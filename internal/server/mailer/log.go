package mailer

import (
	"context"

	"github.com/dmitrijs2005/taskmanager/internal/logging"
)

// LogSender never sends anything; it logs what would have been sent.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendResetCode(ctx context.Context, n ResetCodeNotification) error {
	s.logger.Info(ctx, "password reset code issued",
		"email", n.Email,
		"code", n.Code,
		"expires_at", n.ExpiresAt,
	)
	return nil
}

func (s *LogSender) SendPasswordChanged(ctx context.Context, email string) error {
	s.logger.Info(ctx, "password changed confirmation", "email", email)
	return nil
}
