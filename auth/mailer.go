package auth

import (
	"context"

	"go.uber.org/zap"
)

// Mailer delivers password recovery links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogMailer writes recovery links to the log instead of sending e-mail.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.logger.Info("password reset requested",
		zap.String("email", email),
		zap.String("link", link))
	return nil
}
