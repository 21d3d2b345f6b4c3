package mailer

import (
	"context"
	"log/slog"
	"time"

	"github.com/medauth/medauth"
)

// Log writes codes to a structured logger instead of a mailbox. For
// development and tests only; never wire it in production, the codes are
// secrets.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log-only mailer. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) SendOTP(ctx context.Context, to string, purpose medauth.OTPPurpose, code string, ttl time.Duration) error {
	l.logger.InfoContext(ctx, "otp issued",
		slog.String("to", to),
		slog.String("purpose", string(purpose)),
		slog.String("code", code),
		slog.Duration("ttl", ttl),
	)
	return nil
}
