package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/training-auth/internal/config"
	"github.com/spec-kit/training-auth/internal/domain"
	"github.com/spec-kit/training-auth/internal/repository"
)

// LogMailer resolves the recipient and hands the message to the log sink.
// Template rendering and SMTP delivery belong to the notification platform.
type LogMailer struct {
	users  repository.UserRepository
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewLogMailer creates the mailer.
func NewLogMailer(users repository.UserRepository, logger *zap.Logger, cfg config.NotificationConfig) *LogMailer {
	return &LogMailer{users: users, logger: logger, cfg: cfg}
}

// Send implements Mailer.
func (m *LogMailer) Send(ctx context.Context, identity domain.Identity, kind TemplateKind, payload map[string]string) error {
	if strings.TrimSpace(m.cfg.EmailFrom) == "" {
		return errors.New("mailer: sender address not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	user, err := m.users.GetByID(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("mailer: resolve recipient: %w", err)
	}

	fields := make([]string, 0, len(payload))
	for k := range payload {
		fields = append(fields, k)
	}
	m.logger.Info("email dispatched",
		zap.String("from", m.cfg.EmailFrom),
		zap.String("to", maskEmail(user.Email)),
		zap.String("template", string(kind)),
		zap.Strings("fields", fields))
	return nil
}

func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 1 {
		return "***" + email[max(at, 0):]
	}
	return email[:1] + "***" + email[at:]
}
