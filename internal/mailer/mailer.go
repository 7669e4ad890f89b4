// Package mailer sends plain-text notification mail.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/property-backoffice/internal/config"
)

// Message is one outbound email.
type Message struct {
	To      []string
	CC      []string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type smtpMailer struct {
	cfg    config.NotificationConfig
	logger *zap.Logger
}

// NewSMTPMailer builds a mailer backed by plain SMTP with auth.
func NewSMTPMailer(cfg config.NotificationConfig, logger *zap.Logger) Mailer {
	return &smtpMailer{cfg: cfg, logger: logger}
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if m.cfg.SMTPHost == "" {
		m.logger.Debug("smtp host not configured, skipping mail",
			zap.String("subject", msg.Subject))
		return nil
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("mailer: message has no recipients")
	}

	recipients := append(append([]string{}, msg.To...), msg.CC...)
	headers := []string{
		"From: " + m.cfg.EmailFrom,
		"To: " + strings.Join(msg.To, ", "),
	}
	if len(msg.CC) > 0 {
		headers = append(headers, "Cc: "+strings.Join(msg.CC, ", "))
	}
	headers = append(headers,
		"Subject: "+msg.Subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	)
	payload := []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.Body)

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	var auth smtp.Auth
	if m.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, m.cfg.EmailFrom, recipients, payload); err != nil {
		return fmt.Errorf("mailer: send failed: %w", err)
	}
	m.logger.Info("mail sent",
		zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}
