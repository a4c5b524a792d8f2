package jobs

import (
	"context"
	"crypto/tls"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/infra/config"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer sends HTML mail through an SMTP relay.
type SMTPMailer struct {
	dialer dialer
	from   string
}

// NewSMTPMailer builds a mailer from the email settings. Certificate checks are skipped only when
// cfg.InsecureSkipVerify is set.
func NewSMTPMailer(cfg config.EmailSettings) *SMTPMailer {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	if cfg.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{ServerName: cfg.SMTPHost, InsecureSkipVerify: true} //nolint:gosec
	}
	return &SMTPMailer{dialer: d, from: cfg.From}
}

// Send delivers one HTML message to a single recipient.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

var _ port.Mailer = (*SMTPMailer)(nil)
