// Package email delivers magic-link mail. The raw login token travels only
// through this collaborator, embedded in the link.
package email

import (
	"fmt"
	"net/smtp"

	"common-grounds-backend/internal/config"

	"github.com/rs/zerolog/log"
)

// Sender delivers a login link to a recipient
type Sender interface {
	SendLoginLink(to, link string) error
}

// SMTPSender sends mail through an SMTP relay
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPSender creates an SMTP-backed sender
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
		from: cfg.From,
	}
}

// SendLoginLink sends the sign-in email
func (s *SMTPSender) SendLoginLink(to, link string) error {
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Sign in to Common Grounds\r\n\r\nClick to sign in: %s\r\n\r\nThis link expires in 15 minutes.\r\n",
		s.from, to, link,
	)
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send login email: %w", err)
	}
	return nil
}

// LogSender logs links instead of sending, for local development
type LogSender struct{}

// SendLoginLink logs the link
func (LogSender) SendLoginLink(to, link string) error {
	log.Info().Str("to", to).Str("link", link).Msg("Login link (dev mode, not sent)")
	return nil
}

// FromConfig returns the sender selected by config
func FromConfig(cfg config.EmailConfig) Sender {
	if cfg.Mode == "smtp" {
		return NewSMTPSender(cfg)
	}
	return LogSender{}
}
