// Package mailer delivers transactional email over SMTP. A single client is
// constructed at startup and injected into the handlers; each send is one
// attempt with no retry.
package mailer

import (
	"context"
	"errors"
	"fmt"

	mail "github.com/wneessen/go-mail"
)

// ErrNotConfigured is returned when SMTP settings were not provided. The
// server still runs without them; mail call sites log and move on.
var ErrNotConfigured = errors.New("smtp is not configured")

// Config carries the SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // sender address, e.g. no-reply@lumoflow.app
	FromName string // display name on outgoing mail
}

// SMTPMailer sends transactional mail through a single SMTP relay.
type SMTPMailer struct {
	cfg    Config
	client *mail.Client
}

// New builds an SMTPMailer from cfg. It returns ErrNotConfigured when the
// host, credentials or sender address are missing rather than failing later
// mid-request.
func New(cfg Config) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" || cfg.From == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("mailer: build client: %w", err)
	}
	return &SMTPMailer{cfg: cfg, client: client}, nil
}

// Send delivers one HTML message. Transport failures (auth, connect,
// recipient rejected) are wrapped and returned; there is no retry.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
		return fmt.Errorf("mailer: from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mailer: to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}
	return nil
}

// SendResetCode mails the plaintext reset code to the account holder.
func (m *SMTPMailer) SendResetCode(ctx context.Context, to, code string) error {
	body := fmt.Sprintf(
		"<p>Your LumoFlow password reset code is <b>%s</b>.</p><p>The code expires in 10 minutes. If you did not request a reset, you can ignore this email.</p>",
		code)
	return m.Send(ctx, to, "Your LumoFlow password reset code", body)
}

// SendPasswordChanged mails a confirmation after a successful reset.
func (m *SMTPMailer) SendPasswordChanged(ctx context.Context, to string) error {
	body := "<p>Your LumoFlow password was changed. If this wasn't you, request a new reset code immediately.</p>"
	return m.Send(ctx, to, "Your LumoFlow password was changed", body)
}
