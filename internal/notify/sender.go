package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// ErrMailerNotConfigured is returned when no SMTP host is set.
var ErrMailerNotConfigured = errors.New("mailer not configured")

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds SMTP settings for SMTPSender.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	FromEmail  string
	FromName   string
	AdminEmail string
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends email through an SMTP relay.
type SMTPSender struct {
	config SMTPConfig
	dialer mailDialer
	log    zerolog.Logger
}

// NewSMTPSender creates an SMTP sender. With an empty host every Send fails
// with ErrMailerNotConfigured.
func NewSMTPSender(cfg SMTPConfig, log zerolog.Logger) *SMTPSender {
	s := &SMTPSender{config: cfg, log: log.With().Str("component", "mailer").Logger()}
	if cfg.Host != "" {
		s.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	} else {
		s.log.Warn().Msg("SMTP_HOST not set, emails will not be delivered")
	}
	return s
}

// Send delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.dialer == nil {
		return ErrMailerNotConfigured
	}
	if msg.To == "" {
		return fmt.Errorf("no recipients specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.dialer.DialAndSend(s.build(msg))
}

func (s *SMTPSender) build(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.config.FromEmail, s.config.FromName)
	m.SetHeader("To", msg.To)
	if s.config.AdminEmail != "" {
		m.SetHeader("Bcc", s.config.AdminEmail)
	}
	m.SetHeader("Subject", msg.Subject)

	if msg.HTML != "" {
		m.SetBody("text/html", msg.HTML)
		if msg.Text != "" {
			m.AddAlternative("text/plain", msg.Text)
		}
	} else {
		m.SetBody("text/plain", msg.Text)
	}
	return m
}
