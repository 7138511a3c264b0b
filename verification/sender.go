package verification

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	mail "github.com/go-mail/mail"
)

// Sender delivers a one-time verification code to an email address.
type Sender interface {
	SendOTP(to string, code string) error
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	From     string `json:"from"`
	Username string `json:"username"`
	Password string `json:"password"`

	// InsecureSkipVerify disables certificate verification, for local
	// development against a throwaway SMTP server only.
	InsecureSkipVerify bool `json:"insecure_skip_verify"`
}

// SMTPSender sends verification emails over SMTP with STARTTLS.
type SMTPSender struct {
	config SMTPConfig
}

func NewSMTPSender(config SMTPConfig) *SMTPSender {
	return &SMTPSender{config: config}
}

func (s *SMTPSender) SendOTP(to string, code string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", otpSubject)
	m.SetBody("text/plain", otpTextBody(code))
	m.AddAlternative("text/html", otpHTMLBody(code))

	d := mail.NewDialer(s.config.Host, s.config.Port, s.config.Username, s.config.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         s.config.Host,
		InsecureSkipVerify: s.config.InsecureSkipVerify,
	}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	slog.Info("verification email sent", "host", s.config.Host)
	return nil
}

// NoopSender drops the email and logs instead. Used when no SMTP server is
// configured, so the rest of the flow stays testable locally.
type NoopSender struct{}

func (NoopSender) SendOTP(to string, code string) error {
	slog.Info("email delivery disabled, verification code not sent", "to", to)
	return nil
}
