package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/medauth/medauth"
)

// SMTPConfig configures an implicit-TLS SMTP mailer.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string

	// From defaults to Username when empty.
	From string
}

// SMTP delivers one-time codes over SMTP with implicit TLS (port 465
// style). Each Send dials a fresh connection; OTP volume does not justify
// connection pooling.
type SMTP struct {
	cfg SMTPConfig
}

// NewSMTP creates an SMTP mailer.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port == "" {
		return nil, fmt.Errorf("smtp host and port required")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTP{cfg: cfg}, nil
}

// SendOTP delivers the code. The context deadline bounds the dial; SMTP
// command exchange after a successful dial runs to completion.
func (s *SMTP) SendOTP(ctx context.Context, to string, purpose medauth.OTPPurpose, code string, ttl time.Duration) error {
	subject, intro := purposeCopy(purpose)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\nYour code: %s\r\n\r\nIt expires in %d minutes.\r\n",
		intro, code, int(ttl.Minutes()))

	addr := s.cfg.Host + ":" + s.cfg.Port
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    tlsConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Quit()

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg.String())); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return nil
}

func purposeCopy(purpose medauth.OTPPurpose) (subject, intro string) {
	if purpose == medauth.PurposePasswordReset {
		return "Your password reset code", "Use this code to reset your password."
	}
	return "Verify your email", "Use this code to verify your email address."
}
