package application

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// Mailer delivers one-time codes out of band.
type Mailer interface {
	SendCode(ctx context.Context, recipient, code string, ttl time.Duration) error
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends codes over SMTP, upgrading the connection with STARTTLS
// and authenticating when credentials are configured.
type SMTPMailer struct {
	cfg     SMTPConfig
	timeout time.Duration
}

// NewSMTPMailer constructs an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg, timeout: 30 * time.Second}
}

// SendCode implements Mailer.
func (m *SMTPMailer) SendCode(ctx context.Context, recipient, code string, ttl time.Duration) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	dialer := net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.timeout))
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return fmt.Errorf("smtp server %s does not offer STARTTLS", addr)
	}
	if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}
	if m.cfg.Username != "" && m.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildCodeMessage(m.cfg.From, recipient, code, ttl)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

func buildCodeMessage(from, recipient, code string, ttl time.Duration) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", recipient)
	buf.WriteString("Subject: Your Desk Reservation OTP\r\n")
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	fmt.Fprintf(&buf, "Your OTP code is %s. It expires in %d minutes.\r\n", code, int(ttl.Minutes()))
	return buf.Bytes()
}

// LogMailer writes codes to the log. It stands in for SMTP in development.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: defaultLogger(logger)}
}

// SendCode implements Mailer.
func (m *LogMailer) SendCode(ctx context.Context, recipient, code string, ttl time.Duration) error {
	m.logger.WarnContext(ctx, "SMTP not configured; logging one-time code",
		"recipient", recipient,
		"code", code,
		"expires_in", ttl.String(),
	)
	return nil
}
