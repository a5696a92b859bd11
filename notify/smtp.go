package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"printportal-backend/apperr"
	"printportal-backend/config"
)

// SMTPSender delivers HTML mail over SMTP. Port 465 uses implicit TLS,
// other ports upgrade with STARTTLS when the server offers it.
type SMTPSender struct {
	cfg        config.SMTPConfig
	production bool
	dialer     *net.Dialer
}

func NewSMTPSender(cfg config.SMTPConfig, production bool) *SMTPSender {
	return &SMTPSender{cfg: cfg, production: production, dialer: &net.Dialer{Timeout: 15 * time.Second}}
}

// Check reports configuration problems without connecting.
func (s *SMTPSender) Check() error {
	if s.cfg.Host == "" || s.cfg.User == "" || s.cfg.Pass == "" {
		return apperr.Misconfigured("SMTP configuration is missing. Please set SMTP_HOST, SMTP_USER, and SMTP_PASS")
	}
	if s.production && (s.cfg.Host == "localhost" || s.cfg.Host == "127.0.0.1") {
		return apperr.Misconfigured("Cannot use a localhost SMTP server in production")
	}
	return nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := s.Check(); err != nil {
		return err
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	conn, err := s.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if s.cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(addressOf(from)); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(from, msg)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return c.Quit()
}

func (s *SMTPSender) dial(ctx context.Context, addr string) (net.Conn, error) {
	if s.cfg.Port == 465 {
		td := &tls.Dialer{NetDialer: s.dialer, Config: &tls.Config{ServerName: s.cfg.Host}}
		return td.DialContext(ctx, "tcp", addr)
	}
	return s.dialer.DialContext(ctx, "tcp", addr)
}

// addressOf extracts the bare address from "Name <addr>".
func addressOf(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return from
}

func buildMessage(from string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
