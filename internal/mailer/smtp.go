package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig is the process-wide SMTP configuration (spec §6's
// "Environment ... SMTP credentials"). Unlike the teacher's SMTPConfig,
// which is loaded per-tenant from a JSONB column, this system has exactly
// one mail account, so the config is loaded once at process start.
type SMTPConfig struct {
	Host    string
	Port    int
	User    string
	Pass    string
	From    string
	TLSMode string // "starttls" or "tls"
}

// SMTPSender implements Mailer over a direct SMTP connection, grounded on
// the teacher's SMTPProvider (SSRF host validation, STARTTLS/TLS dial,
// sanitized addresses) but without per-tenant credential decryption, since
// there is exactly one account here.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender validates cfg and returns a sender, or an error if the
// host/port/from address fail validation.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if err := validateSMTPHost(cfg.Host, cfg.Port); err != nil {
		return nil, fmt.Errorf("mailer: invalid smtp config: %w", err)
	}
	if _, err := sanitizeAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("mailer: invalid from address: %w", err)
	}
	return &SMTPSender{cfg: cfg}, nil
}

func (s *SMTPSender) Deliver(ctx context.Context, to, subject, bodyHTML, bodyText string) (Status, error) {
	// Re-validate on every send, not just at construction: a hostname can
	// resolve to a public IP at config time and to a loopback/private
	// address later (DNS rebinding).
	if err := validateSMTPHost(s.cfg.Host, s.cfg.Port); err != nil {
		return StatusTransientFailure, fmt.Errorf("mailer: smtp host rejected: %w", err)
	}

	toAddr, err := sanitizeAddress(to)
	if err != nil {
		return StatusTransientFailure, fmt.Errorf("mailer: invalid recipient: %w", err)
	}
	fromAddr, err := sanitizeAddress(s.cfg.From)
	if err != nil {
		return StatusTransientFailure, fmt.Errorf("mailer: invalid from: %w", err)
	}

	message := buildMessage(fromAddr, toAddr, subject, bodyHTML, bodyText)
	serverAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	dialer := &net.Dialer{Timeout: 5 * time.Second}

	var conn net.Conn
	if s.cfg.TLSMode == "tls" {
		tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
		conn, err = tls.DialWithDialer(dialer, "tcp", serverAddr, tlsCfg)
	} else {
		conn, err = dialer.Dial("tcp", serverAddr)
	}
	if err != nil {
		return StatusTransientFailure, fmt.Errorf("mailer: dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return StatusTransientFailure, fmt.Errorf("mailer: new client: %w", err)
	}
	defer client.Quit()

	if s.cfg.TLSMode == "starttls" {
		tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsCfg); err != nil {
			return StatusTransientFailure, fmt.Errorf("mailer: starttls: %w", err)
		}
	}

	if s.cfg.User != "" {
		auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return StatusTransientFailure, fmt.Errorf("mailer: auth: %w", err)
		}
	}

	if err := client.Mail(fromAddr.Address); err != nil {
		return StatusTransientFailure, fmt.Errorf("mailer: mail from: %w", err)
	}
	if err := client.Rcpt(toAddr.Address); err != nil {
		return StatusTransientFailure, fmt.Errorf("mailer: rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return StatusTransientFailure, fmt.Errorf("mailer: data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return StatusTransientFailure, fmt.Errorf("mailer: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return StatusTransientFailure, fmt.Errorf("mailer: close body: %w", err)
	}

	return StatusOK, nil
}

func buildMessage(from, to *mail.Address, subject, bodyHTML, bodyText string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if bodyHTML != "" {
		b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
		b.WriteString(bodyHTML)
	} else {
		b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
		b.WriteString(bodyText)
	}
	return []byte(b.String())
}

func sanitizeAddress(raw string) (*mail.Address, error) {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return nil, fmt.Errorf("address contains control characters")
	}
	return addr, nil
}

// validateSMTPHost rejects loopback/private/link-local targets, the same
// SSRF guard the teacher's ValidateSMTPHost applies, generalized from
// multi-tenant config to this process's single SMTP target.
func validateSMTPHost(host string, port int) error {
	if host == "" {
		return fmt.Errorf("host is empty")
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// Host may not yet be resolvable in a test environment; allow it
		// through and let the dial fail instead of blocking configuration.
		return nil
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("smtp host %s resolves to a disallowed address %s", host, ip)
		}
	}
	return nil
}
