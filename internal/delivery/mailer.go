// Package delivery sends formatted query reports to external channels.
package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dynaquery/internal/domain"
)

const dialTimeout = 30 * time.Second

// Compile-time check.
var _ domain.Mailer = (*SMTPMailer)(nil)

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// StartTLS upgrades a plain connection; ImplicitTLS dials with TLS.
	StartTLS    bool
	ImplicitTLS bool
}

// SMTPMailer delivers report emails over SMTP.
type SMTPMailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", cfg.From, err)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg, logger: logger.With("component", "mailer")}, nil
}

// Send delivers msg. Errors are wrapped in domain.DeliveryError.
func (m *SMTPMailer) Send(ctx context.Context, msg *domain.EmailMessage) error {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return domain.ErrDelivery(err, "invalid recipient")
	}
	body, err := BuildMessage(m.cfg.From, msg, "dq-"+uuid.NewString())
	if err != nil {
		return domain.ErrDelivery(err, "build message")
	}
	if err := m.send(ctx, to.Address, body); err != nil {
		m.logger.Warn("email delivery failed", "error", err)
		return domain.ErrDelivery(err, "send email")
	}
	m.logger.Info("email delivered", "attachment_bytes", len(msg.CSVAttachment))
	return nil
}

func (m *SMTPMailer) send(ctx context.Context, to string, body []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	d := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if m.cfg.ImplicitTLS {
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect to smtp server: %w", err)
	}
	defer conn.Close() //nolint:errcheck
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close() //nolint:errcheck

	if m.cfg.StartTLS && !m.cfg.ImplicitTLS {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("start tls: %w", err)
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp authentication: %w", err)
		}
	}

	from, _ := mail.ParseAddress(m.cfg.From)
	if err := client.Mail(from.Address); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data writer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data writer: %w", err)
	}
	return client.Quit()
}

// BuildMessage renders msg as a MIME message: an HTML part plus an optional
// base64 CSV attachment in a multipart/mixed envelope.
func BuildMessage(from string, msg *domain.EmailMessage, boundary string) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	toAddr, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", fromAddr.String())
	fmt.Fprintf(&b, "To: %s\r\n", toAddr.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.CSVAttachment) == 0 {
		if err := writeHTMLPart(&b, msg.HTMLBody); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	}

	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\n", boundary)
	if err := writeHTMLPart(&b, msg.HTMLBody); err != nil {
		return nil, err
	}

	name := msg.CSVFilename
	if name == "" {
		name = "report.csv"
	}
	name = strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(name)
	fmt.Fprintf(&b, "\r\n--%s\r\n", boundary)
	fmt.Fprintf(&b, "Content-Type: text/csv; charset=UTF-8; name=%q\r\n", name)
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", name)

	encoded := base64.StdEncoding.EncodeToString(msg.CSVAttachment)
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		b.WriteString(encoded[i:end])
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes(), nil
}

func writeHTMLPart(b *bytes.Buffer, html string) error {
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	qp := quotedprintable.NewWriter(b)
	if _, err := qp.Write([]byte(html)); err != nil {
		return fmt.Errorf("encode html body: %w", err)
	}
	return qp.Close()
}
