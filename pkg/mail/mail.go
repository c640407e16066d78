// Package mail builds and sends email over SMTP.
//
//	m := mail.New(mail.FromConfig())
//	err := m.To("user@example.com").
//	    Subject("Reset your password").
//	    HTML(body).
//	    Send(ctx)
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/tickethub/tickethub/config"
	"github.com/tickethub/tickethub/pkg/logger"
)

// ErrHeaderInjection is returned when a header value contains CR or LF.
var ErrHeaderInjection = errors.New("mail: header value contains a line break")

// SMTP holds connection settings.
type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// FromConfig reads MAIL_* settings. An empty MAIL_HOST selects the log
// transport, which only writes messages to the logger.
func FromConfig() SMTP {
	return SMTP{
		Host:     config.Get("MAIL_HOST", ""),
		Port:     config.Get("MAIL_PORT", "587"),
		Username: config.Get("MAIL_USERNAME", ""),
		Password: config.Get("MAIL_PASSWORD", ""),
		From:     config.Get("MAIL_FROM", "no-reply@tickethub.local"),
		FromName: config.Get("MAIL_FROM_NAME", "TicketHub"),
	}
}

// Transport delivers a fully rendered message.
type Transport interface {
	Deliver(ctx context.Context, from string, to []string, raw []byte) error
}

// Mailer renders messages and hands them to a Transport.
type Mailer struct {
	cfg       SMTP
	transport Transport
}

// New returns a Mailer over SMTP, or over the log transport when cfg.Host
// is empty.
func New(cfg SMTP) *Mailer {
	if cfg.Host == "" {
		return &Mailer{cfg: cfg, transport: LogTransport{}}
	}
	return &Mailer{cfg: cfg, transport: &smtpTransport{cfg: cfg}}
}

// NewWithTransport is New with an explicit transport.
func NewWithTransport(cfg SMTP, t Transport) *Mailer {
	return &Mailer{cfg: cfg, transport: t}
}

// Message is a fluent builder for one email.
type Message struct {
	mailer  *Mailer
	to      []string
	subject string
	body    string
	isHTML  bool
}

// To starts a message to the given recipients.
func (m *Mailer) To(addresses ...string) *Message {
	return &Message{mailer: m, to: addresses, isHTML: true}
}

func (msg *Message) Subject(s string) *Message {
	msg.subject = s
	return msg
}

// HTML sets an HTML body.
func (msg *Message) HTML(body string) *Message {
	msg.body = body
	msg.isHTML = true
	return msg
}

// Text sets a plain-text body.
func (msg *Message) Text(body string) *Message {
	msg.body = body
	msg.isHTML = false
	return msg
}

// Send renders and delivers the message.
func (msg *Message) Send(ctx context.Context) error {
	if len(msg.to) == 0 {
		return errors.New("mail: no recipients")
	}
	for _, v := range append([]string{msg.subject}, msg.to...) {
		if strings.ContainsAny(v, "\r\n") {
			return ErrHeaderInjection
		}
	}

	cfg := msg.mailer.cfg
	raw := msg.render(cfg, time.Now())
	if err := msg.mailer.transport.Deliver(ctx, cfg.From, msg.to, raw); err != nil {
		return fmt.Errorf("mail: deliver: %w", err)
	}
	return nil
}

func (msg *Message) render(cfg SMTP, now time.Time) []byte {
	contentType := "text/plain"
	if msg.isHTML {
		contentType = "text/html"
	}

	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", cfg.FromName), cfg.From)
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(msg.to, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: %s; charset=\"UTF-8\"\r\n", contentType))
	b.WriteString("\r\n")
	b.WriteString(msg.body)
	return []byte(b.String())
}

// ─── Transports ───────────────────────────────────────────────────────────────

type smtpTransport struct {
	cfg SMTP
}

// Deliver uses implicit TLS on port 465 and STARTTLS (when offered)
// otherwise.
func (t *smtpTransport) Deliver(ctx context.Context, from string, to []string, raw []byte) error {
	addr := net.JoinHostPort(t.cfg.Host, t.cfg.Port)
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var conn net.Conn
	var err error
	if t.cfg.Port == "465" {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: t.cfg.Host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok && t.cfg.Port != "465" {
		if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
			return err
		}
	}
	if t.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// LogTransport writes messages to the logger instead of sending them. The
// body is logged at debug level only.
type LogTransport struct{}

func (LogTransport) Deliver(ctx context.Context, from string, to []string, raw []byte) error {
	log := logger.WithCtx(ctx)
	log.Info("mail: log transport", "from", from, "to", strings.Join(to, ","), "bytes", len(raw))
	log.Debug("mail: log transport body", "raw", string(raw))
	return nil
}
