package mail_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickethub/tickethub/pkg/mail"
)

type recorder struct {
	from string
	to   []string
	raw  string
	err  error
}

func (r *recorder) Deliver(_ context.Context, from string, to []string, raw []byte) error {
	r.from, r.to, r.raw = from, to, string(raw)
	return r.err
}

var cfg = mail.SMTP{From: "no-reply@tickethub.io", FromName: "TicketHub"}

func TestSend_RendersHeadersAndBody(t *testing.T) {
	rec := &recorder{}
	m := mail.NewWithTransport(cfg, rec)

	err := m.To("ada@x.io").Subject("Reset your password").HTML("<a href=\"u\">reset</a>").Send(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "no-reply@tickethub.io", rec.from)
	assert.Equal(t, []string{"ada@x.io"}, rec.to)
	assert.Contains(t, rec.raw, "To: ada@x.io\r\n")
	assert.Contains(t, rec.raw, "Subject: Reset your password\r\n")
	assert.Contains(t, rec.raw, "Content-Type: text/html")

	head, body, ok := strings.Cut(rec.raw, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, head, "MIME-Version: 1.0")
	assert.Equal(t, "<a href=\"u\">reset</a>", body)
}

func TestSend_PlainText(t *testing.T) {
	rec := &recorder{}
	err := mail.NewWithTransport(cfg, rec).To("a@x.io").Subject("s").Text("code 123456").Send(context.Background())
	require.NoError(t, err)
	assert.Contains(t, rec.raw, "Content-Type: text/plain")
}

func TestSend_RejectsHeaderInjection(t *testing.T) {
	rec := &recorder{}
	m := mail.NewWithTransport(cfg, rec)

	err := m.To("a@x.io").Subject("hi\r\nBcc: evil@x.io").Text("x").Send(context.Background())
	assert.ErrorIs(t, err, mail.ErrHeaderInjection)

	err = m.To("a@x.io\nBcc: evil@x.io").Subject("hi").Text("x").Send(context.Background())
	assert.ErrorIs(t, err, mail.ErrHeaderInjection)
	assert.Empty(t, rec.raw)
}

func TestSend_NoRecipients(t *testing.T) {
	err := mail.NewWithTransport(cfg, &recorder{}).To().Subject("s").Send(context.Background())
	assert.Error(t, err)
}

func TestSend_WrapsTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	err := mail.NewWithTransport(cfg, &recorder{err: boom}).To("a@x.io").Send(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNew_LogTransportWhenHostEmpty(t *testing.T) {
	err := mail.New(mail.SMTP{From: "f@x.io"}).To("a@x.io").Subject("s").Text("b").Send(context.Background())
	assert.NoError(t, err)
}
