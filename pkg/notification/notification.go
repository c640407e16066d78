// Package notification delivers user-facing messages through channels.
//
// Define a notification:
//
//	type PasswordReset struct{ URL string }
//	func (n PasswordReset) Via() []string { return []string{notification.ChannelMail} }
//	func (n PasswordReset) ToMail() notification.MailData {
//	    return notification.MailData{Subject: "Reset your password", HTML: "..."}
//	}
//
// Send it:
//
//	d := notification.New(mailer, q) // q may be nil for inline delivery
//	err := d.Notify(ctx, "user@example.com", PasswordReset{URL: link})
package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/tickethub/tickethub/pkg/logger"
	"github.com/tickethub/tickethub/pkg/mail"
	"github.com/tickethub/tickethub/pkg/queue"
)

const ChannelMail = "mail"

// MailData is the rendered content of a mail notification.
type MailData struct {
	Subject string
	HTML    string
	Text    string
}

// Notification is anything that can be delivered to a recipient.
type Notification interface {
	// Via returns the channel names to deliver on.
	Via() []string
}

// Mailable supports the mail channel.
type Mailable interface {
	ToMail() MailData
}

// Notifier delivers notifications. Services depend on this interface.
type Notifier interface {
	Notify(ctx context.Context, to string, n Notification) error
}

// ─── Dispatcher ───────────────────────────────────────────────────────────────

// Dispatcher routes notifications to their channels. With a queue the mail
// channel enqueues a MailJob and returns once it is accepted; without one
// the mail is sent inline.
type Dispatcher struct {
	mailer *mail.Mailer
	queue  *queue.Manager
}

func New(mailer *mail.Mailer, q *queue.Manager) *Dispatcher {
	if q != nil {
		RegisterJobs(q, mailer)
	}
	return &Dispatcher{mailer: mailer, queue: q}
}

func (d *Dispatcher) Notify(ctx context.Context, to string, n Notification) error {
	var errs []error
	for _, channel := range n.Via() {
		if err := d.dispatch(ctx, to, channel, n); err != nil {
			logger.WithCtx(ctx).Error("notification: channel failed", "channel", channel, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) dispatch(ctx context.Context, to, channel string, n Notification) error {
	switch channel {
	case ChannelMail:
		m, ok := n.(Mailable)
		if !ok {
			return fmt.Errorf("notification: %T does not implement Mailable", n)
		}
		data := m.ToMail()
		job := &MailJob{To: to, Subject: data.Subject, HTML: data.HTML, Text: data.Text, mailer: d.mailer}
		if d.queue == nil {
			return job.Handle(ctx)
		}
		return d.queue.Dispatch(ctx, job)
	default:
		return fmt.Errorf("notification: unknown channel %q", channel)
	}
}

// ─── Mail job ─────────────────────────────────────────────────────────────────

const mailJobName = "notification.mail"

// MailJob sends one rendered mail from a queue worker.
type MailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`

	mailer *mail.Mailer
}

func (j *MailJob) Name() string { return mailJobName }

func (j *MailJob) Handle(ctx context.Context) error {
	msg := j.mailer.To(j.To).Subject(j.Subject)
	if j.HTML != "" {
		msg = msg.HTML(j.HTML)
	} else {
		msg = msg.Text(j.Text)
	}
	return msg.Send(ctx)
}

// RegisterJobs makes q able to decode and run MailJobs with mailer. Worker
// processes that only drain the queue call this directly.
func RegisterJobs(q *queue.Manager, mailer *mail.Mailer) {
	q.Register(mailJobName, func() queue.Job { return &MailJob{mailer: mailer} })
}
