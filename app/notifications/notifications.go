// Package notifications defines the messages the auth flows send.
package notifications

import (
	"fmt"
	"html"
	"time"

	"github.com/tickethub/tickethub/pkg/notification"
)

// PasswordReset carries the one-hour reset link.
type PasswordReset struct {
	URL string
}

func (PasswordReset) Via() []string { return []string{notification.ChannelMail} }

func (n PasswordReset) ToMail() notification.MailData {
	link := html.EscapeString(n.URL)
	return notification.MailData{
		Subject: "Reset your TicketHub password",
		HTML: fmt.Sprintf(`<p>We received a request to reset your password.</p>
<p><a href="%s">Choose a new password</a></p>
<p>The link expires in one hour. If you did not ask for this, ignore this email.</p>`, link),
	}
}

// VerificationCode carries an email verification OTP.
type VerificationCode struct {
	Code string
	TTL  time.Duration
}

func (VerificationCode) Via() []string { return []string{notification.ChannelMail} }

func (n VerificationCode) ToMail() notification.MailData {
	return notification.MailData{
		Subject: "Your TicketHub verification code",
		HTML: fmt.Sprintf(`<p>Your verification code is <strong>%s</strong>.</p>
<p>It expires in %s.</p>`, html.EscapeString(n.Code), humanize(n.TTL)),
	}
}

func humanize(d time.Duration) string {
	if m := int(d.Minutes()); m >= 1 && d%time.Minute == 0 {
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
