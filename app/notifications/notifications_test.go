package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPasswordResetMail(t *testing.T) {
	m := PasswordReset{URL: "http://localhost:3000/reset-password?token=abc&x=1"}.ToMail()
	assert.Equal(t, "Reset your TicketHub password", m.Subject)
	assert.Contains(t, m.HTML, `href="http://localhost:3000/reset-password?token=abc&amp;x=1"`)
}

func TestVerificationCodeMail(t *testing.T) {
	m := VerificationCode{Code: "042917", TTL: 10 * time.Minute}.ToMail()
	assert.Contains(t, m.HTML, "<strong>042917</strong>")
	assert.Contains(t, m.HTML, "10 minutes")
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "1 minute", humanize(time.Minute))
	assert.Equal(t, "1m30s", humanize(90*time.Second))
}
