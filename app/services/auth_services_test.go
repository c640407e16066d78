package services_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/app/notifications"
	"github.com/tickethub/tickethub/app/services"
	"github.com/tickethub/tickethub/pkg/auth"
)

type cachedReset struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ─── Password reset request ───────────────────────────────────────────────────

func TestRequestPasswordReset_SameAnswerForUnknownEmail(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a@x.com", "secret1", models.RoleUser)
	ctx := context.Background()

	known, err := f.auth.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)
	unknown, err := f.auth.RequestPasswordReset(ctx, "nobody@x.com")
	require.NoError(t, err)

	assert.Equal(t, known, unknown)
	assert.Equal(t, services.ResetRequestedMessage, known)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "a@x.com", sent[0].to)
}

func TestRequestPasswordReset_StoresOneHourEntry(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@x.com", "secret1", models.RoleUser)

	_, err := f.auth.RequestPasswordReset(context.Background(), "  A@X.com ")
	require.NoError(t, err)

	token := f.resetToken(t)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), token)

	var entry cachedReset
	found, err := f.cache.Get(context.Background(), "password-reset:"+token, &entry)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, u.ID.Hex(), entry.UserID)
	assert.Equal(t, "a@x.com", entry.Email)
	assert.True(t, entry.ExpiresAt.Equal(f.clock.Now().Add(time.Hour)))

	f.clock.Advance(61 * time.Minute)
	found, err = f.cache.Get(context.Background(), "password-reset:"+token, &entry)
	require.NoError(t, err)
	assert.False(t, found, "entry must expire with the cache TTL")
}

func TestRequestPasswordReset_LinkUsesAppURL(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a@x.com", "secret1", models.RoleUser)

	_, err := f.auth.RequestPasswordReset(context.Background(), "a@x.com")
	require.NoError(t, err)

	token := f.resetToken(t)
	msg := f.notifier.all()[0].n.(notifications.PasswordReset)
	assert.Equal(t, "http://localhost:3000/reset-password?token="+token, msg.URL)
}

// ─── Password reset completion ────────────────────────────────────────────────

func TestResetPassword_Scenario(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@x.com", "oldpass", models.RoleUser)
	ctx := context.Background()

	_, err := f.auth.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)
	token := f.resetToken(t)

	err = f.auth.ResetPassword(ctx, token, "abc12")
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Equal(t, "Password must be at least 6 characters", services.Message(err))

	require.NoError(t, f.auth.ResetPassword(ctx, token, "abc123"))

	var entry cachedReset
	found, err := f.cache.Get(ctx, "password-reset:"+token, &entry)
	require.NoError(t, err)
	assert.False(t, found, "entry is deleted after redemption")

	stored, err := f.repos.Users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(stored.Password, "abc123"))

	err = f.auth.ResetPassword(ctx, token, "abc123")
	assert.ErrorIs(t, err, services.ErrInvalidOrExpiredToken)
	assert.Equal(t, "Invalid or expired reset token", services.Message(err))
}

func TestResetPassword_PasswordPolicy(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@x.com", "oldpass", models.RoleUser)
	ctx := context.Background()

	_, err := f.auth.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)
	token := f.resetToken(t)

	tests := []struct {
		name     string
		password string
		wantMsg  string
	}{
		{"three runes in six bytes", "ééé", "Password must be at least 6 characters"},
		{"longer than bcrypt accepts", strings.Repeat("p", 80), "Password must be at most 72 bytes"},
		{"multibyte over 72 bytes", strings.Repeat("é", 40), "Password must be at most 72 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.auth.ResetPassword(ctx, token, tt.password)
			assert.ErrorIs(t, err, services.ErrValidation)
			assert.Equal(t, tt.wantMsg, services.Message(err))
		})
	}

	// Six runes is enough even when they take twelve bytes.
	require.NoError(t, f.auth.ResetPassword(ctx, token, "éééééé"))
	stored, err := f.repos.Users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(stored.Password, "éééééé"))
}

func TestResetPassword_RequiresTokenAndPassword(t *testing.T) {
	f := newFixture(t)
	err := f.auth.ResetPassword(context.Background(), "", "abc123")
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Equal(t, "Token and password are required", services.Message(err))
}

func TestResetPassword_UnknownToken(t *testing.T) {
	f := newFixture(t)
	err := f.auth.ResetPassword(context.Background(), strings.Repeat("ab", 32), "abc123")
	assert.ErrorIs(t, err, services.ErrInvalidOrExpiredToken)
}

func TestResetPassword_EmbeddedExpiryChecked(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@x.com", "oldpass", models.RoleUser)
	ctx := context.Background()

	key := "password-reset:stale"
	require.NoError(t, f.cache.Set(ctx, key, cachedReset{
		UserID:    u.ID.Hex(),
		Email:     u.Email,
		ExpiresAt: f.clock.Now().Add(-time.Second),
	}, time.Hour))

	err := f.auth.ResetPassword(ctx, "stale", "abc123")
	assert.ErrorIs(t, err, services.ErrExpiredToken)
	assert.Equal(t, "Reset token has expired", services.Message(err))

	var entry cachedReset
	found, err := f.cache.Get(ctx, key, &entry)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResetPassword_ConcurrentRedemptionLocked(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a@x.com", "oldpass", models.RoleUser)
	ctx := context.Background()

	_, err := f.auth.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)
	token := f.resetToken(t)

	held, err := f.cache.Add(ctx, "password-reset-lock:"+token, true, 30*time.Second)
	require.NoError(t, err)
	require.True(t, held)

	err = f.auth.ResetPassword(ctx, token, "abc123")
	assert.ErrorIs(t, err, services.ErrInvalidOrExpiredToken)

	var entry cachedReset
	found, err := f.cache.Get(ctx, "password-reset:"+token, &entry)
	require.NoError(t, err)
	assert.True(t, found, "the losing attempt leaves the token for the winner")
}

func TestResetPassword_AtMostOnceAfterPartialFailure(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@x.com", "oldpass", models.RoleUser)
	ctx := context.Background()

	_, err := f.auth.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)
	token := f.resetToken(t)

	// A first attempt wrote the password, then died before the delete.
	sum := sha256.Sum256([]byte(token))
	first, err := auth.HashPassword("first1")
	require.NoError(t, err)
	applied, err := f.repos.Users.ResetPassword(ctx, u.ID, first, hex.EncodeToString(sum[:]))
	require.NoError(t, err)
	require.True(t, applied)

	err = f.auth.ResetPassword(ctx, token, "second2")
	assert.ErrorIs(t, err, services.ErrInvalidOrExpiredToken)

	stored, err := f.repos.Users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(stored.Password, "first1"))

	var entry cachedReset
	found, err := f.cache.Get(ctx, "password-reset:"+token, &entry)
	require.NoError(t, err)
	assert.False(t, found)
}

// ─── Email verification ───────────────────────────────────────────────────────

func TestVerifyEmail_Flow(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@x.com", "secret1", models.RoleUser)
	ctx := context.Background()

	ack, err := f.auth.SendVerificationCode(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, services.VerificationSentMessage, ack)

	code := f.lastCode(t)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), code)

	var stored string
	found, err := f.cache.Get(ctx, "email-verification:a@x.com", &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, code, stored)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	err = f.auth.VerifyEmail(ctx, "a@x.com", wrong)
	assert.ErrorIs(t, err, services.ErrInvalidOrExpiredOtp)

	require.NoError(t, f.auth.VerifyEmail(ctx, "a@x.com", code))

	got, err := f.repos.Users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)

	err = f.auth.VerifyEmail(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, services.ErrInvalidOrExpiredOtp)
	assert.Equal(t, "Invalid or expired OTP", services.Message(err))
}

func wrongCode(code string, n int) string {
	for {
		guess := fmt.Sprintf("%06d", n)
		if guess != code {
			return guess
		}
		n++
	}
}

func TestVerifyEmail_AttemptsExhausted(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@x.com", "secret1", models.RoleUser)
	ctx := context.Background()

	_, err := f.auth.SendVerificationCode(ctx, "a@x.com")
	require.NoError(t, err)
	code := f.lastCode(t)

	for i := 0; i < 5; i++ {
		err := f.auth.VerifyEmail(ctx, "a@x.com", wrongCode(code, i*7))
		require.ErrorIs(t, err, services.ErrInvalidOrExpiredOtp)
	}

	var stored string
	found, err := f.cache.Get(ctx, "email-verification:a@x.com", &stored)
	require.NoError(t, err)
	assert.False(t, found, "code is discarded after too many misses")

	assert.ErrorIs(t, f.auth.VerifyEmail(ctx, "a@x.com", code), services.ErrInvalidOrExpiredOtp)
	got, err := f.repos.Users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.EmailVerified)

	// A fresh code starts a fresh budget.
	_, err = f.auth.SendVerificationCode(ctx, "a@x.com")
	require.NoError(t, err)
	fresh := f.lastCode(t)
	for i := 0; i < 4; i++ {
		require.ErrorIs(t, f.auth.VerifyEmail(ctx, "a@x.com", wrongCode(fresh, i*7)), services.ErrInvalidOrExpiredOtp)
	}
	require.NoError(t, f.auth.VerifyEmail(ctx, "a@x.com", fresh))
}

func TestVerifyEmail_Expired(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a@x.com", "secret1", models.RoleUser)
	ctx := context.Background()

	_, err := f.auth.SendVerificationCode(ctx, "a@x.com")
	require.NoError(t, err)
	code := f.lastCode(t)

	f.clock.Advance(11 * time.Minute)
	assert.ErrorIs(t, f.auth.VerifyEmail(ctx, "a@x.com", code), services.ErrInvalidOrExpiredOtp)
}

func TestSendVerificationCode_Supersedes(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a@x.com", "secret1", models.RoleUser)
	ctx := context.Background()

	_, err := f.auth.SendVerificationCode(ctx, "a@x.com")
	require.NoError(t, err)
	first := f.lastCode(t)
	_, err = f.auth.SendVerificationCode(ctx, "a@x.com")
	require.NoError(t, err)
	second := f.lastCode(t)

	if first != second {
		assert.ErrorIs(t, f.auth.VerifyEmail(ctx, "a@x.com", first), services.ErrInvalidOrExpiredOtp)
	}
	assert.NoError(t, f.auth.VerifyEmail(ctx, "a@x.com", second))
}

func TestSendVerificationCode_UnknownAndVerified(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "done@x.com", "secret1", models.RoleUser)
	require.NoError(t, f.repos.Users.MarkEmailVerified(context.Background(), u.Email))

	for _, email := range []string{"nobody@x.com", "done@x.com"} {
		ack, err := f.auth.SendVerificationCode(context.Background(), email)
		require.NoError(t, err)
		assert.Equal(t, services.VerificationSentMessage, ack)
	}
	assert.Empty(t, f.notifier.all())
}

func TestVerifyEmail_RequiresFields(t *testing.T) {
	f := newFixture(t)
	err := f.auth.VerifyEmail(context.Background(), "a@x.com", "")
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Equal(t, "OTP and email are required", services.Message(err))
}

// ─── Password change ──────────────────────────────────────────────────────────

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@x.com", "oldpass", models.RoleUser)
	external := f.user(t, "sso@x.com", "", models.RoleUser)
	ctx := context.Background()

	tests := []struct {
		name    string
		userID  string
		current string
		next    string
		wantErr error
		wantMsg string
	}{
		{"missing fields", u.ID.Hex(), "", "newpass", services.ErrValidation, "Current password and new password are required"},
		{"short new password", u.ID.Hex(), "oldpass", "abc", services.ErrValidation, "Password must be at least 6 characters"},
		{"multibyte short password", u.ID.Hex(), "oldpass", "ééé", services.ErrValidation, "Password must be at least 6 characters"},
		{"over bcrypt limit", u.ID.Hex(), "oldpass", strings.Repeat("a", 80), services.ErrValidation, "Password must be at most 72 bytes"},
		{"no password set", external.ID.Hex(), "whatever", "newpass", services.ErrNotFound, "User not found or password not set"},
		{"unknown user", "000000000000000000000000", "oldpass", "newpass", services.ErrNotFound, "User not found or password not set"},
		{"bad id", "nope", "oldpass", "newpass", services.ErrNotFound, "User not found or password not set"},
		{"wrong current", u.ID.Hex(), "badpass", "newpass", services.ErrInvalidCredential, "Current password is incorrect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.auth.ChangePassword(ctx, tt.userID, tt.current, tt.next)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantMsg, services.Message(err))
		})
	}

	require.NoError(t, f.auth.ChangePassword(ctx, u.ID.Hex(), "oldpass", "newpass"))
	stored, err := f.repos.Users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(stored.Password, "newpass"))
}

// ─── Register / Login ─────────────────────────────────────────────────────────

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.auth.Register(ctx, "Ada", "Ada@X.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ada@x.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.False(t, u.EmailVerified)
	assert.NotEmpty(t, f.lastCode(t))

	_, err = f.auth.Register(ctx, "Ada again", "ada@x.com", "secret1")
	assert.ErrorIs(t, err, services.ErrConflict)

	_, err = f.auth.Register(ctx, "Bob", "bob@x.com", "short")
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "admin@x.com", "secret1", models.RoleAdmin)
	ctx := context.Background()

	token, got, err := f.auth.Login(ctx, "admin@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	claims, err := f.codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID.Hex(), claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)

	f.clock.Advance(2 * time.Hour)
	_, err = f.codec.Verify(token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)

	_, _, wrong := f.auth.Login(ctx, "admin@x.com", "nope12")
	_, _, unknown := f.auth.Login(ctx, "ghost@x.com", "secret1")
	assert.ErrorIs(t, wrong, services.ErrInvalidCredential)
	assert.ErrorIs(t, unknown, services.ErrInvalidCredential)
	assert.Equal(t, services.Message(wrong), services.Message(unknown))
}
