package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/app/notifications"
	"github.com/tickethub/tickethub/app/repositories"
	"github.com/tickethub/tickethub/pkg/auth"
	"github.com/tickethub/tickethub/pkg/cache"
	"github.com/tickethub/tickethub/pkg/logger"
	"github.com/tickethub/tickethub/pkg/metrics"
	"github.com/tickethub/tickethub/pkg/notification"
)

const (
	// ResetRequestedMessage is returned for every forgot-password request.
	ResetRequestedMessage = "If the email exists, a password reset link has been sent."
	// VerificationSentMessage is returned for every send-verification request.
	VerificationSentMessage = "If the email exists, a verification code has been sent."

	resetTTL     = time.Hour
	resetLockTTL = 30 * time.Second
	tokenBytes   = 32
	otpDigits    = 6

	resetKeyPrefix  = "password-reset:"
	resetLockPrefix = "password-reset-lock:"
	verifyKeyPrefix = "email-verification:"
	attemptPrefix   = "email-verification-attempts:"

	// maxOTPAttempts wrong guesses burn the outstanding code.
	maxOTPAttempts = 5
)

// resetEntry is the cached state of an outstanding password reset.
type resetEntry struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthDeps wires an AuthService.
type AuthDeps struct {
	Users      repositories.UserRepository
	Cache      cache.Store
	Notifier   notification.Notifier
	Codec      *auth.Codec
	AppURL     string
	OTPTTL     time.Duration
	SessionTTL time.Duration

	// Now and Random default to time.Now and crypto/rand.
	Now    func() time.Time
	Random io.Reader
}

// AuthService runs the password and email-verification flows.
type AuthService struct {
	users      repositories.UserRepository
	cache      cache.Store
	notifier   notification.Notifier
	codec      *auth.Codec
	appURL     string
	otpTTL     time.Duration
	sessionTTL time.Duration
	now        func() time.Time
	random     io.Reader
}

func NewAuthService(d AuthDeps) *AuthService {
	s := &AuthService{
		users:      d.Users,
		cache:      d.Cache,
		notifier:   d.Notifier,
		codec:      d.Codec,
		appURL:     strings.TrimRight(d.AppURL, "/"),
		otpTTL:     d.OTPTTL,
		sessionTTL: d.SessionTTL,
		now:        d.Now,
		random:     d.Random,
	}
	if s.otpTTL <= 0 {
		s.otpTTL = 10 * time.Minute
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 24 * time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.random == nil {
		s.random = rand.Reader
	}
	return s
}

// checkPasswordPolicy counts characters for the minimum and bytes for the
// bcrypt ceiling.
func checkPasswordPolicy(password string) error {
	if utf8.RuneCountInString(password) < auth.MinPasswordLength {
		return fail(ErrValidation, fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return fail(ErrValidation, fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes))
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ─── Password reset ───────────────────────────────────────────────────────────

// RequestPasswordReset stores a reset token for the user and mails the link.
// The returned acknowledgement is the same whether or not the email exists,
// and store failures are logged rather than returned.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", fail(ErrValidation, "Email is required")
	}
	log := logger.WithCtx(ctx)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			metrics.RecordAuthFlow("password_reset_request", "unknown_email")
		} else {
			log.Error("password reset: user lookup failed", "error", err)
			metrics.RecordAuthFlow("password_reset_request", "error")
		}
		return ResetRequestedMessage, nil
	}

	token, err := s.token()
	if err != nil {
		log.Error("password reset: token generation failed", "error", err)
		metrics.RecordAuthFlow("password_reset_request", "error")
		return ResetRequestedMessage, nil
	}

	entry := resetEntry{
		UserID:    user.ID.Hex(),
		Email:     user.Email,
		ExpiresAt: s.now().Add(resetTTL).UTC(),
	}
	if err := s.cache.Set(ctx, resetKeyPrefix+token, entry, resetTTL); err != nil {
		log.Error("password reset: cache write failed", "error", err)
		metrics.RecordAuthFlow("password_reset_request", "error")
		return ResetRequestedMessage, nil
	}

	link := s.appURL + "/reset-password?token=" + url.QueryEscape(token)
	if err := s.notifier.Notify(ctx, user.Email, notifications.PasswordReset{URL: link}); err != nil {
		log.Error("password reset: notification failed", "user_id", entry.UserID, "error", err)
		metrics.RecordAuthFlow("password_reset_request", "error")
		return ResetRequestedMessage, nil
	}

	log.Info("password reset requested", "user_id", entry.UserID)
	metrics.RecordAuthFlow("password_reset_request", "sent")
	return ResetRequestedMessage, nil
}

// ResetPassword redeems a reset token. A token is single use: the cache
// entry is deleted only after the password write succeeds, and the write
// itself is keyed to the token so a retry cannot apply it twice.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" || password == "" {
		return fail(ErrValidation, "Token and password are required")
	}
	if err := checkPasswordPolicy(password); err != nil {
		return err
	}
	log := logger.WithCtx(ctx)
	key := resetKeyPrefix + token

	var entry resetEntry
	found, err := s.cache.Get(ctx, key, &entry)
	if err != nil {
		return fmt.Errorf("reset password: read token: %w", err)
	}
	if !found {
		metrics.RecordAuthFlow("password_reset", "invalid_token")
		return fail(ErrInvalidOrExpiredToken, "Invalid or expired reset token")
	}

	if !s.now().Before(entry.ExpiresAt) {
		if err := s.cache.Delete(ctx, key); err != nil {
			log.Warn("reset password: drop expired token", "error", err)
		}
		metrics.RecordAuthFlow("password_reset", "expired")
		return fail(ErrExpiredToken, "Reset token has expired")
	}

	lockKey := resetLockPrefix + token
	locked, err := s.cache.Add(ctx, lockKey, true, resetLockTTL)
	if err != nil {
		return fmt.Errorf("reset password: acquire lock: %w", err)
	}
	if !locked {
		metrics.RecordAuthFlow("password_reset", "contended")
		return fail(ErrInvalidOrExpiredToken, "Invalid or expired reset token")
	}
	defer func() {
		if err := s.cache.Delete(context.WithoutCancel(ctx), lockKey); err != nil {
			log.Warn("reset password: release lock", "error", err)
		}
	}()

	userID, err := primitive.ObjectIDFromHex(entry.UserID)
	if err != nil {
		return fmt.Errorf("reset password: cached user id %q: %w", entry.UserID, err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("reset password: hash: %w", err)
	}

	applied, err := s.users.ResetPassword(ctx, userID, hash, tokenNonce(token))
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		s.dropToken(ctx, key)
		metrics.RecordAuthFlow("password_reset", "invalid_token")
		return fail(ErrInvalidOrExpiredToken, "Invalid or expired reset token")
	case err != nil:
		return fmt.Errorf("reset password: persist: %w", err)
	case !applied:
		// An earlier attempt wrote the password but crashed before the
		// delete. The token is spent.
		s.dropToken(ctx, key)
		metrics.RecordAuthFlow("password_reset", "replayed")
		return fail(ErrInvalidOrExpiredToken, "Invalid or expired reset token")
	}

	s.dropToken(ctx, key)
	log.Info("password reset completed", "user_id", entry.UserID)
	metrics.RecordAuthFlow("password_reset", "success")
	return nil
}

// dropToken deletes a consumed reset entry. A failed delete leaves a token
// that the nonce guard already refuses.
func (s *AuthService) dropToken(ctx context.Context, key string) {
	if err := s.cache.Delete(context.WithoutCancel(ctx), key); err != nil {
		logger.WithCtx(ctx).Warn("reset password: delete token", "error", err)
	}
}

func tokenNonce(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *AuthService) token() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ─── Email verification ───────────────────────────────────────────────────────

// SendVerificationCode stores a fresh OTP for email and mails it. A new
// code replaces any earlier one. The acknowledgement does not reveal
// whether the account exists.
func (s *AuthService) SendVerificationCode(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", fail(ErrValidation, "Email is required")
	}
	log := logger.WithCtx(ctx)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			log.Error("verification: user lookup failed", "error", err)
		}
		metrics.RecordAuthFlow("email_verification_request", "skipped")
		return VerificationSentMessage, nil
	}
	if user.EmailVerified {
		metrics.RecordAuthFlow("email_verification_request", "already_verified")
		return VerificationSentMessage, nil
	}

	otp, err := s.otp()
	if err != nil {
		log.Error("verification: otp generation failed", "error", err)
		return VerificationSentMessage, nil
	}
	if err := s.cache.Delete(ctx, attemptKeys(email)...); err != nil {
		log.Error("verification: reset attempts failed", "error", err)
		metrics.RecordAuthFlow("email_verification_request", "error")
		return VerificationSentMessage, nil
	}
	if err := s.cache.Set(ctx, verifyKeyPrefix+email, otp, s.otpTTL); err != nil {
		log.Error("verification: cache write failed", "error", err)
		metrics.RecordAuthFlow("email_verification_request", "error")
		return VerificationSentMessage, nil
	}
	if err := s.notifier.Notify(ctx, user.Email, notifications.VerificationCode{Code: otp, TTL: s.otpTTL}); err != nil {
		log.Error("verification: notification failed", "user_id", user.ID.Hex(), "error", err)
		metrics.RecordAuthFlow("email_verification_request", "error")
		return VerificationSentMessage, nil
	}

	metrics.RecordAuthFlow("email_verification_request", "sent")
	return VerificationSentMessage, nil
}

// VerifyEmail redeems an OTP and marks the address verified.
func (s *AuthService) VerifyEmail(ctx context.Context, email, otp string) error {
	email = normalizeEmail(email)
	if email == "" || otp == "" {
		return fail(ErrValidation, "OTP and email are required")
	}
	key := verifyKeyPrefix + email

	var stored string
	found, err := s.cache.Get(ctx, key, &stored)
	if err != nil {
		return fmt.Errorf("verify email: read otp: %w", err)
	}
	invalid := fail(ErrInvalidOrExpiredOtp, "Invalid or expired OTP")
	if !found {
		metrics.RecordAuthFlow("email_verification", "invalid_otp")
		return invalid
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(otp)) != 1 {
		metrics.RecordAuthFlow("email_verification", "invalid_otp")
		if err := s.recordMiss(ctx, email); err != nil {
			return fmt.Errorf("verify email: count attempt: %w", err)
		}
		return invalid
	}

	if err := s.users.MarkEmailVerified(ctx, email); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fail(ErrNotFound, "User not found")
		}
		return fmt.Errorf("verify email: persist: %w", err)
	}

	keys := append([]string{key}, attemptKeys(email)...)
	if err := s.cache.Delete(context.WithoutCancel(ctx), keys...); err != nil {
		logger.WithCtx(ctx).Warn("verify email: delete otp", "error", err)
	}
	metrics.RecordAuthFlow("email_verification", "success")
	return nil
}

// recordMiss claims the next free attempt slot. Slots are taken with Add so
// concurrent guesses each get their own number; the guess that takes the
// last slot deletes the code.
func (s *AuthService) recordMiss(ctx context.Context, email string) error {
	slots := attemptKeys(email)
	for i, slot := range slots {
		claimed, err := s.cache.Add(ctx, slot, true, s.otpTTL)
		if err != nil {
			return err
		}
		if claimed && i < len(slots)-1 {
			return nil
		}
	}
	metrics.RecordAuthFlow("email_verification", "locked")
	logger.WithCtx(ctx).Warn("verify email: attempts exhausted, code discarded")
	return s.cache.Delete(context.WithoutCancel(ctx), verifyKeyPrefix+email)
}

// attemptKeys lists the per-code attempt slots for email.
func attemptKeys(email string) []string {
	keys := make([]string, maxOTPAttempts)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s%s:%d", attemptPrefix, email, i+1)
	}
	return keys
}

func (s *AuthService) otp() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(otpDigits), nil)
	n, err := rand.Int(s.random, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// ─── Password change ──────────────────────────────────────────────────────────

// ChangePassword replaces the password of an authenticated user after
// checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return fail(ErrValidation, "Current password and new password are required")
	}
	if err := checkPasswordPolicy(next); err != nil {
		return err
	}

	notFound := fail(ErrNotFound, "User not found or password not set")
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return notFound
	}
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("change password: load user: %w", err)
	}
	if !user.HasPassword() {
		return notFound
	}

	if !auth.CheckPassword(user.Password, current) {
		metrics.RecordAuthFlow("password_change", "wrong_password")
		return fail(ErrInvalidCredential, "Current password is incorrect")
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("change password: hash: %w", err)
	}
	if err := s.users.SetPassword(ctx, id, hash); err != nil {
		return fmt.Errorf("change password: persist: %w", err)
	}

	logger.WithCtx(ctx).Info("password changed", "user_id", userID)
	metrics.RecordAuthFlow("password_change", "success")
	return nil
}

// ─── Register / Login ─────────────────────────────────────────────────────────

// Register creates an unverified USER account and sends it a verification
// code.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if name == "" || email == "" || password == "" {
		return nil, fail(ErrValidation, "Name, email and password are required")
	}
	if err := checkPasswordPolicy(password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("register: hash: %w", err)
	}

	user := &models.User{
		Name:     name,
		Email:    email,
		Password: hash,
		Role:     models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fail(ErrConflict, "Email is already registered")
		}
		return nil, fmt.Errorf("register: create user: %w", err)
	}

	logger.WithCtx(ctx).Info("user registered", "user_id", user.ID.Hex())
	if _, err := s.SendVerificationCode(ctx, email); err != nil {
		logger.WithCtx(ctx).Warn("register: send verification", "error", err)
	}
	return user, nil
}

// dummyHash keeps Login's cost the same for unknown emails.
var dummyHash = sync.OnceValue(func() string {
	h, _ := auth.HashPassword("tickethub-login-timing")
	return h
})

// Login checks the credentials and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	invalid := fail(ErrInvalidCredential, "Invalid email or password")

	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return "", nil, fmt.Errorf("login: load user: %w", err)
	}
	if user == nil || !user.HasPassword() {
		auth.CheckPassword(dummyHash(), password)
		metrics.RecordAuthFlow("login", "failed")
		return "", nil, invalid
	}
	if !auth.CheckPassword(user.Password, password) {
		metrics.RecordAuthFlow("login", "failed")
		return "", nil, invalid
	}

	token, err := s.codec.Issue(user.ID.Hex(), string(user.Role), s.sessionTTL)
	if err != nil {
		return "", nil, fmt.Errorf("login: issue token: %w", err)
	}
	metrics.RecordAuthFlow("login", "success")
	return token, user, nil
}
