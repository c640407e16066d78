package controllers

import (
	"errors"
	"net/http"

	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/app/services"
	"github.com/tickethub/tickethub/pkg/ctx"
	"github.com/tickethub/tickethub/pkg/middleware"
)

type AuthController struct {
	service *services.AuthService
}

func NewAuthController(service *services.AuthService) *AuthController {
	return &AuthController{service: service}
}

// ─── Request bodies ───────────────────────────────────────────────────────────

type registerRequest struct {
	Name     string `json:"name"     validate:"required,max=100"`
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// The remaining bodies are checked by the services so the original
// 400 messages are kept.

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type loginResponse struct {
	Token string             `json:"token"`
	User  models.UserSummary `json:"user"`
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// Register handles POST /auth/register.
func (ac *AuthController) Register(c *ctx.Context) {
	var in registerRequest
	if !c.BindJSON(&in) {
		return
	}
	user, err := ac.service.Register(c.Context(), in.Name, in.Email, in.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Created(user.Summary())
}

// Login handles POST /auth/login.
func (ac *AuthController) Login(c *ctx.Context) {
	var in loginRequest
	if !c.BindJSON(&in) {
		return
	}
	token, user, err := ac.service.Login(c.Context(), in.Email, in.Password)
	if errors.Is(err, services.ErrInvalidCredential) {
		c.Unauthorized(services.Message(err))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(loginResponse{Token: token, User: user.Summary()})
}

// ForgotPassword handles POST /auth/forgot-password.
func (ac *AuthController) ForgotPassword(c *ctx.Context) {
	var in emailRequest
	if !c.BindJSON(&in) {
		return
	}
	ack, err := ac.service.RequestPasswordReset(c.Context(), in.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Message(ack)
}

// ResetPassword handles POST /auth/reset-password.
func (ac *AuthController) ResetPassword(c *ctx.Context) {
	var in resetPasswordRequest
	if !c.BindJSON(&in) {
		return
	}
	if err := ac.service.ResetPassword(c.Context(), in.Token, in.Password); err != nil {
		respondError(c, err)
		return
	}
	c.Message("Password reset successfully")
}

// SendVerification handles POST /auth/send-verification.
func (ac *AuthController) SendVerification(c *ctx.Context) {
	var in emailRequest
	if !c.BindJSON(&in) {
		return
	}
	ack, err := ac.service.SendVerificationCode(c.Context(), in.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Message(ack)
}

// VerifyEmail handles POST /auth/verify-email.
func (ac *AuthController) VerifyEmail(c *ctx.Context) {
	var in verifyEmailRequest
	if !c.BindJSON(&in) {
		return
	}
	if err := ac.service.VerifyEmail(c.Context(), in.Email, in.OTP); err != nil {
		respondError(c, err)
		return
	}
	c.Message("Email verified successfully")
}

// ChangePassword handles POST /auth/change-password behind middleware.Auth.
func (ac *AuthController) ChangePassword(c *ctx.Context) {
	userID, ok := middleware.UserIDFromCtx(c.Context())
	if !ok {
		c.Unauthorized(http.StatusText(http.StatusUnauthorized))
		return
	}
	var in changePasswordRequest
	if !c.BindJSON(&in) {
		return
	}
	if err := ac.service.ChangePassword(c.Context(), userID, in.CurrentPassword, in.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.Message("Password changed successfully")
}
