package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/pkg/response"
)

type authService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	VerifyOTP(ctx context.Context, req models.VerifyOTPRequest) error
	GenerateOTP(ctx context.Context, req models.GenerateOTPRequest) (*models.OTPChallenge, error)
	Token(ctx context.Context, req models.TokenRequest) (*models.AuthResponse, error)
	ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error
	Me(ctx context.Context, userID string) (*models.PublicUser, error)
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Register godoc
// @Summary Register an account
// @Description Creates a user and dispatches a verification OTP when an email or phone is given
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if !bindJSON(c, &req, "invalid registration payload") {
		return
	}
	res, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Login godoc
// @Summary Start a login
// @Description Phone logins receive an SMS code; username or email logins need a password and receive an email code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req, "invalid login payload") {
		return
	}
	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// VerifyOTP godoc
// @Summary Verify a one-time code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.VerifyOTPRequest true "Code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req models.VerifyOTPRequest
	if !bindJSON(c, &req, "invalid OTP payload") {
		return
	}
	if err := h.service.VerifyOTP(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"verified": true, "message": "OTP verified successfully"})
}

// Token godoc
// @Summary Exchange a verified code for an access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.TokenRequest true "Identifier and purpose"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var req models.TokenRequest
	if !bindJSON(c, &req, "invalid token payload") {
		return
	}
	res, err := h.service.Token(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// ResetPassword godoc
// @Summary Reset a password after verifying a reset code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ResetPasswordRequest true "New password"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if !bindJSON(c, &req, "invalid reset payload") {
		return
	}
	if err := h.service.ResetPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Password reset successfully"})
}

// GenerateOTP godoc
// @Summary Issue a one-time code
// @Tags Authentication
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body models.GenerateOTPRequest true "Target"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /otp/generate [post]
func (h *AuthHandler) GenerateOTP(c *gin.Context) {
	if _, ok := requireClaims(c); !ok {
		return
	}
	var req models.GenerateOTPRequest
	if !bindJSON(c, &req, "invalid OTP request") {
		return
	}
	challenge, err := h.service.GenerateOTP(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, challenge, nil)
}

// Me godoc
// @Summary Current user profile
// @Tags Authentication
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	user, err := h.service.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user)
}
