package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

type fakeAuthSrv struct {
	verifyErr    error
	lastGenerate models.GenerateOTPRequest
	lastUserID   string
}

func (f *fakeAuthSrv) Register(_ context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	return &models.RegisterResponse{User: models.PublicUser{ID: "u1", Username: req.Username}, Token: "tok"}, nil
}

func (f *fakeAuthSrv) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	return nil, appErrors.ErrInvalidCredentials
}

func (f *fakeAuthSrv) VerifyOTP(context.Context, models.VerifyOTPRequest) error {
	return f.verifyErr
}

func (f *fakeAuthSrv) GenerateOTP(_ context.Context, req models.GenerateOTPRequest) (*models.OTPChallenge, error) {
	f.lastGenerate = req
	return &models.OTPChallenge{RequiresOTP: true, Identifier: req.Identifier, Channel: req.Channel, Purpose: req.Purpose}, nil
}

func (f *fakeAuthSrv) Token(context.Context, models.TokenRequest) (*models.AuthResponse, error) {
	return &models.AuthResponse{Token: "tok", ExpiresIn: 3600}, nil
}

func (f *fakeAuthSrv) ResetPassword(context.Context, models.ResetPasswordRequest) error {
	return appErrors.Clone(appErrors.ErrUnauthorized, "Please verify OTP first")
}

func (f *fakeAuthSrv) Me(_ context.Context, userID string) (*models.PublicUser, error) {
	f.lastUserID = userID
	return &models.PublicUser{ID: userID}, nil
}

func TestAuthHandlerRegisterCreated(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/auth/register", map[string]string{"username": "asha"}, nil)

	NewAuthHandler(&fakeAuthSrv{}).Register(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "tok", envelope.Data["token"])
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/auth/login", map[string]string{"phone": "555"}, nil)

	NewAuthHandler(&fakeAuthSrv{}).Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeEnvelope(t, rec).Code)
}

func TestAuthHandlerVerifyOTP(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/auth/verify-otp", map[string]string{"identifier": "555", "code": "123456", "purpose": "login"}, nil)
	NewAuthHandler(&fakeAuthSrv{}).VerifyOTP(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeEnvelope(t, rec).Data["verified"])

	c, rec = newTestContext(http.MethodPost, "/auth/verify-otp", map[string]string{"identifier": "555"}, nil)
	NewAuthHandler(&fakeAuthSrv{verifyErr: appErrors.Clone(appErrors.ErrUnauthorized, "Invalid OTP")}).VerifyOTP(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid OTP", decodeEnvelope(t, rec).Error)
}

func TestAuthHandlerResetPasswordPropagatesError(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/auth/reset-password", map[string]string{"identifier": "555", "newPassword": "secret123"}, nil)

	NewAuthHandler(&fakeAuthSrv{}).ResetPassword(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Please verify OTP first", decodeEnvelope(t, rec).Error)
}

func TestAuthHandlerGenerateOTPRequiresClaims(t *testing.T) {
	srv := &fakeAuthSrv{}
	payload := map[string]string{"identifier": "a@example.com", "channel": "email", "purpose": "login"}

	c, rec := newTestContext(http.MethodPost, "/otp/generate", payload, nil)
	NewAuthHandler(srv).GenerateOTP(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/otp/generate", payload, &models.JWTClaims{UserID: "u1"})
	NewAuthHandler(srv).GenerateOTP(c)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.OTPChannelEmail, srv.lastGenerate.Channel)
}

func TestAuthHandlerMe(t *testing.T) {
	srv := &fakeAuthSrv{}
	c, rec := newTestContext(http.MethodGet, "/auth/me", nil, &models.JWTClaims{UserID: "u7"})

	NewAuthHandler(srv).Me(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u7", srv.lastUserID)
}
