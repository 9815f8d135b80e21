package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username   string   `json:"username" validate:"required,min=3,max=64"`
	Password   string   `json:"password" validate:"required,min=6"`
	FullName   string   `json:"fullName" validate:"required"`
	Email      string   `json:"email" validate:"omitempty,email"`
	Phone      string   `json:"phone" validate:"omitempty,min=7,max=20"`
	NationalID string   `json:"nationalId" validate:"omitempty,min=4,max=32"`
	Role       UserRole `json:"role" validate:"omitempty,oneof=citizen official admin"`
	Department string   `json:"department"`
}

// LoginRequest authenticates by phone (OTP) or username/email plus password.
type LoginRequest struct {
	Phone    string `json:"phone"`
	Username string `json:"username"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password"`
}

// VerifyOTPRequest checks a code.
type VerifyOTPRequest struct {
	Identifier string     `json:"identifier" validate:"required"`
	Code       string     `json:"code" validate:"required,len=6,numeric"`
	Purpose    OTPPurpose `json:"purpose" validate:"required,oneof=register login reset-password"`
}

// TokenRequest exchanges a verified code for a JWT.
type TokenRequest struct {
	Identifier string     `json:"identifier" validate:"required"`
	Purpose    OTPPurpose `json:"purpose" validate:"required,oneof=register login"`
}

// ResetPasswordRequest sets a new password after a verified reset code.
type ResetPasswordRequest struct {
	Identifier  string `json:"identifier" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

// GenerateOTPRequest issues a code for the given identifier.
type GenerateOTPRequest struct {
	Identifier string     `json:"identifier" validate:"required"`
	Channel    OTPChannel `json:"channel" validate:"required,oneof=phone email"`
	Purpose    OTPPurpose `json:"purpose" validate:"required,oneof=register login reset-password"`
}

// OTPChallenge is returned when a code has been dispatched. Code is only set
// outside production.
type OTPChallenge struct {
	RequiresOTP bool       `json:"requiresOtp"`
	Identifier  string     `json:"identifier"`
	Channel     OTPChannel `json:"channel"`
	Purpose     OTPPurpose `json:"purpose"`
	Code        string     `json:"otp,omitempty"`
	Message     string     `json:"message"`
}

// AuthResponse carries an issued access token.
type AuthResponse struct {
	Token     string     `json:"token"`
	ExpiresIn int64      `json:"expiresIn"`
	User      PublicUser `json:"user"`
}

// RegisterResponse is either an OTP challenge or an immediate token.
type RegisterResponse struct {
	User      PublicUser    `json:"user"`
	Challenge *OTPChallenge `json:"challenge,omitempty"`
	Token     string        `json:"token,omitempty"`
}

// LoginResponse carries the OTP challenge that completes a login.
type LoginResponse struct {
	User      PublicUser    `json:"user"`
	Challenge *OTPChallenge `json:"challenge"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"userId"`
	Role     UserRole `json:"role"`
	Username string   `json:"username"`
	jwt.RegisteredClaims
}
