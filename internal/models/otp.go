package models

import "time"

// OTPChannel is the delivery channel of a one-time code.
type OTPChannel string

const (
	OTPChannelPhone OTPChannel = "phone"
	OTPChannelEmail OTPChannel = "email"
)

// OTPPurpose scopes what a verified code may be exchanged for.
type OTPPurpose string

const (
	OTPPurposeRegister      OTPPurpose = "register"
	OTPPurposeLogin         OTPPurpose = "login"
	OTPPurposeResetPassword OTPPurpose = "reset-password"
)

// Valid reports whether p is a known purpose.
func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposeRegister, OTPPurposeLogin, OTPPurposeResetPassword:
		return true
	}
	return false
}

// OTPRecord is an issued code. Records live in memory only.
type OTPRecord struct {
	ID         string     `json:"id"`
	Identifier string     `json:"identifier"`
	Channel    OTPChannel `json:"channel"`
	Code       string     `json:"-"`
	Purpose    OTPPurpose `json:"purpose"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Verified   bool       `json:"verified"`
	Consumed   bool       `json:"consumed"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Expired reports whether the code is past its expiry at now.
func (o OTPRecord) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
