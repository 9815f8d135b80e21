package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

type otpFlow interface {
	Issue(ctx context.Context, identifier string, channel models.OTPChannel, purpose models.OTPPurpose) (*models.OTPChallenge, error)
	Verify(ctx context.Context, identifier string, purpose models.OTPPurpose, code string) error
	consume(ctx context.Context, r repository.Repos, identifier string, purpose models.OTPPurpose, failure string) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AuthService provides registration, OTP login and token issuance.
type AuthService struct {
	uow       UnitOfWork
	otp       otpFlow
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       Clock
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(uow UnitOfWork, otp otpFlow, validate *validator.Validate, logger *zap.Logger, config AuthConfig, clock Clock) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 7 * 24 * time.Hour
	}
	return &AuthService{uow: uow, otp: otp, validator: validate, logger: logger, config: config, now: orClock(clock)}
}

// Register creates an account. Accounts with an email or phone must confirm an
// OTP before a token is issued; others receive a token immediately.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err)
	}
	role := req.Role
	if role == "" {
		role = models.RoleCitizen
	}
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid role selected")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user := &models.User{
		Username:   strings.TrimSpace(req.Username),
		Password:   string(hash),
		FullName:   req.FullName,
		Email:      models.StringPtr(strings.TrimSpace(req.Email)),
		Phone:      models.StringPtr(strings.TrimSpace(req.Phone)),
		NationalID: models.StringPtr(strings.TrimSpace(req.NationalID)),
		Role:       role,
		Department: models.StringPtr(strings.TrimSpace(req.Department)),
		CreatedAt:  s.now(),
	}

	err = s.uow.WithinTx(ctx, func(r repository.Repos) error {
		if err := ensureUnique(ctx, r, user); err != nil {
			return err
		}
		return r.Users.Create(ctx, user)
	})
	if err != nil {
		return nil, mapError(err, "user not found", "failed to register user")
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))

	resp := &models.RegisterResponse{User: user.Public()}
	switch {
	case user.Email != nil:
		resp.Challenge, err = s.otp.Issue(ctx, *user.Email, models.OTPChannelEmail, models.OTPPurposeRegister)
	case user.Phone != nil:
		resp.Challenge, err = s.otp.Issue(ctx, *user.Phone, models.OTPChannelPhone, models.OTPPurposeRegister)
	default:
		resp.Token, _, err = s.generateAccessToken(user)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func ensureUnique(ctx context.Context, r repository.Repos, user *models.User) error {
	checks := []struct {
		value   *string
		find    func(context.Context, string) (*models.User, error)
		message string
	}{
		{&user.Username, r.Users.FindByUsername, "Username already exists"},
		{user.Email, r.Users.FindByEmail, "This email is already registered. Please use a different email or mobile number."},
		{user.Phone, r.Users.FindByPhone, "This mobile number is already registered. Please use a different email or mobile number."},
		{user.NationalID, r.Users.FindByNationalID, "This Aadhar number is already used. Please use a different Aadhar number."},
	}
	for _, c := range checks {
		if c.value == nil || *c.value == "" {
			continue
		}
		_, err := c.find(ctx, *c.value)
		if err == nil {
			return appErrors.Clone(appErrors.ErrConflict, c.message)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Login starts an OTP login. Phone logins may omit the password; username and
// email logins require it and are confirmed by email.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err)
	}
	invalid := appErrors.Clone(appErrors.ErrInvalidCredentials, "Invalid credentials")

	if req.Phone != "" {
		user, err := s.findUser(ctx, func(ctx context.Context, r repository.Repos) (*models.User, error) {
			return r.Users.FindByPhone(ctx, req.Phone)
		})
		if err != nil {
			return nil, invalidOr(err, invalid)
		}
		if req.Password != "" && !passwordMatches(user, req.Password) {
			return nil, invalid
		}
		challenge, err := s.otp.Issue(ctx, *user.Phone, models.OTPChannelPhone, models.OTPPurposeLogin)
		if err != nil {
			return nil, err
		}
		return &models.LoginResponse{User: user.Public(), Challenge: challenge}, nil
	}

	if req.Username == "" && req.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Missing credentials")
	}
	user, err := s.findUser(ctx, func(ctx context.Context, r repository.Repos) (*models.User, error) {
		if req.Username != "" {
			return r.Users.FindByUsername(ctx, req.Username)
		}
		return r.Users.FindByEmail(ctx, req.Email)
	})
	if err != nil {
		return nil, invalidOr(err, invalid)
	}
	if req.Password == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Password is required")
	}
	if !passwordMatches(user, req.Password) {
		return nil, invalid
	}
	if user.Email == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "User has no email for verification")
	}
	challenge, err := s.otp.Issue(ctx, *user.Email, models.OTPChannelEmail, models.OTPPurposeLogin)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{User: user.Public(), Challenge: challenge}, nil
}

// VerifyOTP checks a submitted code.
func (s *AuthService) VerifyOTP(ctx context.Context, req models.VerifyOTPRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err)
	}
	return s.otp.Verify(ctx, strings.TrimSpace(req.Identifier), req.Purpose, req.Code)
}

// GenerateOTP issues a code on behalf of an authenticated user.
func (s *AuthService) GenerateOTP(ctx context.Context, req models.GenerateOTPRequest) (*models.OTPChallenge, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err)
	}
	return s.otp.Issue(ctx, req.Identifier, req.Channel, req.Purpose)
}

// Token exchanges a verified, unspent code for an access token. Username
// logins are confirmed through the account email.
func (s *AuthService) Token(ctx context.Context, req models.TokenRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err)
	}
	identifier := strings.TrimSpace(req.Identifier)

	var user *models.User
	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		var otpIdentifier string
		var err error
		user, otpIdentifier, err = resolveIdentifier(ctx, r, identifier)
		if err != nil {
			return err
		}
		return s.otp.consume(ctx, r, otpIdentifier, req.Purpose, "OTP not verified")
	})
	if err != nil {
		return nil, mapError(err, "User not found", "failed to issue token")
	}

	token, _, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	return &models.AuthResponse{
		Token:     token,
		ExpiresIn: int64(s.config.AccessTokenExpiry.Seconds()),
		User:      user.Public(),
	}, nil
}

// ResetPassword sets a new password once a reset-password code has been verified.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if len(req.NewPassword) < 6 {
		return appErrors.Clone(appErrors.ErrValidation, "Password must be at least 6 characters")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	identifier := strings.TrimSpace(req.Identifier)
	err = s.uow.WithinTx(ctx, func(r repository.Repos) error {
		user, err := r.Users.FindByEmail(ctx, identifier)
		if errors.Is(err, repository.ErrNotFound) {
			user, err = r.Users.FindByPhone(ctx, identifier)
		}
		if err != nil {
			return err
		}
		if err := s.otp.consume(ctx, r, identifier, models.OTPPurposeResetPassword, "Please verify OTP first"); err != nil {
			return err
		}
		user.Password = string(hash)
		return r.Users.Update(ctx, user)
	})
	if err != nil {
		return mapError(err, "User not found", "failed to reset password")
	}
	s.logger.Info("password reset", zap.String("identifier", identifier))
	return nil
}

// Me returns the authenticated user's profile.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.PublicUser, error) {
	user, err := s.findUser(ctx, func(ctx context.Context, r repository.Repos) (*models.User, error) {
		return r.Users.Get(ctx, userID)
	})
	if err != nil {
		return nil, mapError(err, "User not found", "failed to load user")
	}
	public := user.Public()
	return &public, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) findUser(ctx context.Context, find func(context.Context, repository.Repos) (*models.User, error)) (*models.User, error) {
	var user *models.User
	err := s.uow.View(ctx, func(r repository.Repos) error {
		var err error
		user, err = find(ctx, r)
		return err
	})
	return user, err
}

// resolveIdentifier finds the account behind a phone, email or username and
// the identifier its OTP was sent to.
func resolveIdentifier(ctx context.Context, r repository.Repos, identifier string) (*models.User, string, error) {
	if user, err := r.Users.FindByPhone(ctx, identifier); err == nil {
		return user, identifier, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}
	if user, err := r.Users.FindByEmail(ctx, identifier); err == nil {
		return user, identifier, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}
	user, err := r.Users.FindByUsername(ctx, identifier)
	if err != nil {
		return nil, "", err
	}
	if user.Email == nil {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "No verification identifier found")
	}
	return user, *user.Email, nil
}

func passwordMatches(user *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}

func invalidOr(err error, invalid error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return invalid
	}
	return mapError(err, "User not found", "failed to load user")
}

func (s *AuthService) generateAccessToken(user *models.User) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
