// Package auth registers accounts, signs users in with JWTs and drives the
// verification and password reset flows through broker events.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/common/logger"
	"notification-platform/internal/common/validation"
	"notification-platform/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// Topics the auth service publishes to. They match the notification
// consumer's user group.
const (
	TopicUserRegistered    = "user.registered"
	TopicUserVerified      = "user.verified"
	TopicUserPasswordReset = "user.password_reset"
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByVerificationToken(ctx context.Context, token string) (*models.User, error)
	GetByResetToken(ctx context.Context, token string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	RecordFailedLogin(ctx context.Context, id string, now time.Time, maxAttempts int, lockout time.Duration) (int, *time.Time, error)
}

// EventPublisher is satisfied by events.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, message interface{}, key string) error
}

type Settings struct {
	BcryptCost       int
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	VerificationTTL  time.Duration
	ResetTTL         time.Duration
	FrontendURL      string
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type LoginResponse struct {
	*TokenPair
	User *models.User `json:"user"`
}

type Service struct {
	users    UserStore
	tokens   *Tokens
	revoked  RevocationStore
	events   EventPublisher
	settings Settings
	logger   logger.Logger
	now      func() time.Time
}

func NewService(users UserStore, tokens *Tokens, revoked RevocationStore, events EventPublisher, settings Settings, log logger.Logger) *Service {
	if settings.BcryptCost == 0 {
		settings.BcryptCost = 12
	}
	if settings.MaxLoginAttempts == 0 {
		settings.MaxLoginAttempts = 5
	}
	if settings.LockoutDuration == 0 {
		settings.LockoutDuration = 30 * time.Minute
	}
	if settings.VerificationTTL == 0 {
		settings.VerificationTTL = 24 * time.Hour
	}
	if settings.ResetTTL == 0 {
		settings.ResetTTL = time.Hour
	}
	return &Service{
		users:    users,
		tokens:   tokens,
		revoked:  revoked,
		events:   events,
		settings: settings,
		logger:   log,
		now:      time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !validation.ValidateEmail(req.Email) {
		return nil, apperrors.NewValidationError("a valid email is required")
	}
	if err := checkPassword(req.Password); err != nil {
		return nil, err
	}
	if req.Phone != "" && !validation.ValidatePhone(req.Phone) {
		return nil, apperrors.NewValidationError("phone must be in E.164 format")
	}

	existing, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.NewEmailAlreadyRegisteredError(req.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.settings.BcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	token, err := randomToken()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	now := s.now()
	expires := now.Add(s.settings.VerificationTTL)
	user := &models.User{
		Email:                    req.Email,
		PasswordHash:             string(hash),
		FirstName:                strings.TrimSpace(req.FirstName),
		LastName:                 strings.TrimSpace(req.LastName),
		Phone:                    req.Phone,
		Role:                     "user",
		Status:                   models.UserStatusPending,
		EmailVerificationToken:   token,
		EmailVerificationExpires: &expires,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", map[string]interface{}{"userId": user.ID})
	s.publish(ctx, TopicUserRegistered, user.ID, map[string]interface{}{
		"userId":            user.ID,
		"email":             user.Email,
		"name":              user.FullName(),
		"verificationToken": token,
	})
	return user, nil
}

// VerifyEmail activates the account holding token.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	user, err := s.users.GetByVerificationToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if user == nil || !user.VerificationValid(token, now) {
		return nil, apperrors.NewInvalidTokenError("verification token is invalid or expired")
	}

	user.EmailVerified = true
	user.Status = models.UserStatusActive
	user.EmailVerificationToken = ""
	user.EmailVerificationExpires = nil
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.publish(ctx, TopicUserVerified, user.ID, map[string]interface{}{
		"userId": user.ID,
		"email":  user.Email,
		"name":   user.FullName(),
	})
	return user, nil
}

// ResendVerification issues a fresh verification token. Unknown or already
// verified addresses are ignored so the endpoint does not reveal accounts.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || user.EmailVerified {
		return nil
	}
	token, err := randomToken()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	now := s.now()
	expires := now.Add(s.settings.VerificationTTL)
	user.EmailVerificationToken = token
	user.EmailVerificationExpires = &expires
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	s.publish(ctx, TopicUserRegistered, user.ID, map[string]interface{}{
		"userId":            user.ID,
		"email":             user.Email,
		"name":              user.FullName(),
		"verificationToken": token,
	})
	return nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NewInvalidCredentialsError()
	}

	now := s.now()
	if user.IsLocked(now) {
		return nil, apperrors.NewAccountLockedError(*user.LockedUntil)
	}
	if user.Status != models.UserStatusActive && user.Status != models.UserStatusPending {
		return nil, apperrors.NewAccountInactiveError(string(user.Status))
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		attempts, lockedUntil, err := s.users.RecordFailedLogin(ctx, user.ID, now, s.settings.MaxLoginAttempts, s.settings.LockoutDuration)
		if err != nil {
			return nil, err
		}
		user.LoginAttempts, user.LockedUntil = attempts, lockedUntil
		if user.IsLocked(now) {
			s.logger.Warn("Account locked after repeated failures", map[string]interface{}{"userId": user.ID})
		}
		return nil, apperrors.NewInvalidCredentialsError()
	}

	if !user.EmailVerified {
		return nil, apperrors.NewEmailNotVerifiedError()
	}

	user.RecordSuccessfulLogin(now)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	pair, err := s.tokens.Issue(user, req.RememberMe)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResponse{TokenPair: pair, User: user}, nil
}

// Refresh trades a live refresh token for a new pair. The old refresh token
// is revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.Authenticate(ctx, refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != models.UserStatusActive {
		return nil, apperrors.NewInvalidTokenError("account is no longer active")
	}
	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}
	pair, err := s.tokens.Issue(user, false)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return pair, nil
}

// Logout revokes the presented access token until its natural expiry.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.Authenticate(ctx, accessToken, tokenTypeAccess)
	if err != nil {
		return err
	}
	return s.revoke(ctx, claims)
}

// Authenticate parses raw and rejects revoked tokens.
func (s *Service) Authenticate(ctx context.Context, raw, tokenType string) (*Claims, error) {
	claims, err := s.tokens.Parse(raw, tokenType)
	if err != nil {
		return nil, err
	}
	if s.revoked == nil {
		return claims, nil
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if revoked {
		return nil, apperrors.NewInvalidTokenError("token has been revoked")
	}
	return claims, nil
}

func (s *Service) revoke(ctx context.Context, claims *Claims) error {
	if s.revoked == nil || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// ForgotPassword stores a reset token and announces it. Unknown addresses
// return nil.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		s.logger.Debug("Password reset requested for unknown email", nil)
		return nil
	}

	token, err := randomToken()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	now := s.now()
	expires := now.Add(s.settings.ResetTTL)
	user.PasswordResetToken = token
	user.PasswordResetExpires = &expires
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.publish(ctx, TopicUserPasswordReset, user.ID, map[string]interface{}{
		"userId":     user.ID,
		"email":      user.Email,
		"name":       user.FullName(),
		"resetToken": token,
		"resetLink":  strings.TrimRight(s.settings.FrontendURL, "/") + "/reset-password?token=" + token,
	})
	return nil
}

// ResetPassword sets a new password and clears the token and any lockout.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	user, err := s.users.GetByResetToken(ctx, token)
	if err != nil {
		return err
	}
	now := s.now()
	if user == nil || !user.ResetValid(token, now) {
		return apperrors.NewInvalidTokenError("reset token is invalid or expired")
	}
	if err := s.setPassword(user, newPassword); err != nil {
		return err
	}
	user.PasswordResetToken = ""
	user.PasswordResetExpires = nil
	user.LoginAttempts = 0
	user.LockedUntil = nil
	user.UpdatedAt = now
	return s.users.Update(ctx, user)
}

func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return apperrors.NewInvalidCredentialsError()
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	if err := s.setPassword(user, newPassword); err != nil {
		return err
	}
	user.UpdatedAt = s.now()
	return s.users.Update(ctx, user)
}

func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NewNotFoundError("user", userID)
	}
	return user, nil
}

func (s *Service) setPassword(user *models.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.settings.BcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = string(hash)
	return nil
}

// publish is best effort: the account change already happened.
func (s *Service) publish(ctx context.Context, topic, key string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, topic, payload, key); err != nil {
		s.logger.Error("Failed to publish auth event", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
	}
}

// checkPassword requires 8 to 128 characters with upper and lower case
// letters and at least one digit or symbol.
func checkPassword(p string) error {
	if len(p) < 8 || len(p) > 128 {
		return apperrors.NewValidationError("password must be between 8 and 128 characters")
	}
	var upper, lower, other bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		default:
			other = true
		}
	}
	if !upper || !lower || !other {
		return apperrors.NewValidationError("password must contain uppercase, lowercase, number and special character")
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
