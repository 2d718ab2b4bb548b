package auth

import (
	"errors"
	"fmt"
	"time"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims are carried by both token kinds; Type tells them apart.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type TokenSettings struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RememberTTL replaces RefreshTTL when the user asks to stay signed in.
	RememberTTL time.Duration
}

// Tokens issues and verifies HS256 JWTs.
type Tokens struct {
	settings TokenSettings
	now      func() time.Time
}

func NewTokens(settings TokenSettings) (*Tokens, error) {
	if settings.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if settings.AccessTTL <= 0 {
		settings.AccessTTL = 15 * time.Minute
	}
	if settings.RefreshTTL <= 0 {
		settings.RefreshTTL = 7 * 24 * time.Hour
	}
	if settings.RememberTTL <= 0 {
		settings.RememberTTL = 30 * 24 * time.Hour
	}
	return &Tokens{settings: settings, now: time.Now}, nil
}

func (t *Tokens) Issue(u *models.User, rememberMe bool) (*TokenPair, error) {
	access, err := t.sign(u, tokenTypeAccess, t.settings.AccessTTL)
	if err != nil {
		return nil, err
	}
	refreshTTL := t.settings.RefreshTTL
	if rememberMe {
		refreshTTL = t.settings.RememberTTL
	}
	refresh, err := t.sign(u, tokenTypeRefresh, refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(t.settings.AccessTTL.Seconds()),
	}, nil
}

func (t *Tokens) sign(u *models.User, typ string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Email: u.Email,
		Role:  u.Role,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.settings.Secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Parse verifies signature, expiry and token kind.
func (t *Tokens) Parse(raw, wantType string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(t.settings.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.NewInvalidTokenError("token could not be verified")
	}
	if !claims.VerifyExpiresAt(t.now(), true) {
		return nil, apperrors.NewInvalidTokenError("token expired")
	}
	if claims.Type != wantType {
		return nil, apperrors.NewInvalidTokenError("expected a " + wantType + " token")
	}
	return claims, nil
}
