package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned when a token fails validation for any reason
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal extracted from a token
type Identity struct {
	UserID   uuid.UUID
	Username string
	IsAdmin  bool
}

// TokenIssuer creates and validates HS256 access tokens
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a token issuer with the given signing secret and
// token lifetime.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	return &TokenIssuer{secret: secret, ttl: ttl}, nil
}

// Issue creates a signed access token for the given identity
func (t *TokenIssuer) Issue(identity Identity) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      identity.Username,
		"user_id":  identity.UserID.String(),
		"is_admin": identity.IsAdmin,
		"iat":      now.Unix(),
		"exp":      now.Add(t.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token and returns the embedded identity
func (t *TokenIssuer) Validate(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString,
		func(*jwt.Token) (any, error) {
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}

	username, _ := claims["sub"].(string)
	if username == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	rawUserID, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed user id", ErrInvalidToken)
	}

	isAdmin, _ := claims["is_admin"].(bool)

	return &Identity{
		UserID:   userID,
		Username: username,
		IsAdmin:  isAdmin,
	}, nil
}
