// ABOUTME: Session tokens binding a caller to the user whose data is synced
// ABOUTME: HS256 JWTs whose subject is the user id handed to Initialize

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped into every session token.
const Issuer = "para-sync"

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = errors.New("secret must be at least 32 bytes")
)

// UserVerifier resolves a session token to a user id.
type UserVerifier interface {
	Verify(tokenString string) (userID string, err error)
}

// SessionClaims are the claims of a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	// Device names the client the token was issued to, for logs only.
	Device string `json:"device,omitempty"`
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	now    func() time.Time
}

// NewSessions creates a token service. The secret must be at least 32 bytes.
func NewSessions(secret []byte) (*Sessions, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	return &Sessions{secret: secret, now: time.Now}, nil
}

// Issue creates a token for userID valid for ttl.
func (s *Sessions) Issue(userID, device string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	now := s.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Device: device,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates the token and returns the user id from its subject.
func (s *Sessions) Verify(tokenString string) (string, error) {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Parse validates the token and returns all of its claims.
func (s *Sessions) Parse(tokenString string) (*SessionClaims, error) {
	var claims SessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return &claims, nil
}
