// Package auth verifies Sign in with Apple identity tokens and issues the
// app's own session tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthFailed covers every credential the server refuses.
var ErrAuthFailed = errors.New("authentication failed")

const SessionTTL = 14 * 24 * time.Hour

type Identity struct {
	UserID      string `json:"userId"`
	AppleUserID string `json:"appleUserId"`
}

type sessionClaims struct {
	UserID      string `json:"userId"`
	AppleUserID string `json:"appleUserId"`
	jwt.RegisteredClaims
}

// Sessions signs and checks HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: SessionTTL, now: time.Now}
}

func (s *Sessions) Issue(id Identity) (string, error) {
	now := s.now()
	claims := sessionClaims{
		UserID:      id.UserID,
		AppleUserID: id.AppleUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Sessions) Verify(token string) (Identity, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	if claims.UserID == "" || claims.AppleUserID == "" {
		return Identity{}, fmt.Errorf("%w: session token payload incomplete", ErrAuthFailed)
	}
	return Identity{UserID: claims.UserID, AppleUserID: claims.AppleUserID}, nil
}
