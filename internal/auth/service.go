package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// TokenVerifier is satisfied by *AppleVerifier.
type TokenVerifier interface {
	Verify(ctx context.Context, identityToken, appleUserID string) error
}

type Service struct {
	sessions *Sessions
	apple    TokenVerifier
	users    UserRepository
	logger   *zap.Logger
}

func NewService(sessions *Sessions, apple TokenVerifier, users UserRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sessions: sessions, apple: apple, users: users, logger: logger}
}

type SignInResult struct {
	SessionToken string `json:"session_token"`
	UserID       string `json:"user_id"`
	IsNewUser    bool   `json:"is_new_user"`
}

// SignInWithApple verifies the identity token, finds or creates the user
// and issues a session token.
func (s *Service) SignInWithApple(ctx context.Context, appleUserID, identityToken string) (SignInResult, error) {
	if appleUserID == "" || identityToken == "" {
		return SignInResult{}, fmt.Errorf("%w: missing apple_user_id or identity_token", ErrAuthFailed)
	}
	if err := s.apple.Verify(ctx, identityToken, appleUserID); err != nil {
		s.logger.Warn("apple sign-in rejected", zap.Error(err))
		return SignInResult{}, err
	}

	u, created, err := s.users.UpsertApple(ctx, appleUserID)
	if err != nil {
		return SignInResult{}, err
	}
	token, err := s.sessions.Issue(Identity{UserID: u.ID, AppleUserID: u.AppleUserID})
	if err != nil {
		return SignInResult{}, fmt.Errorf("issuing session: %w", err)
	}

	s.logger.Info("apple sign-in", zap.String("user", u.ID), zap.Bool("new_user", created))
	return SignInResult{SessionToken: token, UserID: u.ID, IsNewUser: created}, nil
}

// Authenticate resolves an "Authorization: Bearer ..." header value, or a
// bare token, to an identity.
func (s *Service) Authenticate(credential string) (Identity, error) {
	token := BearerToken(credential)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing bearer token", ErrAuthFailed)
	}
	return s.sessions.Verify(token)
}

// BearerToken extracts the token from an Authorization header. A value
// without a scheme is taken as the token itself.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok {
		return header
	}
	if !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// IsConfigError reports whether err means sign-in is not set up on this
// server rather than a bad credential.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
