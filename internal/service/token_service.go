package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcpgate/mcpgate/internal/adapter/outbound/settings"
	"github.com/mcpgate/mcpgate/internal/domain/auth"
)

// TokenPrefix marks issued access tokens so they are recognizable in logs
// and support tickets without exposing the secret part.
const TokenPrefix = "mg_"

// tokenByteLen is the random payload size before hex encoding.
const tokenByteLen = 32

// ErrUnknownUser is returned when a token operation names a user that does
// not exist in the settings document.
var ErrUnknownUser = errors.New("unknown user")

// TokenService issues, validates, and revokes per-user access tokens.
// Each user holds at most one active token; issuing replaces any prior one
// in the same settings write.
type TokenService struct {
	store  *settings.FileStore
	logger *slog.Logger
}

// NewTokenService creates a token service over the given settings store.
func NewTokenService(store *settings.FileStore, logger *slog.Logger) *TokenService {
	return &TokenService{store: store, logger: logger}
}

// Issue generates a fresh access token for username and persists it,
// overwriting any previously issued token atomically. The raw token is
// returned exactly once; it is never logged.
func (s *TokenService) Issue(ctx context.Context, username string) (string, error) {
	buf := make([]byte, tokenByteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	token := TokenPrefix + hex.EncodeToString(buf)
	now := time.Now().UTC()

	err := s.store.Update(func(doc *settings.Document) error {
		user := doc.FindUser(username)
		if user == nil {
			return fmt.Errorf("%w: %s", ErrUnknownUser, username)
		}
		user.AccessToken = token
		user.TokenIssuedAt = &now
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("access token issued", "username", username)
	return token, nil
}

// Validate resolves a raw token to its owner. The settings document is read
// fresh so revocations and reissues take effect immediately. Comparison is
// constant-time and every user entry is examined regardless of where a match
// occurs, so timing does not reveal token ownership.
func (s *TokenService) Validate(ctx context.Context, token string) (*settings.UserEntry, error) {
	if token == "" {
		return nil, auth.ErrInvalidCredential
	}

	doc, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrConfigUnavailable, err)
	}

	var matched *settings.UserEntry
	for i := range doc.Users {
		user := &doc.Users[i]
		if user.AccessToken == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(user.AccessToken), []byte(token)) == 1 {
			matched = user
		}
	}
	if matched == nil {
		return nil, auth.ErrInvalidCredential
	}
	return matched, nil
}

// Revoke clears the active token for username. Revoking a user with no
// active token is a no-op, not an error.
func (s *TokenService) Revoke(ctx context.Context, username string) error {
	err := s.store.Update(func(doc *settings.Document) error {
		user := doc.FindUser(username)
		if user == nil {
			return fmt.Errorf("%w: %s", ErrUnknownUser, username)
		}
		user.AccessToken = ""
		user.TokenIssuedAt = nil
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("access token revoked", "username", username)
	return nil
}

// Touch records activity for username. Failures are logged and swallowed;
// activity tracking must never fail the request that triggered it.
func (s *TokenService) Touch(ctx context.Context, username string) {
	now := time.Now().UTC()
	err := s.store.Update(func(doc *settings.Document) error {
		user := doc.FindUser(username)
		if user == nil {
			return fmt.Errorf("%w: %s", ErrUnknownUser, username)
		}
		user.LastActivityAt = &now
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to record user activity", "username", username, "error", err)
	}
}
