package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is what a verified session credential resolves to.
type SessionClaims struct {
	Username string
	IsAdmin  bool
}

// SessionSigner issues and verifies signed, time-limited session credentials
// (HS256 JWTs) identifying a named user. These are the interactive login
// credential, distinct from the long-lived per-user access token.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionSigner creates a signer with the given HMAC secret and token
// lifetime. A zero ttl defaults to 24 hours.
func NewSessionSigner(secret []byte, ttl time.Duration) *SessionSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionSigner{secret: secret, ttl: ttl}
}

// Sign creates a session credential for the given user.
func (s *SessionSigner) Sign(username string, isAdmin bool) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   username,
		"admin": isAdmin,
		"iat":   now.Unix(),
		"exp":   now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify validates signature and expiry and returns the user encoded in the
// claims. All failures collapse into ErrInvalidCredential; the caller never
// learns whether the signature, expiry, or claims were at fault.
func (s *SessionSigner) Verify(tokenString string) (*SessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: session expired", ErrInvalidCredential)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !token.Valid {
		return nil, ErrInvalidCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidCredential
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}
	isAdmin, _ := claims["admin"].(bool)

	return &SessionClaims{Username: sub, IsAdmin: isAdmin}, nil
}
