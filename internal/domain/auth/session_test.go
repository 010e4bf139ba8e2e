package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSessionSigner_RoundTrip(t *testing.T) {
	signer := NewSessionSigner([]byte("test-secret"), time.Hour)

	token, err := signer.Sign("alice", true)
	if err != nil {
		t.Fatalf("Sign() returned error: %v", err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() returned error: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("expected username 'alice', got %q", claims.Username)
	}
	if !claims.IsAdmin {
		t.Error("expected IsAdmin true")
	}
}

func TestSessionSigner_NonAdminClaims(t *testing.T) {
	signer := NewSessionSigner([]byte("test-secret"), time.Hour)

	token, err := signer.Sign("bob", false)
	if err != nil {
		t.Fatalf("Sign() returned error: %v", err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() returned error: %v", err)
	}
	if claims.IsAdmin {
		t.Error("expected IsAdmin false")
	}
}

func TestSessionSigner_WrongSecret_Rejected(t *testing.T) {
	signer := NewSessionSigner([]byte("secret-a"), time.Hour)
	other := NewSessionSigner([]byte("secret-b"), time.Hour)

	token, err := signer.Sign("alice", false)
	if err != nil {
		t.Fatalf("Sign() returned error: %v", err)
	}

	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestSessionSigner_Expired_Rejected(t *testing.T) {
	signer := &SessionSigner{secret: []byte("test-secret"), ttl: -time.Minute}

	token, err := signer.Sign("alice", false)
	if err != nil {
		t.Fatalf("Sign() returned error: %v", err)
	}

	if _, err := signer.Verify(token); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential for expired token, got %v", err)
	}
}

func TestSessionSigner_Garbage_Rejected(t *testing.T) {
	signer := NewSessionSigner([]byte("test-secret"), time.Hour)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := signer.Verify(tok); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("Verify(%q): expected ErrInvalidCredential, got %v", tok, err)
		}
	}
}

func TestSessionSigner_DefaultTTL(t *testing.T) {
	signer := NewSessionSigner([]byte("test-secret"), 0)
	if signer.ttl != 24*time.Hour {
		t.Errorf("expected default ttl 24h, got %v", signer.ttl)
	}
}
