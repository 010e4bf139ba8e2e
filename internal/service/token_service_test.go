package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcpgate/mcpgate/internal/adapter/outbound/settings"
	"github.com/mcpgate/mcpgate/internal/domain/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSettingsStore(t *testing.T, users ...settings.UserEntry) *settings.FileStore {
	t.Helper()
	store := settings.NewFileStore(filepath.Join(t.TempDir(), "settings.json"), testLogger())
	doc := settings.DefaultDocument()
	doc.Users = users
	if err := store.Save(doc); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	return store
}

func TestIssue_FormatAndPersistence(t *testing.T) {
	store := newSettingsStore(t, settings.UserEntry{Username: "alice"})
	svc := NewTokenService(store, testLogger())

	token, err := svc.Issue(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("token %q missing %q prefix", token, TokenPrefix)
	}
	if len(token) != len(TokenPrefix)+2*tokenByteLen {
		t.Errorf("token length = %d, want %d", len(token), len(TokenPrefix)+2*tokenByteLen)
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	user := doc.FindUser("alice")
	if user == nil || user.AccessToken != token {
		t.Error("issued token not persisted")
	}
	if user.TokenIssuedAt == nil {
		t.Error("TokenIssuedAt not set")
	}
}

func TestIssue_UnknownUser(t *testing.T) {
	store := newSettingsStore(t)
	svc := NewTokenService(store, testLogger())

	if _, err := svc.Issue(context.Background(), "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestIssue_ReplacesPriorToken(t *testing.T) {
	store := newSettingsStore(t, settings.UserEntry{Username: "alice"})
	svc := NewTokenService(store, testLogger())
	ctx := context.Background()

	first, err := svc.Issue(ctx, "alice")
	if err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	second, err := svc.Issue(ctx, "alice")
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct tokens")
	}

	// Old token must stop working the moment a new one exists.
	if _, err := svc.Validate(ctx, first); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Errorf("old token still validates: %v", err)
	}
	user, err := svc.Validate(ctx, second)
	if err != nil {
		t.Fatalf("new token rejected: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("validated owner = %q, want alice", user.Username)
	}
}

func TestValidate_UnknownOrEmptyToken(t *testing.T) {
	store := newSettingsStore(t, settings.UserEntry{Username: "alice", AccessToken: "mg_known"})
	svc := NewTokenService(store, testLogger())
	ctx := context.Background()

	for _, token := range []string{"", "mg_unknown", "garbage"} {
		if _, err := svc.Validate(ctx, token); !errors.Is(err, auth.ErrInvalidCredential) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidCredential", token, err)
		}
	}
}

func TestValidate_EmptyStoredTokenNeverMatches(t *testing.T) {
	store := newSettingsStore(t, settings.UserEntry{Username: "alice"})
	svc := NewTokenService(store, testLogger())

	if _, err := svc.Validate(context.Background(), ""); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("empty token matched a user with no token: %v", err)
	}
}

func TestValidate_SeesRevocationImmediately(t *testing.T) {
	store := newSettingsStore(t, settings.UserEntry{Username: "alice"})
	svc := NewTokenService(store, testLogger())
	ctx := context.Background()

	token, err := svc.Issue(ctx, "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Validate(ctx, token); err != nil {
		t.Fatalf("Validate before revoke: %v", err)
	}
	if err := svc.Revoke(ctx, "alice"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.Validate(ctx, token); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Errorf("revoked token still validates: %v", err)
	}
}

func TestRevoke_NoActiveToken_IsNoop(t *testing.T) {
	store := newSettingsStore(t, settings.UserEntry{Username: "alice"})
	svc := NewTokenService(store, testLogger())

	if err := svc.Revoke(context.Background(), "alice"); err != nil {
		t.Fatalf("Revoke without token: %v", err)
	}
}

func TestTouch_UpdatesLastActivity(t *testing.T) {
	store := newSettingsStore(t, settings.UserEntry{Username: "alice"})
	svc := NewTokenService(store, testLogger())

	svc.Touch(context.Background(), "alice")

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	user := doc.FindUser("alice")
	if user.LastActivityAt == nil {
		t.Error("LastActivityAt not set after Touch")
	}
}

func TestTouch_UnknownUser_DoesNotPanic(t *testing.T) {
	store := newSettingsStore(t)
	svc := NewTokenService(store, testLogger())

	svc.Touch(context.Background(), "ghost")
}
