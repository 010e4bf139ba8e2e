package auth

import (
	"errors"
	"fmt"
	"testing"
)

func TestSafeErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthenticated", ErrUnauthenticated, "Authentication required"},
		{"invalid credential", ErrInvalidCredential, "Invalid credential"},
		{"wrapped invalid credential", fmt.Errorf("%w: bad signature", ErrInvalidCredential), "Invalid credential"},
		{"forbidden", ErrForbidden, "Admin privilege required"},
		{"config unavailable", ErrConfigUnavailable, "Service temporarily unavailable"},
		{"unknown error", errors.New("disk on fire at /var/lib/mcpgate"), "Internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeErrorMessage(tt.err); got != tt.want {
				t.Errorf("SafeErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSafeErrorMessage_NeverLeaksDetail(t *testing.T) {
	err := fmt.Errorf("%w: token mg_deadbeef not found for user alice", ErrInvalidCredential)
	msg := SafeErrorMessage(err)
	if msg != "Invalid credential" {
		t.Errorf("detail leaked into client message: %q", msg)
	}
}
