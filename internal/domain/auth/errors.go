// Package auth contains the domain types and logic for authentication:
// credential carriers, the error taxonomy, password verification, and
// signed session credentials.
package auth

import "errors"

// Authentication failure taxonomy. The HTTP adapter maps Unauthenticated and
// InvalidCredential to 401 and Forbidden to 403; the distinction between the
// first two is carried in the response payload only.
var (
	// ErrUnauthenticated means no usable credential was supplied.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidCredential means a credential was supplied but rejected
	// (bad signature, expired, wrong bearer key, unknown token).
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrForbidden means the caller authenticated but lacks admin privilege.
	ErrForbidden = errors.New("admin privilege required")
	// ErrConfigUnavailable means the settings document could not be read.
	// The gateway falls back to safe defaults when it sees this.
	ErrConfigUnavailable = errors.New("configuration unavailable")
	// ErrInternal is returned for unexpected failures that must not leak
	// detail to the caller.
	ErrInternal = errors.New("internal error")
)

// SafeErrorMessage returns a client-safe message for an authentication error.
// Internal detail is logged server-side but never exposed to clients; in
// particular the message never reveals whether a username or token exists.
func SafeErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "Authentication required"
	case errors.Is(err, ErrInvalidCredential):
		return "Invalid credential"
	case errors.Is(err, ErrForbidden):
		return "Admin privilege required"
	case errors.Is(err, ErrConfigUnavailable):
		return "Service temporarily unavailable"
	default:
		return "Internal error"
	}
}
