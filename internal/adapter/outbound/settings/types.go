// Package settings provides file-based persistence for the mcpgate settings
// document.
//
// The settings file stores the runtime-mutable routing configuration and the
// user records (password hashes and per-user access tokens). This package
// provides atomic writes, file locking, and fresh-read semantics: routing
// flags are expected to change at runtime without a process restart, so
// consumers load a fresh copy per operation instead of caching.
package settings

import (
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Document is the top-level structure persisted in the settings file.
type Document struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`

	// SystemConfig holds system-wide configuration sections.
	SystemConfig SystemConfig `json:"systemConfig"`

	// Users are the known user records, keyed by unique username.
	Users []UserEntry `json:"users"`

	// CreatedAt is when this settings file was first created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is when this settings file was last modified.
	UpdatedAt time.Time `json:"updatedAt"`
}

// SystemConfig groups the system-wide sections of the settings document.
type SystemConfig struct {
	// Routing holds the authentication/routing flags evaluated per request.
	Routing RoutingConfig `json:"routing"`
}

// RoutingConfig holds the runtime-mutable authentication and routing flags.
// Every authentication decision reads a fresh copy; an edit takes effect on
// the very next request.
type RoutingConfig struct {
	// RequireMcpAuth makes a valid per-user access token mandatory on
	// tool-invocation routes.
	RequireMcpAuth bool `json:"requireMcpAuth"`

	// EnableBearerAuth accepts the static bearer key as a service credential.
	EnableBearerAuth bool `json:"enableBearerAuth"`

	// BearerAuthKey is the shared secret for bearer-key mode. Empty while
	// EnableBearerAuth is true means the mode never matches (warned, not
	// fatal).
	BearerAuthKey string `json:"bearerAuthKey"`

	// EnableGlobalRoute exposes the aggregate tool route.
	EnableGlobalRoute bool `json:"enableGlobalRoute"`

	// EnableGroupNameRoute exposes per-group tool routes by name.
	EnableGroupNameRoute bool `json:"enableGroupNameRoute"`

	// SkipAuth disables authentication entirely. Explicit, logged bypass.
	SkipAuth bool `json:"skipAuth"`
}

// Fingerprint returns a short stable hash of the routing flags. It is logged
// with each authentication decision so operators can tell which settings
// version produced a given outcome. Not a security artifact.
func (r RoutingConfig) Fingerprint() uint64 {
	h := xxhash.New()
	var bits uint64
	for i, b := range []bool{
		r.RequireMcpAuth,
		r.EnableBearerAuth,
		r.EnableGlobalRoute,
		r.EnableGroupNameRoute,
		r.SkipAuth,
	} {
		if b {
			bits |= 1 << uint(i)
		}
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], bits)
	_, _ = h.Write(buf[:])
	_, _ = h.WriteString(r.BearerAuthKey)
	return h.Sum64()
}

// UserEntry is a persisted user record.
type UserEntry struct {
	// Username is the unique, immutable key for this user.
	Username string `json:"username"`

	// PasswordHash is the stored credential hash (Argon2id PHC by default).
	PasswordHash string `json:"passwordHash"`

	// IsAdmin grants access to administrative routes.
	IsAdmin bool `json:"isAdmin"`

	// AccessToken is the user's single active opaque access token. Empty
	// means no token is issued. At most one token is valid per user at any
	// time; issuing a new one overwrites this field in the same write.
	AccessToken string `json:"accessToken,omitempty"`

	// TokenIssuedAt is when the current access token was issued.
	TokenIssuedAt *time.Time `json:"tokenIssuedAt,omitempty"`

	// LastActivityAt is the best-effort timestamp of the user's last
	// authenticated call.
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
}

// FindUser returns a pointer to the user with the given username, or nil.
// The pointer aliases the document's slice so callers can mutate in place
// before saving.
func (d *Document) FindUser(username string) *UserEntry {
	for i := range d.Users {
		if d.Users[i].Username == username {
			return &d.Users[i]
		}
	}
	return nil
}
