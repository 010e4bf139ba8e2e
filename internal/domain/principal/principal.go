// Package principal defines the authenticated identity attached to a request
// and its context-scoped propagation.
//
// The principal binding lives inside the request's context.Context, so it is
// visible only to the call chain of the request that authenticated it. There
// is no process-wide "current user" slot: two concurrently executing requests
// can never observe each other's principal, and the binding disappears when
// the request context is released on any exit path (return, panic, client
// disconnect).
package principal

import "context"

// Kind distinguishes named users from anonymous/service principals.
type Kind string

const (
	// KindUser is a named user resolved from a session or access token.
	KindUser Kind = "user"
	// KindService is an anonymous/service principal (bearer key or skip-auth).
	KindService Kind = "service"
)

// AuthMode records which step of the decision procedure produced a principal.
type AuthMode string

const (
	// ModeSkipAuth is the explicit configuration bypass.
	ModeSkipAuth AuthMode = "skip_auth"
	// ModeBearerKey is the static shared bearer key.
	ModeBearerKey AuthMode = "bearer_key"
	// ModeSession is a signed session credential.
	ModeSession AuthMode = "session"
	// ModeAccessToken is a per-user opaque access token.
	ModeAccessToken AuthMode = "access_token"
	// ModeAnonymous is a tool-invocation call allowed through with no
	// credential while requireMcpAuth is disabled.
	ModeAnonymous AuthMode = "anonymous"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	// Kind is "user" for named users, "service" otherwise.
	Kind Kind
	// Username is set only for named users.
	Username string
	// IsAdmin is true when the named user holds admin privilege.
	IsAdmin bool
	// Mode records how this principal was authenticated.
	Mode AuthMode
}

// Anonymous reports whether this principal has no named user behind it.
func (p *Principal) Anonymous() bool {
	return p == nil || p.Username == ""
}

// contextKey is the unexported key type for the principal binding.
type contextKey struct{}

// WithPrincipal returns a child context carrying the principal. The binding
// is immutable and scoped to the returned context; it never outlives the
// request that created it.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal bound to ctx. Outside any authenticated
// scope it returns (nil, false) rather than panicking.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}
