package auth

// RouteKind classifies the route a request arrived on. It changes which steps
// of the decision procedure apply: tool-invocation routes honor requireMcpAuth
// and per-user access tokens, admin routes additionally require admin
// privilege.
type RouteKind string

const (
	// RouteTool is a tool-invocation route forwarded to downstream servers.
	RouteTool RouteKind = "tool"
	// RouteAdmin is an administrative route (log queries, backups).
	RouteAdmin RouteKind = "admin"
	// RouteAPI is any other authenticated API route.
	RouteAPI RouteKind = "api"
)

// Credentials carries everything the transport extracted from a request.
// Extraction precedence (bearer header, then access-token header, then the
// token query parameter) is the transport's concern; the gateway only sees
// the already-separated values.
type Credentials struct {
	// Bearer is the value of "Authorization: Bearer <value>", if present.
	Bearer string
	// AccessToken is the custom access-token header or "token" query
	// parameter, if present.
	AccessToken string
}

// Empty reports whether no credential of any kind was supplied.
func (c Credentials) Empty() bool {
	return c.Bearer == "" && c.AccessToken == ""
}
