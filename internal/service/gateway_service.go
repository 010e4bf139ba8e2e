package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcpgate/mcpgate/internal/adapter/outbound/settings"
	"github.com/mcpgate/mcpgate/internal/domain/auth"
	"github.com/mcpgate/mcpgate/internal/domain/principal"
)

// GatewayService is the authentication decision engine. Every call loads the
// routing configuration fresh from the settings store, so a settings edit
// takes effect on the very next request without a restart.
type GatewayService struct {
	store    *settings.FileStore
	tokens   *TokenService
	sessions *auth.SessionSigner
	verifier auth.PasswordVerifier
	logger   *slog.Logger
}

// NewGatewayService wires the decision engine to its collaborators.
func NewGatewayService(
	store *settings.FileStore,
	tokens *TokenService,
	sessions *auth.SessionSigner,
	verifier auth.PasswordVerifier,
	logger *slog.Logger,
) *GatewayService {
	return &GatewayService{
		store:    store,
		tokens:   tokens,
		sessions: sessions,
		verifier: verifier,
		logger:   logger,
	}
}

// safeDefaultRouting is used when the settings file cannot be read: auth is
// required and nothing is bypassed.
func safeDefaultRouting() settings.RoutingConfig {
	return settings.RoutingConfig{
		RequireMcpAuth:       true,
		EnableGlobalRoute:    true,
		EnableGroupNameRoute: true,
	}
}

// loadRouting reads the current routing flags. On read failure it logs the
// outage and returns the locked-down defaults rather than failing the
// decision outright.
func (g *GatewayService) loadRouting() settings.RoutingConfig {
	doc, err := g.store.Load()
	if err != nil {
		g.logger.Error("settings unreadable, using locked-down defaults", "error", err)
		return safeDefaultRouting()
	}
	return doc.SystemConfig.Routing
}

// Authenticate evaluates the supplied credentials against the current
// routing configuration and either returns the resolved principal or a
// rejection from the auth error taxonomy.
//
// Decision order, first match wins:
//  1. skipAuth bypasses everything.
//  2. Static bearer key, when bearer auth is enabled.
//  3. Signed session credential.
//  4. Per-user access token (tool routes).
func (g *GatewayService) Authenticate(ctx context.Context, creds auth.Credentials, route auth.RouteKind) (*principal.Principal, error) {
	routing := g.loadRouting()
	fp := routing.Fingerprint()

	p, err := g.decide(ctx, creds, route, routing)
	if err != nil {
		g.logger.Debug("authentication rejected",
			"route", route, "config", fmt.Sprintf("%016x", fp), "error", err)
		return nil, err
	}

	if err := g.authorize(p, route); err != nil {
		g.logger.Debug("authorization rejected",
			"route", route, "username", p.Username, "config", fmt.Sprintf("%016x", fp))
		return nil, err
	}

	g.logger.Debug("request authenticated",
		"route", route, "mode", p.Mode, "username", p.Username,
		"config", fmt.Sprintf("%016x", fp))

	if p.Mode == principal.ModeAccessToken && p.Username != "" {
		g.tokens.Touch(ctx, p.Username)
	}
	return p, nil
}

func (g *GatewayService) decide(ctx context.Context, creds auth.Credentials, route auth.RouteKind, routing settings.RoutingConfig) (*principal.Principal, error) {
	// 1. Explicit bypass. Succeeds with or without credentials, valid or
	// not. The bypass principal carries admin privilege; skip-auth disables
	// the entire gate, not just the named-user part.
	if routing.SkipAuth {
		g.logger.Info("authentication bypassed by skipAuth")
		return &principal.Principal{
			Kind:    principal.KindService,
			IsAdmin: true,
			Mode:    principal.ModeSkipAuth,
		}, nil
	}

	// 2. Static bearer key.
	if routing.EnableBearerAuth {
		if routing.BearerAuthKey == "" {
			g.logger.Warn("bearer auth enabled but no key configured; mode cannot succeed")
		} else if creds.Bearer != "" &&
			subtle.ConstantTimeCompare([]byte(creds.Bearer), []byte(routing.BearerAuthKey)) == 1 {
			return &principal.Principal{
				Kind:    principal.KindService,
				IsAdmin: true,
				Mode:    principal.ModeBearerKey,
			}, nil
		}
	}

	// 3. Session credential. The bearer value doubles as the session token
	// carrier when it is not the static key.
	if creds.Bearer != "" {
		if claims, err := g.sessions.Verify(creds.Bearer); err == nil {
			return &principal.Principal{
				Kind:     principal.KindUser,
				Username: claims.Username,
				IsAdmin:  claims.IsAdmin,
				Mode:     principal.ModeSession,
			}, nil
		}
	}

	// 4. Per-user access token, mandatory on tool routes when configured.
	token := creds.AccessToken
	if token == "" {
		token = creds.Bearer
	}

	if route == auth.RouteTool {
		if token == "" {
			if routing.RequireMcpAuth {
				return nil, fmt.Errorf("tool route requires access token: %w", auth.ErrUnauthenticated)
			}
			return &principal.Principal{
				Kind: principal.KindService,
				Mode: principal.ModeAnonymous,
			}, nil
		}
		// A supplied token must be valid even when auth is optional;
		// silently ignoring a bad credential would mask client bugs.
		user, err := g.tokens.Validate(ctx, token)
		if err != nil {
			if errors.Is(err, auth.ErrConfigUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("access token rejected: %w", auth.ErrInvalidCredential)
		}
		return &principal.Principal{
			Kind:     principal.KindUser,
			Username: user.Username,
			IsAdmin:  user.IsAdmin,
			Mode:     principal.ModeAccessToken,
		}, nil
	}

	// Non-tool routes with no matching credential.
	if creds.Empty() {
		return nil, auth.ErrUnauthenticated
	}
	return nil, auth.ErrInvalidCredential
}

// authorize enforces the privilege requirement of the route.
func (g *GatewayService) authorize(p *principal.Principal, route auth.RouteKind) error {
	if route == auth.RouteAdmin && !p.IsAdmin {
		return auth.ErrForbidden
	}
	return nil
}

// Login checks a username/password pair and returns a signed session
// credential. Unknown users and wrong passwords are indistinguishable to
// the caller.
func (g *GatewayService) Login(ctx context.Context, username, password string) (string, error) {
	doc, err := g.store.Load()
	if err != nil {
		return "", fmt.Errorf("%w: %v", auth.ErrConfigUnavailable, err)
	}

	user := doc.FindUser(username)
	if user == nil || user.PasswordHash == "" {
		return "", auth.ErrInvalidCredential
	}

	ok, err := g.verifier.Verify(password, user.PasswordHash)
	if err != nil {
		g.logger.Warn("password verification failed", "username", username, "error", err)
		return "", auth.ErrInvalidCredential
	}
	if !ok {
		return "", auth.ErrInvalidCredential
	}

	token, err := g.sessions.Sign(user.Username, user.IsAdmin)
	if err != nil {
		return "", fmt.Errorf("signing session: %w", err)
	}

	g.logger.Info("user logged in", "username", username)
	return token, nil
}
