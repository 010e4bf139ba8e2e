package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcpgate/mcpgate/internal/domain/accesslog"
	"github.com/mcpgate/mcpgate/internal/domain/principal"
)

// AccessLogService records tool-call outcomes and serves log queries.
// Recording is best-effort: a failed append is logged, counted, and
// swallowed so it can never fail the request being recorded.
type AccessLogService struct {
	store   accesslog.Store
	dropped prometheus.Counter
	logger  *slog.Logger
}

// NewAccessLogService wraps the given store. dropped may be nil when no
// metrics registry is wired (tests, CLI commands).
func NewAccessLogService(store accesslog.Store, dropped prometheus.Counter, logger *slog.Logger) *AccessLogService {
	return &AccessLogService{store: store, dropped: dropped, logger: logger}
}

// Record appends one entry for the given call outcome. Never returns an
// error; append failures are swallowed by contract.
func (s *AccessLogService) Record(ctx context.Context, p *principal.Principal, path string, outcome accesslog.Outcome, serverName, toolName string) {
	entry := accesslog.Entry{
		Username:   "",
		Path:       path,
		Outcome:    outcome,
		ServerName: serverName,
		ToolName:   toolName,
	}
	if p != nil {
		entry.Username = p.Username
	}

	// The request context may already be canceled when the client hung up
	// mid-call; the outcome still gets logged.
	if err := s.store.Append(context.WithoutCancel(ctx), &entry); err != nil {
		if s.dropped != nil {
			s.dropped.Inc()
		}
		s.logger.Warn("access log append failed, entry dropped",
			"path", path, "outcome", outcome, "error", err)
	}
}

// Query returns matching entries plus the total match count.
func (s *AccessLogService) Query(ctx context.Context, f accesslog.Filter) (*accesslog.Page, error) {
	return s.store.Query(ctx, f)
}

// Stats aggregates activity over the trailing window.
func (s *AccessLogService) Stats(ctx context.Context, windowDays int) (*accesslog.Stats, error) {
	return s.store.Aggregate(ctx, windowDays)
}

// Prune deletes entries older than the cutoff.
func (s *AccessLogService) Prune(ctx context.Context, before time.Time) (int64, error) {
	return s.store.Prune(ctx, before)
}

// Clear deletes every entry.
func (s *AccessLogService) Clear(ctx context.Context) error {
	return s.store.ClearAll(ctx)
}
