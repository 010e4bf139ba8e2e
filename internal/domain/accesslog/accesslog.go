// Package accesslog defines the tool-call access log entities and the
// store contract they are persisted through.
package accesslog

import (
	"context"
	"time"
)

// Outcome classifies how a recorded call ended.
type Outcome string

const (
	OutcomeAllowed   Outcome = "allowed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeForbidden Outcome = "forbidden"
	OutcomeError     Outcome = "error"
)

// Entry is one recorded tool call. Username is empty for anonymous calls.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Username   string    `json:"username"`
	Path       string    `json:"path"`
	Outcome    Outcome   `json:"outcome"`
	ServerName string    `json:"serverName,omitempty"`
	ToolName   string    `json:"toolName,omitempty"`
}

// Filter narrows a query. Zero-value fields do not filter; set fields
// combine conjunctively.
type Filter struct {
	Username   string
	ServerName string
	ToolName   string
	Outcome    Outcome
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// Page is one query result: the matching slice plus the total match count
// taken from the same read, so pagination stays consistent.
type Page struct {
	Entries    []Entry `json:"entries"`
	TotalCount int     `json:"totalCount"`
}

// UserStat ranks one user's call volume within an aggregation window.
type UserStat struct {
	Username     string    `json:"username"`
	Calls        int       `json:"calls"`
	LastActivity time.Time `json:"lastActivity"`
}

// Stats aggregates call activity over a window.
type Stats struct {
	TotalCalls    int        `json:"totalCalls"`
	UniqueUsers   int        `json:"uniqueUsers"`
	UniqueServers int        `json:"uniqueServers"`
	UniqueTools   int        `json:"uniqueTools"`
	TopUsers      []UserStat `json:"topUsers"`
}

// Store persists access-log entries.
type Store interface {
	// Append records one entry. ID and Timestamp are generated when unset.
	Append(ctx context.Context, e *Entry) error
	// Query returns entries matching the filter, newest first.
	Query(ctx context.Context, f Filter) (*Page, error)
	// Aggregate computes stats over the trailing window. windowDays <= 0
	// means all recorded history.
	Aggregate(ctx context.Context, windowDays int) (*Stats, error)
	// Prune deletes entries strictly older than the cutoff and reports how
	// many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
	// ClearAll deletes every entry.
	ClearAll(ctx context.Context) error
	// Close releases the underlying storage.
	Close() error
}
