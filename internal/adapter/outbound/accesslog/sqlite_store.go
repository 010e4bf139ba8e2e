// Package accesslog provides the SQLite-backed access log store.
package accesslog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mcpgate/mcpgate/internal/domain/accesslog"
)

// SQLiteStore implements accesslog.Store on a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ accesslog.Store = (*SQLiteStore)(nil)

// tsLayout is a fixed-width RFC 3339 variant. The constant fraction width
// keeps lexicographic string order equal to chronological order, which the
// range filters and ORDER BY rely on.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// NewSQLiteStore opens (or creates) the access log database at path and
// bootstraps its schema. Parent directories are created as needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps appends from blocking readers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	// One writer at a time; modernc's driver is not safe for concurrent
	// write connections.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("access log store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS access_log (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL,
			outcome TEXT NOT NULL,
			server_name TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_access_log_ts ON access_log(ts);
		CREATE INDEX IF NOT EXISTS idx_access_log_username ON access_log(username);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Append records one entry, generating ID and Timestamp when unset.
func (s *SQLiteStore) Append(ctx context.Context, e *accesslog.Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_log (id, ts, username, path, outcome, server_name, tool_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().Format(tsLayout),
		e.Username,
		e.Path,
		string(e.Outcome),
		e.ServerName,
		e.ToolName,
	)
	if err != nil {
		return fmt.Errorf("inserting access log entry: %w", err)
	}
	return nil
}

// normalizeLimit applies the default (100) and cap (1000) page size.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const filterClause = `
	WHERE (? = '' OR username = ?)
	  AND (? = '' OR server_name = ?)
	  AND (? = '' OR tool_name = ?)
	  AND (? = '' OR outcome = ?)
	  AND (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR ts <= ?)
`

func filterArgs(f accesslog.Filter) []any {
	var sinceStr, untilStr *string
	if f.Since != nil {
		s := f.Since.UTC().Format(tsLayout)
		sinceStr = &s
	}
	if f.Until != nil {
		s := f.Until.UTC().Format(tsLayout)
		untilStr = &s
	}
	return []any{
		f.Username, f.Username,
		f.ServerName, f.ServerName,
		f.ToolName, f.ToolName,
		string(f.Outcome), string(f.Outcome),
		sinceStr, sinceStr,
		untilStr, untilStr,
	}
}

// Query returns matching entries newest first, plus the total match count.
// Both come from one transaction so a page and its count describe the same
// snapshot.
func (s *SQLiteStore) Query(ctx context.Context, f accesslog.Filter) (*accesslog.Page, error) {
	limit := normalizeLimit(f.Limit)
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args := filterArgs(f)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("beginning query transaction: %w", err)
	}
	defer tx.Rollback()

	var total int
	countQuery := "SELECT COUNT(*) FROM access_log" + filterClause
	if err := tx.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting access log entries: %w", err)
	}

	listQuery := `SELECT id, ts, username, path, outcome, server_name, tool_name
		FROM access_log` + filterClause + `
		ORDER BY ts DESC, id DESC
		LIMIT ? OFFSET ?`
	rows, err := tx.QueryContext(ctx, listQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying access log: %w", err)
	}
	defer rows.Close()

	entries := make([]accesslog.Entry, 0, limit)
	for rows.Next() {
		var e accesslog.Entry
		var tsStr, outcomeStr string
		if err := rows.Scan(&e.ID, &tsStr, &e.Username, &e.Path, &outcomeStr,
			&e.ServerName, &e.ToolName); err != nil {
			return nil, fmt.Errorf("scanning access log entry: %w", err)
		}
		e.Timestamp, err = time.Parse(tsLayout, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		e.Outcome = accesslog.Outcome(outcomeStr)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access log rows: %w", err)
	}

	return &accesslog.Page{Entries: entries, TotalCount: total}, nil
}

// Aggregate computes stats over the trailing windowDays (all history when
// windowDays <= 0). Top users are ranked by call count, ties broken by most
// recent activity.
func (s *SQLiteStore) Aggregate(ctx context.Context, windowDays int) (*accesslog.Stats, error) {
	var cutoff string
	if windowDays > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -windowDays).Format(tsLayout)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("beginning stats transaction: %w", err)
	}
	defer tx.Rollback()

	stats := &accesslog.Stats{}
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT CASE WHEN username != '' THEN username END),
		       COUNT(DISTINCT CASE WHEN server_name != '' THEN server_name END),
		       COUNT(DISTINCT CASE WHEN tool_name != '' THEN tool_name END)
		FROM access_log
		WHERE (? = '' OR ts >= ?)`,
		cutoff, cutoff,
	).Scan(&stats.TotalCalls, &stats.UniqueUsers, &stats.UniqueServers, &stats.UniqueTools)
	if err != nil {
		return nil, fmt.Errorf("aggregating totals: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT username, COUNT(*) AS calls, MAX(ts) AS last_ts
		FROM access_log
		WHERE username != '' AND (? = '' OR ts >= ?)
		GROUP BY username
		ORDER BY calls DESC, last_ts DESC
		LIMIT 10`,
		cutoff, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating top users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u accesslog.UserStat
		var tsStr string
		if err := rows.Scan(&u.Username, &u.Calls, &tsStr); err != nil {
			return nil, fmt.Errorf("scanning user stat: %w", err)
		}
		u.LastActivity, err = time.Parse(tsLayout, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing last activity: %w", err)
		}
		stats.TopUsers = append(stats.TopUsers, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user stats: %w", err)
	}

	return stats, nil
}

// Prune deletes entries strictly older than before and reports the count.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM access_log WHERE ts < ?",
		before.UTC().Format(tsLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning access log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	if n > 0 {
		s.logger.Info("access log pruned", "deleted", n, "before", before.UTC())
	}
	return n, nil
}

// ClearAll deletes every entry.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM access_log"); err != nil {
		return fmt.Errorf("clearing access log: %w", err)
	}
	s.logger.Info("access log cleared")
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
