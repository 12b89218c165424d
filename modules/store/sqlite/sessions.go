package sqlite

import (
	"context"
	"fmt"
	"time"
)

// Exists reports whether the session has a registry row.
func (r *sessionRegistry) Exists(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE session_id = ?", sessionID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: session exists: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of live sessions.
func (r *sessionRegistry) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: session count: %w", err)
	}
	return n, nil
}

// IdleBefore lists sessions whose last activity predates cutoff, oldest
// first so the sweeper reclaims the stalest sessions before its next tick.
func (r *sessionRegistry) IdleBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT session_id FROM sessions WHERE last_activity < ? ORDER BY last_activity ASC",
		cutoff.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: idle sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: idle sessions rows: %w", err)
	}
	return ids, nil
}
