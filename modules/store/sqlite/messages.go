package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/contextcore/contextd/internal/memory"
)

// Insert persists msg in one transaction together with the session registry
// upsert. The next seq is assigned inside the transaction and the timestamp
// is clamped so it never precedes the session's latest stored message, which
// keeps (seq, ts) ordering consistent even when callers supply their own
// timestamps.
func (s *messageStore) Insert(ctx context.Context, msg memory.Message) (memory.Message, error) {
	metadataJSON := []byte("{}")
	if len(msg.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(msg.Metadata)
		if err != nil {
			return memory.Message{}, fmt.Errorf("sqlite: marshal metadata: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memory.Message{}, fmt.Errorf("sqlite: begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq, maxTS sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT MAX(seq), MAX(ts) FROM messages WHERE session_id = ?", msg.SessionID,
	).Scan(&maxSeq, &maxTS)
	if err != nil {
		return memory.Message{}, fmt.Errorf("sqlite: read session tail: %w", err)
	}

	msg.Seq = maxSeq.Int64 + 1
	ts := msg.Timestamp.UnixNano()
	if maxTS.Valid && ts < maxTS.Int64 {
		ts = maxTS.Int64
	}
	msg.Timestamp = time.Unix(0, ts)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, seq, role, type, content, metadata, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Seq, string(msg.Role), string(msg.Type),
		msg.Content, string(metadataJSON), ts,
	); err != nil {
		return memory.Message{}, fmt.Errorf("sqlite: insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, created_at, last_activity, message_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (session_id) DO UPDATE SET
			last_activity = excluded.last_activity,
			message_count = message_count + 1`,
		msg.SessionID, ts, ts,
	); err != nil {
		return memory.Message{}, fmt.Errorf("sqlite: upsert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return memory.Message{}, fmt.Errorf("sqlite: commit insert: %w", err)
	}
	return msg, nil
}

// GetByIDs hydrates messages by ID, preserving the order of ids. Unknown IDs
// are silently skipped.
func (s *messageStore) GetByIDs(ctx context.Context, sessionID string, ids []string) ([]memory.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+1)
	args = append(args, sessionID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, seq, role, type, content, metadata, ts
		FROM messages
		WHERE session_id = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get by ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]memory.Message, len(ids))
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		byID[msg.ID] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: get by ids rows: %w", err)
	}

	out := make([]memory.Message, 0, len(byID))
	for _, id := range ids {
		if msg, ok := byID[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Recent returns up to limit messages for the session, most recent first,
// skipping offset newer messages.
func (s *messageStore) Recent(ctx context.Context, sessionID string, limit, offset int, typeFilter memory.MessageType) ([]memory.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, session_id, seq, role, type, content, metadata, ts
		FROM messages
		WHERE session_id = ?`
	args := []any{sessionID}
	if typeFilter != "" {
		query += " AND type = ?"
		args = append(args, string(typeFilter))
	}
	query += " ORDER BY ts DESC, seq DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []memory.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: get recent rows: %w", err)
	}
	return msgs, nil
}

// Stats summarizes the session in two queries, zero-valued when the session
// has no messages.
func (s *messageStore) Stats(ctx context.Context, sessionID string) (memory.Stats, error) {
	stats := memory.Stats{SessionID: sessionID, ByType: make(map[memory.MessageType]int64)}

	var count int64
	var minTS, maxTS sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(ts), MAX(ts) FROM messages WHERE session_id = ?", sessionID,
	).Scan(&count, &minTS, &maxTS)
	if err != nil {
		return memory.Stats{}, fmt.Errorf("sqlite: stats summary: %w", err)
	}
	stats.MessageCount = count
	if minTS.Valid {
		stats.FirstTimestamp = time.Unix(0, minTS.Int64)
	}
	if maxTS.Valid {
		stats.LastTimestamp = time.Unix(0, maxTS.Int64)
	}
	if count == 0 {
		return stats, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT type, COUNT(*) FROM messages WHERE session_id = ? GROUP BY type", sessionID,
	)
	if err != nil {
		return memory.Stats{}, fmt.Errorf("sqlite: stats by type: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return memory.Stats{}, fmt.Errorf("sqlite: scan type count: %w", err)
		}
		stats.ByType[memory.MessageType(typ)] = n
	}
	if err := rows.Err(); err != nil {
		return memory.Stats{}, fmt.Errorf("sqlite: stats rows: %w", err)
	}
	return stats, nil
}

// Clear removes all messages and the registry row for a session.
func (s *messageStore) Clear(ctx context.Context, sessionID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin clear tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: clear messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: clear rows affected: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID); err != nil {
		return 0, fmt.Errorf("sqlite: clear session row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit clear: %w", err)
	}
	return n, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (memory.Message, error) {
	var (
		msg          memory.Message
		role         string
		typ          string
		metadataJSON string
		ts           int64
	)

	if err := s.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &role, &typ, &msg.Content, &metadataJSON, &ts); err != nil {
		return msg, fmt.Errorf("sqlite: scan message: %w", err)
	}

	msg.Role = memory.Role(role)
	msg.Type = memory.MessageType(typ)
	msg.Timestamp = time.Unix(0, ts)

	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &msg.Metadata); err != nil {
			return msg, fmt.Errorf("sqlite: unmarshal metadata: %w", err)
		}
	}

	return msg, nil
}
