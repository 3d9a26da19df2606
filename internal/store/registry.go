package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Entry is one canonical token in the registry with its observation history.
type Entry struct {
	Email       string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	SeenCount   int64
}

// Registry is the durable, cross-job set of all canonical tokens ever
// observed. Tokens are created on first observation and updated (never
// deleted) on every subsequent one.
type Registry struct {
	db *sql.DB
}

// NewRegistry creates a registry backed by db.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// UpsertBatch records one observation of every token in a single transaction.
// Each entry is an atomic insert-or-increment, so seen_count stays accurate
// when batches from concurrent jobs interleave.
func (r *Registry) UpsertBatch(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO emails (email, first_seen_at, last_seen_at, seen_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(email) DO UPDATE SET
			last_seen_at = excluded.last_seen_at,
			seen_count   = seen_count + 1`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, token, now, now); err != nil {
			return fmt.Errorf("upsert token %q: %w", token, err)
		}
	}
	return tx.Commit()
}

// Count returns the total number of distinct tokens ever seen.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emails`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count emails: %w", err)
	}
	return n, nil
}

// Search returns tokens containing q (case-insensitive), most-recently-seen
// first, with the total match count. An empty q matches everything.
func (r *Registry) Search(ctx context.Context, q string, limit, offset int) ([]Entry, int, error) {
	// Canonical tokens are stored lowercase, so lowering the needle is enough.
	pattern := "%" + strings.ToLower(q) + "%"

	rows, err := r.db.QueryContext(ctx, `
		SELECT email, first_seen_at, last_seen_at, seen_count
		FROM emails
		WHERE email LIKE ?
		ORDER BY last_seen_at DESC, id DESC
		LIMIT ? OFFSET ?`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search emails: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var first, last int64
		if err := rows.Scan(&e.Email, &first, &last, &e.SeenCount); err != nil {
			return nil, 0, fmt.Errorf("scan email row: %w", err)
		}
		e.FirstSeenAt = time.Unix(first, 0)
		e.LastSeenAt = time.Unix(last, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("search emails: %w", err)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM emails WHERE email LIKE ?`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}
	return entries, total, nil
}
