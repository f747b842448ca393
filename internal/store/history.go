package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

// RecordSearch appends a history entry stamped with the current time.
func (s *Store) RecordSearch(ctx context.Context, query string, count int) (*codesearch.SearchHistoryEntry, error) {
	entry := &codesearch.SearchHistoryEntry{
		Query:       query,
		ResultCount: count,
		SearchedAt:  time.Now().UTC(),
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, s.q(
			`INSERT INTO search_history (query, result_count, searched_at) VALUES (?, ?, ?) RETURNING id`),
			entry.Query, entry.ResultCount, formatTime(entry.SearchedAt),
		).Scan(&entry.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("recording search: %w", err)
	}
	return entry, nil
}

// ListHistory returns every history entry, newest first.
func (s *Store) ListHistory(ctx context.Context) ([]codesearch.SearchHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, result_count, searched_at FROM search_history ORDER BY searched_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	entries := []codesearch.SearchHistoryEntry{}
	for rows.Next() {
		var (
			e  codesearch.SearchHistoryEntry
			at string
		)
		if err := rows.Scan(&e.ID, &e.Query, &e.ResultCount, &at); err != nil {
			return nil, err
		}
		if e.SearchedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteHistoryEntry removes one entry, or returns ErrNotFound.
func (s *Store) DeleteHistoryEntry(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM search_history WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("deleting history entry: %w", err)
		}
		return requireAffected(res, "history entry", id)
	})
}
