package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

const snippetColumns = `s.id, s.repository_id, r.name, s.file_path, s.code, s.name, s.start_line, s.end_line, s.language`

// maxIDsPerQuery keeps IN lists under SQLite's variable limit.
const maxIDsPerQuery = 500

// CreateSnippets inserts snippets in a single transaction and fills in their
// IDs. The owning repository must exist.
func (s *Store) CreateSnippets(ctx context.Context, snippets []codesearch.Snippet) error {
	if len(snippets) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insertSnippets(ctx, tx, snippets)
	})
}

// ReplaceSnippets deletes every snippet of repoID and inserts snippets in
// their place, in one transaction. IDs are never reused, so index entries
// for the deleted rows resolve to nothing.
func (s *Store) ReplaceSnippets(ctx context.Context, repoID int64, snippets []codesearch.Snippet) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM snippets WHERE repository_id = ?`), repoID); err != nil {
			return fmt.Errorf("deleting previous snippets: %w", err)
		}
		for _, sn := range snippets {
			if sn.RepositoryID != repoID {
				return fmt.Errorf("snippet %s belongs to repository %d, not %d", sn.FilePath, sn.RepositoryID, repoID)
			}
		}
		return s.insertSnippets(ctx, tx, snippets)
	})
}

func (s *Store) insertSnippets(ctx context.Context, tx *sql.Tx, snippets []codesearch.Snippet) error {
	if len(snippets) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, s.q(
		`INSERT INTO snippets (repository_id, file_path, code, name, start_line, end_line, language)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`))
	if err != nil {
		return fmt.Errorf("preparing snippet insert: %w", err)
	}
	defer stmt.Close()

	for i := range snippets {
		sn := &snippets[i]
		if err := stmt.QueryRowContext(ctx,
			sn.RepositoryID, sn.FilePath, sn.Code,
			nullString(sn.Name), nullInt(sn.StartLine), nullInt(sn.EndLine), sn.Language,
		).Scan(&sn.ID); err != nil {
			return fmt.Errorf("inserting snippet %s: %w", sn.FilePath, err)
		}
	}
	return nil
}

// GetSnippet returns the snippet with id, including its repository name, or
// ErrNotFound.
func (s *Store) GetSnippet(ctx context.Context, id int64) (*codesearch.Snippet, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT `+snippetColumns+`
		 FROM snippets s JOIN repositories r ON r.id = s.repository_id
		 WHERE s.id = ?`), id)
	sn, err := scanSnippet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: snippet %d", codesearch.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return sn, nil
}

// GetSnippets returns the snippets that still exist among ids, keyed by id.
// Missing ids are absent from the map.
func (s *Store) GetSnippets(ctx context.Context, ids []int64) (map[int64]*codesearch.Snippet, error) {
	out := make(map[int64]*codesearch.Snippet, len(ids))
	for start := 0; start < len(ids); start += maxIDsPerQuery {
		end := min(start+maxIDsPerQuery, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		rows, err := s.db.QueryContext(ctx, s.q(
			`SELECT `+snippetColumns+`
			 FROM snippets s JOIN repositories r ON r.id = s.repository_id
			 WHERE s.id IN (`+placeholders(len(batch))+`)`), args...)
		if err != nil {
			return nil, fmt.Errorf("loading snippets: %w", err)
		}
		for rows.Next() {
			sn, err := scanSnippet(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[sn.ID] = sn
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CountSnippets returns how many snippets repository repoID owns.
func (s *Store) CountSnippets(ctx context.Context, repoID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM snippets WHERE repository_id = ?`), repoID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting snippets: %w", err)
	}
	return n, nil
}

func scanSnippet(row rowScanner) (*codesearch.Snippet, error) {
	var (
		sn         codesearch.Snippet
		name       sql.NullString
		start, end sql.NullInt64
	)
	if err := row.Scan(&sn.ID, &sn.RepositoryID, &sn.RepositoryName, &sn.FilePath, &sn.Code,
		&name, &start, &end, &sn.Language); err != nil {
		return nil, err
	}
	if name.Valid {
		sn.Name = codesearch.Ptr(name.String)
	}
	if start.Valid {
		sn.StartLine = codesearch.Ptr(int(start.Int64))
	}
	if end.Valid {
		sn.EndLine = codesearch.Ptr(int(end.Int64))
	}
	return &sn, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
