package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

const repositoryColumns = `id, name, path, description, files, file_count, indexed, analyzed_at, branch, commit_hash`

// CreateRepository inserts repo and sets its ID.
func (s *Store) CreateRepository(ctx context.Context, repo *codesearch.Repository) error {
	files := repo.Files
	if files == nil {
		files = []string{}
	}
	encoded, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encoding file list: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.q(
			`INSERT INTO repositories (name, path, description, files, file_count, indexed, analyzed_at, branch, commit_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			repo.Name, repo.Path, repo.Description, string(encoded), repo.FileCount,
			repo.Indexed, formatTime(repo.AnalyzedAt), repo.Branch, repo.Commit)
		if err := row.Scan(&repo.ID); err != nil {
			return fmt.Errorf("inserting repository: %w", err)
		}
		return nil
	})
}

// GetRepository returns the repository with id, or ErrNotFound.
func (s *Store) GetRepository(ctx context.Context, id int64) (*codesearch.Repository, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT `+repositoryColumns+` FROM repositories WHERE id = ?`), id)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: repository %d", codesearch.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// ListRepositories returns every repository ordered by id.
func (s *Store) ListRepositories(ctx context.Context) ([]*codesearch.Repository, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	repos := []*codesearch.Repository{}
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// MarkIndexed sets the indexed flag of repository id.
func (s *Store) MarkIndexed(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE repositories SET indexed = ? WHERE id = ?`), true, id)
		if err != nil {
			return fmt.Errorf("marking repository indexed: %w", err)
		}
		return requireAffected(res, "repository", id)
	})
}

// DeleteRepository removes the repository and all of its snippets in one
// transaction. A missing repository yields ErrNotFound.
func (s *Store) DeleteRepository(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM snippets WHERE repository_id = ?`), id); err != nil {
			return fmt.Errorf("deleting snippets: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM repositories WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("deleting repository: %w", err)
		}
		return requireAffected(res, "repository", id)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (*codesearch.Repository, error) {
	var (
		repo       codesearch.Repository
		files      string
		analyzedAt string
	)
	if err := row.Scan(&repo.ID, &repo.Name, &repo.Path, &repo.Description, &files,
		&repo.FileCount, &repo.Indexed, &analyzedAt, &repo.Branch, &repo.Commit); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(files), &repo.Files); err != nil {
		return nil, fmt.Errorf("decoding file list of repository %d: %w", repo.ID, err)
	}
	t, err := parseTime(analyzedAt)
	if err != nil {
		return nil, err
	}
	repo.AnalyzedAt = t
	return &repo, nil
}

func requireAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", codesearch.ErrNotFound, what, id)
	}
	return nil
}
