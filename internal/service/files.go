package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

// GetRepositoryFile returns the contents of a file inside a repository.
// relPath may not escape the repository root, neither lexically nor through
// symlinks.
func (s *Service) GetRepositoryFile(ctx context.Context, id int64, relPath string) (string, error) {
	repo, err := s.store.GetRepository(ctx, id)
	if err != nil {
		return "", err
	}

	target, err := resolveInside(repo.Path, relPath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", relPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", codesearch.ErrInvalidPath, relPath)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", relPath, err)
	}
	return string(data), nil
}

// resolveInside joins relPath to root and resolves symlinks, rejecting any
// result outside root. A missing file inside root is ErrNotFound.
func resolveInside(root, relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("%w: file path is required", codesearch.ErrInvalidPath)
	}
	if filepath.IsAbs(relPath) || strings.HasPrefix(relPath, "/") {
		return "", fmt.Errorf("%w: file path must be relative: %s", codesearch.ErrInvalidPath, relPath)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("%w: repository root unavailable: %v", codesearch.ErrNotFound, err)
	}

	joined := filepath.Join(realRoot, filepath.FromSlash(relPath))
	if !within(realRoot, joined) {
		return "", fmt.Errorf("%w: %s escapes the repository root", codesearch.ErrInvalidPath, relPath)
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: file %s", codesearch.ErrNotFound, relPath)
		}
		return "", fmt.Errorf("resolving %s: %w", relPath, err)
	}
	if !within(realRoot, resolved) {
		return "", fmt.Errorf("%w: %s resolves outside the repository root", codesearch.ErrInvalidPath, relPath)
	}
	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
