package repository

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/fyrsmithlabs/codesearch/internal/ignore"
)

// File is one regular file found under a repository root.
type File struct {
	// RelPath is slash-separated and relative to the root.
	RelPath string
	AbsPath string
	Size    int64
}

// WalkOptions configures Walk.
type WalkOptions struct {
	SkipDirs         []string
	RespectGitignore bool
}

// Walk lists the regular files under root in lexical order, skipping
// directories in the skip set. Symlinks are not followed.
func Walk(ctx context.Context, root string, opts WalkOptions) ([]File, error) {
	cleanRoot, err := validatePath(root)
	if err != nil {
		return nil, err
	}

	rules, err := ignore.Load(cleanRoot, ignore.Options{
		SkipDirs:         opts.SkipDirs,
		RespectGitignore: opts.RespectGitignore,
	})
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}

	var files []File
	err = filepath.WalkDir(cleanRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == cleanRoot {
				return err
			}
			// Unreadable subtrees are left out of the inventory.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == cleanRoot {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(cleanRoot, p)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rules.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || rules.SkipFile(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, File{RelPath: rel, AbsPath: p, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking file tree: %w", err)
	}
	return files, nil
}

// RelPaths returns the RelPath of every file.
func RelPaths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

// validatePath cleans path, makes it absolute and requires an existing directory.
func validatePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path cannot be empty", codesearch.ErrInvalidPath)
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", codesearch.ErrInvalidPath, path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: path does not exist: %s", codesearch.ErrInvalidPath, abs)
		}
		return "", fmt.Errorf("%w: stat %s: %v", codesearch.ErrInvalidPath, abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: path must be a directory: %s", codesearch.ErrInvalidPath, abs)
	}
	return abs, nil
}
