// Package ignore decides which directories and files of a repository are
// walked. It combines the built-in skip list with optional .gitignore rules
// and a per-repository .codesearch.toml override file.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// OverridesFile is read from the repository root when present.
const OverridesFile = ".codesearch.toml"

// DefaultSkipDirs are the version-control and dependency-cache directories
// that are never walked. Build output and editor directories are walked
// unless listed in ingest.skip_dirs or .codesearch.toml.
var DefaultSkipDirs = []string{
	".git", ".svn", ".hg",
	"node_modules", "vendor", ".venv", "venv", "__pycache__",
}

// Overrides is the shape of .codesearch.toml.
//
//	skip_dirs = ["fixtures"]
//	exclude   = ["*.min.js", "docs/generated/*"]
type Overrides struct {
	SkipDirs []string `toml:"skip_dirs"`
	Exclude  []string `toml:"exclude"`
}

// Options configures Load.
type Options struct {
	// SkipDirs are added to DefaultSkipDirs.
	SkipDirs []string

	// RespectGitignore applies the root .gitignore.
	RespectGitignore bool
}

// Rules answers skip questions for one repository root.
type Rules struct {
	skipDirs map[string]bool
	exclude  []string
	matcher  gitignore.Matcher
}

// Load builds the rules for root.
func Load(root string, opts Options) (*Rules, error) {
	r := &Rules{skipDirs: make(map[string]bool)}
	for _, d := range DefaultSkipDirs {
		r.skipDirs[d] = true
	}
	for _, d := range opts.SkipDirs {
		r.skipDirs[d] = true
	}

	ov, err := LoadOverrides(root)
	if err != nil {
		return nil, err
	}
	for _, d := range ov.SkipDirs {
		r.skipDirs[d] = true
	}
	for _, p := range ov.Exclude {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("%s: invalid exclude pattern %q: %w", OverridesFile, p, err)
		}
		r.exclude = append(r.exclude, p)
	}

	if opts.RespectGitignore {
		patterns, err := parseFile(filepath.Join(root, ".gitignore"))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if len(patterns) > 0 {
			r.matcher = gitignore.NewMatcher(patterns)
		}
	}
	return r, nil
}

// Default returns rules with only the built-in skip list.
func Default() *Rules {
	r, _ := Load("", Options{})
	return r
}

// LoadOverrides reads root/.codesearch.toml; a missing file yields empty overrides.
func LoadOverrides(root string) (Overrides, error) {
	var ov Overrides
	if root == "" {
		return ov, nil
	}
	p := filepath.Join(root, OverridesFile)
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return ov, nil
	}
	if _, err := toml.DecodeFile(p, &ov); err != nil {
		return ov, fmt.Errorf("parsing %s: %w", OverridesFile, err)
	}
	return ov, nil
}

// SkipDir reports whether the directory at rel (slash-separated, relative to
// the root) must not be descended into.
func (r *Rules) SkipDir(rel string) bool {
	if r.skipDirs[path.Base(rel)] {
		return true
	}
	return r.matcher != nil && r.matcher.Match(strings.Split(rel, "/"), true)
}

// SkipFile reports whether the file at rel is excluded.
func (r *Rules) SkipFile(rel string) bool {
	base := path.Base(rel)
	for _, p := range r.exclude {
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return r.matcher != nil && r.matcher.Match(strings.Split(rel, "/"), false)
}

// IsSkippedDirName reports whether a bare directory name is in the skip set.
func (r *Rules) IsSkippedDirName(name string) bool {
	return r.skipDirs[name]
}

// parseFile reads a gitignore-style file into go-git patterns.
func parseFile(p string) ([]gitignore.Pattern, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}
