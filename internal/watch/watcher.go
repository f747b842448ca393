// Package watch re-indexes a repository when its files change.
//
// Every directory under the root that the ignore rules allow is watched with
// fsnotify. Bursts of events are coalesced: the rebuild runs once the tree has
// been quiet for the debounce interval.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codesearch/internal/ignore"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 2 * time.Second

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// ReindexFunc rebuilds the index for the watched repository.
type ReindexFunc func(ctx context.Context) error

// Config configures a Watcher.
type Config struct {
	Root             string
	Debounce         time.Duration
	SkipDirs         []string
	RespectGitignore bool
}

// Watcher triggers a rebuild after changes under Root settle.
type Watcher struct {
	root     string
	debounce time.Duration
	rules    *ignore.Rules
	reindex  ReindexFunc
	watcher  *fsnotify.Watcher
	logger   *zap.Logger

	mu      sync.Mutex
	runs    int
	lastErr error
}

// New creates a Watcher over cfg.Root. Call Run to start it.
func New(cfg Config, reindex ReindexFunc, logger *zap.Logger) (*Watcher, error) {
	if reindex == nil {
		return nil, fmt.Errorf("reindex function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	rules, err := ignore.Load(root, ignore.Options{SkipDirs: cfg.SkipDirs, RespectGitignore: cfg.RespectGitignore})
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		rules:    rules,
		reindex:  reindex,
		watcher:  fw,
		logger:   logger.With(zap.String("root", root)),
	}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is done. It closes the underlying watcher
// on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	// timerC is nil while no rebuild is pending.
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.logger.Info("watching repository", zap.Duration("debounce", w.debounce))
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("watching new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.rebuild(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Runs returns the number of rebuilds attempted and the last error.
func (w *Watcher) Runs() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs, w.lastErr
}

func (w *Watcher) rebuild(ctx context.Context) {
	start := time.Now()
	err := w.reindex(ctx)

	w.mu.Lock()
	w.runs++
	w.lastErr = err
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("re-index failed", zap.Error(err))
		return
	}
	w.logger.Info("re-indexed after change", zap.Duration("duration", time.Since(start)))
}

// relevant drops chmod-only events and events inside skipped paths.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return true
	}
	if w.rules.SkipFile(rel) {
		return false
	}
	dir := filepath.ToSlash(filepath.Dir(rel))
	for dir != "." && dir != "/" {
		if w.rules.SkipDir(dir) {
			return false
		}
		dir = filepath.ToSlash(filepath.Dir(dir))
	}
	return !w.rules.IsSkippedDirName(filepath.Base(rel))
}

// addTree watches dir and every non-skipped directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root {
			rel, err := filepath.Rel(w.root, p)
			if err != nil {
				return err
			}
			if w.rules.SkipDir(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}
