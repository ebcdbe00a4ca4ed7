// Package active watches a working tree for file edits and surfaces
// advisories from past memories before a change goes wrong the same way
// twice. The watcher is a side channel next to the hook protocol: editors
// that emit no lifecycle events still get advisories from filesystem
// activity.
package active

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/search"
	"github.com/engramhq/engram/pkg/session"
)

const (
	// DefaultRateLimit is the minimum interval between lookups for the
	// same file.
	DefaultRateLimit = 5 * time.Second

	// DefaultMinSimilarity is the similarity floor for watcher lookups.
	DefaultMinSimilarity = 0.5
	// advisoryThreshold is the similarity above which a hit becomes an
	// advisory.
	advisoryThreshold = 0.6
)

// defaultExtensions are the file types worth a lookup on change.
var defaultExtensions = []string{
	".py", ".js", ".ts", ".tsx", ".jsx", ".go", ".sql", ".css", ".html",
}

// skipDirs are directory names never descended into.
var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
	".venv":        {},
}

// WatcherConfig tunes the file watcher.
type WatcherConfig struct {
	// Root is the directory tree to watch. Required.
	Root string

	// Extensions whitelists file types. Defaults to defaultExtensions.
	Extensions []string

	// RateLimit is the per-file lookup cooldown. Defaults to
	// DefaultRateLimit.
	RateLimit time.Duration

	// MinSimilarity is the lookup similarity floor. Defaults to
	// DefaultMinSimilarity.
	MinSimilarity float64
}

// Watcher turns filesystem writes into advisory lookups.
type Watcher struct {
	cfg      WatcherConfig
	searcher *search.Searcher
	fswatch  *fsnotify.Watcher
	logger   *zap.Logger

	onAdvisory func(session.Advisory)

	mu       sync.Mutex
	lastSeen map[string]time.Time
	exts     map[string]struct{}
	nowFunc  func() time.Time
}

// NewWatcher builds a watcher over cfg.Root. Advisories are delivered
// through onAdvisory on the watch goroutine; the callback must not block.
func NewWatcher(searcher *search.Searcher, cfg WatcherConfig, onAdvisory func(session.Advisory), logger *zap.Logger) (*Watcher, error) {
	if searcher == nil {
		return nil, fmt.Errorf("active: searcher is required")
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("active: watch root is required")
	}
	if onAdvisory == nil {
		return nil, fmt.Errorf("active: advisory callback is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = DefaultMinSimilarity
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = defaultExtensions
	}

	fswatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}

	return &Watcher{
		cfg:        cfg,
		searcher:   searcher,
		fswatch:    fswatch,
		logger:     logger,
		onAdvisory: onAdvisory,
		lastSeen:   map[string]time.Time{},
		exts:       exts,
		nowFunc:    time.Now,
	}, nil
}

// Watch registers the tree under Root and blocks processing events until
// the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.addTree(w.cfg.Root); err != nil {
		return err
	}
	w.logger.Info("watching for file changes",
		zap.String("root", w.cfg.Root),
		zap.Duration("rate_limit", w.cfg.RateLimit))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fswatch.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fswatch.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fswatch.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	// New directories need registering so edits inside them are seen.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("watching new directory failed",
					zap.String("path", event.Name), zap.Error(err))
			}
			return
		}
	}

	if !w.watchable(event.Name) {
		return
	}
	if !w.admit(event.Name) {
		return
	}
	w.lookup(ctx, event.Name)
}

// admit applies the per-file rate limit.
func (w *Watcher) admit(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.nowFunc()
	if last, ok := w.lastSeen[path]; ok && now.Sub(last) < w.cfg.RateLimit {
		return false
	}
	w.lastSeen[path] = now
	return true
}

func (w *Watcher) watchable(path string) bool {
	_, ok := w.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (w *Watcher) lookup(ctx context.Context, path string) {
	name := filepath.Base(path)
	parent := filepath.Base(filepath.Dir(path))
	query := fmt.Sprintf("%s %s error bug fix", name, parent)

	resp, err := w.searcher.Search(ctx, search.Request{
		Query:         query,
		MinSimilarity: w.cfg.MinSimilarity,
	})
	if err != nil {
		w.logger.Warn("advisory lookup failed",
			zap.String("path", path), zap.Error(err))
		return
	}

	now := w.nowFunc()
	for _, r := range resp.Results {
		if r.Similarity <= advisoryThreshold || !describesError(r.Record) {
			continue
		}
		w.logger.Info("advisory for changed file",
			zap.String("path", path),
			zap.String("record_id", r.Record.ID),
			zap.Float64("similarity", r.Similarity))
		w.onAdvisory(session.Advisory{
			RecordID:   r.Record.ID,
			Title:      r.Record.Title,
			Preview:    preview(r.Record.Content),
			ErrorKind:  r.Record.Metadata[memory.MetadataErrorKind],
			Similarity: float32(r.Similarity),
			FilePath:   path,
			IssuedAt:   now,
		})
	}
}

// addTree registers root and every directory under it, skipping trees that
// only produce noise.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if _, skip := skipDirs[d.Name()]; skip && path != root {
			return filepath.SkipDir
		}
		if err := w.fswatch.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// describesError reports whether the record documents a past failure.
func describesError(r *memory.Record) bool {
	if r.IsErrorRecord() {
		return true
	}
	text := strings.ToLower(r.Title + " " + r.Content)
	for _, word := range []string{"error", "bug", "fix", "fail", "crash", "exception"} {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

func preview(content string) string {
	const n = 160
	content = strings.TrimSpace(content)
	if len(content) <= n {
		return content
	}
	return content[:n] + "..."
}
