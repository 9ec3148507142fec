// Package download captures files produced by browser-triggered exports.
//
// A Watcher polls one or more directories for a file that appeared after
// the export was fired, is complete, fresh and, when hints are given,
// plausibly named. Accepted files are read, deleted and remembered so the
// same artifact is never returned twice in a run.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/albapepper/scoracle-projections/internal/poll"
)

// ErrTimeout means no qualifying file appeared before the deadline.
var ErrTimeout = errors.New("download: timed out waiting for artifact")

const (
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultTimeout         = 15 * time.Second
	DefaultFreshnessWindow = 30 * time.Second
)

// PartialSuffixes mark in-progress browser downloads.
var PartialSuffixes = []string{".crdownload", ".part", ".tmp", ".download"}

// Artifact is a consumed download.
type Artifact struct {
	Path    string
	ModTime time.Time
	Size    int64
	Content []byte
}

// Request describes the expected file.
type Request struct {
	// Since is T0; files older than this are ignored. Whole-second mtimes
	// only need to fall in T0's second.
	Since time.Time
	// Extension such as ".csv". Empty accepts any.
	Extension string
	// Hints are case-insensitive name fragments preferred over other files.
	Hints []string
}

// Config tunes a Watcher.
type Config struct {
	Dirs            []string
	PollInterval    time.Duration
	Timeout         time.Duration
	FreshnessWindow time.Duration
}

// Watcher polls Dirs. It holds the consumed set for one run.
type Watcher struct {
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	consumed map[string]bool
}

// NewWatcher creates a watcher with an empty consumed set.
func NewWatcher(cfg Config, logger *slog.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{cfg: cfg, logger: logger, now: time.Now, consumed: map[string]bool{}}
}

type candidate struct {
	path    string
	modTime time.Time
	size    int64
}

func consumedKey(path string, mod time.Time) string {
	return path + "@" + mod.UTC().Format(time.RFC3339Nano)
}

// Await blocks until a qualifying file is accepted, the timeout elapses or
// ctx is done.
func (w *Watcher) Await(ctx context.Context, req Request) (*Artifact, error) {
	var got *Artifact
	err := poll.Until(ctx, w.cfg.PollInterval, w.cfg.Timeout, func(ctx context.Context) (bool, error) {
		c, ok := w.choose(req)
		if !ok {
			return false, nil
		}
		a, err := w.consume(c)
		if err != nil {
			// Vanished between scan and read; keep polling.
			w.logger.Debug("Candidate unreadable", "path", c.path, "error", err)
			return false, nil
		}
		got = a
		return true, nil
	})
	if errors.Is(err, poll.ErrDeadline) {
		return nil, fmt.Errorf("%w after %s in %v", ErrTimeout, w.cfg.Timeout, w.cfg.Dirs)
	}
	if err != nil {
		return nil, err
	}
	w.logger.Info("Download captured", "path", got.Path, "bytes", got.Size)
	return got, nil
}

// choose scans the directories and returns the newest qualifying file.
func (w *Watcher) choose(req Request) (candidate, bool) {
	now := w.now()
	var all []candidate
	for _, dir := range w.cfg.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			if partial(name) {
				continue
			}
			if req.Extension != "" && !strings.EqualFold(filepath.Ext(name), req.Extension) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			mod := info.ModTime()
			if !notBefore(mod, req.Since) || now.Sub(mod) > w.cfg.FreshnessWindow {
				continue
			}
			path := filepath.Join(dir, name)
			if w.consumed[consumedKey(path, mod)] {
				continue
			}
			all = append(all, candidate{path: path, modTime: mod, size: info.Size()})
		}
	}

	pool := all
	if len(req.Hints) > 0 {
		var hinted []candidate
		for _, c := range all {
			if matchesHint(filepath.Base(c.path), req.Hints) {
				hinted = append(hinted, c)
			}
		}
		if len(hinted) > 0 {
			pool = hinted
		}
	}
	if len(pool) == 0 {
		return candidate{}, false
	}
	best := pool[0]
	for _, c := range pool[1:] {
		if c.modTime.After(best.modTime) {
			best = c
		}
	}
	return best, true
}

func (w *Watcher) consume(c candidate) (*Artifact, error) {
	content, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	w.consumed[consumedKey(c.path, c.modTime)] = true
	if err := os.Remove(c.path); err != nil {
		w.logger.Warn("Could not delete artifact", "path", c.path, "error", err)
	}
	return &Artifact{Path: c.path, ModTime: c.modTime, Size: int64(len(content)), Content: content}, nil
}

// coarseMtime is the resolution of filesystems that drop sub-second mtimes.
const coarseMtime = time.Second

// notBefore reports mod >= since. An mtime with no sub-second part may come
// from a coarse filesystem, so it is compared against since at that
// resolution instead.
func notBefore(mod, since time.Time) bool {
	if !mod.Before(since) {
		return true
	}
	if mod.Nanosecond() == 0 {
		return !mod.Before(since.Truncate(coarseMtime))
	}
	return false
}

func partial(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range PartialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

func matchesHint(name string, hints []string) bool {
	lower := strings.ToLower(name)
	for _, h := range hints {
		if strings.Contains(lower, strings.ToLower(h)) {
			return true
		}
	}
	return false
}
