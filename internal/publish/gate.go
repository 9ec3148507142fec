// Package publish commits and pushes current files only when their content
// changed since the last successful publish.
//
// Change detection uses a manifest of SHA-256 digests stored next to the
// data (.published.json). The manifest is rewritten only after a push
// succeeds, so a failed publish is retried naturally by the next run.
package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrPublish wraps any failure of the publisher verbs.
var ErrPublish = errors.New("publish: failed")

// ManifestName is the manifest file name inside the data directory.
const ManifestName = ".published.json"

// Publisher is the version-control collaborator.
type Publisher interface {
	Stage(ctx context.Context, paths []string) error
	HasStagedChanges(ctx context.Context) (bool, error)
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
}

// Status of a publish attempt.
type Status string

const (
	StatusPublished Status = "published"
	StatusUnchanged Status = "unchanged"
	StatusDisabled  Status = "disabled"
	StatusFailed    Status = "failed"
)

// Outcome is reported in the run result.
type Outcome struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Files   int    `json:"files"`
	Reason  string `json:"reason,omitempty"`
	Err     error  `json:"-"`
}

// Summary returns a one-line description.
func (o Outcome) Summary() string {
	switch o.Status {
	case StatusPublished:
		return fmt.Sprintf("published %d files: %s", o.Files, o.Message)
	case StatusFailed:
		return "publish failed: " + o.Reason
	default:
		if o.Reason != "" {
			return string(o.Status) + ": " + o.Reason
		}
		return string(o.Status)
	}
}

// Manifest maps file path to content digest.
type Manifest struct {
	Files       map[string]string `json:"files"`
	PublishedAt time.Time         `json:"published_at"`
}

// Gate decides whether to publish. Use one Gate per run.
type Gate struct {
	pub          Publisher
	manifestPath string
	logger       *slog.Logger
	now          func() time.Time
	attempted    bool
}

// NewGate creates a gate. dataDir holds the manifest.
func NewGate(pub Publisher, dataDir string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		pub:          pub,
		manifestPath: filepath.Join(dataDir, ManifestName),
		logger:       logger,
		now:          time.Now,
	}
}

// Changed reports whether any of paths differs from the manifest, and
// returns their digests.
func (g *Gate) Changed(paths []string) (bool, map[string]string, error) {
	m, err := g.load()
	if err != nil {
		return false, nil, err
	}
	digests := make(map[string]string, len(paths))
	changed := false
	for _, p := range paths {
		d, err := digest(p)
		if err != nil {
			return false, nil, err
		}
		key := filepath.ToSlash(filepath.Clean(p))
		digests[key] = d
		if m.Files[key] != d {
			changed = true
		}
	}
	return changed, digests, nil
}

// Publish stages, commits and pushes paths when their content changed.
// At most one publish action is attempted per Gate.
func (g *Gate) Publish(ctx context.Context, paths []string, message string) Outcome {
	if g.pub == nil {
		return Outcome{Status: StatusDisabled, Reason: "publishing disabled"}
	}
	if len(paths) == 0 {
		return Outcome{Status: StatusUnchanged, Reason: "no files written"}
	}
	if g.attempted {
		return Outcome{Status: StatusUnchanged, Reason: "already attempted this run"}
	}

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	changed, digests, err := g.Changed(sorted)
	if err != nil {
		return g.fail("hash files", err)
	}
	if !changed {
		g.logger.Info("Content unchanged, skipping publish", "files", len(sorted))
		return Outcome{Status: StatusUnchanged, Files: len(sorted), Reason: "content matches last publish"}
	}

	g.attempted = true
	if err := g.pub.Stage(ctx, sorted); err != nil {
		return g.fail("stage", err)
	}
	staged, err := g.pub.HasStagedChanges(ctx)
	if err != nil {
		return g.fail("inspect staged changes", err)
	}
	reason := ""
	if staged {
		if err := g.pub.Commit(ctx, message); err != nil {
			return g.fail("commit", err)
		}
	} else {
		// Committed by an earlier run whose push failed; push it now.
		reason = "pushed earlier commit"
	}
	if err := g.pub.Push(ctx); err != nil {
		return g.fail("push", err)
	}

	if err := g.save(digests); err != nil {
		// Pushed; the next run re-detects a change and pushes a no-op.
		g.logger.Warn("Could not update publish manifest", "error", err)
	}
	g.logger.Info("Published", "files", len(sorted), "message", message, "new_commit", staged)
	return Outcome{Status: StatusPublished, Message: message, Files: len(sorted), Reason: reason}
}

func (g *Gate) fail(step string, err error) Outcome {
	wrapped := fmt.Errorf("%w: %s: %w", ErrPublish, step, err)
	g.logger.Error("Publish failed", "step", step, "error", err)
	return Outcome{Status: StatusFailed, Reason: wrapped.Error(), Err: wrapped}
}

func (g *Gate) load() (Manifest, error) {
	m := Manifest{Files: map[string]string{}}
	b, err := os.ReadFile(g.manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		// A corrupt manifest means "publish everything".
		g.logger.Warn("Ignoring corrupt publish manifest", "path", g.manifestPath, "error", err)
		return Manifest{Files: map[string]string{}}, nil
	}
	if m.Files == nil {
		m.Files = map[string]string{}
	}
	return m, nil
}

func (g *Gate) save(digests map[string]string) error {
	m, err := g.load()
	if err != nil {
		return err
	}
	for k, v := range digests {
		m.Files[k] = v
	}
	m.PublishedAt = g.now().UTC()
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(g.manifestPath), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	tmp := g.manifestPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp, g.manifestPath)
}

func digest(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// CommitMessage formats "Update {Source} projections - YYYY-MM-DD HH:MM:SS".
func CommitMessage(sources []string, at time.Time) string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		if s == "" {
			continue
		}
		names = append(names, strings.ToUpper(s[:1])+s[1:])
	}
	label := strings.Join(names, ", ")
	if label == "" {
		label = "all"
	}
	return fmt.Sprintf("Update %s projections - %s", label, at.Format("2006-01-02 15:04:05"))
}
