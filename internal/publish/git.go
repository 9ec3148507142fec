package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitPublisher shells out to git in a working tree.
type GitPublisher struct {
	Dir         string
	Remote      string
	Branch      string
	AuthorName  string
	AuthorEmail string
	Logger      *slog.Logger
}

func (g *GitPublisher) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *GitPublisher) git(ctx context.Context, args ...string) (int, string, error) {
	var full []string
	if g.AuthorName != "" {
		full = append(full, "-c", "user.name="+g.AuthorName)
	}
	if g.AuthorEmail != "" {
		full = append(full, "-c", "user.email="+g.AuthorEmail)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = g.Dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), strings.TrimSpace(out.String()), err
	}
	return 0, strings.TrimSpace(out.String()), err
}

// Stage runs git add on paths.
func (g *GitPublisher) Stage(ctx context.Context, paths []string) error {
	// Paths are relative to the process, not Dir.
	args := []string{"add", "--"}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p, err)
		}
		args = append(args, abs)
	}
	if _, out, err := g.git(ctx, args...); err != nil {
		return fmt.Errorf("git add: %w: %s", err, out)
	}
	return nil
}

// HasStagedChanges runs git diff --staged --quiet; exit 1 means changes.
func (g *GitPublisher) HasStagedChanges(ctx context.Context) (bool, error) {
	code, out, err := g.git(ctx, "diff", "--staged", "--quiet")
	switch {
	case err == nil:
		return false, nil
	case code == 1:
		return true, nil
	default:
		return false, fmt.Errorf("git diff: %w: %s", err, out)
	}
}

// Commit records the staged changes.
func (g *GitPublisher) Commit(ctx context.Context, message string) error {
	if _, out, err := g.git(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %w: %s", err, out)
	}
	return nil
}

// Push pushes to Remote/Branch, or the upstream when unset.
func (g *GitPublisher) Push(ctx context.Context) error {
	args := []string{"push"}
	if g.Remote != "" {
		args = append(args, g.Remote)
		if g.Branch != "" {
			args = append(args, "HEAD:"+g.Branch)
		}
	}
	_, out, err := g.git(ctx, args...)
	if err != nil {
		return fmt.Errorf("git push: %w: %s", err, out)
	}
	g.logger().Info("Pushed", "remote", g.Remote, "branch", g.Branch)
	return nil
}

var _ Publisher = (*GitPublisher)(nil)
