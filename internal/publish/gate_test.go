package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	calls    []string
	staged   bool
	failPush error
}

func (f *fakePublisher) Stage(_ context.Context, paths []string) error {
	f.calls = append(f.calls, "stage")
	return nil
}

func (f *fakePublisher) HasStagedChanges(context.Context) (bool, error) {
	f.calls = append(f.calls, "diff")
	return f.staged, nil
}

func (f *fakePublisher) Commit(_ context.Context, msg string) error {
	f.calls = append(f.calls, "commit:"+msg)
	return nil
}

func (f *fakePublisher) Push(context.Context) error {
	f.calls = append(f.calls, "push")
	return f.failPush
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestPublishOnlyWhenChanged(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "alpha_nba.csv", "player,salary\nA,100\n")
	ctx := context.Background()

	pub := &fakePublisher{staged: true}
	out := NewGate(pub, dir, nil).Publish(ctx, []string{file}, "Update Alpha projections")
	require.Equal(t, StatusPublished, out.Status)
	require.Equal(t, []string{"stage", "diff", "commit:Update Alpha projections", "push"}, pub.calls)
	require.FileExists(t, filepath.Join(dir, ManifestName))

	// Next run, identical bytes.
	pub2 := &fakePublisher{staged: true}
	out = NewGate(pub2, dir, nil).Publish(ctx, []string{file}, "again")
	require.Equal(t, StatusUnchanged, out.Status)
	require.Empty(t, pub2.calls)

	// Content changes.
	writeFile(t, dir, "alpha_nba.csv", "player,salary\nA,200\n")
	pub3 := &fakePublisher{staged: true}
	out = NewGate(pub3, dir, nil).Publish(ctx, []string{file}, "third")
	require.Equal(t, StatusPublished, out.Status)
	require.Len(t, pub3.calls, 4)
}

func TestPublishAtMostOncePerRun(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "alpha_nba.csv", "x")
	pub := &fakePublisher{staged: true, failPush: errors.New("rejected")}
	g := NewGate(pub, dir, nil)

	out := g.Publish(context.Background(), []string{file}, "m")
	require.Equal(t, StatusFailed, out.Status)
	require.ErrorIs(t, out.Err, ErrPublish)

	out = g.Publish(context.Background(), []string{file}, "m")
	require.Equal(t, StatusUnchanged, out.Status)
	require.Equal(t, 1, count(pub.calls, "push"))
}

func TestFailedPushLeavesManifestUntouched(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "alpha_nba.csv", "x")

	out := NewGate(&fakePublisher{staged: true, failPush: errors.New("offline")}, dir, nil).
		Publish(context.Background(), []string{file}, "m")
	require.Equal(t, StatusFailed, out.Status)
	require.NoFileExists(t, filepath.Join(dir, ManifestName))

	// So the next run tries again.
	changed, _, err := NewGate(nil, dir, nil).Changed([]string{file})
	require.NoError(t, err)
	require.True(t, changed)
}

func TestPublishNothingStagedStillPushes(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "alpha_nba.csv", "x")
	pub := &fakePublisher{staged: false}

	out := NewGate(pub, dir, nil).Publish(context.Background(), []string{file}, "m")
	require.Equal(t, StatusPublished, out.Status)
	require.Equal(t, []string{"stage", "diff", "push"}, pub.calls)
	require.FileExists(t, filepath.Join(dir, ManifestName))
}

// gitRepo models an index, a local HEAD and a remote: commit moves HEAD to
// the index, push copies HEAD to the remote.
type gitRepo struct {
	index, head, remote string
	failPush            error
	pushes              int
}

func (g *gitRepo) Stage(_ context.Context, paths []string) error {
	var b []byte
	for _, p := range paths {
		c, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		b = append(b, c...)
	}
	g.index = string(b)
	return nil
}

func (g *gitRepo) HasStagedChanges(context.Context) (bool, error) { return g.index != g.head, nil }

func (g *gitRepo) Commit(context.Context, string) error {
	g.head = g.index
	return nil
}

func (g *gitRepo) Push(context.Context) error {
	g.pushes++
	if g.failPush != nil {
		return g.failPush
	}
	g.remote = g.head
	return nil
}

func TestFailedPushIsRetriedNextRun(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "alpha_nba.csv", "player\nA\n")
	repo := &gitRepo{failPush: errors.New("offline")}

	out := NewGate(repo, dir, nil).Publish(context.Background(), []string{file}, "m")
	require.Equal(t, StatusFailed, out.Status)
	require.Empty(t, repo.remote)

	// Same bytes, push works again: the pending commit reaches the remote.
	repo.failPush = nil
	out = NewGate(repo, dir, nil).Publish(context.Background(), []string{file}, "m")
	require.Equal(t, StatusPublished, out.Status)
	require.Equal(t, 2, repo.pushes)
	require.Equal(t, "player\nA\n", repo.remote)

	// Now it is published; a third run does nothing.
	out = NewGate(repo, dir, nil).Publish(context.Background(), []string{file}, "m")
	require.Equal(t, StatusUnchanged, out.Status)
	require.Equal(t, 2, repo.pushes)
}

func TestPublishDisabled(t *testing.T) {
	out := NewGate(nil, t.TempDir(), nil).Publish(context.Background(), []string{"x"}, "m")
	require.Equal(t, StatusDisabled, out.Status)
}

func TestCommitMessage(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.Equal(t, "Update Stokastic projections - 2026-03-04 05:06:07", CommitMessage([]string{"stokastic"}, at))
	require.Equal(t, "Update Dimers, Rotogrinders projections - 2026-03-04 05:06:07", CommitMessage([]string{"dimers", "rotogrinders"}, at))
}

func count(xs []string, want string) int {
	n := 0
	for _, x := range xs {
		if x == want {
			n++
		}
	}
	return n
}
