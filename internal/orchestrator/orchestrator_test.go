package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-projections/internal/auth"
	"github.com/albapepper/scoracle-projections/internal/browser"
	"github.com/albapepper/scoracle-projections/internal/browser/fixture"
	"github.com/albapepper/scoracle-projections/internal/config"
	"github.com/albapepper/scoracle-projections/internal/download"
	"github.com/albapepper/scoracle-projections/internal/export"
	"github.com/albapepper/scoracle-projections/internal/history"
	"github.com/albapepper/scoracle-projections/internal/locator"
	"github.com/albapepper/scoracle-projections/internal/navigate"
	"github.com/albapepper/scoracle-projections/internal/publish"
	"github.com/albapepper/scoracle-projections/internal/source"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const alphaBase = "https://alpha.test"

func pageURL(sport string) string { return alphaBase + "/" + sport + "/projections" }

const lockedPage = `<html><body><h1>Projections</h1>
<input id="user" name="username"><input id="pass" type="password">
<button id="submit">Log in</button>
<table><tr><td>--</td><td>--</td></tr></table>
</body></html>`

func unlockedPage() string {
	var b strings.Builder
	b.WriteString(`<html><body><button id="export">Export</button><table><tr>`)
	for i := 0; i < 25; i++ {
		b.WriteString("<td>1.5</td>")
	}
	b.WriteString(`</tr></table></body></html>`)
	return b.String()
}

func rawExport(rows int) string {
	var b strings.Builder
	b.WriteString("Player,Salary,Pts\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&b, "Player %d,%d,%d.5\n", i, 3000+i*100, 10+i)
	}
	return b.String()
}

func alphaAdapter(sports ...string) source.Adapter {
	a := source.Adapter{
		ID:      "alpha",
		Name:    "Alpha",
		BaseURL: alphaBase,
		Verify:  auth.Verify{Mode: auth.VerifyByNumericCells},
		Login: auth.Flow{
			Steps: []auth.Step{
				auth.FillUsername(locator.Selector("#user")),
				auth.FillPassword(locator.Selector("#pass")),
				auth.Click(locator.Selector("#submit")),
			},
			Settle:    time.Millisecond,
			VerifyURL: pageURL(sports[0]),
		},
	}
	for _, sport := range sports {
		a.Targets = append(a.Targets, source.Target{
			SourceID:  "alpha",
			Sport:     sport,
			Page:      navigate.Page{URL: pageURL(sport), URLContains: []string{sport}},
			Export:    []locator.Strategy{locator.Selector("#export")},
			Acquire:   source.ViaDownload,
			FileHints: []string{sport},
		})
	}
	return a
}

type fakePublisher struct {
	commits []string
}

func (f *fakePublisher) Stage(context.Context, []string) error          { return nil }
func (f *fakePublisher) HasStagedChanges(context.Context) (bool, error) { return true, nil }
func (f *fakePublisher) Push(context.Context) error                     { return nil }
func (f *fakePublisher) Commit(_ context.Context, msg string) error {
	f.commits = append(f.commits, msg)
	return nil
}

// fakeFetcher serves bodies by URL and records what it was asked for.
type fakeFetcher struct {
	bodies  map[string]string
	urls    []string
	cookies []browser.Cookie
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, cookies []browser.Cookie) ([]byte, error) {
	f.urls = append(f.urls, url)
	f.cookies = cookies
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s returned 404", url)
	}
	return []byte(body), nil
}

type fakeRecorder struct{ runs []*RunResult }

func (f *fakeRecorder) Record(_ context.Context, r *RunResult) error {
	f.runs = append(f.runs, r)
	return nil
}

type harness struct {
	dataDir string
	dlDir   string
	pub     *fakePublisher
	rec     *fakeRecorder
	creds   config.StaticCredentials
	fetcher export.DirectFetcher
}

func newHarness(t *testing.T) *harness {
	return &harness{
		dataDir: t.TempDir(),
		dlDir:   t.TempDir(),
		pub:     &fakePublisher{},
		rec:     &fakeRecorder{},
		creds:   config.StaticCredentials{"alpha": {Username: "me", Password: "secret"}},
	}
}

func (h *harness) run(t *testing.T, d *fixture.Driver, adapters ...source.Adapter) *RunResult {
	t.Helper()
	d.DownloadDir = h.dlDir
	o := New(Options{
		Open:        func(context.Context) (browser.Driver, error) { return d, nil },
		Credentials: h.creds,
		Watcher: download.NewWatcher(download.Config{
			Dirs:         []string{h.dlDir},
			PollInterval: 10 * time.Millisecond,
			Timeout:      200 * time.Millisecond,
		}, nil),
		Fetcher:   h.fetcher,
		Store:     history.NewStore(h.dataDir, nil),
		Publisher: h.pub,
		Recorder:  h.rec,
	})
	return o.Run(context.Background(), "", adapters)
}

// lockedAlpha serves a locked NBA page that unlocks after submit.
func lockedAlpha(raw string) *fixture.Driver {
	d := fixture.New(map[string]string{pageURL("nba"): lockedPage})
	d.OnClick["submit"] = fixture.SetPage(pageURL("nba"), unlockedPage())
	d.OnClick["export"] = fixture.WriteDownload("alpha_nba_projections.csv", raw)
	return d
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRunLogsInExportsAndPublishes(t *testing.T) {
	h := newHarness(t)
	d := lockedAlpha(rawExport(50))

	res := h.run(t, d, alphaAdapter("nba"))

	require.Len(t, res.Targets, 1)
	out := res.Targets[0].Outcome
	require.Equal(t, StatusSuccess, out.Status, out.Reason)
	require.Equal(t, 50, out.Records)
	require.Equal(t, filepath.Join(h.dataDir, "alpha_nba.csv"), out.Current)
	require.Equal(t, "me", d.Filled["user"])
	require.Equal(t, 1, d.Clicks("submit"))

	current, err := os.ReadFile(out.Current)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(current)), "\n")
	require.Len(t, lines, 51)
	require.True(t, strings.HasPrefix(lines[0], "player,salary,"))
	require.True(t, strings.HasPrefix(lines[1], "Player 1,3100,"))

	hist, err := os.ReadDir(filepath.Join(h.dataDir, history.HistoryDir))
	require.NoError(t, err)
	require.Len(t, hist, 1)

	require.Equal(t, publish.StatusPublished, res.Publish.Status)
	require.Len(t, h.pub.commits, 1)
	require.True(t, strings.HasPrefix(h.pub.commits[0], "Update Alpha projections - "))

	require.True(t, d.Closed)
	require.NotEmpty(t, res.RunID)
	require.Len(t, h.rec.runs, 1)
	require.Equal(t, 1, res.Succeeded())
}

func TestRerunWithIdenticalExportDoesNotPublish(t *testing.T) {
	h := newHarness(t)
	raw := rawExport(50)

	first := h.run(t, lockedAlpha(raw), alphaAdapter("nba"))
	require.Equal(t, publish.StatusPublished, first.Publish.Status)

	second := h.run(t, lockedAlpha(raw), alphaAdapter("nba"))
	require.Equal(t, StatusSuccess, second.Targets[0].Outcome.Status)
	require.Equal(t, publish.StatusUnchanged, second.Publish.Status)
	require.Len(t, h.pub.commits, 1)

	// History still grows by one file per run.
	hist, err := os.ReadDir(filepath.Join(h.dataDir, history.HistoryDir))
	require.NoError(t, err)
	require.Len(t, hist, 2)
}

func TestDownloadTimeoutFailsOnlyThatTarget(t *testing.T) {
	h := newHarness(t)
	d := fixture.New(map[string]string{
		pageURL("nba"): unlockedPage(),
		pageURL("nfl"): unlockedPage(),
	})
	// The NBA export never produces a file; the NFL one does.
	d.OnClick["export"] = func(d *fixture.Driver) error {
		if loc, _ := d.Location(context.Background()); strings.Contains(loc, "nfl") {
			return fixture.WriteDownload("alpha_nfl_projections.csv", "Player,Salary,FPTS\nA,5000,12.5\n")(d)
		}
		return nil
	}

	res := h.run(t, d, alphaAdapter("nba", "nfl"))

	require.Len(t, res.Targets, 2)
	require.Equal(t, StatusFailed, res.Targets[0].Outcome.Status)
	require.Equal(t, "export: download timeout", res.Targets[0].Outcome.Reason)
	require.Equal(t, StatusSuccess, res.Targets[1].Outcome.Status)
	require.Equal(t, 1, res.Targets[1].Outcome.Records)
	require.Equal(t, 1, res.Failed())
	require.Equal(t, 1, res.Succeeded())
	require.Equal(t, []string{"alpha_nba_download_timeout"}, d.Diagnostics)
	require.Equal(t, publish.StatusPublished, res.Publish.Status)
}

func TestAuthFailureFailsRemainingTargets(t *testing.T) {
	h := newHarness(t)
	h.creds = config.StaticCredentials{}
	d := fixture.New(map[string]string{pageURL("nba"): lockedPage, pageURL("nfl"): lockedPage})

	res := h.run(t, d, alphaAdapter("nba", "nfl"))

	require.Equal(t, 2, res.Failed())
	require.Contains(t, res.Targets[0].Outcome.Reason, "authenticate")
	require.Equal(t, "authentication failed", res.Targets[1].Outcome.Reason)
	// The second target is never loaded.
	require.Equal(t, []string{pageURL("nba")}, d.Navigations)
	require.Equal(t, publish.StatusUnchanged, res.Publish.Status)
	require.True(t, d.Closed)
}

func TestMissingControlSkipsTarget(t *testing.T) {
	h := newHarness(t)
	page := strings.Replace(unlockedPage(), `<button id="export">Export</button>`, "", 1)
	d := fixture.New(map[string]string{pageURL("nba"): page})

	res := h.run(t, d, alphaAdapter("nba"))

	require.Equal(t, StatusSkipped, res.Targets[0].Outcome.Status)
	require.Equal(t, 1, res.Skipped())
}

func TestRequiredPrepareStepMissingSkipsTarget(t *testing.T) {
	h := newHarness(t)
	d := fixture.New(map[string]string{pageURL("nba"): unlockedPage()})
	d.OnClick["export"] = fixture.WriteDownload("alpha_nba.csv", rawExport(3))

	a := alphaAdapter("nba")
	a.Targets[0].Prepare = []source.Step{
		{Name: "stats tab", Target: []locator.Strategy{locator.Text("button", "STATS")}, Optional: true},
		{Name: "stat type", Target: []locator.Strategy{locator.Text("li", "Passing")}},
	}
	res := h.run(t, d, a)
	require.Equal(t, StatusSkipped, res.Targets[0].Outcome.Status)
	require.True(t, strings.HasPrefix(res.Targets[0].Outcome.Reason, "stat type: "))

	a.Targets[0].Prepare = a.Targets[0].Prepare[:1]
	d2 := fixture.New(d.Pages)
	d2.OnClick["export"] = fixture.WriteDownload("alpha_nba.csv", rawExport(3))
	res = h.run(t, d2, a)
	require.Equal(t, StatusSuccess, res.Targets[0].Outcome.Status)
}

func TestBrowserUnavailable(t *testing.T) {
	h := newHarness(t)
	o := New(Options{
		Open:  func(context.Context) (browser.Driver, error) { return nil, errors.New("no chrome") },
		Store: history.NewStore(h.dataDir, nil),
	})
	res := o.Run(context.Background(), "run-1", []source.Adapter{alphaAdapter("nba", "nfl")})

	require.Equal(t, "run-1", res.RunID)
	require.Equal(t, 2, res.Failed())
	require.Equal(t, []string{"open browser: no chrome"}, res.Errors)
	require.Equal(t, publish.StatusDisabled, res.Publish.Status)
}

func TestRunResultSummary(t *testing.T) {
	res := &RunResult{RunID: "0a1b2c3d-0000", Duration: 1500 * time.Millisecond, Publish: publish.Outcome{Status: publish.StatusUnchanged}}
	res.Add(TargetResult{SourceID: "alpha", Outcome: Outcome{Status: StatusSuccess, Records: 10}})
	res.Add(TargetResult{SourceID: "beta", Outcome: Outcome{Status: StatusFailed}})
	require.Equal(t, "run=0a1b2c3d targets=2 succeeded=1 skipped=0 failed=1 records=10 publish=unchanged dur=1.5s", res.Summary())
	require.Equal(t, []string{"alpha"}, res.Sources())
}

func linkAdapter() source.Adapter {
	a := alphaAdapter("nba")
	a.Targets[0].Acquire = source.ViaLink
	return a
}

func TestLinkExportIsFetchedDirectly(t *testing.T) {
	h := newHarness(t)
	f := &fakeFetcher{bodies: map[string]string{alphaBase + "/exports/nba.csv": rawExport(3)}}
	h.fetcher = f
	page := strings.Replace(unlockedPage(), `<button id="export">Export</button>`,
		`<a id="export" href="/exports/nba.csv">Download as CSV</a>`, 1)
	d := fixture.New(map[string]string{pageURL("nba"): page})
	d.Jar = []browser.Cookie{{Name: "session", Value: "abc"}}

	res := h.run(t, d, linkAdapter())

	out := res.Targets[0].Outcome
	require.Equal(t, StatusSuccess, out.Status, out.Reason)
	require.Equal(t, 3, out.Records)
	require.Equal(t, []string{alphaBase + "/exports/nba.csv"}, f.urls)
	require.Equal(t, d.Jar, f.cookies)
	// Nothing is clicked for a link export.
	require.Equal(t, 0, d.Clicks("export"))
}

func TestLinklessControlFallsBackToDownload(t *testing.T) {
	h := newHarness(t)
	f := &fakeFetcher{}
	h.fetcher = f
	d := fixture.New(map[string]string{pageURL("nba"): unlockedPage()})
	d.OnClick["export"] = fixture.WriteDownload("alpha_nba_projections.csv", rawExport(2))

	res := h.run(t, d, linkAdapter())

	out := res.Targets[0].Outcome
	require.Equal(t, StatusSuccess, out.Status, out.Reason)
	require.Equal(t, 2, out.Records)
	require.Empty(t, f.urls)
	require.Equal(t, 1, d.Clicks("export"))
}
