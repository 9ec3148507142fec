// Package source describes each projection site as data: where its pages
// live, how to tell a signed-in session, how to log in and which controls
// export each table. One generic engine runs every Adapter.
package source

import (
	"sort"
	"strings"
	"time"

	"github.com/albapepper/scoracle-projections/internal/auth"
	"github.com/albapepper/scoracle-projections/internal/locator"
	"github.com/albapepper/scoracle-projections/internal/navigate"
)

// Acquire selects how an export becomes bytes.
type Acquire int

const (
	// ViaDownload clicks the export control and waits for the browser
	// download.
	ViaDownload Acquire = iota
	// ViaLink reads the control's link and fetches it with session cookies,
	// falling back to ViaDownload when the control has no link.
	ViaLink
)

func (a Acquire) String() string {
	if a == ViaLink {
		return "link"
	}
	return "download"
}

// Step is a pre-export interaction such as opening a tab or picking a stat
// type from a dropdown.
type Step struct {
	Name     string
	Target   []locator.Strategy
	Optional bool
	Settle   time.Duration
}

// Target is one exportable table: a (sport, stat type) pair of a source.
type Target struct {
	SourceID  string
	Sport     string
	StatType  string
	Page      navigate.Page
	Prepare   []Step
	Export    []locator.Strategy
	Acquire   Acquire
	FileHints []string
}

// Key identifies the target in logs and results, e.g. stokastic/nfl/passing.
func (t Target) Key() string {
	k := t.SourceID + "/" + t.Sport
	if t.StatType != "" {
		k += "/" + strings.ToLower(t.StatType)
	}
	return k
}

// Adapter is a source definition.
type Adapter struct {
	ID      string
	Name    string
	BaseURL string

	Verify auth.Verify
	Login  auth.Flow

	CloseSelectors []string
	PageScripts    []string
	// Settle is the pause after each page load.
	Settle time.Duration

	Targets []Target
}

// Sports returns the distinct sports of the adapter's targets, in target order.
func (a Adapter) Sports() []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range a.Targets {
		if !seen[t.Sport] {
			seen[t.Sport] = true
			out = append(out, t.Sport)
		}
	}
	return out
}

// Override customizes a built-in adapter from configuration.
type Override struct {
	Sports    []string
	StatTypes []string
	Threshold int
	Settle    time.Duration
	BaseURL   string
}

// With returns a copy of a with o applied. Empty fields leave defaults.
func (a Adapter) With(o Override) Adapter {
	if o.Threshold > 0 {
		a.Verify.Threshold = o.Threshold
	}
	if o.Settle > 0 {
		a.Settle = o.Settle
	}
	if o.BaseURL != "" {
		a = a.Rebase(o.BaseURL)
	}
	return a.Select(o.Sports, o.StatTypes)
}

// Rebase moves every page, login and verify URL under BaseURL to base.
// URLs on other hosts are left alone.
func (a Adapter) Rebase(base string) Adapter {
	base = strings.TrimRight(base, "/")
	old := a.BaseURL
	move := func(u string) string {
		if old != "" && strings.HasPrefix(u, old) {
			return base + strings.TrimPrefix(u, old)
		}
		return u
	}

	steps := make([]auth.Step, len(a.Login.Steps))
	for i, st := range a.Login.Steps {
		if st.Kind == auth.StepNavigate {
			st.URL = move(st.URL)
		}
		steps[i] = st
	}
	a.Login.Steps = steps
	a.Login.VerifyURL = move(a.Login.VerifyURL)

	targets := make([]Target, len(a.Targets))
	for i, t := range a.Targets {
		t.Page.URL = move(t.Page.URL)
		targets[i] = t
	}
	a.Targets = targets
	a.BaseURL = base
	return a
}

// Select keeps targets whose sport is in sports and, for targets with a
// stat type, whose stat type is in statTypes. Empty lists keep all.
func (a Adapter) Select(sports, statTypes []string) Adapter {
	if len(sports) == 0 && len(statTypes) == 0 {
		return a
	}
	sp, st := set(sports), set(statTypes)
	kept := make([]Target, 0, len(a.Targets))
	for _, t := range a.Targets {
		if len(sp) > 0 && !sp[strings.ToLower(t.Sport)] {
			continue
		}
		if len(st) > 0 && t.StatType != "" && !st[strings.ToLower(t.StatType)] {
			continue
		}
		kept = append(kept, t)
	}
	a.Targets = kept
	return a
}

func set(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		if x = strings.ToLower(strings.TrimSpace(x)); x != "" {
			m[x] = true
		}
	}
	return m
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

var builtins = map[string]func() Adapter{
	"stokastic":    Stokastic,
	"rotogrinders": Rotogrinders,
	"dimers":       Dimers,
}

// IDs lists the built-in source IDs, sorted.
func IDs() []string {
	ids := make([]string, 0, len(builtins))
	for id := range builtins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns a fresh built-in adapter.
func Lookup(id string) (Adapter, bool) {
	f, ok := builtins[strings.ToLower(id)]
	if !ok {
		return Adapter{}, false
	}
	return f(), true
}

// ---------------------------------------------------------------------------
// Shared locator data
// ---------------------------------------------------------------------------

var (
	usernameFields = []locator.Strategy{
		locator.Selector("input[name='username']"),
		locator.Selector("input[name='email']"),
		locator.Selector("input[type='email']"),
		locator.Selector("input#username"),
		locator.Selector("input[placeholder*='mail']"),
		locator.Selector("input[placeholder*='Email']"),
	}

	passwordFields = []locator.Strategy{
		locator.Selector("input[type='password']"),
	}

	submitButtons = []locator.Strategy{
		locator.TextContains("button", "continue"),
		locator.TextContains("button", "log in"),
		locator.TextContains("button", "sign in"),
		locator.Selector("button[type='submit']"),
		locator.Selector("input[type='submit']"),
	}
)

// Auth0 universal login, shared by hosted dashboards.
func auth0Login(entryURL string, openLogin []locator.Strategy) auth.Flow {
	return auth.Flow{
		Steps: []auth.Step{
			auth.Navigate(entryURL),
			auth.MaybeClick(openLogin...),
			auth.Pause(4 * time.Second),
			auth.FillUsername(usernameFields...),
			auth.FillPassword(passwordFields...),
			auth.Click(submitButtons...),
		},
		Settle:    6 * time.Second,
		VerifyURL: entryURL,
	}
}
