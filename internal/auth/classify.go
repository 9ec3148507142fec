// Package auth decides whether a dashboard session shows real data and
// drives the login flow when it does not.
package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/albapepper/scoracle-projections/internal/browser"
	"github.com/albapepper/scoracle-projections/internal/locator"
)

// State is the authentication state of a source session.
type State int

const (
	Unknown State = iota
	Locked
	Unlocked
	Failed
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session tracks one source's authentication across a run.
type Session struct {
	SourceID       string
	State          State
	LastVerifiedAt time.Time
}

// NewSession starts a session in the Unknown state.
func NewSession(sourceID string) *Session {
	return &Session{SourceID: sourceID, State: Unknown}
}

// Credentials for a login form.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether either value is missing.
func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

// VerifyMode chooses how Classify decides the state.
type VerifyMode int

const (
	// VerifyByNumericCells counts decimal values in data cells.
	VerifyByNumericCells VerifyMode = iota
	// VerifyByMarker looks for a logged-in indicator and checks the page
	// is not the sign-in URL.
	VerifyByMarker
)

// DefaultThreshold is the numeric-cell count above which data is
// considered visible.
const DefaultThreshold = 20

// DefaultCellSelector matches table data cells.
const DefaultCellSelector = "td"

var decimalCell = regexp.MustCompile(`^\d+\.\d+$`)

// Verify configures classification for a source.
type Verify struct {
	Mode         VerifyMode
	CellSelector string
	Threshold    int

	// Marker strategies find an element only rendered for signed-in users.
	Marker []locator.Strategy
	// SignInPath marks the login page; being on it means Locked.
	SignInPath string
}

func (v Verify) withDefaults() Verify {
	if v.CellSelector == "" {
		v.CellSelector = DefaultCellSelector
	}
	if v.Threshold <= 0 {
		v.Threshold = DefaultThreshold
	}
	return v
}

// CountNumericCells counts elements matching sel whose trimmed text is a
// decimal number such as "24.5".
func CountNumericCells(ctx context.Context, d browser.Driver, sel string) (int, error) {
	cells, err := d.FindElements(ctx, sel)
	if err != nil {
		return 0, fmt.Errorf("find cells: %w", err)
	}
	n := 0
	for _, c := range cells {
		if decimalCell.MatchString(strings.TrimSpace(c.Text)) {
			n++
		}
	}
	return n, nil
}

// Classify returns Unlocked when more than threshold cells hold decimal
// values, Locked otherwise.
func Classify(ctx context.Context, d browser.Driver, cellSelector string, threshold int) (State, error) {
	n, err := CountNumericCells(ctx, d, cellSelector)
	if err != nil {
		return Unknown, err
	}
	if n > threshold {
		return Unlocked, nil
	}
	return Locked, nil
}

func classifyByMarker(ctx context.Context, d browser.Driver, r *locator.Resolver, v Verify) (State, error) {
	if v.SignInPath != "" {
		loc, err := d.Location(ctx)
		if err != nil {
			return Unknown, fmt.Errorf("read location: %w", err)
		}
		if strings.Contains(loc, v.SignInPath) {
			return Locked, nil
		}
	}
	if len(v.Marker) == 0 {
		return Unlocked, nil
	}
	if _, err := r.Resolve(ctx, d, v.Marker); err != nil {
		if ctx.Err() != nil {
			return Unknown, ctx.Err()
		}
		return Locked, nil
	}
	return Unlocked, nil
}
