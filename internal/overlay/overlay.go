// Package overlay clears modal popups, cookie banners and promo layers that
// intercept clicks on dashboard controls.
package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/albapepper/scoracle-projections/internal/browser"
	"github.com/albapepper/scoracle-projections/internal/poll"
)

// DefaultCloseSelectors match explicitly labeled close controls.
var DefaultCloseSelectors = []string{
	`[aria-label="Close"]`,
	`[aria-label="close"]`,
	`button.close`,
	`.modal-close`,
	`[data-dismiss="modal"]`,
	`button[class*="close"]`,
}

const (
	defaultRounds = 3
	defaultSettle = 500 * time.Millisecond

	// Icon-only buttons smaller than this are treated as close affordances
	// when they sit near a viewport edge.
	smallButtonMax = 60.0
	cornerFraction = 0.25

	iconButtonSelector = `button:has(svg)`
)

// Dismisser runs bounded dismissal rounds.
type Dismisser struct {
	logger    *slog.Logger
	rounds    int
	settle    time.Duration
	selectors []string
	scripts   []string
}

// Option configures a Dismisser.
type Option func(*Dismisser)

// WithRounds overrides the number of rounds.
func WithRounds(n int) Option { return func(x *Dismisser) { x.rounds = n } }

// WithSettle overrides the pause after each round.
func WithSettle(d time.Duration) Option { return func(x *Dismisser) { x.settle = d } }

// WithSelectors appends source-specific close selectors.
func WithSelectors(sel ...string) Option {
	return func(x *Dismisser) { x.selectors = append(x.selectors, sel...) }
}

// WithScripts adds page scripts evaluated once before the rounds, e.g. to
// hide sticky banners no button closes.
func WithScripts(js ...string) Option {
	return func(x *Dismisser) { x.scripts = append(x.scripts, js...) }
}

// NewDismisser creates a dismisser with the default close selectors.
func NewDismisser(logger *slog.Logger, opts ...Option) *Dismisser {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Dismisser{
		logger:    logger,
		rounds:    defaultRounds,
		settle:    defaultSettle,
		selectors: append([]string(nil), DefaultCloseSelectors...),
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Dismiss activates close affordances for up to the configured number of
// rounds and returns how many were clicked. Failures are logged, never
// returned.
func (x *Dismisser) Dismiss(ctx context.Context, d browser.Driver) int {
	for _, js := range x.scripts {
		if _, err := d.EvaluateScript(ctx, js); err != nil {
			x.logger.Debug("Overlay script failed", "error", err)
		}
	}

	clicked := 0
	for round := 1; round <= x.rounds; round++ {
		if ctx.Err() != nil {
			break
		}
		targets := x.affordances(ctx, d)
		if len(targets) == 0 {
			break
		}
		for _, el := range targets {
			if err := d.Activate(ctx, el); err != nil {
				x.logger.Debug("Overlay close failed", "element", el.Describe(), "error", err)
				continue
			}
			clicked++
		}
		if _, err := d.EvaluateScript(ctx, browser.EscapeScript); err != nil {
			x.logger.Debug("Escape dispatch failed", "error", err)
		}
		if err := poll.Settle(ctx, x.settle); err != nil {
			break
		}
	}
	if clicked > 0 {
		x.logger.Info("Dismissed overlays", "clicked", clicked)
	}
	return clicked
}

func (x *Dismisser) affordances(ctx context.Context, d browser.Driver) []browser.Element {
	var out []browser.Element
	seen := map[string]bool{}
	add := func(el browser.Element) {
		k := fingerprint(el)
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, el)
	}

	els, err := d.FindElements(ctx, strings.Join(x.selectors, ", "))
	if err != nil {
		x.logger.Debug("Close selector query failed", "error", err)
	}
	for _, el := range els {
		if el.Interactable() {
			add(el)
		}
	}

	view, err := d.Viewport(ctx)
	if err != nil || view.Width == 0 || view.Height == 0 {
		return out
	}
	icons, err := d.FindElements(ctx, iconButtonSelector)
	if err != nil {
		x.logger.Debug("Icon button query failed", "error", err)
		return out
	}
	for _, el := range icons {
		if el.Interactable() && small(el.Box) && nearEdge(el.Box, view) {
			add(el)
		}
	}
	return out
}

func small(b browser.Rect) bool {
	return b.Width > 0 && b.Height > 0 && b.Width < smallButtonMax && b.Height < smallButtonMax
}

func nearEdge(b, view browser.Rect) bool {
	bandX, bandY := view.Width*cornerFraction, view.Height*cornerFraction
	left := b.X < bandX
	right := b.X+b.Width > view.Width-bandX
	top := b.Y < bandY
	bottom := b.Y+b.Height > view.Height-bandY
	return (left || right) && (top || bottom)
}

func fingerprint(el browser.Element) string {
	return fmt.Sprintf("%s|%s|%s|%s|%.0f,%.0f", el.Tag, el.Attr("id"), el.Attr("class"), el.Text, el.Box.X, el.Box.Y)
}
