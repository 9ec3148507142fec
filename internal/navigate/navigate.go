// Package navigate loads source pages and verifies the browser actually
// landed on the requested source and sport.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/albapepper/scoracle-projections/internal/browser"
	"github.com/albapepper/scoracle-projections/internal/overlay"
	"github.com/albapepper/scoracle-projections/internal/poll"
)

// ErrMismatch means the loaded page does not belong to the requested
// source or sport, even after a reload.
var ErrMismatch = errors.New("navigate: page mismatch")

// maxReloads is the reload budget after a mismatch.
const maxReloads = 1

// Page is a navigation target and how to recognise it.
type Page struct {
	URL string
	// URLContains must all appear in the final location (case-insensitive).
	URLContains []string
	// Markers: at least one must appear in the body text. Empty skips the check.
	Markers []string
}

// Controller navigates and verifies.
type Controller struct {
	logger    *slog.Logger
	dismisser *overlay.Dismisser
	settle    time.Duration
}

// NewController creates a controller. settle is the pause after each load
// for client-side rendering.
func NewController(logger *slog.Logger, dismisser *overlay.Dismisser, settle time.Duration) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{logger: logger, dismisser: dismisser, settle: settle}
}

// Load navigates to p, clears overlays and verifies content, reloading
// once on mismatch.
func (c *Controller) Load(ctx context.Context, d browser.Driver, p Page) error {
	var reason string
	for attempt := 0; attempt <= maxReloads; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Page mismatch, reloading", "url", p.URL, "reason", reason)
		}
		if err := d.Navigate(ctx, p.URL); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			reason = err.Error()
			continue
		}
		if err := poll.Settle(ctx, c.settle); err != nil {
			return err
		}
		if c.dismisser != nil {
			c.dismisser.Dismiss(ctx, d)
		}
		ok, why, err := c.verify(ctx, d, p)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		reason = why
	}
	return fmt.Errorf("%w: %s: %s", ErrMismatch, p.URL, reason)
}

func (c *Controller) verify(ctx context.Context, d browser.Driver, p Page) (bool, string, error) {
	loc, err := d.Location(ctx)
	if err != nil {
		return false, "", fmt.Errorf("read location: %w", err)
	}
	lower := strings.ToLower(loc)
	for _, want := range p.URLContains {
		if !strings.Contains(lower, strings.ToLower(want)) {
			return false, fmt.Sprintf("location %s lacks %q", loc, want), nil
		}
	}
	if len(p.Markers) == 0 {
		return true, "", nil
	}
	bodies, err := d.FindElements(ctx, "body")
	if err != nil {
		return false, "", fmt.Errorf("read body: %w", err)
	}
	for _, b := range bodies {
		for _, m := range p.Markers {
			if strings.Contains(b.Text, m) {
				return true, "", nil
			}
		}
	}
	return false, fmt.Sprintf("content lacks any of %v", p.Markers), nil
}
