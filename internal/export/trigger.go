// Package export fires a dashboard's export control and, for sources that
// expose the export as a link, fetches the artifact directly over HTTP.
package export

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/albapepper/scoracle-projections/internal/browser"
	"github.com/albapepper/scoracle-projections/internal/locator"
)

// ErrNoLink means the export control carries neither href nor data-pointer.
var ErrNoLink = errors.New("export: control has no link")

// Trigger activates export controls.
type Trigger struct {
	logger   *slog.Logger
	resolver *locator.Resolver
	now      func() time.Time
}

// NewTrigger creates a trigger.
func NewTrigger(logger *slog.Logger, resolver *locator.Resolver) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{logger: logger, resolver: resolver, now: time.Now}
}

// Fire resolves the export control, records T0 and clicks it.
func (t *Trigger) Fire(ctx context.Context, d browser.Driver, strategies []locator.Strategy) (time.Time, error) {
	el, err := t.resolver.Resolve(ctx, d, strategies)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve export control: %w", err)
	}
	t0 := t.now()
	if err := d.Activate(ctx, el); err != nil {
		return t0, fmt.Errorf("activate export control: %w", err)
	}
	t.logger.Debug("Export fired", "element", el.Describe(), "t0", t0)
	return t0, nil
}

// Link resolves the export control and returns the absolute URL it points
// at, from href or a base64 data-pointer. Nothing is clicked.
func (t *Trigger) Link(ctx context.Context, d browser.Driver, strategies []locator.Strategy, base string) (string, error) {
	el, err := t.resolver.Resolve(ctx, d, strategies)
	if err != nil {
		return "", fmt.Errorf("resolve export link: %w", err)
	}
	return LinkOf(el, base)
}

// LinkOf extracts the download URL of el relative to base.
func LinkOf(el browser.Element, base string) (string, error) {
	if href := strings.TrimSpace(el.Attr("href")); usable(href) {
		return absolute(base, href)
	}
	if ptr := strings.TrimSpace(el.Attr("data-pointer")); ptr != "" {
		raw, err := base64.StdEncoding.DecodeString(ptr)
		if err != nil {
			return "", fmt.Errorf("decode data-pointer: %w", err)
		}
		return absolute(base, string(raw))
	}
	return "", fmt.Errorf("%w: %s", ErrNoLink, el.Describe())
}

func usable(href string) bool {
	return href != "" && href != "#" && !strings.HasPrefix(strings.ToLower(href), "javascript:")
}

func absolute(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", ref, err)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return b.ResolveReference(r).String(), nil
}
