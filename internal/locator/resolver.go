package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/albapepper/scoracle-projections/internal/browser"
)

// ErrNotFound is returned when no strategy resolves.
var ErrNotFound = errors.New("locator: element not found")

// Resolver evaluates strategies against a driver.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve returns the element chosen by the first strategy that yields a
// visible, enabled candidate. It never clicks or types.
func (r *Resolver) Resolve(ctx context.Context, d browser.Driver, strategies []Strategy) (browser.Element, error) {
	for i, s := range strategies {
		if err := ctx.Err(); err != nil {
			return browser.Element{}, err
		}
		candidates, err := r.candidates(ctx, d, s)
		if err != nil {
			if ctx.Err() != nil {
				return browser.Element{}, ctx.Err()
			}
			r.logger.Debug("Strategy errored", "index", i, "strategy", s.String(), "error", err)
			continue
		}
		if el, ok := pick(s, candidates); ok {
			r.logger.Debug("Strategy resolved", "index", i, "strategy", s.String(), "element", el.Describe())
			return el, nil
		}
	}
	return browser.Element{}, fmt.Errorf("%w after %d strategies", ErrNotFound, len(strategies))
}

// Activate resolves strategies and clicks the result.
func (r *Resolver) Activate(ctx context.Context, d browser.Driver, strategies []Strategy) (browser.Element, error) {
	el, err := r.Resolve(ctx, d, strategies)
	if err != nil {
		return el, err
	}
	if err := d.Activate(ctx, el); err != nil {
		return el, fmt.Errorf("activate %s: %w", el.Describe(), err)
	}
	return el, nil
}

func (r *Resolver) candidates(ctx context.Context, d browser.Driver, s Strategy) ([]browser.Element, error) {
	switch s.Kind {
	case ByText, BySelector:
		els, err := d.FindElements(ctx, s.Selector)
		if err != nil {
			return nil, err
		}
		return filter(els, s.textMatches), nil

	case ByPosition:
		els, err := d.FindElements(ctx, s.Selector)
		if err != nil {
			return nil, err
		}
		return filter(els, s.textMatches, func(el browser.Element) bool {
			return s.Region.contains(el.Box)
		}), nil

	case ByContainer:
		return r.containerCandidates(ctx, d, s)
	}
	return nil, fmt.Errorf("unknown strategy kind %d", int(s.Kind))
}

// containerCandidates walks labeled containers from the innermost outward
// and returns the inner matches of the first one that has any. Matching
// containers nest (every ancestor of the label matches too), so reverse
// document order is innermost first.
func (r *Resolver) containerCandidates(ctx context.Context, d browser.Driver, s Strategy) ([]browser.Element, error) {
	containers, err := d.FindElements(ctx, s.Container)
	if err != nil {
		return nil, err
	}
	var inner []browser.Element
	loaded := false
	for i := len(containers) - 1; i >= 0; i-- {
		box := containers[i]
		if !box.Visible || !s.textMatches(box.Text) {
			continue
		}
		var found []browser.Element
		if id := box.Attr("id"); id != "" {
			scoped := make([]string, 0, 2)
			for _, part := range strings.Split(s.Selector, ",") {
				scoped = append(scoped, "#"+id+" "+strings.TrimSpace(part))
			}
			els, err := d.FindElements(ctx, strings.Join(scoped, ", "))
			if err != nil {
				return nil, err
			}
			found = filter(els, nil)
		} else {
			// Scope by bounding-box containment.
			if !loaded {
				if inner, err = d.FindElements(ctx, s.Selector); err != nil {
					return nil, err
				}
				loaded = true
			}
			found = filter(inner, nil, func(el browser.Element) bool {
				return box.Box.Contains(el.Box)
			})
		}
		if len(found) > 0 {
			return found, nil
		}
	}
	return nil, nil
}

func filter(els []browser.Element, text func(string) bool, extra ...func(browser.Element) bool) []browser.Element {
	out := els[:0:0]
	for _, el := range els {
		if !el.Interactable() {
			continue
		}
		if text != nil && !text(el.Text) {
			continue
		}
		ok := true
		for _, f := range extra {
			if !f(el) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, el)
		}
	}
	return out
}

func pick(s Strategy, els []browser.Element) (browser.Element, bool) {
	if len(els) == 0 {
		return browser.Element{}, false
	}
	best := els[0]
	for _, el := range els[1:] {
		switch s.TieBreak {
		case Rightmost:
			if el.Box.X > best.Box.X || (el.Box.X == best.Box.X && el.Order < best.Order) {
				best = el
			}
		default:
			if el.Order < best.Order {
				best = el
			}
		}
	}
	return best, true
}
