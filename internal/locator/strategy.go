// Package locator resolves page elements through ordered fallback strategies.
//
// Sources rename and move their controls without notice, so each logical
// control ("export button", "Stat Type dropdown") is described by a list of
// strategies tried in order. The first one that yields a visible, enabled
// element wins.
package locator

import (
	"fmt"
	"strings"

	"github.com/albapepper/scoracle-projections/internal/browser"
)

// Kind selects how a Strategy matches candidates.
type Kind int

const (
	// ByText matches Selector candidates on their text.
	ByText Kind = iota + 1
	// BySelector matches any Selector candidate.
	BySelector
	// ByPosition matches Selector candidates on text and a bounding region.
	ByPosition
	// ByContainer matches Selector candidates inside the innermost Container
	// element whose text contains Text.
	ByContainer
)

func (k Kind) String() string {
	switch k {
	case ByText:
		return "text"
	case BySelector:
		return "selector"
	case ByPosition:
		return "position"
	case ByContainer:
		return "container"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TieBreak picks among several qualifying candidates.
type TieBreak int

const (
	// FirstInDocument picks the lowest document order.
	FirstInDocument TieBreak = iota
	// Rightmost picks the greatest x coordinate.
	Rightmost
)

// Region bounds an element's top-left corner. Bounds are exclusive; zero
// values are unbounded.
type Region struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

func (r Region) contains(b browser.Rect) bool {
	if r.MinX > 0 && b.X <= r.MinX {
		return false
	}
	if r.MinY > 0 && b.Y <= r.MinY {
		return false
	}
	if r.MaxX > 0 && b.X >= r.MaxX {
		return false
	}
	if r.MaxY > 0 && b.Y >= r.MaxY {
		return false
	}
	return true
}

// Strategy is one way of finding a control. Build with the constructors.
type Strategy struct {
	Kind     Kind
	Selector string
	Text     string
	// Contains matches Text as a substring instead of exactly.
	Contains bool
	// FoldCase makes text comparison case-insensitive.
	FoldCase  bool
	Region    Region
	Container string
	TieBreak  TieBreak
}

// Text matches elements under sel whose text equals text.
func Text(sel, text string) Strategy {
	return Strategy{Kind: ByText, Selector: sel, Text: text}
}

// TextContains matches elements under sel whose text contains text,
// ignoring case.
func TextContains(sel, text string) Strategy {
	return Strategy{Kind: ByText, Selector: sel, Text: text, Contains: true, FoldCase: true}
}

// Selector matches any element under sel.
func Selector(sel string) Strategy {
	return Strategy{Kind: BySelector, Selector: sel}
}

// Position matches elements under sel whose text equals text and whose
// top-left lies inside region, picking the rightmost.
func Position(sel, text string, region Region) Strategy {
	return Strategy{Kind: ByPosition, Selector: sel, Text: text, Region: region, TieBreak: Rightmost}
}

// Container matches inner elements of the innermost container whose text
// contains label.
func Container(container, label, inner string) Strategy {
	return Strategy{Kind: ByContainer, Container: container, Text: label, Selector: inner, Contains: true, FoldCase: true}
}

// Folded returns s with case-insensitive text comparison.
func (s Strategy) Folded() Strategy {
	s.FoldCase = true
	return s
}

// RightmostWins returns s with the rightmost tie-break.
func (s Strategy) RightmostWins() Strategy {
	s.TieBreak = Rightmost
	return s
}

func (s Strategy) String() string {
	switch s.Kind {
	case ByContainer:
		return fmt.Sprintf("container(%s ~ %q > %s)", s.Container, s.Text, s.Selector)
	case BySelector:
		return fmt.Sprintf("selector(%s)", s.Selector)
	default:
		return fmt.Sprintf("%s(%s %q)", s.Kind, s.Selector, s.Text)
	}
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (s Strategy) textMatches(text string) bool {
	if s.Text == "" {
		return true
	}
	got, want := normalizeText(text), normalizeText(s.Text)
	if s.FoldCase {
		got, want = strings.ToLower(got), strings.ToLower(want)
	}
	if s.Contains {
		return strings.Contains(got, want)
	}
	return got == want
}
