package locator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-projections/internal/browser"
	"github.com/albapepper/scoracle-projections/internal/browser/fixture"
)

const toolbar = `<html><body>
<div class="toolbar">
  <button id="csv-left" data-x="400" data-y="300">Download CSV</button>
  <button id="csv-hidden" hidden data-x="1500" data-y="300">Download CSV</button>
  <button id="csv-right" data-x="1200" data-y="300">Download CSV</button>
  <button id="csv-footer" data-x="1600" data-y="900">Download CSV</button>
  <button id="export" disabled>EXPORT</button>
</div>
<div id="stat-type" class="MuiFormControl-root">
  <label>Stat Type</label>
  <button id="stat-btn">Skater</button>
</div>
<div class="MuiFormControl-root"><label>Slate</label><button id="slate-btn">Main</button></div>
<ul><li id="opt-1">Passing Yards</li><li id="opt-2">Passing</li></ul>
</body></html>`

func newDriver(t *testing.T) *fixture.Driver {
	t.Helper()
	d := fixture.New(map[string]string{"https://x.test/": toolbar})
	require.NoError(t, d.Navigate(context.Background(), "https://x.test/"))
	return d
}

func TestResolveFirstStrategyWins(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(nil)

	el, err := r.Resolve(context.Background(), d, []Strategy{
		Text("button", "Nope"),
		TextContains("button", "download csv"),
		Selector("#csv-right"),
	})
	require.NoError(t, err)
	require.Equal(t, "csv-left", el.Attr("id"), "document order tie-break")
}

func TestResolveSkipsHiddenAndDisabled(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(nil)

	_, err := r.Resolve(context.Background(), d, []Strategy{Text("button", "EXPORT"), Selector("#csv-hidden")})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolvePositionRightmostInRegion(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(nil)

	el, err := r.Resolve(context.Background(), d, []Strategy{
		Position("button", "Download CSV", Region{MinX: 900, MinY: 200, MaxY: 500}),
	})
	require.NoError(t, err)
	require.Equal(t, "csv-right", el.Attr("id"))
}

func TestRegionZeroBoundsAreUnbounded(t *testing.T) {
	origin := browser.Rect{X: 0, Y: 0, Width: 10, Height: 10}
	require.True(t, Region{}.contains(origin))
	require.True(t, Region{MaxX: 100}.contains(origin))
	require.False(t, Region{MinX: 5}.contains(origin))
	require.False(t, Region{MinX: 900}.contains(browser.Rect{X: 900, Y: 300}))
	require.False(t, Region{MaxY: 500}.contains(browser.Rect{X: 10, Y: 500}))
}

func TestResolveContainer(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(nil)

	el, err := r.Resolve(context.Background(), d, []Strategy{
		Container(".MuiFormControl-root", "Stat Type", "button"),
	})
	require.NoError(t, err)
	require.Equal(t, "stat-btn", el.Attr("id"))
}

func TestResolveExactBeforeContains(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(nil)

	el, err := r.Resolve(context.Background(), d, []Strategy{
		Text("li", "Passing"),
		TextContains("li", "Passing"),
	})
	require.NoError(t, err)
	require.Equal(t, "opt-2", el.Attr("id"))
}

func TestResolveIsDeterministic(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(nil)
	strategies := []Strategy{TextContains("button", "csv").RightmostWins()}

	first, err := r.Resolve(context.Background(), d, strategies)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), d, strategies)
		require.NoError(t, err)
		require.Equal(t, first.Attr("id"), again.Attr("id"))
	}
	require.Equal(t, "csv-footer", first.Attr("id"))
}

func TestResolveNeverActivates(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(nil)

	_, err := r.Resolve(context.Background(), d, []Strategy{Selector("#csv-left")})
	require.NoError(t, err)
	require.Empty(t, d.Activated)

	_, err = r.Activate(context.Background(), d, []Strategy{Selector("#csv-left")})
	require.NoError(t, err)
	require.Equal(t, []string{"csv-left"}, d.Activated)
}

func TestResolveBadSelectorFallsThrough(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(nil)

	el, err := r.Resolve(context.Background(), d, []Strategy{Selector("button[[["), Selector("#slate-btn")})
	require.NoError(t, err)
	require.Equal(t, "slate-btn", el.Attr("id"))
}
