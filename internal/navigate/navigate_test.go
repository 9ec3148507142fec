package navigate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-projections/internal/browser/fixture"
)

const nflURL = "https://dimers.test/nfl/projections"

func TestLoadVerifiesContent(t *testing.T) {
	d := fixture.New(map[string]string{nflURL: `<body><h1>Football Projections</h1></body>`})
	c := NewController(nil, nil, 0)

	err := c.Load(context.Background(), d, Page{URL: nflURL, URLContains: []string{"nfl"}, Markers: []string{"NFL", "Football"}})
	require.NoError(t, err)
	require.Len(t, d.Navigations, 1)
}

func TestLoadReloadsOnceThenFails(t *testing.T) {
	d := fixture.New(map[string]string{nflURL: `<body><h1>NBA Projections</h1></body>`})
	c := NewController(nil, nil, 0)

	err := c.Load(context.Background(), d, Page{URL: nflURL, Markers: []string{"NFL", "Football"}})
	require.ErrorIs(t, err, ErrMismatch)
	require.Len(t, d.Navigations, 2)
}

func TestLoadURLMismatch(t *testing.T) {
	d := fixture.New(map[string]string{nflURL: `<body>NFL</body>`})
	c := NewController(nil, nil, 0)

	err := c.Load(context.Background(), d, Page{URL: nflURL, URLContains: []string{"nba"}})
	require.ErrorIs(t, err, ErrMismatch)
}

func TestLoadNavigationError(t *testing.T) {
	d := fixture.New(nil)
	c := NewController(nil, nil, 0)

	err := c.Load(context.Background(), d, Page{URL: nflURL})
	require.ErrorIs(t, err, ErrMismatch)
	require.Len(t, d.Navigations, 2)
}
