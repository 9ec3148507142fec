package source

import (
	"time"

	"github.com/albapepper/scoracle-projections/internal/auth"
	"github.com/albapepper/scoracle-projections/internal/locator"
	"github.com/albapepper/scoracle-projections/internal/navigate"
)

const dimersBase = "https://www.dimers.com"

var dimersMarkers = map[string][]string{
	"nba": {"NBA"},
	"nfl": {"NFL", "Football"},
}

// Dimers renders projections for free users with obscured values, so the
// session is judged by counting decimal cells. Its page has several
// "Download CSV" controls; the live one is the rightmost in the toolbar.
func Dimers() Adapter {
	a := Adapter{
		ID:      "dimers",
		Name:    "Dimers",
		BaseURL: dimersBase,
		Verify:  auth.Verify{Mode: auth.VerifyByNumericCells, Threshold: auth.DefaultThreshold},
		Login: auth0Login(dimersBase+"/nba/player-projections", []locator.Strategy{
			locator.TextContains("button", "log in"),
			locator.Selector(`a[href*="login"], a[href*="auth"]`),
		}),
		Settle: 5 * time.Second,
	}
	for _, sport := range []string{"nba", "nfl"} {
		a.Targets = append(a.Targets, Target{
			SourceID: "dimers",
			Sport:    sport,
			Page: navigate.Page{
				URL:         dimersBase + "/" + sport + "/player-projections",
				URLContains: []string{sport},
				Markers:     dimersMarkers[sport],
			},
			Export: []locator.Strategy{
				locator.Position("button, a, div, span", "Download CSV", locator.Region{MinX: 900, MinY: 200, MaxY: 500}),
				locator.Text("button, a", "Download CSV").RightmostWins(),
				locator.TextContains("button, a", "download csv").RightmostWins(),
			},
			Acquire:   ViaDownload,
			FileHints: []string{"projections", "player"},
		})
	}
	return a
}
