package source

import (
	"time"

	"github.com/albapepper/scoracle-projections/internal/auth"
	"github.com/albapepper/scoracle-projections/internal/browser"
	"github.com/albapepper/scoracle-projections/internal/locator"
	"github.com/albapepper/scoracle-projections/internal/navigate"
)

const rotogrindersBase = "https://rotogrinders.com"

// Rotogrinders exposes its "Download as CSV" control as a link (href or a
// base64 data-pointer), so exports are fetched directly with the session
// cookies instead of waiting on a browser download.
func Rotogrinders() Adapter {
	a := Adapter{
		ID:      "rotogrinders",
		Name:    "Rotogrinders",
		BaseURL: rotogrindersBase,
		Verify: auth.Verify{
			Mode:       auth.VerifyByMarker,
			SignInPath: "/sign-in",
			Marker: []locator.Strategy{
				locator.Selector("a[href*='sign-out'], a[href*='logout']"),
				locator.TextContains("a, button", "log out"),
				locator.TextContains("a, button", "sign out"),
			},
		},
		Login: auth.Flow{
			Steps: []auth.Step{
				auth.Navigate(rotogrindersBase + "/sign-in"),
				auth.FillUsername(locator.Selector("input[name='username']")),
				auth.FillPassword(locator.Selector("input[name='password']")),
				auth.Click(locator.Selector("input[type='submit']"), locator.Selector("button[type='submit']")),
			},
			Settle:    8 * time.Second,
			VerifyURL: rotogrindersBase + "/projected-stats/nba",
		},
		CloseSelectors: []string{`[class*="popup-close"]`},
		PageScripts:    []string{browser.HideStickyScript},
		Settle:         8 * time.Second,
	}
	for _, sport := range []string{"nba", "nfl", "nhl"} {
		a.Targets = append(a.Targets, Target{
			SourceID: "rotogrinders",
			Sport:    sport,
			Page: navigate.Page{
				URL:         rotogrindersBase + "/projected-stats/" + sport,
				URLContains: []string{"projected-stats/" + sport},
			},
			Export: []locator.Strategy{
				locator.TextContains("a", "Download as CSV"),
				locator.TextContains("button", "Download as CSV"),
				locator.TextContains("a", "Download"),
			},
			Acquire:   ViaLink,
			FileHints: []string{sport, "projected"},
		})
	}
	return a
}
