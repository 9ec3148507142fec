package source

import (
	"strings"
	"time"

	"github.com/albapepper/scoracle-projections/internal/auth"
	"github.com/albapepper/scoracle-projections/internal/locator"
	"github.com/albapepper/scoracle-projections/internal/navigate"
)

const stokasticBase = "https://tools.stokastic.com"

var stokasticStatTypes = map[string][]string{
	"nba": nil,
	"nhl": {"Skater"},
	"nfl": {"Passing", "Rushing", "Receiving"},
}

// Every stat type label the Stat Type dropdown can currently show.
var stokasticLabels = []string{"Passing", "Rushing", "Receiving", "Skater", "Goalie"}

// Stokastic is the DFS data hub. Tables sit behind an Auth0 login; NHL and
// NFL tables are split by a Stat Type dropdown on the STATS tab.
func Stokastic() Adapter {
	a := Adapter{
		ID:      "stokastic",
		Name:    "Stokastic",
		BaseURL: stokasticBase,
		Verify:  auth.Verify{Mode: auth.VerifyByNumericCells},
		Login: auth0Login(stokasticBase+"/datahub/NBA", []locator.Strategy{
			locator.Text("button", "LOG IN").Folded(),
			locator.TextContains("button, a", "log in"),
		}),
		Settle: 5 * time.Second,
	}
	for _, sport := range []string{"nba", "nhl", "nfl"} {
		stats := stokasticStatTypes[sport]
		if len(stats) == 0 {
			a.Targets = append(a.Targets, stokasticTarget(sport, ""))
			continue
		}
		for _, st := range stats {
			a.Targets = append(a.Targets, stokasticTarget(sport, st))
		}
	}
	return a
}

func stokasticTarget(sport, statType string) Target {
	t := Target{
		SourceID: "stokastic",
		Sport:    sport,
		StatType: statType,
		Page: navigate.Page{
			URL:         stokasticBase + "/datahub/" + strings.ToUpper(sport),
			URLContains: []string{"datahub/" + sport},
		},
		Prepare: []Step{statsTab()},
		Export: []locator.Strategy{
			locator.Text("button", "EXPORT"),
			locator.TextContains("button, a", "export"),
		},
		Acquire: ViaDownload,
	}
	if statType != "" {
		t.Prepare = append(t.Prepare, statTypeDropdown(), statTypeOption(statType))
	}
	return t
}

func statsTab() Step {
	return Step{
		Name: "stats tab",
		Target: []locator.Strategy{
			locator.Text("button, a, [role='tab']", "STATS"),
			locator.Text("div, span", "STATS"),
			locator.TextContains("button, a", "stats"),
		},
		Optional: true,
		Settle:   2 * time.Second,
	}
}

func statTypeDropdown() Step {
	s := Step{
		Name: "stat type dropdown",
		Target: []locator.Strategy{
			locator.Container("div", "Stat Type", "button, [role='combobox']"),
		},
		Settle: time.Second,
	}
	// The dropdown button shows the current selection.
	for _, label := range stokasticLabels {
		s.Target = append(s.Target, locator.Text("button", label))
	}
	s.Target = append(s.Target, locator.Selector("[role='combobox'], [role='listbox'], [class*='select'], [class*='dropdown']"))
	return s
}

func statTypeOption(statType string) Step {
	const options = "li, [role='option'], [role='menuitem']"
	return Step{
		Name: "stat type option " + statType,
		Target: []locator.Strategy{
			locator.Text(options, statType),
			locator.TextContains(options, statType),
		},
		Settle: 2 * time.Second,
	}
}
