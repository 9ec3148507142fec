// Package normalize defines the canonical per-sport projection shapes that
// every source export is mapped into. These schemas are the contract between
// source adapters and the history files: adapters produce raw CSV, the
// normalizer maps it onto these fields, and downstream consumers only ever
// see canonical columns.
//
// Adding a source means its export headers must be reachable through the
// aliases below. The canonical output never changes per source.
package normalize

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSport is returned for sports without a schema.
var ErrUnknownSport = errors.New("normalize: unknown sport")

// IdentityColumn is the first column of every canonical CSV.
const IdentityColumn = "player"

// IdentityAliases are the raw headers tried, in order, for the player name.
var IdentityAliases = []string{"Player", "player", "Name", "name"}

// Field is a canonical column and the raw headers that feed it, in
// priority order.
type Field struct {
	Name    string
	Aliases []string
}

// Schema is a sport's canonical column list.
type Schema struct {
	Sport  string
	Fields []Field
}

// Header returns the canonical CSV header.
func (s Schema) Header() []string {
	h := make([]string, 0, len(s.Fields)+1)
	h = append(h, IdentityColumn)
	for _, f := range s.Fields {
		h = append(h, f.Name)
	}
	return h
}

var (
	salary   = Field{"salary", []string{"Salary", "salary"}}
	position = Field{"position", []string{"Position", "Pos", "pos"}}
	team     = Field{"team", []string{"Team", "team"}}
	opponent = Field{"opponent", []string{"Opp", "Opponent", "opponent"}}
	injury   = Field{"injury", []string{"Injury", "injury"}}
)

func schema(sport string, fields ...Field) Schema {
	return Schema{Sport: sport, Fields: fields}
}

var schemas = map[string]Schema{
	"nba": schema("nba",
		salary, position, team, opponent, injury,
		Field{"min", []string{"Minutes", "Min", "min", "MINUTES"}},
		Field{"pts", []string{"Points", "Pts", "pts", "PTS"}},
		Field{"reb", []string{"Rebounds", "Reb", "reb", "REB"}},
		Field{"ast", []string{"Assists", "Ast", "ast", "AST"}},
		Field{"3pm", []string{"3PM", "3pm", "Threes"}},
		Field{"to", []string{"Turnovers", "TO", "to"}},
		Field{"stl", []string{"Steals", "Stl", "stl", "STL"}},
		Field{"blk", []string{"Blocks", "Blk", "blk", "BLK"}},
		Field{"pa", []string{"P+A", "PA", "pa"}},
		Field{"pr", []string{"P+R", "PR", "pr"}},
		Field{"pra", []string{"P+R+A", "PRA", "pra"}},
		Field{"bs", []string{"B+S", "BS", "bs"}},
		Field{"ra", []string{"R+A", "RA", "ra"}},
		Field{"fpts", []string{"FPTS", "Fpts", "fpts", "Fantasy Points"}},
	),
	"nfl": schema("nfl",
		salary, position, team, opponent, injury,
		Field{"pass_att", []string{"Pass Att", "ATT", "att"}},
		Field{"pass_yds", []string{"Pass Yds", "PASS YDS", "pass_yds"}},
		Field{"pass_td", []string{"Pass TD", "PASS TD", "pass_td"}},
		Field{"int", []string{"Int", "INT", "int"}},
		Field{"rush_att", []string{"Rush Att", "RUSH ATT", "rush_att"}},
		Field{"rush_yds", []string{"Rush Yds", "RUSH YDS", "rush_yds"}},
		Field{"rush_td", []string{"Rush TD", "RUSH TD", "rush_td"}},
		Field{"rec", []string{"Rec", "REC", "rec"}},
		Field{"rec_yds", []string{"Rec Yds", "REC YDS", "rec_yds"}},
		Field{"rec_td", []string{"Rec TD", "REC TD", "rec_td"}},
		Field{"fpts", []string{"FPTS", "Fpts", "fpts"}},
	),
	// NHL exports carry no injury column.
	"nhl": schema("nhl",
		salary, position, team, opponent,
		Field{"goals", []string{"Goals", "G", "goals"}},
		Field{"assists", []string{"Assists", "A", "assists"}},
		Field{"points", []string{"Points", "Pts", "points"}},
		Field{"sog", []string{"SOG", "Shots", "sog"}},
		Field{"blocks", []string{"Blocks", "Blk", "blocks"}},
		Field{"pim", []string{"PIM", "pim"}},
		Field{"fpts", []string{"FPTS", "Fpts", "fpts"}},
	),
}

// SchemaFor returns the schema for sport (case-insensitive).
func SchemaFor(sport string) (Schema, error) {
	s, ok := schemas[strings.ToLower(sport)]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownSport, sport, strings.Join(Sports(), ", "))
	}
	return s, nil
}

// Sports lists sports with a schema.
func Sports() []string {
	return []string{"nba", "nfl", "nhl"}
}
