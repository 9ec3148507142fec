package normalize

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func nbaStats(kv ...string) map[string]string {
	s, _ := SchemaFor("nba")
	out := map[string]string{}
	for _, f := range s.Fields {
		out[f.Name] = ""
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

func TestNormalizeNBA(t *testing.T) {
	raw := "Player,Salary,Pos,Team,Opp,Minutes,Pts,REB,3PM,P+R+A,FPTS\n" +
		"LeBron James,10200,SF,LAL,GSW,35.5,27.1,7.9,2.1,42.3,51.25\n" +
		"Stephen Curry,9800,PG,GSW,LAL,34.0,29.4,4.8,4.9,40.1,49.0\n"

	got, err := Normalize("nba", []byte(raw))
	require.NoError(t, err)

	want := []Record{
		{Identity: "LeBron James", Sport: "nba", Stats: nbaStats(
			"salary", "10200", "position", "SF", "team", "LAL", "opponent", "GSW",
			"min", "35.5", "pts", "27.1", "reb", "7.9", "3pm", "2.1", "pra", "42.3", "fpts", "51.25")},
		{Identity: "Stephen Curry", Sport: "nba", Stats: nbaStats(
			"salary", "9800", "position", "PG", "team", "GSW", "opponent", "LAL",
			"min", "34.0", "pts", "29.4", "reb", "4.8", "3pm", "4.9", "pra", "40.1", "fpts", "49.0")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeAbsentAliasesAreEmpty(t *testing.T) {
	got, err := Normalize("nba", []byte("Name,Unknown Column\nJokic,whatever\n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Jokic", got[0].Identity)
	if diff := cmp.Diff(nbaStats(), got[0].Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeDropsRowsWithoutIdentity(t *testing.T) {
	raw := "Player,Salary\n,5000\n   ,6000\nTatum,9000\n"
	got, err := Normalize("nba", []byte(raw))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Tatum", got[0].Identity)
}

func TestNormalizeNoRecords(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":        "",
		"header only":  "Player,Salary\n",
		"no identity":  "Salary,Pts\n100,20.5\n",
		"blank player": "Player,Salary\n,100\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize("nba", []byte(raw))
			require.ErrorIs(t, err, ErrNoRecords)
		})
	}
}

func TestNormalizeDuplicateIdentityLastWins(t *testing.T) {
	raw := "Player,Salary\nA,1\nB,2\nA,3\n"
	got, err := Normalize("nba", []byte(raw))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "A", got[0].Identity)
	require.Equal(t, "3", got[0].Stats["salary"])
	require.Equal(t, "B", got[1].Identity)
}

func TestNormalizeAliasPriorityAndEmptyFallthrough(t *testing.T) {
	// Points is empty, so Pts wins.
	got, err := Normalize("nba", []byte("Player,Points,Pts\nA,,22.5\n"))
	require.NoError(t, err)
	require.Equal(t, "22.5", got[0].Stats["pts"])

	// Both present: Points has priority.
	got, err = Normalize("nba", []byte("Player,Points,Pts\nA,30.1,22.5\n"))
	require.NoError(t, err)
	require.Equal(t, "30.1", got[0].Stats["pts"])
}

func TestNormalizeFoldedHeadersAndBOM(t *testing.T) {
	raw := "\xef\xbb\xbf PLAYER , salary ,opp\nA,100,BOS\n"
	got, err := Normalize("nba", []byte(raw))
	require.NoError(t, err)
	require.Equal(t, "A", got[0].Identity)
	require.Equal(t, "100", got[0].Stats["salary"])
	require.Equal(t, "BOS", got[0].Stats["opponent"])
}

func TestNormalizeNFLAndNHL(t *testing.T) {
	nfl, err := Normalize("NFL", []byte("Player,Pass Yds,PASS TD,Rec,REC YDS\nAllen,265.5,2.1,0,0\n"))
	require.NoError(t, err)
	require.Equal(t, "265.5", nfl[0].Stats["pass_yds"])
	require.Equal(t, "2.1", nfl[0].Stats["pass_td"])
	require.Equal(t, "nfl", nfl[0].Sport)

	nhl, err := Normalize("nhl", []byte("Name,G,A,SOG,PIM\nMcDavid,0.6,1.1,3.9,0.4\n"))
	require.NoError(t, err)
	require.Equal(t, "0.6", nhl[0].Stats["goals"])
	require.Equal(t, "1.1", nhl[0].Stats["assists"])
	require.Equal(t, "3.9", nhl[0].Stats["sog"])
}

func TestNormalizeUnknownSport(t *testing.T) {
	_, err := Normalize("mlb", []byte("Player\nA\n"))
	require.ErrorIs(t, err, ErrUnknownSport)
	require.ErrorContains(t, err, "known: nba, nfl, nhl")
}

func TestEncodeCSV(t *testing.T) {
	s, err := SchemaFor("nhl")
	require.NoError(t, err)
	recs, err := Normalize("nhl", []byte("Player,Goals\n\"Smith, Jr.\",0.5\n"))
	require.NoError(t, err)

	out, err := EncodeCSV(s, recs)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Equal(t, "player,salary,position,team,opponent,goals,assists,points,sog,blocks,pim,fpts", lines[0])
	require.Equal(t, `"Smith, Jr.",,,,,0.5,,,,,,`, lines[1])
}

func TestNormalizeFiftyRows(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("Player,Salary,Pts\n")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, "Player %02d,%d,%d.5\n", i, 3000+i*100, 10+i)
	}
	got, err := Normalize("nba", []byte(sb.String()))
	require.NoError(t, err)
	require.Len(t, got, 50)
	require.Equal(t, "Player 00", got[0].Identity)
	require.Equal(t, "59.5", got[49].Stats["pts"])
}
