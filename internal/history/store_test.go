package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-projections/internal/normalize"
)

func snapshot(t *testing.T, statType, raw string, ts time.Time) Snapshot {
	t.Helper()
	sport := "nba"
	if statType != "" {
		sport = "nfl"
	}
	schema, err := normalize.SchemaFor(sport)
	require.NoError(t, err)
	recs, err := normalize.Normalize(sport, []byte(raw))
	require.NoError(t, err)
	return Snapshot{SourceID: "alpha", Sport: sport, StatType: statType, Timestamp: ts, Schema: schema, Records: recs}
}

func TestBaseName(t *testing.T) {
	require.Equal(t, "alpha_nba", BaseName("alpha", "nba", ""))
	require.Equal(t, "stokastic_nfl_passing", BaseName("Stokastic", "NFL", "Passing"))
	require.Equal(t, "stokastic_nhl_skater", BaseName("stokastic", "nhl", " Skater "))
}

func TestWriteCurrentAndHistory(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	ts := time.Date(2026, 1, 15, 18, 30, 0, 0, time.UTC)

	w, err := s.Write(snapshot(t, "", "Player,Salary\nA,100\n", ts))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "alpha_nba.csv"), w.Current)
	require.Equal(t, filepath.Join(dir, "history", "alpha_nba_2026-01-15_18-30.csv"), w.History)

	cur, err := os.ReadFile(w.Current)
	require.NoError(t, err)
	hist, err := os.ReadFile(w.History)
	require.NoError(t, err)
	require.Equal(t, cur, hist)
	require.Contains(t, string(cur), "player,salary,")
}

func TestWriteNeverOverwritesHistory(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	ts := time.Date(2026, 1, 15, 18, 30, 0, 0, time.UTC)

	first, err := s.Write(snapshot(t, "passing", "Player,Pass Yds\nA,200.5\n", ts))
	require.NoError(t, err)
	second, err := s.Write(snapshot(t, "passing", "Player,Pass Yds\nA,250.5\n", ts))
	require.NoError(t, err)

	require.NotEqual(t, first.History, second.History)
	require.Equal(t, filepath.Join(dir, "history", "alpha_nfl_passing_2026-01-15_18-30-2.csv"), second.History)

	old, err := os.ReadFile(first.History)
	require.NoError(t, err)
	require.Contains(t, string(old), "200.5")

	cur, err := os.ReadFile(second.Current)
	require.NoError(t, err)
	require.Contains(t, string(cur), "250.5")
}

func TestReadAndList(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	ts := time.Date(2026, 1, 15, 18, 30, 0, 0, time.UTC)
	_, err := s.Write(snapshot(t, "", "Player,Salary\nA,100\n", ts))
	require.NoError(t, err)
	_, err = s.Write(snapshot(t, "", "Player,Salary\nA,100\n", ts.Add(time.Hour)))
	require.NoError(t, err)

	cur, err := s.ListCurrent()
	require.NoError(t, err)
	require.Len(t, cur, 1)
	require.Equal(t, "alpha_nba.csv", cur[0].Name)

	hist, err := s.ListHistory("alpha_nba")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, "alpha_nba_2026-01-15_19-30.csv", hist[0].Name)

	body, info, err := s.ReadCurrent("alpha_nba")
	require.NoError(t, err)
	require.Equal(t, "alpha_nba.csv", info.Name)
	require.Contains(t, string(body), "A,100")

	_, _, err = s.ReadCurrent("../../etc/passwd")
	require.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.ReadCurrent(".published.json")
	require.ErrorIs(t, err, ErrNotFound)
}
