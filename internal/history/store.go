// Package history writes canonical snapshots to disk: one "current" file per
// source/sport/stat type that is replaced each run, and an append-only
// timestamped history file that is never overwritten.
//
// Layout under the store root:
//
//	{source}_{sport}[_{stat}].csv
//	history/{source}_{sport}[_{stat}]_{YYYY-MM-DD_HH-MM}.csv
package history

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/albapepper/scoracle-projections/internal/normalize"
)

// TimestampLayout formats history file suffixes.
const TimestampLayout = "2006-01-02_15-04"

// HistoryDir is the history subdirectory name.
const HistoryDir = "history"

const maxCollisions = 1000

// ErrNotFound is returned by ReadCurrent for unknown names.
var ErrNotFound = errors.New("history: not found")

// Snapshot is one successful target's canonical output.
type Snapshot struct {
	SourceID  string
	Sport     string
	StatType  string
	Timestamp time.Time
	Schema    normalize.Schema
	Records   []normalize.Record
}

// WrittenFiles reports where a snapshot landed.
type WrittenFiles struct {
	Current string
	History string
	Bytes   int
}

// Store writes under a root directory.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: dir, logger: logger}
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// BaseName is the file stem for a target, e.g. stokastic_nfl_passing.
func BaseName(sourceID, sport, statType string) string {
	parts := []string{slug(sourceID), slug(sport)}
	if st := slug(statType); st != "" {
		parts = append(parts, st)
	}
	return strings.Join(parts, "_")
}

// CurrentPath returns the current-file path for a target.
func (s *Store) CurrentPath(sourceID, sport, statType string) string {
	return filepath.Join(s.root, BaseName(sourceID, sport, statType)+".csv")
}

// Write serializes snap and writes the current and history files.
func (s *Store) Write(snap Snapshot) (WrittenFiles, error) {
	content, err := normalize.EncodeCSV(snap.Schema, snap.Records)
	if err != nil {
		return WrittenFiles{}, fmt.Errorf("encode snapshot: %w", err)
	}

	histDir := filepath.Join(s.root, HistoryDir)
	if err := os.MkdirAll(histDir, 0o755); err != nil {
		return WrittenFiles{}, fmt.Errorf("create history dir: %w", err)
	}

	base := BaseName(snap.SourceID, snap.Sport, snap.StatType)
	current := filepath.Join(s.root, base+".csv")
	if err := replaceFile(current, content); err != nil {
		return WrittenFiles{}, fmt.Errorf("write current %s: %w", current, err)
	}

	hist, err := createExclusive(histDir, base+"_"+snap.Timestamp.Format(TimestampLayout), content)
	if err != nil {
		return WrittenFiles{}, fmt.Errorf("write history for %s: %w", base, err)
	}

	s.logger.Info("Snapshot written", "current", current, "history", hist, "records", len(snap.Records))
	return WrittenFiles{Current: current, History: hist, Bytes: len(content)}, nil
}

// replaceFile writes via a temp file in the same directory and renames it
// over path.
func replaceFile(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// createExclusive creates stem.csv, or stem-2.csv, stem-3.csv ... if taken.
func createExclusive(dir, stem string, content []byte) (string, error) {
	for n := 1; n <= maxCollisions; n++ {
		name := stem + ".csv"
		if n > 1 {
			name = fmt.Sprintf("%s-%d.csv", stem, n)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(content); err != nil {
			f.Close()
			return "", err
		}
		return path, f.Close()
	}
	return "", fmt.Errorf("too many history files named %s", stem)
}

// ---------------------------------------------------------------------------
// Reads (used by the API)
// ---------------------------------------------------------------------------

// FileInfo describes a stored CSV.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
}

// ListCurrent returns current files sorted by name.
func (s *Store) ListCurrent() ([]FileInfo, error) {
	return list(s.root)
}

// ListHistory returns history files whose name starts with base, newest
// name first.
func (s *Store) ListHistory(base string) ([]FileInfo, error) {
	all, err := list(filepath.Join(s.root, HistoryDir))
	if err != nil {
		return nil, err
	}
	var out []FileInfo
	for _, f := range all {
		if base == "" || strings.HasPrefix(f.Name, base+"_") {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

func list(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ReadCurrent returns the content of a current file by base name, with or
// without the .csv extension.
func (s *Store) ReadCurrent(name string) ([]byte, FileInfo, error) {
	return s.read(s.root, name)
}

// ReadHistory returns the content of a history file by name.
func (s *Store) ReadHistory(name string) ([]byte, FileInfo, error) {
	return s.read(filepath.Join(s.root, HistoryDir), name)
}

func (s *Store) read(dir, name string) ([]byte, FileInfo, error) {
	name = strings.TrimSuffix(filepath.Base(name), ".csv") + ".csv"
	if strings.HasPrefix(name, ".") {
		return nil, FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, FileInfo{}, fmt.Errorf("stat %s: %w", name, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, FileInfo{}, fmt.Errorf("read %s: %w", name, err)
	}
	return content, FileInfo{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}
