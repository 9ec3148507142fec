package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/albapepper/scoracle-projections/internal/source"
)

// SourcesFile is the optional sources.toml:
//
//	enabled = ["stokastic", "dimers"]
//
//	[downloads]
//	dirs = ["downloads"]
//	timeout = "20s"
//
//	[sources.stokastic]
//	sports = ["nfl"]
//	stat_types = ["passing", "rushing"]
//
//	[sources.dimers]
//	threshold = 30
type SourcesFile struct {
	Enabled   []string                `toml:"enabled"`
	Downloads DownloadsConfig         `toml:"downloads"`
	Sources   map[string]SourceConfig `toml:"sources"`
}

// DownloadsConfig overrides the download watcher settings.
type DownloadsConfig struct {
	Dirs      []string      `toml:"dirs"`
	Poll      time.Duration `toml:"poll"`
	Timeout   time.Duration `toml:"timeout"`
	Freshness time.Duration `toml:"freshness"`
}

// SourceConfig customizes one built-in source.
type SourceConfig struct {
	Disabled  bool          `toml:"disabled"`
	Sports    []string      `toml:"sports"`
	StatTypes []string      `toml:"stat_types"`
	Threshold int           `toml:"threshold"`
	Settle    time.Duration `toml:"settle"`
	BaseURL   string        `toml:"base_url"`
}

// Override converts the section to a source.Override.
func (s SourceConfig) Override() source.Override {
	return source.Override{
		Sports:    s.Sports,
		StatTypes: s.StatTypes,
		Threshold: s.Threshold,
		Settle:    s.Settle,
		BaseURL:   s.BaseURL,
	}
}

// LoadSources decodes path. A missing file yields an empty SourcesFile.
func LoadSources(path string) (*SourcesFile, error) {
	sf := &SourcesFile{}
	if path == "" {
		return sf, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return sf, nil
	}
	md, err := toml.DecodeFile(path, sf)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("parse %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	for id := range sf.Sources {
		if _, ok := source.Lookup(id); !ok {
			return nil, fmt.Errorf("parse %s: unknown source %q", path, id)
		}
	}
	return sf, nil
}

// Apply copies download overrides from sf into c.
func (c *Config) Apply(sf *SourcesFile) {
	if sf == nil {
		return
	}
	d := sf.Downloads
	if len(d.Dirs) > 0 {
		c.DownloadDirs = d.Dirs
	}
	if d.Poll > 0 {
		c.DownloadPoll = d.Poll
	}
	if d.Timeout > 0 {
		c.DownloadTimeout = d.Timeout
	}
	if d.Freshness > 0 {
		c.FreshnessWindow = d.Freshness
	}
	if len(sf.Enabled) > 0 && len(c.Enabled) == 0 {
		c.Enabled = sf.Enabled
	}
}

// Adapters resolves the sources to run: ids when given, else c.Enabled,
// else every built-in. Sections in sf customize each adapter; disabled
// sources are dropped unless named explicitly in ids.
func (c *Config) Adapters(sf *SourcesFile, ids []string) ([]source.Adapter, error) {
	explicit := len(ids) > 0
	if !explicit {
		ids = c.Enabled
	}
	if len(ids) == 0 {
		ids = source.IDs()
	}

	var out []source.Adapter
	seen := map[string]bool{}
	for _, raw := range ids {
		id := strings.ToLower(strings.TrimSpace(raw))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		a, ok := source.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown source %q (known: %s)", raw, strings.Join(source.IDs(), ", "))
		}
		if sf != nil {
			if sc, ok := sf.Sources[id]; ok {
				if sc.Disabled && !explicit {
					continue
				}
				a = a.With(sc.Override())
			}
		}
		out = append(out, a)
	}
	return out, nil
}
