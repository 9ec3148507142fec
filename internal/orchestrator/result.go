package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/albapepper/scoracle-projections/internal/publish"
)

// Status is the terminal state of one target.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is what happened to a target.
type Outcome struct {
	Status   Status        `json:"status"`
	Records  int           `json:"records"`
	Reason   string        `json:"reason,omitempty"`
	Current  string        `json:"current,omitempty"`
	History  string        `json:"history,omitempty"`
	Duration time.Duration `json:"duration"`
}

// TargetResult tracks the outcome of a single (source, sport, stat type).
type TargetResult struct {
	Key      string  `json:"key"`
	SourceID string  `json:"source"`
	Sport    string  `json:"sport"`
	StatType string  `json:"stat_type,omitempty"`
	Outcome  Outcome `json:"outcome"`
}

// Summary returns a human-readable summary.
func (r *TargetResult) Summary() string {
	s := fmt.Sprintf("%s status=%s records=%d dur=%s", r.Key, r.Outcome.Status, r.Outcome.Records, r.Outcome.Duration.Round(time.Millisecond))
	if r.Outcome.Reason != "" {
		s += " reason=" + r.Outcome.Reason
	}
	return s
}

// RunResult is the explicit value a run returns. Nothing else carries run
// state.
type RunResult struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Targets   []TargetResult  `json:"targets"`
	Publish   publish.Outcome `json:"publish"`
	Errors    []string        `json:"errors,omitempty"`
}

// Add appends a target result.
func (r *RunResult) Add(tr TargetResult) {
	r.Targets = append(r.Targets, tr)
}

// AddErrorf records a run-level error message.
func (r *RunResult) AddErrorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *RunResult) count(s Status) int {
	n := 0
	for _, t := range r.Targets {
		if t.Outcome.Status == s {
			n++
		}
	}
	return n
}

func (r *RunResult) Succeeded() int { return r.count(StatusSuccess) }
func (r *RunResult) Skipped() int   { return r.count(StatusSkipped) }
func (r *RunResult) Failed() int    { return r.count(StatusFailed) }

// Records totals canonical records written.
func (r *RunResult) Records() int {
	n := 0
	for _, t := range r.Targets {
		n += t.Outcome.Records
	}
	return n
}

// Sources lists source IDs with at least one successful target, in run order.
func (r *RunResult) Sources() []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range r.Targets {
		if t.Outcome.Status == StatusSuccess && !seen[t.SourceID] {
			seen[t.SourceID] = true
			out = append(out, t.SourceID)
		}
	}
	return out
}

// CurrentFiles lists the current-file paths written this run.
func (r *RunResult) CurrentFiles() []string {
	var out []string
	for _, t := range r.Targets {
		if t.Outcome.Current != "" {
			out = append(out, t.Outcome.Current)
		}
	}
	return out
}

// Summary returns a human-readable summary.
func (r *RunResult) Summary() string {
	return fmt.Sprintf(
		"run=%s targets=%d succeeded=%d skipped=%d failed=%d records=%d publish=%s dur=%s",
		shortID(r.RunID), len(r.Targets), r.Succeeded(), r.Skipped(), r.Failed(),
		r.Records(), r.Publish.Status, r.Duration.Round(time.Millisecond),
	)
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
