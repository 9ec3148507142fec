// Package orchestrator drives one scrape run: for each source it opens the
// session, walks every target through navigate, prepare, export, normalize
// and write, then hands the written files to the publish gate once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/scoracle-projections/internal/auth"
	"github.com/albapepper/scoracle-projections/internal/browser"
	"github.com/albapepper/scoracle-projections/internal/config"
	"github.com/albapepper/scoracle-projections/internal/download"
	"github.com/albapepper/scoracle-projections/internal/export"
	"github.com/albapepper/scoracle-projections/internal/history"
	"github.com/albapepper/scoracle-projections/internal/locator"
	"github.com/albapepper/scoracle-projections/internal/navigate"
	"github.com/albapepper/scoracle-projections/internal/normalize"
	"github.com/albapepper/scoracle-projections/internal/overlay"
	"github.com/albapepper/scoracle-projections/internal/poll"
	"github.com/albapepper/scoracle-projections/internal/publish"
	"github.com/albapepper/scoracle-projections/internal/source"
)

// OpenFunc starts a browser session for a run.
type OpenFunc func(ctx context.Context) (browser.Driver, error)

// Recorder persists run results, e.g. the Postgres ledger.
type Recorder interface {
	Record(ctx context.Context, r *RunResult) error
}

// Options wires the collaborators of a run.
type Options struct {
	Open        OpenFunc
	Credentials config.CredentialStore
	Watcher     *download.Watcher
	Fetcher     export.DirectFetcher // nil: every export goes through the browser
	Store       *history.Store
	Publisher   publish.Publisher // nil disables publishing
	Recorder    Recorder
	// OverlaySettle overrides the pause between overlay dismissal rounds.
	OverlaySettle time.Duration
	Logger        *slog.Logger
}

// Orchestrator runs sources sequentially over one browser session.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Credentials == nil {
		opts.Credentials = config.EnvCredentials{}
	}
	return &Orchestrator{opts: opts, logger: logger, now: time.Now}
}

// Run scrapes every target of adapters. A target's failure never aborts the
// run; the returned RunResult records each outcome.
func (o *Orchestrator) Run(ctx context.Context, runID string, adapters []source.Adapter) *RunResult {
	if runID == "" {
		runID = uuid.NewString()
	}
	res := &RunResult{RunID: runID, StartedAt: o.now()}
	log := o.logger.With("run", shortID(runID))
	log.Info("Run starting", "sources", len(adapters))

	defer func() {
		res.Duration = o.now().Sub(res.StartedAt)
		if o.opts.Recorder != nil {
			if err := o.opts.Recorder.Record(context.WithoutCancel(ctx), res); err != nil {
				log.Warn("Could not record run", "error", err)
			}
		}
		log.Info("Run finished", "summary", res.Summary())
	}()

	d, err := o.opts.Open(ctx)
	if err != nil {
		res.AddErrorf("open browser: %v", err)
		for _, a := range adapters {
			for _, t := range a.Targets {
				res.Add(result(t, Outcome{Status: StatusFailed, Reason: "browser unavailable: " + err.Error()}))
			}
		}
		res.Publish = o.publishRun(ctx, adapters, res)
		return res
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn("Browser close failed", "error", err)
		}
	}()

	for _, a := range adapters {
		o.runSource(ctx, log, d, a, res)
	}

	res.Publish = o.publishRun(ctx, adapters, res)
	log.Info("Publish", "outcome", res.Publish.Summary())
	return res
}

// publishRun makes the single publish decision of the run.
func (o *Orchestrator) publishRun(ctx context.Context, adapters []source.Adapter, res *RunResult) publish.Outcome {
	gate := publish.NewGate(o.opts.Publisher, o.opts.Store.Root(), o.logger)
	msg := publish.CommitMessage(sourceNames(adapters, res.Sources()), o.now())
	return gate.Publish(ctx, res.CurrentFiles(), msg)
}

// sourceNames maps succeeded source IDs to display names.
func sourceNames(adapters []source.Adapter, ids []string) []string {
	names := map[string]string{}
	for _, a := range adapters {
		names[a.ID] = a.Name
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n := names[id]; n != "" {
			out = append(out, n)
		} else {
			out = append(out, id)
		}
	}
	return out
}

func result(t source.Target, out Outcome) TargetResult {
	return TargetResult{Key: t.Key(), SourceID: t.SourceID, Sport: t.Sport, StatType: t.StatType, Outcome: out}
}

// ---------------------------------------------------------------------------
// Per source
// ---------------------------------------------------------------------------

// sourceRun holds the per-source collaborators.
type sourceRun struct {
	adapter  source.Adapter
	log      *slog.Logger
	resolver *locator.Resolver
	nav      *navigate.Controller
	gate     *auth.Gate
	trigger  *export.Trigger
	session  *auth.Session
	creds    auth.Credentials
}

func (o *Orchestrator) runSource(ctx context.Context, log *slog.Logger, d browser.Driver, a source.Adapter, res *RunResult) {
	log = log.With("source", a.ID)
	dopts := []overlay.Option{overlay.WithSelectors(a.CloseSelectors...), overlay.WithScripts(a.PageScripts...)}
	if o.opts.OverlaySettle > 0 {
		dopts = append(dopts, overlay.WithSettle(o.opts.OverlaySettle))
	}
	dismisser := overlay.NewDismisser(log, dopts...)
	resolver := locator.NewResolver(log)

	sr := &sourceRun{
		adapter:  a,
		log:      log,
		resolver: resolver,
		nav:      navigate.NewController(log, dismisser, a.Settle),
		gate:     auth.NewGate(log, resolver, dismisser, a.Verify, a.Login),
		trigger:  export.NewTrigger(log, resolver),
		session:  auth.NewSession(a.ID),
	}
	creds, err := o.opts.Credentials.Credentials(a.ID)
	if err != nil {
		log.Warn("Could not read credentials", "error", err)
	}
	sr.creds = creds

	log.Info("Source starting", "targets", len(a.Targets))
	for _, t := range a.Targets {
		start := o.now()
		var out Outcome
		switch {
		case ctx.Err() != nil:
			out = Outcome{Status: StatusFailed, Reason: "run cancelled"}
		case sr.session.State == auth.Failed:
			out = Outcome{Status: StatusFailed, Reason: "authentication failed"}
		default:
			out = o.runTarget(ctx, d, sr, t)
		}
		out.Duration = o.now().Sub(start)
		tr := result(t, out)
		res.Add(tr)

		attrs := []any{"target", tr.Key, "status", out.Status, "records", out.Records}
		if out.Reason != "" {
			attrs = append(attrs, "reason", out.Reason)
		}
		if out.Status == StatusFailed {
			log.Warn("Target done", attrs...)
		} else {
			log.Info("Target done", attrs...)
		}
	}
}

// ---------------------------------------------------------------------------
// Per target
// ---------------------------------------------------------------------------

func (o *Orchestrator) runTarget(ctx context.Context, d browser.Driver, sr *sourceRun, t source.Target) Outcome {
	if err := sr.nav.Load(ctx, d, t.Page); err != nil {
		return classify("load page", err)
	}

	if sr.session.State != auth.Unlocked {
		if err := sr.gate.Ensure(ctx, d, sr.session, sr.creds); err != nil {
			return classify("authenticate", err)
		}
		// Logging in may leave the browser elsewhere.
		if loc, err := d.Location(ctx); err != nil || loc != t.Page.URL {
			if err := sr.nav.Load(ctx, d, t.Page); err != nil {
				return classify("reload page", err)
			}
		}
	}

	for _, step := range t.Prepare {
		if _, err := sr.resolver.Activate(ctx, d, step.Target); err != nil {
			if step.Optional && errors.Is(err, locator.ErrNotFound) {
				sr.log.Debug("Optional step skipped", "step", step.Name)
				continue
			}
			return classify(step.Name, err)
		}
		if err := poll.Settle(ctx, step.Settle); err != nil {
			return classify(step.Name, err)
		}
	}

	raw, err := o.acquire(ctx, d, sr, t)
	if err != nil {
		if errors.Is(err, download.ErrTimeout) {
			if path, derr := d.CaptureDiagnostic(ctx, history.BaseName(t.SourceID, t.Sport, t.StatType)+"_download_timeout"); derr == nil && path != "" {
				sr.log.Info("Saved diagnostic", "path", path)
			}
		}
		return classify("export", err)
	}

	records, err := normalize.Normalize(t.Sport, raw)
	if err != nil {
		return classify("normalize", err)
	}
	schema, err := normalize.SchemaFor(t.Sport)
	if err != nil {
		return classify("normalize", err)
	}

	files, err := o.opts.Store.Write(history.Snapshot{
		SourceID:  t.SourceID,
		Sport:     t.Sport,
		StatType:  t.StatType,
		Timestamp: o.now(),
		Schema:    schema,
		Records:   records,
	})
	if err != nil {
		return classify("write snapshot", err)
	}
	return Outcome{Status: StatusSuccess, Records: len(records), Current: files.Current, History: files.History}
}

func (o *Orchestrator) acquire(ctx context.Context, d browser.Driver, sr *sourceRun, t source.Target) ([]byte, error) {
	if t.Acquire == source.ViaLink && o.opts.Fetcher != nil {
		link, err := sr.trigger.Link(ctx, d, t.Export, sr.adapter.BaseURL)
		switch {
		case err == nil:
			cookies, err := d.Cookies(ctx)
			if err != nil {
				return nil, fmt.Errorf("read cookies: %w", err)
			}
			sr.log.Info("Fetching export directly", "target", t.Key(), "url", link)
			return o.opts.Fetcher.Fetch(ctx, link, cookies)
		case errors.Is(err, export.ErrNoLink):
			sr.log.Info("Export control has no link, using browser download", "target", t.Key())
		default:
			return nil, err
		}
	}

	t0, err := sr.trigger.Fire(ctx, d, t.Export)
	if err != nil {
		return nil, err
	}
	art, err := o.opts.Watcher.Await(ctx, download.Request{Since: t0, Extension: ".csv", Hints: t.FileHints})
	if err != nil {
		return nil, err
	}
	sr.log.Info("Export downloaded", "target", t.Key(), "file", art.Path, "bytes", art.Size)
	return art.Content, nil
}

// classify maps an error to a target outcome. A missing control skips the
// target; everything else fails it.
func classify(stage string, err error) Outcome {
	status := StatusFailed
	if errors.Is(err, locator.ErrNotFound) {
		status = StatusSkipped
	}
	var reason string
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = "run cancelled"
		status = StatusFailed
	case errors.Is(err, download.ErrTimeout):
		reason = "download timeout"
	case errors.Is(err, normalize.ErrNoRecords):
		reason = "no records"
	default:
		reason = err.Error()
	}
	return Outcome{Status: status, Reason: stage + ": " + reason}
}
