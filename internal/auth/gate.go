package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/scoracle-projections/internal/browser"
	"github.com/albapepper/scoracle-projections/internal/locator"
	"github.com/albapepper/scoracle-projections/internal/overlay"
	"github.com/albapepper/scoracle-projections/internal/poll"
)

var (
	// ErrAuthenticationFailed means the session stayed Locked after login.
	ErrAuthenticationFailed = errors.New("auth: authentication failed")
	// ErrNoCredentials means a login was needed but none were configured.
	ErrNoCredentials = errors.New("auth: no credentials")
)

// MaxLoginAttempts bounds login sequences per session.
const MaxLoginAttempts = 1

const defaultSettle = 5 * time.Second

// StepKind is one action of a login flow.
type StepKind int

const (
	StepNavigate StepKind = iota + 1
	StepClick
	StepFillUsername
	StepFillPassword
	StepSettle
)

// Step is one login action. Optional steps that fail to resolve are
// skipped instead of aborting the flow.
type Step struct {
	Kind     StepKind
	URL      string
	Target   []locator.Strategy
	Wait     time.Duration
	Optional bool
}

// Navigate loads url.
func Navigate(url string) Step { return Step{Kind: StepNavigate, URL: url} }

// Click activates the first strategy match.
func Click(target ...locator.Strategy) Step { return Step{Kind: StepClick, Target: target} }

// MaybeClick is Click that tolerates a missing control.
func MaybeClick(target ...locator.Strategy) Step {
	return Step{Kind: StepClick, Target: target, Optional: true}
}

// FillUsername types the username into the resolved field.
func FillUsername(target ...locator.Strategy) Step {
	return Step{Kind: StepFillUsername, Target: target}
}

// FillPassword types the password into the resolved field.
func FillPassword(target ...locator.Strategy) Step {
	return Step{Kind: StepFillPassword, Target: target}
}

// Pause waits d.
func Pause(d time.Duration) Step { return Step{Kind: StepSettle, Wait: d} }

// Flow is a source's login sequence.
type Flow struct {
	Steps []Step
	// Settle is the wait between submit and reclassification.
	Settle time.Duration
	// VerifyURL, when set, is loaded before reclassifying.
	VerifyURL string
}

// Gate owns the state transitions of Sessions.
type Gate struct {
	logger    *slog.Logger
	resolver  *locator.Resolver
	dismisser *overlay.Dismisser
	verify    Verify
	flow      Flow
	now       func() time.Time
}

// NewGate creates a gate for one source.
func NewGate(logger *slog.Logger, resolver *locator.Resolver, dismisser *overlay.Dismisser, verify Verify, flow Flow) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if flow.Settle <= 0 {
		flow.Settle = defaultSettle
	}
	return &Gate{
		logger:    logger,
		resolver:  resolver,
		dismisser: dismisser,
		verify:    verify.withDefaults(),
		flow:      flow,
		now:       time.Now,
	}
}

// Check classifies the current page with the source's verify mode.
func (g *Gate) Check(ctx context.Context, d browser.Driver) (State, error) {
	if g.verify.Mode == VerifyByMarker {
		return classifyByMarker(ctx, d, g.resolver, g.verify)
	}
	return Classify(ctx, d, g.verify.CellSelector, g.verify.Threshold)
}

// Ensure brings s to Unlocked, logging in when the page is Locked. After
// one login sequence a second Locked result moves s to Failed and returns
// ErrAuthenticationFailed. A Failed session stays Failed.
func (g *Gate) Ensure(ctx context.Context, d browser.Driver, s *Session, creds Credentials) error {
	if s.State == Failed {
		return fmt.Errorf("%w: %s (session already failed)", ErrAuthenticationFailed, s.SourceID)
	}

	state, err := g.Check(ctx, d)
	if err != nil {
		return fmt.Errorf("classify %s: %w", s.SourceID, err)
	}
	g.set(s, state)
	if state == Unlocked {
		return nil
	}
	g.logger.Info("Session locked", "source", s.SourceID)

	if creds.Empty() {
		g.set(s, Failed)
		return fmt.Errorf("%w: %s: %w", ErrAuthenticationFailed, s.SourceID, ErrNoCredentials)
	}

	for attempt := 1; attempt <= MaxLoginAttempts; attempt++ {
		if err := g.login(ctx, d, creds); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Warn("Login sequence failed", "source", s.SourceID, "attempt", attempt, "error", err)
		}
		if err := poll.Settle(ctx, g.flow.Settle); err != nil {
			return err
		}
		if g.flow.VerifyURL != "" {
			if err := d.Navigate(ctx, g.flow.VerifyURL); err != nil {
				g.logger.Warn("Verify navigation failed", "source", s.SourceID, "error", err)
			}
			if g.dismisser != nil {
				g.dismisser.Dismiss(ctx, d)
			}
		}
		state, err := g.Check(ctx, d)
		if err != nil {
			return fmt.Errorf("reclassify %s: %w", s.SourceID, err)
		}
		g.set(s, state)
		if state == Unlocked {
			g.logger.Info("Login succeeded", "source", s.SourceID, "attempt", attempt)
			return nil
		}
	}

	g.set(s, Failed)
	if path, err := d.CaptureDiagnostic(ctx, s.SourceID+"_login_failed"); err == nil && path != "" {
		g.logger.Info("Saved diagnostic", "path", path)
	}
	return fmt.Errorf("%w: %s still locked after login", ErrAuthenticationFailed, s.SourceID)
}

func (g *Gate) set(s *Session, st State) {
	s.State = st
	s.LastVerifiedAt = g.now()
}

func (g *Gate) login(ctx context.Context, d browser.Driver, creds Credentials) error {
	for i, step := range g.flow.Steps {
		if err := g.run(ctx, d, step, creds); err != nil {
			if step.Optional && errors.Is(err, locator.ErrNotFound) {
				g.logger.Debug("Optional login step skipped", "step", i)
				continue
			}
			return fmt.Errorf("login step %d: %w", i, err)
		}
	}
	return nil
}

func (g *Gate) run(ctx context.Context, d browser.Driver, step Step, creds Credentials) error {
	switch step.Kind {
	case StepNavigate:
		if err := d.Navigate(ctx, step.URL); err != nil {
			return err
		}
		if g.dismisser != nil {
			g.dismisser.Dismiss(ctx, d)
		}
		return nil
	case StepClick:
		_, err := g.resolver.Activate(ctx, d, step.Target)
		return err
	case StepFillUsername, StepFillPassword:
		el, err := g.resolver.Resolve(ctx, d, step.Target)
		if err != nil {
			return err
		}
		value := creds.Username
		if step.Kind == StepFillPassword {
			value = creds.Password
		}
		return d.Fill(ctx, el, value)
	case StepSettle:
		return poll.Settle(ctx, step.Wait)
	}
	return fmt.Errorf("unknown step kind %d", int(step.Kind))
}
