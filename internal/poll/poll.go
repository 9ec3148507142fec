// Package poll provides bounded waits: a condition poll with a deadline and
// a context-aware sleep. Nothing in the scraper sleeps unbounded.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrDeadline is returned by Until when the condition never held.
var ErrDeadline = errors.New("poll: deadline exceeded")

// Until evaluates cond every interval until it returns true, returns an
// error, the timeout elapses or ctx is done. cond runs once immediately.
func Until(ctx context.Context, interval, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			// One last look so a condition met right at the deadline counts.
			ok, err := cond(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			return ErrDeadline
		case <-ticker.C:
		}
	}
}

// Settle waits for d or until ctx is done.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
