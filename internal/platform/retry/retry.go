package retry

import (
	"context"
	"errors"
	"time"
)

// Policy controls the restart behaviour of Supervise.
type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ResetAfter resets the backoff when an attempt ran at least this long
	// before failing, so a long-healthy task is not penalized for old crashes.
	ResetAfter time.Duration
	OnRestart  func(attempt int, err error, backoff time.Duration)
}

// Supervise runs op until it returns nil or ctx is cancelled, restarting it
// with exponential backoff after each failure. Used for tasks whose failure
// is fatal to the task but not to the process, like the change source
// subscription.
func Supervise(ctx context.Context, p Policy, op func(context.Context) error) error {
	backoff := p.InitialBackoff
	attempt := 0

	for {
		started := time.Now()
		err := op(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if p.ResetAfter > 0 && time.Since(started) >= p.ResetAfter {
			backoff = p.InitialBackoff
			attempt = 0
		}
		attempt++

		if p.OnRestart != nil {
			p.OnRestart(attempt, err, backoff)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}
