// Package retry runs remote calls with a bounded number of attempts.
package retry

import (
	"context"
	"errors"
	"time"
)

// Transient marks an error as safe to retry.
type Transient struct{ Err error }

func (e *Transient) Error() string { return e.Err.Error() }
func (e *Transient) Unwrap() error { return e.Err }

// MarkTransient wraps err so that Do retries it. Nil stays nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err}
}

// IsTransient reports whether err, or anything it wraps, is a Transient.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// Policy controls Do. Retries is the number of extra attempts after the first.
type Policy struct {
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Retryable func(error) bool
}

// Once is the policy used by the remote clients: a single retry after a short pause.
var Once = Policy{Retries: 1, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Retryable: IsTransient}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. The final error is returned unwrapped from Transient.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	var err error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt > 0 {
			select {
			case <-time.After(p.delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}
	if t, ok := err.(*Transient); ok {
		return t.Err
	}
	return err
}

func (p Policy) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	d := base << attempt
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
