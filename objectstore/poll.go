package objectstore

import (
	"context"
	"time"
)

// Defaults for PollPolicy.
const (
	DefaultPollAttempts = 10
	DefaultPollInterval = time.Second
)

// PollPolicy bounds how long a caller waits for an object to become visible
// on an eventually consistent store.
type PollPolicy struct {
	// MaxAttempts is the number of existence checks performed.
	// Values <= 0 mean DefaultPollAttempts.
	MaxAttempts int

	// Interval is the fixed delay between checks.
	// Values <= 0 mean DefaultPollInterval.
	Interval time.Duration
}

// DefaultPollPolicy returns the policy used when callers do not specify one:
// 10 attempts, one second apart.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		MaxAttempts: DefaultPollAttempts,
		Interval:    DefaultPollInterval,
	}
}

// Normalize returns the policy with defaults applied.
func (p PollPolicy) Normalize() PollPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPollAttempts
	}
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	return p
}

// Budget is the longest a poll can block: MaxAttempts × Interval.
func (p PollPolicy) Budget() time.Duration {
	p = p.Normalize()
	return time.Duration(p.MaxAttempts) * p.Interval
}

// Poll calls check until it reports true or the attempt budget is spent.
//
// check is called exactly MaxAttempts times when it never succeeds, with
// Interval between calls and no delay after the last one. Poll returns
// false, nil on exhaustion. An error from check, or cancellation of ctx,
// ends polling early and is returned.
func Poll(ctx context.Context, policy PollPolicy, check func(context.Context) (bool, error)) (bool, error) {
	policy = policy.Normalize()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		ok, err := check(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		// Don't delay after the last attempt
		if attempt == policy.MaxAttempts {
			break
		}

		timer.Reset(policy.Interval)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return false, nil
}

// PollHead polls store.Head until the key exists.
// ErrNotFound counts as "not yet"; other errors end polling.
func PollHead(ctx context.Context, store Store, key string, policy PollPolicy) (bool, error) {
	return Poll(ctx, policy, func(ctx context.Context) (bool, error) {
		_, err := store.Head(ctx, key)
		if err == nil {
			return true, nil
		}
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	})
}
