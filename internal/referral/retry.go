package referral

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = time.Second
)

// RetryPolicy retries an operation while it fails with ErrTransient, waiting a
// fixed Backoff between attempts. Any other error stops the loop at once.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	// Timer replaces the wall clock between attempts; nil uses a real timer.
	Timer backoff.Timer
	// Notify is called before each wait with the error that caused it.
	Notify func(err error, wait time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultRetryAttempts, Backoff: DefaultRetryBackoff}
}

// Run executes op until it succeeds, fails permanently, the attempts are used up
// or ctx is done. It returns how many attempts were made and the last error.
func (p RetryPolicy) Run(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Backoff), uint64(maxAttempts-1)),
		ctx,
	)

	attempts := 0
	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil || errors.Is(err, ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}

	var notify backoff.Notify
	if p.Notify != nil {
		notify = p.Notify
	}
	err := backoff.RetryNotifyWithTimer(operation, policy, notify, p.Timer)
	return attempts, err
}
