package util

import (
	"context"
	"log/slog"
	"time"
)

// Retrier re-runs failing operations with exponential backoff, logging each
// failed attempt so transient upstream errors show up in the component's
// structured logs instead of disappearing into the backoff loop.
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	log         *slog.Logger
}

// NewRetrier returns a Retrier that runs an operation up to maxAttempts
// times, doubling the delay between attempts starting from baseDelay.
func NewRetrier(maxAttempts int, baseDelay time.Duration, log *slog.Logger) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retrier{maxAttempts: maxAttempts, baseDelay: baseDelay, log: log}
}

// Do runs fn, retrying on error. op names the operation in retry logs. It
// returns nil on the first success, the context error if cancelled while
// waiting between attempts, or the last error once every attempt has failed.
func (r *Retrier) Do(ctx context.Context, op string, fn func() error) error {
	delay := r.baseDelay
	var err error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == r.maxAttempts {
			break
		}

		r.log.Warn("retrying after error",
			"op", op,
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"delay", delay,
			"err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return err
}
