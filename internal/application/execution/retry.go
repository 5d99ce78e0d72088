package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// Backoff returns the delay to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// Linear grows the delay by base on every attempt.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration { return base * time.Duration(attempt) }
}

// Fixed always waits d.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// RetryPolicy is a bounded retry with a backoff function. It is used for
// order submission, order status polling and every read against the exchange.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     Backoff

	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is 3 attempts with linear backoff starting at 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: Linear(time.Second)}
}

// Do runs fn until it succeeds, returns a permanent error, or attempts run out.
// Context cancellation, invalid amounts and exchange rejections are permanent.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if permanent(ctx, err) {
			return err
		}
		if attempt == attempts {
			break
		}
		slog.Warn("retrying", "op", op, "attempt", attempt, "of", attempts, "err", err)
		if serr := p.sleep(ctx, p.delay(attempt)); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("%s: %d attempts: %w", op, attempts, err)
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

func permanent(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrOrderRejected)
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
