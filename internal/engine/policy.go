package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/blueogin/trade-data-collector/internal/ratelimit"
)

// FailurePolicy decides what a range that cannot be fetched does to the run.
type FailurePolicy int

const (
	// PolicySkip logs and records the range, then continues with the next one.
	PolicySkip FailurePolicy = iota
	// PolicyAbort fails the run on the first range that cannot be fetched.
	PolicyAbort
)

func (p FailurePolicy) String() string {
	if p == PolicyAbort {
		return "abort"
	}
	return "skip"
}

// ParseFailurePolicy accepts "skip" (or empty) and "abort".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return PolicySkip, nil
	case "abort":
		return PolicyAbort, nil
	default:
		return 0, fmt.Errorf("unknown fetch failure policy %q", s)
	}
}

// Backoff is a bounded exponential retry schedule for log fetches.
type Backoff struct {
	// MaxAttempts is the number of retries after the first try. 0 disables retries.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Multiplier defaults to 2.
	Multiplier float64
}

// Next returns the delay before retry number attempt (1-based), or false once
// the retries are exhausted.
func (b Backoff) Next(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > b.MaxAttempts {
		return 0, false
	}
	if b.InitialDelay <= 0 {
		return 0, true
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	// Clamp in float64; the product overflows int64 long before attempts run out.
	f := float64(b.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if b.MaxDelay > 0 && f >= float64(b.MaxDelay) {
		return b.MaxDelay, true
	}
	if f >= math.MaxInt64 {
		return time.Duration(math.MaxInt64), true
	}
	return time.Duration(f), true
}

// retryable reports whether a fetch error is worth another attempt.
func retryable(err error) bool {
	return ratelimit.Transient(ratelimit.ClassifyRPCError(err))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
