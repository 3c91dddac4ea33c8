// Package ratelimit paces consecutive RPC-heavy steps of a scan.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// Pacer is consulted between chunks. Observe receives the outcome of the
// previous chunk's fetch (nil on success).
type Pacer interface {
	Wait(ctx context.Context) error
	Observe(err error)
}

// FixedDelay pauses for the same duration before every chunk after the first.
type FixedDelay struct {
	Delay time.Duration
}

// NewFixedDelay returns a pacer sleeping d between chunks.
func NewFixedDelay(d time.Duration) *FixedDelay {
	return &FixedDelay{Delay: d}
}

func (f *FixedDelay) Wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(f.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FixedDelay) Observe(error) {}

// Adaptive is a token bucket that halves its rate when the provider signals a
// rate limit and recovers towards the configured rate on success.
type Adaptive struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	max     rate.Limit
	min     rate.Limit
}

// NewAdaptive creates a token bucket allowing rps chunks per second with the given
// burst; the rate never drops below minRPS.
func NewAdaptive(rps float64, burst int, minRPS float64) *Adaptive {
	if burst < 1 {
		burst = 1
	}
	if minRPS <= 0 || minRPS > rps {
		minRPS = rps / 8
	}
	return &Adaptive{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		max:     rate.Limit(rps),
		min:     rate.Limit(minRPS),
	}
}

// Wait blocks until a token is available, or ctx is done.
func (a *Adaptive) Wait(ctx context.Context) error {
	r := a.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Observe adjusts the rate from the last fetch outcome.
func (a *Adaptive) Observe(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.limiter.Limit()
	switch {
	case err == nil:
		if cur < a.max {
			next := cur * 5 / 4
			if next > a.max {
				next = a.max
			}
			a.limiter.SetLimit(next)
		}
	case ClassifyRPCError(err) == ClassRateLimited:
		next := cur / 2
		if next < a.min {
			next = a.min
		}
		a.limiter.SetLimit(next)
	}
}

// Limit returns the current rate in chunks per second.
func (a *Adaptive) Limit() float64 {
	return float64(a.limiter.Limit())
}

// Error classes reported by ClassifyRPCError.
const (
	ClassOK           = "ok"
	ClassTimeout      = "timeout"
	ClassRateLimited  = "rate_limited"
	ClassServerError  = "server_error"
	ClassNetworkError = "network_error"
	ClassClientError  = "client_error"
)

// ClassifyRPCError buckets an RPC error by structured status first, then by message.
// Messages naming a request the provider will never serve (too many results, a bad
// block range) are client errors even when they arrive with a server error code.
func ClassifyRPCError(err error) string {
	if err == nil {
		return ClassOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return ClassRateLimited
		case httpErr.StatusCode >= 500:
			return ClassServerError
		default:
			return ClassClientError
		}
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, terminalMessageTokens) {
		return ClassClientError
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch code := rpcErr.ErrorCode(); {
		case code == -32005:
			return ClassRateLimited
		case code == -32603 || (code <= -32000 && code >= -32099):
			return ClassServerError
		}
	}

	switch {
	case containsAny(lower, timeoutMessageTokens):
		return ClassTimeout
	case containsAny(lower, rateLimitMessageTokens):
		return ClassRateLimited
	case containsAny(lower, serverMessageTokens):
		return ClassServerError
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || containsAny(lower, networkMessageTokens):
		return ClassNetworkError
	default:
		return ClassClientError
	}
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var terminalMessageTokens = []string{
	"more than",
	"response size",
	"block range",
	"invalid argument",
	"invalid params",
	"method not found",
	"execution reverted",
}

var timeoutMessageTokens = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

var rateLimitMessageTokens = []string{
	"rate limit",
	"too many requests",
	"http status 429",
}

// Status codes only count in the forms HTTP clients print them, never as bare numbers.
var serverMessageTokens = []string{
	"http status 500",
	"http status 502",
	"http status 503",
	"http status 504",
	"internal server error",
	"bad gateway",
	"service unavailable",
}

var networkMessageTokens = []string{
	"connection refused",
	"connection reset",
	"network is unreachable",
	"no such host",
	"broken pipe",
	"unexpected eof",
	"websocket: close",
}

// Transient reports whether a class is worth retrying.
func Transient(class string) bool {
	switch class {
	case ClassTimeout, ClassRateLimited, ClassServerError, ClassNetworkError:
		return true
	default:
		return false
	}
}
