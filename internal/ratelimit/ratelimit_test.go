package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedError struct {
	code int
	msg  string
}

func (e codedError) Error() string  { return e.msg }
func (e codedError) ErrorCode() int { return e.code }

func TestFixedDelayWaits(t *testing.T) {
	p := NewFixedDelay(30 * time.Millisecond)
	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestFixedDelayZeroIsImmediate(t *testing.T) {
	p := NewFixedDelay(0)
	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestFixedDelayContextCancel(t *testing.T) {
	p := NewFixedDelay(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdaptiveHalvesOnRateLimit(t *testing.T) {
	a := NewAdaptive(8, 1, 1)
	assert.InDelta(t, 8.0, a.Limit(), 0.001)

	a.Observe(rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"})
	assert.InDelta(t, 4.0, a.Limit(), 0.001)

	a.Observe(codedError{code: -32005, msg: "limit exceeded"})
	assert.InDelta(t, 2.0, a.Limit(), 0.001)

	for i := 0; i < 5; i++ {
		a.Observe(errors.New("too many requests"))
	}
	assert.InDelta(t, 1.0, a.Limit(), 0.001, "rate is floored at minRPS")
}

func TestAdaptiveRecoversOnSuccess(t *testing.T) {
	a := NewAdaptive(4, 1, 1)
	a.Observe(errors.New("http status 429"))
	require.InDelta(t, 2.0, a.Limit(), 0.001)

	a.Observe(nil)
	assert.InDelta(t, 2.5, a.Limit(), 0.001)
	for i := 0; i < 10; i++ {
		a.Observe(nil)
	}
	assert.InDelta(t, 4.0, a.Limit(), 0.001, "rate never exceeds the configured maximum")
}

func TestAdaptiveIgnoresOtherErrors(t *testing.T) {
	a := NewAdaptive(4, 1, 1)
	a.Observe(errors.New("execution reverted"))
	assert.InDelta(t, 4.0, a.Limit(), 0.001)

	a.Observe(errors.New("Log response size exceeded. response size limit exceeded"))
	assert.InDelta(t, 4.0, a.Limit(), 0.001, "oversized responses do not slow the scan")
}

func TestAdaptiveWaitWithinBurst(t *testing.T) {
	a := NewAdaptive(100, 3, 0)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAdaptiveWaitContextCancel(t *testing.T) {
	a := NewAdaptive(0.5, 1, 0)
	require.NoError(t, a.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Wait(ctx), context.DeadlineExceeded)
}

func TestClassifyRPCError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ClassOK},
		{context.DeadlineExceeded, ClassTimeout},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), ClassTimeout},
		{rpc.HTTPError{StatusCode: 429}, ClassRateLimited},
		{rpc.HTTPError{StatusCode: 503}, ClassServerError},
		{rpc.HTTPError{StatusCode: 401}, ClassClientError},
		{codedError{code: -32005, msg: "query limit"}, ClassRateLimited},
		{codedError{code: -32000, msg: "header not found"}, ClassServerError},
		{codedError{code: -32602, msg: "invalid params"}, ClassClientError},
		{errors.New("i/o timeout"), ClassTimeout},
		{errors.New("read: connection reset by peer"), ClassNetworkError},
		{errors.New("websocket: close 1006 (abnormal closure): unexpected EOF"), ClassNetworkError},
		{errors.New("execution reverted"), ClassClientError},
		{errors.New("invalid block range: fromBlock 21500000 is after toBlock 21041924"), ClassClientError},
		{errors.New("query returned more than 10000 results. Try with this block range [0x1500000, 0x15000ff]."), ClassClientError},
		{codedError{code: -32005, msg: "query returned more than 10000 results"}, ClassClientError},
		{errors.New("Log response size exceeded. response size limit exceeded"), ClassClientError},
		{errors.New("missing trie node for block 21500503"), ClassClientError},
		{errors.New("unexpected http status 503"), ClassServerError},
		{errors.New("503 Service Unavailable"), ClassServerError},
		{errors.New("http status 429"), ClassRateLimited},
		{io.EOF, ClassNetworkError},
		{fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), ClassNetworkError},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRPCError(tt.err))
		})
	}
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(ClassTimeout))
	assert.True(t, Transient(ClassRateLimited))
	assert.True(t, Transient(ClassServerError))
	assert.True(t, Transient(ClassNetworkError))
	assert.False(t, Transient(ClassClientError))
	assert.False(t, Transient(ClassOK))
}
