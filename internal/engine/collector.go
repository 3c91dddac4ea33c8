package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/blueogin/trade-data-collector/internal/blockrange"
	"github.com/blueogin/trade-data-collector/internal/metrics"
	"github.com/blueogin/trade-data-collector/internal/ratelimit"
	"github.com/blueogin/trade-data-collector/internal/source/evm"
	"github.com/blueogin/trade-data-collector/internal/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Fetcher returns the logs of one block range.
type Fetcher interface {
	Fetch(ctx context.Context, r blockrange.Range, filter evm.Filter) ([]types.Log, error)
}

// Sink receives the events of each range.
type Sink interface {
	Initialize() error
	Append(events []evm.OrderEvent) error
}

// Manifest records ranges that could not be fetched so they can be backfilled.
type Manifest interface {
	RecordSkipped(ctx context.Context, sr storage.SkippedRange) error
	ResolveSkipped(ctx context.Context, runID string, startBlock uint64) error
}

// Phase is the coarse state of a collector.
type Phase int

const (
	Idle Phase = iota
	Scanning
	Failed
)

func (p Phase) String() string {
	switch p {
	case Scanning:
		return "scanning"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// State is a snapshot of the collector. Range is set while scanning, Err once failed.
type State struct {
	Phase Phase
	Range blockrange.Range
	Err   error
}

// Request describes one scan.
type Request struct {
	RunID     string
	Contract  common.Address
	Event     string
	From      uint64
	To        uint64
	ChunkSize uint64
}

// Skip is a range whose logs are absent from the output.
type Skip struct {
	Range    blockrange.Range
	Attempts int
	Err      error
}

// Summary reports what a scan did.
type Summary struct {
	Ranges  int
	Events  int
	Dropped int
	Skipped []Skip
}

// Options tune a Collector. Zero values mean no pacing, no retries, skip on failure.
type Options struct {
	Pacer    ratelimit.Pacer
	Backoff  Backoff
	Policy   FailurePolicy
	Manifest Manifest
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Collector drives partition, fetch, extract and append strictly in block order.
type Collector struct {
	fetcher   Fetcher
	extractor *evm.Extractor
	sink      Sink
	pacer     ratelimit.Pacer
	backoff   Backoff
	policy    FailurePolicy
	manifest  Manifest
	metrics   *metrics.Metrics
	log       *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state State
}

// NewCollector wires a collector around its fetcher, extractor and sink.
func NewCollector(fetcher Fetcher, extractor *evm.Extractor, out Sink, opts Options) *Collector {
	pacer := opts.Pacer
	if pacer == nil {
		pacer = ratelimit.NewFixedDelay(0)
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Collector{
		fetcher:   fetcher,
		extractor: extractor,
		sink:      out,
		pacer:     pacer,
		backoff:   opts.Backoff,
		policy:    opts.Policy,
		manifest:  opts.Manifest,
		metrics:   opts.Metrics,
		log:       log,
		sleep:     sleep,
	}
}

// State returns the current state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Collector) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run initializes the output and scans [req.From, req.To] in chunks of req.ChunkSize.
// Only errors that are not tied to a single range are returned; ranges that cannot be
// fetched are reported in the summary unless the policy is PolicyAbort.
func (c *Collector) Run(ctx context.Context, req Request) (Summary, error) {
	filter, err := evm.NewFilter(req.Contract, c.extractor.Signatures(), req.Event)
	if err != nil {
		return Summary{}, c.fail(fmt.Errorf("build filter: %w", err))
	}
	ranges, err := blockrange.Partition(req.From, req.To, req.ChunkSize)
	if err != nil {
		return Summary{}, c.fail(err)
	}
	if err := c.sink.Initialize(); err != nil {
		return Summary{}, c.fail(fmt.Errorf("initialize output: %w", err))
	}

	c.log.Info("scan started",
		"contract", req.Contract.Hex(),
		"event", filterName(req.Event),
		"from", req.From,
		"to", req.To,
		"chunk_size", req.ChunkSize,
		"policy", c.policy.String(),
	)
	return c.scan(ctx, req.RunID, filter, ranges, false)
}

// Backfill rescans previously skipped ranges and appends their events to the existing
// output. Ranges fetched successfully are marked resolved in the manifest.
func (c *Collector) Backfill(ctx context.Context, req Request, ranges []blockrange.Range) (Summary, error) {
	filter, err := evm.NewFilter(req.Contract, c.extractor.Signatures(), req.Event)
	if err != nil {
		return Summary{}, c.fail(fmt.Errorf("build filter: %w", err))
	}
	ordered := slices.Clone(ranges)
	slices.SortFunc(ordered, func(a, b blockrange.Range) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})
	c.log.Info("backfill started", "run", req.RunID, "ranges", len(ordered))
	return c.scan(ctx, req.RunID, filter, slices.Values(ordered), true)
}

func (c *Collector) scan(ctx context.Context, runID string, filter evm.Filter, ranges iter.Seq[blockrange.Range], backfill bool) (Summary, error) {
	var sum Summary
	first := true
	for r := range ranges {
		if !first {
			if err := c.pacer.Wait(ctx); err != nil {
				return sum, c.fail(err)
			}
		}
		first = false
		c.setState(State{Phase: Scanning, Range: r})

		logs, attempts, err := c.fetch(ctx, r, filter)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sum, c.fail(ctxErr)
			}
			if c.policy == PolicyAbort {
				c.recordSkip(ctx, runID, r, attempts, err)
				return sum, c.fail(err)
			}
			c.log.Warn("skipping range", "range", r.String(), "attempts", attempts, "error", err)
			c.metrics.ChunkSkipped()
			c.recordSkip(ctx, runID, r, attempts, err)
			sum.Skipped = append(sum.Skipped, Skip{Range: r, Attempts: attempts, Err: err})
			continue
		}

		written, dropped, err := c.process(ctx, logs)
		sum.Dropped += dropped
		if err != nil {
			return sum, c.fail(fmt.Errorf("range %s: %w", r, err))
		}
		sum.Ranges++
		sum.Events += written
		c.metrics.ChunkScanned(r.End)
		c.metrics.EventsWritten(written)
		c.metrics.EventsDropped(dropped)
		c.log.Info("range processed", "range", r.String(), "logs", len(logs), "events", written, "dropped", dropped)

		if backfill && c.manifest != nil {
			if err := c.manifest.ResolveSkipped(ctx, runID, r.Start); err != nil {
				c.log.Error("resolve skipped range", "range", r.String(), "error", err)
			}
		}
	}

	c.setState(State{Phase: Idle})
	c.log.Info("scan finished", "ranges", sum.Ranges, "events", sum.Events, "dropped", sum.Dropped, "skipped", len(sum.Skipped))
	return sum, nil
}

// fetch queries one range, retrying transient failures on the backoff schedule.
func (c *Collector) fetch(ctx context.Context, r blockrange.Range, filter evm.Filter) ([]types.Log, int, error) {
	attempts := 0
	for {
		attempts++
		logs, err := c.fetcher.Fetch(ctx, r, filter)
		c.pacer.Observe(err)
		if err == nil {
			return logs, attempts, nil
		}
		c.metrics.RPCError(ratelimit.ClassifyRPCError(err))
		if ctx.Err() != nil || !retryable(err) {
			return nil, attempts, err
		}
		delay, ok := c.backoff.Next(attempts)
		if !ok {
			return nil, attempts, err
		}
		c.log.Warn("fetch failed; retrying", "range", r.String(), "attempt", attempts, "delay", delay, "error", err)
		c.metrics.FetchRetried()
		if err := c.sleep(ctx, delay); err != nil {
			return nil, attempts, err
		}
	}
}

// process extracts the logs of one range and appends the surviving events once.
func (c *Collector) process(ctx context.Context, logs []types.Log) (written, dropped int, err error) {
	chunk := c.extractor.ForChunk()
	events := make([]evm.OrderEvent, 0, len(logs))
	for _, lg := range logs {
		ev, ok := chunk.Extract(ctx, lg)
		if !ok {
			dropped++
			continue
		}
		events = append(events, ev)
	}
	// Lookups fail once ctx is done; don't persist a chunk truncated by cancellation.
	if err := ctx.Err(); err != nil {
		return 0, dropped, err
	}
	if len(events) == 0 {
		return 0, dropped, nil
	}
	if err := c.sink.Append(events); err != nil {
		return 0, dropped, fmt.Errorf("append output: %w", err)
	}
	headers, txs := chunk.Lookups()
	c.log.Debug("chunk lookups", "logs", len(logs), "headers", headers, "txs", txs)
	return len(events), dropped, nil
}

func (c *Collector) recordSkip(ctx context.Context, runID string, r blockrange.Range, attempts int, cause error) {
	if c.manifest == nil || runID == "" {
		return
	}
	// The skip must be recorded even when ctx is what ended the fetch.
	rctx := context.WithoutCancel(ctx)
	err := c.manifest.RecordSkipped(rctx, storage.SkippedRange{
		RunID:      runID,
		StartBlock: r.Start,
		EndBlock:   r.End,
		Attempts:   attempts,
		Reason:     unwrapFetch(cause).Error(),
	})
	if err != nil {
		c.log.Error("record skipped range", "range", r.String(), "error", err)
	}
}

func (c *Collector) fail(err error) error {
	c.setState(State{Phase: Failed, Err: err})
	return err
}

func unwrapFetch(err error) error {
	var fe *evm.FetchError
	if errors.As(err, &fe) && fe.Err != nil {
		return fe.Err
	}
	return err
}

func filterName(selector string) string {
	if selector == "" {
		return evm.DefaultSelector
	}
	return selector
}
