// Package orchestrator drives the full multi-pair search (spec §4.H):
// expand date pairs, run bounded-concurrency sequential batches of workers,
// and progressively re-analyze and emit after every successful worker (a
// failed worker triggers an emission only when it settles the run's last
// pair and an earlier pair succeeded).
// Grounded on workflow/parallel.go's ParallelWorkflow/Aggregator: a
// sync.WaitGroup-based batch with "wait for all, never cancel siblings"
// settle semantics, generalized here to run batches sequentially with a
// fixed per-batch concurrency cap instead of one flat fan-out.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/internal/events"
	"github.com/flightscout/orchestrator/types"
)

// Metrics is the subset of internal/metrics.Collector the orchestrator
// reports against. Satisfied by *metrics.Collector; nil disables recording.
type Metrics interface {
	RecordBatchDuration(searchMode string, duration time.Duration)
}

// DefaultConcurrencyLimit is CONCURRENCY_LIMIT.
const DefaultConcurrencyLimit = 3

// DefaultMaxWorkerRetries is MAX_WORKER_RETRIES.
const DefaultMaxWorkerRetries = 1

// RetryMode selects whether a failed worker is retried.
type RetryMode string

const (
	RetryOff     RetryMode = "off"
	RetryBounded RetryMode = "bounded"
)

// WorkerRunner runs one worker attempt for a date pair to completion.
type WorkerRunner interface {
	Run(ctx context.Context) (types.WorkerResult, error)
}

// WorkerFactory builds a brand-new WorkerRunner (and so a brand-new remote
// session) for one attempt at a date pair.
type WorkerFactory func(pair types.DatePair) WorkerRunner

// Analyzer produces a progressive digest over the current Aggregate.
type Analyzer interface {
	Analyze(ctx context.Context, agg types.Aggregate, req types.SearchRequest) types.Analysis
}

// Config configures an Orchestrator run.
type Config struct {
	ConcurrencyLimit int
	MaxWorkerRetries int
	RetryMode        RetryMode
}

// DefaultConfig returns the spec default configuration.
func DefaultConfig() Config {
	return Config{ConcurrencyLimit: DefaultConcurrencyLimit, MaxWorkerRetries: DefaultMaxWorkerRetries, RetryMode: RetryBounded}
}

// Orchestrator runs a SearchRequest end to end, emitting the full event
// stream described in spec §6.
type Orchestrator struct {
	cfg      Config
	factory  WorkerFactory
	analyzer Analyzer
	sink     events.Sink
	logger   *zap.Logger
	metrics  Metrics
}

// New creates an Orchestrator. metrics may be nil, in which case recording
// is a no-op.
func New(cfg Config, factory WorkerFactory, analyzer Analyzer, sink events.Sink, logger *zap.Logger, metrics Metrics) *Orchestrator {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if cfg.RetryMode == "" {
		cfg.RetryMode = RetryBounded
	}
	if sink == nil {
		sink = events.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, factory: factory, analyzer: analyzer, sink: sink, logger: logger.With(zap.String("component", "orchestrator")), metrics: metrics}
}

// Run expands req into date pairs and drives every worker to completion,
// returning the final Aggregate. It never returns an error for individual
// worker failures — those are reflected in the Aggregate and the event
// stream; it only errors if req itself cannot be expanded.
func (o *Orchestrator) Run(ctx context.Context, req types.SearchRequest) (types.Aggregate, error) {
	pairs, err := types.ExpandDatePairs(req)
	if err != nil {
		return types.Aggregate{}, err
	}
	o.sink.Emit(events.CombinationsGenerated(len(pairs)))

	agg := types.Aggregate{Total: len(pairs)}
	var mu sync.Mutex

	for start := 0; start < len(pairs); start += o.cfg.ConcurrencyLimit {
		end := start + o.cfg.ConcurrencyLimit
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[start:end]
		batchStarted := time.Now()

		var wg sync.WaitGroup
		for _, pair := range batch {
			wg.Add(1)
			go func(p types.DatePair) {
				defer wg.Done()
				result, runErr := o.runWithRetry(ctx, p)

				mu.Lock()
				defer mu.Unlock()
				if runErr != nil {
					agg.MarkFailed()
					o.sink.Emit(events.MinionFailedFinal(p.PairID, p.DepDate, p.RetDate, runErr.Error()))
					// A failure only warrants a progressive_results emission when it's
					// the settle that completes the whole run (the last pair of the
					// last batch) and at least one pair already succeeded; otherwise
					// an all-failure run would end on a misleadingly "complete"
					// empty-results event.
					if !(agg.Processed == agg.Total && len(agg.Results) > 0) {
						return
					}
				} else {
					agg.Append(result)
				}
				analysis := o.analyzer.Analyze(ctx, agg, req)
				o.emitProgress(agg, analysis)
			}(pair)
		}
		wg.Wait()
		if o.metrics != nil {
			o.metrics.RecordBatchDuration(string(req.Mode), time.Since(batchStarted))
		}
	}

	if len(agg.Results) > 0 {
		analysis := o.analyzer.Analyze(ctx, agg, req)
		o.sink.Emit(events.ProgressiveResults(agg.Total, agg.Completed, agg.Processed-agg.Completed, agg.Results, analysis, true))
	}

	return agg, nil
}

func (o *Orchestrator) emitProgress(agg types.Aggregate, analysis types.Analysis) {
	o.sink.Emit(events.ProgressiveResults(agg.Total, agg.Completed, agg.Processed-agg.Completed, agg.Results, analysis, agg.IsComplete()))
}

// runWithRetry runs up to 1+MaxWorkerRetries attempts (when RetryMode is
// bounded) or exactly one attempt (RetryOff), creating a brand-new
// WorkerRunner — and so a brand-new session — for every attempt.
func (o *Orchestrator) runWithRetry(ctx context.Context, pair types.DatePair) (types.WorkerResult, error) {
	attempts := 1
	if o.cfg.RetryMode == RetryBounded {
		attempts += o.cfg.MaxWorkerRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		runner := o.factory(pair)
		result, err := runner.Run(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		o.logger.Warn("worker attempt failed", zap.Int("pair_id", pair.PairID), zap.Int("attempt", attempt), zap.Error(err))
	}
	return types.WorkerResult{}, lastErr
}
