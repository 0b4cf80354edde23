package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/config"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/executor"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/metrics"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/pipeline"
)

const tracerName = "flowcanvas.engine"

var ErrStopped = errors.New("dispatcher stopped")

// Status is the outcome of one chain execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Outcome is the result of one chain, keyed by chain name in a dispatch.
type Outcome struct {
	Chain      string           `json:"chain"`
	Status     Status           `json:"status"`
	Result     *executor.Result `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

type settings struct {
	exec         executor.Executor
	chainTimeout time.Duration
}

type chainWork struct {
	ctx     context.Context
	dataset string
	chain   pipeline.Chain
	resultC chan<- *Outcome
}

// Dispatcher fans named chains out to the executor through a bounded
// worker pool and merges the outcomes by chain name.
type Dispatcher struct {
	ctx    context.Context
	pool   *workerPool[*chainWork]
	conf   atomic.Pointer[settings]
	tracer trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTracerProvider sets the provider chain spans are recorded with.
// The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) { d.tracer = tp.Tracer(tracerName) }
}

// New creates a Dispatcher and starts its worker pool. The pool stops
// when ctx is cancelled or Shutdown is called.
func New(ctx context.Context, exec executor.Executor, conf config.EngineConf, opts ...Option) *Dispatcher {
	d := &Dispatcher{ctx: ctx, tracer: otel.Tracer(tracerName)}
	for _, o := range opts {
		o(d)
	}
	d.Reconfigure(exec, time.Duration(conf.ChainTimeoutMs)*time.Millisecond)
	d.pool = newWorkerPool[*chainWork](ctx, conf.ChainWorkers, conf.QueueDepth, d.runChain)
	return d
}

// Reconfigure swaps the executor and per-chain timeout for subsequent
// chains (used on hot-reload). A zero timeout disables the deadline.
func (d *Dispatcher) Reconfigure(exec executor.Executor, chainTimeout time.Duration) {
	d.conf.Store(&settings{exec: exec, chainTimeout: chainTimeout})
}

// Dispatch runs every chain independently and returns one outcome per
// chain name. A failing chain never affects the others. Submission waits
// for queue room, so a chain is only failed locally when ctx ends or the
// dispatcher stops before it finishes.
func (d *Dispatcher) Dispatch(ctx context.Context, dataset string, chains []pipeline.Chain) map[string]*Outcome {
	ctx, span := d.tracer.Start(ctx, "engine.Dispatch",
		trace.WithAttributes(
			attribute.String("flowcanvas.dataset", dataset),
			attribute.Int("flowcanvas.chain_count", len(chains)),
		),
	)
	defer span.End()

	start := time.Now()
	slog.Info("dispatch started", "dataset", dataset, "chains", len(chains))

	outcomes := make(map[string]*Outcome, len(chains))
	resultC := make(chan *Outcome, len(chains))
	pending := make(map[string]struct{}, len(chains))

	for i, c := range chains {
		w := &chainWork{ctx: ctx, dataset: dataset, chain: c, resultC: resultC}
		if err := d.pool.Submit(ctx, w); err != nil {
			if errors.Is(err, errPoolClosed) {
				err = ErrStopped
			}
			for _, rest := range chains[i:] {
				outcomes[rest.Name] = d.failed(rest.Name, err, 0)
			}
			break
		}
		pending[c.Name] = struct{}{}
		d.QueueUtilization()
	}

wait:
	for len(pending) > 0 {
		select {
		case o := <-resultC:
			outcomes[o.Chain] = o
			delete(pending, o.Chain)
		case <-ctx.Done():
			for name := range pending {
				outcomes[name] = d.failed(name, ctx.Err(), 0)
			}
			break wait
		case <-d.ctx.Done():
			for name := range pending {
				outcomes[name] = d.failed(name, ErrStopped, 0)
			}
			break wait
		}
	}

	failed := 0
	for _, o := range outcomes {
		if o.Status == StatusFailed {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("flowcanvas.failed_chains", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d chains failed", failed, len(chains)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	slog.Info("dispatch finished",
		"dataset", dataset,
		"chains", len(chains),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcomes
}

func (d *Dispatcher) runChain(_ context.Context, w *chainWork) {
	w.resultC <- d.execute(w)
}

func (d *Dispatcher) execute(w *chainWork) (out *Outcome) {
	s := d.conf.Load()
	ctx, span := d.tracer.Start(w.ctx, "engine.Chain",
		trace.WithAttributes(
			attribute.String("flowcanvas.chain", w.chain.Name),
			attribute.Int("flowcanvas.stage_count", len(w.chain.Stages)),
		),
	)
	defer span.End()

	if s.chainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.chainTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("executor panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			out = d.failed(w.chain.Name, err, time.Since(start).Milliseconds())
		}
	}()

	res, err := s.exec.ExecuteChain(ctx, executor.Request{
		Dataset: w.dataset,
		Branch:  w.chain.Name,
		Stages:  w.chain.Stages,
	})
	elapsed := time.Since(start).Milliseconds()
	metrics.ChainDuration.Observe(float64(elapsed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return d.failed(w.chain.Name, err, elapsed)
	}

	span.SetStatus(codes.Ok, "")
	metrics.ChainExecutions.WithLabelValues(string(StatusSuccess)).Inc()
	return &Outcome{Chain: w.chain.Name, Status: StatusSuccess, Result: res, DurationMs: elapsed}
}

func (d *Dispatcher) failed(chain string, err error, elapsed int64) *Outcome {
	slog.Warn("chain failed", "chain", chain, "err", err)
	metrics.ChainExecutions.WithLabelValues(string(StatusFailed)).Inc()
	return &Outcome{Chain: chain, Status: StatusFailed, Error: err.Error(), DurationMs: elapsed}
}

// QueueUtilization returns queue used / capacity (0–1).
func (d *Dispatcher) QueueUtilization() float64 {
	util := 0.0
	if c := d.pool.QueueCap(); c > 0 {
		util = float64(d.pool.QueueLen()) / float64(c)
	}
	metrics.QueueUtilization.Set(util)
	return util
}

// Shutdown drains the pool gracefully.
func (d *Dispatcher) Shutdown() {
	d.pool.Drain()
}
