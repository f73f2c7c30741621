package processor

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/harshithgowdakt/granuleflow/internal/logging"
)

// Node scheduling states. A node is in the queue at most once; a wake-up
// that arrives while it runs marks it dirty and the running worker prepares
// it again before releasing it.
const (
	nodeIdle int32 = iota
	nodeQueued
	nodeRunning
	nodeDirty
	nodeDone
)

type node struct {
	proc     Processor
	state    atomic.Int32
	parked   atomic.Bool
	finished chan struct{}

	// Port versions this node last acted on. Touched only by the worker
	// holding the node.
	inSeen  []uint64
	outSeen []uint64
}

// PipelineExecutor drives the processor DAG to completion.
type PipelineExecutor struct {
	graph      *ExecutingGraph
	numWorkers int
	logger     *slog.Logger
	executed   atomic.Bool
}

// NewPipelineExecutor creates an executor. numWorkers defaults to NumCPU if <= 0.
func NewPipelineExecutor(graph *ExecutingGraph, numWorkers int) *PipelineExecutor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &PipelineExecutor{
		graph:      graph,
		numWorkers: numWorkers,
		logger:     logging.WithComponent("executor"),
	}
}

// WithLogger replaces the executor logger, e.g. with one tagged by query id.
func (ex *PipelineExecutor) WithLogger(l *slog.Logger) *PipelineExecutor {
	ex.logger = l
	return ex
}

// Execute runs the pipeline to completion. A processor error aborts the run
// and is returned wrapped with the processor name. If ctx is cancelled every
// processor is cancelled and drained, and the returned error satisfies
// errors.Is(err, context.Canceled). Finalizers run once before Execute
// returns.
func (ex *PipelineExecutor) Execute(ctx context.Context) error {
	if !ex.executed.CompareAndSwap(false, true) {
		return errors.AssertionFailedf("pipeline executed twice")
	}
	n := len(ex.graph.Processors)
	if n == 0 {
		return nil
	}

	start := time.Now()
	r := &run{
		graph:  ex.graph,
		nodes:  make([]node, n),
		queue:  make(chan int, n),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		logger: ex.logger,
	}
	for i, p := range ex.graph.Processors {
		r.nodes[i].proc = p
		r.nodes[i].finished = make(chan struct{})
		r.nodes[i].inSeen = make([]uint64, len(p.Inputs()))
		r.nodes[i].outSeen = make([]uint64, len(p.Outputs()))
	}
	r.remaining.Store(int64(n))
	for i := range r.nodes {
		r.wake(i)
	}

	ex.logger.Debug("pipeline started", "processors", n, "workers", ex.numWorkers)

	for w := 0; w < ex.numWorkers; w++ {
		r.group.Go(r.worker)
	}
	r.group.Go(func() error {
		select {
		case <-ctx.Done():
			r.cancelled.Store(true)
			r.cancelAll()
		case <-r.done:
		}
		return nil
	})
	err := r.group.Wait()

	cancelled := r.cancelled.Load()
	succeeded := err == nil && !cancelled
	for _, p := range ex.graph.Processors {
		if f, ok := p.(Finalizer); ok {
			f.Finalize(succeeded)
		}
	}

	elapsed := time.Since(start)
	switch {
	case err != nil:
		ex.logger.Error("pipeline failed", "error", err, "elapsed", elapsed)
		return err
	case cancelled:
		ex.logger.Info("pipeline cancelled", "elapsed", elapsed)
		return errors.Wrap(ctx.Err(), "pipeline cancelled")
	default:
		ex.logger.Debug("pipeline finished", "elapsed", elapsed)
		return nil
	}
}

// run is the state of one Execute call.
type run struct {
	graph  *ExecutingGraph
	nodes  []node
	queue  chan int
	group  errgroup.Group
	logger *slog.Logger

	// inflight counts nodes queued or running plus parked async nodes. When
	// it drops to zero nothing can make progress any more.
	inflight  atomic.Int64
	remaining atomic.Int64
	cancelled atomic.Bool

	done     chan struct{}
	doneOnce sync.Once
	stop     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error
}

func (r *run) worker() error {
	for {
		select {
		case <-r.done:
			return nil
		case i := <-r.queue:
			select {
			case <-r.done:
				return nil
			default:
			}
			if err := r.process(i); err != nil {
				return err
			}
		}
	}
}

func (r *run) wake(i int) {
	n := &r.nodes[i]
	for {
		switch n.state.Load() {
		case nodeIdle:
			if n.state.CompareAndSwap(nodeIdle, nodeQueued) {
				r.inflight.Add(1)
				r.queue <- i
				return
			}
		case nodeRunning:
			if n.state.CompareAndSwap(nodeRunning, nodeDirty) {
				return
			}
		default:
			return
		}
	}
}

func (r *run) process(i int) error {
	n := &r.nodes[i]
	n.state.Store(nodeRunning)
	for {
		switch r.step(i) {
		case StatusFinished:
			n.state.Store(nodeDone)
			close(n.finished)
			r.remaining.Add(-1)
			return r.leave()
		case StatusAsync:
			r.park(i)
		}
		if n.state.CompareAndSwap(nodeRunning, nodeIdle) {
			return r.leave()
		}
		n.state.Store(nodeRunning)
	}
}

// step prepares the node, running Work for as long as it reports Ready.
func (r *run) step(i int) Status {
	n := &r.nodes[i]
	for {
		status, err := prepare(n.proc)
		if err == nil && status == StatusAsync {
			if _, ok := n.proc.(AsyncProcessor); !ok {
				err = errors.AssertionFailedf("%s returned Async without a schedule", n.proc.Name())
			}
		}
		if err != nil {
			r.fail(n.proc, err)
			r.forceFinish(i)
			return StatusFinished
		}
		r.notify(i)
		if status != StatusReady {
			return status
		}
		if err := work(n.proc); err != nil {
			r.fail(n.proc, err)
			r.forceFinish(i)
			return StatusFinished
		}
	}
}

// notify wakes the peer on every port this node changed since it last looked.
func (r *run) notify(i int) {
	n := &r.nodes[i]
	for k, in := range n.proc.Inputs() {
		if v := in.data.pullVer.Load(); v != n.inSeen[k] {
			n.inSeen[k] = v
			r.wake(r.graph.upstreamOf[i][k])
		}
	}
	for k, out := range n.proc.Outputs() {
		if v := out.data.pushVer.Load(); v != n.outSeen[k] {
			n.outSeen[k] = v
			r.wake(r.graph.downstreamOf[i][k])
		}
	}
}

func (r *run) forceFinish(i int) {
	n := &r.nodes[i]
	for _, in := range n.proc.Inputs() {
		in.Close()
	}
	for _, out := range n.proc.Outputs() {
		out.Finish()
	}
	r.notify(i)
}

// park waits for an async node's schedule channel in the background.
func (r *run) park(i int) {
	n := &r.nodes[i]
	if !n.parked.CompareAndSwap(false, true) {
		return
	}
	ch := n.proc.(AsyncProcessor).Schedule()
	r.inflight.Add(1)
	r.group.Go(func() error {
		select {
		case <-ch:
		case <-n.finished:
		case <-r.stop:
		}
		n.parked.Store(false)
		r.wake(i)
		return r.leave()
	})
}

func (r *run) leave() error {
	if r.inflight.Add(-1) != 0 {
		return nil
	}
	defer r.doneOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil && r.remaining.Load() > 0 && !r.cancelled.Load() {
		var names []string
		for k := range r.nodes {
			if r.nodes[k].state.Load() != nodeDone {
				names = append(names, r.nodes[k].proc.Name())
			}
		}
		r.err = errors.AssertionFailedf("pipeline stuck: %d processors unfinished: %s",
			len(names), strings.Join(names, ", "))
	}
	return r.err
}

func (r *run) fail(p Processor, err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = errors.Wrapf(err, "processor %s", p.Name())
	}
	r.mu.Unlock()
	r.logger.Debug("processor failed", "processor", p.Name(), "error", err)
	r.cancelAll()
}

// cancelAll cancels every processor and reschedules them so they drain.
func (r *run) cancelAll() {
	r.stopOnce.Do(func() {
		close(r.stop)
		for i := range r.nodes {
			r.nodes[i].proc.Cancel()
		}
		for i := range r.nodes {
			r.wake(i)
		}
	})
}

func prepare(p Processor) (status Status, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(rec)
		}
	}()
	return p.Prepare(), nil
}

func work(p Processor) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(rec)
		}
	}()
	return p.Work()
}

func panicError(rec any) error {
	if e, ok := rec.(error); ok {
		return errors.Wrap(e, "panic")
	}
	return errors.Newf("panic: %v", rec)
}
