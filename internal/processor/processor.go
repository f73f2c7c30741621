package processor

import (
	"sync/atomic"

	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// Status tells the executor what the processor needs.
type Status int

const (
	// StatusNeedData: input has no data; schedule upstream.
	StatusNeedData Status = iota
	// StatusPortFull: output has unconsumed data; schedule downstream.
	StatusPortFull
	// StatusReady: processor has data to process; call Work().
	StatusReady
	// StatusFinished: processor is done and will never produce more.
	StatusFinished
	// StatusAsync: processor waits on Schedule(); poll it again once the
	// channel is closed.
	StatusAsync
)

func (s Status) String() string {
	switch s {
	case StatusNeedData:
		return "NeedData"
	case StatusPortFull:
		return "PortFull"
	case StatusReady:
		return "Ready"
	case StatusFinished:
		return "Finished"
	case StatusAsync:
		return "Async"
	default:
		return "Unknown"
	}
}

// Processor is a node in the execution DAG.
//
// Prepare() inspects port states and returns what the executor should do.
// It must be lightweight (no heavy computation) and depends only on port
// states and the processor's own state.
//
// Work() performs the actual computation. Called only when Prepare()
// returned StatusReady. May be called from any goroutine in the pool, but
// never concurrently with another Prepare() or Work() on the same processor.
//
// Cancel() sets a sticky flag. A cancelled processor closes its inputs,
// finishes its outputs and reports StatusFinished from its next Prepare().
type Processor interface {
	Name() string
	Prepare() Status
	Work() error
	Inputs() []*InputPort
	Outputs() []*OutputPort
	Cancel()
	IsCancelled() bool
}

// AsyncProcessor is a processor that may return StatusAsync.
type AsyncProcessor interface {
	Processor
	Schedule() <-chan struct{}
}

// Finalizer is called exactly once after the pipeline ends. succeeded is
// true iff the run completed with no error and no cancellation.
type Finalizer interface {
	Finalize(succeeded bool)
}

// BaseProcessor provides common port management and the cancellation flag.
type BaseProcessor struct {
	name      string
	inputs    []*InputPort
	outputs   []*OutputPort
	cancelled atomic.Bool
}

// NewBaseProcessor creates a BaseProcessor with one port per header.
func NewBaseProcessor(name string, inputs, outputs []types.Header) BaseProcessor {
	ins := make([]*InputPort, len(inputs))
	for i, h := range inputs {
		ins[i] = NewInputPort(h)
	}
	outs := make([]*OutputPort, len(outputs))
	for i, h := range outputs {
		outs[i] = NewOutputPort(h)
	}
	return BaseProcessor{
		name:    name,
		inputs:  ins,
		outputs: outs,
	}
}

func (b *BaseProcessor) Name() string           { return b.name }
func (b *BaseProcessor) Inputs() []*InputPort   { return b.inputs }
func (b *BaseProcessor) Outputs() []*OutputPort { return b.outputs }

// Input returns the i-th input port.
func (b *BaseProcessor) Input(i int) *InputPort { return b.inputs[i] }

// Output returns the i-th output port.
func (b *BaseProcessor) Output(i int) *OutputPort { return b.outputs[i] }

func (b *BaseProcessor) Cancel()           { b.cancelled.Store(true) }
func (b *BaseProcessor) IsCancelled() bool { return b.cancelled.Load() }

// FinishAll closes every input and finishes every output.
func (b *BaseProcessor) FinishAll() Status {
	for _, in := range b.inputs {
		in.Close()
	}
	for _, out := range b.outputs {
		out.Finish()
	}
	return StatusFinished
}

// headers repeats h n times.
func headers(h types.Header, n int) []types.Header {
	hs := make([]types.Header, n)
	for i := range hs {
		hs[i] = h
	}
	return hs
}
