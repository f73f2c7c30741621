package processor

import (
	"fmt"

	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// ResizeProcessor moves chunks from N inputs to M outputs. Chunks of one
// input keep their order; no order is kept between inputs. All work happens
// in Prepare since it only moves chunk pointers.
type ResizeProcessor struct {
	BaseProcessor

	nextInput  int
	nextOutput int
}

// NewResizeProcessor creates an N to M resize over header.
func NewResizeProcessor(header types.Header, numInputs, numOutputs int) *ResizeProcessor {
	return &ResizeProcessor{
		BaseProcessor: NewBaseProcessor(fmt.Sprintf("Resize(%d→%d)", numInputs, numOutputs),
			headers(header, numInputs), headers(header, numOutputs)),
	}
}

func (r *ResizeProcessor) Prepare() Status {
	if r.IsCancelled() {
		return r.FinishAll()
	}

	ins, outs := r.Inputs(), r.Outputs()

	liveOutputs := 0
	for _, out := range outs {
		if !out.IsFinished() {
			liveOutputs++
		}
	}
	if liveOutputs == 0 {
		for _, in := range ins {
			in.Close()
		}
		return StatusFinished
	}

	for {
		out := r.freeOutput()
		if out == nil {
			break
		}
		c := r.pullInput()
		if c == nil {
			break
		}
		out.Push(c)
	}

	allFinished := true
	for _, in := range ins {
		if !in.IsFinished() {
			allFinished = false
			break
		}
	}
	if allFinished {
		for _, out := range outs {
			out.Finish()
		}
		return StatusFinished
	}

	if r.freeOutput() != nil {
		return StatusNeedData
	}
	return StatusPortFull
}

func (r *ResizeProcessor) Work() error { return nil }

// freeOutput returns the next output, round robin, that can take a chunk.
func (r *ResizeProcessor) freeOutput() *OutputPort {
	outs := r.Outputs()
	for i := range outs {
		idx := (r.nextOutput + i) % len(outs)
		if outs[idx].CanPush() {
			r.nextOutput = (idx + 1) % len(outs)
			return outs[idx]
		}
	}
	return nil
}

// pullInput pulls from the next input, round robin, holding a chunk.
func (r *ResizeProcessor) pullInput() *Chunk {
	ins := r.Inputs()
	for i := range ins {
		idx := (r.nextInput + i) % len(ins)
		if ins[idx].HasData() {
			r.nextInput = (idx + 1) % len(ins)
			return ins[idx].Pull()
		}
	}
	return nil
}
