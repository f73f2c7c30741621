package processor

import (
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// TransformFunc maps one input chunk to at most one output chunk. Returning
// nil or an empty chunk drops it.
type TransformFunc func(*Chunk) (*Chunk, error)

// SimpleTransform is a 1:1 processor: each Work consumes one input chunk and
// produces at most one output chunk.
type SimpleTransform struct {
	BaseProcessor
	transform TransformFunc

	inputChunk  *Chunk
	outputChunk *Chunk
}

// NewSimpleTransform creates a transform from in to out.
func NewSimpleTransform(name string, in, out types.Header, fn TransformFunc) *SimpleTransform {
	return &SimpleTransform{
		BaseProcessor: NewBaseProcessor(name, []types.Header{in}, []types.Header{out}),
		transform:     fn,
	}
}

func (t *SimpleTransform) Prepare() Status {
	if t.IsCancelled() {
		return t.FinishAll()
	}

	out := t.Output(0)
	inp := t.Input(0)

	if out.IsFinished() {
		inp.Close()
		return StatusFinished
	}
	if !out.CanPush() {
		return StatusPortFull
	}

	// Push pending output.
	if t.outputChunk != nil {
		out.Push(t.outputChunk)
		t.outputChunk = nil
	}

	if t.inputChunk != nil {
		return StatusReady
	}
	if inp.IsFinished() {
		out.Finish()
		return StatusFinished
	}
	if !inp.HasData() {
		return StatusNeedData
	}
	t.inputChunk = inp.Pull()
	return StatusReady
}

func (t *SimpleTransform) Work() error {
	c := t.inputChunk
	t.inputChunk = nil
	res, err := t.transform(c)
	if err != nil {
		return err
	}
	if res.NumRows() > 0 {
		t.outputChunk = res
	}
	return nil
}
