package processor

import "github.com/harshithgowdakt/granuleflow/internal/types"

// LimitTransform passes through up to `limit` rows, then closes its input
// and finishes.
type LimitTransform struct {
	BaseProcessor
	limit   int64
	emitted int64

	inputChunk  *Chunk
	outputChunk *Chunk
}

// NewLimitTransform creates a limit processor.
func NewLimitTransform(header types.Header, limit int64) *LimitTransform {
	return &LimitTransform{
		BaseProcessor: NewBaseProcessor("LimitTransform", []types.Header{header}, []types.Header{header}),
		limit:         limit,
	}
}

func (l *LimitTransform) Prepare() Status {
	if l.IsCancelled() {
		return l.FinishAll()
	}

	out := l.Output(0)
	inp := l.Input(0)

	if out.IsFinished() {
		inp.Close()
		return StatusFinished
	}
	if !out.CanPush() {
		return StatusPortFull
	}

	// Push pending output.
	if l.outputChunk != nil {
		out.Push(l.outputChunk)
		l.outputChunk = nil
	}

	// Limit reached: the last chunk stays pullable after Finish.
	if l.emitted >= l.limit {
		inp.Close()
		out.Finish()
		return StatusFinished
	}

	if l.inputChunk != nil {
		return StatusReady
	}
	if inp.IsFinished() {
		out.Finish()
		return StatusFinished
	}
	if !inp.HasData() {
		return StatusNeedData
	}
	l.inputChunk = inp.Pull()
	return StatusReady
}

func (l *LimitTransform) Work() error {
	block := l.inputChunk.Block
	l.inputChunk = nil

	remaining := l.limit - l.emitted
	if int64(block.NumRows()) <= remaining {
		l.emitted += int64(block.NumRows())
		l.outputChunk = NewChunk(block)
		return nil
	}

	sliced := block.SliceRows(0, int(remaining))
	l.emitted += int64(sliced.NumRows())
	l.outputChunk = NewChunk(sliced)
	return nil
}
