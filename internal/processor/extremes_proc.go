package processor

import (
	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// ExtremesTransform forwards its input unchanged and tracks the minimum and
// maximum of every column. Once the main output has finished it emits a
// two-row extremes chunk (minimums, then maximums) on its second output.
// Nothing is emitted for empty input.
type ExtremesTransform struct {
	BaseProcessor

	mins, maxs []types.Value

	inputChunk     *Chunk
	outputChunk    *Chunk
	extremesChunk  *Chunk
	extremesPushed bool
	mainDone       bool
}

// NewExtremesTransform creates the transform for header.
func NewExtremesTransform(header types.Header) *ExtremesTransform {
	return &ExtremesTransform{
		BaseProcessor: NewBaseProcessor("ExtremesTransform", []types.Header{header}, []types.Header{header, header}),
		mins:          make([]types.Value, len(header)),
		maxs:          make([]types.Value, len(header)),
	}
}

// Extremes returns the extremes output.
func (e *ExtremesTransform) Extremes() *OutputPort { return e.Output(1) }

func (e *ExtremesTransform) Prepare() Status {
	if e.IsCancelled() {
		return e.FinishAll()
	}
	if e.mainDone {
		return pushOnce(e.Output(1), e.extremesChunk, &e.extremesPushed)
	}

	out := e.Output(0)
	inp := e.Input(0)

	if out.IsFinished() {
		inp.Close()
		e.Output(1).Finish()
		return StatusFinished
	}
	if !out.CanPush() {
		return StatusPortFull
	}
	if e.outputChunk != nil {
		out.Push(e.outputChunk)
		e.outputChunk = nil
		return StatusPortFull
	}
	if e.inputChunk != nil {
		return StatusReady
	}
	if c := inp.Pull(); c != nil {
		e.inputChunk = c
		return StatusReady
	}
	if !inp.IsFinished() {
		return StatusNeedData
	}

	out.Finish()
	e.mainDone = true
	e.extremesChunk = e.build()
	return e.Prepare()
}

func (e *ExtremesTransform) Work() error {
	c := e.inputChunk
	e.inputChunk = nil
	for i, col := range c.Block.Columns {
		dt := col.DataType()
		for row := range col.Len() {
			v := col.Value(row)
			if e.mins[i] == nil || types.CompareValues(dt, v, e.mins[i]) < 0 {
				e.mins[i] = v
			}
			if e.maxs[i] == nil || types.CompareValues(dt, v, e.maxs[i]) > 0 {
				e.maxs[i] = v
			}
		}
	}
	e.outputChunk = c
	return nil
}

func (e *ExtremesTransform) build() *Chunk {
	header := e.Output(1).Header()
	if len(header) == 0 || e.mins[0] == nil {
		return nil
	}
	cols := make([]column.Column, len(header))
	for i, def := range header {
		cols[i] = column.NewColumnWithCapacity(def.Type, 2)
		cols[i].Append(e.mins[i])
		cols[i].Append(e.maxs[i])
	}
	return NewChunk(column.NewBlock(header.Names(), cols))
}
