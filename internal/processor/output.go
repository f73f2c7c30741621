package processor

import (
	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// ResultSink is the terminal sink of a pipeline. It collects main chunks and,
// when the pipeline carries them, the totals and extremes chunks.
type ResultSink struct {
	BaseProcessor

	Chunks   []*Chunk
	Totals   *Chunk
	Extremes *Chunk

	totalsPort   *InputPort
	extremesPort *InputPort
}

// NewResultSink creates a sink for header with optional side inputs.
func NewResultSink(header types.Header, withTotals, withExtremes bool) *ResultSink {
	ins := []types.Header{header}
	if withTotals {
		ins = append(ins, header)
	}
	if withExtremes {
		ins = append(ins, header)
	}
	s := &ResultSink{BaseProcessor: NewBaseProcessor("ResultSink", ins, nil)}
	port := 1
	if withTotals {
		s.totalsPort = s.Input(port)
		port++
	}
	if withExtremes {
		s.extremesPort = s.Input(port)
	}
	return s
}

// TotalsInput returns the totals input, or nil.
func (s *ResultSink) TotalsInput() *InputPort { return s.totalsPort }

// ExtremesInput returns the extremes input, or nil.
func (s *ResultSink) ExtremesInput() *InputPort { return s.extremesPort }

func (s *ResultSink) Prepare() Status {
	if s.IsCancelled() {
		return s.FinishAll()
	}

	finished := true
	for _, in := range s.Inputs() {
		if c := in.Pull(); c != nil {
			switch in {
			case s.totalsPort:
				s.Totals = c
			case s.extremesPort:
				s.Extremes = c
			default:
				s.Chunks = append(s.Chunks, c)
			}
		}
		if !in.IsFinished() {
			finished = false
		}
	}
	if finished {
		return StatusFinished
	}
	return StatusNeedData
}

func (s *ResultSink) Work() error { return nil }

// ResultBlocks returns the collected non-empty main blocks.
func (s *ResultSink) ResultBlocks() []*column.Block {
	blocks := make([]*column.Block, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		if c.NumRows() > 0 {
			blocks = append(blocks, c.Block)
		}
	}
	return blocks
}

// NumRows returns the number of main rows collected.
func (s *ResultSink) NumRows() int {
	n := 0
	for _, c := range s.Chunks {
		n += c.NumRows()
	}
	return n
}

// NullSink discards its input. It closes the port at once so the producer
// skips the work.
type NullSink struct {
	BaseProcessor
}

func NewNullSink(header types.Header) *NullSink {
	return &NullSink{BaseProcessor: NewBaseProcessor("NullSink", []types.Header{header}, nil)}
}

func (s *NullSink) Prepare() Status {
	s.Input(0).Close()
	return StatusFinished
}

func (s *NullSink) Work() error { return nil }
