package processor

import (
	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// SortTransform materializes all input, sorts, then emits the sorted rows in
// chunks of at most maxBlockSize rows.
// Phase 0: accumulate, Phase 1: sort (Work), Phase 2: push, Phase 3: finish.
type SortTransform struct {
	BaseProcessor
	keys         []column.SortKey
	maxBlockSize int

	pending     *Chunk
	accumulated *column.Block
	sorted      []*Chunk
	phase       int
}

// NewSortTransform creates a full sort over keys.
func NewSortTransform(header types.Header, keys []column.SortKey, maxBlockSize int) *SortTransform {
	return &SortTransform{
		BaseProcessor: NewBaseProcessor("SortTransform", []types.Header{header}, []types.Header{header}),
		keys:          keys,
		maxBlockSize:  maxBlockSize,
	}
}

func (s *SortTransform) Prepare() Status {
	if s.IsCancelled() {
		return s.FinishAll()
	}
	out := s.Output(0)
	inp := s.Input(0)
	if out.IsFinished() {
		inp.Close()
		return StatusFinished
	}

	switch s.phase {
	case 0: // Accumulate
		if s.pending != nil {
			return StatusReady
		}
		if inp.HasData() {
			s.pending = inp.Pull()
			return StatusReady
		}
		if inp.IsFinished() {
			if s.accumulated == nil || s.accumulated.NumRows() == 0 {
				s.phase = 3
				out.Finish()
				return StatusFinished
			}
			s.phase = 1
			return StatusReady
		}
		return StatusNeedData

	case 1: // Sort (Work)
		return StatusReady

	case 2: // Push
		if !out.CanPush() {
			return StatusPortFull
		}
		if len(s.sorted) > 0 {
			out.Push(s.sorted[0])
			s.sorted = s.sorted[1:]
			return StatusPortFull
		}
		s.phase = 3
		out.Finish()
		return StatusFinished

	default:
		return StatusFinished
	}
}

func (s *SortTransform) Work() error {
	if s.phase == 0 {
		c := s.pending
		s.pending = nil
		if s.accumulated == nil {
			s.accumulated = c.Block.Clone()
			return nil
		}
		return s.accumulated.AppendBlock(c.Block)
	}

	if err := s.accumulated.SortByColumns(s.keys); err != nil {
		return err
	}
	s.sorted = splitBlock(s.accumulated, s.maxBlockSize)
	s.accumulated = nil
	s.phase = 2
	return nil
}

// FinishSortingTransform completes an order whose leading keys are already
// sorted. A group of rows sharing the prefix is complete as soon as a row
// with a different prefix arrives; it is then sorted on the full keys and
// emitted while the open group keeps accumulating.
type FinishSortingTransform struct {
	BaseProcessor
	prefix []column.SortKey
	keys   []column.SortKey

	inputChunk  *Chunk
	outputChunk *Chunk
	buffer      *column.Block
	flushed     bool
}

// NewFinishSortingTransform creates a finish-sort; prefix must be a prefix of keys.
func NewFinishSortingTransform(header types.Header, prefix, keys []column.SortKey) *FinishSortingTransform {
	return &FinishSortingTransform{
		BaseProcessor: NewBaseProcessor("FinishSortingTransform", []types.Header{header}, []types.Header{header}),
		prefix:        prefix,
		keys:          keys,
	}
}

func (f *FinishSortingTransform) Prepare() Status {
	if f.IsCancelled() {
		return f.FinishAll()
	}
	out := f.Output(0)
	inp := f.Input(0)

	if out.IsFinished() {
		inp.Close()
		return StatusFinished
	}
	if !out.CanPush() {
		return StatusPortFull
	}
	if f.outputChunk != nil {
		out.Push(f.outputChunk)
		f.outputChunk = nil
	}

	if f.inputChunk != nil {
		return StatusReady
	}
	if inp.HasData() {
		f.inputChunk = inp.Pull()
		return StatusReady
	}
	if inp.IsFinished() {
		if !f.flushed && f.buffer != nil && f.buffer.NumRows() > 0 {
			return StatusReady
		}
		out.Finish()
		return StatusFinished
	}
	return StatusNeedData
}

func (f *FinishSortingTransform) Work() error {
	if f.inputChunk == nil {
		// Input finished: the open group is complete.
		f.flushed = true
		return f.emit(f.buffer)
	}

	c := f.inputChunk
	f.inputChunk = nil
	if f.buffer == nil {
		f.buffer = c.Block.Clone()
	} else if err := f.buffer.AppendBlock(c.Block); err != nil {
		return err
	}

	prefixIdx, err := f.buffer.KeyIndices(column.SortKeyNames(f.prefix))
	if err != nil {
		return err
	}
	n := f.buffer.NumRows()
	cut := n - 1
	for cut > 0 && column.CompareRows(f.buffer, cut-1, prefixIdx, f.buffer, n-1, prefixIdx) == 0 {
		cut--
	}
	if cut <= 0 {
		return nil
	}
	complete := f.buffer.SliceRows(0, cut)
	f.buffer = f.buffer.SliceRows(cut, n)
	return f.emit(complete)
}

func (f *FinishSortingTransform) emit(b *column.Block) error {
	if b == nil || b.NumRows() == 0 {
		return nil
	}
	if err := b.SortByColumns(f.keys); err != nil {
		return err
	}
	f.outputChunk = NewChunk(b)
	return nil
}

func splitBlock(b *column.Block, maxRows int) []*Chunk {
	n := b.NumRows()
	if maxRows <= 0 || n <= maxRows {
		return []*Chunk{NewChunk(b)}
	}
	chunks := make([]*Chunk, 0, (n+maxRows-1)/maxRows)
	for from := 0; from < n; from += maxRows {
		chunks = append(chunks, NewChunk(b.SliceRows(from, min(from+maxRows, n))))
	}
	return chunks
}
