package processor

import (
	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// GenerateFunc returns the next chunk of a source, or nil at the end.
type GenerateFunc func() (*Chunk, error)

// Source is a zero-input processor that pulls chunks from a generator and
// pushes them to its main output, one per Work call. Zero-row chunks are
// skipped unless keepEmpty is set.
type Source struct {
	BaseProcessor
	generate  GenerateFunc
	keepEmpty bool

	current   *Chunk // produced chunk waiting to be pushed
	exhausted bool
}

// NewSource creates a source with a single output.
func NewSource(name string, header types.Header, generate GenerateFunc) *Source {
	return &Source{
		BaseProcessor: NewBaseProcessor(name, nil, []types.Header{header}),
		generate:      generate,
	}
}

func (s *Source) Prepare() Status {
	if s.IsCancelled() {
		return s.FinishAll()
	}
	return s.prepareMain()
}

// prepareMain drives output 0 only. It reports StatusFinished once the main
// output is finished, by exhaustion or because the consumer closed it.
func (s *Source) prepareMain() Status {
	out := s.Output(0)

	if out.IsFinished() {
		return StatusFinished
	}
	// Wait for downstream to consume the last push before finishing.
	if !out.CanPush() {
		return StatusPortFull
	}
	if s.exhausted {
		out.Finish()
		return StatusFinished
	}
	if s.current != nil {
		out.Push(s.current)
		s.current = nil
		return StatusPortFull
	}
	return StatusReady
}

func (s *Source) Work() error {
	c, err := s.generate()
	if err != nil {
		return err
	}
	switch {
	case c == nil:
		s.exhausted = true
	case c.NumRows() > 0 || s.keepEmpty:
		s.current = c
	}
	return nil
}

// ChunksSource replays an already materialized result: main chunks first,
// exactly as given including zero-row ones, then at most one totals chunk,
// then at most one extremes chunk. The
// totals and extremes outputs exist only when the corresponding value was
// given, and are served strictly after the main output has finished.
type ChunksSource struct {
	Source

	totals   *Chunk
	extremes *Chunk

	totalsPort   *OutputPort
	extremesPort *OutputPort

	totalsPushed   bool
	extremesPushed bool
}

// NewChunksSource creates a replaying source. totals and extremes may be nil.
func NewChunksSource(header types.Header, chunks []*Chunk, totals, extremes *Chunk) *ChunksSource {
	outs := []types.Header{header}
	if totals != nil {
		outs = append(outs, header)
	}
	if extremes != nil {
		outs = append(outs, header)
	}

	next := 0
	s := &ChunksSource{
		Source: Source{
			BaseProcessor: NewBaseProcessor("ChunksSource", nil, outs),
			generate: func() (*Chunk, error) {
				if next >= len(chunks) {
					return nil, nil
				}
				c := chunks[next]
				next++
				if c == nil {
					return NewChunk(column.NewEmptyBlock(header)), nil
				}
				return c, nil
			},
			keepEmpty: true,
		},
		totals:   totals,
		extremes: extremes,
	}
	port := 1
	if totals != nil {
		s.totalsPort = s.Output(port)
		port++
	}
	if extremes != nil {
		s.extremesPort = s.Output(port)
	}
	return s
}

// NewSourceFromSingleChunk replays one chunk.
func NewSourceFromSingleChunk(header types.Header, chunk *Chunk) *ChunksSource {
	return NewChunksSource(header, []*Chunk{chunk}, nil, nil)
}

// Totals returns the totals output, or nil.
func (s *ChunksSource) Totals() *OutputPort { return s.totalsPort }

// Extremes returns the extremes output, or nil.
func (s *ChunksSource) Extremes() *OutputPort { return s.extremesPort }

func (s *ChunksSource) Prepare() Status {
	if s.IsCancelled() {
		return s.FinishAll()
	}
	if status := s.prepareMain(); status != StatusFinished {
		return status
	}
	if status := pushOnce(s.totalsPort, s.totals, &s.totalsPushed); status != StatusFinished {
		return status
	}
	return pushOnce(s.extremesPort, s.extremes, &s.extremesPushed)
}

// pushOnce pushes c into out, waits for it to be pulled and then finishes
// out. A nil port counts as finished; a nil chunk finishes out at once.
func pushOnce(out *OutputPort, c *Chunk, pushed *bool) Status {
	if out == nil || out.IsFinished() {
		return StatusFinished
	}
	if !out.CanPush() {
		return StatusPortFull
	}
	if !*pushed && c != nil {
		*pushed = true
		out.Push(c)
		return StatusPortFull
	}
	out.Finish()
	return StatusFinished
}
