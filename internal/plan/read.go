package plan

import (
	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/pipeline"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/querycache"
	"github.com/harshithgowdakt/granuleflow/internal/settings"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// ReadFromChunksStep replays materialized blocks as a single stream, followed
// by optional totals and extremes.
type ReadFromChunksStep struct {
	stepBase
	blocks   []*column.Block
	totals   *column.Block
	extremes *column.Block
}

// NewReadFromChunksStep creates a source over blocks. totals and extremes may
// be nil.
func NewReadFromChunksStep(header types.Header, blocks []*column.Block, totals, extremes *column.Block) *ReadFromChunksStep {
	return &ReadFromChunksStep{
		stepBase: stepBase{
			name: "ReadFromChunks",
			output: DataStream{
				Header:      header,
				HasTotals:   totals != nil,
				HasExtremes: extremes != nil,
			},
		},
		blocks:   blocks,
		totals:   totals,
		extremes: extremes,
	}
}

// WithSortedBy declares the order the blocks already follow.
func (s *ReadFromChunksStep) WithSortedBy(desc join.SortDescription) *ReadFromChunksStep {
	s.output.SortedBy = desc
	return s
}

func (s *ReadFromChunksStep) UpdatePipeline(pipelines []*pipeline.Builder, _ settings.Settings) (*pipeline.Builder, error) {
	if err := s.checkInputs(pipelines); err != nil {
		return nil, err
	}
	chunks := make([]*processor.Chunk, len(s.blocks))
	for i, b := range s.blocks {
		chunks[i] = processor.NewChunk(b)
	}
	src := processor.NewChunksSource(s.output.Header, chunks, chunkOrNil(s.totals), chunkOrNil(s.extremes))
	p := pipeline.FromChunksSource(src)
	s.processors = []processor.Processor{src}
	return p, nil
}

func chunkOrNil(b *column.Block) *processor.Chunk {
	if b == nil {
		return nil
	}
	return processor.NewChunk(b)
}

// ReadFromQueryCacheStep replays a cached result.
type ReadFromQueryCacheStep struct {
	ReadFromChunksStep
	entry *querycache.Entry
}

// NewReadFromQueryCacheStep decodes entry into a replay source.
func NewReadFromQueryCacheStep(entry *querycache.Entry) (*ReadFromQueryCacheStep, error) {
	blocks, err := entry.Blocks()
	if err != nil {
		return nil, errors.Wrapf(err, "query cache entry %s", entry.Key)
	}
	totals, err := entry.Totals()
	if err != nil {
		return nil, errors.Wrapf(err, "query cache entry %s", entry.Key)
	}
	extremes, err := entry.Extremes()
	if err != nil {
		return nil, errors.Wrapf(err, "query cache entry %s", entry.Key)
	}
	s := &ReadFromQueryCacheStep{
		ReadFromChunksStep: *NewReadFromChunksStep(entry.Header, blocks, totals, extremes),
		entry:              entry,
	}
	s.name = "ReadFromQueryCache"
	return s, nil
}

// Entry returns the replayed cache entry.
func (s *ReadFromQueryCacheStep) Entry() *querycache.Entry { return s.entry }
