package plan

import (
	"fmt"

	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/pipeline"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/settings"
)

// SortingStep orders its input by a sort description. With a non-empty
// prefix the input is assumed sorted by it and only groups sharing the
// prefix are reordered.
type SortingStep struct {
	transformingStep
	desc         join.SortDescription
	prefix       join.SortDescription
	maxBlockSize int
}

// NewSortingStep creates a full sort.
func NewSortingStep(input DataStream, desc join.SortDescription, maxBlockSize int) *SortingStep {
	output := input
	output.SortedBy = desc
	return &SortingStep{
		transformingStep: newTransformingStep("Sorting", input, output),
		desc:             desc,
		maxBlockSize:     maxBlockSize,
	}
}

// NewFinishSortingStep creates a sort that completes an order whose prefix
// the input already follows.
func NewFinishSortingStep(input DataStream, prefix, desc join.SortDescription, maxBlockSize int) *SortingStep {
	s := NewSortingStep(input, desc, maxBlockSize)
	s.prefix = prefix
	return s
}

// SortDescription is the order the step produces.
func (s *SortingStep) SortDescription() join.SortDescription { return s.desc }

// Prefix is the order the input is assumed to follow already.
func (s *SortingStep) Prefix() join.SortDescription { return s.prefix }

// IsFinishSort reports whether the step only completes an existing order.
func (s *SortingStep) IsFinishSort() bool { return len(s.prefix) > 0 }

func (s *SortingStep) UpdatePipeline(pipelines []*pipeline.Builder, st settings.Settings) (*pipeline.Builder, error) {
	blockSize := s.maxBlockSize
	if blockSize <= 0 {
		blockSize = st.MaxBlockSize
	}
	return s.transform(pipelines, func(p *pipeline.Builder) error {
		// A prefix order only holds within one stream; several streams need a
		// full sort after they are merged.
		if s.IsFinishSort() && p.NumStreams() == 1 {
			return p.AddTransform(processor.NewFinishSortingTransform(p.Header(), s.prefix, s.desc))
		}
		if err := p.Resize(1); err != nil {
			return err
		}
		return p.AddTransform(processor.NewSortTransform(p.Header(), s.desc, blockSize))
	})
}

// CreateSorting returns the step ordering one side of a merge join on its
// keys. A side already sorted by a prefix of the keys, as recorded by
// j.SortedPrefix, gets a finish-sort.
func CreateSorting(j join.Sorting, side join.Side, input DataStream) *SortingStep {
	desc := join.NewSortDescription(j.KeyNames(side))
	blockSize := j.SortSettings(side).MaxBlockSize
	if prefix := j.SortedPrefix(side); len(prefix) > 0 {
		s := NewFinishSortingStep(input, prefix, desc, blockSize)
		s.SetDescription(fmt.Sprintf("Sorting (optimized to use sorted prefix) for %s side of JOIN", side))
		return s
	}
	s := NewSortingStep(input, desc, blockSize)
	s.SetDescription(fmt.Sprintf("Sort %s before JOIN", side))
	return s
}
