package plan

import (
	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/pipeline"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/settings"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// JoinStep joins two inputs. The algorithm's shape decides the pipeline
// layout: a build-then-probe table is filled from the right input and probed
// by the left one, a lockstep merge consumes both key-sorted inputs at once.
type JoinStep struct {
	stepBase
	algorithm join.Algorithm
}

// NewJoinStep creates a join of left and right.
func NewJoinStep(left, right DataStream, algorithm join.Algorithm) *JoinStep {
	s := &JoinStep{
		stepBase:  stepBase{name: "Join", inputs: []DataStream{left, right}},
		algorithm: algorithm,
	}
	s.updateOutputStream()
	return s
}

// Algorithm returns the join strategy.
func (s *JoinStep) Algorithm() join.Algorithm { return s.algorithm }

func (s *JoinStep) Description() string {
	if s.description != "" {
		return s.description
	}
	return s.name + " (" + s.algorithm.Kind().String() + ", " + s.algorithm.Shape().String() + ")"
}

func (s *JoinStep) updateOutputStream() {
	left := s.inputs[0]
	s.output = DataStream{
		Header:    s.algorithm.ResultHeader(left.Header),
		HasTotals: s.algorithm.Shape() == join.ShapeBuildThenProbe && left.HasTotals,
	}
}

// UpdateInputStream replaces input idx. The output header is derived again
// when the left input changes.
func (s *JoinStep) UpdateInputStream(stream DataStream, idx int) error {
	switch idx {
	case 0:
		s.inputs[0] = stream
		s.updateOutputStream()
	case 1:
		s.inputs[1] = stream
	default:
		return errors.AssertionFailedf("join has no input %d", idx)
	}
	return nil
}

// AllowPushDownToRight reports whether filters may be moved to the right
// input.
func (s *JoinStep) AllowPushDownToRight() bool {
	return s.algorithm.Shape() == join.ShapeLockstepMerge
}

func (s *JoinStep) UpdatePipeline(pipelines []*pipeline.Builder, st settings.Settings) (*pipeline.Builder, error) {
	if len(pipelines) != 2 {
		return nil, errors.AssertionFailedf("JoinStep expects 2 input pipelines, got %d", len(pipelines))
	}
	left, right := pipelines[0], pipelines[1]
	return s.collect(func() (*pipeline.Builder, error) {
		switch shape := s.algorithm.Shape(); shape {
		case join.ShapeLockstepMerge:
			j, ok := s.algorithm.(join.Sorting)
			if !ok {
				return nil, errors.AssertionFailedf("%T declares %s but cannot merge", s.algorithm, shape)
			}
			return pipeline.JoinPipelinesYShaped(left, right, j, st.MaxStreams)
		case join.ShapeBuildThenProbe:
			table, ok := s.algorithm.(join.Table)
			if !ok {
				return nil, errors.AssertionFailedf("%T declares %s but has no table", s.algorithm, shape)
			}
			return pipeline.JoinPipelinesRightLeft(left, right, table, st.MaxStreams, st.KeepLeftReadInOrder)
		default:
			return nil, errors.AssertionFailedf("unknown join shape %s", shape)
		}
	}, right, left)
}

// FilledJoinStep probes a table built before the query ran. It has a single
// input: the probe side.
type FilledJoinStep struct {
	transformingStep
	table join.Table
}

// NewFilledJoinStep fails if table has not been filled.
func NewFilledJoinStep(input DataStream, table join.Table) (*FilledJoinStep, error) {
	if !table.IsFilled() {
		return nil, errors.AssertionFailedf("FilledJoinStep expects a filled join table: %v", join.ErrNotFilled)
	}
	s := &FilledJoinStep{transformingStep: newTransformingStep("FilledJoin", input, DataStream{}), table: table}
	s.updateOutputStream()
	return s, nil
}

func (s *FilledJoinStep) updateOutputStream() {
	input := s.inputs[0]
	s.output = DataStream{
		Header:      s.table.ResultHeader(input.Header),
		HasTotals:   input.HasTotals || s.table.Totals() != nil,
		HasExtremes: input.HasExtremes,
	}
}

// UpdateInputStream replaces the probe input and derives the output again.
func (s *FilledJoinStep) UpdateInputStream(stream DataStream) {
	s.inputs[0] = stream
	s.updateOutputStream()
}

func (s *FilledJoinStep) UpdatePipeline(pipelines []*pipeline.Builder, _ settings.Settings) (*pipeline.Builder, error) {
	return s.transform(pipelines, func(p *pipeline.Builder) error {
		defaultTotals := false
		if !p.HasTotals() && s.table.Totals() != nil {
			if err := p.AddDefaultTotals(); err != nil {
				return err
			}
			defaultTotals = true
		}
		counter := processor.NewFinishCounter(p.NumStreams())
		return p.AddSimpleTransform(func(h types.Header, stream pipeline.StreamType) (processor.Processor, error) {
			var opts processor.JoiningOptions
			switch stream {
			case pipeline.StreamMain:
				opts.Counter = counter
			case pipeline.StreamTotals:
				opts = processor.JoiningOptions{Counter: counter, OnTotals: true, DefaultTotals: defaultTotals}
			}
			return processor.NewJoiningTransform(h, s.table, opts), nil
		})
	})
}
