// Package plan describes a query as a tree of steps over data streams.
// Building the plan walks the tree bottom-up and lets every step grow the
// pipelines of its children into its own.
package plan

import (
	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/pipeline"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/settings"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// DataStream is what a step knows about a stream before any pipeline exists.
type DataStream struct {
	Header types.Header
	// SortedBy is the order every main stream is known to follow.
	SortedBy    join.SortDescription
	HasTotals   bool
	HasExtremes bool
}

// Step is one logical operation of a plan.
type Step interface {
	Name() string
	// Description is the step's line in Explain output.
	Description() string
	InputStreams() []DataStream
	OutputStream() DataStream
	// UpdatePipeline consumes the pipelines of the step's inputs, in order,
	// and returns the pipeline producing its output.
	UpdatePipeline(pipelines []*pipeline.Builder, s settings.Settings) (*pipeline.Builder, error)
	// DescribePipeline lists the processors the last UpdatePipeline created.
	DescribePipeline() string
}

type stepBase struct {
	name        string
	description string
	inputs      []DataStream
	output      DataStream
	processors  []processor.Processor
}

func (b *stepBase) Name() string { return b.name }

func (b *stepBase) Description() string {
	if b.description != "" {
		return b.description
	}
	return b.name
}

// SetDescription overrides the Explain line of the step.
func (b *stepBase) SetDescription(d string) { b.description = d }

func (b *stepBase) InputStreams() []DataStream { return b.inputs }
func (b *stepBase) OutputStream() DataStream   { return b.output }

func (b *stepBase) DescribePipeline() string {
	return pipeline.DescribeProcessors(b.processors)
}

// Processors returns the processors the last UpdatePipeline created.
func (b *stepBase) Processors() []processor.Processor { return b.processors }

// collect runs fn while recording every processor added to builders.
func (b *stepBase) collect(fn func() (*pipeline.Builder, error), builders ...*pipeline.Builder) (*pipeline.Builder, error) {
	b.processors = nil
	for _, p := range builders {
		stop := p.Collect(&b.processors)
		defer stop()
	}
	return fn()
}

func (b *stepBase) checkInputs(pipelines []*pipeline.Builder) error {
	if len(pipelines) != len(b.inputs) {
		return errors.AssertionFailedf("%s expects %d input pipelines, got %d", b.name, len(b.inputs), len(pipelines))
	}
	return nil
}

// transformingStep has exactly one input.
type transformingStep struct {
	stepBase
}

func newTransformingStep(name string, input, output DataStream) transformingStep {
	return transformingStep{stepBase{name: name, inputs: []DataStream{input}, output: output}}
}

// transform checks arity and runs fn on the single input pipeline.
func (t *transformingStep) transform(pipelines []*pipeline.Builder, fn func(p *pipeline.Builder) error) (*pipeline.Builder, error) {
	if err := t.checkInputs(pipelines); err != nil {
		return nil, err
	}
	p := pipelines[0]
	return t.collect(func() (*pipeline.Builder, error) {
		if err := fn(p); err != nil {
			return nil, errors.Wrapf(err, "%s", t.name)
		}
		return p, nil
	}, p)
}
