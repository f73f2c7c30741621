package plan

import (
	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/pipeline"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/settings"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// FilterStep keeps the main rows matching a predicate. Totals and extremes
// pass through.
type FilterStep struct {
	transformingStep
	pred processor.Predicate
}

func NewFilterStep(input DataStream, pred processor.Predicate) *FilterStep {
	return &FilterStep{transformingStep: newTransformingStep("Filter", input, input), pred: pred}
}

func (s *FilterStep) Predicate() processor.Predicate { return s.pred }

func (s *FilterStep) Description() string {
	return s.stepBase.Description() + " (" + s.pred.String() + ")"
}

func (s *FilterStep) UpdatePipeline(pipelines []*pipeline.Builder, _ settings.Settings) (*pipeline.Builder, error) {
	return s.transform(pipelines, func(p *pipeline.Builder) error {
		return p.AddSimpleTransform(func(h types.Header, stream pipeline.StreamType) (processor.Processor, error) {
			if stream != pipeline.StreamMain {
				return nil, nil
			}
			return processor.NewFilterTransform(h, s.pred), nil
		})
	})
}

// LimitStep keeps the first n rows of a single stream.
type LimitStep struct {
	transformingStep
	limit int64
}

func NewLimitStep(input DataStream, limit int64) *LimitStep {
	return &LimitStep{transformingStep: newTransformingStep("Limit", input, input), limit: limit}
}

func (s *LimitStep) UpdatePipeline(pipelines []*pipeline.Builder, _ settings.Settings) (*pipeline.Builder, error) {
	return s.transform(pipelines, func(p *pipeline.Builder) error {
		if err := p.Resize(1); err != nil {
			return err
		}
		return p.AddTransform(processor.NewLimitTransform(p.Header(), s.limit))
	})
}

// ProjectionStep selects and renames columns on every stream.
type ProjectionStep struct {
	transformingStep
	cols []processor.ProjectionColumn
}

func NewProjectionStep(input DataStream, cols []processor.ProjectionColumn) (*ProjectionStep, error) {
	header, err := processor.ProjectionHeader(input.Header, cols)
	if err != nil {
		return nil, err
	}
	output := input
	output.Header = header
	output.SortedBy = projectedOrder(input.SortedBy, cols)
	return &ProjectionStep{transformingStep: newTransformingStep("Projection", input, output), cols: cols}, nil
}

// projectedOrder keeps the leading sort keys that survive the projection
// under their own name.
func projectedOrder(desc join.SortDescription, cols []processor.ProjectionColumn) join.SortDescription {
	kept := make(map[string]bool, len(cols))
	for _, c := range cols {
		if c.Alias == "" || c.Alias == c.Column {
			kept[c.Column] = true
		}
	}
	n := 0
	for n < len(desc) && kept[desc[n].Column] {
		n++
	}
	return desc[:n:n]
}

func (s *ProjectionStep) UpdatePipeline(pipelines []*pipeline.Builder, _ settings.Settings) (*pipeline.Builder, error) {
	return s.transform(pipelines, func(p *pipeline.Builder) error {
		return p.AddSimpleTransform(func(h types.Header, _ pipeline.StreamType) (processor.Processor, error) {
			return processor.NewProjectionTransform(h, s.cols)
		})
	})
}

// AggregatingStep groups a single stream. Incoming totals and extremes are
// dropped; with totals enabled the step produces its own totals row.
type AggregatingStep struct {
	transformingStep
	keys       []string
	aggregates []processor.AggregateFunc
	withTotals bool
}

func NewAggregatingStep(input DataStream, keys []string, aggregates []processor.AggregateFunc, withTotals bool) (*AggregatingStep, error) {
	header, err := processor.AggregateHeader(input.Header, keys, aggregates)
	if err != nil {
		return nil, err
	}
	output := DataStream{Header: header, HasTotals: withTotals}
	return &AggregatingStep{
		transformingStep: newTransformingStep("Aggregating", input, output),
		keys:             keys,
		aggregates:       aggregates,
		withTotals:       withTotals,
	}, nil
}

func (s *AggregatingStep) UpdatePipeline(pipelines []*pipeline.Builder, _ settings.Settings) (*pipeline.Builder, error) {
	return s.transform(pipelines, func(p *pipeline.Builder) error {
		if err := p.DropTotals(); err != nil {
			return err
		}
		if err := p.DropExtremes(); err != nil {
			return err
		}
		if err := p.Resize(1); err != nil {
			return err
		}
		t, err := processor.NewAggregatingTransform(p.Header(), s.keys, s.aggregates, s.withTotals)
		if err != nil {
			return err
		}
		return p.AddTransformWithTotals(t, t.Totals())
	})
}

// ExtremesStep adds the min/max side channel.
type ExtremesStep struct {
	transformingStep
}

func NewExtremesStep(input DataStream) *ExtremesStep {
	output := input
	output.HasExtremes = true
	return &ExtremesStep{transformingStep: newTransformingStep("Extremes", input, output)}
}

func (s *ExtremesStep) UpdatePipeline(pipelines []*pipeline.Builder, _ settings.Settings) (*pipeline.Builder, error) {
	return s.transform(pipelines, func(p *pipeline.Builder) error {
		return p.AddExtremes()
	})
}
