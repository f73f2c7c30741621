package plan

import (
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/logging"
	"github.com/harshithgowdakt/granuleflow/internal/pipeline"
	"github.com/harshithgowdakt/granuleflow/internal/settings"
)

type node struct {
	step     Step
	children []*node
}

// QueryPlan is a tree of steps. The root produces the query result.
type QueryPlan struct {
	root   *node
	logger *slog.Logger
}

// New creates an empty plan; its first step must be a source.
func New() *QueryPlan {
	return &QueryPlan{logger: logging.WithComponent("plan")}
}

// IsInitialized reports whether the plan has a root step.
func (p *QueryPlan) IsInitialized() bool { return p.root != nil }

// Root returns the root step, or nil.
func (p *QueryPlan) Root() Step {
	if p.root == nil {
		return nil
	}
	return p.root.step
}

// OutputStream is the stream of the root step.
func (p *QueryPlan) OutputStream() DataStream {
	if p.root == nil {
		return DataStream{}
	}
	return p.root.step.OutputStream()
}

// AddStep puts step on top of the plan. A source can only start an empty
// plan; any other step must take exactly the current output.
func (p *QueryPlan) AddStep(step Step) error {
	inputs := step.InputStreams()
	if p.root == nil {
		if len(inputs) != 0 {
			return errors.AssertionFailedf("cannot start a plan with %s: it has %d inputs", step.Name(), len(inputs))
		}
		p.root = &node{step: step}
		return nil
	}
	if len(inputs) != 1 {
		return errors.AssertionFailedf("cannot add %s to a plan: it has %d inputs, expected 1", step.Name(), len(inputs))
	}
	if out := p.OutputStream().Header; !inputs[0].Header.Equal(out) {
		return errors.AssertionFailedf("cannot add %s to a plan: input %s does not match plan output %s",
			step.Name(), inputs[0].Header, out)
	}
	p.root = &node{step: step, children: []*node{p.root}}
	return nil
}

// Unite joins plans as the inputs of step, in order. The plans must not be
// used afterwards.
func Unite(plans []*QueryPlan, step Step) (*QueryPlan, error) {
	inputs := step.InputStreams()
	if len(inputs) != len(plans) {
		return nil, errors.AssertionFailedf("%s expects %d inputs, got %d plans", step.Name(), len(inputs), len(plans))
	}
	root := &node{step: step}
	for i, sub := range plans {
		if !sub.IsInitialized() {
			return nil, errors.AssertionFailedf("input %d of %s is an empty plan", i, step.Name())
		}
		if out := sub.OutputStream().Header; !inputs[i].Header.Equal(out) {
			return nil, errors.AssertionFailedf("input %d of %s: header %s does not match plan output %s",
				i, step.Name(), inputs[i].Header, out)
		}
		root.children = append(root.children, sub.root)
		sub.root = nil
	}
	return &QueryPlan{root: root, logger: logging.WithComponent("plan")}, nil
}

// NewJoinPlan joins left and right. For a lockstep merge each side not yet
// ordered on its join keys gets a sorting step first, a finish-sort when it
// already follows a prefix of them.
func NewJoinPlan(left, right *QueryPlan, algorithm join.Algorithm) (*QueryPlan, error) {
	if algorithm.Shape() == join.ShapeLockstepMerge {
		j, ok := algorithm.(join.Sorting)
		if !ok {
			return nil, errors.AssertionFailedf("%T declares %s but cannot merge", algorithm, algorithm.Shape())
		}
		for _, side := range []join.Side{join.SideLeft, join.SideRight} {
			sub := left
			if side == join.SideRight {
				sub = right
			}
			in := sub.OutputStream()
			keys := join.NewSortDescription(j.KeyNames(side))
			if in.SortedBy.HasPrefix(keys) {
				continue
			}
			j.SetSortedPrefix(side, in.SortedBy.CommonPrefix(keys))
			if err := sub.AddStep(CreateSorting(j, side, in)); err != nil {
				return nil, err
			}
		}
	}
	step := NewJoinStep(left.OutputStream(), right.OutputStream(), algorithm)
	return Unite([]*QueryPlan{left, right}, step)
}

// BuildPipeline turns the plan into a pipeline, children first.
func (p *QueryPlan) BuildPipeline(s settings.Settings) (*pipeline.Builder, error) {
	if p.root == nil {
		return nil, errors.AssertionFailedf("cannot build an empty plan")
	}
	return p.build(p.root, s)
}

func (p *QueryPlan) build(n *node, s settings.Settings) (*pipeline.Builder, error) {
	inputs := make([]*pipeline.Builder, 0, len(n.children))
	for _, child := range n.children {
		b, err := p.build(child, s)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, b)
	}
	b, err := n.step.UpdatePipeline(inputs, s)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("step added to pipeline", "step", n.step.Name(), "streams", b.NumStreams(),
		"totals", b.HasTotals(), "extremes", b.HasExtremes())
	return b, nil
}

// Explain renders the step tree, root first, children indented.
func (p *QueryPlan) Explain() string {
	var sb strings.Builder
	p.walk(func(n *node, depth int) {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(n.step.Description())
		sb.WriteByte('\n')
	})
	return sb.String()
}

// ExplainPipeline renders each step followed by the processors it created.
// It is meaningful once BuildPipeline has run.
func (p *QueryPlan) ExplainPipeline() string {
	var sb strings.Builder
	p.walk(func(n *node, depth int) {
		indent := strings.Repeat("  ", depth)
		sb.WriteString(indent)
		sb.WriteString(n.step.Description())
		sb.WriteByte('\n')
		for _, line := range strings.Split(strings.TrimSuffix(n.step.DescribePipeline(), "\n"), "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(indent)
			sb.WriteString("  · ")
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	})
	return sb.String()
}

func (p *QueryPlan) walk(fn func(n *node, depth int)) {
	var visit func(n *node, depth int)
	visit = func(n *node, depth int) {
		fn(n, depth)
		for _, c := range n.children {
			visit(c, depth+1)
		}
	}
	if p.root != nil {
		visit(p.root, 0)
	}
}
