package processor

import (
	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// ProjectionColumn selects one input column, optionally renamed.
type ProjectionColumn struct {
	Column string
	Alias  string
}

func (p ProjectionColumn) outputName() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Column
}

// ProjectionTransform keeps, reorders and renames columns. Columns are
// shared with the input chunk, not copied.
type ProjectionTransform struct {
	*SimpleTransform
	positions []int
	names     []string
}

// ProjectionHeader returns the header produced by projecting in.
func ProjectionHeader(in types.Header, cols []ProjectionColumn) (types.Header, error) {
	out := make(types.Header, len(cols))
	for i, c := range cols {
		idx, ok := in.Index(c.Column)
		if !ok {
			return nil, errors.Newf("projected column %s not found in %s", c.Column, in)
		}
		out[i] = types.ColumnDef{Name: c.outputName(), Type: in[idx].Type}
	}
	return out, nil
}

// NewProjectionTransform creates a projection of in.
func NewProjectionTransform(in types.Header, cols []ProjectionColumn) (*ProjectionTransform, error) {
	out, err := ProjectionHeader(in, cols)
	if err != nil {
		return nil, err
	}
	p := &ProjectionTransform{
		positions: make([]int, len(cols)),
		names:     out.Names(),
	}
	for i, c := range cols {
		p.positions[i], _ = in.Index(c.Column)
	}
	p.SimpleTransform = NewSimpleTransform("ProjectionTransform", in, out, p.project)
	return p, nil
}

func (p *ProjectionTransform) project(c *Chunk) (*Chunk, error) {
	cols := make([]column.Column, len(p.positions))
	for i, pos := range p.positions {
		cols[i] = c.Block.Columns[pos]
	}
	return NewChunk(column.NewBlock(p.names, cols)), nil
}
