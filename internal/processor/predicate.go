package processor

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// Predicate evaluates a boolean condition column-at-a-time.
type Predicate interface {
	// Mask returns one flag per row of b.
	Mask(b *column.Block) ([]bool, error)
	String() string
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpEq  CompareOp = "="
	OpNeq CompareOp = "!="
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
)

// Compare is `column op literal`.
type Compare struct {
	Column string
	Op     CompareOp
	Value  types.Value
}

func (c Compare) Mask(b *column.Block) ([]bool, error) {
	col, ok := b.GetColumn(c.Column)
	if !ok {
		return nil, errors.Newf("filter column %s not found", c.Column)
	}
	dt := col.DataType()
	mask := make([]bool, col.Len())
	for i := range mask {
		cmp := types.CompareValues(dt, col.Value(i), c.Value)
		switch c.Op {
		case OpEq:
			mask[i] = cmp == 0
		case OpNeq:
			mask[i] = cmp != 0
		case OpLt:
			mask[i] = cmp < 0
		case OpLte:
			mask[i] = cmp <= 0
		case OpGt:
			mask[i] = cmp > 0
		case OpGte:
			mask[i] = cmp >= 0
		default:
			return nil, errors.Newf("unsupported operator %q", c.Op)
		}
	}
	return mask, nil
}

func (c Compare) String() string {
	return c.Column + " " + string(c.Op) + " " + types.ValueToString(c.Value)
}

// And is the conjunction of its terms. An empty And matches every row.
type And []Predicate

func (a And) Mask(b *column.Block) ([]bool, error) {
	mask := make([]bool, b.NumRows())
	for i := range mask {
		mask[i] = true
	}
	for _, p := range a {
		m, err := p.Mask(b)
		if err != nil {
			return nil, err
		}
		for i := range mask {
			mask[i] = mask[i] && m[i]
		}
	}
	return mask, nil
}

func (a And) String() string {
	parts := make([]string, len(a))
	for i, p := range a {
		parts[i] = "(" + p.String() + ")"
	}
	return strings.Join(parts, " AND ")
}

// FilterTransform keeps the rows matching a predicate.
type FilterTransform struct {
	*SimpleTransform
	pred Predicate
}

// NewFilterTransform creates a filter over header.
func NewFilterTransform(header types.Header, pred Predicate) *FilterTransform {
	f := &FilterTransform{pred: pred}
	f.SimpleTransform = NewSimpleTransform("FilterTransform", header, header, f.filter)
	return f
}

func (f *FilterTransform) filter(c *Chunk) (*Chunk, error) {
	mask, err := f.pred.Mask(c.Block)
	if err != nil {
		return nil, err
	}
	hasMatch := false
	for _, m := range mask {
		if m {
			hasMatch = true
			break
		}
	}
	if !hasMatch {
		return nil, nil
	}
	return NewChunk(c.Block.FilterRowsByMask(mask)), nil
}
