// Package join holds the join algorithm strategies a join step dispatches on.
//
// Two shapes exist and the set is closed: ShapeBuildThenProbe (HashJoin)
// builds a read-only lookup table from the right side before the left side
// streams through it; ShapeLockstepMerge (FullSortingMergeJoin) consumes both
// sides concurrently in key order.
package join

import (
	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// Side names one input of a join.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// Shape is the pipeline layout an algorithm requires.
type Shape int

const (
	// ShapeBuildThenProbe drains the right side into a table, then probes it
	// from many left streams.
	ShapeBuildThenProbe Shape = iota
	// ShapeLockstepMerge merges two single, key-sorted streams.
	ShapeLockstepMerge
)

func (s Shape) String() string {
	switch s {
	case ShapeBuildThenProbe:
		return "build-then-probe"
	case ShapeLockstepMerge:
		return "lockstep-merge"
	default:
		return "unknown"
	}
}

// Kind is the relational join type.
type Kind int

const (
	KindInner Kind = iota
	// KindLeft keeps unmatched left rows, padding right columns with defaults.
	KindLeft
)

func (k Kind) String() string {
	if k == KindLeft {
		return "LEFT"
	}
	return "INNER"
}

// ErrNotFilled marks probes against a table that has not been built.
var ErrNotFilled = errors.New("join table is not filled")

// rightPrefix is prepended to right-side columns whose names clash with the
// left side.
const rightPrefix = "right."

// TableJoin describes the keys and right-side schema of a join.
type TableJoin struct {
	Kind        Kind
	LeftKeys    []string
	RightKeys   []string
	RightHeader types.Header
}

// Validate checks key arity and presence of right keys.
func (tj TableJoin) Validate() error {
	if len(tj.LeftKeys) == 0 {
		return errors.New("join requires at least one key")
	}
	if len(tj.LeftKeys) != len(tj.RightKeys) {
		return errors.Newf("join key count mismatch: %d left vs %d right", len(tj.LeftKeys), len(tj.RightKeys))
	}
	for _, k := range tj.RightKeys {
		if !tj.RightHeader.Has(k) {
			return errors.Newf("right join key %s not in %s", k, tj.RightHeader)
		}
	}
	return nil
}

// Algorithm is the capability common to every join strategy.
type Algorithm interface {
	Shape() Shape
	Kind() Kind
	KeyNames(side Side) []string
	// IsFilled reports whether a lookup table has been built and frozen.
	IsFilled() bool
	// ResultHeader derives the output schema from the left input schema.
	ResultHeader(left types.Header) types.Header
	// Totals returns the table-side totals, or nil.
	Totals() *column.Block
}

// Table is implemented by build-then-probe algorithms.
type Table interface {
	Algorithm
	AddBlock(b *column.Block) error
	SetTotals(b *column.Block) error
	FinishBuild() error
	JoinBlock(left *column.Block) (*column.Block, error)
	// JoinTotals combines a left totals row with the table totals.
	JoinTotals(left *column.Block) (*column.Block, error)
}

// Sorting is implemented by lockstep-merge algorithms.
type Sorting interface {
	Algorithm
	SortSettings(side Side) SortSettings
	// SortedPrefix is the part of the key order the side is already sorted by.
	SortedPrefix(side Side) SortDescription
	SetSortedPrefix(side Side, prefix SortDescription)
	// MergeBlocks joins two key-sorted blocks whose key groups are complete.
	MergeBlocks(left, right *column.Block) (*column.Block, error)
}

// SortSettings tune the sorting inserted ahead of a merge join side.
type SortSettings struct {
	MaxBlockSize int
}

// base carries what every algorithm shares: key names and the right-side
// output columns.
type base struct {
	table TableJoin
	// rightOut are positions in RightHeader of the columns joined onto left rows.
	rightOut []int
}

func newBase(tj TableJoin) (base, error) {
	if err := tj.Validate(); err != nil {
		return base{}, err
	}
	b := base{table: tj}
	for i, c := range tj.RightHeader {
		isKey := false
		for _, k := range tj.RightKeys {
			if k == c.Name {
				isKey = true
				break
			}
		}
		if !isKey {
			b.rightOut = append(b.rightOut, i)
		}
	}
	return b, nil
}

func (b *base) Kind() Kind { return b.table.Kind }

func (b *base) KeyNames(side Side) []string {
	if side == SideLeft {
		return b.table.LeftKeys
	}
	return b.table.RightKeys
}

// ResultHeader is the left header followed by the non-key right columns.
func (b *base) ResultHeader(left types.Header) types.Header {
	out := left.Clone()
	for _, pos := range b.rightOut {
		c := b.table.RightHeader[pos]
		name := c.Name
		if left.Has(name) {
			name = rightPrefix + name
		}
		out = append(out, types.ColumnDef{Name: name, Type: c.Type})
	}
	return out
}

// keyPositions resolves the side's key columns in blk and checks that paired
// key types agree.
func (b *base) keyPositions(blk *column.Block, side Side) ([]int, error) {
	idx, err := blk.KeyIndices(b.KeyNames(side))
	if err != nil {
		return nil, errors.WithAssertionFailure(err)
	}
	if side == SideLeft {
		for i, ci := range idx {
			rpos, _ := b.table.RightHeader.Index(b.table.RightKeys[i])
			lt, rt := blk.Columns[ci].DataType(), b.table.RightHeader[rpos].Type
			if lt != rt {
				return nil, errors.AssertionFailedf("join key %s: left type %s does not match right type %s",
					b.table.LeftKeys[i], lt, rt)
			}
		}
	}
	return idx, nil
}

// rowRef points at one stored right row; block < 0 means "no match".
type rowRef struct {
	block int
	row   int
}

var noMatch = rowRef{block: -1}

// assemble builds left.Gather(leftRows) extended with the right output
// columns taken from rights (or defaults for noMatch).
func (b *base) assemble(left *column.Block, leftRows []int, rights []rowRef, store []*column.Block) *column.Block {
	out := left.Gather(leftRows)
	header := b.ResultHeader(left.Header())
	names := header.Names()
	for _, pos := range b.rightOut {
		dt := b.table.RightHeader[pos].Type
		col := column.NewColumnWithCapacity(dt, len(rights))
		for _, ref := range rights {
			if ref.block < 0 {
				col.Append(types.DefaultValue(dt))
				continue
			}
			col.AppendFrom(store[ref.block].Columns[pos], ref.row)
		}
		out.Columns = append(out.Columns, col)
	}
	return column.NewBlock(names, out.Columns)
}
