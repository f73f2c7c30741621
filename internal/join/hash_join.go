package join

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// HashJoin is the build-then-probe strategy. The right side is added block by
// block, then FinishBuild freezes the table; from then on it is only read and
// may be probed from any number of goroutines without locking.
type HashJoin struct {
	base

	// mu guards the build phase only.
	mu     sync.Mutex
	blocks []*column.Block
	index  map[string][]rowRef
	totals *column.Block
	rows   int

	filled atomic.Bool
}

var _ Table = (*HashJoin)(nil)

// NewHashJoin creates an empty table for tj.
func NewHashJoin(tj TableJoin) (*HashJoin, error) {
	b, err := newBase(tj)
	if err != nil {
		return nil, err
	}
	return &HashJoin{base: b, index: make(map[string][]rowRef)}, nil
}

// NewFilledHashJoin builds and freezes a table out of band, for reuse by
// probe-only pipelines.
func NewFilledHashJoin(tj TableJoin, blocks []*column.Block, totals *column.Block) (*HashJoin, error) {
	j, err := NewHashJoin(tj)
	if err != nil {
		return nil, err
	}
	for _, blk := range blocks {
		if err := j.AddBlock(blk); err != nil {
			return nil, err
		}
	}
	if totals != nil {
		if err := j.SetTotals(totals); err != nil {
			return nil, err
		}
	}
	if err := j.FinishBuild(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *HashJoin) Shape() Shape   { return ShapeBuildThenProbe }
func (j *HashJoin) IsFilled() bool { return j.filled.Load() }

// Rows returns the number of right rows stored.
func (j *HashJoin) Rows() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rows
}

// Totals returns the table totals. Only meaningful once filled.
func (j *HashJoin) Totals() *column.Block {
	if !j.IsFilled() {
		return nil
	}
	return j.totals
}

// AddBlock stores and indexes one right-side block.
func (j *HashJoin) AddBlock(blk *column.Block) error {
	if j.IsFilled() {
		return errors.AssertionFailedf("adding a block to a filled join table")
	}
	if !blk.Header().Equal(j.table.RightHeader) {
		return errors.AssertionFailedf("right block header %s does not match %s", blk.Header(), j.table.RightHeader)
	}
	keys, err := j.keyPositions(blk, SideRight)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.IsFilled() {
		return errors.AssertionFailedf("adding a block to a filled join table")
	}
	bi := len(j.blocks)
	j.blocks = append(j.blocks, blk)
	for r := 0; r < blk.NumRows(); r++ {
		k := hashKey(blk, keys, r)
		j.index[k] = append(j.index[k], rowRef{block: bi, row: r})
	}
	j.rows += blk.NumRows()
	return nil
}

// SetTotals records the right-side totals row.
func (j *HashJoin) SetTotals(blk *column.Block) error {
	if j.IsFilled() {
		return errors.AssertionFailedf("setting totals on a filled join table")
	}
	if !blk.Header().Equal(j.table.RightHeader) {
		return errors.AssertionFailedf("right totals header %s does not match %s", blk.Header(), j.table.RightHeader)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.IsFilled() {
		return errors.AssertionFailedf("setting totals on a filled join table")
	}
	j.totals = blk
	return nil
}

// FinishBuild freezes the table. It may be called once.
func (j *HashJoin) FinishBuild() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.filled.CompareAndSwap(false, true) {
		return errors.AssertionFailedf("join table filled twice")
	}
	return nil
}

// JoinBlock probes the table with every row of left.
func (j *HashJoin) JoinBlock(left *column.Block) (*column.Block, error) {
	if !j.IsFilled() {
		return nil, errors.Mark(errors.AssertionFailedf("probing a join table before it is filled"), ErrNotFilled)
	}
	keys, err := j.keyPositions(left, SideLeft)
	if err != nil {
		return nil, err
	}

	leftRows := make([]int, 0, left.NumRows())
	rights := make([]rowRef, 0, left.NumRows())
	for r := 0; r < left.NumRows(); r++ {
		matches := j.index[hashKey(left, keys, r)]
		if len(matches) == 0 {
			if j.table.Kind == KindLeft {
				leftRows = append(leftRows, r)
				rights = append(rights, noMatch)
			}
			continue
		}
		for _, m := range matches {
			leftRows = append(leftRows, r)
			rights = append(rights, m)
		}
	}
	return j.assemble(left, leftRows, rights, j.blocks), nil
}

// JoinTotals extends the first row of left with the table totals, or with
// defaults when the table has none.
func (j *HashJoin) JoinTotals(left *column.Block) (*column.Block, error) {
	if !j.IsFilled() {
		return nil, errors.Mark(errors.AssertionFailedf("joining totals before the table is filled"), ErrNotFilled)
	}
	if left.NumRows() == 0 {
		left = column.NewDefaultBlock(left.Header(), 1)
	}
	if j.totals == nil || j.totals.NumRows() == 0 {
		return j.assemble(left, []int{0}, []rowRef{noMatch}, nil), nil
	}
	return j.assemble(left, []int{0}, []rowRef{{block: 0, row: 0}}, []*column.Block{j.totals}), nil
}

// hashKey identifies the key tuple of row. Parts of a composite key are
// length-prefixed so that no two distinct tuples share a key.
func hashKey(blk *column.Block, keys []int, row int) string {
	if len(keys) == 1 {
		c := blk.Columns[keys[0]]
		return types.KeyString(c.DataType(), c.Value(row))
	}
	var buf []byte
	for _, k := range keys {
		c := blk.Columns[k]
		part := types.KeyString(c.DataType(), c.Value(row))
		buf = binary.AppendUvarint(buf, uint64(len(part)))
		buf = append(buf, part...)
	}
	return string(buf)
}
