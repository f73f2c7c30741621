package join

import (
	"sync"

	"github.com/harshithgowdakt/granuleflow/internal/column"
)

// FullSortingMergeJoin is the lockstep-merge strategy. It keeps no table:
// both inputs arrive sorted on their keys and are merged group by group.
type FullSortingMergeJoin struct {
	base
	settings SortSettings

	mu     sync.Mutex
	prefix [2]SortDescription
}

var _ Sorting = (*FullSortingMergeJoin)(nil)

// NewFullSortingMergeJoin creates a merge join over tj.
func NewFullSortingMergeJoin(tj TableJoin, settings SortSettings) (*FullSortingMergeJoin, error) {
	b, err := newBase(tj)
	if err != nil {
		return nil, err
	}
	return &FullSortingMergeJoin{base: b, settings: settings}, nil
}

func (j *FullSortingMergeJoin) Shape() Shape          { return ShapeLockstepMerge }
func (j *FullSortingMergeJoin) IsFilled() bool        { return false }
func (j *FullSortingMergeJoin) Totals() *column.Block { return nil }

func (j *FullSortingMergeJoin) SortSettings(Side) SortSettings { return j.settings }

func (j *FullSortingMergeJoin) SortedPrefix(side Side) SortDescription {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.prefix[side]
}

func (j *FullSortingMergeJoin) SetSortedPrefix(side Side, prefix SortDescription) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.prefix[side] = prefix
}

// MergeBlocks joins left and right, both sorted ascending on their keys.
// Every key group present in either block must be complete.
func (j *FullSortingMergeJoin) MergeBlocks(left, right *column.Block) (*column.Block, error) {
	lk, err := j.keyPositions(left, SideLeft)
	if err != nil {
		return nil, err
	}
	rk, err := j.keyPositions(right, SideRight)
	if err != nil {
		return nil, err
	}

	nl, nr := left.NumRows(), right.NumRows()
	var leftRows []int
	var rights []rowRef
	i, k := 0, 0
	for i < nl {
		if k >= nr {
			if j.table.Kind == KindLeft {
				for ; i < nl; i++ {
					leftRows = append(leftRows, i)
					rights = append(rights, noMatch)
				}
			}
			break
		}
		switch c := column.CompareRows(left, i, lk, right, k, rk); {
		case c < 0:
			if j.table.Kind == KindLeft {
				leftRows = append(leftRows, i)
				rights = append(rights, noMatch)
			}
			i++
		case c > 0:
			k++
		default:
			ie := groupEnd(left, lk, i)
			ke := groupEnd(right, rk, k)
			for a := i; a < ie; a++ {
				for b := k; b < ke; b++ {
					leftRows = append(leftRows, a)
					rights = append(rights, rowRef{row: b})
				}
			}
			i, k = ie, ke
		}
	}
	return j.assemble(left, leftRows, rights, []*column.Block{right}), nil
}

func groupEnd(b *column.Block, keys []int, start int) int {
	end := start + 1
	for end < b.NumRows() && column.CompareRows(b, end, keys, b, start, keys) == 0 {
		end++
	}
	return end
}
