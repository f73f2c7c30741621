package column

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// Block is a batch of columnar data with named columns, all the same length.
type Block struct {
	ColumnNames []string
	Columns     []Column
	nameIndex   map[string]int
}

// NewBlock creates a block from parallel slices of names and columns.
func NewBlock(names []string, cols []Column) *Block {
	b := &Block{ColumnNames: names, Columns: cols}
	b.rebuildIndex()
	return b
}

// NewEmptyBlock creates a zero-row block conforming to header.
func NewEmptyBlock(header types.Header) *Block {
	cols := make([]Column, len(header))
	for i, c := range header {
		cols[i] = NewColumn(c.Type)
	}
	return NewBlock(header.Names(), cols)
}

// NewDefaultBlock creates a block of rows default-valued rows for header.
func NewDefaultBlock(header types.Header, rows int) *Block {
	cols := make([]Column, len(header))
	for i, c := range header {
		cols[i] = Constant(c.Type, types.DefaultValue(c.Type), rows)
	}
	return NewBlock(header.Names(), cols)
}

// NumRows returns the number of rows in the block.
func (b *Block) NumRows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Len()
}

// NumColumns returns the number of columns.
func (b *Block) NumColumns() int {
	return len(b.Columns)
}

// Header returns the block's schema.
func (b *Block) Header() types.Header {
	h := make(types.Header, len(b.Columns))
	for i, c := range b.Columns {
		h[i] = types.ColumnDef{Name: b.ColumnNames[i], Type: c.DataType()}
	}
	return h
}

// GetColumn returns the column with the given name.
func (b *Block) GetColumn(name string) (Column, bool) {
	i, ok := b.GetColumnIndex(name)
	if !ok {
		return nil, false
	}
	return b.Columns[i], true
}

// GetColumnIndex returns the index of a column by name.
func (b *Block) GetColumnIndex(name string) (int, bool) {
	if b.nameIndex == nil {
		b.rebuildIndex()
	}
	i, ok := b.nameIndex[name]
	return i, ok
}

func (b *Block) rebuildIndex() {
	b.nameIndex = make(map[string]int, len(b.ColumnNames))
	for i, n := range b.ColumnNames {
		b.nameIndex[n] = i
	}
}

// Clone returns a deep copy sharing no column storage with b.
func (b *Block) Clone() *Block {
	cols := make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		cols[i] = c.Clone()
	}
	return NewBlock(cloneNames(b.ColumnNames), cols)
}

// AppendBlock appends all rows from another block with the same header.
func (b *Block) AppendBlock(other *Block) error {
	if len(b.Columns) != len(other.Columns) {
		return errors.Newf("column count mismatch: %d vs %d", len(b.Columns), len(other.Columns))
	}
	for i := range b.Columns {
		if b.Columns[i].DataType() != other.Columns[i].DataType() {
			return errors.Newf("column %s: type mismatch %s vs %s",
				b.ColumnNames[i], b.Columns[i].DataType(), other.Columns[i].DataType())
		}
		b.Columns[i].Extend(other.Columns[i])
	}
	return nil
}

// SliceRows returns a new block with rows [from, to).
func (b *Block) SliceRows(from, to int) *Block {
	cols := make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		cols[i] = c.Slice(from, to)
	}
	return NewBlock(cloneNames(b.ColumnNames), cols)
}

// Gather returns a new block with rows picked by indices, in that order.
func (b *Block) Gather(indices []int) *Block {
	cols := make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		cols[i] = c.Gather(indices)
	}
	return NewBlock(cloneNames(b.ColumnNames), cols)
}

// FilterRowsByMask returns a new block keeping only rows where mask[i] is true.
func (b *Block) FilterRowsByMask(mask []bool) *Block {
	cols := make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		cols[i] = c.Filter(mask)
	}
	return NewBlock(cloneNames(b.ColumnNames), cols)
}

// SortKey is one column of a sort order.
type SortKey struct {
	Column string
	Desc   bool
}

// SortByColumns stably sorts the block in place by keys.
func (b *Block) SortByColumns(keys []SortKey) error {
	if b.NumRows() <= 1 {
		return nil
	}
	idx, err := b.KeyIndices(SortKeyNames(keys))
	if err != nil {
		return err
	}

	indices := make([]int, b.NumRows())
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(x, y int) bool {
		for k, ci := range idx {
			c := types.CompareValues(b.Columns[ci].DataType(),
				b.Columns[ci].Value(indices[x]), b.Columns[ci].Value(indices[y]))
			if c != 0 {
				if keys[k].Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return false
	})

	for i, c := range b.Columns {
		b.Columns[i] = c.Gather(indices)
	}
	return nil
}

// KeyIndices resolves column names to positions.
func (b *Block) KeyIndices(names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		ci, ok := b.GetColumnIndex(name)
		if !ok {
			return nil, errors.Newf("key column not found: %s", name)
		}
		idx[i] = ci
	}
	return idx, nil
}

// SortKeyNames extracts the column names of keys.
func SortKeyNames(keys []SortKey) []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Column
	}
	return names
}

// CompareRows orders row i of a against row j of b over the paired key
// positions aKeys/bKeys. Paired key columns must share a type.
func CompareRows(a *Block, i int, aKeys []int, b *Block, j int, bKeys []int) int {
	for k := range aKeys {
		ca := a.Columns[aKeys[k]]
		cb := b.Columns[bKeys[k]]
		if c := types.CompareValues(ca.DataType(), ca.Value(i), cb.Value(j)); c != 0 {
			return c
		}
	}
	return 0
}

func cloneNames(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}
