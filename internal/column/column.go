package column

import (
	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// Column is an in-memory columnar array of a single type.
type Column interface {
	DataType() types.DataType
	Len() int
	Value(i int) types.Value
	Append(v types.Value)
	// AppendFrom appends row i of src, which must have the same type.
	AppendFrom(src Column, i int)
	Slice(from, to int) Column
	Clone() Column
	Gather(indices []int) Column
	Filter(mask []bool) Column
	// Extend bulk-appends every row of src, which must have the same type.
	Extend(src Column)
}

// Scalar is the set of Go types backing a column.
type Scalar interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~int8 | ~int16 | ~int32 | ~int64 |
		~float32 | ~float64 | ~string
}

// Vector is the generic Column implementation.
type Vector[T Scalar] struct {
	dt   types.DataType
	Data []T
}

// NewColumn creates an empty column of the given type.
func NewColumn(dt types.DataType) Column {
	return NewColumnWithCapacity(dt, 0)
}

// NewColumnWithCapacity creates a column pre-allocated for n rows.
func NewColumnWithCapacity(dt types.DataType, n int) Column {
	switch dt {
	case types.TypeUInt8:
		return newVector[uint8](dt, n)
	case types.TypeUInt16:
		return newVector[uint16](dt, n)
	case types.TypeUInt32, types.TypeDateTime:
		return newVector[uint32](dt, n)
	case types.TypeUInt64:
		return newVector[uint64](dt, n)
	case types.TypeInt8:
		return newVector[int8](dt, n)
	case types.TypeInt16:
		return newVector[int16](dt, n)
	case types.TypeInt32:
		return newVector[int32](dt, n)
	case types.TypeInt64:
		return newVector[int64](dt, n)
	case types.TypeFloat32:
		return newVector[float32](dt, n)
	case types.TypeFloat64:
		return newVector[float64](dt, n)
	case types.TypeString:
		return newVector[string](dt, n)
	default:
		panic(errors.AssertionFailedf("unsupported data type %d", dt))
	}
}

// FromSlice wraps data as a column of type dt without copying.
func FromSlice[T Scalar](dt types.DataType, data []T) *Vector[T] {
	return &Vector[T]{dt: dt, Data: data}
}

// Constant builds a column holding n copies of v.
func Constant(dt types.DataType, v types.Value, n int) Column {
	col := NewColumnWithCapacity(dt, n)
	for i := 0; i < n; i++ {
		col.Append(v)
	}
	return col
}

func newVector[T Scalar](dt types.DataType, n int) *Vector[T] {
	return &Vector[T]{dt: dt, Data: make([]T, 0, n)}
}

func (c *Vector[T]) DataType() types.DataType { return c.dt }
func (c *Vector[T]) Len() int                 { return len(c.Data) }
func (c *Vector[T]) Value(i int) types.Value  { return c.Data[i] }
func (c *Vector[T]) Append(v types.Value)     { c.Data = append(c.Data, v.(T)) }

func (c *Vector[T]) AppendFrom(src Column, i int) {
	c.Data = append(c.Data, src.(*Vector[T]).Data[i])
}

func (c *Vector[T]) Slice(from, to int) Column {
	d := make([]T, to-from)
	copy(d, c.Data[from:to])
	return &Vector[T]{dt: c.dt, Data: d}
}

func (c *Vector[T]) Clone() Column {
	return c.Slice(0, len(c.Data))
}

// Gather returns a new column with rows reordered by indices.
func (c *Vector[T]) Gather(indices []int) Column {
	out := make([]T, len(indices))
	for i, idx := range indices {
		out[i] = c.Data[idx]
	}
	return &Vector[T]{dt: c.dt, Data: out}
}

// Filter returns a new column keeping rows where mask[i] is true.
func (c *Vector[T]) Filter(mask []bool) Column {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	out := make([]T, 0, n)
	for i, m := range mask {
		if m {
			out = append(out, c.Data[i])
		}
	}
	return &Vector[T]{dt: c.dt, Data: out}
}

func (c *Vector[T]) Extend(src Column) {
	c.Data = append(c.Data, src.(*Vector[T]).Data...)
}
