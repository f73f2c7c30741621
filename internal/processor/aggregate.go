package processor

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/aggstate"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// AggregateFunc describes an aggregate function to compute.
type AggregateFunc struct {
	Name   string // "count", "uniq", "sum", "min", "max", "avg"
	Column string // argument column, empty for count()
	Alias  string // output column name
}

// resultType returns the output type of f over an input with header in.
func (f AggregateFunc) resultType(in types.Header) (types.DataType, error) {
	if f.Name == "count" && f.Column == "" {
		return types.TypeUInt64, nil
	}
	idx, ok := in.Index(f.Column)
	if !ok {
		return 0, errors.Newf("aggregate column %s not found in %s", f.Column, in)
	}
	dt := in[idx].Type
	switch f.Name {
	case "count", "uniq":
		return types.TypeUInt64, nil
	case "min", "max":
		return dt, nil
	case "sum", "avg":
		if !dt.IsNumeric() {
			return 0, errors.Newf("%s(%s): %s is not numeric", f.Name, f.Column, dt)
		}
		if f.Name == "avg" {
			return types.TypeFloat64, nil
		}
		switch dt {
		case types.TypeFloat32, types.TypeFloat64:
			return types.TypeFloat64, nil
		case types.TypeUInt8, types.TypeUInt16, types.TypeUInt32, types.TypeUInt64:
			return types.TypeUInt64, nil
		default:
			return types.TypeInt64, nil
		}
	default:
		return 0, errors.Newf("unknown aggregate function %q", f.Name)
	}
}

// Accumulator folds values of one group.
type Accumulator interface {
	Add(v types.Value)
	Result() types.Value
}

func newAccumulator(name string, out types.DataType) Accumulator {
	switch name {
	case "count":
		return &countAcc{}
	case "uniq":
		return uniqAcc{aggstate.NewUniq()}
	case "sum":
		return &sumAcc{out: out}
	case "avg":
		return &avgAcc{}
	case "min":
		return &extremeAcc{dt: out, sign: -1}
	default:
		return &extremeAcc{dt: out, sign: 1}
	}
}

type countAcc struct{ n uint64 }

func (a *countAcc) Add(types.Value)     { a.n++ }
func (a *countAcc) Result() types.Value { return a.n }

type uniqAcc struct{ *aggstate.Uniq }

func (a uniqAcc) Result() types.Value { return a.Estimate() }

type sumAcc struct {
	out types.DataType
	i   int64
	u   uint64
	f   float64
}

func (a *sumAcc) Add(v types.Value) {
	switch a.out {
	case types.TypeFloat64:
		a.f += toFloat64(v)
	case types.TypeUInt64:
		a.u += toUint64(v)
	default:
		a.i += toInt64(v)
	}
}

func (a *sumAcc) Result() types.Value {
	switch a.out {
	case types.TypeFloat64:
		return a.f
	case types.TypeUInt64:
		return a.u
	default:
		return a.i
	}
}

type avgAcc struct {
	sum float64
	n   uint64
}

func (a *avgAcc) Add(v types.Value) {
	a.sum += toFloat64(v)
	a.n++
}

func (a *avgAcc) Result() types.Value {
	if a.n == 0 {
		return math.NaN()
	}
	return a.sum / float64(a.n)
}

// extremeAcc keeps the minimum (sign -1) or maximum (sign 1).
type extremeAcc struct {
	dt   types.DataType
	sign int
	v    types.Value
}

func (a *extremeAcc) Add(v types.Value) {
	if a.v == nil || types.CompareValues(a.dt, v, a.v)*a.sign > 0 {
		a.v = v
	}
}

func (a *extremeAcc) Result() types.Value {
	if a.v == nil {
		return types.DefaultValue(a.dt)
	}
	return a.v
}

func toFloat64(v types.Value) float64 {
	switch x := v.(type) {
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

func toInt64(v types.Value) int64 {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	}
	return int64(toFloat64(v))
}

func toUint64(v types.Value) uint64 {
	switch x := v.(type) {
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	}
	return uint64(toFloat64(v))
}
