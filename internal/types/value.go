package types

import (
	"cmp"
	"fmt"
)

// Value is a single cell. Concrete values use the native Go type of the
// column: UInt8 -> uint8, ..., String -> string, DateTime -> uint32.
type Value = any

// DefaultValue returns the zero value of dt, used to pad unmatched join rows
// and to synthesize default totals.
func DefaultValue(dt DataType) Value {
	switch dt {
	case TypeUInt8:
		return uint8(0)
	case TypeUInt16:
		return uint16(0)
	case TypeUInt32, TypeDateTime:
		return uint32(0)
	case TypeUInt64:
		return uint64(0)
	case TypeInt8:
		return int8(0)
	case TypeInt16:
		return int16(0)
	case TypeInt32:
		return int32(0)
	case TypeInt64:
		return int64(0)
	case TypeFloat32:
		return float32(0)
	case TypeFloat64:
		return float64(0)
	case TypeString:
		return ""
	default:
		return nil
	}
}

// CompareValues orders two values of the same DataType.
func CompareValues(dt DataType, a, b Value) int {
	switch dt {
	case TypeUInt8:
		return cmp.Compare(a.(uint8), b.(uint8))
	case TypeUInt16:
		return cmp.Compare(a.(uint16), b.(uint16))
	case TypeUInt32, TypeDateTime:
		return cmp.Compare(a.(uint32), b.(uint32))
	case TypeUInt64:
		return cmp.Compare(a.(uint64), b.(uint64))
	case TypeInt8:
		return cmp.Compare(a.(int8), b.(int8))
	case TypeInt16:
		return cmp.Compare(a.(int16), b.(int16))
	case TypeInt32:
		return cmp.Compare(a.(int32), b.(int32))
	case TypeInt64:
		return cmp.Compare(a.(int64), b.(int64))
	case TypeFloat32:
		return cmp.Compare(a.(float32), b.(float32))
	case TypeFloat64:
		return cmp.Compare(a.(float64), b.(float64))
	case TypeString:
		return cmp.Compare(a.(string), b.(string))
	default:
		return 0
	}
}

// KeyString renders a value as a hash-table key fragment. Values of different
// types never share a key because the type name is part of the encoding.
func KeyString(dt DataType, v Value) string {
	return fmt.Sprintf("%d:%v", dt, v)
}

// ValueToString converts a value to its display form.
func ValueToString(v Value) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
