package types

// DataType identifies the physical type of a column.
type DataType uint8

const (
	TypeUInt8 DataType = iota
	TypeUInt16
	TypeUInt32
	TypeUInt64
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeDateTime // uint32 unix timestamp
)

var typeNames = [...]string{
	TypeUInt8:    "UInt8",
	TypeUInt16:   "UInt16",
	TypeUInt32:   "UInt32",
	TypeUInt64:   "UInt64",
	TypeInt8:     "Int8",
	TypeInt16:    "Int16",
	TypeInt32:    "Int32",
	TypeInt64:    "Int64",
	TypeFloat32:  "Float32",
	TypeFloat64:  "Float64",
	TypeString:   "String",
	TypeDateTime: "DateTime",
}

// Name returns the canonical type name.
func (dt DataType) Name() string {
	if int(dt) < len(typeNames) {
		return typeNames[dt]
	}
	return "Unknown"
}

func (dt DataType) String() string { return dt.Name() }

// IsNumeric reports whether values of dt are integers, floats or timestamps.
func (dt DataType) IsNumeric() bool {
	return dt != TypeString && int(dt) < len(typeNames)
}
