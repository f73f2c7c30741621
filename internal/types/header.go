package types

import "strings"

// ColumnDef is one (name, type) entry of a Header.
type ColumnDef struct {
	Name string
	Type DataType
}

// Header is the ordered schema every chunk on a port conforms to.
type Header []ColumnDef

// Equal reports structural equality: same names and types in the same order.
func (h Header) Equal(other Header) bool {
	if len(h) != len(other) {
		return false
	}
	for i := range h {
		if h[i] != other[i] {
			return false
		}
	}
	return true
}

// Names returns the column names in order.
func (h Header) Names() []string {
	names := make([]string, len(h))
	for i, c := range h {
		names[i] = c.Name
	}
	return names
}

// Types returns the column types in order.
func (h Header) Types() []DataType {
	dts := make([]DataType, len(h))
	for i, c := range h {
		dts[i] = c.Type
	}
	return dts
}

// Index returns the position of the named column.
func (h Header) Index(name string) (int, bool) {
	for i, c := range h {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Has reports whether the named column exists.
func (h Header) Has(name string) bool {
	_, ok := h.Index(name)
	return ok
}

// Clone returns an independent copy.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	copy(out, h)
	return out
}

func (h Header) String() string {
	parts := make([]string, len(h))
	for i, c := range h {
		parts[i] = c.Name + " " + c.Type.Name()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
