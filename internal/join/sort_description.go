package join

import "github.com/harshithgowdakt/granuleflow/internal/column"

// SortDescription is an ordered list of sort columns.
type SortDescription []column.SortKey

// NewSortDescription builds an ascending description over keyNames. Later
// duplicates of a name are dropped so a comparator never visits the same key
// twice: [a b a c] yields [a b c].
func NewSortDescription(keyNames []string) SortDescription {
	desc := make(SortDescription, 0, len(keyNames))
	seen := make(map[string]struct{}, len(keyNames))
	for _, name := range keyNames {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		desc = append(desc, column.SortKey{Column: name})
	}
	return desc
}

// Names returns the column names in order.
func (d SortDescription) Names() []string {
	return column.SortKeyNames(d)
}

// CommonPrefix returns the longest leading run shared by d and other.
func (d SortDescription) CommonPrefix(other SortDescription) SortDescription {
	n := 0
	for n < len(d) && n < len(other) && d[n] == other[n] {
		n++
	}
	return d[:n:n]
}

// HasPrefix reports whether d begins with prefix.
func (d SortDescription) HasPrefix(prefix SortDescription) bool {
	return len(d.CommonPrefix(prefix)) == len(prefix)
}

func (d SortDescription) String() string {
	s := ""
	for i, k := range d {
		if i > 0 {
			s += ", "
		}
		s += k.Column
		if k.Desc {
			s += " DESC"
		}
	}
	return s
}
