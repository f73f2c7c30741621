package column

import "github.com/harshithgowdakt/granuleflow/internal/types"

// dictionary stores each distinct string once; rows hold indices into Dict.
// Cached results tend to repeat group keys and join keys, so string columns
// are written this way when it pays off.
type dictionary struct {
	Dict    []string
	Indices []uint32
	lookup  map[string]uint32
}

func newDictionary(capacity int) *dictionary {
	return &dictionary{
		Indices: make([]uint32, 0, capacity),
		lookup:  make(map[string]uint32),
	}
}

func (d *dictionary) add(v string) {
	if idx, ok := d.lookup[v]; ok {
		d.Indices = append(d.Indices, idx)
		return
	}
	idx := uint32(len(d.Dict))
	d.Dict = append(d.Dict, v)
	d.lookup[v] = idx
	d.Indices = append(d.Indices, idx)
}

// Materialize expands the dictionary back into a plain string column.
func (d *dictionary) Materialize() *Vector[string] {
	out := make([]string, len(d.Indices))
	for i, idx := range d.Indices {
		out[i] = d.Dict[idx]
	}
	return FromSlice(types.TypeString, out)
}

// buildDict returns the dictionary form of col, or nil when more than half
// of the values are distinct.
func buildDict(col *Vector[string]) *dictionary {
	d := newDictionary(len(col.Data))
	for _, v := range col.Data {
		d.add(v)
		if 2*len(d.Dict) > len(col.Data) {
			return nil
		}
	}
	if len(d.Dict) == len(col.Data) {
		return nil
	}
	return d
}
