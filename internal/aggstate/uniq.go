// Package aggstate holds aggregate states that are more than a running
// number.
package aggstate

import (
	"hash/fnv"
	"math"
	"math/bits"

	"github.com/harshithgowdakt/granuleflow/internal/types"
)

const (
	precision = 12
	registers = 1 << precision
	// exactLimit is how many distinct hashes are kept before switching to
	// the sketch.
	exactLimit = 64
)

// Uniq approximates the number of distinct values. Small sets are counted
// exactly; larger ones fall back to a HyperLogLog sketch with 4096
// registers, which is within about 2% of the real count.
type Uniq struct {
	exact map[uint64]struct{}
	regs  *[registers]uint8
}

// NewUniq returns an empty state.
func NewUniq() *Uniq {
	return &Uniq{exact: make(map[uint64]struct{})}
}

func hashValue(v types.Value) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(types.ValueToString(v)))
	return h.Sum64()
}

// Add folds v into the state.
func (u *Uniq) Add(v types.Value) {
	u.add(hashValue(v))
}

func (u *Uniq) add(x uint64) {
	if u.regs != nil {
		u.addHash(x)
		return
	}
	u.exact[x] = struct{}{}
	if len(u.exact) > exactLimit {
		u.promote()
	}
}

// promote moves the exact set into the sketch.
func (u *Uniq) promote() {
	u.regs = new([registers]uint8)
	for h := range u.exact {
		u.addHash(h)
	}
	u.exact = nil
}

func (u *Uniq) addHash(x uint64) {
	idx := x & (registers - 1)
	rho := uint8(bits.LeadingZeros64(x>>precision)+1) - precision
	if rho > u.regs[idx] {
		u.regs[idx] = rho
	}
}

// Merge folds other into u.
func (u *Uniq) Merge(other *Uniq) {
	if other.regs == nil {
		for h := range other.exact {
			u.add(h)
		}
		return
	}
	if u.regs == nil {
		u.promote()
	}
	for i, r := range other.regs {
		if r > u.regs[i] {
			u.regs[i] = r
		}
	}
}

// Estimate returns the distinct count.
func (u *Uniq) Estimate() uint64 {
	if u.regs == nil {
		return uint64(len(u.exact))
	}
	m := float64(registers)
	alpha := 0.7213 / (1 + 1.079/m)
	sum := 0.0
	zeros := 0
	for _, r := range u.regs {
		sum += math.Ldexp(1, -int(r))
		if r == 0 {
			zeros++
		}
	}
	est := alpha * m * m / sum
	if est <= 2.5*m && zeros > 0 {
		est = m * math.Log(m/float64(zeros))
	}
	return uint64(est + 0.5)
}
