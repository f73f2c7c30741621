package processor

import (
	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// Chunk is the unit of data flowing between processors through ports. It is
// not modified after it has been pushed.
type Chunk struct {
	Block *column.Block
}

// NewChunk wraps a block into a chunk.
func NewChunk(block *column.Block) *Chunk {
	return &Chunk{Block: block}
}

// NumRows returns the number of rows in the chunk.
func (c *Chunk) NumRows() int {
	if c == nil || c.Block == nil {
		return 0
	}
	return c.Block.NumRows()
}

// Header returns the chunk schema.
func (c *Chunk) Header() types.Header {
	if c == nil || c.Block == nil {
		return types.Header{}
	}
	return c.Block.Header()
}

// Clone returns a deep copy sharing no column storage with c.
func (c *Chunk) Clone() *Chunk {
	if c == nil || c.Block == nil {
		return &Chunk{}
	}
	return &Chunk{Block: c.Block.Clone()}
}
