package querycache

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/compression"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// Entry is one committed result. Blocks are kept as encoded, possibly
// compressed, frames and decoded on every replay.
type Entry struct {
	Key     Key
	Header  types.Header
	Rows    int
	Bytes   int
	Created time.Time
	Expires time.Time

	frames   [][]byte
	totals   []byte
	extremes []byte
}

func encodeFrame(codec compression.Codec, b *column.Block) ([]byte, error) {
	raw, err := column.EncodeBlock(b)
	if err != nil {
		return nil, errors.Wrap(err, "encoding cached block")
	}
	return compression.CompressFrame(codec, raw)
}

func decodeFrame(frame []byte) (*column.Block, error) {
	raw, err := compression.DecompressFrame(frame)
	if err != nil {
		return nil, errors.Wrap(err, "reading cached block")
	}
	return column.DecodeBlock(raw)
}

// Blocks decodes the main result.
func (e *Entry) Blocks() ([]*column.Block, error) {
	blocks := make([]*column.Block, 0, len(e.frames))
	for _, f := range e.frames {
		b, err := decodeFrame(f)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// Totals decodes the totals block, or returns nil if the result had none.
func (e *Entry) Totals() (*column.Block, error) {
	if e.totals == nil {
		return nil, nil
	}
	return decodeFrame(e.totals)
}

// Extremes decodes the extremes block, or returns nil if the result had none.
func (e *Entry) Extremes() (*column.Block, error) {
	if e.extremes == nil {
		return nil, nil
	}
	return decodeFrame(e.extremes)
}
