package compression

import (
	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4/v4"
)

// LZ4Codec implements LZ4 block compression.
type LZ4Codec struct{}

func (LZ4Codec) MethodByte() byte { return MethodLZ4 }

// Compress returns src LZ4-compressed. Incompressible input is stored as
// is; Decompress tells the two apart by the payload size.
func (LZ4Codec) Compress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 compress")
	}
	if n == 0 || n >= len(src) {
		return append([]byte(nil), src...), nil
	}
	return dst[:n], nil
}

func (LZ4Codec) Decompress(src []byte, decompressedSize int) ([]byte, error) {
	if decompressedSize == 0 {
		return []byte{}, nil
	}
	if len(src) == decompressedSize {
		return append([]byte(nil), src...), nil
	}
	dst := make([]byte, decompressedSize)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "lz4 decompress"), ErrCorrupt)
	}
	if n != decompressedSize {
		return nil, errors.Mark(errors.Newf("lz4 decompress: expected %d bytes, got %d", decompressedSize, n), ErrCorrupt)
	}
	return dst, nil
}
