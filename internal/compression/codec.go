// Package compression frames byte payloads with an optional LZ4 codec. It is
// used for query cache entries.
package compression

import "github.com/cockroachdb/errors"

// Codec compresses and decompresses data blocks.
type Codec interface {
	// MethodByte returns the single-byte codec identifier.
	MethodByte() byte
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte, decompressedSize int) ([]byte, error)
}

// Method bytes stored in the frame header.
const (
	MethodNone byte = 0x02
	MethodLZ4  byte = 0x82
)

// ErrCorrupt marks frames that cannot be decoded.
var ErrCorrupt = errors.New("corrupt compressed frame")

// ForMethod returns the codec identified by method.
func ForMethod(method byte) (Codec, error) {
	switch method {
	case MethodLZ4:
		return LZ4Codec{}, nil
	case MethodNone:
		return NoneCodec{}, nil
	default:
		return nil, errors.Mark(errors.Newf("unknown compression method 0x%02x", method), ErrCorrupt)
	}
}

// Default returns LZ4 when compress is set and the identity codec otherwise.
func Default(compress bool) Codec {
	if compress {
		return LZ4Codec{}
	}
	return NoneCodec{}
}
