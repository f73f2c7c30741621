package compression

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Frame layout:
//
//	[method (1)] [frame size including header (4 LE)] [uncompressed size (4 LE)] [payload]
const HeaderSize = 9

// CompressFrame compresses data with codec and prepends the frame header.
func CompressFrame(codec Codec, data []byte) ([]byte, error) {
	compressed, err := codec.Compress(data)
	if err != nil {
		return nil, err
	}

	total := HeaderSize + len(compressed)
	frame := make([]byte, total)
	frame[0] = codec.MethodByte()
	binary.LittleEndian.PutUint32(frame[1:5], uint32(total))
	binary.LittleEndian.PutUint32(frame[5:9], uint32(len(data)))
	copy(frame[HeaderSize:], compressed)
	return frame, nil
}

// DecompressFrame validates the header of frame and returns its payload
// decompressed.
func DecompressFrame(frame []byte) ([]byte, error) {
	total, uncompressed, err := ReadFrameHeader(frame)
	if err != nil {
		return nil, err
	}
	if int(total) > len(frame) || total < HeaderSize {
		return nil, errors.Mark(errors.Newf("frame size mismatch: header says %d, have %d", total, len(frame)), ErrCorrupt)
	}
	codec, err := ForMethod(frame[0])
	if err != nil {
		return nil, err
	}
	return codec.Decompress(frame[HeaderSize:total], int(uncompressed))
}

// ReadFrameHeader returns the total frame size and the uncompressed payload
// size.
func ReadFrameHeader(frame []byte) (total uint32, uncompressed uint32, err error) {
	if len(frame) < HeaderSize {
		return 0, 0, errors.Mark(errors.Newf("frame too small: %d bytes", len(frame)), ErrCorrupt)
	}
	return binary.LittleEndian.Uint32(frame[1:5]), binary.LittleEndian.Uint32(frame[5:9]), nil
}
