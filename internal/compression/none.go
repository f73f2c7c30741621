package compression

// NoneCodec stores payloads uncompressed.
type NoneCodec struct{}

func (NoneCodec) MethodByte() byte { return MethodNone }

func (NoneCodec) Compress(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

func (NoneCodec) Decompress(src []byte, decompressedSize int) ([]byte, error) {
	if len(src) != decompressedSize {
		return nil, ErrCorrupt
	}
	return append([]byte(nil), src...), nil
}
