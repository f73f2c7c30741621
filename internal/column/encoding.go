package column

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// Block wire layout:
//
//	VarUInt(numColumns) VarUInt(numRows)
//	per column: VarUInt(len(name)) name  type_byte  payload
//
// Fixed-size payloads are raw little-endian arrays. String payloads start
// with a mode byte: plain is VarUInt(length) + bytes per row; dictionary is
// VarUInt(dictSize), the distinct values as plain strings, then a VarUInt
// index per row.

const (
	stringPlain byte = iota
	stringDict
)

// WriteVarUInt writes a variable-length unsigned integer (protobuf varint).
func WriteVarUInt(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

// EncodeBlock serializes a block.
func EncodeBlock(b *Block) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteVarUInt(&buf, uint64(b.NumColumns())); err != nil {
		return nil, err
	}
	if err := WriteVarUInt(&buf, uint64(b.NumRows())); err != nil {
		return nil, err
	}
	for i, col := range b.Columns {
		name := b.ColumnNames[i]
		if err := WriteVarUInt(&buf, uint64(len(name))); err != nil {
			return nil, err
		}
		buf.WriteString(name)
		buf.WriteByte(byte(col.DataType()))
		if err := encodeColumn(&buf, col); err != nil {
			return nil, errors.Wrapf(err, "encoding column %s", name)
		}
	}
	return buf.Bytes(), nil
}

func encodeColumn(w *bytes.Buffer, col Column) error {
	if s, ok := col.(*Vector[string]); ok {
		d := buildDict(s)
		if d == nil {
			w.WriteByte(stringPlain)
			return writeStrings(w, s.Data)
		}
		w.WriteByte(stringDict)
		if err := WriteVarUInt(w, uint64(len(d.Dict))); err != nil {
			return err
		}
		if err := writeStrings(w, d.Dict); err != nil {
			return err
		}
		for _, idx := range d.Indices {
			if err := WriteVarUInt(w, uint64(idx)); err != nil {
				return err
			}
		}
		return nil
	}
	return col.(fixedColumn).writeFixed(w)
}

func writeStrings(w *bytes.Buffer, vals []string) error {
	for _, v := range vals {
		if err := WriteVarUInt(w, uint64(len(v))); err != nil {
			return err
		}
		w.WriteString(v)
	}
	return nil
}

// DecodeBlock deserializes a block produced by EncodeBlock.
func DecodeBlock(data []byte) (*Block, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	numCols, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading column count")
	}
	numRows, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading row count")
	}

	names := make([]string, numCols)
	cols := make([]Column, numCols)
	for i := range cols {
		nameLen, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.Wrapf(err, "reading name of column %d", i)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, errors.Wrapf(err, "reading name of column %d", i)
		}
		tb, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrapf(err, "reading type of column %s", name)
		}
		names[i] = string(name)
		cols[i], err = decodeColumn(r, types.DataType(tb), int(numRows))
		if err != nil {
			return nil, errors.Wrapf(err, "decoding column %s", name)
		}
	}
	return NewBlock(names, cols), nil
}

func decodeColumn(r *bufio.Reader, dt types.DataType, numRows int) (Column, error) {
	if dt.Name() == "Unknown" {
		return nil, errors.Newf("unsupported data type %d", dt)
	}
	col := NewColumnWithCapacity(dt, numRows)
	if _, ok := col.(*Vector[string]); ok {
		return decodeStrings(r, numRows)
	}
	if err := col.(fixedColumn).readFixed(r, numRows); err != nil {
		return nil, err
	}
	return col, nil
}

func decodeStrings(r *bufio.Reader, numRows int) (Column, error) {
	mode, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "reading string mode")
	}
	switch mode {
	case stringPlain:
		vals, err := readStrings(r, numRows)
		if err != nil {
			return nil, err
		}
		return FromSlice(types.TypeString, vals), nil
	case stringDict:
		size, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading dictionary size")
		}
		if size > uint64(numRows) {
			return nil, errors.Newf("dictionary of %d values for %d rows", size, numRows)
		}
		d := newDictionary(numRows)
		if d.Dict, err = readStrings(r, int(size)); err != nil {
			return nil, errors.Wrap(err, "reading dictionary")
		}
		for i := 0; i < numRows; i++ {
			idx, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, errors.Wrapf(err, "dictionary index at row %d", i)
			}
			if idx >= size {
				return nil, errors.Newf("dictionary index %d out of range at row %d", idx, i)
			}
			d.Indices = append(d.Indices, uint32(idx))
		}
		return d.Materialize(), nil
	default:
		return nil, errors.Newf("unknown string mode %d", mode)
	}
}

func readStrings(r *bufio.Reader, n int) ([]string, error) {
	vals := make([]string, 0, n)
	for i := 0; i < n; i++ {
		l, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.Wrapf(err, "string length at row %d", i)
		}
		buf := make([]byte, l)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrapf(err, "string data at row %d", i)
		}
		vals = append(vals, string(buf))
	}
	return vals, nil
}

type fixedColumn interface {
	writeFixed(w io.Writer) error
	readFixed(r io.Reader, n int) error
}

func (c *Vector[T]) writeFixed(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, c.Data)
}

func (c *Vector[T]) readFixed(r io.Reader, n int) error {
	c.Data = make([]T, n)
	return binary.Read(r, binary.LittleEndian, c.Data)
}
