// Package cursor provides bounds-checked reads over a random-access byte source.
//
// A Cursor keeps an explicit position. Sequential reads (ReadByte, ReadExact, Uvarint, ...)
// advance it, while Slice performs a scoped read at an arbitrary offset without moving it,
// which is how sections located by header offsets are visited out of byte order.
//
// Every read is checked against the source length before any buffer is allocated, so a
// corrupt length prefix can never trigger an oversized allocation or an out-of-range access.
//
// Note: a Cursor is NOT thread-safe. Concurrent decoders each own their own cursor over a
// shared, read-only source.
package cursor

import (
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/jfr/endian"
	"github.com/arloliu/jfr/errs"
	"github.com/arloliu/jfr/internal/pool"
	"github.com/arloliu/jfr/source"
	"github.com/arloliu/jfr/varint"
)

// Cursor is a positioned reader over a source.Source.
type Cursor struct {
	src    source.Source
	data   []byte // set when src is contiguous
	size   int64
	pos    int64
	engine endian.EndianEngine
}

// New creates a cursor at offset 0 of src.
func New(src source.Source) *Cursor {
	c := &Cursor{
		src:    src,
		size:   src.Size(),
		engine: endian.Wire(),
	}
	if b, ok := src.(source.Contiguous); ok {
		c.data = b.Bytes()
	}

	return c
}

// FromBytes creates a cursor over an in-memory buffer.
func FromBytes(b []byte) *Cursor {
	return New(source.Bytes(b))
}

// Pos returns the current position.
func (c *Cursor) Pos() int64 {
	return c.pos
}

// Len returns the length of the underlying source.
func (c *Cursor) Len() int64 {
	return c.size
}

// Remaining returns the number of bytes between the position and the end of the source.
func (c *Cursor) Remaining() int64 {
	return c.size - c.pos
}

// SeekTo moves the position to an absolute offset.
//
// Returns:
//   - error: ErrCorrupt if off lies outside [0, Len()]
func (c *Cursor) SeekTo(off int64) error {
	if off < 0 || off > c.size {
		return fmt.Errorf("seek to %d beyond bounds (%d): %w", off, c.size, errs.ErrCorrupt)
	}
	c.pos = off

	return nil
}

// Skip advances the position by n bytes.
func (c *Cursor) Skip(n int64) error {
	if n < 0 || n > c.Remaining() {
		return fmt.Errorf("skip %d bytes at offset %d beyond bounds (%d): %w", n, c.pos, c.size, errs.ErrTruncated)
	}
	c.pos += n

	return nil
}

// ReadByte reads one byte, implementing io.ByteReader.
func (c *Cursor) ReadByte() (byte, error) {
	if c.pos >= c.size {
		return 0, fmt.Errorf("read at offset %d beyond bounds (%d): %w", c.pos, c.size, errs.ErrTruncated)
	}

	var b byte
	if c.data != nil {
		b = c.data[c.pos]
	} else {
		var one [1]byte
		if err := c.readAt(one[:], c.pos); err != nil {
			return 0, c.readError(err, c.pos, 1)
		}
		b = one[0]
	}
	c.pos++

	return b, nil
}

// ReadExact reads exactly n bytes into a newly allocated buffer owned by the caller.
//
// Returns:
//   - []byte: Buffer of length n
//   - error: ErrTruncated if fewer than n bytes remain
func (c *Cursor) ReadExact(n int64) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, fmt.Errorf("read %d bytes at offset %d beyond bounds (%d): %w", n, c.pos, c.size, errs.ErrTruncated)
	}

	buf := make([]byte, n)
	if c.data != nil {
		copy(buf, c.data[c.pos:c.pos+n])
	} else if err := c.readAt(buf, c.pos); err != nil {
		return nil, c.readError(err, c.pos, n)
	}
	c.pos += n

	return buf, nil
}

// Slice reads n bytes at off without moving the position.
//
// For contiguous sources the result aliases the source buffer and must be treated as
// read-only; otherwise it is a fresh buffer.
//
// Returns:
//   - []byte: The requested range
//   - error: ErrTruncated if the range extends past the end of the source
func (c *Cursor) Slice(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off > c.size || n > c.size-off {
		return nil, fmt.Errorf("slice [%d, %d) beyond bounds (%d): %w", off, off+n, c.size, errs.ErrTruncated)
	}

	if c.data != nil {
		return c.data[off : off+n : off+n], nil
	}

	buf := make([]byte, n)
	if err := c.readAt(buf, off); err != nil {
		return nil, c.readError(err, off, n)
	}

	return buf, nil
}

// SliceInto is Slice for hot loops: non-contiguous sources are read into buf instead of a
// fresh allocation, so the result is only valid until buf is reused.
func (c *Cursor) SliceInto(buf *pool.ByteBuffer, off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off > c.size || n > c.size-off {
		return nil, fmt.Errorf("slice [%d, %d) beyond bounds (%d): %w", off, off+n, c.size, errs.ErrTruncated)
	}

	if c.data != nil {
		return c.data[off : off+n : off+n], nil
	}

	b := buf.Resize(int(n))
	if err := c.readAt(b, off); err != nil {
		return nil, c.readError(err, off, n)
	}

	return b, nil
}

// Uvarint reads one unsigned varint.
func (c *Cursor) Uvarint() (uint64, error) {
	if c.data != nil {
		v, n, err := varint.DecodeBytes(c.data[c.pos:])
		if err != nil {
			return 0, fmt.Errorf("varint at offset %d: %w", c.pos, err)
		}
		c.pos += int64(n)

		return v, nil
	}

	start := c.pos
	v, err := varint.Decode(c)
	if err != nil {
		return 0, fmt.Errorf("varint at offset %d: %w", start, err)
	}

	return v, nil
}

// Varint reads one zigzag-encoded signed varint.
func (c *Cursor) Varint() (int64, error) {
	u, err := c.Uvarint()
	if err != nil {
		return 0, err
	}

	return varint.Unzigzag(u), nil
}

// Uint32 reads one unsigned varint that must fit in 32 bits.
func (c *Cursor) Uint32() (uint32, error) {
	start := c.pos
	v, err := c.Uvarint()
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, fmt.Errorf("varint %d at offset %d bigger than 32 bits: %w", v, start, errs.ErrIntegerOverflow)
	}

	return uint32(v), nil
}

// Bool reads a single-byte boolean; any non-zero byte is true.
func (c *Cursor) Bool() (bool, error) {
	b, err := c.ReadByte()
	if err != nil {
		return false, err
	}

	return b != 0, nil
}

// Float32 reads a 4-byte big-endian IEEE 754 value.
func (c *Cursor) Float32() (float32, error) {
	b, err := c.fixed(4)
	if err != nil {
		return 0, err
	}

	return endian.Float32(c.engine, b), nil
}

// Float64 reads an 8-byte big-endian IEEE 754 value.
func (c *Cursor) Float64() (float64, error) {
	b, err := c.fixed(8)
	if err != nil {
		return 0, err
	}

	return endian.Float64(c.engine, b), nil
}

// fixed returns the next n bytes and advances; the result may alias the source.
func (c *Cursor) fixed(n int64) ([]byte, error) {
	b, err := c.Slice(c.pos, n)
	if err != nil {
		return nil, err
	}
	c.pos += n

	return b, nil
}

// readAt fills p from off. A full read counts as success even if the source reports io.EOF.
func (c *Cursor) readAt(p []byte, off int64) error {
	n, err := c.src.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}

	return err
}

func (c *Cursor) readError(err error, off, n int64) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("read %d bytes at offset %d: %w", n, off, errs.ErrTruncated)
	}

	return fmt.Errorf("read %d bytes at offset %d: %w", n, off, err)
}
