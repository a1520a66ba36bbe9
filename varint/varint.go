// Package varint implements the variable-length integer encoding used by JFR chunks.
//
// Integers are written as little-endian base-128 groups. The high bit of each byte is a
// continuation flag, except for the ninth byte: it is always terminal and carries a full
// 8 bits, so any uint64 fits in at most MaxLen bytes:
//
//	value            encoded bytes
//	0                00
//	127              7f
//	128              80 01
//	math.MaxUint64   ff ff ff ff ff ff ff ff ff
//
// Signed values use zigzag mapping on top of the unsigned form.
package varint

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/arloliu/jfr/errs"
)

// MaxLen is the maximum number of bytes of an encoded value.
const MaxLen = 9

const (
	continuationBit = 0x80
	payloadMask     = 0x7f
	groupBits       = 7
)

// Decode reads one unsigned varint from r.
//
// Parameters:
//   - r: Byte source positioned at the first byte of the varint
//
// Returns:
//   - uint64: Decoded value
//   - error: ErrTruncated if r ends before the terminal byte, or the reader's own error
func Decode(r io.ByteReader) (uint64, error) {
	var v uint64
	for i := 0; i < MaxLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, readError(err, i)
		}

		if i == MaxLen-1 {
			// ninth byte: all 8 bits are payload
			v |= uint64(b) << (groupBits * i)
			return v, nil
		}

		v |= uint64(b&payloadMask) << (groupBits * i)
		if b&continuationBit == 0 {
			return v, nil
		}
	}

	// unreachable: the ninth iteration always returns
	return v, nil
}

// DecodeSigned reads one zigzag-encoded signed varint from r.
func DecodeSigned(r io.ByteReader) (int64, error) {
	u, err := Decode(r)
	if err != nil {
		return 0, err
	}

	return Unzigzag(u), nil
}

// DecodeUint32 reads one unsigned varint that must fit in 32 bits.
//
// Counts, lengths and string indices are 32-bit quantities in the format; a larger value
// means the stream is desynchronized.
//
// Returns:
//   - uint32: Decoded value
//   - error: ErrIntegerOverflow when the value exceeds math.MaxUint32, or any Decode error
func DecodeUint32(r io.ByteReader) (uint32, error) {
	v, err := Decode(r)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("varint %d bigger than 32 bits: %w", v, errs.ErrIntegerOverflow)
	}

	return uint32(v), nil
}

// DecodeBytes decodes one unsigned varint from the start of b.
//
// Returns:
//   - uint64: Decoded value
//   - int: Number of bytes consumed
//   - error: ErrTruncated if b ends before the terminal byte
func DecodeBytes(b []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < MaxLen; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("varint needs more than %d bytes: %w", len(b), errs.ErrTruncated)
		}

		c := b[i]
		if i == MaxLen-1 {
			v |= uint64(c) << (groupBits * i)
			return v, i + 1, nil
		}

		v |= uint64(c&payloadMask) << (groupBits * i)
		if c&continuationBit == 0 {
			return v, i + 1, nil
		}
	}

	return v, MaxLen, nil
}

// Append appends the encoding of v to dst and returns the extended slice.
func Append(dst []byte, v uint64) []byte {
	for i := 0; i < MaxLen-1; i++ {
		if v < continuationBit {
			return append(dst, byte(v))
		}
		dst = append(dst, byte(v)|continuationBit)
		v >>= groupBits
	}

	// remaining 8 bits go to the terminal ninth byte
	return append(dst, byte(v))
}

// AppendSigned appends the zigzag encoding of v to dst.
func AppendSigned(dst []byte, v int64) []byte {
	return Append(dst, Zigzag(v))
}

// Size returns the number of bytes Append would write for v.
func Size(v uint64) int {
	n := 1
	for v >= continuationBit && n < MaxLen {
		v >>= groupBits
		n++
	}

	return n
}

// Zigzag maps a signed value to an unsigned one so small magnitudes stay small:
// 0 -> 0, -1 -> 1, 1 -> 2, -2 -> 3.
func Zigzag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63) //nolint:gosec
}

// Unzigzag is the inverse of Zigzag: (u >> 1) ^ -(u & 1).
func Unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1) //nolint:gosec
}

func readError(err error, consumed int) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("varint ended after %d bytes: %w", consumed, errs.ErrTruncated)
	}

	return err
}
