// Package endian provides the byte order used for fixed-width fields in JFR chunks.
//
// Every fixed-width field of the format (header fields, float and double payloads) is
// big-endian regardless of the host. Decoders obtain the engine once and thread it through:
//
//	engine := endian.Wire()
//	size := engine.Uint64(header[8:16])
//
// # Thread Safety
//
// All functions in this package are safe for concurrent use. The returned EndianEngine is
// immutable and stateless.
package endian

import (
	"encoding/binary"
	"math"
)

// EndianEngine combines ByteOrder and AppendByteOrder interfaces from encoding/binary
// into a single interface for reads and fixture writes alike.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Wire returns the byte order of fixed-width fields on the wire.
func Wire() EndianEngine {
	return binary.BigEndian
}

// Float32 decodes a 4-byte IEEE 754 value from b using engine.
func Float32(engine EndianEngine, b []byte) float32 {
	return math.Float32frombits(engine.Uint32(b))
}

// Float64 decodes an 8-byte IEEE 754 value from b using engine.
func Float64(engine EndianEngine, b []byte) float64 {
	return math.Float64frombits(engine.Uint64(b))
}

// AppendFloat32 appends the 4-byte encoding of v.
func AppendFloat32(engine EndianEngine, dst []byte, v float32) []byte {
	return engine.AppendUint32(dst, math.Float32bits(v))
}

// AppendFloat64 appends the 8-byte encoding of v.
func AppendFloat64(engine EndianEngine, dst []byte, v float64) []byte {
	return engine.AppendUint64(dst, math.Float64bits(v))
}
