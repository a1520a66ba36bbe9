package section

import "github.com/arloliu/jfr/endian"

// HeaderField identifies one fixed-width field of the chunk header.
type HeaderField int

const (
	FieldMagic HeaderField = iota
	FieldMajor
	FieldMinor
	FieldSize
	FieldConstantPoolOffset
	FieldMetadataOffset
	FieldStartNanos
	FieldDurationNanos
	FieldStartTicks
	FieldTicksPerSecond
	FieldFeatures

	headerFieldCount
)

// FieldLayout locates one header field.
type FieldLayout struct {
	Name   string
	Offset int
	Width  int
}

// End returns the offset just past the field.
func (l FieldLayout) End() int {
	return l.Offset + l.Width
}

// HeaderLayout is the declarative chunk header table, indexed by HeaderField.
// Every field is big-endian (endian.Wire).
var HeaderLayout = [headerFieldCount]FieldLayout{
	FieldMagic:              {Name: "magic", Offset: 0, Width: 4},
	FieldMajor:              {Name: "major", Offset: 4, Width: 2},
	FieldMinor:              {Name: "minor", Offset: 6, Width: 2},
	FieldSize:               {Name: "size", Offset: 8, Width: 8},
	FieldConstantPoolOffset: {Name: "constant_pool_offset", Offset: 16, Width: 8},
	FieldMetadataOffset:     {Name: "metadata_offset", Offset: 24, Width: 8},
	FieldStartNanos:         {Name: "start_nanos", Offset: 32, Width: 8},
	FieldDurationNanos:      {Name: "duration_nanos", Offset: 40, Width: 8},
	FieldStartTicks:         {Name: "start_ticks", Offset: 48, Width: 8},
	FieldTicksPerSecond:     {Name: "ticks_per_second", Offset: 56, Width: 8},
	FieldFeatures:           {Name: "features", Offset: 64, Width: 4},
}

// String returns the field's name in the layout table.
func (f HeaderField) String() string {
	if f < 0 || f >= headerFieldCount {
		return "unknown"
	}

	return HeaderLayout[f].Name
}

// readField decodes an integer field from a full header buffer.
func readField(engine endian.EndianEngine, data []byte, f HeaderField) uint64 {
	l := HeaderLayout[f]
	b := data[l.Offset:l.End()]
	switch l.Width {
	case 2:
		return uint64(engine.Uint16(b))
	case 4:
		return uint64(engine.Uint32(b))
	default:
		return engine.Uint64(b)
	}
}

// putField encodes an integer field into a full header buffer.
func putField(engine endian.EndianEngine, data []byte, f HeaderField, v uint64) {
	l := HeaderLayout[f]
	b := data[l.Offset:l.End()]
	switch l.Width {
	case 2:
		engine.PutUint16(b, uint16(v)) //nolint:gosec
	case 4:
		engine.PutUint32(b, uint32(v)) //nolint:gosec
	default:
		engine.PutUint64(b, v)
	}
}
