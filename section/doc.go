// Package section defines the fixed binary layout of a JFR chunk header and the section
// boundaries derived from it.
//
// # Chunk Structure
//
// A JFR file is a sequence of self-contained chunks. Each chunk starts with a fixed header that
// locates its two self-framing sections; every offset is relative to the chunk start:
//
//	┌─────────────────────────────────────────────────────────┐
//	│ Header (68 bytes, fixed)                                │
//	├─────────────────────────────────────────────────────────┤
//	│ Event records (variable)                                │
//	│  - size-prefixed, any order                             │
//	├─────────────────────────────────────────────────────────┤
//	│ Constant pool records (at ConstantPoolOffset)           │
//	├─────────────────────────────────────────────────────────┤
//	│ Metadata record (at MetadataOffset)                     │
//	└─────────────────────────────────────────────────────────┘
//
// The two trailing sections may appear in either order. The next chunk starts at
// chunk start + Size.
//
// # Header Format
//
// All fields are big-endian. HeaderLayout is the single authoritative description of the table
// below; parser, encoder and tests all index into it.
//
//	Bytes  | Field                | Type    | Description
//	-------|----------------------|---------|-------------------------------------
//	0-3    | Magic                | [4]byte | "FLR\x00"
//	4-5    | Major                | uint16  | Major format version (1 or 2)
//	6-7    | Minor                | uint16  | Minor format version
//	8-15   | Size                 | uint64  | Chunk size in bytes, header included
//	16-23  | ConstantPoolOffset   | uint64  | Offset of the constant pool section
//	24-31  | MetadataOffset       | uint64  | Offset of the metadata section
//	32-39  | StartNanos           | uint64  | Chunk start, nanoseconds since epoch
//	40-47  | DurationNanos        | uint64  | Chunk duration in nanoseconds
//	48-55  | StartTicks           | uint64  | Tick counter at chunk start
//	56-63  | TicksPerSecond       | uint64  | Tick frequency
//	64-67  | Features             | uint32  | Feature flags (bit 0: compressed integers)
//
// Example:
//
//	h, err := section.ParseHeader(data)
//	if err != nil {
//	    return err
//	}
//	start, end := h.EventRange()
package section
