package section

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/arloliu/jfr/endian"
	"github.com/arloliu/jfr/errs"
)

// Header represents the fixed-size header at the start of every chunk.
type Header struct {
	// Magic must equal section.Magic.
	Magic [4]byte // byte offset 0-3
	// Major is the major format version.
	Major uint16 // byte offset 4-5
	// Minor is the minor format version.
	Minor uint16 // byte offset 6-7
	// Size is the chunk size in bytes, header included.
	Size uint64 // byte offset 8-15
	// ConstantPoolOffset locates the constant pool section, relative to the chunk start.
	ConstantPoolOffset uint64 // byte offset 16-23
	// MetadataOffset locates the metadata record, relative to the chunk start.
	MetadataOffset uint64 // byte offset 24-31
	// StartNanos is the chunk start time in nanoseconds since the Unix epoch.
	StartNanos uint64 // byte offset 32-39
	// DurationNanos is the chunk duration in nanoseconds.
	DurationNanos uint64 // byte offset 40-47
	// StartTicks is the tick counter value at chunk start.
	StartTicks uint64 // byte offset 48-55
	// TicksPerSecond is the tick counter frequency.
	TicksPerSecond uint64 // byte offset 56-63
	// Features holds feature flag bits.
	Features uint32 // byte offset 64-67
}

// Parse parses the header from a byte slice.
//
// Parameters:
//   - data: Byte slice starting at the chunk start (at least HeaderSize bytes)
//
// Returns:
//   - error: ErrInvalidMagic, ErrTruncated, ErrUnsupportedVersion, or ErrCorrupt when the
//     declared size is smaller than the header itself
func (h *Header) Parse(data []byte) error {
	magic := HeaderLayout[FieldMagic]
	n := min(len(data), magic.Width)
	for i := 0; i < n; i++ {
		if data[i] != Magic[i] {
			return fmt.Errorf("unexpected magic %q, expected %q: %w", data[:n], Magic[:], errs.ErrInvalidMagic)
		}
	}
	if len(data) < HeaderSize {
		return fmt.Errorf("header needs %d bytes, %d available: %w", HeaderSize, len(data), errs.ErrTruncated)
	}

	engine := endian.Wire()
	copy(h.Magic[:], data[magic.Offset:magic.End()])
	h.Major = uint16(readField(engine, data, FieldMajor)) //nolint:gosec
	h.Minor = uint16(readField(engine, data, FieldMinor)) //nolint:gosec
	h.Size = readField(engine, data, FieldSize)
	h.ConstantPoolOffset = readField(engine, data, FieldConstantPoolOffset)
	h.MetadataOffset = readField(engine, data, FieldMetadataOffset)
	h.StartNanos = readField(engine, data, FieldStartNanos)
	h.DurationNanos = readField(engine, data, FieldDurationNanos)
	h.StartTicks = readField(engine, data, FieldStartTicks)
	h.TicksPerSecond = readField(engine, data, FieldTicksPerSecond)
	h.Features = uint32(readField(engine, data, FieldFeatures)) //nolint:gosec

	if h.Major != MajorV1 && h.Major != MajorV2 {
		return fmt.Errorf("format version %d.%d: %w", h.Major, h.Minor, errs.ErrUnsupportedVersion)
	}
	if h.Size < HeaderSize {
		return fmt.Errorf("chunk size %d smaller than header size %d: %w", h.Size, HeaderSize, errs.ErrCorrupt)
	}

	return nil
}

// ParseHeader parses a Header from a byte slice.
//
// Parameters:
//   - data: Byte slice containing the header (must be at least HeaderSize bytes)
//
// Returns:
//   - Header: Parsed header struct
//   - error: See Header.Parse
func ParseHeader(data []byte) (Header, error) {
	h := Header{}
	if err := h.Parse(data); err != nil {
		return Header{}, err
	}

	return h, nil
}

// Validate checks that both section offsets lie inside the chunk body.
//
// A header that parses but fails validation still frames its chunk correctly, so a file
// reader can skip the chunk using Size.
//
// Returns:
//   - error: ErrCorrupt if an offset is outside [HeaderSize, Size)
func (h *Header) Validate() error {
	if h.MetadataOffset < HeaderSize || h.MetadataOffset >= h.Size {
		return fmt.Errorf("metadata offset %d outside chunk body [%d, %d): %w", h.MetadataOffset, HeaderSize, h.Size, errs.ErrCorrupt)
	}
	if h.ConstantPoolOffset < HeaderSize || h.ConstantPoolOffset >= h.Size {
		return fmt.Errorf("constant pool offset %d outside chunk body [%d, %d): %w", h.ConstantPoolOffset, HeaderSize, h.Size, errs.ErrCorrupt)
	}

	return nil
}

// Bytes serializes the Header into a HeaderSize byte slice.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)

	engine := endian.Wire()
	magic := HeaderLayout[FieldMagic]
	copy(b[magic.Offset:magic.End()], h.Magic[:])
	putField(engine, b, FieldMajor, uint64(h.Major))
	putField(engine, b, FieldMinor, uint64(h.Minor))
	putField(engine, b, FieldSize, h.Size)
	putField(engine, b, FieldConstantPoolOffset, h.ConstantPoolOffset)
	putField(engine, b, FieldMetadataOffset, h.MetadataOffset)
	putField(engine, b, FieldStartNanos, h.StartNanos)
	putField(engine, b, FieldDurationNanos, h.DurationNanos)
	putField(engine, b, FieldStartTicks, h.StartTicks)
	putField(engine, b, FieldTicksPerSecond, h.TicksPerSecond)
	putField(engine, b, FieldFeatures, uint64(h.Features))

	return b
}

// MinorSupported reports whether the minor version has a known layout.
// Unknown higher minors under a supported major are decoded best-effort.
func (h *Header) MinorSupported() bool {
	if h.Major == MajorV1 {
		return h.Minor == 0
	}

	return h.Minor <= MaxKnownMinorV2
}

// EventRange returns the chunk-relative byte range holding event records: everything between
// the header and the first of the two trailing sections.
func (h *Header) EventRange() (start, end int64) {
	return HeaderSize, int64(min(h.MetadataOffset, h.ConstantPoolOffset)) //nolint:gosec
}

// ConstantPoolRange returns the chunk-relative byte range of the constant pool section. It ends
// at the metadata record when that follows, otherwise at the end of the chunk. Equal offsets
// mean an empty section.
func (h *Header) ConstantPoolRange() (start, end int64) {
	start = int64(h.ConstantPoolOffset) //nolint:gosec
	if h.MetadataOffset >= h.ConstantPoolOffset {
		return start, int64(h.MetadataOffset) //nolint:gosec
	}

	return start, int64(h.Size) //nolint:gosec
}

// StartTime returns the chunk start as a time.Time.
func (h *Header) StartTime() time.Time {
	return time.Unix(0, int64(h.StartNanos)).UTC() //nolint:gosec
}

// Duration returns the chunk duration.
func (h *Header) Duration() time.Duration {
	return time.Duration(h.DurationNanos) //nolint:gosec
}

// CompressedIntegers reports whether the chunk declares varint-encoded integers.
func (h *Header) CompressedIntegers() bool {
	return h.Features&FeatureCompressedIntegers != 0
}

// TicksToDuration converts a tick delta into wall time using TicksPerSecond.
func (h *Header) TicksToDuration(ticks int64) time.Duration {
	if h.TicksPerSecond == 0 {
		return 0
	}

	mag := uint64(ticks) //nolint:gosec
	if ticks < 0 {
		mag = -mag
	}

	// the remainder times 1e9 can exceed 64 bits for fast tick counters
	tps := h.TicksPerSecond
	hi, lo := bits.Mul64(mag%tps, uint64(time.Second))
	frac, _ := bits.Div64(hi, lo, tps)
	d := time.Duration(mag/tps)*time.Second + time.Duration(frac) //nolint:gosec
	if ticks < 0 {
		return -d
	}

	return d
}

// TicksToTime converts an absolute tick value into wall-clock time.
func (h *Header) TicksToTime(ticks int64) time.Time {
	return h.StartTime().Add(h.TicksToDuration(ticks - int64(h.StartTicks))) //nolint:gosec
}
