package section

// Magic is the 4-byte signature every chunk starts with.
var Magic = [4]byte{'F', 'L', 'R', 0}

const (
	// HeaderSize is the chunk header length for format majors 1 and 2:
	// 4 (magic) + 2 + 2 (version) + 7*8 (u64 fields) + 4 (features).
	HeaderSize = 68

	MajorV1 = 1 // JDK 9 and 10
	MajorV2 = 2 // JDK 11 onwards

	// MaxKnownMinorV2 is the highest minor version of major 2 with a known layout.
	MaxKnownMinorV2 = 1
)

// Reserved record type-ids.
const (
	MetadataTypeID     uint64 = 0 // type-id of the metadata record
	ConstantPoolTypeID uint64 = 1 // type-id of constant pool (checkpoint) records
)

// Feature flag bits.
const (
	FeatureCompressedIntegers uint32 = 0x0001 // integers are varint encoded
)
