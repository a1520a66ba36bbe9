// Package metadata decodes the self-describing schema record of a JFR chunk.
//
// The metadata record carries a string table and a recursive element tree. Elements named
// "class" declare the chunk's types; their "field" children declare the fields every
// constant-pool entry and event of that type is encoded with:
//
//	root
//	├── metadata
//	│   ├── class  id=100 name=jdk.ExecutionSample superType=jdk.jfr.Event
//	│   │   ├── field name=startTime class=101
//	│   │   └── field name=sampledThread class=102 constantPool=true
//	│   ├── class  id=101 name=long
//	│   └── ...
//	└── region ...
//
// Every other element is kept in the tree but contributes nothing to the Registry.
package metadata

import (
	"fmt"

	"github.com/arloliu/jfr/cursor"
	"github.com/arloliu/jfr/errs"
	"github.com/arloliu/jfr/internal/hash"
	"github.com/arloliu/jfr/section"
)

const (
	// DefaultMaxDepth bounds element tree nesting.
	DefaultMaxDepth = 64
	// DefaultMaxRecordSize bounds the size of the metadata record.
	DefaultMaxRecordSize = 1 << 28 // 256MiB
)

// Limits bounds the resources a metadata record may claim. Zero fields take their defaults.
type Limits struct {
	MaxDepth      int
	MaxRecordSize int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	if l.MaxRecordSize <= 0 {
		l.MaxRecordSize = DefaultMaxRecordSize
	}

	return l
}

// Metadata is one decoded metadata record.
type Metadata struct {
	// Offset is the chunk-relative offset of the record.
	Offset int64
	// Size is the declared record size.
	Size int64
	// StartTicks and DurationTicks are the record's own timestamp pair.
	StartTicks    int64
	DurationTicks int64
	// ID identifies the metadata revision.
	ID int64
	// Fingerprint is the xxHash64 of the record bytes; equal fingerprints mean equal schemas.
	Fingerprint uint64

	Strings  *StringTable
	Root     *Element
	Registry *Registry
}

// Decode reads the metadata record at chunk-relative offset off.
//
// Parameters:
//   - cur: Cursor over the whole chunk
//   - off: Chunk-relative record offset, usually Header.MetadataOffset
//   - limits: Resource limits
//
// Returns:
//   - *Metadata: Decoded record with its Registry
//   - error: ErrCorrupt if the record does not fit the chunk or is malformed, ErrTruncated if
//     its content ends early
func Decode(cur *cursor.Cursor, off int64, limits Limits) (*Metadata, error) {
	limits = limits.withDefaults()

	if err := cur.SeekTo(off); err != nil {
		return nil, fmt.Errorf("metadata record: %w", err)
	}
	size, err := cur.Uvarint()
	if err != nil {
		return nil, fmt.Errorf("metadata record size: %w", err)
	}
	if size > uint64(cur.Len()-off) || size <= uint64(cur.Pos()-off) { //nolint:gosec
		return nil, fmt.Errorf("metadata record size %d at offset %d outside chunk (%d): %w", size, off, cur.Len(), errs.ErrCorrupt)
	}
	if int64(size) > limits.MaxRecordSize { //nolint:gosec
		return nil, fmt.Errorf("metadata record size %d exceeds limit %d: %w", size, limits.MaxRecordSize, errs.ErrCorrupt)
	}

	rec, err := cur.Slice(off, int64(size)) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("metadata record: %w", err)
	}

	md, err := decodeRecord(rec, limits)
	if err != nil {
		return nil, fmt.Errorf("metadata record at offset %d: %w", off, err)
	}
	md.Offset = off

	return md, nil
}

func decodeRecord(rec []byte, limits Limits) (*Metadata, error) {
	r := cursor.FromBytes(rec)
	md := &Metadata{
		Size:        int64(len(rec)),
		Fingerprint: hash.Fingerprint(rec),
	}

	if _, err := r.Uvarint(); err != nil {
		return nil, err
	}
	typeID, err := r.Uvarint()
	if err != nil {
		return nil, fmt.Errorf("type-id: %w", err)
	}
	if typeID != section.MetadataTypeID {
		return nil, fmt.Errorf("type-id %d, expected %d: %w", typeID, section.MetadataTypeID, errs.ErrCorrupt)
	}
	if md.StartTicks, err = r.Varint(); err != nil {
		return nil, fmt.Errorf("start time: %w", err)
	}
	if md.DurationTicks, err = r.Varint(); err != nil {
		return nil, fmt.Errorf("duration: %w", err)
	}
	if md.ID, err = r.Varint(); err != nil {
		return nil, fmt.Errorf("metadata id: %w", err)
	}

	if md.Strings, err = decodeStringTable(r); err != nil {
		return nil, err
	}
	if md.Root, err = decodeElementTree(r, md.Strings, limits.MaxDepth); err != nil {
		return nil, err
	}
	if md.Registry, err = BuildRegistry(md.Root); err != nil {
		return nil, err
	}

	return md, nil
}
