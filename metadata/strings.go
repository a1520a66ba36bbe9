package metadata

import (
	"fmt"

	"github.com/arloliu/jfr/cursor"
	"github.com/arloliu/jfr/errs"
)

// StringTable holds the strings of one metadata record, in wire order.
// Index 0 is reserved: it denotes "no value", never the empty string.
type StringTable struct {
	strings []string
}

// NewStringTable creates a table from strings in wire order; strings[0] is the reserved slot
// and its content is ignored.
func NewStringTable(strings []string) *StringTable {
	return &StringTable{strings: strings}
}

// Len returns the number of slots, the reserved one included.
func (t *StringTable) Len() int {
	return len(t.strings)
}

// Lookup returns the string at index i. It returns ok=false for index 0 and for indices
// outside the table.
func (t *StringTable) Lookup(i uint64) (string, bool) {
	if i == 0 || i >= uint64(len(t.strings)) {
		return "", false
	}

	return t.strings[i], true
}

// resolve returns the string at index i, mapping 0 to "" and rejecting out-of-range indices.
func (t *StringTable) resolve(i uint64) (string, error) {
	if i == 0 {
		return "", nil
	}
	s, ok := t.Lookup(i)
	if !ok {
		return "", fmt.Errorf("string index %d outside table of %d: %w", i, len(t.strings), errs.ErrCorrupt)
	}

	return s, nil
}

// decodeStringTable reads a varint count followed by count length-prefixed strings.
func decodeStringTable(r *cursor.Cursor) (*StringTable, error) {
	count, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("string table count: %w", err)
	}
	// every entry takes at least its length byte
	if int64(count) > r.Remaining() {
		return nil, fmt.Errorf("string table count %d exceeds %d remaining bytes: %w", count, r.Remaining(), errs.ErrCorrupt)
	}

	strings := make([]string, count)
	for i := range strings {
		n, err := r.Uint32()
		if err != nil {
			return nil, fmt.Errorf("string %d length: %w", i, err)
		}
		b, err := r.ReadExact(int64(n))
		if err != nil {
			return nil, fmt.Errorf("string %d: %w", i, err)
		}
		strings[i] = string(b)
	}

	return &StringTable{strings: strings}, nil
}
