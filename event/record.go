// Package event decodes the event records of a JFR chunk against its type registry and
// resolved constant pools.
//
// Records are self-framing: each starts with its own varint size, so a record whose type
// is unknown can be skipped without understanding its payload:
//
//	┌──────────────┬─────────────┬──────────────────────────────────┐
//	│ size varint  │ type-id     │ fields, in declaration order     │
//	└──────────────┴─────────────┴──────────────────────────────────┘
//
// A Reader walks a byte range one record at a time and never holds more than the current
// record in memory.
package event

import (
	"github.com/arloliu/jfr/metadata"
	"github.com/arloliu/jfr/value"
)

// TimestampField is the field holding an event's start time in ticks.
const TimestampField = "startTime"

// Record is one decoded event.
type Record struct {
	TypeID uint64
	Type   *metadata.Type
	// Offset is the chunk-relative offset of the record.
	Offset int64
	// Size is the declared record size.
	Size int64
	// Timestamp is the startTime field in ticks, or 0 if the type has none.
	Timestamp int64
	// Value is the Object holding all fields.
	Value *value.Value
}

// Name returns the event type name.
func (r *Record) Name() string {
	return r.Type.Name
}

// Fields returns all fields in declaration order.
func (r *Record) Fields() []value.FieldValue {
	return r.Value.Fields()
}

// Field returns the named field, or nil.
func (r *Record) Field(name string) *value.Value {
	return r.Value.Field(name)
}
