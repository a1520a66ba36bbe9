// Package errs defines the error and warning taxonomy shared by all decoder packages.
//
// Fatal conditions are reported as wrapped sentinel errors; use errors.Is to classify them:
//
//	if errors.Is(err, errs.ErrTruncated) {
//	    // the source ended inside a record
//	}
//
// Recoverable conditions (ErrUnknownType, ErrUnresolvedConstant and tolerated version
// mismatches) never abort a scan. They are recorded as Warning values on the owning chunk.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when the source ends before an expected read completes.
	ErrTruncated = errors.New("truncated input")
	// ErrInvalidMagic is returned when a chunk does not start with "FLR\x00".
	ErrInvalidMagic = errors.New("invalid chunk magic")
	// ErrUnsupportedVersion is returned for an unsupported major format version.
	ErrUnsupportedVersion = errors.New("unsupported format version")
	// ErrIntegerOverflow is returned when a varint does not fit its destination width.
	ErrIntegerOverflow = errors.New("integer overflow")
	// ErrUnknownType marks a record whose type-id is absent from the type registry.
	ErrUnknownType = errors.New("unknown type")
	// ErrUnresolvedConstant marks a constant reference that is missing or cyclic.
	ErrUnresolvedConstant = errors.New("unresolved constant")
	// ErrCorrupt is returned when an offset or size falls outside its containing section.
	ErrCorrupt = errors.New("corrupt data")
	// ErrEmptyOrInvalidFile is returned when a source yields no chunk at all.
	ErrEmptyOrInvalidFile = errors.New("empty or invalid file")
	// ErrEventsConsumed is returned when a chunk's event sequence is iterated twice.
	ErrEventsConsumed = errors.New("event sequence already consumed")
)

// Warning describes a recoverable decoding condition.
type Warning struct {
	// Err is the sentinel classifying the warning, e.g. ErrUnknownType.
	Err error
	// Offset is the chunk-relative byte offset of the record involved.
	Offset int64
	// TypeID is the type-id involved, if any.
	TypeID uint64
	// ID is the constant-id involved, if any.
	ID uint64
	// Message adds free-form detail.
	Message string
}

// Error implements the error interface so a Warning can be logged or wrapped like any error.
func (w Warning) Error() string {
	if w.Message == "" {
		return fmt.Sprintf("%v (offset=%d type=%d id=%d)", w.Err, w.Offset, w.TypeID, w.ID)
	}

	return fmt.Sprintf("%v: %s (offset=%d type=%d id=%d)", w.Err, w.Message, w.Offset, w.TypeID, w.ID)
}

// Unwrap returns the classifying sentinel.
func (w Warning) Unwrap() error {
	return w.Err
}

// WarnFunc receives recoverable conditions as they are found.
type WarnFunc func(Warning)
