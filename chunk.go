package jfr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"sync/atomic"

	"github.com/go-kit/log/level"

	"github.com/arloliu/jfr/cpool"
	"github.com/arloliu/jfr/cursor"
	"github.com/arloliu/jfr/errs"
	"github.com/arloliu/jfr/event"
	"github.com/arloliu/jfr/metadata"
	"github.com/arloliu/jfr/section"
)

// Chunk is one decoded chunk. Its metadata and constant pools are fully resolved; its events
// are read on demand.
//
// A Chunk is not safe for concurrent use.
type Chunk struct {
	// Index is the position of the chunk in the file, starting at 0.
	Index int
	// Offset is the absolute file offset of the chunk.
	Offset   int64
	Header   section.Header
	Metadata *metadata.Metadata
	Pools    *cpool.Pools

	cfg      *config
	cur      *cursor.Cursor
	dec      *event.Decoder
	warnings []errs.Warning
	consumed atomic.Bool
	stopped  bool
}

// Size returns the declared chunk size.
func (c *Chunk) Size() int64 {
	return int64(c.Header.Size) //nolint:gosec
}

// Warnings returns the recoverable conditions found so far: while framing and resolving
// constants, and while reading events.
func (c *Chunk) Warnings() []errs.Warning {
	return slices.Clone(c.warnings)
}

// Events reads the chunk's event records lazily in file order. Metadata and constant pool
// records inside the event range are skipped, as are records of unknown type (reported as
// warnings).
//
// The sequence can be iterated once; later iterations yield ErrEventsConsumed. A decoding
// failure is yielded as *ChunkError and ends the sequence.
func (c *Chunk) Events(ctx context.Context) iter.Seq2[*event.Record, error] {
	return func(yield func(*event.Record, error) bool) {
		if !c.consumed.CompareAndSwap(false, true) {
			yield(nil, fmt.Errorf("chunk %d: %w", c.Index, errs.ErrEventsConsumed))
			return
		}

		start, end := c.Header.EventRange()
		r, err := event.NewReader(c.cur, start, end, c.dec, c.cfg.maxRecordSize)
		if err != nil {
			yield(nil, c.fail(err))
			return
		}
		defer r.Close()

		for n := 0; ; n++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if c.cfg.stopped(Progress{Chunk: c.Index, Offset: c.Offset + r.Offset(), Events: n}) {
				c.stopped = true
				return
			}

			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, c.fail(err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (c *Chunk) fail(err error) error {
	level.Warn(c.cfg.logger).Log("msg", "event section aborted", "chunk", c.Index, "offset", c.Offset, "err", err)
	return &ChunkError{Index: c.Index, Offset: c.Offset, Err: err}
}

func (c *Chunk) warn(w errs.Warning) {
	c.warnings = append(c.warnings, w)
	level.Warn(c.cfg.logger).Log("msg", w.Message, "chunk", c.Index, "offset", w.Offset, "type_id", w.TypeID, "err", w.Err)
}
