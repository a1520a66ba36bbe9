package event

import (
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/jfr/cpool"
	"github.com/arloliu/jfr/cursor"
	"github.com/arloliu/jfr/errs"
	"github.com/arloliu/jfr/internal/fielddec"
	"github.com/arloliu/jfr/internal/pool"
	"github.com/arloliu/jfr/section"
	"github.com/arloliu/jfr/value"
)

// DefaultMaxRecordSize bounds the size of one event record.
const DefaultMaxRecordSize = 1 << 26 // 64MiB

// Decoder decodes single event records of one chunk. It is not safe for concurrent use.
type Decoder struct {
	ctx   *fielddec.Context
	pools *cpool.Pools
	warn  errs.WarnFunc
	off   int64 // offset of the record being decoded
}

// NewDecoder creates a decoder resolving constant-pool fields eagerly against pools.
//
// Parameters:
//   - ctx: The chunk's decoding context
//   - pools: The chunk's fully resolved constant pools
//   - warn: Receives recoverable conditions; may be nil
func NewDecoder(ctx *fielddec.Context, pools *cpool.Pools, warn errs.WarnFunc) *Decoder {
	d := &Decoder{pools: pools, warn: warn}
	d.ctx = ctx.WithResolve(d.resolve)

	return d
}

func (d *Decoder) resolve(typeID, id uint64) *value.Value {
	if v, ok := d.pools.Lookup(typeID, id); ok {
		return value.Ref(typeID, id, v)
	}
	if id == 0 {
		return value.Null()
	}
	d.emit(errs.Warning{Err: errs.ErrUnresolvedConstant, Offset: d.off, TypeID: typeID, ID: id, Message: "event field refers to missing constant"})

	return value.Unresolved(typeID, id)
}

// DecodeRecord decodes one complete record buffer found at chunk-relative offset off.
//
// Marker records (metadata and constant pool) and records of unknown type are skipped;
// DecodeRecord then returns a nil Record and a nil error. Unknown types are reported as
// ErrUnknownType warnings. Bytes left over after the last field are ignored.
//
// Returns:
//   - *Record: Decoded event, or nil if the record was skipped
//   - error: ErrCorrupt if the fields overrun the record, or a field is malformed
func (d *Decoder) DecodeRecord(rec []byte, off int64) (*Record, error) {
	d.off = off

	r := cursor.FromBytes(rec)
	if _, err := r.Uvarint(); err != nil {
		return nil, fmt.Errorf("event record at offset %d: %w", off, err)
	}
	typeID, err := r.Uvarint()
	if err != nil {
		return nil, fmt.Errorf("event record at offset %d type-id: %w", off, err)
	}
	if typeID == section.MetadataTypeID || typeID == section.ConstantPoolTypeID {
		return nil, nil
	}

	t, ok := d.ctx.Registry.Lookup(typeID)
	if !ok {
		d.emit(errs.Warning{Err: errs.ErrUnknownType, Offset: off, TypeID: typeID, Message: "event record skipped"})
		return nil, nil
	}

	v, err := d.ctx.DecodeObject(r, t)
	switch {
	case errors.Is(err, errs.ErrUnknownType):
		d.emit(errs.Warning{Err: errs.ErrUnknownType, Offset: off, TypeID: typeID, Message: err.Error()})
		return nil, nil
	case errors.Is(err, errs.ErrTruncated):
		return nil, fmt.Errorf("event record at offset %d overruns its size %d: %w: %w", off, len(rec), errs.ErrCorrupt, err)
	case err != nil:
		return nil, fmt.Errorf("event record at offset %d: %w", off, err)
	}

	ts, _ := v.Field(TimestampField).Int()

	return &Record{
		TypeID:    typeID,
		Type:      t,
		Offset:    off,
		Size:      int64(len(rec)),
		Timestamp: ts,
		Value:     v,
	}, nil
}

func (d *Decoder) emit(w errs.Warning) {
	if d.warn != nil {
		d.warn(w)
	}
}

// Reader reads the event records of a byte range lazily, in order.
type Reader struct {
	cur           *cursor.Cursor
	dec           *Decoder
	pos, end      int64
	maxRecordSize int64
	buf           *pool.ByteBuffer
	err           error
}

// NewReader creates a reader over the chunk-relative range [start, end) of cur.
//
// Parameters:
//   - cur: Cursor over the whole chunk; the reader owns its position from now on
//   - start, end: Event range, see section.Header.EventRange
//   - dec: Record decoder of the chunk
//   - maxRecordSize: Upper bound of one record; zero means DefaultMaxRecordSize
//
// Returns:
//   - *Reader: Reader positioned at start
//   - error: ErrCorrupt if the range is not inside the chunk
func NewReader(cur *cursor.Cursor, start, end int64, dec *Decoder, maxRecordSize int64) (*Reader, error) {
	if start < 0 || start > end || end > cur.Len() {
		return nil, fmt.Errorf("event range [%d, %d) outside chunk (%d): %w", start, end, cur.Len(), errs.ErrCorrupt)
	}
	if maxRecordSize <= 0 {
		maxRecordSize = DefaultMaxRecordSize
	}

	return &Reader{
		cur:           cur,
		dec:           dec,
		pos:           start,
		end:           end,
		maxRecordSize: maxRecordSize,
	}, nil
}

// Offset returns the chunk-relative offset of the next record.
func (r *Reader) Offset() int64 {
	return r.pos
}

// Next returns the next decodable record, skipping markers and unknown types.
//
// Returns:
//   - *Record: Next event
//   - error: io.EOF at the end of the range; any other error is fatal and returned by every
//     later call
func (r *Reader) Next() (*Record, error) {
	if r.err != nil {
		return nil, r.err
	}

	for r.pos < r.end {
		rec, err := r.next()
		if err != nil {
			r.fail(err)
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
	r.fail(io.EOF)

	return nil, io.EOF
}

func (r *Reader) next() (*Record, error) {
	start := r.pos
	if err := r.cur.SeekTo(start); err != nil {
		return nil, err
	}
	size, err := r.cur.Uvarint()
	if err != nil {
		return nil, fmt.Errorf("event record size at offset %d: %w", start, err)
	}
	if size <= uint64(r.cur.Pos()-start) || size > uint64(r.end-start) { //nolint:gosec
		return nil, fmt.Errorf("event record at offset %d: size %d outside range [%d, %d): %w", start, size, start, r.end, errs.ErrCorrupt)
	}
	if int64(size) > r.maxRecordSize { //nolint:gosec
		return nil, fmt.Errorf("event record at offset %d: size %d exceeds limit %d: %w", start, size, r.maxRecordSize, errs.ErrCorrupt)
	}

	if r.buf == nil {
		r.buf = pool.GetRecordBuffer()
	}
	b, err := r.cur.SliceInto(r.buf, start, int64(size)) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("event record at offset %d: %w", start, err)
	}
	r.pos += int64(size) //nolint:gosec

	return r.dec.DecodeRecord(b, start)
}

func (r *Reader) fail(err error) {
	r.err = err
	r.Close()
}

// Close releases the reader's record buffer. Next returns io.EOF afterwards.
func (r *Reader) Close() {
	if r.err == nil {
		r.err = io.EOF
	}
	if r.buf != nil {
		pool.PutRecordBuffer(r.buf)
		r.buf = nil
	}
}
