package jfr

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/go-kit/log/level"

	"github.com/arloliu/jfr/cpool"
	"github.com/arloliu/jfr/cursor"
	"github.com/arloliu/jfr/errs"
	"github.com/arloliu/jfr/event"
	"github.com/arloliu/jfr/internal/fielddec"
	"github.com/arloliu/jfr/internal/options"
	"github.com/arloliu/jfr/metadata"
	"github.com/arloliu/jfr/section"
	"github.com/arloliu/jfr/source"
)

// Boundary is the byte range of one chunk, found from its header alone.
type Boundary struct {
	Index  int
	Offset int64
	Header section.Header
}

// End returns the absolute offset right after the chunk.
func (b Boundary) End() int64 {
	return b.Offset + int64(b.Header.Size) //nolint:gosec
}

// ChunkError reports a chunk whose body could not be decoded. The chunks before and after
// it are unaffected.
type ChunkError struct {
	Index  int
	Offset int64
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d at offset %d: %v", e.Index, e.Offset, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Decoder reads the chunks of one recording. A Decoder runs one scan at a time.
type Decoder struct {
	src    source.Source
	cur    *cursor.Cursor
	cfg    *config
	offset int64
	closer io.Closer
}

// NewDecoder creates a decoder over src.
//
// Parameters:
//   - src: Recording bytes; must not change while the decoder is in use
//   - opts: Optional configuration (WithLogger, WithStop, WithWorkers, limits)
//
// Returns:
//   - *Decoder: Decoder positioned at the first chunk
//   - error: An error if an option is invalid
func NewDecoder(src source.Source, opts ...Option) (*Decoder, error) {
	cfg := newConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return &Decoder{src: src, cur: cursor.New(src), cfg: cfg}, nil
}

// Open memory-maps the recording at path. Close the decoder to unmap it.
func Open(path string, opts ...Option) (*Decoder, error) {
	f, err := source.Open(path)
	if err != nil {
		return nil, err
	}

	d, err := NewDecoder(f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	d.closer = f

	return d, nil
}

// Close releases the source opened by Open. It is a no-op for decoders created by NewDecoder.
func (d *Decoder) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil

	return err
}

// Offset returns the absolute offset reached by the last scan: the end of the last chunk
// framed, which equals the source length after a complete scan.
func (d *Decoder) Offset() int64 {
	return d.offset
}

// Chunks decodes chunks sequentially in file order.
//
// Each chunk's metadata and constant pools are decoded before the chunk is yielded; its
// events are read lazily through Chunk.Events. A body failure is yielded as *ChunkError and
// the scan continues at the next chunk. A framing failure is yielded last and ends the scan,
// as does a source without any chunk (ErrEmptyOrInvalidFile).
func (d *Decoder) Chunks(ctx context.Context) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		d.offset = 0
		for index := 0; ; index++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if d.offset >= d.src.Size() {
				if index == 0 {
					yield(nil, fmt.Errorf("no chunk in %d bytes: %w", d.src.Size(), errs.ErrEmptyOrInvalidFile))
				}
				return
			}
			if d.cfg.stopped(Progress{Chunk: index, Offset: d.offset}) {
				return
			}

			b, err := d.frame(index, d.offset)
			if err != nil {
				yield(nil, err)
				return
			}
			d.offset = b.End()

			chunk, err := d.decodeChunk(b)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(chunk, nil) || chunk.stopped {
				return
			}
		}
	}
}

// Boundaries reads every chunk header without decoding any body.
//
// Returns:
//   - []Boundary: Chunks framed before any failure, in file order
//   - error: The framing failure, ErrEmptyOrInvalidFile for a source without chunks, or the
//     context error
func (d *Decoder) Boundaries(ctx context.Context) ([]Boundary, error) {
	var bounds []Boundary

	d.offset = 0
	for index := 0; d.offset < d.src.Size(); index++ {
		if err := ctx.Err(); err != nil {
			return bounds, err
		}
		b, err := d.frame(index, d.offset)
		if err != nil {
			return bounds, err
		}
		bounds = append(bounds, b)
		d.offset = b.End()
	}
	if len(bounds) == 0 {
		return nil, fmt.Errorf("no chunk in %d bytes: %w", d.src.Size(), errs.ErrEmptyOrInvalidFile)
	}

	return bounds, nil
}

// Events flattens the events of all chunks in file order. Chunk failures are yielded as
// errors and iteration continues with the next chunk.
func (d *Decoder) Events(ctx context.Context) iter.Seq2[*event.Record, error] {
	return func(yield func(*event.Record, error) bool) {
		for chunk, err := range d.Chunks(ctx) {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			for rec, err := range chunk.Events(ctx) {
				if !yield(rec, err) {
					return
				}
			}
			if chunk.stopped {
				return
			}
		}
	}
}

// frame parses the chunk header at off and checks the chunk ends inside the source.
func (d *Decoder) frame(index int, off int64) (Boundary, error) {
	n := min(int64(section.HeaderSize), d.src.Size()-off)
	data, err := d.cur.Slice(off, n)
	if err != nil {
		return Boundary{}, fmt.Errorf("chunk %d header at offset %d: %w", index, off, err)
	}

	h, err := section.ParseHeader(data)
	if err != nil {
		return Boundary{}, fmt.Errorf("chunk %d header at offset %d: %w", index, off, err)
	}
	if h.Size > uint64(d.src.Size()-off) { //nolint:gosec
		return Boundary{}, fmt.Errorf("chunk %d at offset %d: size %d overshoots source length %d: %w",
			index, off, h.Size, d.src.Size(), errs.ErrCorrupt)
	}

	return Boundary{Index: index, Offset: off, Header: h}, nil
}

// decodeChunk decodes the metadata and constant pools of one framed chunk. It only reads
// the chunk's own byte range, so chunks can be decoded concurrently.
func (d *Decoder) decodeChunk(b Boundary) (*Chunk, error) {
	logger := d.cfg.logger
	h := b.Header
	level.Debug(logger).Log("msg", "decoding chunk", "chunk", b.Index, "offset", b.Offset, "size", h.Size,
		"version", fmt.Sprintf("%d.%d", h.Major, h.Minor))

	c := &Chunk{Index: b.Index, Offset: b.Offset, Header: h, cfg: d.cfg}
	fail := func(err error) (*Chunk, error) {
		level.Warn(logger).Log("msg", "chunk skipped", "chunk", b.Index, "offset", b.Offset, "err", err)
		return nil, &ChunkError{Index: b.Index, Offset: b.Offset, Err: err}
	}

	if !h.MinorSupported() {
		c.warn(errs.Warning{
			Err:     errs.ErrUnsupportedVersion,
			Message: fmt.Sprintf("minor version %d.%d decoded best-effort", h.Major, h.Minor),
		})
	}
	if err := h.Validate(); err != nil {
		return fail(err)
	}

	src, err := source.Section(d.src, b.Offset, int64(h.Size)) //nolint:gosec
	if err != nil {
		return fail(err)
	}
	cur := cursor.New(src)

	c.Metadata, err = metadata.Decode(cur, int64(h.MetadataOffset), metadata.Limits{ //nolint:gosec
		MaxDepth:      d.cfg.maxDepth,
		MaxRecordSize: d.cfg.maxRecordSize,
	})
	if err != nil {
		return fail(err)
	}

	fctx := fielddec.NewContext(c.Metadata)
	if d.cfg.maxDepth > 0 {
		fctx.MaxDepth = d.cfg.maxDepth
	}
	if d.cfg.maxArrayLength > 0 {
		fctx.MaxArrayLength = d.cfg.maxArrayLength
	}

	start, end := h.ConstantPoolRange()
	c.Pools, err = cpool.Decode(cur, start, end, cpool.Config{
		Context:       fctx,
		MaxRecordSize: d.cfg.maxRecordSize,
		Warn:          c.warn,
	})
	if err != nil {
		return fail(err)
	}

	c.cur = cur
	c.dec = event.NewDecoder(fctx, c.Pools, c.warn)
	level.Debug(logger).Log("msg", "chunk decoded", "chunk", b.Index, "types", c.Metadata.Registry.Len(),
		"pools", c.Pools.Len(), "constants", c.Pools.Constants(), "warnings", len(c.warnings))

	return c, nil
}
