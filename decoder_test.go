package jfr

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arloliu/jfr/errs"
	"github.com/arloliu/jfr/event"
	"github.com/arloliu/jfr/internal/fixture"
	"github.com/arloliu/jfr/section"
	"github.com/arloliu/jfr/source"
	"github.com/arloliu/jfr/value"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	idThread  uint64 = 100
	idSample  uint64 = 200
	idUnknown uint64 = 999
)

func schema() *fixture.Metadata {
	return fixture.NewMetadata(append(fixture.Primitives(),
		fixture.Class{ID: idThread, Name: "java.lang.Thread", Fields: []fixture.Field{
			{Name: "javaName", Class: fixture.IDString},
		}},
		fixture.Class{ID: idSample, Name: "jdk.ExecutionSample", SuperType: "jdk.jfr.Event", Fields: []fixture.Field{
			{Name: "startTime", Class: fixture.IDLong},
			{Name: "sampledThread", Class: idThread, ConstantPool: true},
		}},
	)...)
}

func sample(ts int64, thread uint64) []byte {
	return fixture.Event(idSample, fixture.NewPayload().Long(ts).Uvarint(thread).Bytes())
}

// sampleChunk holds an unknown-type record followed by two samples at base+1 and base+2.
func sampleChunk(fx *fixture.Metadata, base int64) []byte {
	threads := fixture.PoolRecord(idThread, 0, fixture.Entry{ID: 1, Value: fixture.NewPayload().Uvarint(fx.String("main")).Bytes()})
	c := &fixture.Chunk{
		Metadata: fx,
		Pools:    [][]byte{threads},
		Events: [][]byte{
			fixture.Event(idUnknown, []byte{1, 2, 3}),
			sample(base+1, 1),
			sample(base+2, 1),
		},
	}

	return c.Bytes()
}

// emptyChunk holds nothing but a root-only metadata record, padded to size.
func emptyChunk(size uint64) []byte {
	md := fixture.NewMetadata()
	md.Root = &fixture.Element{Name: "root"}

	return (&fixture.Chunk{Metadata: md, Size: size}).Bytes()
}

func newDecoder(t *testing.T, data []byte, opts ...Option) *Decoder {
	t.Helper()

	d, err := NewDecoder(source.Bytes(data), opts...)
	require.NoError(t, err)

	return d
}

type scan struct {
	chunks []*Chunk
	errs   []error
}

func collect(seq func(yield func(*Chunk, error) bool)) scan {
	var s scan
	for c, err := range seq {
		if err != nil {
			s.errs = append(s.errs, err)
			continue
		}
		s.chunks = append(s.chunks, c)
	}

	return s
}

func timestamps(t *testing.T, c *Chunk) []int64 {
	t.Helper()

	var ts []int64
	for rec, err := range c.Events(context.Background()) {
		require.NoError(t, err)
		ts = append(ts, rec.Timestamp)
	}

	return ts
}

func TestDecoder_TwoChunksFinalOffset(t *testing.T) {
	data := fixture.File(emptyChunk(100), emptyChunk(150))
	require.Len(t, data, 250)
	d := newDecoder(t, data)

	s := collect(d.Chunks(context.Background()))
	require.Empty(t, s.errs)
	require.Len(t, s.chunks, 2)
	require.Equal(t, int64(250), d.Offset())

	require.Equal(t, 0, s.chunks[0].Index)
	require.Equal(t, int64(0), s.chunks[0].Offset)
	require.Equal(t, int64(100), s.chunks[0].Size())
	require.Equal(t, 1, s.chunks[1].Index)
	require.Equal(t, int64(100), s.chunks[1].Offset)
	require.Equal(t, int64(150), s.chunks[1].Size())

	for _, c := range s.chunks {
		require.Empty(t, timestamps(t, c))
		require.Empty(t, c.Warnings())
		require.Equal(t, 0, c.Pools.Len())
	}
}

func TestDecoder_ChunkContents(t *testing.T) {
	fx := schema()
	data := sampleChunk(fx, 1000)
	d := newDecoder(t, data)

	s := collect(d.Chunks(context.Background()))
	require.Empty(t, s.errs)
	require.Len(t, s.chunks, 1)

	c := s.chunks[0]
	require.Equal(t, uint16(section.MajorV2), c.Header.Major)
	require.Equal(t, len(fixture.Primitives())+2, c.Metadata.Registry.Len())
	require.Equal(t, 1, c.Pools.Constants())
	require.Empty(t, c.Warnings())

	var records []*event.Record
	for rec, err := range c.Events(context.Background()) {
		require.NoError(t, err)
		records = append(records, rec)
	}
	require.Len(t, records, 2)
	require.Equal(t, int64(1001), records[0].Timestamp)
	require.Equal(t, int64(1002), records[1].Timestamp)
	require.Equal(t, "jdk.ExecutionSample", records[0].Name())

	thread := records[1].Field("sampledThread")
	require.Equal(t, value.KindConstantRef, thread.Kind())
	name, _ := thread.Field("javaName").Str()
	require.Equal(t, "main", name)

	warnings := c.Warnings()
	require.Len(t, warnings, 1)
	require.ErrorIs(t, warnings[0], errs.ErrUnknownType)
	require.Equal(t, int64(section.HeaderSize), warnings[0].Offset)
}

func TestDecoder_EventsSingleUse(t *testing.T) {
	d := newDecoder(t, sampleChunk(schema(), 0))

	for c, err := range d.Chunks(context.Background()) {
		require.NoError(t, err)
		require.Len(t, timestamps(t, c), 2)

		var got []error
		for rec, err := range c.Events(context.Background()) {
			require.Nil(t, rec)
			got = append(got, err)
		}
		require.Len(t, got, 1)
		require.ErrorIs(t, got[0], errs.ErrEventsConsumed)
	}
}

func TestDecoder_EmptyInput(t *testing.T) {
	for name, data := range map[string][]byte{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			d := newDecoder(t, data)

			s := collect(d.Chunks(context.Background()))
			require.Empty(t, s.chunks)
			require.Len(t, s.errs, 1)
			require.ErrorIs(t, s.errs[0], errs.ErrEmptyOrInvalidFile)

			_, err := d.Boundaries(context.Background())
			require.ErrorIs(t, err, errs.ErrEmptyOrInvalidFile)
		})
	}
}

func TestDecoder_FramingFailures(t *testing.T) {
	good := emptyChunk(100)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"overshoot", fixture.Patch(emptyChunk(100), section.FieldSize, 120), errs.ErrCorrupt},
		{"invalid magic", []byte("PK\x03\x04 not a recording"), errs.ErrInvalidMagic},
		{"unsupported major", fixture.Patch(emptyChunk(100), section.FieldMajor, 3), errs.ErrUnsupportedVersion},
		{"size below header", fixture.Patch(emptyChunk(100), section.FieldSize, 10), errs.ErrCorrupt},
		{"garbage after chunk", fixture.File(good, []byte("junk")), errs.ErrInvalidMagic},
		{"truncated header after chunk", fixture.File(good, section.Magic[:], []byte{0, 2}), errs.ErrTruncated},
		{"second chunk overshoots", fixture.File(good, fixture.Patch(emptyChunk(100), section.FieldSize, 101)), errs.ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDecoder(t, tt.data)

			s := collect(d.Chunks(context.Background()))
			require.Len(t, s.errs, 1)
			require.ErrorIs(t, s.errs[0], tt.want)
			var ce *ChunkError
			require.False(t, errors.As(s.errs[0], &ce), "framing failures are not chunk errors")

			if bytes.HasPrefix(tt.data, good) {
				require.Len(t, s.chunks, 1, "chunks before the failure are kept")
				require.Equal(t, int64(100), d.Offset())
			} else {
				require.Empty(t, s.chunks)
			}
		})
	}
}

func TestDecoder_CorruptChunkSkipped(t *testing.T) {
	fx := schema()
	outside := sampleChunk(fx, 0)
	outside = fixture.Patch(outside, section.FieldMetadataOffset, uint64(len(outside)+5))
	wrongRecord := fixture.Patch(sampleChunk(fx, 0), section.FieldMetadataOffset, section.HeaderSize)

	for name, bad := range map[string][]byte{"offset outside chunk": outside, "not a metadata record": wrongRecord} {
		t.Run(name, func(t *testing.T) {
			data := fixture.File(bad, sampleChunk(fx, 100))
			d := newDecoder(t, data)

			s := collect(d.Chunks(context.Background()))
			require.Len(t, s.errs, 1)
			require.ErrorIs(t, s.errs[0], errs.ErrCorrupt)

			var ce *ChunkError
			require.ErrorAs(t, s.errs[0], &ce)
			require.Equal(t, 0, ce.Index)
			require.Equal(t, int64(0), ce.Offset)

			require.Len(t, s.chunks, 1)
			require.Equal(t, 1, s.chunks[0].Index)
			require.Equal(t, int64(len(bad)), s.chunks[0].Offset)
			require.Equal(t, []int64{101, 102}, timestamps(t, s.chunks[0]))
			require.Equal(t, int64(len(data)), d.Offset())
		})
	}
}

func TestDecoder_MinorVersionTolerated(t *testing.T) {
	d := newDecoder(t, fixture.Patch(emptyChunk(100), section.FieldMinor, 7))

	s := collect(d.Chunks(context.Background()))
	require.Empty(t, s.errs)
	require.Len(t, s.chunks, 1)

	warnings := s.chunks[0].Warnings()
	require.Len(t, warnings, 1)
	require.ErrorIs(t, warnings[0], errs.ErrUnsupportedVersion)
}

func TestDecoder_EventSectionFailure(t *testing.T) {
	fx := schema()
	// the second sample declares one byte more than its fields need, the third one byte less
	long := fixture.Event(idSample, fixture.NewPayload().Long(2).Uvarint(1).Raw([]byte{0}).Bytes())
	short := fixture.Event(idSample, fixture.NewPayload().Long(3).Bytes())
	data := (&fixture.Chunk{Metadata: fx, Events: [][]byte{sample(1, 0), long, short, sample(4, 0)}}).Bytes()
	d := newDecoder(t, data)

	for c, err := range d.Chunks(context.Background()) {
		require.NoError(t, err)

		var ts []int64
		var failures []error
		for rec, err := range c.Events(context.Background()) {
			if err != nil {
				failures = append(failures, err)
				continue
			}
			ts = append(ts, rec.Timestamp)
		}
		require.Equal(t, []int64{1, 2}, ts)
		require.Len(t, failures, 1)
		require.ErrorIs(t, failures[0], errs.ErrCorrupt)
		var ce *ChunkError
		require.ErrorAs(t, failures[0], &ce)
	}
}

func TestDecoder_Stop(t *testing.T) {
	fx := schema()
	data := fixture.File(sampleChunk(fx, 0), sampleChunk(fx, 10), sampleChunk(fx, 20))

	t.Run("per chunk", func(t *testing.T) {
		var seen []Progress
		d := newDecoder(t, data, WithStop(func(p Progress) bool {
			seen = append(seen, p)
			return p.Chunk == 2
		}))

		s := collect(d.Chunks(context.Background()))
		require.Empty(t, s.errs)
		require.Len(t, s.chunks, 2)
		require.Equal(t, Progress{Chunk: 1, Offset: s.chunks[1].Offset}, seen[1])
	})

	t.Run("per event", func(t *testing.T) {
		d := newDecoder(t, data, WithStop(func(p Progress) bool {
			return p.Chunk == 1 && p.Events == 1
		}))

		var ts []int64
		for rec, err := range d.Events(context.Background()) {
			require.NoError(t, err)
			ts = append(ts, rec.Timestamp)
		}
		require.Equal(t, []int64{1, 2, 11}, ts)
	})
}

func TestDecoder_ContextCanceled(t *testing.T) {
	d := newDecoder(t, fixture.File(emptyChunk(100), emptyChunk(100)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := collect(d.Chunks(ctx))
	require.Empty(t, s.chunks)
	require.Len(t, s.errs, 1)
	require.ErrorIs(t, s.errs[0], context.Canceled)
}

func TestDecoder_NonContiguousSource(t *testing.T) {
	fx := schema()
	data := fixture.File(sampleChunk(fx, 0), sampleChunk(fx, 10))
	d, err := NewDecoder(source.New(bytes.NewReader(data), int64(len(data))))
	require.NoError(t, err)

	var ts []int64
	for rec, err := range d.Events(context.Background()) {
		require.NoError(t, err)
		ts = append(ts, rec.Timestamp)
	}
	require.Equal(t, []int64{1, 2, 11, 12}, ts)
}

func TestOpen(t *testing.T) {
	fx := schema()
	path := filepath.Join(t.TempDir(), "recording.jfr")
	require.NoError(t, os.WriteFile(path, fixture.File(sampleChunk(fx, 0), emptyChunk(100)), 0o600))

	d, err := Open(path)
	require.NoError(t, err)

	s := collect(d.Chunks(context.Background()))
	require.Empty(t, s.errs)
	require.Len(t, s.chunks, 2)
	require.Equal(t, []int64{1, 2}, timestamps(t, s.chunks[0]))

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err = Open(filepath.Join(t.TempDir(), "missing.jfr"))
	require.Error(t, err)
}

func TestDecoder_Logging(t *testing.T) {
	var buf bytes.Buffer
	d := newDecoder(t, sampleChunk(schema(), 0), WithLogger(log.NewLogfmtLogger(&buf)))

	for c, err := range d.Chunks(context.Background()) {
		require.NoError(t, err)
		require.Len(t, timestamps(t, c), 2)
	}

	out := buf.String()
	require.Contains(t, out, "level=debug")
	require.Contains(t, out, "level=warn")
	require.Contains(t, out, "type_id=999")
}

func TestNewDecoder_InvalidOptions(t *testing.T) {
	for name, opt := range map[string]Option{
		"nil logger":      WithLogger(nil),
		"zero workers":    WithWorkers(0),
		"zero depth":      WithMaxDepth(0),
		"negative arrays": WithMaxArrayLength(-1),
		"zero record":     WithMaxRecordSize(0),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewDecoder(source.Bytes(nil), opt)
			require.Error(t, err)
		})
	}
}

func TestDecoder_Limits(t *testing.T) {
	fx := schema()
	data := sampleChunk(fx, 0)

	t.Run("metadata depth", func(t *testing.T) {
		d := newDecoder(t, data, WithMaxDepth(2))
		s := collect(d.Chunks(context.Background()))
		require.Empty(t, s.chunks)
		require.Len(t, s.errs, 1)
		require.ErrorIs(t, s.errs[0], errs.ErrCorrupt)
	})

	t.Run("record size", func(t *testing.T) {
		d := newDecoder(t, data, WithMaxRecordSize(8))
		s := collect(d.Chunks(context.Background()))
		require.Empty(t, s.chunks)
		var ce *ChunkError
		require.ErrorAs(t, s.errs[0], &ce)
	})
}
