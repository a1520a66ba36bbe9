// Package fixture builds synthetic JFR files for tests.
//
// A typical chunk with one event type:
//
//	md := fixture.NewMetadata(
//	    fixture.Class{ID: 20, Name: "long"},
//	    fixture.Class{ID: 100, Name: "test.Sample", Fields: []fixture.Field{{Name: "startTime", Class: 20}}},
//	)
//	chunk := fixture.Chunk{
//	    Metadata: md,
//	    Events:   [][]byte{fixture.Event(100, fixture.NewPayload().Long(42).Bytes())},
//	}
//	data := fixture.File(chunk.Bytes())
package fixture

import (
	"bytes"
	"math"
	"strconv"

	"github.com/arloliu/jfr/endian"
	"github.com/arloliu/jfr/internal/pool"
	"github.com/arloliu/jfr/section"
	"github.com/arloliu/jfr/varint"
)

// Strings interns the strings of one metadata record. Index 0 is the reserved slot.
type Strings struct {
	list  []string
	index map[string]uint64
}

// NewStrings returns a table holding only the reserved slot.
func NewStrings() *Strings {
	return &Strings{list: []string{""}, index: make(map[string]uint64)}
}

// Index returns the index of s, adding it if needed.
func (s *Strings) Index(str string) uint64 {
	if i, ok := s.index[str]; ok {
		return i
	}
	i := uint64(len(s.list))
	s.list = append(s.list, str)
	s.index[str] = i

	return i
}

// List returns the strings in wire order.
func (s *Strings) List() []string {
	return s.list
}

// Attr is one element attribute.
type Attr struct {
	Key   string
	Value string
}

// Element is one node of a metadata element tree.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element
}

// Field declares one field of a Class.
type Field struct {
	Name         string
	Class        uint64
	Array        bool
	ConstantPool bool
}

// Class declares one type.
type Class struct {
	ID        uint64
	Name      string
	SuperType string
	Simple    bool
	Fields    []Field
}

// Element returns the "class" element declaring c.
func (c Class) Element() *Element {
	e := &Element{Name: "class", Attrs: []Attr{
		{Key: "id", Value: strconv.FormatUint(c.ID, 10)},
		{Key: "name", Value: c.Name},
	}}
	if c.SuperType != "" {
		e.Attrs = append(e.Attrs, Attr{Key: "superType", Value: c.SuperType})
	}
	if c.Simple {
		e.Attrs = append(e.Attrs, Attr{Key: "simpleType", Value: "true"})
	}
	for _, f := range c.Fields {
		fe := &Element{Name: "field", Attrs: []Attr{
			{Key: "name", Value: f.Name},
			{Key: "class", Value: strconv.FormatUint(f.Class, 10)},
		}}
		if f.Array {
			fe.Attrs = append(fe.Attrs, Attr{Key: "dimension", Value: "1"})
		}
		if f.ConstantPool {
			fe.Attrs = append(fe.Attrs, Attr{Key: "constantPool", Value: "true"})
		}
		e.Children = append(e.Children, fe)
	}

	return e
}

// Primitive type-ids used by Primitives.
const (
	IDBoolean uint64 = 4
	IDChar    uint64 = 5
	IDFloat   uint64 = 6
	IDDouble  uint64 = 7
	IDByte    uint64 = 8
	IDShort   uint64 = 9
	IDInt     uint64 = 10
	IDLong    uint64 = 11
	IDString  uint64 = 20
)

// Primitives declares every built-in type under the ID* type-ids.
func Primitives() []Class {
	return []Class{
		{ID: IDBoolean, Name: "boolean"},
		{ID: IDChar, Name: "char"},
		{ID: IDFloat, Name: "float"},
		{ID: IDDouble, Name: "double"},
		{ID: IDByte, Name: "byte"},
		{ID: IDShort, Name: "short"},
		{ID: IDInt, Name: "int"},
		{ID: IDLong, Name: "long"},
		{ID: IDString, Name: "java.lang.String"},
	}
}

// Metadata describes one metadata record.
type Metadata struct {
	ID            int64
	StartTicks    int64
	DurationTicks int64
	Root          *Element
	Strings       *Strings
}

// NewMetadata returns a record whose tree is root > metadata > class... plus an unrelated
// "region" element.
func NewMetadata(classes ...Class) *Metadata {
	meta := &Element{Name: "metadata"}
	for _, c := range classes {
		meta.Children = append(meta.Children, c.Element())
	}
	region := &Element{Name: "region", Attrs: []Attr{{Key: "locale", Value: "en_US"}}}

	return &Metadata{
		ID:      1,
		Root:    &Element{Name: "root", Children: []*Element{meta, region}},
		Strings: NewStrings(),
	}
}

// String interns s into the record's string table and returns its index, for use as a
// java.lang.String field value.
func (m *Metadata) String(s string) uint64 {
	return m.Strings.Index(s)
}

// Bytes encodes the full, size-prefixed record.
func (m *Metadata) Bytes() []byte {
	intern(m.Strings, m.Root)

	body := varint.AppendSigned(nil, m.StartTicks)
	body = varint.AppendSigned(body, m.DurationTicks)
	body = varint.AppendSigned(body, m.ID)

	list := m.Strings.List()
	body = varint.Append(body, uint64(len(list)))
	for _, s := range list {
		body = varint.Append(body, uint64(len(s)))
		body = append(body, s...)
	}
	body = appendElement(body, m.Strings, m.Root)

	return Record(section.MetadataTypeID, body)
}

func intern(s *Strings, e *Element) {
	s.Index(e.Name)
	for _, a := range e.Attrs {
		s.Index(a.Key)
		s.Index(a.Value)
	}
	for _, c := range e.Children {
		intern(s, c)
	}
}

func appendElement(dst []byte, s *Strings, e *Element) []byte {
	dst = varint.Append(dst, s.Index(e.Name))
	dst = varint.Append(dst, uint64(len(e.Attrs)))
	for _, a := range e.Attrs {
		dst = varint.Append(dst, s.Index(a.Key))
		dst = varint.Append(dst, s.Index(a.Value))
	}
	dst = varint.Append(dst, uint64(len(e.Children)))
	for _, c := range e.Children {
		dst = appendElement(dst, s, c)
	}

	return dst
}

// Record prefixes typeID and body with the self-inclusive varint size.
func Record(typeID uint64, body []byte) []byte {
	payload := varint.Append(nil, typeID)
	payload = append(payload, body...)

	size := uint64(len(payload)) + 1
	for uint64(varint.Size(size)+len(payload)) != size {
		size = uint64(varint.Size(size) + len(payload))
	}

	return append(varint.Append(nil, size), payload...)
}

// Event encodes one event record.
func Event(typeID uint64, payload []byte) []byte {
	return Record(typeID, payload)
}

// Entry is one constant of a pool record.
type Entry struct {
	ID    uint64
	Value []byte
}

// PoolRecord encodes one constant-pool record of typeID.
func PoolRecord(typeID uint64, timestamp int64, entries ...Entry) []byte {
	body := varint.AppendSigned(nil, timestamp)
	body = varint.Append(body, uint64(len(entries)))
	for _, e := range entries {
		body = varint.Append(body, e.ID)
		body = append(body, e.Value...)
	}

	return Record(typeID, body)
}

// Payload writes field values in wire encoding.
type Payload struct {
	b []byte
}

// NewPayload returns an empty payload.
func NewPayload() *Payload {
	return &Payload{}
}

// Long writes a zigzag varint (byte, short, int, long).
func (p *Payload) Long(v int64) *Payload {
	p.b = varint.AppendSigned(p.b, v)
	return p
}

// Uvarint writes an unsigned varint (char, counts, string indices, constant ids).
func (p *Payload) Uvarint(v uint64) *Payload {
	p.b = varint.Append(p.b, v)
	return p
}

// Bool writes a one-byte boolean.
func (p *Payload) Bool(v bool) *Payload {
	if v {
		p.b = append(p.b, 1)
	} else {
		p.b = append(p.b, 0)
	}

	return p
}

// Float writes a 4-byte float.
func (p *Payload) Float(v float32) *Payload {
	p.b = endian.AppendFloat32(endian.Wire(), p.b, v)
	return p
}

// Double writes an 8-byte double.
func (p *Payload) Double(v float64) *Payload {
	p.b = endian.AppendFloat64(endian.Wire(), p.b, v)
	return p
}

// Raw appends pre-encoded bytes.
func (p *Payload) Raw(b []byte) *Payload {
	p.b = append(p.b, b...)
	return p
}

// Bytes returns the encoded payload.
func (p *Payload) Bytes() []byte {
	return p.b
}

// Chunk describes one chunk. Zero header fields take working defaults.
type Chunk struct {
	Major          uint16
	Minor          uint16
	StartNanos     uint64
	DurationNanos  uint64
	StartTicks     uint64
	TicksPerSecond uint64
	Features       uint32

	Events   [][]byte
	Pools    [][]byte
	Metadata *Metadata
	// MetadataFirst places the metadata section before the constant pools.
	MetadataFirst bool
	// Size pads the chunk with zero bytes up to Size when it exceeds the content.
	Size uint64
}

// Build assembles the chunk and returns its header and bytes.
func (c *Chunk) Build() (section.Header, []byte) {
	buf := pool.GetChunkBuffer()
	defer pool.PutChunkBuffer(buf)

	md := c.Metadata
	if md == nil {
		md = NewMetadata()
	}

	buf.MustWrite(make([]byte, section.HeaderSize))
	for _, e := range c.Events {
		buf.MustWrite(e)
	}

	var mdOffset, cpOffset int
	writePools := func() {
		cpOffset = buf.Len()
		for _, p := range c.Pools {
			buf.MustWrite(p)
		}
	}
	if c.MetadataFirst {
		mdOffset = buf.Len()
		buf.MustWrite(md.Bytes())
		writePools()
	} else {
		writePools()
		mdOffset = buf.Len()
		buf.MustWrite(md.Bytes())
	}
	if c.Size > uint64(buf.Len()) {
		buf.MustWrite(make([]byte, int(c.Size)-buf.Len()))
	}

	h := section.Header{
		Magic:              section.Magic,
		Major:              orDefault(c.Major, section.MajorV2),
		Minor:              c.Minor,
		Size:               uint64(buf.Len()),
		ConstantPoolOffset: uint64(cpOffset),
		MetadataOffset:     uint64(mdOffset),
		StartNanos:         c.StartNanos,
		DurationNanos:      c.DurationNanos,
		StartTicks:         c.StartTicks,
		TicksPerSecond:     orDefault(c.TicksPerSecond, 1_000_000_000),
		Features:           c.Features,
	}
	out := bytes.Clone(buf.Bytes())
	copy(out, h.Bytes())

	return h, out
}

// Bytes assembles the chunk.
func (c *Chunk) Bytes() []byte {
	_, b := c.Build()
	return b
}

// File concatenates chunks.
func File(chunks ...[]byte) []byte {
	buf := pool.GetChunkBuffer()
	defer pool.PutChunkBuffer(buf)

	for _, c := range chunks {
		buf.MustWrite(c)
	}

	return bytes.Clone(buf.Bytes())
}

// Patch overwrites one header field of an assembled chunk.
func Patch(chunk []byte, f section.HeaderField, v uint64) []byte {
	h, err := section.ParseHeader(chunk)
	if err != nil {
		panic(err)
	}
	switch f {
	case section.FieldSize:
		h.Size = v
	case section.FieldConstantPoolOffset:
		h.ConstantPoolOffset = v
	case section.FieldMetadataOffset:
		h.MetadataOffset = v
	case section.FieldMajor:
		h.Major = uint16(min(v, math.MaxUint16))
	case section.FieldMinor:
		h.Minor = uint16(min(v, math.MaxUint16))
	default:
		panic("fixture: unsupported header field " + f.String())
	}
	copy(chunk, h.Bytes())

	return chunk
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}

	return v
}
