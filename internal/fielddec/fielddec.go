// Package fielddec decodes field values by a chunk's type schema.
//
// Constant-pool entries and event records share one set of encoding rules; the per-chunk
// Context carries everything those rules depend on, so chunks never share decoding state.
package fielddec

import (
	"fmt"

	"github.com/arloliu/jfr/cursor"
	"github.com/arloliu/jfr/errs"
	"github.com/arloliu/jfr/metadata"
	"github.com/arloliu/jfr/value"
)

const (
	// DefaultMaxDepth bounds nesting of inline composite values.
	DefaultMaxDepth = 32
	// DefaultMaxArrayLength bounds the element count of one array field.
	DefaultMaxArrayLength = 1 << 20
)

// ResolveFunc maps a constant-pool field to its value, given the field's pool type-id and
// the decoded constant id.
type ResolveFunc func(typeID, id uint64) *value.Value

// Context is the per-chunk decoding state.
type Context struct {
	Registry *metadata.Registry
	Strings  *metadata.StringTable
	// Resolve links constant-pool fields. When nil, such fields decode as unlinked
	// value.Ref references.
	Resolve ResolveFunc

	MaxDepth       int
	MaxArrayLength int
}

// NewContext creates a context for one chunk's metadata.
func NewContext(md *metadata.Metadata) *Context {
	return &Context{
		Registry:       md.Registry,
		Strings:        md.Strings,
		MaxDepth:       DefaultMaxDepth,
		MaxArrayLength: DefaultMaxArrayLength,
	}
}

// WithResolve returns a copy of c that links constant-pool fields through fn.
func (c *Context) WithResolve(fn ResolveFunc) *Context {
	cc := *c
	cc.Resolve = fn

	return &cc
}

// DecodeObject decodes all fields of t, in declaration order, as an Object.
//
// Returns:
//   - *value.Value: Object of type t
//   - error: ErrTruncated when r ends early, ErrUnknownType when a field refers to an
//     undeclared type, ErrCorrupt when a limit is exceeded
func (c *Context) DecodeObject(r *cursor.Cursor, t *metadata.Type) (*value.Value, error) {
	return c.decodeObject(r, t, 0)
}

// DecodeValue decodes one non-array value of type t; t may be a primitive.
func (c *Context) DecodeValue(r *cursor.Cursor, t *metadata.Type) (*value.Value, error) {
	return c.decodeValue(r, t, 0)
}

func (c *Context) decodeObject(r *cursor.Cursor, t *metadata.Type, depth int) (*value.Value, error) {
	if depth > c.maxDepth() {
		return nil, fmt.Errorf("type %q nested deeper than %d: %w", t.Name, c.maxDepth(), errs.ErrCorrupt)
	}

	fields := make([]value.FieldValue, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		v, err := c.decodeField(r, f, depth)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
		}
		fields[i] = value.FieldValue{Name: f.Name, Value: v}
	}

	return value.Object(t.ID, fields), nil
}

func (c *Context) decodeField(r *cursor.Cursor, f *metadata.Field, depth int) (*value.Value, error) {
	if !f.Array {
		return c.decodeScalar(r, f, depth)
	}

	n, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("array length: %w", err)
	}
	if int(n) > c.maxArrayLength() {
		return nil, fmt.Errorf("array length %d exceeds limit %d: %w", n, c.maxArrayLength(), errs.ErrCorrupt)
	}

	items := make([]*value.Value, 0, min(int64(n), r.Remaining()))
	for i := uint32(0); i < n; i++ {
		v, err := c.decodeScalar(r, f, depth)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		items = append(items, v)
	}

	return value.Array(items), nil
}

func (c *Context) decodeScalar(r *cursor.Cursor, f *metadata.Field, depth int) (*value.Value, error) {
	if f.ConstantPool {
		id, err := r.Uvarint()
		if err != nil {
			return nil, fmt.Errorf("constant id: %w", err)
		}
		if c.Resolve == nil {
			return value.Ref(f.TypeID, id, nil), nil
		}

		return c.Resolve(f.TypeID, id), nil
	}

	t, ok := c.Registry.Lookup(f.TypeID)
	if !ok {
		return nil, fmt.Errorf("field type %d: %w", f.TypeID, errs.ErrUnknownType)
	}

	return c.decodeValue(r, t, depth)
}

func (c *Context) decodeValue(r *cursor.Cursor, t *metadata.Type, depth int) (*value.Value, error) {
	switch t.Primitive {
	case metadata.PrimitiveBoolean:
		b, err := r.Bool()
		if err != nil {
			return nil, err
		}
		return value.Boolean(b), nil
	case metadata.PrimitiveByte, metadata.PrimitiveShort, metadata.PrimitiveInt, metadata.PrimitiveLong:
		n, err := r.Varint()
		if err != nil {
			return nil, err
		}
		return value.Integer(n), nil
	case metadata.PrimitiveChar:
		n, err := r.Uvarint()
		if err != nil {
			return nil, err
		}
		return value.Integer(int64(n)), nil //nolint:gosec
	case metadata.PrimitiveFloat:
		f, err := r.Float32()
		if err != nil {
			return nil, err
		}
		return value.Float(float64(f)), nil
	case metadata.PrimitiveDouble:
		f, err := r.Float64()
		if err != nil {
			return nil, err
		}
		return value.Float(f), nil
	case metadata.PrimitiveString:
		return c.decodeString(r)
	default:
		return c.decodeObject(r, t, depth+1)
	}
}

func (c *Context) decodeString(r *cursor.Cursor) (*value.Value, error) {
	start := r.Pos()
	idx, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if idx == 0 {
		return value.Null(), nil
	}
	s, ok := c.Strings.Lookup(idx)
	if !ok {
		return nil, fmt.Errorf("string index %d at offset %d outside table of %d: %w", idx, start, c.Strings.Len(), errs.ErrCorrupt)
	}

	return value.String(s), nil
}

func (c *Context) maxDepth() int {
	if c.MaxDepth <= 0 {
		return DefaultMaxDepth
	}

	return c.MaxDepth
}

func (c *Context) maxArrayLength() int {
	if c.MaxArrayLength <= 0 {
		return DefaultMaxArrayLength
	}

	return c.MaxArrayLength
}
