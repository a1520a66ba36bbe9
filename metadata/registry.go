package metadata

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/arloliu/jfr/errs"
)

// Element and attribute names that define types.
const (
	ElementClass = "class"
	ElementField = "field"

	AttrID           = "id"
	AttrName         = "name"
	AttrSuperType    = "superType"
	AttrSimpleType   = "simpleType"
	AttrClass        = "class"
	AttrDimension    = "dimension"
	AttrConstantPool = "constantPool"
)

// Primitive identifies the fixed wire encoding of a built-in type.
type Primitive uint8

const (
	PrimitiveNone    Primitive = iota // composite type, decoded field by field
	PrimitiveBoolean                  // 1 byte
	PrimitiveByte                     // zigzag varint
	PrimitiveShort                    // zigzag varint
	PrimitiveInt                      // zigzag varint
	PrimitiveLong                     // zigzag varint
	PrimitiveChar                     // unsigned varint
	PrimitiveFloat                    // 4 bytes, big-endian
	PrimitiveDouble                   // 8 bytes, big-endian
	PrimitiveString                   // string table index
)

var primitivesByName = map[string]Primitive{
	"boolean":          PrimitiveBoolean,
	"byte":             PrimitiveByte,
	"short":            PrimitiveShort,
	"int":              PrimitiveInt,
	"long":             PrimitiveLong,
	"char":             PrimitiveChar,
	"float":            PrimitiveFloat,
	"double":           PrimitiveDouble,
	"java.lang.String": PrimitiveString,
}

// PrimitiveOf returns the primitive encoding for a type name, or PrimitiveNone.
func PrimitiveOf(name string) Primitive {
	return primitivesByName[name]
}

// Field is one declared field of a Type.
type Field struct {
	Name string
	// TypeID is the type-id of the field's type.
	TypeID uint64
	// Array marks fields encoded as a count followed by that many elements.
	Array bool
	// ConstantPool marks fields encoded as a constant id into the pool of TypeID.
	ConstantPool bool
}

// Type is one type definition of a chunk.
type Type struct {
	ID        uint64
	NameIndex uint32
	Name      string
	SuperType string
	Simple    bool
	Primitive Primitive
	Fields    []Field
	// Element is the defining "class" element.
	Element *Element
}

// Registry maps type-ids to type definitions.
type Registry struct {
	types  map[uint64]*Type
	byName map[string]*Type
}

// NewRegistry creates a registry from types. Later duplicates of an id win.
func NewRegistry(types ...*Type) *Registry {
	r := &Registry{
		types:  make(map[uint64]*Type, len(types)),
		byName: make(map[string]*Type, len(types)),
	}
	for _, t := range types {
		r.types[t.ID] = t
		r.byName[t.Name] = t
	}

	return r
}

// Lookup returns the type with the given id.
func (r *Registry) Lookup(id uint64) (*Type, bool) {
	t, ok := r.types[id]
	return t, ok
}

// ByName returns the type with the given name.
func (r *Registry) ByName(name string) (*Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Len returns the number of types.
func (r *Registry) Len() int {
	return len(r.types)
}

// IDs returns all type-ids in ascending order.
func (r *Registry) IDs() []uint64 {
	return slices.Sorted(maps.Keys(r.types))
}

// BuildRegistry collects every "class" element of the tree into a Registry.
// Elements with other names are skipped; they stay reachable through the tree.
//
// Returns:
//   - *Registry: Types keyed by their "id" attribute
//   - error: ErrCorrupt if a class or field carries a malformed numeric attribute
func BuildRegistry(root *Element) (*Registry, error) {
	var (
		types []*Type
		err   error
	)
	root.Walk(func(e *Element) bool {
		if e.Name != ElementClass {
			return true
		}

		var t *Type
		if t, err = buildType(e); err != nil {
			return false
		}
		types = append(types, t)

		return true
	})
	if err != nil {
		return nil, err
	}

	return NewRegistry(types...), nil
}

func buildType(e *Element) (*Type, error) {
	id, err := uintAttr(e, AttrID)
	if err != nil {
		return nil, err
	}

	t := &Type{ID: id, Element: e}
	for _, a := range e.Attributes {
		switch a.Key {
		case AttrName:
			t.Name = a.Value
			t.NameIndex = a.ValueIndex
		case AttrSuperType:
			t.SuperType = a.Value
		case AttrSimpleType:
			t.Simple = a.Value == "true"
		}
	}
	t.Primitive = PrimitiveOf(t.Name)

	for _, c := range e.ChildrenNamed(ElementField) {
		name, _ := c.Attr(AttrName)
		typeID, err := uintAttr(c, AttrClass)
		if err != nil {
			return nil, fmt.Errorf("type %q field %q: %w", t.Name, name, err)
		}
		dim, _ := c.Attr(AttrDimension)
		cp, _ := c.Attr(AttrConstantPool)
		t.Fields = append(t.Fields, Field{
			Name:         name,
			TypeID:       typeID,
			Array:        dim == "1",
			ConstantPool: cp == "true",
		})
	}

	return t, nil
}

func uintAttr(e *Element, key string) (uint64, error) {
	s, ok := e.Attr(key)
	if !ok {
		return 0, fmt.Errorf("%s element without %q attribute: %w", e.Name, key, errs.ErrCorrupt)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s element attribute %s=%q: %w", e.Name, key, s, errs.ErrCorrupt)
	}

	return v, nil
}
