// Package value defines the closed tagged union that decoded JFR fields are expressed in.
//
// The field schema of a chunk is only known at runtime, so every decoded field is a *Value
// whose Kind says which accessor applies:
//
//	Kind          Go payload           Produced by
//	-----------   ------------------   -------------------------------------------
//	Null          none                 string index 0, constant id 0
//	Integer       int64                byte, short, int, long, char
//	Float         float64              float, double
//	Boolean       bool                 boolean
//	String        string               java.lang.String
//	Array         []*Value             fields with dimension 1
//	Object        []FieldValue         inline composite types, pool entries
//	ConstantRef   type-id, id, target  constant-pool fields
//	Unresolved    type-id, id          missing or cyclic constants
//
// A ConstantRef does not own its target: the target is the *Value stored in the chunk's
// constant pool and may be shared by many references. Values are immutable once the
// decoder hands them out; slices returned by Items and Fields must not be modified.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindString
	KindArray
	KindObject
	KindConstantRef
	KindUnresolved
)

var kindNames = [...]string{
	KindNull:        "null",
	KindInteger:     "integer",
	KindFloat:       "float",
	KindBoolean:     "boolean",
	KindString:      "string",
	KindArray:       "array",
	KindObject:      "object",
	KindConstantRef: "constant_ref",
	KindUnresolved:  "unresolved",
}

// String returns the lower-case kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// FieldValue is one named field of an Object.
type FieldValue struct {
	Name  string
	Value *Value
}

// Value is one decoded field value.
type Value struct {
	kind   Kind
	num    int64   // Integer payload
	float  float64 // Float payload
	flag   bool    // Boolean payload
	str    string  // String payload
	typeID uint64  // Object, ConstantRef, Unresolved
	id     uint64  // ConstantRef, Unresolved
	items  []*Value
	fields []FieldValue
	target *Value // ConstantRef
}

var null = &Value{kind: KindNull}

// Null returns the shared null value.
func Null() *Value {
	return null
}

// Integer returns an Integer value.
func Integer(v int64) *Value {
	return &Value{kind: KindInteger, num: v}
}

// Float returns a Float value.
func Float(v float64) *Value {
	return &Value{kind: KindFloat, float: v}
}

// Boolean returns a Boolean value.
func Boolean(v bool) *Value {
	return &Value{kind: KindBoolean, flag: v}
}

// String returns a String value.
func String(v string) *Value {
	return &Value{kind: KindString, str: v}
}

// Array returns an Array value holding items.
func Array(items []*Value) *Value {
	return &Value{kind: KindArray, items: items}
}

// Object returns an Object value of the given type.
func Object(typeID uint64, fields []FieldValue) *Value {
	return &Value{kind: KindObject, typeID: typeID, fields: fields}
}

// Ref returns a ConstantRef to constant id of pool typeID.
//
// A nil target marks a reference that has not been linked yet; constant-pool resolution
// replaces such references with linked ones.
func Ref(typeID, id uint64, target *Value) *Value {
	return &Value{kind: KindConstantRef, typeID: typeID, id: id, target: target}
}

// Unresolved returns the sentinel for a constant that could not be resolved.
func Unresolved(typeID, id uint64) *Value {
	return &Value{kind: KindUnresolved, typeID: typeID, id: id}
}

// Kind returns the variant held by v. A nil Value reports KindNull.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}

	return v.kind
}

// IsNull reports whether v is nil or Null.
func (v *Value) IsNull() bool {
	return v.Kind() == KindNull
}

// Int returns the Integer payload.
func (v *Value) Int() (int64, bool) {
	if v.Kind() != KindInteger {
		return 0, false
	}

	return v.num, true
}

// Float returns the Float payload.
func (v *Value) Float() (float64, bool) {
	if v.Kind() != KindFloat {
		return 0, false
	}

	return v.float, true
}

// Bool returns the Boolean payload.
func (v *Value) Bool() (bool, bool) {
	if v.Kind() != KindBoolean {
		return false, false
	}

	return v.flag, true
}

// Str returns the String payload.
func (v *Value) Str() (string, bool) {
	if v.Kind() != KindString {
		return "", false
	}

	return v.str, true
}

// Items returns the elements of an Array.
func (v *Value) Items() []*Value {
	if v.Kind() != KindArray {
		return nil
	}

	return v.items
}

// Fields returns the fields of an Object in declaration order.
func (v *Value) Fields() []FieldValue {
	if v.Kind() != KindObject {
		return nil
	}

	return v.fields
}

// Field returns the named field of an Object, following constant references first.
// It returns nil when v is not an Object or has no such field.
func (v *Value) Field(name string) *Value {
	obj := v.Deref()
	for i := range obj.Fields() {
		if obj.fields[i].Name == name {
			return obj.fields[i].Value
		}
	}

	return nil
}

// TypeID returns the type-id of an Object, ConstantRef or Unresolved value.
func (v *Value) TypeID() uint64 {
	switch v.Kind() {
	case KindObject, KindConstantRef, KindUnresolved:
		return v.typeID
	default:
		return 0
	}
}

// ConstantID returns the constant id of a ConstantRef or Unresolved value.
func (v *Value) ConstantID() uint64 {
	switch v.Kind() {
	case KindConstantRef, KindUnresolved:
		return v.id
	default:
		return 0
	}
}

// Target returns the referenced value of a ConstantRef, or nil if it is not linked.
func (v *Value) Target() *Value {
	if v.Kind() != KindConstantRef {
		return nil
	}

	return v.target
}

// Deref follows constant references until it reaches a non-reference value.
// An unlinked reference is returned as is.
func (v *Value) Deref() *Value {
	cur := v
	for cur.Kind() == KindConstantRef && cur.target != nil {
		cur = cur.target
	}

	return cur
}

// String formats v for debugging. Constant references print their target, not the
// reference, so that output matches what a consumer sees through Deref.
func (v *Value) String() string {
	var sb strings.Builder
	v.format(&sb, 0)

	return sb.String()
}

const maxFormatDepth = 16

func (v *Value) format(sb *strings.Builder, depth int) {
	if depth > maxFormatDepth {
		sb.WriteString("...")
		return
	}

	switch v.Kind() {
	case KindNull:
		sb.WriteString("null")
	case KindInteger:
		sb.WriteString(strconv.FormatInt(v.num, 10))
	case KindFloat:
		sb.WriteString(strconv.FormatFloat(v.float, 'g', -1, 64))
	case KindBoolean:
		sb.WriteString(strconv.FormatBool(v.flag))
	case KindString:
		sb.WriteString(strconv.Quote(v.str))
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.format(sb, depth+1)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteString(": ")
			f.Value.format(sb, depth+1)
		}
		sb.WriteByte('}')
	case KindConstantRef:
		if v.target == nil {
			fmt.Fprintf(sb, "ref(%d:%d)", v.typeID, v.id)
			return
		}
		v.target.format(sb, depth+1)
	case KindUnresolved:
		fmt.Fprintf(sb, "unresolved(%d:%d)", v.typeID, v.id)
	}
}
