package metadata

import (
	"fmt"

	"github.com/arloliu/jfr/cursor"
	"github.com/arloliu/jfr/errs"
)

// Attribute is one name/value pair of an Element. Indices refer to the record's StringTable.
type Attribute struct {
	KeyIndex   uint32
	ValueIndex uint32
	Key        string
	Value      string
}

// Element is one node of the metadata schema tree. Elements the decoder does not
// recognize are kept as is.
type Element struct {
	NameIndex  uint32
	Name       string
	Attributes []Attribute
	Children   []*Element
}

// Attr returns the value of the first attribute named key.
func (e *Element) Attr(key string) (string, bool) {
	for i := range e.Attributes {
		if e.Attributes[i].Key == key {
			return e.Attributes[i].Value, true
		}
	}

	return "", false
}

// AttrMap returns the attributes as a map. Later duplicates win.
func (e *Element) AttrMap() map[string]string {
	m := make(map[string]string, len(e.Attributes))
	for _, a := range e.Attributes {
		m[a.Key] = a.Value
	}

	return m
}

// ChildrenNamed returns the direct children with the given name.
func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}

	return out
}

// Walk visits e and all of its descendants in pre-order. Returning false from fn stops
// the walk.
func (e *Element) Walk(fn func(*Element) bool) {
	stack := []*Element{e}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			return
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}
}

// minElementSize is the smallest encoding of an element: name, attribute count and
// child count, one byte each.
const minElementSize = 3

type elementFrame struct {
	elem    *Element
	pending uint32 // children still to read
}

// decodeElementTree reads the element tree rooted at the cursor position using an explicit
// stack, so adversarial nesting can not exhaust the goroutine stack.
func decodeElementTree(r *cursor.Cursor, strings *StringTable, maxDepth int) (*Element, error) {
	root, n, err := decodeElementHeader(r, strings)
	if err != nil {
		return nil, err
	}

	stack := []elementFrame{{elem: root, pending: n}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.pending == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		top.pending--

		child, n, err := decodeElementHeader(r, strings)
		if err != nil {
			return nil, err
		}
		if len(stack) >= maxDepth {
			return nil, fmt.Errorf("element %q at offset %d nested deeper than %d: %w", child.Name, r.Pos(), maxDepth, errs.ErrCorrupt)
		}
		top.elem.Children = append(top.elem.Children, child)

		if n > 0 {
			stack = append(stack, elementFrame{elem: child, pending: n})
		}
	}

	return root, nil
}

// decodeElementHeader reads an element's name and attributes and returns its child count.
func decodeElementHeader(r *cursor.Cursor, strings *StringTable) (*Element, uint32, error) {
	start := r.Pos()

	nameIdx, err := r.Uint32()
	if err != nil {
		return nil, 0, fmt.Errorf("element name: %w", err)
	}
	name, err := strings.resolve(uint64(nameIdx))
	if err != nil {
		return nil, 0, fmt.Errorf("element at offset %d: %w", start, err)
	}
	e := &Element{NameIndex: nameIdx, Name: name}

	attrCount, err := r.Uint32()
	if err != nil {
		return nil, 0, fmt.Errorf("element %q attribute count: %w", name, err)
	}
	if int64(attrCount)*2 > r.Remaining() {
		return nil, 0, fmt.Errorf("element %q declares %d attributes, %d bytes left: %w", name, attrCount, r.Remaining(), errs.ErrTruncated)
	}
	if attrCount > 0 {
		e.Attributes = make([]Attribute, attrCount)
	}
	for i := range e.Attributes {
		a := &e.Attributes[i]
		if a.KeyIndex, err = r.Uint32(); err != nil {
			return nil, 0, fmt.Errorf("element %q attribute %d: %w", name, i, err)
		}
		if a.ValueIndex, err = r.Uint32(); err != nil {
			return nil, 0, fmt.Errorf("element %q attribute %d: %w", name, i, err)
		}
		if a.Key, err = strings.resolve(uint64(a.KeyIndex)); err != nil {
			return nil, 0, fmt.Errorf("element %q attribute %d key: %w", name, i, err)
		}
		if a.Value, err = strings.resolve(uint64(a.ValueIndex)); err != nil {
			return nil, 0, fmt.Errorf("element %q attribute %q value: %w", name, a.Key, err)
		}
	}

	childCount, err := r.Uint32()
	if err != nil {
		return nil, 0, fmt.Errorf("element %q child count: %w", name, err)
	}
	if int64(childCount)*minElementSize > r.Remaining() {
		return nil, 0, fmt.Errorf("element %q declares %d children, %d bytes left: %w", name, childCount, r.Remaining(), errs.ErrTruncated)
	}
	if childCount > 0 {
		e.Children = make([]*Element, 0, childCount)
	}

	return e, childCount, nil
}
