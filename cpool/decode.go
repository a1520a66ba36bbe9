package cpool

import (
	"errors"
	"fmt"

	"github.com/arloliu/jfr/cursor"
	"github.com/arloliu/jfr/errs"
	"github.com/arloliu/jfr/internal/fielddec"
	"github.com/arloliu/jfr/value"
)

// DefaultMaxRecordSize bounds the size of one pool record.
const DefaultMaxRecordSize = 1 << 28 // 256MiB

// Config configures Decode.
type Config struct {
	// Context is the chunk's decoding context.
	Context *fielddec.Context
	// MaxRecordSize bounds one pool record; zero means DefaultMaxRecordSize.
	MaxRecordSize int64
	// Warn receives recoverable conditions; may be nil.
	Warn errs.WarnFunc
}

type key struct {
	typeID uint64
	id     uint64
}

type decoder struct {
	cfg     Config
	pools   *Pools
	offsets map[key]int64 // record offset of every entry, for warnings
}

// Decode reads all pool records in the chunk-relative range [start, end) and resolves
// their cross references.
//
// Parameters:
//   - cur: Cursor over the whole chunk
//   - start, end: Chunk-relative section range, see section.Header.ConstantPoolRange
//   - cfg: Decoding context, limits and warning sink
//
// Returns:
//   - *Pools: Resolved pools
//   - error: ErrCorrupt if a record does not fit the section or overruns its declared size,
//     ErrTruncated if the source ends early
func Decode(cur *cursor.Cursor, start, end int64, cfg Config) (*Pools, error) {
	if cfg.MaxRecordSize <= 0 {
		cfg.MaxRecordSize = DefaultMaxRecordSize
	}
	d := &decoder{
		cfg:     cfg,
		pools:   &Pools{pools: make(map[uint64]*Pool)},
		offsets: make(map[key]int64),
	}

	if err := d.readSection(cur, start, end); err != nil {
		return nil, err
	}
	d.resolve()

	return d.pools, nil
}

func (d *decoder) readSection(cur *cursor.Cursor, start, end int64) error {
	if start < 0 || end > cur.Len() || start > end {
		return fmt.Errorf("constant pool section [%d, %d) outside chunk (%d): %w", start, end, cur.Len(), errs.ErrCorrupt)
	}

	for pos := start; pos < end; {
		if err := cur.SeekTo(pos); err != nil {
			return err
		}
		size, err := cur.Uvarint()
		if err != nil {
			return fmt.Errorf("pool record size at offset %d: %w", pos, err)
		}
		if size <= uint64(cur.Pos()-pos) || size > uint64(end-pos) { //nolint:gosec
			return fmt.Errorf("pool record at offset %d: size %d outside section [%d, %d): %w", pos, size, start, end, errs.ErrCorrupt)
		}
		if int64(size) > d.cfg.MaxRecordSize { //nolint:gosec
			return fmt.Errorf("pool record at offset %d: size %d exceeds limit %d: %w", pos, size, d.cfg.MaxRecordSize, errs.ErrCorrupt)
		}

		rec, err := cur.Slice(pos, int64(size)) //nolint:gosec
		if err != nil {
			return fmt.Errorf("pool record at offset %d: %w", pos, err)
		}
		if err := d.readRecord(rec, pos); err != nil {
			if errors.Is(err, errs.ErrTruncated) {
				return fmt.Errorf("pool record at offset %d overruns its size %d: %w: %w", pos, size, errs.ErrCorrupt, err)
			}
			return fmt.Errorf("pool record at offset %d: %w", pos, err)
		}

		pos += int64(size) //nolint:gosec
	}

	return nil
}

// readRecord decodes one record into the arena. Entry values keep their constant-pool
// fields as unlinked references.
func (d *decoder) readRecord(rec []byte, off int64) error {
	r := cursor.FromBytes(rec)
	if _, err := r.Uvarint(); err != nil {
		return err
	}
	typeID, err := r.Uvarint()
	if err != nil {
		return fmt.Errorf("type-id: %w", err)
	}

	t, ok := d.cfg.Context.Registry.Lookup(typeID)
	if !ok {
		d.warn(errs.Warning{Err: errs.ErrUnknownType, Offset: off, TypeID: typeID, Message: "pool record skipped"})
		return nil
	}

	if _, err := r.Varint(); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	count, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("entry count: %w", err)
	}
	// every entry takes at least its id byte
	if int64(count) > r.Remaining() {
		return fmt.Errorf("entry count %d exceeds %d remaining bytes: %w", count, r.Remaining(), errs.ErrCorrupt)
	}

	p, ok := d.pools.pools[typeID]
	if !ok {
		p = newPool(t)
		d.pools.pools[typeID] = p
	}

	ctx := d.cfg.Context.WithResolve(nil)
	for i := uint32(0); i < count; i++ {
		id, err := r.Uvarint()
		if err != nil {
			return fmt.Errorf("entry %d id: %w", i, err)
		}
		v, err := ctx.DecodeValue(r, t)
		if errors.Is(err, errs.ErrUnknownType) {
			d.warn(errs.Warning{Err: errs.ErrUnknownType, Offset: off, TypeID: typeID, ID: id, Message: err.Error()})
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s entry %d: %w", t.Name, id, err)
		}

		// duplicate ids: the last definition wins
		p.entries[id] = v
		d.offsets[key{typeID, id}] = off
	}

	return nil
}

type visitState uint8

const (
	unvisited visitState = iota
	inProgress
	done
)

type frame struct {
	key   key
	slots []**value.Value
	next  int
}

// resolve links every reference in the arena. Entries are visited in ascending
// (type-id, id) order so warnings are deterministic.
func (d *decoder) resolve() {
	states := make(map[key]visitState, len(d.offsets))
	for _, typeID := range d.pools.TypeIDs() {
		p := d.pools.pools[typeID]
		for _, id := range p.IDs() {
			d.resolveEntry(key{typeID, id}, states)
		}
	}
}

func (d *decoder) resolveEntry(root key, states map[key]visitState) {
	if states[root] != unvisited {
		return
	}

	entry, _ := d.pools.Lookup(root.typeID, root.id)
	states[root] = inProgress
	stack := []frame{{key: root, slots: refSlots(entry)}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next == len(top.slots) {
			states[top.key] = done
			stack = stack[:len(stack)-1]
			continue
		}

		slot := top.slots[top.next]
		ref := *slot
		k := key{ref.TypeID(), ref.ConstantID()}
		target, ok := d.pools.Lookup(k.typeID, k.id)

		switch {
		case !ok && k.id == 0:
			*slot = value.Null()
			top.next++
		case !ok:
			*slot = value.Unresolved(k.typeID, k.id)
			top.next++
			d.warn(errs.Warning{
				Err: errs.ErrUnresolvedConstant, Offset: d.offsets[top.key], TypeID: k.typeID, ID: k.id,
				Message: fmt.Sprintf("referenced by pool %d entry %d, no such constant", top.key.typeID, top.key.id),
			})
		case states[k] == done:
			*slot = value.Ref(k.typeID, k.id, target)
			top.next++
		case states[k] == inProgress:
			*slot = value.Unresolved(k.typeID, k.id)
			top.next++
			d.warn(errs.Warning{
				Err: errs.ErrUnresolvedConstant, Offset: d.offsets[top.key], TypeID: k.typeID, ID: k.id,
				Message: fmt.Sprintf("referenced by pool %d entry %d, reference cycle", top.key.typeID, top.key.id),
			})
		default:
			// resolve the target first; this slot is revisited once it is done
			states[k] = inProgress
			stack = append(stack, frame{key: k, slots: refSlots(target)})
		}
	}
}

// refSlots returns the addresses of all unlinked references inside v.
func refSlots(v *value.Value) []**value.Value {
	var slots []**value.Value
	stack := []*value.Value{v}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch cur.Kind() {
		case value.KindArray:
			items := cur.Items()
			for i := range items {
				if isUnlinked(items[i]) {
					slots = append(slots, &items[i])
				} else {
					stack = append(stack, items[i])
				}
			}
		case value.KindObject:
			fields := cur.Fields()
			for i := range fields {
				if isUnlinked(fields[i].Value) {
					slots = append(slots, &fields[i].Value)
				} else {
					stack = append(stack, fields[i].Value)
				}
			}
		}
	}

	return slots
}

func isUnlinked(v *value.Value) bool {
	return v.Kind() == value.KindConstantRef && v.Target() == nil
}

func (d *decoder) warn(w errs.Warning) {
	if d.cfg.Warn != nil {
		d.cfg.Warn(w)
	}
}
