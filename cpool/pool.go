// Package cpool decodes and resolves the constant pools of a JFR chunk.
//
// Pool entries may reference entries of any pool, including ones that appear later in the
// section and their own pool. Decoding therefore runs in two phases:
//
//  1. every pool record is decoded into an arena; constant-pool fields are left as unlinked
//     value.Ref references
//  2. every reference is linked to the resolved entry it names, by an iterative depth-first
//     walk that marks entries in progress
//
// A reference that closes a cycle, or that names a constant no pool defines, is replaced by
// value.Unresolved and reported as an ErrUnresolvedConstant warning. A reference to constant
// id 0 with no such entry is JFR's null reference and becomes value.Null.
package cpool

import (
	"maps"
	"slices"

	"github.com/arloliu/jfr/metadata"
	"github.com/arloliu/jfr/value"
)

// Pool holds the resolved constants of one type.
type Pool struct {
	TypeID  uint64
	Type    *metadata.Type
	entries map[uint64]*value.Value
}

func newPool(t *metadata.Type) *Pool {
	return &Pool{TypeID: t.ID, Type: t, entries: make(map[uint64]*value.Value)}
}

// Lookup returns the constant with the given id.
func (p *Pool) Lookup(id uint64) (*value.Value, bool) {
	v, ok := p.entries[id]
	return v, ok
}

// Len returns the number of constants.
func (p *Pool) Len() int {
	return len(p.entries)
}

// IDs returns the constant ids in ascending order.
func (p *Pool) IDs() []uint64 {
	return slices.Sorted(maps.Keys(p.entries))
}

// Pools holds the constant pools of one chunk, keyed by type-id.
type Pools struct {
	pools map[uint64]*Pool
}

// Pool returns the pool of typeID.
func (ps *Pools) Pool(typeID uint64) (*Pool, bool) {
	p, ok := ps.pools[typeID]
	return p, ok
}

// Lookup returns constant id of pool typeID.
func (ps *Pools) Lookup(typeID, id uint64) (*value.Value, bool) {
	p, ok := ps.pools[typeID]
	if !ok {
		return nil, false
	}

	return p.Lookup(id)
}

// Len returns the number of pools.
func (ps *Pools) Len() int {
	return len(ps.pools)
}

// TypeIDs returns the pool type-ids in ascending order.
func (ps *Pools) TypeIDs() []uint64 {
	return slices.Sorted(maps.Keys(ps.pools))
}

// Constants returns the total number of constants over all pools.
func (ps *Pools) Constants() int {
	n := 0
	for _, p := range ps.pools {
		n += p.Len()
	}

	return n
}
