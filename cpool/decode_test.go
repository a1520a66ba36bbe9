package cpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/jfr/cursor"
	"github.com/arloliu/jfr/errs"
	"github.com/arloliu/jfr/internal/fielddec"
	"github.com/arloliu/jfr/internal/fixture"
	"github.com/arloliu/jfr/metadata"
	"github.com/arloliu/jfr/value"
)

const (
	idThread  uint64 = 100
	idGroup   uint64 = 101
	idSymbol  uint64 = 102
	idMethod  uint64 = 103
	idFrame   uint64 = 104
	idStack   uint64 = 105
	idNode    uint64 = 106
	idUnknown uint64 = 900
)

func newFixture() *fixture.Metadata {
	return fixture.NewMetadata(append(fixture.Primitives(),
		fixture.Class{ID: idGroup, Name: "jdk.types.ThreadGroup", Fields: []fixture.Field{
			{Name: "name", Class: fixture.IDString},
		}},
		fixture.Class{ID: idThread, Name: "java.lang.Thread", Fields: []fixture.Field{
			{Name: "javaName", Class: fixture.IDString},
			{Name: "javaThreadId", Class: fixture.IDLong},
			{Name: "group", Class: idGroup, ConstantPool: true},
		}},
		fixture.Class{ID: idSymbol, Name: "jdk.types.Symbol", Fields: []fixture.Field{
			{Name: "string", Class: fixture.IDString},
		}},
		fixture.Class{ID: idMethod, Name: "jdk.types.Method", Fields: []fixture.Field{
			{Name: "name", Class: idSymbol, ConstantPool: true},
		}},
		fixture.Class{ID: idFrame, Name: "jdk.types.StackFrame", Fields: []fixture.Field{
			{Name: "method", Class: idMethod, ConstantPool: true},
			{Name: "lineNumber", Class: fixture.IDInt},
		}},
		fixture.Class{ID: idStack, Name: "jdk.types.StackTrace", Fields: []fixture.Field{
			{Name: "truncated", Class: fixture.IDBoolean},
			{Name: "frames", Class: idFrame, Array: true},
		}},
		fixture.Class{ID: idNode, Name: "test.Node", Fields: []fixture.Field{
			{Name: "next", Class: idNode, ConstantPool: true},
		}},
	)...)
}

type result struct {
	pools    *Pools
	warnings []errs.Warning
}

// decodeSection decodes pool records placed after a short prefix, so offsets are non-zero.
func decodeSection(t *testing.T, fx *fixture.Metadata, records ...[]byte) (result, error) {
	t.Helper()

	prefix := []byte{0xee, 0xee}
	data := append([]byte{}, prefix...)
	for _, rec := range records {
		data = append(data, rec...)
	}

	md, err := metadata.Decode(cursor.FromBytes(fx.Bytes()), 0, metadata.Limits{})
	require.NoError(t, err)

	var res result
	res.pools, err = Decode(cursor.FromBytes(data), int64(len(prefix)), int64(len(data)), Config{
		Context: fielddec.NewContext(md),
		Warn:    func(w errs.Warning) { res.warnings = append(res.warnings, w) },
	})

	return res, err
}

func payload() *fixture.Payload {
	return fixture.NewPayload()
}

func TestDecode_ForwardReferences(t *testing.T) {
	fx := newFixture()
	// stack trace first, then the methods and symbols it refers to
	stacks := fixture.PoolRecord(idStack, 0, fixture.Entry{ID: 1, Value: payload().
		Bool(false).
		Uvarint(2).
		Uvarint(10).Long(42). // frame: method 10, line 42
		Uvarint(11).Long(7).
		Bytes()})
	methods := fixture.PoolRecord(idMethod, 0,
		fixture.Entry{ID: 10, Value: payload().Uvarint(20).Bytes()},
		fixture.Entry{ID: 11, Value: payload().Uvarint(21).Bytes()},
	)
	symbols := fixture.PoolRecord(idSymbol, 0,
		fixture.Entry{ID: 20, Value: payload().Uvarint(fx.String("run")).Bytes()},
		fixture.Entry{ID: 21, Value: payload().Uvarint(fx.String("main")).Bytes()},
	)

	res, err := decodeSection(t, fx, stacks, methods, symbols)
	require.NoError(t, err)
	require.Empty(t, res.warnings)
	require.Equal(t, []uint64{idSymbol, idMethod, idStack}, res.pools.TypeIDs())
	require.Equal(t, 5, res.pools.Constants())

	stack, ok := res.pools.Lookup(idStack, 1)
	require.True(t, ok)
	frames := stack.Field("frames").Items()
	require.Len(t, frames, 2)

	name, ok := frames[0].Field("method").Field("name").Field("string").Str()
	require.True(t, ok)
	require.Equal(t, "run", name)
	line, _ := frames[1].Field("lineNumber").Int()
	require.Equal(t, int64(7), line)

	// references share the pool's value instead of copying it
	method10, _ := res.pools.Lookup(idMethod, 10)
	ref := frames[0].Field("method")
	require.Equal(t, value.KindConstantRef, ref.Kind())
	require.Same(t, method10, ref.Target())
}

func TestDecode_MissingConstantIsUnresolved(t *testing.T) {
	fx := newFixture()
	threads := fixture.PoolRecord(idThread, 0,
		fixture.Entry{ID: 1, Value: payload().Uvarint(fx.String("main")).Long(1).Uvarint(77).Bytes()},
	)
	groups := fixture.PoolRecord(idGroup, 0,
		fixture.Entry{ID: 5, Value: payload().Uvarint(fx.String("system")).Bytes()},
	)

	res, err := decodeSection(t, fx, threads, groups)
	require.NoError(t, err, "a missing constant must not fail the pool")

	thread, ok := res.pools.Lookup(idThread, 1)
	require.True(t, ok)
	group := thread.Field("group")
	require.Equal(t, value.KindUnresolved, group.Kind())
	require.Equal(t, idGroup, group.TypeID())
	require.Equal(t, uint64(77), group.ConstantID())

	name, _ := thread.Field("javaName").Str()
	require.Equal(t, "main", name)

	require.Len(t, res.warnings, 1)
	w := res.warnings[0]
	require.ErrorIs(t, w, errs.ErrUnresolvedConstant)
	require.Equal(t, idGroup, w.TypeID)
	require.Equal(t, uint64(77), w.ID)
	require.Equal(t, int64(2), w.Offset, "offset of the referring record")
}

func TestDecode_ReferenceToUndeclaredPool(t *testing.T) {
	fx := newFixture()
	// no ThreadGroup pool at all
	threads := fixture.PoolRecord(idThread, 0,
		fixture.Entry{ID: 1, Value: payload().Uvarint(0).Long(1).Uvarint(3).Bytes()},
	)

	res, err := decodeSection(t, fx, threads)
	require.NoError(t, err)

	thread, _ := res.pools.Lookup(idThread, 1)
	require.Equal(t, value.KindUnresolved, thread.Field("group").Kind())
	require.True(t, thread.Field("javaName").IsNull())
	require.Len(t, res.warnings, 1)
}

func TestDecode_NullReference(t *testing.T) {
	fx := newFixture()
	threads := fixture.PoolRecord(idThread, 0,
		fixture.Entry{ID: 1, Value: payload().Uvarint(0).Long(1).Uvarint(0).Bytes()},
	)

	res, err := decodeSection(t, fx, threads)
	require.NoError(t, err)
	require.Empty(t, res.warnings)

	thread, _ := res.pools.Lookup(idThread, 1)
	require.True(t, thread.Field("group").IsNull())
}

func TestDecode_Cycles(t *testing.T) {
	fx := newFixture()
	nodes := fixture.PoolRecord(idNode, 0,
		fixture.Entry{ID: 1, Value: payload().Uvarint(2).Bytes()},
		fixture.Entry{ID: 2, Value: payload().Uvarint(1).Bytes()},
		fixture.Entry{ID: 3, Value: payload().Uvarint(3).Bytes()},
		fixture.Entry{ID: 4, Value: payload().Uvarint(1).Bytes()},
	)

	res, err := decodeSection(t, fx, nodes)
	require.NoError(t, err)

	// 1 -> 2 -> back to 1: the closing edge is unresolved
	n1, _ := res.pools.Lookup(idNode, 1)
	n2, _ := res.pools.Lookup(idNode, 2)
	require.Same(t, n2, n1.Field("next").Target())
	require.Equal(t, value.KindUnresolved, n2.Field("next").Kind())
	require.Equal(t, uint64(1), n2.Field("next").ConstantID())

	// self reference
	n3, _ := res.pools.Lookup(idNode, 3)
	require.Equal(t, value.KindUnresolved, n3.Field("next").Kind())

	// 4 enters the already resolved 1 and is linked normally
	n4, _ := res.pools.Lookup(idNode, 4)
	require.Same(t, n1, n4.Field("next").Target())

	require.Len(t, res.warnings, 2)
	for _, w := range res.warnings {
		require.ErrorIs(t, w, errs.ErrUnresolvedConstant)
		require.Contains(t, w.Message, "cycle")
	}
}

func TestDecode_LongChainIsIterative(t *testing.T) {
	fx := newFixture()
	const n = 20000
	entries := make([]fixture.Entry, n)
	for i := range entries {
		// i+1 -> i+2, the last one points nowhere (null)
		next := uint64(i + 2)
		if i == n-1 {
			next = 0
		}
		entries[i] = fixture.Entry{ID: uint64(i + 1), Value: payload().Uvarint(next).Bytes()}
	}

	res, err := decodeSection(t, fx, fixture.PoolRecord(idNode, 0, entries...))
	require.NoError(t, err)
	require.Empty(t, res.warnings)

	cur, _ := res.pools.Lookup(idNode, 1)
	steps := 0
	for !cur.IsNull() {
		cur = cur.Field("next").Deref()
		steps++
	}
	require.Equal(t, n, steps)
}

func TestDecode_DuplicateIDLastWins(t *testing.T) {
	fx := newFixture()
	first := fixture.PoolRecord(idSymbol, 0, fixture.Entry{ID: 1, Value: payload().Uvarint(fx.String("old")).Bytes()})
	second := fixture.PoolRecord(idSymbol, 0, fixture.Entry{ID: 1, Value: payload().Uvarint(fx.String("new")).Bytes()})

	res, err := decodeSection(t, fx, first, second)
	require.NoError(t, err)

	p, ok := res.pools.Pool(idSymbol)
	require.True(t, ok)
	require.Equal(t, 1, p.Len())
	require.Equal(t, []uint64{1}, p.IDs())
	sym, _ := p.Lookup(1)
	s, _ := sym.Field("string").Str()
	require.Equal(t, "new", s)
}

func TestDecode_UnknownPoolTypeSkipped(t *testing.T) {
	fx := newFixture()
	unknown := fixture.PoolRecord(idUnknown, 0, fixture.Entry{ID: 1, Value: []byte{1, 2, 3, 4}})
	symbols := fixture.PoolRecord(idSymbol, 0, fixture.Entry{ID: 1, Value: payload().Uvarint(fx.String("ok")).Bytes()})

	res, err := decodeSection(t, fx, unknown, symbols)
	require.NoError(t, err)

	require.Len(t, res.warnings, 1)
	require.ErrorIs(t, res.warnings[0], errs.ErrUnknownType)
	require.Equal(t, idUnknown, res.warnings[0].TypeID)
	require.Equal(t, int64(2), res.warnings[0].Offset)

	_, ok := res.pools.Pool(idUnknown)
	require.False(t, ok)
	_, ok = res.pools.Lookup(idSymbol, 1)
	require.True(t, ok)
	require.Equal(t, 1, res.pools.Len())
}

func TestDecode_Errors(t *testing.T) {
	t.Run("record overruns declared size", func(t *testing.T) {
		fx := newFixture()
		// one thread entry with the group id cut off
		rec := fixture.PoolRecord(idThread, 0, fixture.Entry{ID: 1, Value: payload().Uvarint(0).Long(1).Bytes()})
		_, err := decodeSection(t, fx, rec)
		require.ErrorIs(t, err, errs.ErrCorrupt)
		require.ErrorIs(t, err, errs.ErrTruncated)
	})

	t.Run("record past section end", func(t *testing.T) {
		fx := newFixture()
		rec := fixture.PoolRecord(idSymbol, 0, fixture.Entry{ID: 1, Value: payload().Uvarint(0).Bytes()})
		_, err := decodeSection(t, fx, rec[:len(rec)-1])
		require.ErrorIs(t, err, errs.ErrCorrupt)
	})

	t.Run("zero size record", func(t *testing.T) {
		_, err := decodeSection(t, newFixture(), []byte{0})
		require.ErrorIs(t, err, errs.ErrCorrupt)
	})

	t.Run("record over size limit", func(t *testing.T) {
		fx := newFixture()
		md, err := metadata.Decode(cursor.FromBytes(fx.Bytes()), 0, metadata.Limits{})
		require.NoError(t, err)
		rec := fixture.PoolRecord(idSymbol, 0, fixture.Entry{ID: 1, Value: payload().Uvarint(0).Bytes()})

		_, err = Decode(cursor.FromBytes(rec), 0, int64(len(rec)), Config{
			Context:       fielddec.NewContext(md),
			MaxRecordSize: 2,
		})
		require.ErrorIs(t, err, errs.ErrCorrupt)
	})

	t.Run("section outside chunk", func(t *testing.T) {
		fx := newFixture()
		md, err := metadata.Decode(cursor.FromBytes(fx.Bytes()), 0, metadata.Limits{})
		require.NoError(t, err)

		_, err = Decode(cursor.FromBytes([]byte{1, 2, 3}), 0, 10, Config{Context: fielddec.NewContext(md)})
		require.ErrorIs(t, err, errs.ErrCorrupt)
	})
}

func TestDecode_EmptySection(t *testing.T) {
	res, err := decodeSection(t, newFixture())
	require.NoError(t, err)
	require.Equal(t, 0, res.pools.Len())
	_, ok := res.pools.Lookup(idThread, 1)
	require.False(t, ok)
}
