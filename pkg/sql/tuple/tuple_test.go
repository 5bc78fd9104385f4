// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tuple

import (
	"context"
	"strings"
	"testing"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/kr/pretty"
	"github.com/sparrowsql/sparrow/pkg/sql/sqlbase"
	"github.com/sparrowsql/sparrow/pkg/sql/types"
	"github.com/sparrowsql/sparrow/pkg/util/arena"
	"github.com/sparrowsql/sparrow/pkg/util/mon"
	"github.com/stretchr/testify/require"
)

// testSchema is a two-schema row shape, as produced by a join: an orders
// tuple and a customers tuple.
type testSchema struct {
	dt                 *sqlbase.DescriptorTable
	orders, customers  *sqlbase.TupleDescriptor
	id, amount, note   *sqlbase.SlotDescriptor
	name, vip, created *sqlbase.SlotDescriptor
}

func makeTestSchema() testSchema {
	var s testSchema
	s.dt = sqlbase.NewDescriptorTable()
	s.orders = s.dt.CreateTupleDescriptor()
	s.id = s.dt.AddSlotDescriptor(s.orders, types.Int64, false)
	s.amount = s.dt.AddSlotDescriptor(s.orders, types.Double, true)
	s.note = s.dt.AddSlotDescriptor(s.orders, types.String, true)
	s.customers = s.dt.CreateTupleDescriptor()
	s.name = s.dt.AddSlotDescriptor(s.customers, types.String, false)
	s.vip = s.dt.AddSlotDescriptor(s.customers, types.Bool, false)
	s.created = s.dt.AddSlotDescriptor(s.customers, types.Timestamp, true)
	s.dt.ComputeMemLayout()
	return s
}

func (s testSchema) descs() []*sqlbase.TupleDescriptor {
	return []*sqlbase.TupleDescriptor{s.orders, s.customers}
}

func newTestPool() *Pool {
	return NewPool(arena.New("test", arena.Options{ChunkSize: 64}))
}

func sameBacking(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return unsafe.Pointer(&a[0]) == unsafe.Pointer(&b[0])
}

func TestSlotAccessors(t *testing.T) {
	ctx := context.Background()
	dt := sqlbase.NewDescriptorTable()
	td := dt.CreateTupleDescriptor()
	slots := map[types.T]*sqlbase.SlotDescriptor{}
	for _, typ := range types.All {
		slots[typ] = dt.AddSlotDescriptor(td, typ, true)
	}
	td.ComputeMemLayout()

	pool := newTestPool()
	defer pool.Release(ctx)
	tup, err := Alloc(ctx, pool, td)
	require.NoError(t, err)
	require.False(t, tup.IsNull())
	require.Len(t, tup.FixedBytes(), td.ByteSize)

	ts := time.Date(2024, 3, 1, 12, 30, 0, 123, time.UTC)
	tup.SetBool(slots[types.Bool], true)
	tup.SetInt8(slots[types.Int8], -8)
	tup.SetInt16(slots[types.Int16], -1600)
	tup.SetInt32(slots[types.Int32], 1<<30)
	tup.SetInt64(slots[types.Int64], -1<<60)
	tup.SetFloat(slots[types.Float], 1.5)
	tup.SetDouble(slots[types.Double], -2.25)
	tup.SetTimestamp(slots[types.Timestamp], ts)
	require.NoError(t, tup.SetString(ctx, slots[types.String], []byte("hello")))

	require.True(t, tup.Bool(slots[types.Bool]))
	require.Equal(t, int8(-8), tup.Int8(slots[types.Int8]))
	require.Equal(t, int16(-1600), tup.Int16(slots[types.Int16]))
	require.Equal(t, int32(1<<30), tup.Int32(slots[types.Int32]))
	require.Equal(t, int64(-1<<60), tup.Int64(slots[types.Int64]))
	require.Equal(t, float32(1.5), tup.Float(slots[types.Float]))
	require.Equal(t, -2.25, tup.Double(slots[types.Double]))
	require.Equal(t, ts, tup.Timestamp(slots[types.Timestamp]))
	require.Equal(t, "hello", tup.String(slots[types.String]))

	for _, sd := range slots {
		require.False(t, tup.IsNullSlot(sd))
		tup.SetNullSlot(sd)
		require.True(t, tup.IsNullSlot(sd))
	}
	tup.SetNotNullSlot(slots[types.Int64])
	require.False(t, tup.IsNullSlot(slots[types.Int64]))
	// Null flags do not clobber values.
	require.Equal(t, int64(-1<<60), tup.Int64(slots[types.Int64]))

	require.NoError(t, tup.SetString(ctx, slots[types.String], nil))
	require.Equal(t, "", tup.String(slots[types.String]))
}

func TestAllocRequiresLayout(t *testing.T) {
	ctx := context.Background()
	dt := sqlbase.NewDescriptorTable()
	td := dt.CreateTupleDescriptor()
	dt.AddSlotDescriptor(td, types.Int32, false)

	pool := newTestPool()
	defer pool.Release(ctx)
	_, err := Alloc(ctx, pool, td)
	require.True(t, errors.IsAssertionFailure(err))
}

func TestTupleDeepCopy(t *testing.T) {
	ctx := context.Background()
	s := makeTestSchema()
	src, dest := newTestPool(), newTestPool()
	defer dest.Release(ctx)

	tup, err := Alloc(ctx, src, s.orders)
	require.NoError(t, err)
	tup.SetInt64(s.id, 42)
	tup.SetNullSlot(s.amount)
	require.NoError(t, tup.SetString(ctx, s.note, []byte(strings.Repeat("x", 100))))

	cp, err := tup.DeepCopy(ctx, s.orders, dest)
	require.NoError(t, err)
	require.Same(t, dest, cp.Pool())
	// Everything but the string handle is copied byte for byte.
	require.Equal(t, tup.FixedBytes()[:s.orders.NumNullBytes], cp.FixedBytes()[:s.orders.NumNullBytes])
	require.Equal(t, tup.FixedBytes()[s.id.Offset:], cp.FixedBytes()[s.id.Offset:])
	require.False(t, sameBacking(tup.FixedBytes(), cp.FixedBytes()))
	require.False(t, sameBacking(tup.Bytes(s.note), cp.Bytes(s.note)))
	require.Equal(t, tup.Bytes(s.note), cp.Bytes(s.note))

	// The copy outlives the source pool.
	src.Release(ctx)
	require.Equal(t, int64(42), cp.Int64(s.id))
	require.True(t, cp.IsNullSlot(s.amount))
	require.Equal(t, strings.Repeat("x", 100), cp.String(s.note))

	nullCopy, err := Tuple{}.DeepCopy(ctx, s.orders, dest)
	require.NoError(t, err)
	require.True(t, nullCopy.IsNull())
}

func TestTupleDeepCopySkipsNullStrings(t *testing.T) {
	ctx := context.Background()
	s := makeTestSchema()
	src, dest := newTestPool(), newTestPool()
	defer src.Release(ctx)
	defer dest.Release(ctx)

	tup, err := Alloc(ctx, src, s.orders)
	require.NoError(t, err)
	// A null string slot holding a handle that does not resolve.
	buf := tup.FixedBytes()[s.note.Offset:]
	for i := 0; i < types.StringSlotSize; i++ {
		buf[i] = 0xff
	}
	tup.SetNullSlot(s.note)

	cp, err := tup.DeepCopy(ctx, s.orders, dest)
	require.NoError(t, err)
	require.True(t, cp.IsNullSlot(s.note))
	require.Equal(t, make([]byte, types.StringSlotSize),
		cp.FixedBytes()[s.note.Offset:s.note.Offset+types.StringSlotSize])
}

func TestRowDeepCopyPreservesNullTuples(t *testing.T) {
	ctx := context.Background()
	s := makeTestSchema()
	src, dest := newTestPool(), newTestPool()
	defer dest.Release(ctx)

	row, err := AllocRow(ctx, src, 2)
	require.NoError(t, err)
	require.Equal(t, 2, row.Len())
	order, err := Alloc(ctx, src, s.orders)
	require.NoError(t, err)
	order.SetInt64(s.id, 7)
	order.SetDouble(s.amount, 19.5)
	require.NoError(t, order.SetString(ctx, s.note, []byte("gift")))
	row.SetTuple(0, order)

	cp, err := row.DeepCopy(ctx, s.descs(), dest)
	require.NoError(t, err)
	require.Equal(t, 2, cp.Len())
	require.False(t, cp.GetTuple(0).IsNull())
	require.True(t, cp.GetTuple(1).IsNull())
	expected := "[(7, 19.5, 'gift') NULL]"
	if got := cp.String(s.descs()); got != expected {
		t.Fatalf("unexpected row:\n%s", pretty.Diff(expected, got))
	}

	src.Release(ctx)
	require.Equal(t, expected, cp.String(s.descs()))
}

func TestRowDeepCopyAllocationFailure(t *testing.T) {
	ctx := context.Background()
	s := makeTestSchema()

	src := newTestPool()
	defer src.Release(ctx)
	row, err := AllocRow(ctx, src, 2)
	require.NoError(t, err)
	for i, desc := range s.descs() {
		tup, err := Alloc(ctx, src, desc)
		require.NoError(t, err)
		row.SetTuple(i, tup)
	}
	require.NoError(t, row.GetTuple(0).SetString(ctx, s.note, []byte(strings.Repeat("y", 500))))
	require.NoError(t, row.GetTuple(1).SetString(ctx, s.name, []byte("ann")))

	// The budget fits the reference slab and one 64 byte chunk: the tuples
	// themselves fit but the long string does not.
	m := mon.NewMonitor("dest", minSlabTuples*tupleRefSize+64)
	acc := m.MakeBoundAccount()
	dest := NewPool(arena.New("dest", arena.Options{ChunkSize: 64, Account: &acc}))
	defer dest.Release(ctx)

	cp, err := row.DeepCopy(ctx, s.descs(), dest)
	require.True(t, errors.Is(err, mon.ErrBudgetExceeded), "%+v", err)
	require.Nil(t, cp)

	dest.Release(ctx)
	require.Equal(t, int64(0), m.AllocBytes())
}

func TestReleasedPool(t *testing.T) {
	ctx := context.Background()
	s := makeTestSchema()
	pool := newTestPool()
	pool.Release(ctx)
	pool.Release(ctx)

	_, err := AllocRow(ctx, pool, 1)
	require.True(t, errors.Is(err, arena.ErrReleased))
	_, err = Alloc(ctx, pool, s.orders)
	require.True(t, errors.Is(err, arena.ErrReleased))
}

func TestRowSlabGrowth(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool()
	defer pool.Release(ctx)

	var rows []Row
	for i := 0; i < 1000; i++ {
		r, err := AllocRow(ctx, pool, 3)
		require.NoError(t, err)
		rows = append(rows, r)
	}
	wide, err := AllocRow(ctx, pool, 2*maxSlabTuples)
	require.NoError(t, err)
	require.Equal(t, 2*maxSlabTuples, wide.Len())

	// Rows never share reference slots.
	for i, r := range rows {
		r.SetTuple(0, Tuple{buf: []byte{byte(i)}})
	}
	for i, r := range rows {
		require.Equal(t, byte(i), r.GetTuple(0).FixedBytes()[0])
		require.True(t, r.GetTuple(1).IsNull())
	}
}
