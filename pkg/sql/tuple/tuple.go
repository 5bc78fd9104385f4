// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package tuple implements the runtime row representation: tuples laid out
// by a sqlbase.TupleDescriptor, and rows made of one tuple per schema, all
// stored in a Pool.
//
// A tuple is only valid while its pool is alive. A component that needs a
// row after the producing pool is released must first copy it with
// Row.DeepCopy into a pool it owns.
package tuple

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/sql/sqlbase"
	"github.com/sparrowsql/sparrow/pkg/sql/types"
	"github.com/sparrowsql/sparrow/pkg/util/arena"
)

// Tuple is a reference to the fixed-length bytes of one tuple. String slots
// hold a handle into the arena of the pool the tuple was allocated from.
// The zero Tuple is the null tuple.
//
// Slot accessors do not validate their slot descriptor against the tuple:
// the caller must pass slots of the descriptor the tuple was built with.
type Tuple struct {
	pool *Pool
	buf  []byte
}

// Alloc allocates a zeroed tuple for desc from pool. All slots start out
// non-null with zero values.
func Alloc(ctx context.Context, pool *Pool, desc *sqlbase.TupleDescriptor) (Tuple, error) {
	if !desc.LaidOut() {
		return Tuple{}, errors.AssertionFailedf("tuple descriptor %d has no memory layout", desc.ID)
	}
	buf, err := pool.arena.Allocate(ctx, desc.ByteSize)
	if err != nil {
		return Tuple{}, err
	}
	return Tuple{pool: pool, buf: buf}, nil
}

// IsNull returns whether t is the null tuple.
func (t Tuple) IsNull() bool {
	return t.buf == nil
}

// Pool returns the pool that owns the tuple's bytes.
func (t Tuple) Pool() *Pool {
	return t.pool
}

// FixedBytes returns the fixed-length part of the tuple. Writing to it
// writes to the tuple.
func (t Tuple) FixedBytes() []byte {
	return t.buf
}

// IsNullSlot returns whether the slot is null. Slots that are not
// nullable are never null.
func (t Tuple) IsNullSlot(sd *sqlbase.SlotDescriptor) bool {
	if sd.NullIndicatorBit < 0 {
		return false
	}
	return t.buf[sd.NullIndicatorByte]&sd.NullMask() != 0
}

// SetNullSlot marks the slot null. It is a no-op for slots that are not
// nullable.
func (t Tuple) SetNullSlot(sd *sqlbase.SlotDescriptor) {
	if sd.NullIndicatorBit < 0 {
		return
	}
	t.buf[sd.NullIndicatorByte] |= sd.NullMask()
}

// SetNotNullSlot clears the slot's null flag.
func (t Tuple) SetNotNullSlot(sd *sqlbase.SlotDescriptor) {
	if sd.NullIndicatorBit < 0 {
		return
	}
	t.buf[sd.NullIndicatorByte] &^= sd.NullMask()
}

func (t Tuple) slot(sd *sqlbase.SlotDescriptor) []byte {
	return t.buf[sd.Offset : sd.Offset+sd.Type.Size()]
}

// Bool returns the value of a Bool slot.
func (t Tuple) Bool(sd *sqlbase.SlotDescriptor) bool {
	return t.buf[sd.Offset] != 0
}

// SetBool sets the value of a Bool slot.
func (t Tuple) SetBool(sd *sqlbase.SlotDescriptor, v bool) {
	var b byte
	if v {
		b = 1
	}
	t.buf[sd.Offset] = b
}

// Int8 returns the value of an Int8 slot.
func (t Tuple) Int8(sd *sqlbase.SlotDescriptor) int8 {
	return int8(t.buf[sd.Offset])
}

// SetInt8 sets the value of an Int8 slot.
func (t Tuple) SetInt8(sd *sqlbase.SlotDescriptor, v int8) {
	t.buf[sd.Offset] = byte(v)
}

// Int16 returns the value of an Int16 slot.
func (t Tuple) Int16(sd *sqlbase.SlotDescriptor) int16 {
	return int16(binary.LittleEndian.Uint16(t.slot(sd)))
}

// SetInt16 sets the value of an Int16 slot.
func (t Tuple) SetInt16(sd *sqlbase.SlotDescriptor, v int16) {
	binary.LittleEndian.PutUint16(t.slot(sd), uint16(v))
}

// Int32 returns the value of an Int32 slot.
func (t Tuple) Int32(sd *sqlbase.SlotDescriptor) int32 {
	return int32(binary.LittleEndian.Uint32(t.slot(sd)))
}

// SetInt32 sets the value of an Int32 slot.
func (t Tuple) SetInt32(sd *sqlbase.SlotDescriptor, v int32) {
	binary.LittleEndian.PutUint32(t.slot(sd), uint32(v))
}

// Int64 returns the value of an Int64 slot.
func (t Tuple) Int64(sd *sqlbase.SlotDescriptor) int64 {
	return int64(binary.LittleEndian.Uint64(t.slot(sd)))
}

// SetInt64 sets the value of an Int64 slot.
func (t Tuple) SetInt64(sd *sqlbase.SlotDescriptor, v int64) {
	binary.LittleEndian.PutUint64(t.slot(sd), uint64(v))
}

// Float returns the value of a Float slot.
func (t Tuple) Float(sd *sqlbase.SlotDescriptor) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(t.slot(sd)))
}

// SetFloat sets the value of a Float slot.
func (t Tuple) SetFloat(sd *sqlbase.SlotDescriptor, v float32) {
	binary.LittleEndian.PutUint32(t.slot(sd), math.Float32bits(v))
}

// Double returns the value of a Double slot.
func (t Tuple) Double(sd *sqlbase.SlotDescriptor) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(t.slot(sd)))
}

// SetDouble sets the value of a Double slot.
func (t Tuple) SetDouble(sd *sqlbase.SlotDescriptor, v float64) {
	binary.LittleEndian.PutUint64(t.slot(sd), math.Float64bits(v))
}

// Timestamp returns the value of a Timestamp slot, in UTC.
func (t Tuple) Timestamp(sd *sqlbase.SlotDescriptor) time.Time {
	return time.Unix(0, t.Int64(sd)).UTC()
}

// SetTimestamp sets the value of a Timestamp slot.
func (t Tuple) SetTimestamp(sd *sqlbase.SlotDescriptor, v time.Time) {
	t.SetInt64(sd, v.UnixNano())
}

// stringRef decodes the arena handle and length stored in a String slot.
func (t Tuple) stringRef(sd *sqlbase.SlotDescriptor) (arena.Handle, int) {
	b := t.slot(sd)
	h := arena.Handle{
		Chunk:  binary.LittleEndian.Uint32(b[0:4]),
		Offset: binary.LittleEndian.Uint32(b[4:8]),
	}
	return h, int(binary.LittleEndian.Uint32(b[8:12]))
}

// Bytes returns the payload of a String slot. The result aliases the pool's
// arena and is valid only while the pool is alive.
func (t Tuple) Bytes(sd *sqlbase.SlotDescriptor) []byte {
	h, n := t.stringRef(sd)
	return t.pool.arena.Resolve(h, n)
}

// String returns a copy of the payload of a String slot.
func (t Tuple) String(sd *sqlbase.SlotDescriptor) string {
	return string(t.Bytes(sd))
}

// SetString copies v into the tuple's pool and points the String slot at
// the copy. On allocation failure the slot is left unchanged.
func (t Tuple) SetString(ctx context.Context, sd *sqlbase.SlotDescriptor, v []byte) error {
	if uint64(len(v)) > math.MaxUint32 {
		return errors.Newf("string of %d bytes is too long", len(v))
	}
	h, buf, err := t.pool.arena.AllocateHandle(ctx, len(v))
	if err != nil {
		return err
	}
	copy(buf, v)
	b := t.slot(sd)
	binary.LittleEndian.PutUint32(b[0:4], h.Chunk)
	binary.LittleEndian.PutUint32(b[4:8], h.Offset)
	binary.LittleEndian.PutUint32(b[8:12], uint32(len(v)))
	return nil
}

// DeepCopy copies t into dest. The fixed-length bytes and null flags are
// copied as is and every non-null string payload is reallocated in dest, so
// the copy shares no memory with t. On failure the zero Tuple is returned.
func (t Tuple) DeepCopy(
	ctx context.Context, desc *sqlbase.TupleDescriptor, dest *Pool,
) (Tuple, error) {
	if t.IsNull() {
		return Tuple{}, nil
	}
	out, err := Alloc(ctx, dest, desc)
	if err != nil {
		return Tuple{}, err
	}
	copy(out.buf, t.buf)
	for _, sd := range desc.StringSlots() {
		if t.IsNullSlot(sd) {
			// Do not carry over a handle into the source arena.
			clear(out.slot(sd))
			continue
		}
		if err := out.SetString(ctx, sd, t.Bytes(sd)); err != nil {
			return Tuple{}, err
		}
	}
	return out, nil
}

// Format renders the tuple's values for debugging, e.g. (1, 'abc', NULL).
func (t Tuple) Format(desc *sqlbase.TupleDescriptor) string {
	if t.IsNull() {
		return "NULL"
	}
	var b strings.Builder
	b.WriteByte('(')
	first := true
	for _, sd := range desc.Slots {
		if !sd.Materialized {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(t.formatSlot(sd))
	}
	b.WriteByte(')')
	return b.String()
}

func (t Tuple) formatSlot(sd *sqlbase.SlotDescriptor) string {
	if t.IsNullSlot(sd) {
		return "NULL"
	}
	switch sd.Type {
	case types.Bool:
		return fmt.Sprint(t.Bool(sd))
	case types.Int8:
		return fmt.Sprint(t.Int8(sd))
	case types.Int16:
		return fmt.Sprint(t.Int16(sd))
	case types.Int32:
		return fmt.Sprint(t.Int32(sd))
	case types.Int64:
		return fmt.Sprint(t.Int64(sd))
	case types.Float:
		return fmt.Sprint(t.Float(sd))
	case types.Double:
		return fmt.Sprint(t.Double(sd))
	case types.Timestamp:
		return t.Timestamp(sd).Format(time.RFC3339Nano)
	case types.String:
		return fmt.Sprintf("'%s'", t.Bytes(sd))
	default:
		return "?"
	}
}
