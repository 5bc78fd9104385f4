// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sqlbase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sparrowsql/sparrow/pkg/sql/types"
)

// TupleID identifies a TupleDescriptor within its DescriptorTable.
type TupleID int32

// SlotID identifies a SlotDescriptor within its DescriptorTable. Slot IDs
// are unique across all tuples of a table.
type SlotID int32

// SafeValue implements the redact.SafeValue interface.
func (TupleID) SafeValue() {}

// SafeValue implements the redact.SafeValue interface.
func (SlotID) SafeValue() {}

// SlotDescriptor describes one typed value of a tuple and, once the parent
// tuple has been laid out, where that value lives in the tuple's bytes.
type SlotDescriptor struct {
	ID       SlotID
	Parent   TupleID
	Type     types.T
	Nullable bool
	// Materialized slots occupy bytes in the tuple. Slots that are not
	// materialized are described but never stored.
	Materialized bool

	// The fields below are set by ComputeMemLayout.

	// Offset is the byte offset of the value within the tuple, or -1.
	Offset int
	// NullIndicatorByte and NullIndicatorBit locate the slot's null flag.
	// Both are -1 for slots that are not nullable.
	NullIndicatorByte int
	NullIndicatorBit  int
}

// NullMask returns the bit mask of the slot within its null indicator
// byte, or 0 for slots that are not nullable.
func (sd *SlotDescriptor) NullMask() byte {
	if sd.NullIndicatorBit < 0 {
		return 0
	}
	return 1 << uint(sd.NullIndicatorBit)
}

func (sd *SlotDescriptor) String() string {
	return fmt.Sprintf("Slot(id=%d type=%s offset=%d null=(%d/%d))",
		sd.ID, sd.Type, sd.Offset, sd.NullIndicatorByte, sd.NullIndicatorBit)
}

// TupleDescriptor describes the layout of one tuple: its slots, the size of
// its fixed-length part and where each slot's value and null flag live.
type TupleDescriptor struct {
	ID    TupleID
	Slots []*SlotDescriptor
	// Table is the table the tuple is materialized from, if any.
	Table *TableName
	// Materialized tuples are shipped to and built by the execution engine.
	Materialized bool

	// ByteSize is the size of the fixed-length part of the tuple, including
	// the null indicator bytes. It is set by ComputeMemLayout.
	ByteSize int
	// NumNullBytes is the number of leading null indicator bytes.
	NumNullBytes int

	laidOut     bool
	stringSlots []*SlotDescriptor
}

// LaidOut returns whether ComputeMemLayout has run since the last slot was
// added.
func (td *TupleDescriptor) LaidOut() bool {
	return td.laidOut
}

// StringSlots returns the materialized slots whose values live out of line,
// in slot id order.
func (td *TupleDescriptor) StringSlots() []*SlotDescriptor {
	return td.stringSlots
}

// ComputeMemLayout assigns each materialized slot its null indicator and
// byte offset. Null indicator bytes come first, one bit per nullable slot in
// slot order. Values follow, largest first so that slots of equal width are
// packed together; ties keep slot order.
func (td *TupleDescriptor) ComputeMemLayout() {
	var materialized []*SlotDescriptor
	numNullable := 0
	for _, sd := range td.Slots {
		sd.Offset = -1
		sd.NullIndicatorByte, sd.NullIndicatorBit = -1, -1
		if !sd.Materialized {
			continue
		}
		materialized = append(materialized, sd)
		if sd.Nullable {
			sd.NullIndicatorByte = numNullable / 8
			sd.NullIndicatorBit = numNullable % 8
			numNullable++
		}
	}
	td.NumNullBytes = (numNullable + 7) / 8

	sort.SliceStable(materialized, func(i, j int) bool {
		return materialized[i].Type.Size() > materialized[j].Type.Size()
	})
	offset := td.NumNullBytes
	td.stringSlots = td.stringSlots[:0]
	for _, sd := range materialized {
		sd.Offset = offset
		offset += sd.Type.Size()
	}
	for _, sd := range td.Slots {
		if sd.Materialized && sd.Type.IsVarLen() {
			td.stringSlots = append(td.stringSlots, sd)
		}
	}
	td.ByteSize = offset
	td.laidOut = true
}

func (td *TupleDescriptor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tuple(id=%d size=%d", td.ID, td.ByteSize)
	if td.Table != nil {
		fmt.Fprintf(&b, " table=%s", td.Table)
	}
	b.WriteString(" slots=[")
	for i, sd := range td.Slots {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sd.String())
	}
	b.WriteString("])")
	return b.String()
}
