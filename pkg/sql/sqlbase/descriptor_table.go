// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sqlbase

import (
	"strings"

	"github.com/sparrowsql/sparrow/pkg/sql/types"
)

// DescriptorTable is the repository for the tuple and slot descriptors of
// one query. Descriptors are only created through it so that their IDs are
// unique. It is not safe for concurrent use; it is built once during
// planning and read-only afterwards.
type DescriptorTable struct {
	tupleDescs map[TupleID]*TupleDescriptor
	ordered    []*TupleDescriptor
	// referencedTables are tables with no tuple descriptor that the query
	// still needs to know about, e.g. the target of an insert.
	referencedTables []TableName
	nextTupleID      TupleID
	nextSlotID       SlotID
}

// NewDescriptorTable creates an empty DescriptorTable.
func NewDescriptorTable() *DescriptorTable {
	return &DescriptorTable{tupleDescs: map[TupleID]*TupleDescriptor{}}
}

// CreateTupleDescriptor creates a materialized, empty tuple descriptor with
// the next tuple ID.
func (t *DescriptorTable) CreateTupleDescriptor() *TupleDescriptor {
	td := &TupleDescriptor{ID: t.nextTupleID, Materialized: true}
	t.nextTupleID++
	t.tupleDescs[td.ID] = td
	t.ordered = append(t.ordered, td)
	return td
}

// AddSlotDescriptor appends a materialized slot to td with the next slot
// ID. The tuple must be laid out again before it is used.
func (t *DescriptorTable) AddSlotDescriptor(
	td *TupleDescriptor, typ types.T, nullable bool,
) *SlotDescriptor {
	sd := &SlotDescriptor{
		ID:                t.nextSlotID,
		Parent:            td.ID,
		Type:              typ,
		Nullable:          nullable,
		Materialized:      true,
		Offset:            -1,
		NullIndicatorByte: -1,
		NullIndicatorBit:  -1,
	}
	t.nextSlotID++
	td.Slots = append(td.Slots, sd)
	td.laidOut = false
	return sd
}

// GetTupleDesc returns the descriptor with the given ID, or nil.
func (t *DescriptorTable) GetTupleDesc(id TupleID) *TupleDescriptor {
	return t.tupleDescs[id]
}

// TupleDescs returns every tuple descriptor in ID order.
func (t *DescriptorTable) TupleDescs() []*TupleDescriptor {
	return t.ordered
}

// MaxTupleID returns the highest tuple ID handed out so far, or -1.
func (t *DescriptorTable) MaxTupleID() TupleID {
	return t.nextTupleID - 1
}

// AddReferencedTable records a table the query touches without reading it
// into a tuple.
func (t *DescriptorTable) AddReferencedTable(tn TableName) {
	t.referencedTables = append(t.referencedTables, tn)
}

// ReferencedTables returns, without duplicates, the tables of all
// materialized tuple descriptors followed by the explicitly referenced
// tables.
func (t *DescriptorTable) ReferencedTables() []TableName {
	seen := map[TableName]struct{}{}
	var res []TableName
	add := func(tn TableName) {
		if _, ok := seen[tn]; ok {
			return
		}
		seen[tn] = struct{}{}
		res = append(res, tn)
	}
	for _, td := range t.ordered {
		if td.Materialized && td.Table != nil {
			add(*td.Table)
		}
	}
	for _, tn := range t.referencedTables {
		add(tn)
	}
	return res
}

// ComputeMemLayout lays out every tuple descriptor. It must be called after
// the last slot has been added.
func (t *DescriptorTable) ComputeMemLayout() {
	for _, td := range t.ordered {
		td.ComputeMemLayout()
	}
}

func (t *DescriptorTable) String() string {
	var b strings.Builder
	b.WriteString("tuples:\n")
	for _, td := range t.ordered {
		b.WriteString(td.String())
		b.WriteByte('\n')
	}
	return b.String()
}
