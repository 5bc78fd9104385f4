// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tuple

import (
	"context"
	"strings"

	"github.com/sparrowsql/sparrow/pkg/sql/sqlbase"
)

// Row is one logical row: one tuple per schema of the row's shape, in
// order. A null tuple at a position means the row has no values for that
// schema (e.g. the unmatched side of an outer join).
type Row []Tuple

// AllocRow allocates a row of n null tuples from pool.
func AllocRow(ctx context.Context, pool *Pool, n int) (Row, error) {
	refs, err := pool.allocRefs(ctx, n)
	if err != nil {
		return nil, err
	}
	return Row(refs), nil
}

// Len returns the number of tuples in the row.
func (r Row) Len() int {
	return len(r)
}

// GetTuple returns the tuple at position i. The index is not validated.
func (r Row) GetTuple(i int) Tuple {
	return r[i]
}

// SetTuple sets the tuple at position i. The index is not validated.
func (r Row) SetTuple(i int, t Tuple) {
	r[i] = t
}

// DeepCopy copies the row and every non-null tuple into dest, preserving
// positions. Null tuples stay null. descs must hold the descriptor of each
// position. On failure nil is returned and dest keeps whatever was
// allocated before the failure; nothing refers to it.
func (r Row) DeepCopy(
	ctx context.Context, descs []*sqlbase.TupleDescriptor, dest *Pool,
) (Row, error) {
	out, err := AllocRow(ctx, dest, len(descs))
	if err != nil {
		return nil, err
	}
	for i, desc := range descs {
		src := r.GetTuple(i)
		if src.IsNull() {
			continue
		}
		c, err := src.DeepCopy(ctx, desc, dest)
		if err != nil {
			return nil, err
		}
		out.SetTuple(i, c)
	}
	return out, nil
}

// String renders the row for debugging.
func (r Row) String(descs []*sqlbase.TupleDescriptor) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, desc := range descs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(r.GetTuple(i).Format(desc))
	}
	b.WriteByte(']')
	return b.String()
}
