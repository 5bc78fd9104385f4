// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package rowcontainer buffers rows past the lifetime of the pool that
// produced them, and spills buffered rows to compressed files.
package rowcontainer

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/sql/sqlbase"
	"github.com/sparrowsql/sparrow/pkg/sql/tuple"
	"github.com/sparrowsql/sparrow/pkg/util/metric"
)

// Metrics are the spill counters of row containers.
type Metrics struct {
	SpillRows  *metric.Counter
	SpillBytes *metric.Counter
}

// MetricStruct implements the metric.Struct interface.
func (Metrics) MetricStruct() {}

// MakeMetrics instantiates the row container metrics.
func MakeMetrics() *Metrics {
	return &Metrics{
		SpillRows: metric.NewCounter(metric.Metadata{
			Name: "rowcontainer.spill.rows",
			Help: "Rows written to spill files",
		}),
		SpillBytes: metric.NewCounter(metric.Metadata{
			Name: "rowcontainer.spill.bytes",
			Help: "Compressed bytes written to spill files",
		}),
	}
}

// MemRowContainer holds rows in a pool it owns. Rows added to it are deep
// copied, so callers may release their own pool right after AddRow.
type MemRowContainer struct {
	descs   []*sqlbase.TupleDescriptor
	pool    *tuple.Pool
	rows    []tuple.Row
	metrics *Metrics
	closed  bool
}

// NewMemRowContainer creates a container for rows of the given shape. The
// container takes ownership of pool and releases it on Close. metrics may
// be nil.
func NewMemRowContainer(
	descs []*sqlbase.TupleDescriptor, pool *tuple.Pool, metrics *Metrics,
) *MemRowContainer {
	return &MemRowContainer{descs: descs, pool: pool, metrics: metrics}
}

// Types returns the tuple descriptors of the container's rows.
func (c *MemRowContainer) Types() []*sqlbase.TupleDescriptor {
	return c.descs
}

// AddRow copies row into the container.
func (c *MemRowContainer) AddRow(ctx context.Context, row tuple.Row) error {
	if c.closed {
		return errors.AssertionFailedf("adding row to closed container")
	}
	if row.Len() != len(c.descs) {
		return errors.AssertionFailedf("row has %d tuples, expected %d", row.Len(), len(c.descs))
	}
	cp, err := row.DeepCopy(ctx, c.descs, c.pool)
	if err != nil {
		return err
	}
	c.rows = append(c.rows, cp)
	return nil
}

// Len returns the number of rows in the container.
func (c *MemRowContainer) Len() int {
	return len(c.rows)
}

// At returns the i-th row. The row is owned by the container.
func (c *MemRowContainer) At(i int) tuple.Row {
	return c.rows[i]
}

// Sort stably sorts the rows with the given comparison.
func (c *MemRowContainer) Sort(less func(a, b tuple.Row) bool) {
	sort.SliceStable(c.rows, func(i, j int) bool {
		return less(c.rows[i], c.rows[j])
	})
}

// Close drops the rows and releases the container's pool.
func (c *MemRowContainer) Close(ctx context.Context) {
	if c.closed {
		return
	}
	c.closed = true
	c.rows = nil
	c.pool.Release(ctx)
}
