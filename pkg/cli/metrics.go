// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"github.com/sparrowsql/sparrow/pkg/sql/bytestream"
	"github.com/sparrowsql/sparrow/pkg/sql/rowcontainer"
	"github.com/sparrowsql/sparrow/pkg/util/arena"
	"github.com/sparrowsql/sparrow/pkg/util/metric"
)

// Arena classes of the row pipeline.
const (
	scanArenaClass  = "scan"
	rowsArenaClass  = "rows"
	spillArenaClass = "spill"
)

// sqlMetrics are the metrics of the row pipeline: one set of arena
// counters per arena class, plus the row container and byte stream
// counters.
type sqlMetrics struct {
	ScanArena    *arena.Metrics
	RowsArena    *arena.Metrics
	SpillArena   *arena.Metrics
	RowContainer *rowcontainer.Metrics
	ByteStream   *bytestream.Metrics
}

// MetricStruct implements the metric.Struct interface.
func (sqlMetrics) MetricStruct() {}

var _ metric.Struct = sqlMetrics{}

// makeSQLMetrics creates the row pipeline metrics and adds them to
// registry.
func makeSQLMetrics(registry *metric.Registry) *sqlMetrics {
	m := &sqlMetrics{
		ScanArena:    arena.MakeMetrics(scanArenaClass),
		RowsArena:    arena.MakeMetrics(rowsArenaClass),
		SpillArena:   arena.MakeMetrics(spillArenaClass),
		RowContainer: rowcontainer.MakeMetrics(),
		ByteStream:   bytestream.MakeMetrics(),
	}
	registry.AddMetricStruct(m)
	return m
}

// arenaMetrics returns the arena metrics of class.
func (m *sqlMetrics) arenaMetrics(class string) *arena.Metrics {
	switch class {
	case scanArenaClass:
		return m.ScanArena
	case rowsArenaClass:
		return m.RowsArena
	case spillArenaClass:
		return m.SpillArena
	default:
		return nil
	}
}
