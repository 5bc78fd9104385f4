// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package arena

import (
	"fmt"

	"github.com/sparrowsql/sparrow/pkg/util/metric"
)

// Metrics are the counters shared by every arena of one class.
type Metrics struct {
	BytesAllocated  *metric.Counter
	ChunksAllocated *metric.Counter
	BytesReserved   *metric.Gauge
	Live            *metric.Gauge
}

// MetricStruct implements the metric.Struct interface.
func (Metrics) MetricStruct() {}

var _ metric.Struct = Metrics{}

// MakeMetrics instantiates the metrics for the given arena class.
func MakeMetrics(class string) *Metrics {
	md := func(suffix, help string) metric.Metadata {
		return metric.Metadata{
			Name: fmt.Sprintf("arena.%s.%s", class, suffix),
			Help: fmt.Sprintf(help, class),
		}
	}
	return &Metrics{
		BytesAllocated:  metric.NewCounter(md("bytes_allocated", "Bytes handed out by %s arenas")),
		ChunksAllocated: metric.NewCounter(md("chunks_allocated", "Chunks allocated by %s arenas")),
		BytesReserved:   metric.NewGauge(md("bytes_reserved", "Bytes currently reserved in chunks of live %s arenas")),
		Live:            metric.NewGauge(md("live", "Number of live %s arenas")),
	}
}
