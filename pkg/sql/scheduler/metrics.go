// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package scheduler

import "github.com/sparrowsql/sparrow/pkg/util/metric"

var (
	metaGetHostsCount = metric.Metadata{
		Name: "scheduler.get_hosts.count",
		Help: "Number of GetHosts calls",
	}
	metaLocalityHits = metric.Metadata{
		Name: "scheduler.locality.hits",
		Help: "Data locations served by a co-located backend",
	}
	metaLocalityMisses = metric.Metadata{
		Name: "scheduler.locality.misses",
		Help: "Data locations with no co-located backend, served by a fallback backend",
	}
	metaUnavailable = metric.Metadata{
		Name: "scheduler.unavailable.count",
		Help: "Scheduling requests that failed because no backend was known",
	}
	metaKnownHosts = metric.Metadata{
		Name: "scheduler.known_hosts",
		Help: "Number of backends known to the scheduler",
	}
	metaLocalityRatio = metric.Metadata{
		Name: "scheduler.locality.ratio",
		Help: "Fraction of data locations served by a co-located backend",
	}
	metaReady = metric.Metadata{
		Name: "scheduler.ready",
		Help: "Whether the scheduler is initialized and accepting requests",
	}
	metaKind = metric.Metadata{
		Name: "scheduler.kind",
		Help: "Scheduler implementation in use",
	}
)

// Metrics holds the scheduler's counters.
type Metrics struct {
	GetHostsCount  *metric.Counter
	LocalityHits   *metric.Counter
	LocalityMisses *metric.Counter
	Unavailable    *metric.Counter
	LocalityRatio  *metric.GaugeFloat64
	KnownHosts     *metric.Gauge
	Ready          *metric.BoolValue
	Kind           *metric.StringValue
}

// MetricStruct implements the metric.Struct interface.
func (Metrics) MetricStruct() {}

// MakeMetrics instantiates the scheduler metrics.
func MakeMetrics() *Metrics {
	return &Metrics{
		GetHostsCount:  metric.NewCounter(metaGetHostsCount),
		LocalityHits:   metric.NewCounter(metaLocalityHits),
		LocalityMisses: metric.NewCounter(metaLocalityMisses),
		Unavailable:    metric.NewCounter(metaUnavailable),
		LocalityRatio:  metric.NewGaugeFloat64(metaLocalityRatio),
		KnownHosts:     metric.NewGauge(metaKnownHosts),
		Ready:          metric.NewBoolValue(metaReady),
		Kind:           metric.NewStringValue(metaKind, ""),
	}
}
