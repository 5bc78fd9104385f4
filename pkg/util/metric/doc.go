// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

/*
Package metric provides the named counters and values that components
expose to an external publisher (the status server renders them as text,
JSON and Prometheus exposition).

# Adding a new metric

Declare the metrics of a component in a struct, construct each metric from
a Metadata and register the whole struct:

	type Metrics struct {
		LocalityHits *metric.Counter
	}

	func (Metrics) MetricStruct() {}

	m := Metrics{
		LocalityHits: metric.NewCounter(metric.Metadata{
			Name: "scheduler.locality.hits",
			Help: "Data locations served by a co-located backend",
		}),
	}
	registry.AddMetricStruct(m)

The metric can then be updated with m.LocalityHits.Inc(1).

# Concurrency

Metric values are atomics, so updating a metric never takes a lock and
readers see a consistent value per metric. The registry only locks its
name map, during registration and while copying the list of metrics at the
start of a scrape.
*/
package metric
