// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	prometheusgo "github.com/prometheus/client_model/go"
	"github.com/sparrowsql/sparrow/pkg/util/syncutil"
)

// PrometheusExporter contains a map of metric families (a metric with
// multiple labels). It initializes each metric family once and reuses it
// for each prometheus scrape.
type PrometheusExporter struct {
	mu struct {
		syncutil.Mutex
		families map[string]*prometheusgo.MetricFamily
	}
}

var _ prometheus.Gatherer = (*PrometheusExporter)(nil)

// MakePrometheusExporter returns an initialized prometheus exporter.
func MakePrometheusExporter() *PrometheusExporter {
	pm := &PrometheusExporter{}
	pm.mu.families = map[string]*prometheusgo.MetricFamily{}
	return pm
}

// exportedName converts a metric name into a valid prometheus name, e.g.
// "scheduler.locality.hits" becomes "scheduler_locality_hits".
func exportedName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, name)
}

// ScrapeRegistry replaces the exporter's state with the current values of
// the registry's counters and gauges. String values have no prometheus
// representation and are skipped.
func (pm *PrometheusExporter) ScrapeRegistry(r *Registry) {
	families := map[string]*prometheusgo.MetricFamily{}
	for _, m := range r.metrics() {
		var typ prometheusgo.MetricType
		var out prometheusgo.Metric
		switch v := m.(type) {
		case *Counter:
			val := float64(v.Count())
			typ = prometheusgo.MetricType_COUNTER
			out.Counter = &prometheusgo.Counter{Value: &val}
		case *Gauge:
			val := float64(v.Snapshot())
			typ = prometheusgo.MetricType_GAUGE
			out.Gauge = &prometheusgo.Gauge{Value: &val}
		case *GaugeFloat64:
			val := v.Snapshot()
			typ = prometheusgo.MetricType_GAUGE
			out.Gauge = &prometheusgo.Gauge{Value: &val}
		case *BoolValue:
			var val float64
			if v.Snapshot() {
				val = 1
			}
			typ = prometheusgo.MetricType_GAUGE
			out.Gauge = &prometheusgo.Gauge{Value: &val}
		default:
			continue
		}
		name, help := exportedName(m.GetName()), m.GetHelp()
		families[name] = &prometheusgo.MetricFamily{
			Name:   &name,
			Help:   &help,
			Type:   &typ,
			Metric: []*prometheusgo.Metric{&out},
		}
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.mu.families = families
}

// Gather implements prometheus.Gatherer. The families are returned in name
// order.
func (pm *PrometheusExporter) Gather() ([]*prometheusgo.MetricFamily, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]*prometheusgo.MetricFamily, 0, len(pm.mu.families))
	for _, f := range pm.mu.families {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out, nil
}
