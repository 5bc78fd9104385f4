// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type testMetrics struct {
	Hits    *Counter
	Live    *Gauge
	Ratio   *GaugeFloat64
	Kind    *StringValue
	Ready   *BoolValue
	Skipped *Counter
	nested  *Counter
	Other   int
}

func (testMetrics) MetricStruct() {}

func makeTestMetrics() testMetrics {
	return testMetrics{
		Hits:  NewCounter(Metadata{Name: "test.hits", Help: "hits"}),
		Live:  NewGauge(Metadata{Name: "test.live", Help: "live"}),
		Ratio: NewGaugeFloat64(Metadata{Name: "test.ratio", Help: "ratio"}),
		Kind:  NewStringValue(Metadata{Name: "test.kind", Help: "kind"}, "static"),
		Ready: NewBoolValue(Metadata{Name: "test.ready", Help: "ready"}),
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	m := makeTestMetrics()
	r.AddMetricStruct(m)

	for _, name := range []string{"test.hits", "test.live", "test.ratio", "test.kind", "test.ready"} {
		require.True(t, r.Contains(name), name)
	}
	require.Len(t, r.Snapshot(), 5)

	m.Hits.Inc(3)
	m.Live.Update(7)
	m.Ratio.Update(0.5)
	m.Ready.Update(true)
	require.Equal(t, map[string]interface{}{
		"test.hits":  int64(3),
		"test.kind":  "static",
		"test.live":  int64(7),
		"test.ratio": 0.5,
		"test.ready": true,
	}, r.Snapshot())

	require.Error(t, r.AddMetric(NewCounter(Metadata{Name: "test.hits"})))
	require.Error(t, r.AddMetric(NewCounter(Metadata{})))
}

func TestRegistryRendering(t *testing.T) {
	r := NewRegistry()
	m := makeTestMetrics()
	r.AddMetricStruct(&m)
	m.Hits.Inc(2)

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	require.Equal(t, "test.hits:2\ntest.kind:static\ntest.live:0\ntest.ratio:0\ntest.ready:false\n", buf.String())

	buf.Reset()
	require.NoError(t, r.WriteJSON(&buf))
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "2", decoded["test.hits"])
	require.Equal(t, "static", decoded["test.kind"])
}

func TestTestAndSet(t *testing.T) {
	g := NewGauge(Metadata{Name: "g"})
	require.Equal(t, int64(0), g.TestAndSet(5, 0))
	require.Equal(t, int64(5), g.Snapshot())
	// The test value does not match; the current value is returned.
	require.Equal(t, int64(5), g.TestAndSet(9, 0))
	require.Equal(t, int64(5), g.Snapshot())

	s := NewStringValue(Metadata{Name: "s"}, "a")
	require.Equal(t, "a", s.TestAndSet("b", "a"))
	require.Equal(t, "b", s.TestAndSet("c", "a"))
	require.Equal(t, "b", s.Snapshot())
}

func TestConcurrentUpdates(t *testing.T) {
	c := NewCounter(Metadata{Name: "c"})
	f := NewGaugeFloat64(Metadata{Name: "f"})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc(1)
				f.Inc(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(10000), c.Count())
	require.Equal(t, float64(10000), f.Snapshot())
}

func TestPrometheusExporter(t *testing.T) {
	r := NewRegistry()
	m := makeTestMetrics()
	r.AddMetricStruct(m)
	m.Hits.Inc(4)
	m.Ready.Update(true)

	pm := MakePrometheusExporter()
	pm.ScrapeRegistry(r)
	families, err := pm.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	// The string value has no prometheus representation.
	require.Equal(t, []string{"test_hits", "test_live", "test_ratio", "test_ready"}, names)
	require.Equal(t, float64(4), families[0].Metric[0].GetCounter().GetValue())
	require.Equal(t, float64(1), families[3].Metric[0].GetGauge().GetValue())
}
