// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"math"
	"sync/atomic"
)

// Metadata holds the name and description of a metric.
type Metadata struct {
	Name string
	Help string
}

// GetName returns the metric's name.
func (m Metadata) GetName() string { return m.Name }

// GetHelp returns the metric's help text.
func (m Metadata) GetHelp() string { return m.Help }

// Iterable provides a method for synchronized access to a metric's value.
type Iterable interface {
	// GetName returns the fully-qualified name of the metric.
	GetName() string
	// GetHelp returns the help text for the metric.
	GetHelp() string
	// Value returns the current value of the metric: an int64, float64,
	// string or bool.
	Value() interface{}
}

// Struct can be implemented by the types of members of a metric
// container so that the members get automatically registered by
// Registry.AddMetricStruct.
type Struct interface {
	MetricStruct()
}

// A Counter holds a single mutable atomic value that only goes up.
type Counter struct {
	Metadata
	count atomic.Int64
}

// NewCounter creates a counter.
func NewCounter(metadata Metadata) *Counter {
	return &Counter{Metadata: metadata}
}

// Inc atomically increments the counter by v, which must not be negative.
func (c *Counter) Inc(v int64) {
	c.count.Add(v)
}

// Count returns the current value of the counter.
func (c *Counter) Count() int64 {
	return c.count.Load()
}

// Value implements Iterable.
func (c *Counter) Value() interface{} {
	return c.Count()
}

// A Gauge atomically stores a single integer value.
type Gauge struct {
	Metadata
	value atomic.Int64
}

// NewGauge creates a Gauge.
func NewGauge(metadata Metadata) *Gauge {
	return &Gauge{Metadata: metadata}
}

// Snapshot returns the current value of the gauge.
func (g *Gauge) Snapshot() int64 {
	return g.value.Load()
}

// Update sets the gauge's value.
func (g *Gauge) Update(v int64) {
	g.value.Store(v)
}

// Inc increments the gauge's value and returns the new value.
func (g *Gauge) Inc(i int64) int64 {
	return g.value.Add(i)
}

// Dec decrements the gauge's value and returns the new value.
func (g *Gauge) Dec(i int64) int64 {
	return g.value.Add(-i)
}

// TestAndSet sets the value to v if the current value equals test. In all
// cases it returns the value observed before the call, so the caller can
// detect success by comparing the result with test.
func (g *Gauge) TestAndSet(v, test int64) int64 {
	if g.value.CompareAndSwap(test, v) {
		return test
	}
	return g.value.Load()
}

// Value implements Iterable.
func (g *Gauge) Value() interface{} {
	return g.Snapshot()
}

// A GaugeFloat64 atomically stores a single float64 value.
type GaugeFloat64 struct {
	Metadata
	bits atomic.Uint64
}

// NewGaugeFloat64 creates a GaugeFloat64.
func NewGaugeFloat64(metadata Metadata) *GaugeFloat64 {
	return &GaugeFloat64{Metadata: metadata}
}

// Snapshot returns the current value of the gauge.
func (g *GaugeFloat64) Snapshot() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Update sets the gauge's value.
func (g *GaugeFloat64) Update(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Inc atomically adds delta to the gauge.
func (g *GaugeFloat64) Inc(delta float64) {
	for {
		old := g.bits.Load()
		n := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, n) {
			return
		}
	}
}

// Value implements Iterable.
func (g *GaugeFloat64) Value() interface{} {
	return g.Snapshot()
}

// StringValue holds a string that can be read and replaced atomically.
// It is not exported to Prometheus, but shows up in the text and JSON
// renderings of a registry.
type StringValue struct {
	Metadata
	value atomic.Pointer[string]
}

// NewStringValue creates a StringValue with an initial value.
func NewStringValue(metadata Metadata, initial string) *StringValue {
	s := &StringValue{Metadata: metadata}
	s.value.Store(&initial)
	return s
}

// Snapshot returns the current value.
func (s *StringValue) Snapshot() string {
	if p := s.value.Load(); p != nil {
		return *p
	}
	return ""
}

// Update replaces the value.
func (s *StringValue) Update(v string) {
	s.value.Store(&v)
}

// TestAndSet replaces the value with v if it currently equals test, and
// returns the value observed before the call.
func (s *StringValue) TestAndSet(v, test string) string {
	for {
		p := s.value.Load()
		cur := ""
		if p != nil {
			cur = *p
		}
		if cur != test {
			return cur
		}
		if s.value.CompareAndSwap(p, &v) {
			return test
		}
	}
}

// Value implements Iterable.
func (s *StringValue) Value() interface{} {
	return s.Snapshot()
}

// BoolValue holds a boolean flag, exported as 0/1.
type BoolValue struct {
	Metadata
	value atomic.Bool
}

// NewBoolValue creates a BoolValue.
func NewBoolValue(metadata Metadata) *BoolValue {
	return &BoolValue{Metadata: metadata}
}

// Update sets the flag.
func (b *BoolValue) Update(v bool) {
	b.value.Store(v)
}

// Snapshot returns the flag.
func (b *BoolValue) Snapshot() bool {
	return b.value.Load()
}

// Value implements Iterable.
func (b *BoolValue) Value() interface{} {
	return b.Snapshot()
}
