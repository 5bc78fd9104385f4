// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package timeutil wraps time.Now behind a TimeSource so that components
// with expirations (heartbeat liveness, rate limited logging) can be driven
// by a manual clock in tests.
package timeutil

import (
	"time"

	"github.com/sparrowsql/sparrow/pkg/util/syncutil"
)

// Now returns the current UTC time.
func Now() time.Time {
	return time.Now().UTC()
}

// Since returns the time elapsed since t.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// TimeSource is used to interact with the clock.
type TimeSource interface {
	Now() time.Time
}

// DefaultTimeSource is a TimeSource using the system clock.
type DefaultTimeSource struct{}

var _ TimeSource = DefaultTimeSource{}

// Now returns timeutil.Now().
func (DefaultTimeSource) Now() time.Time {
	return Now()
}

// ManualTime is a TimeSource which only advances when told to. It is safe
// for concurrent use.
type ManualTime struct {
	mu struct {
		syncutil.Mutex
		now time.Time
	}
}

var _ TimeSource = (*ManualTime)(nil)

// NewManualTime constructs a ManualTime which starts at t.
func NewManualTime(t time.Time) *ManualTime {
	var m ManualTime
	m.mu.now = t
	return &m
}

// Now returns the current value of the manual clock.
func (m *ManualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mu.now
}

// Advance moves the clock forward by d.
func (m *ManualTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mu.now = m.mu.now.Add(d)
}
