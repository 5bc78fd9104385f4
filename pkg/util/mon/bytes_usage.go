// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package mon tracks memory usage against a byte budget.
//
// A BytesMonitor owns the budget. Each consumer (typically one arena) holds
// a BoundAccount obtained from the monitor and grows it before reserving
// memory. Accounts are single-writer; the monitor is safe for concurrent use
// by many accounts.
package mon

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/util/humanizeutil"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/syncutil"
)

// ErrBudgetExceeded marks all errors produced when a monitor cannot
// satisfy a reservation. Test for it with errors.Is.
var ErrBudgetExceeded = errors.New("memory budget exceeded")

// BytesMonitor defines an object that can track memory usage against a
// limit.
type BytesMonitor struct {
	name  string
	limit int64

	mu struct {
		syncutil.Mutex
		curAllocated int64
		maxAllocated int64
	}
}

// NewMonitor creates a monitor with the given limit. A limit <= 0 means
// the monitor never refuses a reservation.
func NewMonitor(name string, limit int64) *BytesMonitor {
	if limit <= 0 {
		limit = math.MaxInt64
	}
	return &BytesMonitor{name: name, limit: limit}
}

// NewUnlimitedMonitor creates a monitor without a limit.
func NewUnlimitedMonitor(name string) *BytesMonitor {
	return NewMonitor(name, 0)
}

// Name returns the monitor's name.
func (mm *BytesMonitor) Name() string {
	return mm.name
}

// Limit returns the budget of the monitor.
func (mm *BytesMonitor) Limit() int64 {
	return mm.limit
}

// AllocBytes returns the number of bytes currently reserved.
func (mm *BytesMonitor) AllocBytes() int64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.mu.curAllocated
}

// MaximumBytes returns the high water mark of reserved bytes.
func (mm *BytesMonitor) MaximumBytes() int64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.mu.maxAllocated
}

func (mm *BytesMonitor) reserveBytes(ctx context.Context, x int64) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.mu.curAllocated > mm.limit-x {
		log.VEventf(ctx, 2, "%s: cannot reserve %s, %s of %s in use",
			mm.name, humanizeutil.IBytes(x), humanizeutil.IBytes(mm.mu.curAllocated),
			humanizeutil.IBytes(mm.limit))
		return errors.Mark(
			errors.Newf("%s: memory budget exceeded: %d bytes requested, %d currently allocated, %d bytes in budget",
				errors.Safe(mm.name), x, mm.mu.curAllocated, mm.limit),
			ErrBudgetExceeded)
	}
	mm.mu.curAllocated += x
	if mm.mu.curAllocated > mm.mu.maxAllocated {
		mm.mu.maxAllocated = mm.mu.curAllocated
	}
	return nil
}

func (mm *BytesMonitor) releaseBytes(ctx context.Context, sz int64) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.mu.curAllocated < sz {
		log.Errorf(ctx, "%s: no bytes in account to release, current %d, free %d",
			mm.name, mm.mu.curAllocated, sz)
		sz = mm.mu.curAllocated
	}
	mm.mu.curAllocated -= sz
}

// BoundAccount tracks the bytes reserved by one consumer against its
// monitor. It is not safe for concurrent use.
type BoundAccount struct {
	used int64
	mon  *BytesMonitor
}

// MakeBoundAccount creates a BoundAccount connected to the given monitor.
func (mm *BytesMonitor) MakeBoundAccount() BoundAccount {
	return BoundAccount{mon: mm}
}

// Used returns the number of bytes currently reserved through this account.
func (b *BoundAccount) Used() int64 {
	if b == nil {
		return 0
	}
	return b.used
}

// Monitor returns the monitor the account is bound to.
func (b *BoundAccount) Monitor() *BytesMonitor {
	if b == nil {
		return nil
	}
	return b.mon
}

// Grow reserves x more bytes. On failure nothing is reserved and the
// returned error is marked with ErrBudgetExceeded. A nil account accepts
// every reservation.
func (b *BoundAccount) Grow(ctx context.Context, x int64) error {
	if b == nil || b.mon == nil {
		return nil
	}
	if x < 0 {
		return errors.AssertionFailedf("cannot grow account by negative size %d", x)
	}
	if err := b.mon.reserveBytes(ctx, x); err != nil {
		return err
	}
	b.used += x
	return nil
}

// Shrink releases part of the reservation.
func (b *BoundAccount) Shrink(ctx context.Context, delta int64) {
	if b == nil || b.mon == nil {
		return
	}
	if b.used < delta {
		log.Errorf(ctx, "%s: no bytes in account to release, current %d, free %d",
			b.mon.name, b.used, delta)
		delta = b.used
	}
	b.used -= delta
	b.mon.releaseBytes(ctx, delta)
}

// Clear releases everything reserved through the account; the account
// remains usable.
func (b *BoundAccount) Clear(ctx context.Context) {
	b.Shrink(ctx, b.Used())
}

// Close releases everything reserved through the account.
func (b *BoundAccount) Close(ctx context.Context) {
	b.Clear(ctx)
}
