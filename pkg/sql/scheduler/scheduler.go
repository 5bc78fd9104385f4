// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package scheduler maps the locations of a query's input data to the
// execution backends that should run the query's fragments.
//
// A backend is preferred for a data location when it runs on the
// location's host. A location with no such backend still gets exactly one
// backend, so that placement never fails merely because locality cannot be
// satisfied; it only fails when no backend is known at all.
//
// Two implementations are provided: StaticScheduler serves a fixed list of
// backends, and HeartbeatScheduler follows a Membership that backends join
// and leave at runtime. Both are safe for concurrent use once Init has
// returned.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/util/log"
)

// Scheduler resolves data locations to execution backends.
type Scheduler interface {
	// Init populates the set of known backends. It must complete
	// successfully before any other call, and can only be called once.
	Init(ctx context.Context) error
	// Close releases the resources of the scheduler. It is idempotent and
	// may race with in-flight calls, which then either complete or fail
	// with ErrClosed.
	Close(ctx context.Context)
	// GetHosts returns, for each location in order, the candidate backends
	// to run the fragment reading it. Every candidate list is non-empty.
	GetHosts(ctx context.Context, locations []HostPort) ([]HostList, error)
	// GetAllKnownHosts returns every known backend, sorted.
	GetAllKnownHosts(ctx context.Context) (HostList, error)
}

var (
	// ErrSchedulingUnavailable is returned when no backend is known, so no
	// fragment can be placed.
	ErrSchedulingUnavailable = errors.New("scheduling unavailable: no known backends")
	// ErrNotInitialized is returned by queries before a successful Init.
	ErrNotInitialized = errors.New("scheduler not initialized")
	// ErrAlreadyInitialized is returned by a second call to Init.
	ErrAlreadyInitialized = errors.New("scheduler already initialized")
	// ErrClosed is returned by calls after Close.
	ErrClosed = errors.New("scheduler closed")
)

type state int32

const (
	stateUninitialized state = iota
	stateInitializing
	stateInitialized
	// stateFailed is terminal: a scheduler whose Init failed cannot be used.
	stateFailed
	stateClosed
)

// core implements the lifecycle and the queries shared by the schedulers.
// Implementations wrap Init in beginInit and finishInit.
type core struct {
	kind    string
	state   atomic.Int32
	reg     registry
	metrics *Metrics
	every   log.EveryN
	// initErr is the cause of a failed Init. It is written before the
	// transition to stateFailed and read only after observing it.
	initErr error

	closeOnce sync.Once
}

func (c *core) init(kind string, metrics *Metrics) {
	if metrics == nil {
		metrics = MakeMetrics()
	}
	c.kind = kind
	c.metrics = metrics
	c.every = log.Every(missLogEvery)
	c.reg.init(metrics)
	metrics.Kind.Update(kind)
}

// Metrics returns the scheduler's metrics.
func (c *core) Metrics() *Metrics {
	return c.metrics
}

func (c *core) beginInit() error {
	if c.state.CompareAndSwap(int32(stateUninitialized), int32(stateInitializing)) {
		return nil
	}
	switch state(c.state.Load()) {
	case stateClosed:
		return ErrClosed
	case stateFailed:
		return c.failedErr()
	default:
		return ErrAlreadyInitialized
	}
}

// failedErr is returned by every operation after a failed Init.
func (c *core) failedErr() error {
	return errors.Wrapf(ErrNotInitialized, "%s scheduler failed to initialize: %v", c.kind, c.initErr)
}

// finishInit completes Init. A failed Init leaves the scheduler unusable.
func (c *core) finishInit(ctx context.Context, err error) error {
	if err != nil {
		c.initErr = err
		c.state.CompareAndSwap(int32(stateInitializing), int32(stateFailed))
		log.Errorf(ctx, "%s scheduler: init failed: %v", c.kind, err)
		return err
	}
	if !c.state.CompareAndSwap(int32(stateInitializing), int32(stateInitialized)) {
		// Closed while initializing.
		return ErrClosed
	}
	c.metrics.Ready.Update(true)
	log.Infof(ctx, "%s scheduler: initialized with %d backends", c.kind, len(c.reg.load().hosts))
	return nil
}

func (c *core) checkState() error {
	switch state(c.state.Load()) {
	case stateInitialized:
		return nil
	case stateClosed:
		return ErrClosed
	case stateFailed:
		return c.failedErr()
	default:
		return ErrNotInitialized
	}
}

// close marks the scheduler closed and runs release once.
func (c *core) close(ctx context.Context, release func()) {
	c.state.Store(int32(stateClosed))
	c.metrics.Ready.Update(false)
	c.closeOnce.Do(func() {
		if release != nil {
			release()
		}
		log.Infof(ctx, "%s scheduler: closed", c.kind)
	})
}

// GetHosts implements the Scheduler interface.
func (c *core) GetHosts(ctx context.Context, locations []HostPort) ([]HostList, error) {
	if err := c.checkState(); err != nil {
		return nil, err
	}
	c.metrics.GetHostsCount.Inc(1)
	if len(locations) == 0 {
		return []HostList{}, nil
	}
	snap := c.reg.load()
	if len(snap.hosts) == 0 {
		c.metrics.Unavailable.Inc(1)
		return nil, ErrSchedulingUnavailable
	}
	return snap.resolveLocations(ctx, locations, c.metrics, &c.every), nil
}

// GetAllKnownHosts implements the Scheduler interface.
func (c *core) GetAllKnownHosts(ctx context.Context) (HostList, error) {
	if err := c.checkState(); err != nil {
		return nil, err
	}
	return append(HostList{}, c.reg.load().hosts...), nil
}
