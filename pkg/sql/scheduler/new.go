// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package scheduler

import (
	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/base"
)

// Deps are the collaborators of a scheduler built by New.
type Deps struct {
	// Resolver is used by the static scheduler. Optional.
	Resolver Resolver
	// Membership is required by the heartbeat scheduler.
	Membership Membership
	// Metrics is optional.
	Metrics *Metrics
}

// New returns an uninitialized scheduler of the configured kind.
func New(cfg base.SchedulerConfig, deps Deps) (Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case base.SchedulerStatic:
		backends, err := ParseHostPorts(cfg.Backends)
		if err != nil {
			return nil, errors.Wrapf(err, "static scheduler backends")
		}
		return NewStaticScheduler(backends, StaticOptions{
			Resolver:       deps.Resolver,
			ResolveTimeout: cfg.ResolveTimeout,
			Metrics:        deps.Metrics,
		}), nil
	case base.SchedulerHeartbeat:
		if deps.Membership == nil {
			return nil, errors.AssertionFailedf("heartbeat scheduler requires a membership")
		}
		return NewHeartbeatScheduler(deps.Membership, deps.Metrics), nil
	default:
		return nil, errors.AssertionFailedf("unhandled scheduler kind %q", cfg.Kind)
	}
}
