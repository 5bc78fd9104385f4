// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package scheduler

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/sparrowsql/sparrow/pkg/base"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/syncutil"
)

// EventType distinguishes membership events.
type EventType int

const (
	// BackendJoined is emitted when a backend becomes known.
	BackendJoined EventType = iota
	// BackendLeft is emitted when a backend is no longer known.
	BackendLeft
)

func (t EventType) String() string {
	switch t {
	case BackendJoined:
		return "joined"
	case BackendLeft:
		return "left"
	default:
		return "unknown"
	}
}

// MembershipEvent reports a change of membership.
type MembershipEvent struct {
	Type    EventType
	Backend Backend
}

// Membership is a source of live backends.
type Membership interface {
	// Members returns the current members.
	Members(ctx context.Context) ([]Backend, error)
	// Subscribe registers fn to be called, in order, for every later
	// change. The returned function unregisters fn.
	Subscribe(fn func(MembershipEvent)) (unsubscribe func())
}

// HeartbeatScheduler serves the backends of a Membership, following joins
// and departures as they happen.
type HeartbeatScheduler struct {
	core
	membership Membership
	// ambientCtx carries the log tags of membership changes applied after
	// Init returns.
	ambientCtx context.Context

	mu struct {
		syncutil.Mutex
		unsubscribe func()
		// While loading, events are queued in pending and applied once the
		// initial members are in the registry.
		loading bool
		pending []MembershipEvent
	}
}

var _ Scheduler = (*HeartbeatScheduler)(nil)

// NewHeartbeatScheduler creates a scheduler following m. metrics may be
// nil.
func NewHeartbeatScheduler(m Membership, metrics *Metrics) *HeartbeatScheduler {
	s := &HeartbeatScheduler{
		membership: m,
		ambientCtx: logtags.AddTag(context.Background(), "heartbeat", nil),
	}
	s.core.init(base.SchedulerHeartbeat, metrics)
	return s
}

// Init implements the Scheduler interface. It subscribes to the membership
// before reading the current members so that no change in between is lost:
// events received while loading are replayed, in order, on top of the
// loaded members.
func (s *HeartbeatScheduler) Init(ctx context.Context) error {
	if err := s.beginInit(); err != nil {
		return err
	}
	return s.finishInit(ctx, s.populate(ctx))
}

func (s *HeartbeatScheduler) populate(ctx context.Context) error {
	s.mu.Lock()
	s.mu.loading = true
	s.mu.Unlock()
	unsubscribe := s.membership.Subscribe(func(ev MembershipEvent) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.mu.loading {
			s.mu.pending = append(s.mu.pending, ev)
			return
		}
		s.apply(s.ambientCtx, ev)
	})
	members, err := s.membership.Members(ctx)
	if err == nil && len(members) == 0 {
		err = errors.WithHint(ErrSchedulingUnavailable,
			"no backend has sent a heartbeat yet")
	} else if err != nil {
		err = errors.Mark(errors.Wrapf(err, "reading membership"), ErrSchedulingUnavailable)
	}
	if err != nil {
		unsubscribe()
		s.mu.Lock()
		s.mu.loading = false
		s.mu.pending = nil
		s.mu.Unlock()
		return err
	}
	s.reg.replaceAll(members)
	s.mu.Lock()
	for _, ev := range s.mu.pending {
		s.apply(ctx, ev)
	}
	s.mu.loading = false
	s.mu.pending = nil
	// A Close racing with Init has already run its release.
	closed := state(s.state.Load()) == stateClosed
	if !closed {
		s.mu.unsubscribe = unsubscribe
	}
	s.mu.Unlock()
	if closed {
		unsubscribe()
	}
	return nil
}

func (s *HeartbeatScheduler) apply(ctx context.Context, ev MembershipEvent) {
	if state(s.state.Load()) == stateClosed {
		return
	}
	var changed bool
	switch ev.Type {
	case BackendJoined:
		changed = s.reg.upsert(ev.Backend)
	case BackendLeft:
		changed = s.reg.remove(ev.Backend.Addr)
	}
	if changed {
		log.VEventf(ctx, 1, "backend %s %s", ev.Backend.Addr, ev.Type)
	}
}

// Close implements the Scheduler interface.
func (s *HeartbeatScheduler) Close(ctx context.Context) {
	s.close(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.mu.unsubscribe != nil {
			s.mu.unsubscribe()
			s.mu.unsubscribe = nil
		}
	})
}
