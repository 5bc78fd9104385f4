// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/stop"
	"github.com/sparrowsql/sparrow/pkg/util/syncutil"
	"github.com/sparrowsql/sparrow/pkg/util/timeutil"
)

// Liveness is a Membership fed by backend heartbeats. A backend joins on
// its first heartbeat and leaves once it has not heartbeated for the TTL.
type Liveness struct {
	clock timeutil.TimeSource
	ttl   time.Duration

	// notifyMu serializes changes with the delivery of their events, so
	// that subscribers observe events in the order of the changes. It is
	// acquired before mu.
	notifyMu syncutil.Mutex

	mu struct {
		syncutil.Mutex
		backends    map[HostPort]Backend
		expirations map[HostPort]time.Time
		subs        map[int]func(MembershipEvent)
		nextSubID   int
	}
}

var _ Membership = (*Liveness)(nil)

// NewLiveness creates an empty Liveness. A nil clock uses the wall clock.
func NewLiveness(clock timeutil.TimeSource, ttl time.Duration) *Liveness {
	if clock == nil {
		clock = timeutil.DefaultTimeSource{}
	}
	l := &Liveness{clock: clock, ttl: ttl}
	l.mu.backends = map[HostPort]Backend{}
	l.mu.expirations = map[HostPort]time.Time{}
	l.mu.subs = map[int]func(MembershipEvent){}
	return l
}

// TTL returns the heartbeat time-to-live.
func (l *Liveness) TTL() time.Duration {
	return l.ttl
}

// Heartbeat records a heartbeat from b and returns whether b joined with
// it. A heartbeat with different aliases updates the backend and is
// reported as a join.
func (l *Liveness) Heartbeat(ctx context.Context, b Backend) bool {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	prev, known := l.mu.backends[b.Addr]
	l.mu.backends[b.Addr] = b
	l.mu.expirations[b.Addr] = l.clock.Now().Add(l.ttl)
	subs := l.subscribersLocked()
	l.mu.Unlock()

	if known && equalAliases(prev.Aliases, b.Aliases) {
		return false
	}
	if !known {
		log.Infof(ctx, "backend %s joined", b.Addr)
	}
	notify(subs, MembershipEvent{Type: BackendJoined, Backend: b})
	return !known
}

// Members implements the Membership interface.
func (l *Liveness) Members(context.Context) ([]Backend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := make([]Backend, 0, len(l.mu.backends))
	for _, b := range l.mu.backends {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Addr.Less(res[j].Addr) })
	return res, nil
}

// Subscribe implements the Membership interface. fn must not call back
// into the Liveness.
func (l *Liveness) Subscribe(fn func(MembershipEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.mu.nextSubID
	l.mu.nextSubID++
	l.mu.subs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.mu.subs, id)
	}
}

// ExpireNow removes the backends whose TTL has passed and returns how many
// were removed.
func (l *Liveness) ExpireNow(ctx context.Context) int {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	now := l.clock.Now()
	l.mu.Lock()
	var expired []Backend
	for addr, exp := range l.mu.expirations {
		if now.Before(exp) {
			continue
		}
		expired = append(expired, l.mu.backends[addr])
		delete(l.mu.expirations, addr)
		delete(l.mu.backends, addr)
	}
	subs := l.subscribersLocked()
	l.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].Addr.Less(expired[j].Addr) })
	for _, b := range expired {
		log.Warningf(ctx, "backend %s missed its heartbeats for %s, removing it", b.Addr, l.ttl)
		notify(subs, MembershipEvent{Type: BackendLeft, Backend: b})
	}
	return len(expired)
}

// Start runs ExpireNow every interval until the stopper quiesces.
func (l *Liveness) Start(ctx context.Context, stopper *stop.Stopper, interval time.Duration) error {
	return stopper.RunAsyncTask(ctx, "liveness-expiry", func(ctx context.Context) {
		var timer timeutil.Timer
		defer timer.Stop()
		for {
			timer.Reset(interval)
			select {
			case <-timer.C:
				timer.Read = true
				l.ExpireNow(ctx)
			case <-stopper.ShouldQuiesce():
				return
			case <-ctx.Done():
				return
			}
		}
	})
}

// subscribersLocked returns the subscribers in subscription order.
func (l *Liveness) subscribersLocked() []func(MembershipEvent) {
	ids := make([]int, 0, len(l.mu.subs))
	for id := range l.mu.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	res := make([]func(MembershipEvent), len(ids))
	for i, id := range ids {
		res[i] = l.mu.subs[id]
	}
	return res
}

func notify(subs []func(MembershipEvent), ev MembershipEvent) {
	for _, fn := range subs {
		fn(ev)
	}
}

func equalAliases(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
