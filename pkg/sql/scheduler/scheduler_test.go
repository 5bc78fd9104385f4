// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/kr/pretty"
	"github.com/sparrowsql/sparrow/pkg/base"
	"github.com/sparrowsql/sparrow/pkg/testutils"
	"github.com/sparrowsql/sparrow/pkg/util/leaktest"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/retry"
	"github.com/sparrowsql/sparrow/pkg/util/stop"
	"github.com/sparrowsql/sparrow/pkg/util/timeutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakeResolver resolves the hosts in its table and fails for the others.
type fakeResolver struct {
	mu      sync.Mutex
	table   map[string][]string
	lookups int
}

func (r *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if addrs, ok := r.table[host]; ok {
		return addrs, nil
	}
	return nil, errors.Newf("lookup %s: no such host", host)
}

var testRetry = retry.Options{
	InitialBackoff: time.Millisecond,
	MaxBackoff:     time.Millisecond,
	Multiplier:     2,
	MaxRetries:     1,
}

func hp(t *testing.T, s string) HostPort {
	t.Helper()
	h, err := ParseHostPort(s)
	require.NoError(t, err)
	return h
}

func hps(t *testing.T, addrs ...string) []HostPort {
	t.Helper()
	res, err := ParseHostPorts(addrs)
	require.NoError(t, err)
	return res
}

func newStatic(t *testing.T, r Resolver, addrs ...string) *StaticScheduler {
	return NewStaticScheduler(hps(t, addrs...), StaticOptions{Resolver: r, Retry: testRetry})
}

func TestParseHostPort(t *testing.T) {
	for _, tc := range []struct {
		in      string
		exp     HostPort
		errLike string
	}{
		{in: "a:9000", exp: HostPort{Host: "a", Port: 9000}},
		{in: " 10.0.0.1:1 ", exp: HostPort{Host: "10.0.0.1", Port: 1}},
		{in: "[::1]:80", exp: HostPort{Host: "::1", Port: 80}},
		{in: "a", errLike: "invalid address"},
		{in: ":80", errLike: "missing host"},
		{in: "a:70000", errLike: "invalid port"},
		{in: "a:x", errLike: "invalid port"},
	} {
		t.Run(tc.in, func(t *testing.T) {
			res, err := ParseHostPort(tc.in)
			if tc.errLike != "" {
				require.ErrorContains(t, err, tc.errLike)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.exp, res)
		})
	}
	require.Equal(t, "[::1]:80", HostPort{Host: "::1", Port: 80}.String())
}

// TestGetHostsFallback checks that a location with no co-located backend
// gets exactly one known backend, the same one on every call.
func TestGetHostsFallback(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	s := newStatic(t, &fakeResolver{}, "b:9000", "a:9000")
	require.NoError(t, s.Init(ctx))
	defer s.Close(ctx)

	known, err := s.GetAllKnownHosts(ctx)
	require.NoError(t, err)
	require.Equal(t, HostList(hps(t, "a:9000", "b:9000")), known)

	locs := hps(t, "c:9000")
	first, err := s.GetHosts(ctx, locs)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Len(t, first[0], 1)
	require.Contains(t, known, first[0][0])
	// FNV-1 64 of "c:9000" picks the second backend.
	require.Equal(t, hp(t, "b:9000"), first[0][0])

	for i := 0; i < 100; i++ {
		res, err := s.GetHosts(ctx, locs)
		require.NoError(t, err)
		if diff := pretty.Diff(first, res); len(diff) > 0 {
			t.Fatalf("call %d: fallback changed:\n%s", i, strings.Join(diff, "\n"))
		}
	}
	require.EqualValues(t, 101, s.Metrics().LocalityMisses.Count())
	require.EqualValues(t, 0, s.Metrics().LocalityHits.Count())
	require.Equal(t, 0.0, s.Metrics().LocalityRatio.Snapshot())
}

// TestGetHostsSpreadsFallbacks checks that distinct locations without a
// co-located backend do not all land on the same backend.
func TestGetHostsSpreadsFallbacks(t *testing.T) {
	ctx := context.Background()
	s := newStatic(t, &fakeResolver{}, "a:9000", "b:9000", "c:9000")
	require.NoError(t, s.Init(ctx))
	defer s.Close(ctx)

	var locs []HostPort
	for i := 0; i < 64; i++ {
		locs = append(locs, HostPort{Host: fmt.Sprintf("10.1.%d.%d", i/8, i%8), Port: 50010})
	}
	res, err := s.GetHosts(ctx, locs)
	require.NoError(t, err)
	seen := map[HostPort]int{}
	for _, l := range res {
		require.Len(t, l, 1)
		seen[l[0]]++
	}
	require.Greater(t, len(seen), 1, "all fallbacks on one backend: %v", seen)
}

func TestGetHostsLocality(t *testing.T) {
	ctx := context.Background()
	r := &fakeResolver{table: map[string][]string{
		"a": {"10.0.0.1", "a"},
		"b": {"10.0.0.2"},
	}}
	s := newStatic(t, r, "a:9000", "a:9001", "b:9000", "10.0.0.3:9000")
	require.NoError(t, s.Init(ctx))
	defer s.Close(ctx)

	res, err := s.GetHosts(ctx, hps(t, "a:50010", "10.0.0.1:50010", "10.0.0.2:1", "10.0.0.3:1"))
	require.NoError(t, err)
	require.Equal(t, []HostList{
		hps(t, "a:9000", "a:9001"),
		hps(t, "a:9000", "a:9001"),
		hps(t, "b:9000"),
		hps(t, "10.0.0.3:9000"),
	}, res)
	require.EqualValues(t, 4, s.Metrics().LocalityHits.Count())

	// The result is a copy.
	res[0][0] = hp(t, "z:1")
	again, err := s.GetHosts(ctx, hps(t, "a:50010"))
	require.NoError(t, err)
	require.Equal(t, hp(t, "a:9000"), again[0][0])

	// IP literals are not resolved.
	require.Equal(t, 3, r.lookups)
}

func TestGetHostsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newStatic(t, &fakeResolver{}, "a:9000")
	require.NoError(t, s.Init(ctx))
	defer s.Close(ctx)

	res, err := s.GetHosts(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Empty(t, res)
}

func TestSchedulingUnavailable(t *testing.T) {
	ctx := context.Background()

	s := newStatic(t, &fakeResolver{})
	err := s.Init(ctx)
	require.True(t, errors.Is(err, ErrSchedulingUnavailable), "%+v", err)
	require.Contains(t, errors.FlattenHints(err), "at least one backend")

	// A failed Init is terminal.
	_, err = s.GetHosts(ctx, hps(t, "c:9000"))
	require.True(t, errors.Is(err, ErrNotInitialized), "%+v", err)
	require.ErrorContains(t, err, "no known backends")
	// Retrying Init reports the original failure.
	err = s.Init(ctx)
	require.True(t, errors.Is(err, ErrNotInitialized), "%+v", err)
	require.False(t, errors.Is(err, ErrAlreadyInitialized))
	require.ErrorContains(t, err, "no known backends")

	// A heartbeat scheduler whose backends all left reports unavailability
	// per request.
	clock := timeutil.NewManualTime(timeutil.Now())
	l := NewLiveness(clock, time.Second)
	l.Heartbeat(ctx, Backend{Addr: hp(t, "a:9000")})
	h := NewHeartbeatScheduler(l, nil)
	require.NoError(t, h.Init(ctx))
	defer h.Close(ctx)
	clock.Advance(time.Second)
	require.Equal(t, 1, l.ExpireNow(ctx))

	known, err := h.GetAllKnownHosts(ctx)
	require.NoError(t, err)
	require.Empty(t, known)
	_, err = h.GetHosts(ctx, hps(t, "c:9000"))
	require.True(t, errors.Is(err, ErrSchedulingUnavailable))
	require.EqualValues(t, 1, h.Metrics().Unavailable.Count())
	res, err := h.GetHosts(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStatic(t, &fakeResolver{}, "a:9000")

	_, err := s.GetHosts(ctx, hps(t, "a:1"))
	require.True(t, errors.Is(err, ErrNotInitialized))
	_, err = s.GetAllKnownHosts(ctx)
	require.True(t, errors.Is(err, ErrNotInitialized))

	require.False(t, s.Metrics().Ready.Snapshot())
	require.NoError(t, s.Init(ctx))
	require.True(t, s.Metrics().Ready.Snapshot())
	require.True(t, errors.Is(s.Init(ctx), ErrAlreadyInitialized))

	s.Close(ctx)
	s.Close(ctx)
	require.False(t, s.Metrics().Ready.Snapshot())
	_, err = s.GetHosts(ctx, hps(t, "a:1"))
	require.True(t, errors.Is(err, ErrClosed))
	_, err = s.GetAllKnownHosts(ctx)
	require.True(t, errors.Is(err, ErrClosed))
	require.True(t, errors.Is(s.Init(ctx), ErrClosed))

	// Init after Close is refused too.
	s2 := newStatic(t, &fakeResolver{}, "a:9000")
	s2.Close(ctx)
	require.True(t, errors.Is(s2.Init(ctx), ErrClosed))
}

func TestStaticInitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newStatic(t, &fakeResolver{}, "a:9000")
	err := s.Init(ctx)
	require.True(t, errors.Is(err, context.Canceled), "%+v", err)
	_, err = s.GetAllKnownHosts(context.Background())
	require.True(t, errors.Is(err, ErrNotInitialized))
}

// TestConcurrentQueriesAndClose runs queries while the scheduler is closed
// under them. Every call either succeeds with a full answer or fails with
// ErrClosed.
func TestConcurrentQueriesAndClose(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	s := newStatic(t, &fakeResolver{}, "a:9000", "b:9000")
	require.NoError(t, s.Init(ctx))

	locs := hps(t, "a:1", "c:9000", "b:2")
	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				res, err := s.GetHosts(ctx, locs)
				if errors.Is(err, ErrClosed) {
					return
				}
				if err != nil {
					errCh <- err
					return
				}
				if len(res) != len(locs) {
					errCh <- errors.Newf("got %d lists for %d locations", len(res), len(locs))
					return
				}
			}
		}()
	}
	s.Close(ctx)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}

// replayMembership emits events from within Members, the way a membership
// changes between the subscription and the read.
type replayMembership struct {
	members []Backend
	during  []MembershipEvent
	subs    []func(MembershipEvent)
	unsubs  int
}

func (m *replayMembership) Members(context.Context) ([]Backend, error) {
	for _, ev := range m.during {
		for _, fn := range m.subs {
			fn(ev)
		}
	}
	return m.members, nil
}

func (m *replayMembership) Subscribe(fn func(MembershipEvent)) func() {
	m.subs = append(m.subs, fn)
	return func() { m.unsubs++ }
}

// TestQueriesDuringMembershipChurn runs queries while backends join and
// expire. Readers must always observe a complete registry: a:9000 never
// expires, so every answer is non-empty and a:1 is always served locally.
func TestQueriesDuringMembershipChurn(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	const ttl = 10 * time.Second
	clock := timeutil.NewManualTime(timeutil.Now())
	l := NewLiveness(clock, ttl)
	a := hp(t, "a:9000")
	l.Heartbeat(ctx, Backend{Addr: a})
	s := NewHeartbeatScheduler(l, nil)
	require.NoError(t, s.Init(ctx))

	const writers, readers, iters = 4, 4, 200
	locs := hps(t, "a:1", "w0:1", "x:1", "y:2")
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < iters; i++ {
				addr := HostPort{Host: fmt.Sprintf("w%d", w), Port: int32(9000 + i%5)}
				l.Heartbeat(ctx, Backend{Addr: addr})
			}
			return nil
		})
	}
	// A single goroutine expires backends, renewing a:9000 first so that it
	// never expires.
	g.Go(func() error {
		for i := 0; i < iters/10; i++ {
			clock.Advance(ttl)
			l.Heartbeat(ctx, Backend{Addr: a})
			l.ExpireNow(ctx)
		}
		return nil
	})
	for r := 0; r < readers; r++ {
		g.Go(func() error {
			for i := 0; i < iters; i++ {
				res, err := s.GetHosts(ctx, locs)
				if err != nil {
					return err
				}
				if len(res) != len(locs) {
					return errors.Newf("%d results for %d locations", len(res), len(locs))
				}
				for j, hosts := range res {
					if len(hosts) == 0 {
						return errors.Newf("no candidates for %s", locs[j])
					}
				}
				if !res[0].Equal(HostList{a}) {
					return errors.Newf("a:1 served by %s", res[0])
				}
				known, err := s.GetAllKnownHosts(ctx)
				if err != nil {
					return err
				}
				if len(known) == 0 || !sort.SliceIsSorted(known, func(i, j int) bool {
					return known[i].Less(known[j])
				}) {
					return errors.Newf("bad known hosts %s", known)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	s.Close(ctx)
	s.Close(ctx)
	_, err := s.GetHosts(ctx, locs)
	require.True(t, errors.Is(err, ErrClosed))
}

func TestHeartbeatInitKeepsConcurrentChanges(t *testing.T) {
	ctx := context.Background()
	a := Backend{Addr: HostPort{Host: "a", Port: 9000}}
	b := Backend{Addr: HostPort{Host: "b", Port: 9000}}
	c := Backend{Addr: HostPort{Host: "c", Port: 9000}}
	m := &replayMembership{
		// b left and c joined after the members were read.
		members: []Backend{a, b},
		during: []MembershipEvent{
			{Type: BackendLeft, Backend: b},
			{Type: BackendJoined, Backend: c},
		},
	}
	s := NewHeartbeatScheduler(m, nil)
	require.NoError(t, s.Init(ctx))
	known, err := s.GetAllKnownHosts(ctx)
	require.NoError(t, err)
	require.Equal(t, HostList{a.Addr, c.Addr}, known)

	s.Close(ctx)
	require.Equal(t, 1, m.unsubs)
	// Events after Close are ignored.
	m.subs[0](MembershipEvent{Type: BackendLeft, Backend: a})
	require.EqualValues(t, 2, s.Metrics().KnownHosts.Snapshot())
}

func TestHeartbeatInitFailures(t *testing.T) {
	ctx := context.Background()

	empty := &replayMembership{}
	s := NewHeartbeatScheduler(empty, nil)
	err := s.Init(ctx)
	require.True(t, errors.Is(err, ErrSchedulingUnavailable), "%+v", err)
	require.Equal(t, 1, empty.unsubs)

	s = NewHeartbeatScheduler(failingMembership{}, nil)
	err = s.Init(ctx)
	require.True(t, errors.Is(err, ErrSchedulingUnavailable), "%+v", err)
	require.ErrorContains(t, err, "membership unreachable")
}

// TestHeartbeatChangesOutliveInitContext checks that membership changes
// applied after Init do not use the context Init was called with.
func TestHeartbeatChangesOutliveInitContext(t *testing.T) {
	var buf bytes.Buffer
	defer log.SetOutput(&buf)()
	log.SetVerbosity(1)
	defer log.SetVerbosity(0)

	ctx := context.Background()
	l := NewLiveness(timeutil.NewManualTime(timeutil.Now()), time.Minute)
	l.Heartbeat(ctx, Backend{Addr: hp(t, "a:9000")})
	s := NewHeartbeatScheduler(l, nil)
	defer s.Close(ctx)

	initCtx, cancel := context.WithCancel(logtags.AddTag(ctx, "client", 7))
	require.NoError(t, s.Init(initCtx))
	cancel()

	buf.Reset()
	l.Heartbeat(ctx, Backend{Addr: hp(t, "b:9000")})
	known, err := s.GetAllKnownHosts(ctx)
	require.NoError(t, err)
	require.Equal(t, HostList(hps(t, "a:9000", "b:9000")), known)
	require.Contains(t, buf.String(), "[heartbeat] backend b:9000 joined")
	require.NotContains(t, buf.String(), "client")
}

type failingMembership struct{}

func (failingMembership) Members(context.Context) ([]Backend, error) {
	return nil, errors.New("membership unreachable")
}

func (failingMembership) Subscribe(func(MembershipEvent)) func() { return func() {} }

func TestLivenessExpiry(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	stopper := stop.NewStopper()
	defer stopper.Stop(ctx)

	clock := timeutil.NewManualTime(timeutil.Now())
	l := NewLiveness(clock, 10*time.Second)
	var mu sync.Mutex
	var events []string
	unsubscribe := l.Subscribe(func(ev MembershipEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, fmt.Sprintf("%s %s", ev.Type, ev.Backend.Addr))
	})
	defer unsubscribe()

	require.True(t, l.Heartbeat(ctx, Backend{Addr: hp(t, "a:9000")}))
	require.True(t, l.Heartbeat(ctx, Backend{Addr: hp(t, "b:9000")}))
	require.False(t, l.Heartbeat(ctx, Backend{Addr: hp(t, "a:9000")}))

	s := NewHeartbeatScheduler(l, nil)
	require.NoError(t, s.Init(ctx))
	defer s.Close(ctx)
	require.NoError(t, l.Start(ctx, stopper, time.Millisecond))

	clock.Advance(5 * time.Second)
	l.Heartbeat(ctx, Backend{Addr: hp(t, "b:9000")})
	clock.Advance(5 * time.Second)

	testutils.SucceedsSoon(t, func() error {
		known, err := s.GetAllKnownHosts(ctx)
		if err != nil {
			return err
		}
		if exp := (HostList{hp(t, "b:9000")}); !known.Equal(exp) {
			return errors.Newf("known hosts %s, expected %s", known, exp)
		}
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"joined a:9000", "joined b:9000", "left a:9000"}, events)
}

func TestNew(t *testing.T) {
	cfg := base.DefaultConfig().Scheduler
	cfg.Backends = []string{"a:9000"}
	s, err := New(cfg, Deps{})
	require.NoError(t, err)
	require.IsType(t, &StaticScheduler{}, s)

	cfg.Backends = []string{"a"}
	_, err = New(cfg, Deps{})
	require.ErrorContains(t, err, "static scheduler backends")

	cfg = base.DefaultConfig().Scheduler
	cfg.Kind = base.SchedulerHeartbeat
	_, err = New(cfg, Deps{})
	require.True(t, errors.IsAssertionFailure(err))
	s, err = New(cfg, Deps{Membership: NewLiveness(nil, time.Second)})
	require.NoError(t, err)
	require.IsType(t, &HeartbeatScheduler{}, s)

	cfg.Kind = "round-robin"
	_, err = New(cfg, Deps{})
	require.ErrorContains(t, err, `unknown scheduler kind "round-robin"`)
}

func TestSchedulerDataDriven(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	var s Scheduler
	var l *Liveness
	var clock *timeutil.ManualTime
	r := &fakeResolver{table: map[string][]string{}}
	defer func() {
		if s != nil {
			s.Close(ctx)
		}
	}()

	errStr := func(err error) string {
		return fmt.Sprintf("error: %v", err)
	}
	argVals := func(d *datadriven.TestData, key string) []string {
		for _, arg := range d.CmdArgs {
			if arg.Key == key {
				return arg.Vals
			}
		}
		return nil
	}

	datadriven.RunTest(t, testutils.TestDataPath(t, "scheduler"), func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "resolver":
			// Each line is a host followed by its addresses.
			r.table = map[string][]string{}
			for _, line := range strings.Split(d.Input, "\n") {
				fields := strings.Fields(line)
				if len(fields) > 0 {
					r.table[fields[0]] = fields[1:]
				}
			}
			return ""

		case "new":
			if s != nil {
				s.Close(ctx)
			}
			var kind string
			d.ScanArgs(t, "kind", &kind)
			switch kind {
			case base.SchedulerStatic:
				s = newStatic(t, r, argVals(d, "backends")...)
			case base.SchedulerHeartbeat:
				clock = timeutil.NewManualTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
				l = NewLiveness(clock, 10*time.Second)
				s = NewHeartbeatScheduler(l, nil)
			default:
				d.Fatalf(t, "unknown kind %q", kind)
			}
			return ""

		case "init":
			if err := s.Init(ctx); err != nil {
				return errStr(err)
			}
			return "ok"

		case "close":
			s.Close(ctx)
			return ""

		case "known-hosts":
			known, err := s.GetAllKnownHosts(ctx)
			if err != nil {
				return errStr(err)
			}
			return known.String()

		case "get-hosts":
			var locs []HostPort
			for _, line := range strings.Split(d.Input, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					locs = append(locs, hp(t, line))
				}
			}
			res, err := s.GetHosts(ctx, locs)
			if err != nil {
				return errStr(err)
			}
			var buf strings.Builder
			for i, loc := range locs {
				fmt.Fprintf(&buf, "%s -> %s\n", loc, res[i])
			}
			return buf.String()

		case "heartbeat":
			var addr string
			d.ScanArgs(t, "addr", &addr)
			joined := l.Heartbeat(ctx, Backend{Addr: hp(t, addr), Aliases: argVals(d, "aliases")})
			return fmt.Sprintf("joined=%t", joined)

		case "advance":
			var dur string
			d.ScanArgs(t, "by", &dur)
			td, err := time.ParseDuration(dur)
			require.NoError(t, err)
			clock.Advance(td)
			return ""

		case "expire":
			return fmt.Sprintf("expired=%d", l.ExpireNow(ctx))

		default:
			d.Fatalf(t, "unknown command %s", d.Cmd)
			return ""
		}
	})
}
