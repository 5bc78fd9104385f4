// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/btree"
	"github.com/sparrowsql/sparrow/pkg/util"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/syncutil"
)

// Backend is an execution backend and the other names of its host (e.g.
// the IP addresses a hostname resolves to). A data location is co-located
// with the backend if its host is the backend's host or one of the
// aliases.
type Backend struct {
	Addr    HostPort
	Aliases []string
}

const btreeDegree = 8

// backendItem is the btree item for a backend, ordered by address.
type backendItem Backend

// Less implements the btree.Item interface.
func (b *backendItem) Less(than btree.Item) bool {
	return b.Addr.Less(than.(*backendItem).Addr)
}

// snapshot is an immutable view of the registry. Readers load it once per
// call and never observe a partial update.
type snapshot struct {
	// hosts holds every backend address, sorted.
	hosts HostList
	// byHost maps each host name and alias to the sorted backends on it.
	byHost map[string]HostList
}

var emptySnapshot = &snapshot{byHost: map[string]HostList{}}

// registry is the set of known backends. Writers serialize on mu and
// publish a fresh snapshot after every change.
type registry struct {
	mu struct {
		syncutil.Mutex
		index *btree.BTree
	}
	snap    atomic.Pointer[snapshot]
	metrics *Metrics
}

func (r *registry) init(metrics *Metrics) {
	r.metrics = metrics
	r.mu.index = btree.New(btreeDegree)
	r.snap.Store(emptySnapshot)
}

func (r *registry) load() *snapshot {
	return r.snap.Load()
}

// replaceAll replaces the registry contents with backends.
func (r *registry) replaceAll(backends []Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mu.index.Clear(false /* addNodesToFreelist */)
	for i := range backends {
		b := backends[i]
		r.mu.index.ReplaceOrInsert((*backendItem)(&b))
	}
	r.publishLocked()
}

// upsert adds or updates a backend and returns whether it was new.
func (r *registry) upsert(b Backend) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.mu.index.ReplaceOrInsert((*backendItem)(&b))
	r.publishLocked()
	return prev == nil
}

// remove removes the backend with the given address and returns whether it
// was known.
func (r *registry) remove(addr HostPort) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mu.index.Delete(&backendItem{Addr: addr}) == nil {
		return false
	}
	r.publishLocked()
	return true
}

func (r *registry) publishLocked() {
	r.mu.AssertHeld()
	s := &snapshot{
		hosts:  make(HostList, 0, r.mu.index.Len()),
		byHost: make(map[string]HostList),
	}
	r.mu.index.Ascend(func(i btree.Item) bool {
		b := i.(*backendItem)
		s.hosts = append(s.hosts, b.Addr)
		s.byHost[b.Addr.Host] = append(s.byHost[b.Addr.Host], b.Addr)
		for _, alias := range b.Aliases {
			if alias == b.Addr.Host {
				continue
			}
			s.byHost[alias] = append(s.byHost[alias], b.Addr)
		}
		return true
	})
	// Backends are visited in address order, but a list keyed by an alias
	// can mix backends of different hosts.
	for _, l := range s.byHost {
		l.Sort()
	}
	r.snap.Store(s)
	if r.metrics != nil {
		r.metrics.KnownHosts.Update(int64(len(s.hosts)))
	}
}

// missLogEvery rate limits the logging of locality misses.
const missLogEvery = 10 * time.Second

// resolveLocations maps each location to its candidate backends. A
// location whose host runs no backend gets exactly one fallback backend,
// picked by hashing the location so that a fixed snapshot always answers
// the same way and distinct locations spread over the backends.
func (s *snapshot) resolveLocations(
	ctx context.Context, locations []HostPort, metrics *Metrics, every *log.EveryN,
) []HostList {
	res := make([]HostList, len(locations))
	var hits, misses int64
	for i, loc := range locations {
		if local, ok := s.byHost[loc.Host]; ok {
			res[i] = append(HostList(nil), local...)
			hits++
			continue
		}
		fallback := s.hosts[util.FNV64String(loc.String())%uint64(len(s.hosts))]
		res[i] = HostList{fallback}
		misses++
		if every.ShouldLog() {
			log.Infof(ctx, "no backend co-located with %s, falling back to %s", loc, fallback)
		}
	}
	if metrics != nil {
		metrics.LocalityHits.Inc(hits)
		metrics.LocalityMisses.Inc(misses)
		if total := metrics.LocalityHits.Count() + metrics.LocalityMisses.Count(); total > 0 {
			metrics.LocalityRatio.Update(float64(metrics.LocalityHits.Count()) / float64(total))
		}
	}
	return res
}
