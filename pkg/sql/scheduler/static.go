// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package scheduler

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/base"
	"github.com/sparrowsql/sparrow/pkg/util/humanizeutil"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/retry"
	"github.com/sparrowsql/sparrow/pkg/util/timeutil"
	"golang.org/x/sync/errgroup"
)

// Resolver looks up the addresses of a host. *net.Resolver implements it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

var _ Resolver = net.DefaultResolver

// maxConcurrentLookups bounds the lookups in flight during Init.
const maxConcurrentLookups = 16

// StaticOptions configures a StaticScheduler.
type StaticOptions struct {
	// Resolver defaults to net.DefaultResolver.
	Resolver Resolver
	// ResolveTimeout bounds the lookups of each backend.
	ResolveTimeout time.Duration
	// Retry configures the retries of a failed lookup.
	Retry   retry.Options
	Metrics *Metrics
}

// StaticScheduler serves a fixed list of backends. Init resolves the
// address of every backend host so that data locations given by IP address
// match backends configured by name.
type StaticScheduler struct {
	core
	backends []HostPort
	opts     StaticOptions
}

var _ Scheduler = (*StaticScheduler)(nil)

// NewStaticScheduler creates a scheduler for the given backends.
func NewStaticScheduler(backends []HostPort, opts StaticOptions) *StaticScheduler {
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = base.DefaultResolveTimeout
	}
	if opts.Retry.MaxRetries == 0 {
		opts.Retry = retry.Options{
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     time.Second,
			Multiplier:     2,
			MaxRetries:     2,
		}
	}
	s := &StaticScheduler{backends: backends, opts: opts}
	s.core.init(base.SchedulerStatic, opts.Metrics)
	return s
}

// Init implements the Scheduler interface.
func (s *StaticScheduler) Init(ctx context.Context) error {
	if err := s.beginInit(); err != nil {
		return err
	}
	return s.finishInit(ctx, s.populate(ctx))
}

func (s *StaticScheduler) populate(ctx context.Context) error {
	if len(s.backends) == 0 {
		return errors.WithHint(ErrSchedulingUnavailable,
			"configure at least one backend for the static scheduler")
	}
	start := timeutil.Now()
	backends := make([]Backend, len(s.backends))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i := range s.backends {
		i := i
		g.Go(func() error {
			aliases, err := s.lookup(gCtx, s.backends[i].Host)
			if err != nil {
				return err
			}
			backends[i] = Backend{Addr: s.backends[i], Aliases: aliases}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.VEventf(ctx, 1, "resolved %d backends in %s",
		len(backends), humanizeutil.Duration(timeutil.Since(start)))
	s.reg.replaceAll(backends)
	return nil
}

// lookup returns the addresses of host other than host itself. A host that
// cannot be resolved keeps only its literal name; the error returned is the
// caller's context error, if any.
func (s *StaticScheduler) lookup(ctx context.Context, host string) ([]string, error) {
	if net.ParseIP(host) != nil {
		return nil, nil
	}
	var lastErr error
	for r := retry.StartWithCtx(ctx, s.opts.Retry); r.Next(); {
		addrs, err := func() ([]string, error) {
			lookupCtx, cancel := context.WithTimeout(ctx, s.opts.ResolveTimeout)
			defer cancel()
			return s.opts.Resolver.LookupHost(lookupCtx, host)
		}()
		if err == nil {
			aliases := make([]string, 0, len(addrs))
			for _, a := range addrs {
				if a != host {
					aliases = append(aliases, a)
				}
			}
			sort.Strings(aliases)
			return aliases, nil
		}
		lastErr = err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Warningf(ctx, "unable to resolve backend host %q, matching it by name only: %v", host, lastErr)
	return nil, nil
}

// Close implements the Scheduler interface.
func (s *StaticScheduler) Close(ctx context.Context) {
	s.close(ctx, nil)
}
