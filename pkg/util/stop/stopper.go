// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package stop provides a Stopper, which owns the lifetime of background
// goroutines. Tasks are started with RunAsyncTask and must return once the
// channel from ShouldQuiesce is closed; Stop waits for all of them and then
// runs the registered closers.
package stop

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/syncutil"
)

// ErrUnavailable indicates that the stopper is quiescing and no longer
// accepts tasks.
var ErrUnavailable = errors.New("stopper is quiescing")

// Closer is invoked by Stop after all tasks have finished.
type Closer interface {
	Close()
}

// CloserFn adapts a function to the Closer interface.
type CloserFn func()

// Close implements Closer.
func (f CloserFn) Close() { f() }

// A Stopper tracks a set of goroutines and closers.
type Stopper struct {
	quiescer chan struct{}
	stopped  chan struct{}
	tasks    sync.WaitGroup

	mu struct {
		syncutil.Mutex
		quiescing bool
		names     map[string]int
		closers   []Closer
	}
}

// NewStopper returns an initialized Stopper.
func NewStopper() *Stopper {
	s := &Stopper{
		quiescer: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	s.mu.names = map[string]int{}
	return s
}

// RunAsyncTask runs f in a goroutine. It returns ErrUnavailable, without
// running f, if the stopper is already quiescing.
func (s *Stopper) RunAsyncTask(ctx context.Context, taskName string, f func(context.Context)) error {
	s.mu.Lock()
	if s.mu.quiescing {
		s.mu.Unlock()
		return errors.Wrapf(ErrUnavailable, "starting %s", taskName)
	}
	s.mu.names[taskName]++
	s.tasks.Add(1)
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			if s.mu.names[taskName]--; s.mu.names[taskName] == 0 {
				delete(s.mu.names, taskName)
			}
			s.mu.Unlock()
			s.tasks.Done()
		}()
		f(ctx)
	}()
	return nil
}

// NumTasks returns the number of running tasks.
func (s *Stopper) NumTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, c := range s.mu.names {
		n += c
	}
	return n
}

// AddCloser adds a closer to be invoked on Stop. Closers run in reverse
// order of registration.
func (s *Stopper) AddCloser(c Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.closers = append(s.mu.closers, c)
}

// ShouldQuiesce returns a channel which is closed when Stop is called.
// Tasks must watch it and return promptly.
func (s *Stopper) ShouldQuiesce() <-chan struct{} {
	return s.quiescer
}

// IsStopped returns a channel which is closed once Stop has returned.
func (s *Stopper) IsStopped() <-chan struct{} {
	return s.stopped
}

// Stop signals all tasks to quiesce, waits for them and runs the closers.
// Calling Stop more than once is a no-op.
func (s *Stopper) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.mu.quiescing {
		s.mu.Unlock()
		<-s.stopped
		return
	}
	s.mu.quiescing = true
	close(s.quiescer)
	s.mu.Unlock()

	s.tasks.Wait()

	s.mu.Lock()
	closers := s.mu.closers
	s.mu.closers = nil
	s.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i].Close()
	}
	log.VEventf(ctx, 1, "stopper stopped; ran %d closers", len(closers))
	close(s.stopped)
}
