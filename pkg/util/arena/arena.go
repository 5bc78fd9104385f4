// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package arena provides a bump allocator that hands out byte regions from
// a growing list of chunks and frees them all at once.
//
// An Arena never frees an individual allocation. Every region it returns
// stays valid and unchanged until Release is called, at which point all of
// them are invalidated simultaneously. An Arena is not safe for concurrent
// writers; readers may share the returned bytes once the writer is done.
package arena

import (
	"context"
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/sparrowsql/sparrow/pkg/util/humanizeutil"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/mon"
)

const (
	// DefaultChunkSize is the size of the first chunk of an arena.
	DefaultChunkSize = 4 << 10
	// DefaultMaxChunkSize caps the doubling of chunk sizes. Requests larger
	// than this get a dedicated chunk of exactly the requested size.
	DefaultMaxChunkSize = 1 << 20
)

// ErrReleased is returned by allocations against an arena that has been
// released.
var ErrReleased = errors.New("arena already released")

// Options configures an Arena. The zero value uses the defaults, no memory
// account and no metrics.
type Options struct {
	ChunkSize    int64
	MaxChunkSize int64
	// Account, if set, is charged for every chunk before the chunk is
	// created.
	Account *mon.BoundAccount
	Metrics *Metrics
}

// Handle identifies an allocation by chunk index and offset within the
// chunk. It stays meaningful for the lifetime of the arena that issued it.
type Handle struct {
	Chunk  uint32
	Offset uint32
}

// Arena is a bump-pointer allocator.
type Arena struct {
	class string
	opts  Options

	// chunks holds every chunk allocated so far. For each chunk, len is the
	// bump cursor and cap is the chunk size.
	chunks   [][]byte
	nextSize int64

	allocated int64
	footprint int64
	released  bool
}

// New creates an arena. The class names the kind of consumer (e.g.
// "rowcontainer") for metrics and error messages.
func New(class string, opts Options) *Arena {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultMaxChunkSize
	}
	if opts.MaxChunkSize < opts.ChunkSize {
		opts.MaxChunkSize = opts.ChunkSize
	}
	a := &Arena{class: class, opts: opts, nextSize: opts.ChunkSize}
	if m := opts.Metrics; m != nil {
		m.Live.Inc(1)
	}
	return a
}

// Class returns the class the arena was created with.
func (a *Arena) Class() string { return a.class }

// Account returns the memory account charged by the arena, if any.
func (a *Arena) Account() *mon.BoundAccount { return a.opts.Account }

// Allocate returns a zeroed region of n bytes. The returned slice has its
// capacity capped at n so that appending to it can never write into a
// neighboring allocation.
func (a *Arena) Allocate(ctx context.Context, n int) ([]byte, error) {
	_, b, err := a.AllocateHandle(ctx, n)
	return b, err
}

// Copy allocates len(b) bytes and copies b into them.
func (a *Arena) Copy(ctx context.Context, b []byte) ([]byte, error) {
	res, err := a.Allocate(ctx, len(b))
	if err != nil {
		return nil, err
	}
	copy(res, b)
	return res, nil
}

// AllocateHandle is like Allocate but also returns the handle of the
// region, which Resolve maps back to the same bytes.
func (a *Arena) AllocateHandle(ctx context.Context, n int) (Handle, []byte, error) {
	if a.released {
		return Handle{}, nil, errors.Wrapf(ErrReleased, "%s arena", redact.Safe(a.class))
	}
	if n < 0 {
		return Handle{}, nil, errors.AssertionFailedf("negative allocation size %d", n)
	}
	if n == 0 {
		return Handle{}, []byte{}, nil
	}
	if len(a.chunks) == 0 || cap(a.cur())-len(a.cur()) < n {
		if err := a.grow(ctx, int64(n)); err != nil {
			return Handle{}, nil, err
		}
	}
	idx := len(a.chunks) - 1
	c := a.chunks[idx]
	off := len(c)
	a.chunks[idx] = c[:off+n]
	a.allocated += int64(n)
	if m := a.opts.Metrics; m != nil {
		m.BytesAllocated.Inc(int64(n))
	}
	return Handle{Chunk: uint32(idx), Offset: uint32(off)}, c[off : off+n : off+n], nil
}

func (a *Arena) cur() []byte {
	return a.chunks[len(a.chunks)-1]
}

// grow adds a chunk able to hold at least n bytes. The chunk is charged to
// the account before it is created; on refusal the arena is unchanged.
func (a *Arena) grow(ctx context.Context, n int64) error {
	size := a.nextSize
	if n > size {
		size = n
	}
	if size > math.MaxUint32 {
		return errors.Newf("%s arena: allocation of %s exceeds the maximum chunk size",
			redact.Safe(a.class), humanizeutil.IBytes(n))
	}
	if err := a.opts.Account.Grow(ctx, size); err != nil {
		return errors.Wrapf(err, "%s arena: allocating %s chunk",
			redact.Safe(a.class), humanizeutil.IBytes(size))
	}
	a.chunks = append(a.chunks, make([]byte, 0, size))
	a.footprint += size
	if a.nextSize < a.opts.MaxChunkSize {
		a.nextSize *= 2
		if a.nextSize > a.opts.MaxChunkSize {
			a.nextSize = a.opts.MaxChunkSize
		}
	}
	if m := a.opts.Metrics; m != nil {
		m.ChunksAllocated.Inc(1)
		m.BytesReserved.Inc(size)
	}
	if log.V(3) {
		log.VEventf(ctx, 3, "%s arena: chunk %d of %s", redact.Safe(a.class), len(a.chunks), humanizeutil.IBytes(size))
	}
	return nil
}

// Resolve returns the n bytes at handle h. It panics if the arena has been
// released: every region an arena handed out dies with it.
func (a *Arena) Resolve(h Handle, n int) []byte {
	if a.released {
		panic(errors.AssertionFailedf("resolving handle %v in released %s arena", h, redact.Safe(a.class)))
	}
	if n == 0 {
		return []byte{}
	}
	c := a.chunks[h.Chunk]
	end := int(h.Offset) + n
	return c[h.Offset:end:end]
}

// Allocated returns the number of bytes handed out by the arena.
func (a *Arena) Allocated() int64 { return a.allocated }

// Footprint returns the number of bytes reserved in chunks.
func (a *Arena) Footprint() int64 { return a.footprint }

// NumChunks returns the number of chunks allocated so far.
func (a *Arena) NumChunks() int { return len(a.chunks) }

// Released returns whether Release has been called.
func (a *Arena) Released() bool { return a.released }

// Release drops every chunk and returns the footprint to the memory
// account. Every region previously returned by the arena becomes invalid.
// Release is idempotent.
func (a *Arena) Release(ctx context.Context) {
	if a.released {
		return
	}
	a.released = true
	a.opts.Account.Shrink(ctx, a.footprint)
	if m := a.opts.Metrics; m != nil {
		m.BytesReserved.Dec(a.footprint)
		m.Live.Dec(1)
	}
	a.chunks = nil
	a.footprint = 0
}

func (a *Arena) String() string {
	return fmt.Sprintf("%s arena: %s allocated in %d chunks (%s reserved)",
		a.class, humanizeutil.IBytes(a.allocated), len(a.chunks), humanizeutil.IBytes(a.footprint))
}
