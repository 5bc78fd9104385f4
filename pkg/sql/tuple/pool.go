// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tuple

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/util/arena"
)

const (
	minSlabTuples = 64
	maxSlabTuples = 4096
)

var tupleRefSize = int64(unsafe.Sizeof(Tuple{}))

// Pool is the unit of row ownership. It pairs an arena, which holds tuple
// bytes and string payloads, with a slab of tuple references from which
// rows are carved. Releasing the pool invalidates every tuple and row
// allocated from it.
//
// Like its arena, a Pool is not safe for concurrent writers.
type Pool struct {
	arena *arena.Arena

	slab      []Tuple
	nextSlab  int
	slabBytes int64
	released  bool
}

// NewPool creates a pool on top of a. The pool takes ownership of the arena.
func NewPool(a *arena.Arena) *Pool {
	return &Pool{arena: a, nextSlab: minSlabTuples}
}

// Arena returns the arena backing the pool.
func (p *Pool) Arena() *arena.Arena {
	return p.arena
}

// allocRefs returns n zero tuple references.
func (p *Pool) allocRefs(ctx context.Context, n int) ([]Tuple, error) {
	if p.released {
		return nil, errors.Wrapf(arena.ErrReleased, "tuple pool")
	}
	if n < 0 {
		return nil, errors.AssertionFailedf("negative row width %d", n)
	}
	if cap(p.slab)-len(p.slab) < n {
		size := p.nextSlab
		if n > size {
			size = n
		}
		bytes := int64(size) * tupleRefSize
		if err := p.arena.Account().Grow(ctx, bytes); err != nil {
			return nil, errors.Wrapf(err, "allocating row slab of %d tuples", size)
		}
		p.slabBytes += bytes
		p.slab = make([]Tuple, 0, size)
		if p.nextSlab < maxSlabTuples {
			p.nextSlab *= 2
		}
	}
	off := len(p.slab)
	p.slab = p.slab[:off+n]
	return p.slab[off : off+n : off+n], nil
}

// Release releases the arena and the reference slab.
func (p *Pool) Release(ctx context.Context) {
	if p.released {
		return
	}
	p.released = true
	p.arena.Account().Shrink(ctx, p.slabBytes)
	p.arena.Release(ctx)
	p.slab = nil
	p.slabBytes = 0
}
