// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package base

import "time"

const (
	// DefaultHTTPAddr is the default address of the status server.
	DefaultHTTPAddr = "localhost:25000"

	// DefaultMemoryBudget is the default limit on the bytes reserved by all
	// arenas of the process.
	DefaultMemoryBudget = 1 << 30

	// DefaultArenaChunkSize is the size of the first chunk of an arena.
	DefaultArenaChunkSize = 4 << 10

	// DefaultArenaMaxChunkSize caps the doubling of arena chunk sizes.
	DefaultArenaMaxChunkSize = 1 << 20

	// DefaultHeartbeatTTL is how long a backend stays known to the heartbeat
	// scheduler after its last heartbeat.
	DefaultHeartbeatTTL = 10 * time.Second

	// DefaultExpiryInterval is how often expired backends are removed.
	DefaultExpiryInterval = time.Second

	// DefaultResolveTimeout bounds the address lookups of the static
	// scheduler's Init.
	DefaultResolveTimeout = 5 * time.Second

	// DefaultSpillCodec is the compression codec of spill files.
	DefaultSpillCodec = "snappy"
)

const (
	// SchedulerStatic serves a fixed list of backends from the config.
	SchedulerStatic = "static"
	// SchedulerHeartbeat serves the backends that heartbeat the process.
	SchedulerHeartbeat = "heartbeat"
)
