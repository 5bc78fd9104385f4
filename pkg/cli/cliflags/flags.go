// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package cliflags describes the command line flags of the sparrow binary.
package cliflags

import (
	"fmt"
	"strings"
)

// FlagInfo describes a command line flag.
type FlagInfo struct {
	// Name of the flag as used on the command line.
	Name string
	// Shorthand is the one-letter abbreviation, if any.
	Shorthand string
	// EnvVar, if set, provides a value for the flag when it is not given
	// on the command line.
	EnvVar string
	// Description is the usage text, without the environment variable.
	Description string
}

// Usage returns the usage text of the flag.
func (f FlagInfo) Usage() string {
	s := strings.TrimSpace(f.Description)
	if f.EnvVar != "" {
		s += fmt.Sprintf("\nEnvironment variable: %s", f.EnvVar)
	}
	return s
}

var (
	Config = FlagInfo{
		Name:        "config",
		EnvVar:      "SPARROW_CONFIG",
		Description: `Path of a YAML configuration file. Flags override its values.`,
	}

	ListenHTTPAddr = FlagInfo{
		Name:        "http-addr",
		EnvVar:      "SPARROW_HTTP_ADDR",
		Description: `Address the status server listens on.`,
	}

	MaxMemory = FlagInfo{
		Name:   "max-memory",
		EnvVar: "SPARROW_MAX_MEMORY",
		Description: `
Memory budget for arenas, as a byte size (e.g. 512MiB, 2GB). Zero means
unlimited.`,
	}

	SchedulerKind = FlagInfo{
		Name:        "scheduler",
		Description: `Scheduler implementation: "static" or "heartbeat".`,
	}

	Backends = FlagInfo{
		Name:        "backends",
		EnvVar:      "SPARROW_BACKENDS",
		Description: `Comma-separated host:port list of backends for the static scheduler.`,
	}

	HeartbeatTTL = FlagInfo{
		Name:        "heartbeat-ttl",
		Description: `Time after its last heartbeat at which a backend is considered gone.`,
	}

	Schema = FlagInfo{
		Name:      "schema",
		Shorthand: "s",
		Description: `
Comma-separated slot types of the scanned rows, e.g. "int64,string?,double".
A trailing "?" makes the slot nullable.`,
	}

	Delimiter = FlagInfo{
		Name:        "delimiter",
		Shorthand:   "d",
		Description: `Field delimiter of the scanned file, a single byte.`,
	}

	SpillPath = FlagInfo{
		Name:        "spill",
		Description: `Write the scanned rows to this file.`,
	}

	SpillCodec = FlagInfo{
		Name:        "spill-codec",
		Description: `Compression of spill files: none, snappy, lz4, zstd or gzip.`,
	}
)
