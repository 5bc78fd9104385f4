// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package base holds the process configuration shared by the server and
// the command line tools.
package base

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/util/humanizeutil"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ByteSize is a number of bytes that reads and writes as a humanized
// string such as "64 MiB" in config files.
type ByteSize int64

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := humanizeutil.ParseBytes(s)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}
	*b = ByteSize(v)
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return humanizeutil.IBytes(int64(b)), nil
}

func (b ByteSize) String() string {
	return humanizeutil.IBytes(int64(b))
}

// ArenaConfig holds the chunk policy of arenas.
type ArenaConfig struct {
	ChunkSize    ByteSize `yaml:"chunk-size"`
	MaxChunkSize ByteSize `yaml:"max-chunk-size"`
}

// SchedulerConfig selects and configures the scheduler implementation.
type SchedulerConfig struct {
	// Kind is SchedulerStatic or SchedulerHeartbeat.
	Kind string `yaml:"kind"`
	// Backends are the host:port addresses served by the static scheduler.
	Backends       []string      `yaml:"backends,omitempty"`
	ResolveTimeout time.Duration `yaml:"resolve-timeout"`
	HeartbeatTTL   time.Duration `yaml:"heartbeat-ttl"`
	ExpiryInterval time.Duration `yaml:"expiry-interval"`
}

// Config is the configuration of a sparrow process.
type Config struct {
	ListenHTTPAddr string          `yaml:"listen-http-addr"`
	MemoryBudget   ByteSize        `yaml:"memory-budget"`
	SpillCodec     string          `yaml:"spill-codec"`
	Arena          ArenaConfig     `yaml:"arena"`
	Scheduler      SchedulerConfig `yaml:"scheduler"`
}

// DefaultConfig returns a config with every field set to its default.
func DefaultConfig() Config {
	return Config{
		ListenHTTPAddr: DefaultHTTPAddr,
		MemoryBudget:   DefaultMemoryBudget,
		SpillCodec:     DefaultSpillCodec,
		Arena: ArenaConfig{
			ChunkSize:    DefaultArenaChunkSize,
			MaxChunkSize: DefaultArenaMaxChunkSize,
		},
		Scheduler: SchedulerConfig{
			Kind:           SchedulerStatic,
			ResolveTimeout: DefaultResolveTimeout,
			HeartbeatTTL:   DefaultHeartbeatTTL,
			ExpiryInterval: DefaultExpiryInterval,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults. Unknown keys
// are rejected.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := fs.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "opening config")
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks the config for consistency.
func (cfg *Config) Validate() error {
	if cfg.MemoryBudget < 0 {
		return errors.Newf("memory-budget must not be negative")
	}
	if cfg.Arena.ChunkSize <= 0 {
		return errors.Newf("arena chunk-size must be positive")
	}
	if cfg.Arena.MaxChunkSize < cfg.Arena.ChunkSize {
		return errors.Newf("arena max-chunk-size (%s) is smaller than chunk-size (%s)",
			cfg.Arena.MaxChunkSize, cfg.Arena.ChunkSize)
	}
	return cfg.Scheduler.Validate()
}

// Validate checks the scheduler config for consistency.
func (sc *SchedulerConfig) Validate() error {
	switch sc.Kind {
	case SchedulerStatic:
		if sc.ResolveTimeout <= 0 {
			return errors.Newf("scheduler resolve-timeout must be positive")
		}
	case SchedulerHeartbeat:
		if len(sc.Backends) > 0 {
			return errors.WithHint(
				errors.Newf("scheduler backends are not used by the %s scheduler", sc.Kind),
				"backends join a heartbeat scheduler by sending heartbeats")
		}
		if sc.HeartbeatTTL <= 0 || sc.ExpiryInterval <= 0 {
			return errors.Newf("scheduler heartbeat-ttl and expiry-interval must be positive")
		}
	default:
		return errors.WithHintf(
			errors.Newf("unknown scheduler kind %q", sc.Kind),
			"valid kinds are %q and %q", SchedulerStatic, SchedulerHeartbeat)
	}
	return nil
}
