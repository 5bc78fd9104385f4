// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/base"
	"github.com/sparrowsql/sparrow/pkg/cli/cliflags"
	"github.com/sparrowsql/sparrow/pkg/util/humanizeutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagEnvVars maps flag names to the environment variables that provide
// their default.
var flagEnvVars = map[string]string{}

// flagError is an invalid command line or configuration.
type flagError struct {
	cause error
}

func (e *flagError) Error() string { return e.cause.Error() }
func (e *flagError) Unwrap() error { return e.cause }

func newFlagError(err error) error {
	if err == nil {
		return nil
	}
	return &flagError{cause: err}
}

func stringFlag(f *pflag.FlagSet, valPtr *string, flagInfo cliflags.FlagInfo) {
	f.StringVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, *valPtr, flagInfo.Usage())
	registerEnvVar(flagInfo)
}

func stringSliceFlag(f *pflag.FlagSet, valPtr *[]string, flagInfo cliflags.FlagInfo) {
	f.StringSliceVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, *valPtr, flagInfo.Usage())
	registerEnvVar(flagInfo)
}

func durationFlag(f *pflag.FlagSet, valPtr *time.Duration, flagInfo cliflags.FlagInfo) {
	f.DurationVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, *valPtr, flagInfo.Usage())
	registerEnvVar(flagInfo)
}

func varFlag(f *pflag.FlagSet, value pflag.Value, flagInfo cliflags.FlagInfo) {
	f.VarP(value, flagInfo.Name, flagInfo.Shorthand, flagInfo.Usage())
	registerEnvVar(flagInfo)
}

func registerEnvVar(flagInfo cliflags.FlagInfo) {
	if flagInfo.EnvVar != "" {
		flagEnvVars[flagInfo.Name] = flagInfo.EnvVar
	}
}

// applyEnvVars sets the flags not given on the command line from their
// environment variables.
func applyEnvVars(cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}
		envVar, ok := flagEnvVars[f.Name]
		if !ok {
			return
		}
		if v, ok := os.LookupEnv(envVar); ok {
			if setErr := cmd.Flags().Set(f.Name, v); setErr != nil {
				err = newFlagError(errors.Wrapf(setErr, "invalid value for %s", envVar))
			}
		}
	})
	return err
}

// configFlags are the flags that override the configuration file.
type configFlags struct {
	configFile    string
	httpAddr      string
	maxMemory     int64
	schedulerKind string
	backends      []string
	heartbeatTTL  time.Duration
	spillCodec    string
}

func (cf *configFlags) register(f *pflag.FlagSet) {
	stringFlag(f, &cf.configFile, cliflags.Config)
	stringFlag(f, &cf.httpAddr, cliflags.ListenHTTPAddr)
	varFlag(f, humanizeutil.NewBytesValue(&cf.maxMemory), cliflags.MaxMemory)
	stringFlag(f, &cf.schedulerKind, cliflags.SchedulerKind)
	stringSliceFlag(f, &cf.backends, cliflags.Backends)
	durationFlag(f, &cf.heartbeatTTL, cliflags.HeartbeatTTL)
	stringFlag(f, &cf.spillCodec, cliflags.SpillCodec)
}

// load returns the configuration: the defaults, overridden by the
// configuration file if any, overridden by the flags given.
func (cf *configFlags) load(f *pflag.FlagSet) (base.Config, error) {
	cfg := base.DefaultConfig()
	if cf.configFile != "" {
		var err error
		if cfg, err = base.LoadConfig(fs, cf.configFile); err != nil {
			return base.Config{}, newFlagError(err)
		}
	}
	if f.Changed(cliflags.ListenHTTPAddr.Name) {
		cfg.ListenHTTPAddr = cf.httpAddr
	}
	if f.Changed(cliflags.MaxMemory.Name) {
		cfg.MemoryBudget = base.ByteSize(cf.maxMemory)
	}
	if f.Changed(cliflags.SchedulerKind.Name) {
		cfg.Scheduler.Kind = cf.schedulerKind
	}
	if f.Changed(cliflags.Backends.Name) {
		cfg.Scheduler.Backends = cf.backends
	}
	if f.Changed(cliflags.HeartbeatTTL.Name) {
		cfg.Scheduler.HeartbeatTTL = cf.heartbeatTTL
	}
	if f.Changed(cliflags.SpillCodec.Name) {
		cfg.SpillCodec = cf.spillCodec
	}
	if err := cfg.Validate(); err != nil {
		return base.Config{}, newFlagError(err)
	}
	return cfg, nil
}
