// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/sparrowsql/sparrow/pkg/base"
	"github.com/sparrowsql/sparrow/pkg/build"
	"github.com/sparrowsql/sparrow/pkg/server/status"
	"github.com/sparrowsql/sparrow/pkg/sql/scheduler"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/metric"
	"github.com/sparrowsql/sparrow/pkg/util/retry"
	"github.com/sparrowsql/sparrow/pkg/util/stop"
	"github.com/spf13/cobra"
)

// testingServerStarted, if set, is called with the status server address
// once the server is serving.
var testingServerStarted func(addr net.Addr)

func newStartCmd() *cobra.Command {
	var cf configFlags
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the scheduler and its status server",
		Long: `
Start the scheduler and serve the metrics, the known backends and location
lookups over HTTP until interrupted.

With the heartbeat scheduler, backends join by posting heartbeats to
/_status/heartbeat, and the scheduler becomes ready with the first one.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cf.load(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := runServer(ctx, cfg); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cf.register(cmd.Flags())
	return cmd
}

// runServer serves until ctx is canceled.
func runServer(ctx context.Context, cfg base.Config) error {
	ctx = logtags.AddTag(ctx, "start", nil)
	log.Infof(ctx, "%s", build.GetInfo().Short())

	stopper := stop.NewStopper()
	defer stopper.Stop(context.Background())

	registry := metric.NewRegistry()
	schedMetrics := scheduler.MakeMetrics()
	registry.AddMetricStruct(schedMetrics)
	// The row pipeline counters are served alongside the scheduler's.
	makeSQLMetrics(registry)

	deps := scheduler.Deps{Metrics: schedMetrics}
	var liveness *scheduler.Liveness
	if cfg.Scheduler.Kind == base.SchedulerHeartbeat {
		liveness = scheduler.NewLiveness(nil, cfg.Scheduler.HeartbeatTTL)
		if err := liveness.Start(ctx, stopper, cfg.Scheduler.ExpiryInterval); err != nil {
			return err
		}
		deps.Membership = liveness
	}
	sched, err := scheduler.New(cfg.Scheduler, deps)
	if err != nil {
		return newFlagError(err)
	}
	stopper.AddCloser(stop.CloserFn(func() { sched.Close(context.Background()) }))

	srv := status.NewServer(status.Config{
		Registry:  registry,
		Scheduler: sched,
		Liveness:  liveness,
	})
	addr, err := srv.Start(ctx, stopper, cfg.ListenHTTPAddr)
	if err != nil {
		return err
	}

	if liveness != nil {
		if err := awaitMembers(ctx, liveness); err != nil {
			return err
		}
	}
	if err := sched.Init(ctx); err != nil {
		return err
	}
	if testingServerStarted != nil {
		testingServerStarted(addr)
	}

	<-ctx.Done()
	log.Infof(ctx, "shutting down")
	return nil
}

// awaitMembers waits for the first heartbeat, so that the heartbeat
// scheduler does not fail its Init on an empty membership.
func awaitMembers(ctx context.Context, l *scheduler.Liveness) error {
	every := log.Every(10 * time.Second)
	opts := retry.Options{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	for r := retry.StartWithCtx(ctx, opts); r.Next(); {
		members, err := l.Members(ctx)
		if err != nil {
			return err
		}
		if len(members) > 0 {
			return nil
		}
		if every.ShouldLog() {
			log.Infof(ctx, "waiting for the first backend heartbeat")
		}
	}
	return errors.Wrapf(ctx.Err(), "waiting for backends")
}
