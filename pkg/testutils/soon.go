// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testutils

import (
	"context"
	"time"

	"github.com/sparrowsql/sparrow/pkg/util"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/retry"
	"github.com/sparrowsql/sparrow/pkg/util/timeutil"
)

// DefaultSucceedsSoonDuration is the maximum amount of time unittests
// will wait for a condition to become true. See SucceedsSoon().
const DefaultSucceedsSoonDuration = 45 * time.Second

// RaceSucceedsSoonDuration is the maximum amount of time unittests will
// wait for a condition to become true when running with the race detector
// enabled.
const RaceSucceedsSoonDuration = DefaultSucceedsSoonDuration * 5

// SucceedsSoon fails the test (with t.Fatal) unless the supplied function
// runs without error within a preset maximum duration. The function is
// invoked immediately at first and then successively with an exponential
// backoff starting at 1ns and ending at around 1s.
func SucceedsSoon(t TestFatalerLogger, fn func() error) {
	t.Helper()
	if err := SucceedsSoonError(fn); err != nil {
		t.Fatalf("condition failed to evaluate within %s: %s", SucceedsSoonDuration(), err)
	}
}

// SucceedsSoonError returns an error unless the supplied function runs
// without error within a preset maximum duration.
func SucceedsSoonError(fn func() error) error {
	tBegin := timeutil.Now()
	wrappedFn := func() error {
		err := fn()
		if timeutil.Since(tBegin) > 3*time.Second && err != nil {
			log.InfofDepth(context.Background(), 4, "SucceedsSoon: %v", err)
		}
		return err
	}
	return retry.ForDuration(SucceedsSoonDuration(), wrappedFn)
}

// SucceedsSoonDuration returns the maximum amount of time unittests will
// wait for a condition to become true.
func SucceedsSoonDuration() time.Duration {
	if util.RaceEnabled {
		return RaceSucceedsSoonDuration
	}
	return DefaultSucceedsSoonDuration
}
