// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package leaktest provides tools to detect leaked goroutines in tests.
// To use it, call "defer leaktest.AfterTest(t)()" at the beginning of each
// test that may use goroutines.
package leaktest

import (
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// interestingGoroutines returns all goroutines we care about for the
// purpose of leak checking. It excludes testing and runtime ones.
func interestingGoroutines() map[int64]string {
	buf := make([]byte, 2<<20)
	buf = buf[:runtime.Stack(buf, true)]
	gs := make(map[int64]string)
	for _, g := range strings.Split(string(buf), "\n\n") {
		sl := strings.SplitN(g, "\n", 2)
		if len(sl) != 2 {
			continue
		}
		stack := strings.TrimSpace(sl[1])
		if stack == "" ||
			strings.Contains(stack, "testing.RunTests") ||
			strings.Contains(stack, "testing.Main(") ||
			strings.Contains(stack, "testing.(*T).Run") ||
			strings.Contains(stack, "runtime.goexit") && strings.Contains(stack, "created by runtime") ||
			strings.Contains(stack, "os/signal.signal_recv") ||
			strings.Contains(stack, "leaktest.interestingGoroutines") ||
			strings.Contains(stack, "runtime.ensureSigM") ||
			strings.Contains(stack, "net/http.(*persistConn)") {
			continue
		}
		var id int64
		for _, f := range strings.Fields(sl[0]) {
			if n, ok := parseInt(f); ok {
				id = n
				break
			}
		}
		gs[id] = g
	}
	return gs
}

func parseInt(s string) (int64, bool) {
	var n int64
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

// AfterTest snapshots the currently-running goroutines and returns a
// function to be run at the end of tests to see whether any goroutines
// leaked.
func AfterTest(t interface {
	Helper()
	Failed() bool
	Errorf(format string, args ...interface{})
}) func() {
	orig := interestingGoroutines()
	return func() {
		t.Helper()
		if t.Failed() {
			return
		}
		// Loop, waiting for goroutines to shut down. Wait up to 5 seconds.
		deadline := time.Now().Add(5 * time.Second)
		for {
			var leaked []string
			for id, stack := range interestingGoroutines() {
				if _, ok := orig[id]; !ok {
					leaked = append(leaked, stack)
				}
			}
			if len(leaked) == 0 {
				return
			}
			if time.Now().Before(deadline) {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			sort.Strings(leaked)
			t.Errorf("%v", errors.Newf("leaked goroutines:\n%s", strings.Join(leaked, "\n\n")))
			return
		}
	}
}
