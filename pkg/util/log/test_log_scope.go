// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import "strings"

// tShim is the subset of testing.TB used by TestLogScope.
type tShim interface {
	Helper()
	Log(args ...interface{})
}

// TestLogScope redirects log output to a test's log for the duration of
// the test.
type TestLogScope struct {
	restore func()
}

type testWriter struct {
	t tShim
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// Scope captures all log output into t.Log until Close is called. Use as:
//
//	defer log.Scope(t).Close(t)
func Scope(t tShim) *TestLogScope {
	return &TestLogScope{restore: SetOutput(testWriter{t: t})}
}

// Close restores the previous log output.
func (s *TestLogScope) Close(t tShim) {
	t.Helper()
	s.restore()
}
