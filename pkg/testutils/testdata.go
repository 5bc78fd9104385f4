// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testutils

import (
	"path/filepath"
	"testing"
)

// TestDataPath returns a path to an asset in the testdata directory of the
// package under test. Tests run with the package directory as working
// directory.
func TestDataPath(t testing.TB, relative ...string) string {
	t.Helper()
	return filepath.Join(append([]string{"testdata"}, relative...)...)
}
