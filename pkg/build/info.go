// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package build reports the version and build information of the binary.
package build

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// TimeFormat is the reference format for build.Time.
const TimeFormat = "2006/01/02 15:04:05"

var (
	// These variables are set with the linker -X flag when building release
	// binaries.
	tag      = "v0.1.0" // release tag
	utcTime  string     // build time in UTC, in TimeFormat
	rev      string     // git revision
	typ      string     // "", "development" or "release"
	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// Info describes the binary.
type Info struct {
	GoVersion string `yaml:"go-version"`
	Tag       string `yaml:"tag"`
	Time      string `yaml:"time"`
	Revision  string `yaml:"revision"`
	Platform  string `yaml:"platform"`
	Type      string `yaml:"type"`
}

// IsRelease returns true if the binary was produced by a "release" build.
func IsRelease() bool {
	return typ == "release"
}

// BinaryVersion returns the version of the binary: the tag for a release
// build, the tag suffixed with the revision otherwise.
func BinaryVersion() string {
	return binaryVersion(tag, rev)
}

func binaryVersion(tag, rev string) string {
	if IsRelease() || rev == "" {
		return tag
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return tag + "-dev-" + rev
}

// GetInfo returns the build information of the binary.
func GetInfo() Info {
	return Info{
		GoVersion: runtime.Version(),
		Tag:       BinaryVersion(),
		Time:      utcTime,
		Revision:  rev,
		Platform:  platform,
		Type:      typ,
	}
}

// Short returns a one-line summary of the build.
func (b Info) Short() string {
	parts := []string{b.Platform}
	if b.Time != "" {
		parts = append(parts, "built "+b.Time)
	}
	parts = append(parts, b.GoVersion)
	return fmt.Sprintf("sparrow %s (%s)", b.Tag, strings.Join(parts, ", "))
}

// GoTime parses the build time. It returns the zero time if the build time
// is unset or malformed.
func (b Info) GoTime() time.Time {
	val, err := time.Parse(TimeFormat, b.Time)
	if err != nil {
		return time.Time{}
	}
	return val
}

// TestingOverrideTag allows tests to override the build tag.
func TestingOverrideTag(t string) func() {
	prev := tag
	tag = t
	return func() { tag = prev }
}
