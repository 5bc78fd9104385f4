// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package exit defines the process exit codes of the sparrow binary.
package exit

import "os"

// Code is a process exit code.
type Code struct {
	code int
}

// Success (0) is a normal termination.
func Success() Code { return Code{0} }

// UnspecifiedError (1) is an error condition described in the logs.
func UnspecifiedError() Code { return Code{1} }

// CommandLineFlagError (4) means the command line or the configuration was
// invalid.
func CommandLineFlagError() Code { return Code{4} }

// SchedulingUnavailable (10) means no backend was known to schedule on.
func SchedulingUnavailable() Code { return Code{10} }

// Int returns the numeric value of the code.
func (c Code) Int() int { return c.code }

// WithCode terminates the process with the given code.
func WithCode(code Code) {
	os.Exit(code.code)
}
