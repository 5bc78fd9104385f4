// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package humanizeutil

import "time"

// Duration formats a duration for log messages. The result is rounded to
// a granularity that depends on the magnitude:
//
//	123456ns       ->  "123µs"
//	12345678ns     ->  "12ms"
//	12345678912ns  ->  "12.3s"
func Duration(val time.Duration) string {
	val = val.Round(time.Microsecond)
	switch {
	case val == 0:
		return "0µs"
	case val < time.Millisecond:
		return val.String()
	case val < time.Second:
		return val.Round(time.Millisecond).String()
	case val < time.Minute:
		return val.Round(100 * time.Millisecond).String()
	default:
		return val.Round(time.Second).String()
	}
}
