// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log implements context-aware, leveled logging. Every entry is
// prefixed with the severity, a timestamp, the caller's file:line and the
// logging tags attached to the context with logtags.AddTag.
//
// Arguments are formatted through the redact package: unless redactable
// output is enabled, redaction markers are stripped before the entry is
// written.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/sparrowsql/sparrow/pkg/util/syncutil"
)

// Severity identifies the importance of a log entry.
type Severity int32

// Severities, in increasing order.
const (
	SeverityInfo Severity = iota + 1
	SeverityWarning
	SeverityError
	SeverityFatal
)

var severityChars = [...]byte{SeverityInfo: 'I', SeverityWarning: 'W', SeverityError: 'E', SeverityFatal: 'F'}

// Char returns the single character used to identify the severity in
// entry headers.
func (s Severity) Char() byte {
	if s < SeverityInfo || s > SeverityFatal {
		return '?'
	}
	return severityChars[s]
}

// OrigStderr points to the original stderr stream.
var OrigStderr = os.Stderr

var logging struct {
	verbosity  atomic.Int32
	redactable atomic.Bool

	mu struct {
		syncutil.Mutex
		w      io.Writer
		exitFn func(int)
	}
}

func init() {
	logging.mu.w = OrigStderr
}

// SetOutput redirects all log entries to w and returns a function that
// restores the previous writer.
func SetOutput(w io.Writer) (restore func()) {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	prev := logging.mu.w
	logging.mu.w = w
	return func() {
		logging.mu.Lock()
		defer logging.mu.Unlock()
		logging.mu.w = prev
	}
}

// SetVerbosity sets the global verbosity level consulted by V and VEventf.
func SetVerbosity(level int32) {
	logging.verbosity.Store(level)
}

// SetRedactable controls whether redaction markers are kept in the output.
func SetRedactable(b bool) {
	logging.redactable.Store(b)
}

// V returns true if the logging verbosity is set to the specified level or
// higher.
func V(level int32) bool {
	return logging.verbosity.Load() >= level
}

// Infof logs to the INFO severity.
func Infof(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityInfo, 1, format, args)
}

// Warningf logs to the WARNING severity.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityWarning, 1, format, args)
}

// Errorf logs to the ERROR severity.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityError, 1, format, args)
}

// Fatalf logs to the FATAL severity and then exits the process (or calls
// the function installed with SetExitFunc).
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityFatal, 1, format, args)
	logging.mu.Lock()
	f := logging.mu.exitFn
	logging.mu.Unlock()
	if f != nil {
		f(255)
		return
	}
	os.Exit(255)
}

// VEventf logs at INFO severity if the verbosity is at least level.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if V(level) {
		addStructured(ctx, SeverityInfo, 1, format, args)
	}
}

// InfofDepth logs to INFO, attributing the entry to the caller depth frames
// up the stack.
func InfofDepth(ctx context.Context, depth int, format string, args ...interface{}) {
	addStructured(ctx, SeverityInfo, depth+1, format, args)
}

// FormatWithContextTags formats the string and prepends the context tags.
// Redaction markers are not inserted.
func FormatWithContextTags(ctx context.Context, format string, args ...interface{}) string {
	var buf strings.Builder
	formatTags(ctx, &buf)
	fmt.Fprintf(&buf, format, args...)
	return buf.String()
}

func formatTags(ctx context.Context, buf *strings.Builder) {
	tags := logtags.FromContext(ctx)
	if tags == nil {
		return
	}
	buf.WriteByte('[')
	for i, t := range tags.Get() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(t.Key())
		if v := t.Value(); v != nil {
			// Single-letter keys are rendered without a separator, e.g. "n1".
			if len(t.Key()) > 1 {
				buf.WriteByte('=')
			}
			fmt.Fprint(buf, v)
		}
	}
	buf.WriteString("] ")
}

// addStructured formats an entry and writes it to the configured output.
func addStructured(
	ctx context.Context, sev Severity, depth int, format string, args []interface{},
) {
	now := time.Now().UTC()
	file, line := "???", 0
	if _, f, l, ok := runtime.Caller(depth + 1); ok {
		file, line = filepath.Join(filepath.Base(filepath.Dir(f)), filepath.Base(f)), l
	}

	var buf strings.Builder
	buf.WriteByte(sev.Char())
	buf.WriteString(now.Format("060102 15:04:05.000000"))
	fmt.Fprintf(&buf, " %s:%d  ", file, line)
	formatTags(ctx, &buf)

	msg := redact.Sprintf(format, args...)
	if logging.redactable.Load() {
		buf.WriteString(string(msg))
	} else {
		buf.WriteString(msg.StripMarkers())
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		buf.WriteByte('\n')
	}

	logging.mu.Lock()
	defer logging.mu.Unlock()
	_, _ = io.WriteString(logging.mu.w, buf.String())
}
