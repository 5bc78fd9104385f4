// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package bytestream defines the positioned byte source that scanners read
// table data from, and a local implementation on top of afero.
package bytestream

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/metric"
	"github.com/spf13/afero"
)

// ByteStream is a seekable byte source opened by location. Read follows
// io.Reader: it returns io.EOF once the stream is exhausted.
type ByteStream interface {
	Open(ctx context.Context, location string) error
	Close() error
	Read(p []byte) (int, error)
	// SeekTo moves to an absolute offset.
	SeekTo(offset int64) error
	// SeekRelative moves by delta from the current position.
	SeekRelative(delta int64) error
	Position() (int64, error)
	EOF() (bool, error)
}

// ErrNotOpen is returned by operations on a stream that is not open.
var ErrNotOpen = errors.New("byte stream is not open")

// Metrics are the byte stream counters.
type Metrics struct {
	BytesRead *metric.Counter
}

// MetricStruct implements the metric.Struct interface.
func (Metrics) MetricStruct() {}

// MakeMetrics instantiates the byte stream metrics.
func MakeMetrics() *Metrics {
	return &Metrics{
		BytesRead: metric.NewCounter(metric.Metadata{
			Name: "bytestream.bytes_read",
			Help: "Bytes read from byte streams",
		}),
	}
}

// FileStream is a ByteStream over a file of an afero.Fs.
type FileStream struct {
	fs       afero.Fs
	metrics  *Metrics
	location string
	f        afero.File
	size     int64
	pos      int64
}

var _ ByteStream = (*FileStream)(nil)

// NewFileStream creates a closed FileStream reading from fs. metrics may be
// nil.
func NewFileStream(fs afero.Fs, metrics *Metrics) *FileStream {
	return &FileStream{fs: fs, metrics: metrics}
}

// Open implements the ByteStream interface.
func (s *FileStream) Open(ctx context.Context, location string) error {
	if s.f != nil {
		return errors.AssertionFailedf("byte stream already open on %s", redact.Safe(s.location))
	}
	f, err := s.fs.Open(location)
	if err != nil {
		return errors.Wrapf(err, "opening %s", location)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "stat %s", location)
	}
	if info.IsDir() {
		_ = f.Close()
		return errors.Newf("%s is a directory", location)
	}
	s.f, s.location, s.size, s.pos = f, location, info.Size(), 0
	log.VEventf(ctx, 2, "opened %s (%d bytes)", location, s.size)
	return nil
}

// Close implements the ByteStream interface. Closing a closed stream is a
// no-op.
func (s *FileStream) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Read implements the ByteStream interface.
func (s *FileStream) Read(p []byte) (int, error) {
	if s.f == nil {
		return 0, ErrNotOpen
	}
	n, err := s.f.Read(p)
	s.pos += int64(n)
	if s.metrics != nil {
		s.metrics.BytesRead.Inc(int64(n))
	}
	if err != nil && err != io.EOF {
		err = errors.Wrapf(err, "reading %s", s.location)
	}
	return n, err
}

// SeekTo implements the ByteStream interface.
func (s *FileStream) SeekTo(offset int64) error {
	return s.seek(offset, io.SeekStart)
}

// SeekRelative implements the ByteStream interface.
func (s *FileStream) SeekRelative(delta int64) error {
	return s.seek(delta, io.SeekCurrent)
}

func (s *FileStream) seek(offset int64, whence int) error {
	if s.f == nil {
		return ErrNotOpen
	}
	target := offset
	if whence == io.SeekCurrent {
		target += s.pos
	}
	if target < 0 {
		return errors.Newf("seek to negative offset %d in %s", target, s.location)
	}
	pos, err := s.f.Seek(target, io.SeekStart)
	if err != nil {
		return errors.Wrapf(err, "seeking %s", s.location)
	}
	s.pos = pos
	return nil
}

// Position implements the ByteStream interface.
func (s *FileStream) Position() (int64, error) {
	if s.f == nil {
		return 0, ErrNotOpen
	}
	return s.pos, nil
}

// EOF implements the ByteStream interface. The stream is at its end once
// the position reaches the size the file had when it was opened.
func (s *FileStream) EOF() (bool, error) {
	if s.f == nil {
		return false, ErrNotOpen
	}
	return s.pos >= s.size, nil
}
