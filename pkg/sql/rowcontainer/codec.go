// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowcontainer

import (
	"io"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// codec compresses a spill file as a stream.
type codec interface {
	newWriter(w io.Writer) (io.WriteCloser, error)
	newReader(r io.Reader) (io.ReadCloser, error)
}

var codecs = map[string]codec{
	"NONE":   noneCodec{},
	"GZIP":   gzipCodec{},
	"ZSTD":   zstdCodec{},
	"LZ4":    lz4Codec{},
	"SNAPPY": snappyCodec{},
}

// Codecs returns the names of the supported spill codecs.
func Codecs() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	return names
}

func lookupCodec(name string) (codec, error) {
	c, ok := codecs[strings.ToUpper(name)]
	if !ok {
		return nil, errors.WithHint(
			errors.Newf("unknown spill codec %q", name),
			"supported codecs: "+strings.Join(Codecs(), ", "))
	}
	return c, nil
}

type noneCodec struct{}
type gzipCodec struct{}
type zstdCodec struct{}
type lz4Codec struct{}
type snappyCodec struct{}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func (noneCodec) newWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (noneCodec) newReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func (snappyCodec) newWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (snappyCodec) newReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

func (lz4Codec) newWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (lz4Codec) newReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (zstdCodec) newWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

type readCloserNoError interface {
	io.Reader
	Close()
}

type noErrorCloser struct {
	readCloserNoError
}

func (c noErrorCloser) Close() error {
	c.readCloserNoError.Close()
	return nil
}

func (zstdCodec) newReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return noErrorCloser{readCloserNoError: d}, nil
}

func (gzipCodec) newWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (gzipCodec) newReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}
