// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package bytestream

import (
	"context"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestFileStream(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/t.csv", []byte("0123456789"), 0644))

	metrics := MakeMetrics()
	s := NewFileStream(fs, metrics)
	_, err := s.Read(make([]byte, 1))
	require.True(t, errors.Is(err, ErrNotOpen))

	require.NoError(t, s.Open(ctx, "/data/t.csv"))
	defer func() { require.NoError(t, s.Close()) }()
	require.Error(t, s.Open(ctx, "/data/t.csv"))

	buf := make([]byte, 4)
	n, err := s.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "0123", string(buf[:n]))
	pos, err := s.Position()
	require.NoError(t, err)
	require.Equal(t, int64(4), pos)

	require.NoError(t, s.SeekRelative(2))
	n, err = s.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "6789", string(buf[:n]))
	eof, err := s.EOF()
	require.NoError(t, err)
	require.True(t, eof)
	_, err = s.Read(buf)
	require.Equal(t, io.EOF, err)

	require.NoError(t, s.SeekTo(1))
	eof, err = s.EOF()
	require.NoError(t, err)
	require.False(t, eof)
	rest, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, "123456789", string(rest))

	require.Error(t, s.SeekRelative(-100))
	require.Equal(t, int64(4+4+9), metrics.BytesRead.Count())

	// SeekTo is not io.Seeker's Seek.
	_, isSeeker := interface{}(s).(io.Seeker)
	require.False(t, isSeeker)
}

func TestFileStreamOpenErrors(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/dir", 0755))

	s := NewFileStream(fs, nil)
	require.Error(t, s.Open(ctx, "/missing"))
	require.ErrorContains(t, s.Open(ctx, "/dir"), "is a directory")
	require.NoError(t, s.Close())
}
