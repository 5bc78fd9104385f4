// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package scan turns delimited text read from a byte stream into rows.
package scan

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/sql/bytestream"
	"github.com/sparrowsql/sparrow/pkg/sql/sqlbase"
	"github.com/sparrowsql/sparrow/pkg/sql/tuple"
	"github.com/sparrowsql/sparrow/pkg/sql/types"
)

// NullLiteral is the field value, besides the empty field, that reads as
// NULL in a nullable slot.
const NullLiteral = `\N`

var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// DelimitedScanner parses one row per line of a byte stream. Fields map, in
// order, to the materialized slots of the descriptor. Rows are built in the
// scanner's pool: the caller must consume them, or copy them with
// Row.DeepCopy, before releasing it.
type DelimitedScanner struct {
	desc  *sqlbase.TupleDescriptor
	delim byte
	pool  *tuple.Pool
	slots []*sqlbase.SlotDescriptor

	r    *bufio.Reader
	line int
}

// NewDelimitedScanner creates a scanner reading stream, which must be open.
func NewDelimitedScanner(
	stream bytestream.ByteStream, desc *sqlbase.TupleDescriptor, delim byte, pool *tuple.Pool,
) *DelimitedScanner {
	s := &DelimitedScanner{
		desc:  desc,
		delim: delim,
		pool:  pool,
		r:     bufio.NewReader(stream),
	}
	for _, sd := range desc.Slots {
		if sd.Materialized {
			s.slots = append(s.slots, sd)
		}
	}
	return s
}

// Pool returns the pool rows are built in.
func (s *DelimitedScanner) Pool() *tuple.Pool {
	return s.pool
}

// Next returns the next row, a single tuple, or io.EOF once the stream is
// exhausted. A trailing newline at the end of the stream is optional.
func (s *DelimitedScanner) Next(ctx context.Context) (tuple.Row, error) {
	line, err := s.r.ReadBytes('\n')
	if err == io.EOF {
		if len(line) == 0 {
			return nil, io.EOF
		}
	} else if err != nil {
		return nil, errors.Wrapf(err, "line %d", s.line+1)
	}
	s.line++
	line = bytes.TrimSuffix(line, []byte{'\n'})
	line = bytes.TrimSuffix(line, []byte{'\r'})

	fields := bytes.Split(line, []byte{s.delim})
	if len(fields) != len(s.slots) {
		return nil, errors.Newf("line %d: expected %d fields, found %d", s.line, len(s.slots), len(fields))
	}
	row, err := tuple.AllocRow(ctx, s.pool, 1)
	if err != nil {
		return nil, err
	}
	t, err := tuple.Alloc(ctx, s.pool, s.desc)
	if err != nil {
		return nil, err
	}
	for i, sd := range s.slots {
		if err := s.setField(ctx, t, sd, fields[i]); err != nil {
			return nil, errors.Wrapf(err, "line %d, field %d", s.line, i+1)
		}
	}
	row.SetTuple(0, t)
	return row, nil
}

func (s *DelimitedScanner) setField(
	ctx context.Context, t tuple.Tuple, sd *sqlbase.SlotDescriptor, field []byte,
) error {
	if sd.Nullable && (len(field) == 0 || string(field) == NullLiteral) {
		t.SetNullSlot(sd)
		return nil
	}
	if sd.Type == types.String {
		return t.SetString(ctx, sd, field)
	}
	str := string(field)
	switch sd.Type {
	case types.Bool:
		v, err := strconv.ParseBool(str)
		if err != nil {
			return err
		}
		t.SetBool(sd, v)
	case types.Int8:
		v, err := strconv.ParseInt(str, 10, 8)
		if err != nil {
			return err
		}
		t.SetInt8(sd, int8(v))
	case types.Int16:
		v, err := strconv.ParseInt(str, 10, 16)
		if err != nil {
			return err
		}
		t.SetInt16(sd, int16(v))
	case types.Int32:
		v, err := strconv.ParseInt(str, 10, 32)
		if err != nil {
			return err
		}
		t.SetInt32(sd, int32(v))
	case types.Int64:
		v, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return err
		}
		t.SetInt64(sd, v)
	case types.Float:
		v, err := strconv.ParseFloat(str, 32)
		if err != nil {
			return err
		}
		t.SetFloat(sd, float32(v))
	case types.Double:
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return err
		}
		t.SetDouble(sd, v)
	case types.Timestamp:
		v, err := parseTimestamp(str)
		if err != nil {
			return err
		}
		t.SetTimestamp(sd, v)
	default:
		return errors.AssertionFailedf("unsupported slot type %s", sd.Type)
	}
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampFormats {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.Newf("invalid timestamp %q", s)
}
