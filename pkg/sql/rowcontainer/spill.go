// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowcontainer

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/sql/sqlbase"
	"github.com/sparrowsql/sparrow/pkg/sql/tuple"
	"github.com/sparrowsql/sparrow/pkg/util"
	"github.com/sparrowsql/sparrow/pkg/util/humanizeutil"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/spf13/afero"
)

// A spill file is a compressed stream of records, one per row:
//
//	uvarint(len(payload)) payload crc32c(payload)
//
// The payload holds, per tuple position, a presence byte followed, when the
// tuple is not null, by its fixed bytes and then by uvarint(len) and bytes
// of each non-null string slot in slot order.

const (
	tupleAbsent  byte = 0
	tuplePresent byte = 1

	// maxRecordSize bounds a single record so that a corrupt length prefix
	// cannot trigger an arbitrarily large allocation.
	maxRecordSize = 1 << 30
)

// ErrCorruptSpill is returned when a spill file fails validation.
var ErrCorruptSpill = errors.New("corrupt spill file")

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// Spill writes every row of the container to path, compressed with the
// named codec. The file is replaced if it exists. It returns the number of
// bytes written.
func (c *MemRowContainer) Spill(
	ctx context.Context, fs afero.Fs, path string, codecName string,
) (_ int64, retErr error) {
	cd, err := lookupCodec(codecName)
	if err != nil {
		return 0, err
	}
	f, err := fs.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "creating spill file")
	}
	defer func() {
		retErr = errors.CombineErrors(retErr, f.Close())
	}()

	cw := &countingWriter{w: f}
	w, err := cd.newWriter(cw)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s writer", codecName)
	}
	bw := bufio.NewWriter(w)

	var payload, header []byte
	var crc [4]byte
	for _, row := range c.rows {
		payload = encodeRow(payload[:0], c.descs, row)
		header = binary.AppendUvarint(header[:0], uint64(len(payload)))
		binary.LittleEndian.PutUint32(crc[:], util.CRC32(payload))
		for _, b := range [][]byte{header, payload, crc[:]} {
			if _, err := bw.Write(b); err != nil {
				return 0, errors.Wrapf(err, "writing spill file")
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, errors.Wrapf(err, "writing spill file")
	}
	if err := w.Close(); err != nil {
		return 0, errors.Wrapf(err, "closing %s writer", codecName)
	}

	if c.metrics != nil {
		c.metrics.SpillRows.Inc(int64(len(c.rows)))
		c.metrics.SpillBytes.Inc(cw.n)
	}
	log.VEventf(ctx, 2, "spilled %d rows to %s (%s, %s)",
		len(c.rows), path, codecName, humanizeutil.IBytes(cw.n))
	return cw.n, nil
}

func encodeRow(buf []byte, descs []*sqlbase.TupleDescriptor, row tuple.Row) []byte {
	for i, desc := range descs {
		t := row.GetTuple(i)
		if t.IsNull() {
			buf = append(buf, tupleAbsent)
			continue
		}
		buf = append(buf, tuplePresent)
		buf = append(buf, t.FixedBytes()...)
		for _, sd := range desc.StringSlots() {
			if t.IsNullSlot(sd) {
				continue
			}
			s := t.Bytes(sd)
			buf = binary.AppendUvarint(buf, uint64(len(s)))
			buf = append(buf, s...)
		}
	}
	return buf
}

// ReadSpilled reads back a file written by Spill. Rows are rebuilt in pool;
// string payloads are reallocated there.
func ReadSpilled(
	ctx context.Context,
	fs afero.Fs,
	path string,
	codecName string,
	descs []*sqlbase.TupleDescriptor,
	pool *tuple.Pool,
) (_ []tuple.Row, retErr error) {
	cd, err := lookupCodec(codecName)
	if err != nil {
		return nil, err
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening spill file")
	}
	defer func() {
		retErr = errors.CombineErrors(retErr, f.Close())
	}()
	r, err := cd.newReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s reader", codecName)
	}
	defer func() {
		retErr = errors.CombineErrors(retErr, r.Close())
	}()
	br := bufio.NewReader(r)

	var rows []tuple.Row
	var payload []byte
	var crc [4]byte
	for {
		n, err := binary.ReadUvarint(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading record %d", len(rows))
		}
		if n > maxRecordSize {
			return nil, errors.Wrapf(ErrCorruptSpill, "record %d: length %d", len(rows), n)
		}
		if uint64(cap(payload)) < n {
			payload = make([]byte, n)
		}
		payload = payload[:n]
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, errors.Wrapf(err, "reading record %d", len(rows))
		}
		if _, err := io.ReadFull(br, crc[:]); err != nil {
			return nil, errors.Wrapf(err, "reading record %d", len(rows))
		}
		if binary.LittleEndian.Uint32(crc[:]) != util.CRC32(payload) {
			return nil, errors.Wrapf(ErrCorruptSpill, "record %d: checksum mismatch", len(rows))
		}
		row, err := decodeRow(ctx, payload, descs, pool)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding record %d", len(rows))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRow(
	ctx context.Context, payload []byte, descs []*sqlbase.TupleDescriptor, pool *tuple.Pool,
) (tuple.Row, error) {
	row, err := tuple.AllocRow(ctx, pool, len(descs))
	if err != nil {
		return nil, err
	}
	corrupt := func() error {
		return errors.Wrapf(ErrCorruptSpill, "truncated row")
	}
	for i, desc := range descs {
		if len(payload) == 0 {
			return nil, corrupt()
		}
		presence := payload[0]
		payload = payload[1:]
		if presence == tupleAbsent {
			continue
		}
		if len(payload) < desc.ByteSize {
			return nil, corrupt()
		}
		t, err := tuple.Alloc(ctx, pool, desc)
		if err != nil {
			return nil, err
		}
		copy(t.FixedBytes(), payload[:desc.ByteSize])
		payload = payload[desc.ByteSize:]
		for _, sd := range desc.StringSlots() {
			if t.IsNullSlot(sd) {
				clear(t.FixedBytes()[sd.Offset : sd.Offset+sd.Type.Size()])
				continue
			}
			n, w := binary.Uvarint(payload)
			if w <= 0 || uint64(len(payload)-w) < n {
				return nil, corrupt()
			}
			payload = payload[w:]
			if err := t.SetString(ctx, sd, payload[:n]); err != nil {
				return nil, err
			}
			payload = payload[n:]
		}
		row.SetTuple(i, t)
	}
	if len(payload) != 0 {
		return nil, errors.Wrapf(ErrCorruptSpill, "%d trailing bytes", len(payload))
	}
	return row, nil
}
