// Package inbound implements InboundRecordReader, the read side of a
// GET response body (spec.md §4.7): a flat sequence of
// length-prefixed records (no batch grouping on the way in, unlike
// package batch's outbound framing) terminated by a zero length prefix.
//
// Grounded on loader.PMReader.Next (package loader), which likewise
// reserves a fixed-size length prefix, checks for a sentinel value, then
// reserves and decodes the indicated number of payload bytes.
package inbound

import (
	"errors"

	"github.com/m-lab/tstorage-client/buffer"
	"github.com/m-lab/tstorage-client/iostream"
	"github.com/m-lab/tstorage-client/recordset"
	"github.com/m-lab/tstorage-client/wire"
)

// Reader reads a GET response body from a BufferedInputStream, decoding
// records with the supplied Codec. Each record carries its full 32-byte
// Key (cid, mid, moid, cap, acq) on the wire, unlike PUT_SAFE/PUT_A_SAFE's
// grouped, abbreviated-key batches (package batch). GET_ACQ carries no
// records at all — just an 8-byte acq, which Channel.GetAcq reads
// directly — so there is no separate GET_ACQ variant of this type. Not
// safe for concurrent use.
type Reader[T any] struct {
	in    *iostream.BufferedInputStream
	codec recordset.Codec[T]

	// pendingRecSize holds a record's length, once read, across a retry of
	// next() forced by ReadStreaming flushing on buffer.ErrLimitExceeded.
	// Without it, a retry would re-Reserve(4) and misread the record's
	// body as the next length prefix.
	pendingRecSize int

	recordsRead int
}

// New constructs a Reader for a GET response body.
func New[T any](in *iostream.BufferedInputStream, codec recordset.Codec[T]) *Reader[T] {
	return &Reader[T]{in: in, codec: codec}
}

// next reads one record, or reports done=true at the terminating zero
// length prefix.
func (r *Reader[T]) next() (rec recordset.Record[T], done bool, err error) {
	if r.pendingRecSize == 0 {
		w, err := r.in.Reserve(4)
		if err != nil {
			return rec, false, err
		}
		recSize := wire.GetInt32(w)
		if recSize == 0 {
			return rec, true, nil
		}
		if recSize < 0 {
			return rec, false, errors.New("inbound: negative record size")
		}
		if int(recSize) < wire.SizeKeyFull {
			return rec, false, errors.New("inbound: record shorter than its key")
		}
		r.pendingRecSize = int(recSize)
	}

	body, err := r.in.Reserve(r.pendingRecSize)
	if err != nil {
		// pendingRecSize stays set so a retry skips straight to the body.
		return rec, false, err
	}
	r.pendingRecSize = 0

	key := wire.GetKey(body[:wire.SizeKeyFull])
	payload, perr := r.codec.Decode(body[wire.SizeKeyFull:])
	if perr != nil {
		return rec, false, perr
	}
	r.recordsRead++
	return recordset.Record[T]{Key: key, Payload: payload}, false, nil
}

// RecordsRead returns the number of records successfully decoded so far.
func (r *Reader[T]) RecordsRead() int { return r.recordsRead }

// ReadAll materializes the entire response body into a single
// RecordsSet. Used when the caller has not configured a streaming
// callback, or for small responses where partial delivery is pointless.
func (r *Reader[T]) ReadAll() (*recordset.RecordsSet[T], error) {
	set := recordset.New[T](0)
	for {
		rec, done, err := r.next()
		if err != nil {
			return set, err
		}
		if done {
			return set, nil
		}
		set.Append(rec)
	}
}

// OnFull is invoked by ReadStreaming with the records accumulated so far
// whenever the internal buffer cannot grow any further. Returning an
// error aborts the read.
type OnFull[T any] func(partial *recordset.RecordsSet[T]) error

// ReadStreaming reads the full response body, invoking onFull whenever
// the underlying buffer hits its configured memory limit (rather than
// failing the whole read), and once more at the end with any trailing
// records. This lets a caller bound memory use for GET responses larger
// than the configured buffer, matching spec.md §7's streaming GET
// behavior.
//
// On any error other than a limit hit that the flush-and-retry resolves,
// ReadStreaming makes a final onFull call with the records decoded since
// the previous call (possibly none) and then returns the error.
func (r *Reader[T]) ReadStreaming(onFull OnFull[T]) error {
	set := recordset.New[T](0)
	for {
		rec, done, err := r.next()
		if err != nil && errors.Is(err, buffer.ErrLimitExceeded) {
			if set.Len() > 0 {
				if ferr := onFull(set); ferr != nil {
					return ferr
				}
			}
			r.in.Confirm()
			set = recordset.New[T](0)
			// Retry the same record once against the now-compacted
			// buffer; a second failure is a genuine limit violation.
			rec, done, err = r.next()
		}
		if err != nil {
			onFull(set)
			return err
		}
		if done {
			return onFull(set)
		}
		set.Append(rec)
	}
}
