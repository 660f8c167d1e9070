// Package batch implements BatchSerializer, the outbound side of the
// batching rule shared by PUT_SAFE and PUT_A_SAFE (spec.md §4.6): records
// are grouped into maximal runs sharing the same cid, each run prefixed
// by a (cid, batchSize) header, and the whole stream terminated by a
// sentinel batch with cid = -1.
//
// The batch header's size field cannot be known until every record in
// the run has been serialized, so it is written lazily: Serializer
// reserves the 8 header bytes up front and patches the size field in
// place, in the still-unflushed output buffer, once the run closes. This
// mirrors the teacher's saver package, which also writes a length
// prefix ahead of a variable-size payload, adapted here to a fixed
// 4-byte field that can be revisited before it ever reaches the wire.
package batch

import (
	"errors"
	"math"

	"github.com/m-lab/tstorage-client/buffer"
	"github.com/m-lab/tstorage-client/iostream"
	"github.com/m-lab/tstorage-client/recordset"
	"github.com/m-lab/tstorage-client/wire"
)

// Serializer writes RecordsSet[T] entries to a BufferedOutputStream as
// PUT_SAFE or PUT_A_SAFE batches. A zero Serializer is not usable; use
// NewPutSafe or NewPutASafe. Not safe for concurrent use.
type Serializer[T any] struct {
	out   *iostream.BufferedOutputStream
	codec recordset.Codec[T]

	keySize  int
	writeKey func(buf []byte, k wire.Key)

	hasOpenBatch    bool
	curCid          int32
	batchSizeOffset int
	batchSize       int32

	batchesWritten int
	recordsWritten int
}

// NewPutSafe constructs a Serializer for PUT_SAFE, whose wire key omits
// both cid and acq (wire.SizeKeyNoCidNoAcq bytes; cid is carried by the
// batch header and acq is assigned by the server).
func NewPutSafe[T any](out *iostream.BufferedOutputStream, codec recordset.Codec[T]) *Serializer[T] {
	return &Serializer[T]{
		out:      out,
		codec:    codec,
		keySize:  wire.SizeKeyNoCidNoAcq,
		writeKey: wire.PutKeyNoCidNoAcq,
	}
}

// NewPutASafe constructs a Serializer for PUT_A_SAFE, whose wire key
// omits only cid (wire.SizeKeyNoCid bytes; acq is explicit per record).
func NewPutASafe[T any](out *iostream.BufferedOutputStream, codec recordset.Codec[T]) *Serializer[T] {
	return &Serializer[T]{
		out:      out,
		codec:    codec,
		keySize:  wire.SizeKeyNoCid,
		writeKey: wire.PutKeyNoCid,
	}
}

// Append serializes one record into the current (or a newly opened)
// batch. If cid differs from the currently open batch's cid, the open
// batch is closed (its header patched, but not flushed) and a new one is
// opened before the record is written.
//
// Append can fail with buffer.ErrLimitExceeded if the record, on its
// own, cannot fit even in a freshly flushed buffer; in that case any
// earlier batches in this Serializer's lifetime may already have been
// sent, and the terminating sentinel has not been emitted.
func (s *Serializer[T]) Append(k wire.Key, payload T) error {
	if s.hasOpenBatch && k.Cid != s.curCid {
		if err := s.switchBatch(k.Cid); err != nil {
			return err
		}
	} else if !s.hasOpenBatch {
		if err := s.openBatch(k.Cid); err != nil {
			return err
		}
	}

	// Codec.Encode is deterministic and always reports its exact size, so
	// probing with a nil destination avoids reserving a guessed (and
	// possibly oversized) window before we know how large the record is.
	needed, eerr := s.codec.Encode(payload, nil)
	if eerr != nil {
		return eerr
	}
	recBodySize := s.keySize + needed
	total := 4 + recBodySize

	// batchSize counts whole records, including each one's 4-byte recSize.
	if int64(s.batchSize)+int64(total) > math.MaxInt32 {
		if err := s.flushAndReopen(k.Cid); err != nil {
			return err
		}
	}

	w, err := s.out.Reserve(total)
	if err != nil {
		if !errors.Is(err, buffer.ErrLimitExceeded) {
			return err
		}
		if ferr := s.flushAndReopen(k.Cid); ferr != nil {
			return ferr
		}
		if w, err = s.out.Reserve(total); err != nil {
			return err
		}
	}

	s.writeKey(w[4:4+s.keySize], k)
	n, eerr := s.codec.Encode(payload, w[4+s.keySize:])
	if eerr != nil {
		return eerr
	}
	if n != needed {
		return errors.New("batch: Codec.Encode returned inconsistent sizes")
	}
	wire.PutInt32(w[0:4], int32(recBodySize))
	s.out.Confirm(total)
	s.batchSize += int32(total)
	s.recordsWritten++
	return nil
}

// BatchesWritten returns the number of batch headers emitted so far,
// including the currently open one if any.
func (s *Serializer[T]) BatchesWritten() int { return s.batchesWritten }

// RecordsWritten returns the number of records appended so far.
func (s *Serializer[T]) RecordsWritten() int { return s.recordsWritten }

// Finish closes any open batch, writes the terminating sentinel, and
// flushes the output stream. Callers must call Finish exactly once after
// the last Append.
func (s *Serializer[T]) Finish() error {
	if err := s.closeBatch(); err != nil {
		return err
	}
	w, err := s.out.ReserveOrFlush(4)
	if err != nil {
		return err
	}
	wire.PutInt32(w, wire.BatchSentinel)
	s.out.Confirm(4)
	return s.out.Flush()
}

func (s *Serializer[T]) openBatch(cid int32) error {
	w, err := s.out.ReserveOrFlush(8)
	if err != nil {
		return err
	}
	base := s.out.SizeReserved()
	wire.PutInt32(w[0:4], cid)
	wire.PutInt32(w[4:8], 0)
	s.out.Confirm(8)

	s.batchSizeOffset = base + 4
	s.curCid = cid
	s.batchSize = 0
	s.hasOpenBatch = true
	s.batchesWritten++
	return nil
}

// closeBatch patches the open batch's size field in place. It does not
// flush: the caller decides separately whether a flush is warranted.
func (s *Serializer[T]) closeBatch() error {
	if !s.hasOpenBatch {
		return nil
	}
	pending := s.out.PendingBytes()
	wire.PutInt32(pending[s.batchSizeOffset:s.batchSizeOffset+4], s.batchSize)
	s.hasOpenBatch = false
	return nil
}

// switchBatch closes the current batch (without forcing a flush) and
// opens a new one for cid; used when consecutive Append calls carry
// different cids.
func (s *Serializer[T]) switchBatch(cid int32) error {
	if err := s.closeBatch(); err != nil {
		return err
	}
	return s.openBatch(cid)
}

// flushAndReopen closes the current batch, flushes the accumulated bytes
// to the stream, and reopens a fresh batch with the same cid so the
// caller can retry the record that didn't fit.
func (s *Serializer[T]) flushAndReopen(cid int32) error {
	if err := s.closeBatch(); err != nil {
		return err
	}
	if err := s.out.Flush(); err != nil {
		return err
	}
	return s.openBatch(cid)
}
