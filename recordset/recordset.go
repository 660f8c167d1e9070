// Package recordset implements the payload codec contract and the
// append-only RecordsSet container (spec.md §3 "RecordsSet<T>", §4.5,
// and the EncodeDecode<T> collaborator of §6).
package recordset

import "github.com/m-lab/tstorage-client/wire"

// Codec is the per-channel payload codec capability spec.md §6 calls
// EncodeDecode<T>. It is supplied by the caller; the protocol engine
// never interprets payload bytes itself.
//
// Encode must be deterministic: the same value always produces the same
// bytes. It writes the encoding into out (iff out is large enough) and
// always returns the exact number of bytes needed; callers retry with a
// larger buffer when the returned size exceeds len(out).
//
// Decode receives exactly the payload's byte range (no more, no less)
// and returns the decoded value, or an error if decoding is impossible.
type Codec[T any] interface {
	Encode(value T, out []byte) (needed int, err error)
	Decode(in []byte) (T, error)
}

// Record is a Key paired with an opaque payload of type T.
type Record[T any] struct {
	Key     wire.Key
	Payload T
}

// RecordsSet is an append-only, ordered sequence of Record[T] values with
// O(1) Len and amortized O(1) Append. It is the unit of exchange for both
// PUT (caller-constructed, consumed by package batch) and GET
// (constructed by package inbound, handed to the caller).
type RecordsSet[T any] struct {
	records []Record[T]
}

// New constructs an empty RecordsSet, optionally pre-sizing its backing
// array to reduce reallocation when the expected count is known.
func New[T any](capacityHint int) *RecordsSet[T] {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &RecordsSet[T]{records: make([]Record[T], 0, capacityHint)}
}

// Append adds a record to the end of the set.
func (s *RecordsSet[T]) Append(r Record[T]) {
	s.records = append(s.records, r)
}

// Len returns the number of records currently in the set.
func (s *RecordsSet[T]) Len() int { return len(s.records) }

// At returns the i'th record. It panics if i is out of range, matching
// slice indexing semantics.
func (s *RecordsSet[T]) At(i int) Record[T] { return s.records[i] }

// All returns the full backing slice of records, in append order. The
// returned slice must not be mutated by the caller.
func (s *RecordsSet[T]) All() []Record[T] { return s.records }
