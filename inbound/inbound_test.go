package inbound

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/go-test/deep"
	"github.com/m-lab/tstorage-client/iostream"
	"github.com/m-lab/tstorage-client/recordset"
	"github.com/m-lab/tstorage-client/wire"
)

type fakeStream struct {
	data []byte
	pos  int
}

func (f *fakeStream) Read(p []byte, min int) (int, error) {
	n := copy(p, f.data[f.pos:])
	f.pos += n
	if n < min {
		return n, errors.New("fakeStream: out of data")
	}
	return n, nil
}

func (f *fakeStream) Write(p []byte) error { return errors.New("fakeStream: not writable") }

type u32Codec struct{}

func (u32Codec) Encode(v uint32, out []byte) (int, error) {
	if len(out) >= 4 {
		binary.LittleEndian.PutUint32(out, v)
	}
	return 4, nil
}

func (u32Codec) Decode(in []byte) (uint32, error) {
	if len(in) != 4 {
		return 0, errors.New("u32Codec: want 4 bytes")
	}
	return binary.LittleEndian.Uint32(in), nil
}

// buildGetBody encodes recs as a flat length-prefixed sequence using the
// full 32-byte key, terminated by a zero prefix, matching a real GET
// response body on the wire.
func buildGetBody(recs []recordset.Record[uint32]) []byte {
	var out []byte
	for _, r := range recs {
		body := make([]byte, wire.SizeKeyFull+4)
		wire.PutKey(body[:wire.SizeKeyFull], r.Key)
		binary.LittleEndian.PutUint32(body[wire.SizeKeyFull:], r.Payload)
		prefix := make([]byte, 4)
		wire.PutInt32(prefix, int32(len(body)))
		out = append(out, prefix...)
		out = append(out, body...)
	}
	out = append(out, 0, 0, 0, 0)
	return out
}

func TestReaderReadAllGet(t *testing.T) {
	want := []recordset.Record[uint32]{
		{Key: wire.Key{Cid: 5, Mid: 1, Moid: 2, Cap: 3, Acq: 10}, Payload: 100},
		{Key: wire.Key{Cid: 5, Mid: 4, Moid: 5, Cap: 6, Acq: 11}, Payload: 200},
	}
	body := buildGetBody(want)
	fs := &fakeStream{data: body}
	in, err := iostream.NewBufferedInputStream(fs, 1<<20, 16)
	if err != nil {
		t.Fatal(err)
	}
	r := New[uint32](in, u32Codec{})
	set, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(set.All(), want); diff != nil {
		t.Error(diff)
	}
	if r.RecordsRead() != len(want) {
		t.Fatalf("RecordsRead() = %d, want %d", r.RecordsRead(), len(want))
	}
}

func TestReaderReadAllEmpty(t *testing.T) {
	fs := &fakeStream{data: []byte{0, 0, 0, 0}}
	in, err := iostream.NewBufferedInputStream(fs, 1<<20, 16)
	if err != nil {
		t.Fatal(err)
	}
	r := New[uint32](in, u32Codec{})
	set, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", set.Len())
	}
}

func TestReaderRejectsRecordShorterThanKey(t *testing.T) {
	// A record claiming to be smaller than a full 32-byte key is malformed.
	prefix := make([]byte, 4)
	wire.PutInt32(prefix, wire.SizeKeyFull-1)
	data := append(append([]byte{}, prefix...), make([]byte, wire.SizeKeyFull-1)...)
	fs := &fakeStream{data: data}
	in, err := iostream.NewBufferedInputStream(fs, 1<<20, 16)
	if err != nil {
		t.Fatal(err)
	}
	r := New[uint32](in, u32Codec{})
	_, err = r.ReadAll()
	if err == nil {
		t.Fatal("expected an error for a record shorter than its key")
	}
}

func TestReaderStreamingFlushesOnLimit(t *testing.T) {
	want := []recordset.Record[uint32]{
		{Key: wire.Key{Cid: 2, Mid: 1, Moid: 1, Cap: 1, Acq: 1}, Payload: 1},
		{Key: wire.Key{Cid: 2, Mid: 2, Moid: 2, Cap: 2, Acq: 2}, Payload: 2},
		{Key: wire.Key{Cid: 2, Mid: 3, Moid: 3, Cap: 3, Acq: 3}, Payload: 3},
	}
	body := buildGetBody(want)
	fs := &fakeStream{data: body}
	// A tiny maxSize forces ReadStreaming to hit buffer.ErrLimitExceeded
	// partway through and flush to the callback more than once.
	in, err := iostream.NewBufferedInputStream(fs, 48, 8)
	if err != nil {
		t.Fatal(err)
	}
	r := New[uint32](in, u32Codec{})

	var flushes [][]recordset.Record[uint32]
	err = r.ReadStreaming(func(partial *recordset.RecordsSet[uint32]) error {
		cp := append([]recordset.Record[uint32]{}, partial.All()...)
		flushes = append(flushes, cp)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	var got []recordset.Record[uint32]
	for _, f := range flushes {
		got = append(got, f...)
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
	if len(flushes) < 2 {
		t.Fatalf("got %d flushes, want at least 2 (buffer too small for all records at once)", len(flushes))
	}
}

func TestReaderStreamingSkipsEmptyFlush(t *testing.T) {
	// Only a single record, sized so the first buffer-limit hit occurs
	// before any record has been fully decoded: onFull must not be called
	// with an empty set on that mid-stream flush, only at end-of-stream.
	want := []recordset.Record[uint32]{
		{Key: wire.Key{Cid: 1, Mid: 1, Moid: 1, Cap: 1, Acq: 1}, Payload: 7},
	}
	body := buildGetBody(want)
	fs := &fakeStream{data: body}
	in, err := iostream.NewBufferedInputStream(fs, 36, 8)
	if err != nil {
		t.Fatal(err)
	}
	r := New[uint32](in, u32Codec{})

	var flushes [][]recordset.Record[uint32]
	err = r.ReadStreaming(func(partial *recordset.RecordsSet[uint32]) error {
		cp := append([]recordset.Record[uint32]{}, partial.All()...)
		flushes = append(flushes, cp)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range flushes[:len(flushes)-1] {
		if len(f) == 0 {
			t.Fatalf("flush %d was empty; onFull must only be called with records, except at end of stream", i)
		}
	}
}
