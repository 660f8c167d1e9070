package batch

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/m-lab/tstorage-client/buffer"
	"github.com/m-lab/tstorage-client/iostream"
	"github.com/m-lab/tstorage-client/wire"
)

type fakeStream struct {
	written  []byte
	writeErr error
}

func (f *fakeStream) Read(p []byte, min int) (int, error) {
	return 0, errors.New("fakeStream: not readable")
}

func (f *fakeStream) Write(p []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, p...)
	return nil
}

type u32Codec struct{}

func (u32Codec) Encode(v uint32, out []byte) (int, error) {
	if len(out) >= 4 {
		binary.LittleEndian.PutUint32(out, v)
	}
	return 4, nil
}

func (u32Codec) Decode(in []byte) (uint32, error) {
	return binary.LittleEndian.Uint32(in), nil
}

func newOut(t *testing.T, maxSize int) (*fakeStream, *iostream.BufferedOutputStream) {
	t.Helper()
	fs := &fakeStream{}
	out, err := iostream.NewBufferedOutputStream(fs, maxSize, 16)
	if err != nil {
		t.Fatal(err)
	}
	return fs, out
}

// readBatches parses the serialized stream into a slice of (cid,
// recordCount) pairs, stopping at the sentinel, the way the receiving
// server walks a PUT batch stream.
func readBatches(t *testing.T, data []byte, keySize int) []struct {
	cid     int32
	records int
} {
	t.Helper()
	var got []struct {
		cid     int32
		records int
	}
	pos := 0
	for {
		cid := wire.GetInt32(data[pos : pos+4])
		pos += 4
		if cid == wire.BatchSentinel {
			break
		}
		batchSize := wire.GetInt32(data[pos : pos+4])
		pos += 4
		end := pos + int(batchSize)
		count := 0
		for pos < end {
			recSize := wire.GetInt32(data[pos : pos+4])
			pos += 4 + int(recSize)
			count++
		}
		got = append(got, struct {
			cid     int32
			records int
		}{cid, count})
	}
	return got
}

func TestSerializerGroupsByCid(t *testing.T) {
	fs, out := newOut(t, 1<<20)
	s := NewPutSafe[uint32](out, u32Codec{})

	cids := []int32{7, 7, 3, 7}
	for i, cid := range cids {
		k := wire.Key{Cid: cid, Mid: int64(i)}
		if err := s.Append(k, uint32(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}

	batches := readBatches(t, fs.written, wire.SizeKeyNoCidNoAcq)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3: %+v", len(batches), batches)
	}
	wantCids := []int32{7, 3, 7}
	wantCounts := []int{2, 1, 1}
	for i, b := range batches {
		if b.cid != wantCids[i] || b.records != wantCounts[i] {
			t.Errorf("batch %d = {cid:%d, records:%d}, want {cid:%d, records:%d}",
				i, b.cid, b.records, wantCids[i], wantCounts[i])
		}
	}
}

func TestSerializerEmptyInputEmitsOnlySentinel(t *testing.T) {
	fs, out := newOut(t, 1<<20)
	s := NewPutSafe[uint32](out, u32Codec{})
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	if len(fs.written) != 4 {
		t.Fatalf("written = %d bytes, want 4 (sentinel only)", len(fs.written))
	}
	if wire.GetInt32(fs.written) != wire.BatchSentinel {
		t.Fatalf("did not write sentinel")
	}
}

func TestSerializerSingleRecordTooLarge(t *testing.T) {
	_, out := newOut(t, 16) // too small for an 8-byte header + one record
	s := NewPutASafe[uint32](out, u32Codec{})
	err := s.Append(wire.Key{Cid: 1}, 42)
	if !errors.Is(err, buffer.ErrLimitExceeded) {
		t.Fatalf("err = %v, want ErrLimitExceeded", err)
	}
}

func TestSerializerFlushesMidBatchWhenBufferFull(t *testing.T) {
	// Small enough to force at least one internal flush while writing
	// several same-cid records, but large enough that each record fits on
	// its own.
	fs, out := newOut(t, 40)
	s := NewPutSafe[uint32](out, u32Codec{})
	for i := 0; i < 5; i++ {
		if err := s.Append(wire.Key{Cid: 9, Mid: int64(i)}, uint32(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	batches := readBatches(t, fs.written, wire.SizeKeyNoCidNoAcq)
	total := 0
	for _, b := range batches {
		if b.cid != 9 {
			t.Errorf("got cid %d, want 9 in every batch (flush splits, doesn't regroup)", b.cid)
		}
		total += b.records
	}
	if total != 5 {
		t.Fatalf("total records = %d, want 5", total)
	}
	if len(batches) < 2 {
		t.Fatalf("got %d batches, want at least 2 (buffer too small to hold all 5 records at once)", len(batches))
	}
}
