// Package wire defines the TStorage binary protocol: command codes, the
// Key and KeyRange types, request/response header layouts, and the
// little-endian primitive codec used to read and write them.
//
// Every multi-byte integer on the wire is little-endian, independent of
// host byte order. Types follow the protocol's own naming: i32/i64/u32/u64.
package wire

import "encoding/binary"

// Command codes for the request header's cmd field.
const (
	CmdGet      int32 = 1
	CmdPutSafe  int32 = 5
	CmdPutASafe int32 = 6
	CmdGetAcq   int32 = 7
)

// BatchSentinel is the cid value that terminates a PUT/PUT_A batch stream.
// It is never a legal cid on a Key.
const BatchSentinel int32 = -1

// Sizes, in bytes, of the various wire-level fixed structures.
const (
	SizeKeyFull       = 32 // cid + mid + moid + cap + acq
	SizeKeyNoCid      = 28 // mid + moid + cap + acq
	SizeKeyNoCidNoAcq = 20 // mid + moid + cap
	SizeRequestHeader = 4 + 8
	SizeResponseHeader = 4 + 8
	SizeKeyRange      = 2 * SizeKeyFull
)

// Key is the 5-tuple protocol key, lexicographically ordered by
// (Cid, Mid, Moid, Cap, Acq).
type Key struct {
	Cid  int32
	Mid  int64
	Moid int32
	Cap  int64
	Acq  int64
}

// Less reports whether k sorts strictly before o in key-lexicographic order.
func (k Key) Less(o Key) bool {
	if k.Cid != o.Cid {
		return k.Cid < o.Cid
	}
	if k.Mid != o.Mid {
		return k.Mid < o.Mid
	}
	if k.Moid != o.Moid {
		return k.Moid < o.Moid
	}
	if k.Cap != o.Cap {
		return k.Cap < o.Cap
	}
	return k.Acq < o.Acq
}

// KeyRange is the half-open range [Min, Max) in key-lexicographic order.
type KeyRange struct {
	Min, Max Key
}

// Valid reports whether the range satisfies Min <= Max (as required for a
// well-formed request; spec.md §3 calls for Min <= Max-1, which for integer
// keys is equivalent to Min < Max, but we accept Min == Max as an explicitly
// empty range rather than rejecting it, since the wire format has no way to
// distinguish the two and the server is the final arbiter).
func (r KeyRange) Valid() bool {
	return !r.Max.Less(r.Min)
}

// PutKey writes k into buf (which must be at least SizeKeyFull bytes) in
// full wire form: cid, mid, moid, cap, acq.
func PutKey(buf []byte, k Key) {
	_ = buf[SizeKeyFull-1]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(k.Cid))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(k.Mid))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(k.Moid))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(k.Cap))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(k.Acq))
}

// GetKey reads a full 32-byte wire Key from buf.
func GetKey(buf []byte) Key {
	_ = buf[SizeKeyFull-1]
	return Key{
		Cid:  int32(binary.LittleEndian.Uint32(buf[0:4])),
		Mid:  int64(binary.LittleEndian.Uint64(buf[4:12])),
		Moid: int32(binary.LittleEndian.Uint32(buf[12:16])),
		Cap:  int64(binary.LittleEndian.Uint64(buf[16:24])),
		Acq:  int64(binary.LittleEndian.Uint64(buf[24:32])),
	}
}

// PutKeyNoCid writes k into buf (at least 28 bytes) omitting Cid: mid,
// moid, cap, acq. Used for PUT_A_SAFE records, where cid lives once in the
// batch header.
func PutKeyNoCid(buf []byte, k Key) {
	_ = buf[SizeKeyNoCid-1]
	binary.LittleEndian.PutUint64(buf[0:8], uint64(k.Mid))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(k.Moid))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(k.Cap))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(k.Acq))
}

// GetKeyNoCid reads a 28-byte abbreviated key (mid, moid, cap, acq),
// filling in cid from the enclosing batch header.
func GetKeyNoCid(buf []byte, cid int32) Key {
	_ = buf[SizeKeyNoCid-1]
	return Key{
		Cid:  cid,
		Mid:  int64(binary.LittleEndian.Uint64(buf[0:8])),
		Moid: int32(binary.LittleEndian.Uint32(buf[8:12])),
		Cap:  int64(binary.LittleEndian.Uint64(buf[12:20])),
		Acq:  int64(binary.LittleEndian.Uint64(buf[20:28])),
	}
}

// PutKeyNoCidNoAcq writes k into buf (at least 20 bytes) omitting both Cid
// and Acq: mid, moid, cap. Used for PUT_SAFE records, where the server
// assigns Acq.
func PutKeyNoCidNoAcq(buf []byte, k Key) {
	_ = buf[SizeKeyNoCidNoAcq-1]
	binary.LittleEndian.PutUint64(buf[0:8], uint64(k.Mid))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(k.Moid))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(k.Cap))
}

// GetKeyNoCidNoAcq reads a 20-byte abbreviated key (mid, moid, cap),
// filling in cid and acq from the caller's context.
func GetKeyNoCidNoAcq(buf []byte, cid int32, acq int64) Key {
	_ = buf[SizeKeyNoCidNoAcq-1]
	return Key{
		Cid:  cid,
		Mid:  int64(binary.LittleEndian.Uint64(buf[0:8])),
		Moid: int32(binary.LittleEndian.Uint32(buf[8:12])),
		Cap:  int64(binary.LittleEndian.Uint64(buf[12:20])),
		Acq:  acq,
	}
}

// RequestHeader is {cmd: i32, dataSize: u64}.
type RequestHeader struct {
	Cmd      int32
	DataSize uint64
}

// PutRequestHeader writes h into buf (at least SizeRequestHeader bytes).
func PutRequestHeader(buf []byte, h RequestHeader) {
	_ = buf[SizeRequestHeader-1]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Cmd))
	binary.LittleEndian.PutUint64(buf[4:12], h.DataSize)
}

// GetRequestHeader reads a RequestHeader from buf.
func GetRequestHeader(buf []byte) RequestHeader {
	_ = buf[SizeRequestHeader-1]
	return RequestHeader{
		Cmd:      int32(binary.LittleEndian.Uint32(buf[0:4])),
		DataSize: binary.LittleEndian.Uint64(buf[4:12]),
	}
}

// ResponseHeader is {result: i32, dataSize: u64}. Result == 0 is success;
// any other value is a server-defined status code (see §7 server-status).
type ResponseHeader struct {
	Result   int32
	DataSize uint64
}

// PutResponseHeader writes h into buf (at least SizeResponseHeader bytes).
func PutResponseHeader(buf []byte, h ResponseHeader) {
	_ = buf[SizeResponseHeader-1]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Result))
	binary.LittleEndian.PutUint64(buf[4:12], h.DataSize)
}

// GetResponseHeader reads a ResponseHeader from buf.
func GetResponseHeader(buf []byte) ResponseHeader {
	_ = buf[SizeResponseHeader-1]
	return ResponseHeader{
		Result:   int32(binary.LittleEndian.Uint32(buf[0:4])),
		DataSize: binary.LittleEndian.Uint64(buf[4:12]),
	}
}

// PutInt32 writes v at buf[0:4].
func PutInt32(buf []byte, v int32) { binary.LittleEndian.PutUint32(buf[0:4], uint32(v)) }

// GetInt32 reads an int32 from buf[0:4].
func GetInt32(buf []byte) int32 { return int32(binary.LittleEndian.Uint32(buf[0:4])) }

// PutInt64 writes v at buf[0:8].
func PutInt64(buf []byte, v int64) { binary.LittleEndian.PutUint64(buf[0:8], uint64(v)) }

// GetInt64 reads an int64 from buf[0:8].
func GetInt64(buf []byte) int64 { return int64(binary.LittleEndian.Uint64(buf[0:8])) }

// PutUint64 writes v at buf[0:8].
func PutUint64(buf []byte, v uint64) { binary.LittleEndian.PutUint64(buf[0:8], v) }

// GetUint64 reads a uint64 from buf[0:8].
func GetUint64(buf []byte) uint64 { return binary.LittleEndian.Uint64(buf[0:8]) }

// KeySizeFor returns the on-wire size of a key as serialized in a PUT/PUT_A
// batch record: 20 bytes for PUT_SAFE (no cid, no acq), 28 for PUT_A_SAFE
// (no cid, with acq).
func KeySizeFor(cmd int32) int {
	if cmd == CmdPutASafe {
		return SizeKeyNoCid
	}
	return SizeKeyNoCidNoAcq
}
