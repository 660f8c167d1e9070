// Package iostream implements the reservation-based buffered reader and
// writer that sit between the wire codec and the raw byte stream:
// BufferedInputStream and BufferedOutputStream (spec.md §4.2, §4.3).
//
// Both types are layered over a ByteStream, the external collaborator
// spec.md §1 and §6 place out of core scope: any faithful implementation
// of Read/Write over a real socket (see package tcpconn) or a test double
// suffices.
package iostream

import (
	"errors"
	"fmt"

	"github.com/m-lab/tstorage-client/buffer"
)

// Errors surfaced by BufferedInputStream and BufferedOutputStream. The
// channel state machine (package tsclient) is the layer that maps these,
// along with buffer.ErrLimitExceeded and buffer.ErrResourceExhaustion,
// onto the public error taxonomy.
var (
	// ErrReceive wraps a short read or error reported by ByteStream.Read.
	ErrReceive = errors.New("iostream: receive error")
	// ErrSendFailed wraps an error reported by ByteStream.Write.
	ErrSendFailed = errors.New("iostream: send error")
)

// ByteStream is the minimal capability a transport must provide. Read
// blocks until at least min bytes have been placed in p or an error
// (including a timeout) occurs; on success it returns some count in
// [min, len(p)]. A count of 0 specifically signals that the peer closed
// the connection. Write sends all of p or reports an error.
type ByteStream interface {
	Read(p []byte, min int) (n int, err error)
	Write(p []byte) error
}

// BufferedInputStream reads ahead into a DynamicBuffer and hands out
// read-only windows by length via Reserve, without copying on the common
// path. It is not safe for concurrent use.
type BufferedInputStream struct {
	stream   ByteStream
	buf      *buffer.DynamicBuffer
	readPos  int // bytes of valid (read-ahead) data currently buffered
	reservePos int // bytes already handed out via Reserve
	bytesRead int64 // cumulative bytes pulled from stream.Read, for metrics
}

// NewBufferedInputStream constructs a BufferedInputStream over stream,
// with a buffer bounded by maxSize and an initial allocation of
// initialSize bytes (initialSize may be 0 for fully lazy allocation).
func NewBufferedInputStream(stream ByteStream, maxSize, initialSize int) (*BufferedInputStream, error) {
	b, err := buffer.New(maxSize, initialSize)
	if err != nil {
		return nil, err
	}
	return &BufferedInputStream{stream: stream, buf: b}, nil
}

// Reserve guarantees at least n contiguous bytes are available starting
// at the current reservation position, growing the buffer and reading
// from the underlying stream as needed. The returned window aliases the
// internal buffer and is valid only until the next call to Reserve.
//
// Reserve can fail with buffer.ErrLimitExceeded (n would require growing
// past the configured maximum), buffer.ErrResourceExhaustion (the host
// allocator failed), or ErrReceive (the stream returned fewer bytes than
// required, including peer-closed).
func (s *BufferedInputStream) Reserve(n int) ([]byte, error) {
	target := s.reservePos + n
	if target > s.readPos {
		if err := s.buf.ResizeAtLeast(target); err != nil {
			return nil, err
		}
		data := s.buf.Bytes()
		need := target - s.readPos
		avail := len(data) - s.readPos
		got, err := s.stream.Read(data[s.readPos:s.readPos+avail], need)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReceive, err)
		}
		if got < need {
			// A conforming ByteStream never does this, but guard against a
			// misbehaving one rather than silently under-reading.
			return nil, fmt.Errorf("%w: short read (%d < %d)", ErrReceive, got, need)
		}
		s.readPos += got
		s.bytesRead += int64(got)
	}
	window := s.buf.Bytes()[s.reservePos:target]
	s.reservePos = target
	return window, nil
}

// BytesRead returns the cumulative count of bytes pulled from the
// underlying stream since construction; Reset does not clear it.
func (s *BufferedInputStream) BytesRead() int64 { return s.bytesRead }

// Confirm shifts any bytes read ahead of the reservation position to the
// start of the buffer, so that future Reserve calls have room to grow
// without unbounded accumulation. After Confirm, the reservation position
// is zero.
func (s *BufferedInputStream) Confirm() {
	data := s.buf.Bytes()
	remaining := s.readPos - s.reservePos
	copy(data[0:remaining], data[s.reservePos:s.readPos])
	s.readPos = remaining
	s.reservePos = 0
}

// Reset discards any buffered content and re-applies maxSize as the new
// upper bound, reallocating lazily on the next Reserve. Used by the
// channel on a memory-limit change.
func (s *BufferedInputStream) Reset(maxSize int) {
	s.buf.SetMaxSize(maxSize)
	s.readPos = 0
	s.reservePos = 0
}

// BufferedOutputStream hands out writable windows from a DynamicBuffer,
// tracks how many bytes of it are confirmed (ready to flush), and writes
// them through a ByteStream on demand. It is not safe for concurrent use.
type BufferedOutputStream struct {
	stream     ByteStream
	buf        *buffer.DynamicBuffer
	reservePos int // bytes confirmed and pending flush
	bytesWritten int64 // cumulative bytes written to stream, for metrics
}

// NewBufferedOutputStream constructs a BufferedOutputStream over stream,
// with a buffer bounded by maxSize and an initial allocation of
// initialSize bytes.
func NewBufferedOutputStream(stream ByteStream, maxSize, initialSize int) (*BufferedOutputStream, error) {
	b, err := buffer.New(maxSize, initialSize)
	if err != nil {
		return nil, err
	}
	return &BufferedOutputStream{stream: stream, buf: b}, nil
}

// Reserve allocates n bytes of writable space contiguous from the current
// reservation position, growing the buffer (up to its configured maximum)
// but never touching the underlying stream. The window is valid until the
// buffer is next grown or flushed.
func (s *BufferedOutputStream) Reserve(n int) ([]byte, error) {
	if err := s.buf.ResizeAtLeast(s.reservePos + n); err != nil {
		return nil, err
	}
	return s.buf.Bytes()[s.reservePos : s.reservePos+n], nil
}

// ReserveOrFlush behaves like Reserve, but if growing past the configured
// maximum would be required, it first Flushes the buffer (making room by
// resetting the reservation position to zero) and retries once.
func (s *BufferedOutputStream) ReserveOrFlush(n int) ([]byte, error) {
	w, err := s.Reserve(n)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, buffer.ErrLimitExceeded) {
		return nil, err
	}
	if ferr := s.Flush(); ferr != nil {
		return nil, ferr
	}
	return s.Reserve(n)
}

// Confirm advances the reservation position by n, marking the n bytes
// just written into a Reserve'd window as pending flush.
func (s *BufferedOutputStream) Confirm(n int) {
	s.reservePos += n
}

// Flush writes all confirmed bytes through the underlying stream and
// resets the reservation position to zero.
func (s *BufferedOutputStream) Flush() error {
	if s.reservePos == 0 {
		return nil
	}
	if err := s.stream.Write(s.buf.Bytes()[:s.reservePos]); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	s.bytesWritten += int64(s.reservePos)
	s.reservePos = 0
	return nil
}

// BytesWritten returns the cumulative count of bytes written to the
// underlying stream since construction; Reset does not clear it.
func (s *BufferedOutputStream) BytesWritten() int64 { return s.bytesWritten }

// SizeReserved returns the number of bytes currently confirmed and
// pending flush.
func (s *BufferedOutputStream) SizeReserved() int { return s.reservePos }

// PendingBytes returns the confirmed-but-unflushed prefix of the buffer,
// i.e. buf[:SizeReserved()]. Callers use this to patch fields (such as a
// batch header's length) written earlier in the same flush cycle, before
// the bytes are sent. The slice is only valid until the next Flush.
func (s *BufferedOutputStream) PendingBytes() []byte {
	return s.buf.Bytes()[:s.reservePos]
}

// BufferCapacity returns the current allocated size of the underlying
// buffer (not its configured maximum).
func (s *BufferedOutputStream) BufferCapacity() int { return s.buf.Size() }

// Reset discards any pending (unflushed) content and re-applies maxSize
// as the new upper bound, reallocating lazily on the next Reserve.
func (s *BufferedOutputStream) Reset(maxSize int) {
	s.buf.SetMaxSize(maxSize)
	s.reservePos = 0
}
