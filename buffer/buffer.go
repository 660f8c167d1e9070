// Package buffer implements DynamicBuffer, an amortized-growth contiguous
// byte arena bounded by a configured maximum size.
package buffer

import "errors"

// Errors returned by DynamicBuffer operations.
var (
	// ErrLimitExceeded is returned when a requested size exceeds MaxSize.
	ErrLimitExceeded = errors.New("buffer: requested size exceeds configured maximum")
	// ErrResourceExhaustion is returned when the host allocator fails, or
	// when a caller asks for an initial size larger than the maximum.
	ErrResourceExhaustion = errors.New("buffer: allocation failed")
)

// DynamicBuffer is a growable, contiguous byte arena. It grows by
// doubling (clamped to MaxSize) and never shrinks except via SetMaxSize,
// which empties it outright.
//
// DynamicBuffer is not safe for concurrent use.
type DynamicBuffer struct {
	data    []byte
	maxSize int
}

// New constructs a DynamicBuffer with the given maximum size and an
// initial allocation of initialSize bytes. initialSize must be <= maxSize.
func New(maxSize, initialSize int) (*DynamicBuffer, error) {
	b := &DynamicBuffer{}
	if err := b.Initialize(maxSize, initialSize); err != nil {
		return nil, err
	}
	return b, nil
}

// Initialize (re)sets the buffer to a fresh allocation of initialSize
// bytes, bounded by maxSize. Any previously held bytes are discarded.
func (b *DynamicBuffer) Initialize(maxSize, initialSize int) error {
	if initialSize > maxSize {
		return ErrResourceExhaustion
	}
	b.maxSize = maxSize
	b.data = make([]byte, initialSize)
	return nil
}

// MaxSize returns the current upper bound on buffer size.
func (b *DynamicBuffer) MaxSize() int { return b.maxSize }

// Size returns the current allocated length of the buffer.
func (b *DynamicBuffer) Size() int { return len(b.data) }

// Bytes returns the full backing slice. Holding onto it across a
// successful ResizeAtLeast is illegal: any reallocation invalidates
// previously returned slices.
func (b *DynamicBuffer) Bytes() []byte { return b.data }

// ResizeAtLeast ensures the buffer holds at least n bytes, growing it if
// necessary. Growth doubles the current size when that's enough to reach
// n, otherwise grows exactly to n; either way the result is clamped to
// MaxSize. If n exceeds MaxSize, returns ErrLimitExceeded and leaves the
// buffer unchanged. If n <= Size(), this is a no-op.
func (b *DynamicBuffer) ResizeAtLeast(n int) error {
	size := len(b.data)
	if n <= size {
		return nil
	}
	if n > b.maxSize {
		return ErrLimitExceeded
	}
	newSize := n
	if size > 0 && n <= 2*size {
		newSize = 2 * size
	}
	if newSize > b.maxSize {
		newSize = b.maxSize
	}
	grown := make([]byte, newSize)
	copy(grown, b.data)
	b.data = grown
	return nil
}

// SetMaxSize empties the buffer's storage and records a new upper bound.
// Subsequent use reallocates lazily via ResizeAtLeast.
func (b *DynamicBuffer) SetMaxSize(n int) {
	b.maxSize = n
	b.data = nil
}
