package iostream

import "errors"

// fakeStream is an in-memory ByteStream used to drive BufferedInputStream
// and BufferedOutputStream in tests without a real socket, the way the
// teacher drives protocol logic against net.Pipe() or local listeners.
type fakeStream struct {
	readChunks [][]byte // each Read call consumes from the first chunk only; what does not fit in p is left for the next call
	readErr    error    // returned once all chunks are consumed, if set

	written []byte
	writeErr error
}

func (f *fakeStream) Read(p []byte, min int) (int, error) {
	if len(f.readChunks) == 0 {
		if f.readErr != nil {
			return 0, f.readErr
		}
		return 0, errors.New("fakeStream: no more data")
	}
	chunk := f.readChunks[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		f.readChunks[0] = chunk[n:]
	} else {
		f.readChunks = f.readChunks[1:]
	}
	if n < min {
		return n, errors.New("fakeStream: chunk shorter than min")
	}
	return n, nil
}

func (f *fakeStream) Write(p []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, p...)
	return nil
}
