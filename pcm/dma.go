package pcm

import "sync"

// DMABuffer is the host's circular playback buffer. The application writes
// into it while the dispatch loop reads from it; both sides hold mu only
// for a copy.
type DMABuffer struct {
	mu   sync.Mutex
	data []byte
}

// NewDMABuffer allocates a zeroed buffer of size bytes.
func NewDMABuffer(size int) *DMABuffer {
	return &DMABuffer{data: make([]byte, size)}
}

// Len returns the buffer size in bytes.
func (b *DMABuffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// WriteAt copies p into the buffer starting at off, wrapping at the end.
// Returns the number of bytes written, at most Len().
func (b *DMABuffer) WriteAt(p []byte, off int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.data)
	if size == 0 {
		return 0
	}
	if len(p) > size {
		p = p[:size]
	}
	off %= size
	n := copy(b.data[off:], p)
	copy(b.data, p[n:])
	return len(p)
}

// Fill sets n bytes to v starting at off, wrapping at the end.
func (b *DMABuffer) Fill(v byte, off, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.data)
	if size == 0 {
		return
	}
	if n > size {
		n = size
	}
	off %= size
	for i := 0; i < n; i++ {
		b.data[(off+i)%size] = v
	}
}

// read copies n bytes starting at off into dst.
func (b *DMABuffer) read(dst []byte, off, n int) (tail, head int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyWrapped(dst, b.data, off, n)
}
