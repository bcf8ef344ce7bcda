package pcm

// copyWrapped copies n bytes of ring starting at off into dst. When the
// read crosses the end of ring it is split into a tail run up to the end
// and a head run from offset 0.
func copyWrapped(dst, ring []byte, off, n int) (tail, head int) {
	if len(ring) == 0 || n <= 0 {
		return 0, 0
	}
	if n > len(ring) {
		n = len(ring)
	}
	off %= len(ring)

	tail = copy(dst[:n], ring[off:])
	if tail < n {
		head = copy(dst[tail:n], ring[:n-tail])
	}
	return tail, head
}

// cursor tracks the read position in the DMA buffer.
//
// dmaOffset < bufferBytes and periodOffset < periodFrames always hold once
// a buffer is configured.
type cursor struct {
	dmaOffset    int // bytes
	periodOffset int // frames
}

func (c *cursor) reset() {
	c.dmaOffset = 0
	c.periodOffset = 0
}

// advance moves the cursor and reports whether a period boundary was
// crossed.
func (c *cursor) advance(bytes, frames, bufferBytes, periodFrames int) bool {
	if bufferBytes > 0 {
		c.dmaOffset = (c.dmaOffset + bytes) % bufferBytes
	}
	c.periodOffset += frames
	if periodFrames > 0 && c.periodOffset >= periodFrames {
		c.periodOffset %= periodFrames
		return true
	}
	return false
}
