package pcm

import "sync"

// HostStream is the host side of an open playback stream.
type HostStream interface {
	// DMA returns the circular buffer the engine reads audio from.
	DMA() *DMABuffer

	// PeriodElapsed is called after each period boundary, outside any
	// engine lock. It may call back into the runtime.
	PeriodElapsed()
}

// Substream is the playback substream: the open host stream, its
// parameters and the read cursor. mu is held only for bounded copies.
type Substream struct {
	mu         sync.Mutex
	active     bool
	configured bool
	cursor     cursor
	params     HWParams
	host       HostStream
}

// SetActive enables or disables audio. An inactive substream sends
// silence while its position keeps advancing.
func (s *Substream) SetActive(active bool) {
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
}

// Active reports whether audio is flowing.
func (s *Substream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// CurrentPosition returns the read position in frames.
func (s *Substream) CurrentPosition() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position()
}

func (s *Substream) position() int {
	if !s.configured {
		return 0
	}
	return s.cursor.dmaOffset / s.params.FrameBytes()
}

func (s *Substream) attach(host HostStream) {
	s.mu.Lock()
	s.host = host
	s.active = false
	s.configured = false
	s.cursor.reset()
	s.mu.Unlock()
}

func (s *Substream) detach() {
	s.mu.Lock()
	s.host = nil
	s.active = false
	s.configured = false
	s.cursor.reset()
	s.mu.Unlock()
}

func (s *Substream) attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host != nil
}

func (s *Substream) setParams(p HWParams) {
	s.mu.Lock()
	s.params = p
	s.configured = true
	s.cursor.reset()
	s.mu.Unlock()
}

func (s *Substream) clearParams() {
	s.mu.Lock()
	s.configured = false
	s.cursor.reset()
	s.mu.Unlock()
}

// chunk describes one period pulled from the substream.
type chunk struct {
	frames  int
	width   int
	elapsed bool
	host    HostStream
}

// next copies the next period into dst, or silence when the substream is
// inactive, and advances the cursor. An unconfigured substream yields
// idle frames of silence and never reports a boundary.
func (s *Substream) next(dst []byte, idle int) chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured || s.host == nil {
		clear(dst[:idle*Channels*2])
		return chunk{frames: idle, width: 2}
	}

	p := s.params
	n := p.PeriodBytes()
	dma := s.host.DMA()
	if s.active && dma.Len() >= p.BufferBytes() {
		dma.read(dst[:n], s.cursor.dmaOffset, n)
	} else {
		clear(dst[:n])
	}

	elapsed := s.cursor.advance(n, p.PeriodFrames, p.BufferBytes(), p.PeriodFrames)
	return chunk{
		frames:  p.PeriodFrames,
		width:   p.Format.Width(),
		elapsed: elapsed,
		host:    s.host,
	}
}
