package pcm

import (
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/sinn7/hal"
	"github.com/ardnew/sinn7/pkg"
	"github.com/ardnew/sinn7/pkg/metrics"
)

// slot is one reusable transfer buffer.
type slot struct {
	buf       []byte         // MaxPacketSize bytes
	inUse     bool           // acquired or in flight
	submitted bool           // transfer in flight
	gen       uint32         // bumped on forced reclaim
	id        hal.TransferID // HAL transfer of the current submission
	next      int8           // next free slot index (-1 if none)
}

// pool owns the transfer slots. Idle slots form an index-linked free list.
type pool struct {
	mu       sync.Mutex
	slots    [NumSlots]slot
	freeHead int8
	inflight int

	bulk hal.BulkHAL
	ep   uint8

	// idle is poked (never blocking) whenever a slot completes.
	idle chan struct{}

	onComplete func(idx int, status pkg.TransferStatus)
	metrics    *metrics.Metrics
}

func newPool(bulk hal.BulkHAL, ep uint8, onComplete func(int, pkg.TransferStatus), m *metrics.Metrics) *pool {
	p := &pool{
		bulk:       bulk,
		ep:         ep,
		idle:       make(chan struct{}, 1),
		onComplete: onComplete,
		metrics:    m,
	}
	for i := range p.slots {
		p.slots[i].buf = make([]byte, MaxPacketSize)
		p.slots[i].next = int8(i + 1)
	}
	p.slots[NumSlots-1].next = -1
	return p
}

// acquireIdle takes a slot off the free list. It never blocks.
func (p *pool) acquireIdle() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.freeHead < 0 {
		return -1, false
	}

	idx := int(p.freeHead)
	s := &p.slots[idx]
	p.freeHead = s.next
	s.inUse = true
	s.next = -1
	return idx, true
}

// buffer returns the buffer of an acquired slot.
func (p *pool) buffer(idx int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots[idx].buf
}

// release returns an acquired, unsubmitted slot to the free list.
func (p *pool) release(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &p.slots[idx]
	if s.inUse && !s.submitted {
		p.freeLocked(idx)
	}
}

func (p *pool) freeLocked(idx int) {
	s := &p.slots[idx]
	s.inUse = false
	s.submitted = false
	s.id = 0
	s.next = p.freeHead
	p.freeHead = int8(idx)
}

// submit sends the first n bytes of an acquired slot. On rejection the
// slot goes back to the free list.
func (p *pool) submit(idx, n int) error {
	p.mu.Lock()
	s := &p.slots[idx]
	gen := s.gen
	data := s.buf[:n]
	s.submitted = true
	p.inflight++
	inflight := p.inflight
	p.mu.Unlock()

	id, err := p.bulk.SubmitBulk(p.ep, data, func(status pkg.TransferStatus, _ int) {
		p.complete(idx, gen, status)
	})
	if err != nil {
		p.mu.Lock()
		if s.gen == gen && s.submitted {
			p.inflight--
			p.freeLocked(idx)
		}
		p.mu.Unlock()
		p.metrics.SubmitFailed()
		pkg.LogWarn(pkg.ComponentPool, "submit rejected", "slot", idx, "error", err)
		return fmt.Errorf("%w: %w", pkg.ErrSubmission, err)
	}

	p.mu.Lock()
	if s.gen == gen && s.submitted {
		s.id = id
	}
	p.mu.Unlock()
	p.metrics.TransferSubmitted(inflight)
	return nil
}

// complete runs on a HAL goroutine. Completions from a reclaimed
// generation are ignored.
func (p *pool) complete(idx int, gen uint32, status pkg.TransferStatus) {
	p.mu.Lock()
	s := &p.slots[idx]
	if s.gen != gen || !s.submitted {
		p.mu.Unlock()
		return
	}
	p.inflight--
	p.freeLocked(idx)
	inflight := p.inflight
	p.mu.Unlock()

	select {
	case p.idle <- struct{}{}:
	default:
	}

	p.metrics.TransferCompleted(status.String(), inflight)
	if p.onComplete != nil {
		p.onComplete(idx, status)
	}
}

// inFlight returns the number of submitted transfers not yet completed.
func (p *pool) inFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}

// waitIdle waits up to timeout for every transfer to complete.
func (p *pool) waitIdle(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for p.inFlight() > 0 {
		select {
		case <-p.idle:
		case <-timer.C:
			return p.inFlight() == 0
		}
	}
	return true
}

// cancelAll brings every slot back to idle within a bounded time: first
// by waiting, then by cancelling through the HAL, and finally by
// reclaiming stuck slots with fresh buffers. Reclaiming returns
// [pkg.ErrTimeout].
func (p *pool) cancelAll(timeout time.Duration) error {
	if p.waitIdle(timeout) {
		return nil
	}

	p.mu.Lock()
	ids := make([]hal.TransferID, 0, NumSlots)
	for i := range p.slots {
		if p.slots[i].submitted && p.slots[i].id != 0 {
			ids = append(ids, p.slots[i].id)
		}
	}
	p.mu.Unlock()

	pkg.LogDebug(pkg.ComponentPool, "cancelling transfers", "count", len(ids))
	for _, id := range ids {
		if err := p.bulk.Cancel(id); err != nil {
			pkg.LogWarn(pkg.ComponentPool, "cancel failed", "id", id, "error", err)
		}
	}

	if p.waitIdle(timeout) {
		return nil
	}

	p.mu.Lock()
	reclaimed := 0
	for i := range p.slots {
		s := &p.slots[i]
		if !s.submitted {
			continue
		}
		// The HAL may still touch the old buffer.
		s.gen++
		s.buf = make([]byte, MaxPacketSize)
		p.inflight--
		p.freeLocked(i)
		reclaimed++
	}
	p.mu.Unlock()

	p.metrics.Reclaimed(reclaimed)
	pkg.LogWarn(pkg.ComponentPool, "reclaimed stuck transfers", "count", reclaimed)
	return fmt.Errorf("%w: %d transfers reclaimed", pkg.ErrTimeout, reclaimed)
}
