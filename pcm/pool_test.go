package pcm

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ardnew/sinn7/pkg"
)

func TestPool_AcquireRelease(t *testing.T) {
	p := newPool(newMockHAL(), 0x05, nil, nil)

	seen := make(map[int]bool)
	for i := 0; i < NumSlots; i++ {
		idx, ok := p.acquireIdle()
		if !ok {
			t.Fatalf("acquireIdle() #%d failed", i)
		}
		if seen[idx] {
			t.Fatalf("slot %d acquired twice", idx)
		}
		seen[idx] = true
		if len(p.buffer(idx)) != MaxPacketSize {
			t.Errorf("slot %d buffer = %d bytes", idx, len(p.buffer(idx)))
		}
	}

	if _, ok := p.acquireIdle(); ok {
		t.Error("acquireIdle() succeeded with every slot busy")
	}

	p.release(3)
	if idx, ok := p.acquireIdle(); !ok || idx != 3 {
		t.Errorf("acquireIdle() after release = %d, %v; want 3, true", idx, ok)
	}
}

func TestPool_SubmitComplete(t *testing.T) {
	dev := newMockHAL()
	var completions atomic.Int32
	p := newPool(dev, 0x05, func(idx int, status pkg.TransferStatus) {
		if status == pkg.TransferStatusSuccess {
			completions.Add(1)
		}
	}, nil)

	idx, _ := p.acquireIdle()
	if err := p.submit(idx, 512); err != nil {
		t.Fatalf("submit() error = %v", err)
	}

	eventually(t, "completion", func() bool { return completions.Load() == 1 })
	if n := p.inFlight(); n != 0 {
		t.Errorf("inFlight() = %d, want 0", n)
	}
	if got := len(dev.snapshot()[0]); got != 512 {
		t.Errorf("submitted %d bytes, want 512", got)
	}
}

func TestPool_SubmitRejected(t *testing.T) {
	dev := newMockHAL()
	dev.setSubmitErr(pkg.ErrNoDevice)
	p := newPool(dev, 0x05, nil, nil)

	idx, _ := p.acquireIdle()
	err := p.submit(idx, 512)
	if !errors.Is(err, pkg.ErrSubmission) || !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("submit() error = %v, want ErrSubmission wrapping ErrNoDevice", err)
	}
	if n := p.inFlight(); n != 0 {
		t.Errorf("inFlight() = %d, want 0", n)
	}

	// The slot is idle again.
	count := 0
	for {
		if _, ok := p.acquireIdle(); !ok {
			break
		}
		count++
	}
	if count != NumSlots {
		t.Errorf("idle slots = %d, want %d", count, NumSlots)
	}
}

func TestPool_CancelAllIdle(t *testing.T) {
	p := newPool(newMockHAL(), 0x05, nil, nil)
	start := time.Now()
	if err := p.cancelAll(time.Second); err != nil {
		t.Errorf("cancelAll() error = %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("cancelAll() with nothing in flight should return immediately")
	}
}

func TestPool_CancelAllGraceful(t *testing.T) {
	dev := newMockHAL()
	dev.hold = true
	p := newPool(dev, 0x05, nil, nil)

	for i := 0; i < 3; i++ {
		idx, _ := p.acquireIdle()
		p.submit(idx, 512)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		dev.completeAll(pkg.TransferStatusSuccess)
	}()

	if err := p.cancelAll(time.Second); err != nil {
		t.Errorf("cancelAll() error = %v", err)
	}
	if dev.cancels != 0 {
		t.Errorf("cancels = %d, want 0", dev.cancels)
	}
}

func TestPool_CancelAllCancels(t *testing.T) {
	dev := newMockHAL()
	dev.hold = true
	p := newPool(dev, 0x05, nil, nil)

	for i := 0; i < NumSlots; i++ {
		idx, _ := p.acquireIdle()
		p.submit(idx, 512)
	}

	if err := p.cancelAll(10 * time.Millisecond); err != nil {
		t.Errorf("cancelAll() error = %v", err)
	}
	if n := p.inFlight(); n != 0 {
		t.Errorf("inFlight() = %d, want 0", n)
	}
	if dev.cancels != NumSlots {
		t.Errorf("cancels = %d, want %d", dev.cancels, NumSlots)
	}
}

func TestPool_CancelAllForcedReclaim(t *testing.T) {
	dev := newMockHAL()
	dev.hold = true
	dev.ignoreCancel = true
	var completions atomic.Int32
	p := newPool(dev, 0x05, func(int, pkg.TransferStatus) { completions.Add(1) }, nil)

	old := make(map[int][]byte)
	for i := 0; i < 2; i++ {
		idx, _ := p.acquireIdle()
		old[idx] = p.buffer(idx)
		p.submit(idx, 512)
	}

	err := p.cancelAll(5 * time.Millisecond)
	if !errors.Is(err, pkg.ErrTimeout) {
		t.Fatalf("cancelAll() error = %v, want ErrTimeout", err)
	}
	if n := p.inFlight(); n != 0 {
		t.Errorf("inFlight() = %d, want 0", n)
	}
	for idx, buf := range old {
		if &p.buffer(idx)[0] == &buf[0] {
			t.Errorf("slot %d kept the buffer of its stuck transfer", idx)
		}
	}

	// Late completions from the reclaimed generation are ignored.
	dev.completeAll(pkg.TransferStatusSuccess)
	if n := completions.Load(); n != 0 {
		t.Errorf("stale completions forwarded = %d, want 0", n)
	}

	// Idempotent.
	if err := p.cancelAll(5 * time.Millisecond); err != nil {
		t.Errorf("second cancelAll() error = %v", err)
	}
}
