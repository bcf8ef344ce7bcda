package pcm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/sinn7/pkg"
)

// dispatcher drives the periodic tick of a running stream. The timer is
// re-armed only after a tick returns, so ticks never overlap.
type dispatcher struct {
	rt       *Runtime
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// inCB is set while the host's PeriodElapsed runs.
	inCB atomic.Bool
	// gate is held from the quit check through submission.
	gate sync.Mutex
}

func newDispatcher(rt *Runtime) *dispatcher {
	return &dispatcher{
		rt:   rt,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (d *dispatcher) loop() {
	err := d.run()
	close(d.done)
	if err != nil {
		d.rt.handleFault(d, err)
	}
}

func (d *dispatcher) run() error {
	rt := d.rt
	timer := time.NewTimer(rt.cfg.FirstTickDelay)
	defer timer.Stop()

	for {
		select {
		case <-d.quit:
			return nil
		case err := <-rt.faultCh:
			return err
		case <-timer.C:
		}

		if err := d.tick(); err != nil {
			return err
		}
		timer.Reset(rt.cfg.TickInterval)
	}
}

func (d *dispatcher) stopped() bool {
	select {
	case <-d.quit:
		return true
	default:
		return false
	}
}

// stop disables rescheduling and waits for an in-progress tick. While the
// host callback runs, the tick may be the caller, so stop only waits for
// the gate; the tick then sees quit and abandons its slot.
func (d *dispatcher) stop() {
	d.stopOnce.Do(func() { close(d.quit) })
	if d.inCB.Load() {
		d.gate.Lock()
		d.gate.Unlock()
		return
	}
	<-d.done
}

// tick sends one period (or silence) in an idle slot.
func (d *dispatcher) tick() error {
	rt := d.rt
	if d.stopped() || rt.State() != StreamRunning || rt.panicked.Load() {
		return nil
	}
	rt.metrics.Tick()

	idx, ok := rt.pool.acquireIdle()
	if !ok {
		rt.metrics.SkippedTick()
		pkg.LogDebug(pkg.ComponentDispatch, "no idle slot")
		return nil
	}

	c := rt.sub.next(rt.scratch, rt.cfg.PrimeFrames)
	if c.elapsed && c.host != nil {
		rt.metrics.PeriodElapsed()
		d.inCB.Store(true)
		c.host.PeriodElapsed()
		d.inCB.Store(false)
	}

	d.gate.Lock()
	defer d.gate.Unlock()
	if d.stopped() {
		rt.pool.release(idx)
		return nil
	}

	n, err := rt.enc.EncodeInto(rt.pool.buffer(idx), rt.scratch, c.frames, c.width)
	if err != nil {
		rt.pool.release(idx)
		pkg.LogError(pkg.ComponentEncoder, "encode failed", "frames", c.frames, "width", c.width, "error", err)
		return nil
	}

	if err := rt.pool.submit(idx, n); err != nil {
		if rt.panicked.CompareAndSwap(false, true) {
			rt.metrics.Panic()
		}
		return err
	}
	return nil
}
