package pcm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/sinn7/hal"
	"github.com/ardnew/sinn7/pkg"
	"github.com/ardnew/sinn7/pkg/metrics"
)

// Config holds the streaming engine parameters.
type Config struct {
	// Endpoint is the bulk OUT endpoint address.
	Endpoint uint8

	// TickInterval is the dispatch period once running.
	TickInterval time.Duration

	// FirstTickDelay is the delay before the first dispatch tick.
	FirstTickDelay time.Duration

	// StartTimeout bounds the wait for the first acknowledged transfer.
	StartTimeout time.Duration

	// StopTimeout bounds each stage of transfer cancellation.
	StopTimeout time.Duration

	// PrimeFrames is the number of silent frames each slot carries at
	// start, and the size of idle ticks before the host configures.
	PrimeFrames int

	// SetRateRequest sends the set-rate vendor request on prepare.
	SetRateRequest bool

	// Justify selects the 16-bit sample placement on the wire.
	Justify Justify

	// Hardware is the accepted parameter space. Zero means DefaultHardware.
	Hardware Hardware

	// Metrics receives engine metrics. Nil disables them.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the device defaults.
func DefaultConfig() Config {
	return Config{
		Endpoint:       0x05,
		TickInterval:   2 * time.Millisecond,
		FirstTickDelay: 7 * time.Millisecond,
		StartTimeout:   time.Second,
		StopTimeout:    100 * time.Millisecond,
		PrimeFrames:    250,
		Justify:        JustifyLSB,
		Hardware:       DefaultHardware,
	}
}

// normalize fills unset fields with defaults.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.Endpoint == 0 {
		c.Endpoint = d.Endpoint
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.FirstTickDelay <= 0 {
		c.FirstTickDelay = d.FirstTickDelay
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = d.StartTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	if c.PrimeFrames <= 0 || c.PrimeFrames > MaxPeriodFrames {
		c.PrimeFrames = d.PrimeFrames
	}
	if len(c.Hardware.Formats) == 0 {
		c.Hardware = d.Hardware
	}
}

// Runtime is the playback streaming engine for one device.
//
// Lifecycle operations serialize on mu. The stream state is written only
// under mu and read lock-free by completion callbacks. The panic latch is
// sticky: once set, every operation except Open and Close fails with
// [pkg.ErrDeviceUnavailable].
type Runtime struct {
	cfg     Config
	dev     hal.DeviceHAL
	enc     Encoder
	metrics *metrics.Metrics

	mu       sync.Mutex
	state    atomic.Int32
	panicked atomic.Bool
	gone     atomic.Bool

	pool     *pool
	sub      Substream
	dispatch *dispatcher

	ackCh   chan struct{}
	faultCh chan error

	// scratch holds one period of host PCM. Only the dispatcher and
	// streamStart (under mu, before the dispatcher exists) touch it.
	scratch []byte
}

// NewRuntime creates a stopped engine streaming to dev.
func NewRuntime(dev hal.DeviceHAL, cfg Config) *Runtime {
	cfg.normalize()
	rt := &Runtime{
		cfg:     cfg,
		dev:     dev,
		enc:     Encoder{Justify: cfg.Justify},
		metrics: cfg.Metrics,
		ackCh:   make(chan struct{}, 1),
		faultCh: make(chan error, 1),
		scratch: make([]byte, MaxPeriodFrames*Channels*3),
	}
	rt.pool = newPool(dev, cfg.Endpoint, rt.onComplete, cfg.Metrics)
	return rt
}

// Config returns the effective configuration.
func (rt *Runtime) Config() Config { return rt.cfg }

// State returns the stream state.
func (rt *Runtime) State() StreamState {
	return StreamState(rt.state.Load())
}

// Panicked reports whether the panic latch is set.
func (rt *Runtime) Panicked() bool {
	return rt.panicked.Load()
}

// Substream returns the playback substream.
func (rt *Runtime) Substream() *Substream {
	return &rt.sub
}

// InFlight returns the number of transfers currently submitted.
func (rt *Runtime) InFlight() int {
	return rt.pool.inFlight()
}

// call with mu held
func (rt *Runtime) setState(s StreamState) {
	old := StreamState(rt.state.Swap(int32(s)))
	rt.metrics.SetState(int(s))
	if old != s {
		pkg.LogDebug(pkg.ComponentPCM, "stream state", "from", old, "to", s)
	}
}

// Start primes the device and starts the dispatch loop. It is a no-op if
// the stream is already running.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.gone.Load() || rt.panicked.Load() {
		return pkg.ErrDeviceUnavailable
	}
	return rt.streamStart(ctx)
}

// Stop stops the dispatch loop and cancels every transfer. It is a no-op
// on a disabled stream. A non-nil error reports transfers that had to be
// reclaimed; the stream is disabled either way.
func (rt *Runtime) Stop() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.streamStop()
}

// call with mu held
func (rt *Runtime) streamStart(ctx context.Context) error {
	if rt.State() != StreamDisabled {
		return nil
	}

	rt.drainSignals()
	rt.setState(StreamStarting)
	began := time.Now()

	clear(rt.scratch)
	for i := 0; i < NumSlots; i++ {
		idx, ok := rt.pool.acquireIdle()
		if !ok {
			break
		}
		n, err := rt.enc.EncodeInto(rt.pool.buffer(idx), rt.scratch, rt.cfg.PrimeFrames, 2)
		if err == nil {
			err = rt.pool.submit(idx, n)
		} else {
			rt.pool.release(idx)
		}
		if err != nil {
			pkg.LogError(pkg.ComponentPCM, "unable to prime transfers",
				"endpoint", rt.cfg.Endpoint, "error", err)
			if errors.Is(err, pkg.ErrSubmission) && rt.panicked.CompareAndSwap(false, true) {
				rt.metrics.Panic()
			}
			rt.streamStop()
			return err
		}
	}

	timer := time.NewTimer(rt.cfg.StartTimeout)
	defer timer.Stop()

	select {
	case <-rt.ackCh:
	case err := <-rt.faultCh:
		rt.streamStop()
		return err
	case <-timer.C:
		rt.streamStop()
		return fmt.Errorf("i/o error: %w: no transfer acknowledged within %v",
			pkg.ErrTimeout, rt.cfg.StartTimeout)
	case <-ctx.Done():
		rt.streamStop()
		return ctx.Err()
	}

	rt.setState(StreamRunning)
	rt.metrics.StreamStarted(time.Since(began))
	pkg.LogInfo(pkg.ComponentPCM, "stream running", "latency", time.Since(began))

	rt.dispatch = newDispatcher(rt)
	go rt.dispatch.loop()
	return nil
}

// call with mu held
func (rt *Runtime) streamStop() error {
	if d := rt.dispatch; d != nil {
		rt.dispatch = nil
		d.stop()
	}

	if rt.State() == StreamDisabled {
		return nil
	}

	rt.setState(StreamStopping)
	err := rt.pool.cancelAll(rt.cfg.StopTimeout)
	rt.setState(StreamDisabled)
	return err
}

func (rt *Runtime) drainSignals() {
	for {
		select {
		case <-rt.ackCh:
		case <-rt.faultCh:
		default:
			return
		}
	}
}

// fault latches the panic flag and wakes whoever is waiting on the stream.
func (rt *Runtime) fault(err error) {
	if rt.panicked.CompareAndSwap(false, true) {
		rt.metrics.Panic()
		pkg.LogError(pkg.ComponentPCM, "stream failed", "error", err)
	}
	select {
	case rt.faultCh <- err:
	default:
	}
}

// onComplete runs on a HAL goroutine for every finished transfer.
func (rt *Runtime) onComplete(idx int, status pkg.TransferStatus) {
	state := rt.State()
	if rt.panicked.Load() || state == StreamStopping {
		return
	}

	switch {
	case status == pkg.TransferStatusSuccess:
	case status.IsFatal() || status == pkg.TransferStatusCancelled:
		if state == StreamDisabled {
			return
		}
		rt.fault(fmt.Errorf("%w: slot %d completed with %s", pkg.ErrDeviceGone, idx, status))
		return
	default:
		pkg.LogWarn(pkg.ComponentPCM, "transfer error", "slot", idx, "status", status)
	}

	if state == StreamStarting {
		select {
		case rt.ackCh <- struct{}{}:
		default:
		}
	}
}

// handleFault tears the stream down after its dispatcher exits on error.
func (rt *Runtime) handleFault(d *dispatcher, err error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.dispatch != d {
		return
	}
	pkg.LogError(pkg.ComponentPCM, "stopping stream", "error", err)
	rt.streamStop()
}

// Open attaches a host stream. A fresh stream clears the panic latch
// unless the device is gone.
func (rt *Runtime) Open(hs HostStream) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.gone.Load() {
		return pkg.ErrDeviceUnavailable
	}
	if rt.sub.attached() {
		return pkg.ErrBusy
	}
	if hs == nil {
		return pkg.ErrInvalidParameter
	}

	rt.panicked.Store(false)
	rt.sub.attach(hs)
	pkg.LogDebug(pkg.ComponentPCM, "substream opened")
	return nil
}

// Close stops the stream and detaches the host stream.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	err := rt.streamStop()
	rt.sub.detach()
	pkg.LogDebug(pkg.ComponentPCM, "substream closed")
	return err
}

// HWParams validates and applies hardware parameters.
func (rt *Runtime) HWParams(p HWParams) error {
	if rt.panicked.Load() {
		return pkg.ErrDeviceUnavailable
	}
	if err := rt.cfg.Hardware.Validate(p); err != nil {
		return err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !rt.sub.attached() {
		return pkg.ErrInvalidState
	}
	rt.sub.setParams(p)
	pkg.LogDebug(pkg.ComponentPCM, "hw params", "params", p)
	return nil
}

// HWFree forgets the hardware parameters.
func (rt *Runtime) HWFree() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.sub.clearParams()
	return nil
}

// Prepare resets the read position and starts the stream if it is
// disabled.
func (rt *Runtime) Prepare(ctx context.Context) error {
	if rt.panicked.Load() {
		return pkg.ErrDeviceUnavailable
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	s := &rt.sub
	s.mu.Lock()
	if s.host == nil || !s.configured {
		s.mu.Unlock()
		return pkg.ErrInvalidState
	}
	p := s.params
	if have := s.host.DMA().Len(); have < p.BufferBytes() {
		s.mu.Unlock()
		return fmt.Errorf("%w: dma buffer %d bytes, need %d", pkg.ErrBufferTooSmall, have, p.BufferBytes())
	}
	s.active = false
	s.cursor.reset()
	s.mu.Unlock()

	if rt.State() != StreamDisabled {
		return nil
	}
	if rt.cfg.SetRateRequest {
		if err := setRate(ctx, rt.dev, p.Rate); err != nil {
			return err
		}
	}
	return rt.streamStart(ctx)
}

// Trigger starts or stops audio on the substream. The stream itself keeps
// running and sends silence while inactive.
func (rt *Runtime) Trigger(cmd TriggerCommand) error {
	if rt.panicked.Load() {
		return pkg.ErrDeviceUnavailable
	}

	switch cmd {
	case TriggerStart, TriggerPauseRelease:
		rt.sub.SetActive(true)
	case TriggerStop, TriggerPausePush:
		rt.sub.SetActive(false)
	default:
		return fmt.Errorf("%w: trigger %s", pkg.ErrInvalidParameter, cmd)
	}
	pkg.LogDebug(pkg.ComponentPCM, "trigger", "cmd", cmd)
	return nil
}

// Pointer returns the read position in frames. A panicked stream reports
// [pkg.ErrDeviceUnavailable], which hosts treat as an xrun.
func (rt *Runtime) Pointer() (int, error) {
	if rt.panicked.Load() {
		return 0, pkg.ErrDeviceUnavailable
	}
	return rt.sub.CurrentPosition(), nil
}

// Abort handles device removal: the device is marked gone and the stream
// is stopped.
func (rt *Runtime) Abort() {
	rt.gone.Store(true)
	// Wakes a start waiting for its first acknowledgment.
	rt.fault(fmt.Errorf("%w: device removed", pkg.ErrDeviceGone))
	pkg.LogInfo(pkg.ComponentPCM, "shutting down")

	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.streamStop()
}
