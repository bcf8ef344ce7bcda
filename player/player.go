package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ardnew/sinn7/pcm"
	"github.com/ardnew/sinn7/pkg"
)

// Defaults.
const (
	DefaultPeriodFrames = 250
	DefaultPeriods      = 8

	// pollInterval bounds how long the player sleeps without a period
	// notification before rechecking the stream.
	pollInterval = 20 * time.Millisecond

	// stallTimeout fails playback when the position stops moving.
	stallTimeout = 2 * time.Second
)

// Config controls buffering.
type Config struct {
	PeriodFrames int
	Periods      int
}

func (c *Config) normalize() {
	if c.PeriodFrames <= 0 {
		c.PeriodFrames = DefaultPeriodFrames
	}
	if c.Periods <= 0 {
		c.Periods = DefaultPeriods
	}
}

// Stats summarizes one playback.
type Stats struct {
	Frames    int64         // audio frames read from the source
	Periods   int64         // periods consumed by the device
	Underruns int           // times the device overtook the writer
	Duration  time.Duration // audio duration
}

// Player feeds a reader through a runtime the way a host audio framework
// would: open, configure, prefill, prepare, start, refill on every period,
// drain and stop.
type Player struct {
	rt  *pcm.Runtime
	cfg Config
}

// New creates a player for rt.
func New(rt *pcm.Runtime, cfg Config) *Player {
	cfg.normalize()
	return &Player{rt: rt, cfg: cfg}
}

// hostStream is the player's side of the substream.
type hostStream struct {
	dma     *pcm.DMABuffer
	elapsed atomic.Int64
	notify  chan struct{}
}

func (s *hostStream) DMA() *pcm.DMABuffer { return s.dma }

func (s *hostStream) PeriodElapsed() {
	s.elapsed.Add(1)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Play streams S16_LE stereo PCM from r until it is exhausted and the
// device has received it.
func (p *Player) Play(ctx context.Context, r io.Reader) (Stats, error) {
	params := pcm.HWParams{
		Format:       pcm.FormatS16LE,
		Channels:     pcm.Channels,
		Rate:         pcm.Rate,
		PeriodFrames: p.cfg.PeriodFrames,
		Periods:      p.cfg.Periods,
	}
	hs := &hostStream{
		dma:    pcm.NewDMABuffer(params.BufferBytes()),
		notify: make(chan struct{}, 1),
	}

	if err := p.rt.Open(hs); err != nil {
		return Stats{}, fmt.Errorf("open: %w", err)
	}
	defer p.rt.Close()

	if err := p.rt.HWParams(params); err != nil {
		return Stats{}, fmt.Errorf("hw params: %w", err)
	}
	defer p.rt.HWFree()

	w := &writer{
		src:     r,
		dma:     hs.dma,
		period:  make([]byte, params.PeriodBytes()),
		periods: int64(params.Periods),
	}

	// Prefill the whole buffer before starting.
	for w.appl < w.periods && !w.eof {
		if err := w.fill(); err != nil {
			return w.stats(0), err
		}
	}

	if err := p.rt.Prepare(ctx); err != nil {
		return w.stats(0), fmt.Errorf("prepare: %w", err)
	}
	if err := p.rt.Trigger(pcm.TriggerStart); err != nil {
		return w.stats(0), fmt.Errorf("trigger: %w", err)
	}
	pkg.LogDebug(pkg.ComponentPlayer, "playback started", "params", params)

	m := p.rt.Config().Metrics
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	lastHW, lastMove := int64(0), time.Now()

	for {
		hw := hs.elapsed.Load()

		if hw > w.appl {
			w.underruns++
			m.Underrun()
			pkg.LogWarn(pkg.ComponentPlayer, "underrun", "hw", hw, "appl", w.appl)
			w.appl = hw
		}
		for w.appl-hw < w.periods {
			if err := w.fill(); err != nil {
				p.rt.Trigger(pcm.TriggerStop)
				return w.stats(hw), err
			}
		}
		// Completions are in order, so once NumSlots more periods have
		// been taken the slot carrying the last audio has been returned.
		if w.eof && hw >= w.last+pcm.NumSlots {
			break
		}

		if hw != lastHW {
			lastHW, lastMove = hw, time.Now()
		} else if time.Since(lastMove) > stallTimeout {
			return w.stats(hw), fmt.Errorf("%w: position stuck at period %d", pkg.ErrTimeout, hw)
		}

		timer.Reset(pollInterval)
		select {
		case <-ctx.Done():
			p.rt.Trigger(pcm.TriggerStop)
			return w.stats(hw), ctx.Err()
		case <-hs.notify:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}

		if p.rt.Panicked() {
			return w.stats(hs.elapsed.Load()), fmt.Errorf("playback: %w", pkg.ErrDeviceUnavailable)
		}
	}

	if err := p.rt.Trigger(pcm.TriggerStop); err != nil {
		return w.stats(hs.elapsed.Load()), fmt.Errorf("trigger: %w", err)
	}
	st := w.stats(hs.elapsed.Load())
	pkg.LogInfo(pkg.ComponentPlayer, "playback finished",
		"frames", st.Frames, "duration", st.Duration, "underruns", st.Underruns)
	return st, nil
}

// writer moves source audio into the DMA buffer one period at a time.
type writer struct {
	src     io.Reader
	dma     *pcm.DMABuffer
	period  []byte
	periods int64

	appl      int64 // periods written
	last      int64 // periods holding audio, set at end of input
	eof       bool
	frames    int64
	underruns int
}

// fill writes the next period: source audio while it lasts, then silence.
func (w *writer) fill() error {
	n := 0
	if !w.eof {
		var err error
		n, err = io.ReadFull(w.src, w.period)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			w.eof = true
			w.last = w.appl
			if n > 0 {
				w.last++
			}
		default:
			return fmt.Errorf("read: %w", err)
		}
	}
	clear(w.period[n:])
	w.frames += int64(n / 4)

	off := int(w.appl%w.periods) * len(w.period)
	w.dma.WriteAt(w.period, off)
	w.appl++
	return nil
}

func (w *writer) stats(hw int64) Stats {
	return Stats{
		Frames:    w.frames,
		Periods:   hw,
		Underruns: w.underruns,
		Duration:  time.Duration(w.frames) * time.Second / pcm.Rate,
	}
}
