package player

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/sinn7/hal/loopback"
	"github.com/ardnew/sinn7/pcm"
	"github.com/ardnew/sinn7/pkg"
)

// syncBuffer collects PCM written by the loopback worker.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// endless yields a non-silent pattern forever and runs hook on each read.
type endless struct {
	n    int
	hook func(reads int)
}

func (e *endless) Read(p []byte) (int, error) {
	e.n++
	if e.hook != nil {
		e.hook(e.n)
	}
	for i := range p {
		p[i] = byte(i%251) | 1
	}
	return len(p), nil
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func testRuntime(dev *loopback.Device) *pcm.Runtime {
	cfg := pcm.DefaultConfig()
	cfg.FirstTickDelay = 20 * time.Millisecond
	cfg.StartTimeout = 500 * time.Millisecond
	cfg.StopTimeout = 50 * time.Millisecond
	return pcm.NewRuntime(dev, cfg)
}

// ramp returns frames of distinct non-zero stereo samples.
func ramp(frames int) []byte {
	b := make([]byte, frames*4)
	for i := 0; i < frames*2; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(i*7+1))
	}
	return b
}

// =============================================================================
// Playback Tests
// =============================================================================

func TestPlayer_RoundTrip(t *testing.T) {
	capture := &syncBuffer{}
	dev := loopback.New(loopback.Options{PCM: capture})
	defer dev.Close()
	rt := testRuntime(dev)

	frames := 10*DefaultPeriodFrames + DefaultPeriodFrames/2
	input := ramp(frames)

	p := New(rt, Config{Periods: 16})
	st, err := p.Play(context.Background(), bytes.NewReader(input))
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	if st.Frames != int64(frames) {
		t.Errorf("Frames = %d, want %d", st.Frames, frames)
	}
	if st.Periods < 11 {
		t.Errorf("Periods = %d, want at least 11", st.Periods)
	}
	if st.Underruns != 0 {
		t.Errorf("Underruns = %d, want 0", st.Underruns)
	}
	if want := time.Duration(frames) * time.Second / pcm.Rate; st.Duration != want {
		t.Errorf("Duration = %v, want %v", st.Duration, want)
	}
	if rt.State() != pcm.StreamDisabled {
		t.Errorf("State() = %v, want disabled after play", rt.State())
	}

	dev.Close()
	if !bytes.Contains(capture.Bytes(), input) {
		t.Error("device output does not contain the played audio")
	}
	if s := dev.Stats(); s.BadBlocks != 0 {
		t.Errorf("BadBlocks = %d, want 0", s.BadBlocks)
	}
}

func TestPlayer_EmptyInput(t *testing.T) {
	dev := loopback.New(loopback.Options{})
	defer dev.Close()

	st, err := New(testRuntime(dev), Config{}).Play(context.Background(), bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if st.Frames != 0 {
		t.Errorf("Frames = %d, want 0", st.Frames)
	}
}

func TestPlayer_ReadError(t *testing.T) {
	dev := loopback.New(loopback.Options{})
	defer dev.Close()
	rt := testRuntime(dev)

	boom := errors.New("boom")
	_, err := New(rt, Config{}).Play(context.Background(), failingReader{boom})
	if !errors.Is(err, boom) {
		t.Errorf("Play() error = %v, want %v", err, boom)
	}
	if rt.Substream().Active() {
		t.Error("substream left active")
	}
}

func TestPlayer_DeviceFault(t *testing.T) {
	dev := loopback.New(loopback.Options{})
	defer dev.Close()
	rt := testRuntime(dev)

	src := &endless{hook: func(reads int) {
		if reads == 24 {
			dev.SetSubmitError(pkg.ErrNoDevice)
		}
	}}
	_, err := New(rt, Config{}).Play(context.Background(), src)
	if !errors.Is(err, pkg.ErrDeviceUnavailable) {
		t.Errorf("Play() error = %v, want ErrDeviceUnavailable", err)
	}
	if !rt.Panicked() {
		t.Error("Panicked() = false after submit failure")
	}
}

func TestPlayer_Cancel(t *testing.T) {
	dev := loopback.New(loopback.Options{})
	defer dev.Close()
	rt := testRuntime(dev)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := New(rt, Config{}).Play(ctx, &endless{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Play() error = %v, want deadline exceeded", err)
	}
	if rt.State() != pcm.StreamDisabled {
		t.Errorf("State() = %v, want disabled", rt.State())
	}

	// The runtime is reusable after a cancelled playback.
	if _, err := New(rt, Config{}).Play(context.Background(), io.LimitReader(&endless{}, 4000)); err != nil {
		t.Errorf("second Play() error = %v", err)
	}
}
