package pcm

import (
	"fmt"

	"github.com/ardnew/sinn7/pkg"
)

// Device limits.
const (
	// NumSlots is the number of transfer buffers kept in flight.
	NumSlots = 8

	// MaxPeriodFrames is the largest period one transfer can carry.
	MaxPeriodFrames = 390

	// MinPeriodFrames is the smallest period the device accepts.
	MinPeriodFrames = 250

	// MaxPacketSize is the size of one transfer buffer: the encoding of
	// [MaxPeriodFrames] frames.
	MaxPacketSize = 19968

	// MaxBufferBytes bounds the host DMA buffer.
	MaxBufferBytes = 2 * NumSlots * MaxPacketSize

	// Rate is the only sample rate the device runs at.
	Rate = 44100

	// Channels is the only channel count the device accepts.
	Channels = 2
)

// Format is a host sample format.
type Format uint8

// Supported sample formats.
const (
	FormatS16LE  Format = iota // signed 16-bit little-endian
	FormatS24LE3               // signed 24-bit little-endian, packed in 3 bytes
)

// Width returns the sample width in bytes.
func (f Format) Width() int {
	switch f {
	case FormatS16LE:
		return 2
	case FormatS24LE3:
		return 3
	default:
		return 0
	}
}

// String returns the ALSA-style format name.
func (f Format) String() string {
	switch f {
	case FormatS16LE:
		return "S16_LE"
	case FormatS24LE3:
		return "S24_3LE"
	default:
		return "unknown"
	}
}

// HWParams are the hardware parameters negotiated by the host.
type HWParams struct {
	Format       Format
	Channels     int
	Rate         int
	PeriodFrames int
	Periods      int
}

// FrameBytes returns the size of one interleaved frame.
func (p HWParams) FrameBytes() int { return p.Channels * p.Format.Width() }

// PeriodBytes returns the size of one period.
func (p HWParams) PeriodBytes() int { return p.PeriodFrames * p.FrameBytes() }

// BufferFrames returns the DMA buffer size in frames.
func (p HWParams) BufferFrames() int { return p.PeriodFrames * p.Periods }

// BufferBytes returns the DMA buffer size in bytes.
func (p HWParams) BufferBytes() int { return p.BufferFrames() * p.FrameBytes() }

// String formats the parameters for logging.
func (p HWParams) String() string {
	return fmt.Sprintf("%s %dch %dHz period=%d periods=%d",
		p.Format, p.Channels, p.Rate, p.PeriodFrames, p.Periods)
}

// Hardware describes the parameter space the device accepts.
type Hardware struct {
	Formats         []Format
	Rate            int
	Channels        int
	PeriodFramesMin int
	PeriodFramesMax int
	PeriodsMin      int
	PeriodsMax      int
	BufferBytesMax  int
}

// DefaultHardware is the Status 24|96 playback capability.
var DefaultHardware = Hardware{
	Formats:         []Format{FormatS16LE},
	Rate:            Rate,
	Channels:        Channels,
	PeriodFramesMin: MinPeriodFrames,
	PeriodFramesMax: MaxPeriodFrames,
	PeriodsMin:      1,
	PeriodsMax:      200,
	BufferBytesMax:  MaxBufferBytes,
}

// Validate reports whether p lies inside the hardware limits.
func (h Hardware) Validate(p HWParams) error {
	supported := false
	for _, f := range h.Formats {
		if f == p.Format {
			supported = true
			break
		}
	}
	switch {
	case !supported:
		return fmt.Errorf("%w: format %s", pkg.ErrInvalidParameter, p.Format)
	case p.Rate != h.Rate:
		return fmt.Errorf("%w: rate %d", pkg.ErrInvalidParameter, p.Rate)
	case p.Channels != h.Channels:
		return fmt.Errorf("%w: %d channels", pkg.ErrInvalidParameter, p.Channels)
	case p.PeriodFrames < h.PeriodFramesMin || p.PeriodFrames > h.PeriodFramesMax:
		return fmt.Errorf("%w: period of %d frames", pkg.ErrInvalidParameter, p.PeriodFrames)
	case p.Periods < h.PeriodsMin || p.Periods > h.PeriodsMax:
		return fmt.Errorf("%w: %d periods", pkg.ErrInvalidParameter, p.Periods)
	case p.BufferBytes() > h.BufferBytesMax:
		return fmt.Errorf("%w: buffer of %d bytes", pkg.ErrInvalidParameter, p.BufferBytes())
	}
	return nil
}
