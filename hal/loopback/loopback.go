package loopback

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ardnew/sinn7/hal"
	"github.com/ardnew/sinn7/pcm"
	"github.com/ardnew/sinn7/pkg"
)

// Device identity.
const (
	VendorID  uint16 = 0x200c
	ProductID uint16 = 0x1006
)

// Vendor requests answered by the emulator.
const (
	requestFirmware uint8 = 0x56
	requestMode     uint8 = 0x49
	requestSetCur   uint8 = 0x01
	requestGetCur   uint8 = 0x81
)

// DefaultFirmware is the firmware reply of a supported unit.
var DefaultFirmware = []byte{0x31, 0x01, 0x08}

// Options configures a loopback device.
type Options struct {
	// Wire receives every bulk OUT byte as sent.
	Wire io.Writer

	// PCM receives the decoded S16_LE samples of every bulk transfer,
	// including block padding frames.
	PCM io.Writer

	// Realtime paces transfers at the device sample rate.
	Realtime bool

	// Firmware is the firmware query reply prefix. Nil uses DefaultFirmware.
	Firmware []byte

	// Mode is the initial reply to the mode query. Zero uses 0x32.
	Mode byte

	// Info overrides the reported device info.
	Info *hal.DeviceInfo
}

// Stats counts bulk traffic seen by the device.
type Stats struct {
	Transfers int
	Bytes     int
	Blocks    int
	BadBlocks int
}

// Device emulates a Status 24|96 behind the [hal.DeviceHAL] interface.
type Device struct {
	opts  Options
	info  hal.DeviceInfo
	queue *hal.Queue

	mu        sync.Mutex
	controls  []hal.SetupPacket
	alt       map[uint8]uint8
	rates     map[uint16][]byte
	halted    map[uint16]bool
	mode      byte
	stats     Stats
	submitErr error
	status    *pkg.TransferStatus
	stalled   bool
	unplugged bool

	detached   chan struct{}
	detachOnce sync.Once
}

var _ hal.DeviceHAL = (*Device)(nil)

// New creates a running loopback device.
func New(opts Options) *Device {
	if opts.Firmware == nil {
		opts.Firmware = DefaultFirmware
	}
	if opts.Mode == 0 {
		opts.Mode = 0x32
	}

	d := &Device{
		opts:     opts,
		alt:      make(map[uint8]uint8),
		rates:    make(map[uint16][]byte),
		halted:   map[uint16]bool{0x86: true, 0x05: true},
		mode:     opts.Mode,
		detached: make(chan struct{}),
	}
	d.info = hal.DeviceInfo{
		VendorID:  VendorID,
		ProductID: ProductID,
		Bus:       1,
		Address:   1,
		Speed:     hal.SpeedHigh,
	}
	if opts.Info != nil {
		d.info = *opts.Info
	}

	d.queue = hal.NewQueue(hal.DefaultQueueDepth, d.write, nil)
	d.queue.Start(context.Background())
	pkg.LogDebug(pkg.ComponentHAL, "loopback device created", "path", d.info.Path())
	return d
}

// Info returns the emulated device identity.
func (d *Device) Info() hal.DeviceInfo { return d.info }

// Detached is closed by Unplug.
func (d *Device) Detached() <-chan struct{} { return d.detached }

// Close stops the device. Pending transfers complete with Shutdown.
func (d *Device) Close() error {
	return d.queue.Stop()
}

// ControlTransfer answers the vendor handshake.
func (d *Device) ControlTransfer(ctx context.Context, setup *hal.SetupPacket, data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.controls = append(d.controls, *setup)
	if d.unplugged {
		return 0, pkg.ErrNoDevice
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	typ := setup.RequestType &^ hal.RequestDirIn
	switch {
	case setup.IsIn() && typ == hal.RequestTypeVendor && setup.Request == requestFirmware:
		n := min(len(data), int(setup.Length))
		clear(data[:n])
		return copy(data[:n], d.opts.Firmware), nil

	case setup.IsIn() && typ == hal.RequestTypeVendor && setup.Request == requestMode:
		if len(data) < 1 {
			return 0, pkg.ErrBufferTooSmall
		}
		data[0] = d.mode
		return 1, nil

	case !setup.IsIn() && typ == hal.RequestTypeVendor && setup.Request == requestMode:
		d.mode = byte(setup.Value)
		return 0, nil

	case !setup.IsIn() && typ == hal.RequestTypeVendor|hal.RequestRecipientOther && setup.Request == pcm.RequestSetRate:
		return 0, nil

	case setup.IsIn() && typ == hal.RequestTypeClass|hal.RequestRecipientEndpoint && setup.Request == requestGetCur:
		rate, ok := d.rates[setup.Index]
		if !ok {
			rate = []byte{0x44, 0xAC, 0x00}
		}
		return copy(data, rate), nil

	case !setup.IsIn() && typ == hal.RequestTypeClass|hal.RequestRecipientEndpoint && setup.Request == requestSetCur:
		d.rates[setup.Index] = append([]byte(nil), data...)
		return len(data), nil

	case !setup.IsIn() && typ == hal.RequestRecipientEndpoint && setup.Request == hal.RequestClearFeature &&
		setup.Value == hal.FeatureEndpointHalt:
		d.halted[setup.Index] = false
		return 0, nil
	}

	pkg.LogDebug(pkg.ComponentHAL, "loopback stalls unknown request", "setup", setup)
	return 0, pkg.ErrStall
}

// SetInterface records the alternate setting.
func (d *Device) SetInterface(iface, alt uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.unplugged {
		return pkg.ErrNoDevice
	}
	if iface > 1 {
		return pkg.ErrInvalidParameter
	}
	d.alt[iface] = alt
	return nil
}

// SubmitBulk queues a bulk OUT transfer.
func (d *Device) SubmitBulk(ep uint8, data []byte, done hal.CompletionFunc) (hal.TransferID, error) {
	d.mu.Lock()
	unplugged, err := d.unplugged, d.submitErr
	d.mu.Unlock()

	if unplugged {
		return 0, pkg.ErrNoDevice
	}
	if err != nil {
		return 0, err
	}
	return d.queue.Submit(ep, data, func(status pkg.TransferStatus, n int) {
		d.mu.Lock()
		override := d.status
		d.mu.Unlock()
		if override != nil && status == pkg.TransferStatusSuccess {
			status = *override
		}
		done(status, n)
	})
}

// Cancel cancels a queued transfer.
func (d *Device) Cancel(id hal.TransferID) error {
	return d.queue.Cancel(id)
}

func (d *Device) write(ctx context.Context, ep uint8, data []byte) (int, error) {
	d.mu.Lock()
	unplugged, stalled := d.unplugged, d.stalled
	d.mu.Unlock()

	switch {
	case unplugged:
		return 0, pkg.ErrNoDevice
	case ep != 0x05:
		return 0, pkg.ErrInvalidEndpoint
	case stalled:
		<-ctx.Done()
		return 0, ctx.Err()
	}

	d.account(data)
	if d.opts.Wire != nil {
		if _, err := d.opts.Wire.Write(data); err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "wire capture failed", "error", err)
		}
	}
	if d.opts.PCM != nil {
		if samples, err := pcm.Decode(data, 2, pcm.JustifyLSB); err == nil {
			d.opts.PCM.Write(samples)
		}
	}

	if d.opts.Realtime {
		frames := len(data) / pcm.BlockSize * pcm.BlockFrames
		timer := time.NewTimer(time.Duration(frames) * time.Second / pcm.Rate)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return len(data), nil
}

// account validates block framing and updates the counters.
func (d *Device) account(data []byte) {
	blocks, bad := 0, 0
	for off := 0; off+pcm.BlockSize <= len(data); off += pcm.BlockSize {
		blocks++
		t := off + pcm.BlockFrames*pcm.FrameWireBytes
		if data[t] != 0xFD || data[t+1] != 0xFF {
			bad++
		}
	}
	if len(data)%pcm.BlockSize != 0 {
		bad++
	}

	d.mu.Lock()
	d.stats.Transfers++
	d.stats.Bytes += len(data)
	d.stats.Blocks += blocks
	d.stats.BadBlocks += bad
	d.mu.Unlock()
}

// Stats returns the bulk traffic counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Controls returns the control requests received so far.
func (d *Device) Controls() []hal.SetupPacket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]hal.SetupPacket(nil), d.controls...)
}

// AltSetting returns the alternate setting selected on iface.
func (d *Device) AltSetting(iface uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alt[iface]
}

// Halted reports whether the endpoint halt feature is still set.
func (d *Device) Halted(ep uint16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halted[ep]
}

// Mode returns the last mode value written by the host.
func (d *Device) Mode() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// SetSubmitError makes SubmitBulk fail with err. Nil restores normal
// operation.
func (d *Device) SetSubmitError(err error) {
	d.mu.Lock()
	d.submitErr = err
	d.mu.Unlock()
}

// SetCompletionStatus reports status instead of success for every
// completed transfer. Nil restores normal operation.
func (d *Device) SetCompletionStatus(status *pkg.TransferStatus) {
	d.mu.Lock()
	d.status = status
	d.mu.Unlock()
}

// SetStalled makes bulk transfers hang until cancelled.
func (d *Device) SetStalled(stalled bool) {
	d.mu.Lock()
	d.stalled = stalled
	d.mu.Unlock()
}

// Unplug simulates device removal: Detached is closed, pending transfers
// complete with Shutdown and later calls fail with [pkg.ErrNoDevice].
func (d *Device) Unplug() {
	d.mu.Lock()
	d.unplugged = true
	d.mu.Unlock()

	d.detachOnce.Do(func() { close(d.detached) })
	d.queue.Stop()
	pkg.LogInfo(pkg.ComponentHAL, "loopback device unplugged", "path", d.info.Path())
}
