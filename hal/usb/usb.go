//go:build cgo && libusb

package usb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/ardnew/sinn7/hal"
	"github.com/ardnew/sinn7/pkg"
)

// Device is a libusb-backed [hal.DeviceHAL].
type Device struct {
	opts Options
	info hal.DeviceInfo

	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint

	queue *hal.Queue

	controlMu sync.Mutex

	mu     sync.Mutex
	closed bool

	detached   chan struct{}
	detachOnce sync.Once
	stop       chan struct{}
	polling    sync.WaitGroup
}

var _ hal.DeviceHAL = (*Device)(nil)

// Open opens the first device matching opts and claims its streaming
// interface.
func Open(opts Options) (hal.DeviceHAL, error) {
	opts.normalize()

	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(opts.VendorID), gousb.ID(opts.ProductID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("open %04x:%04x: %w", opts.VendorID, opts.ProductID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: %04x:%04x not found", pkg.ErrNoDevice, opts.VendorID, opts.ProductID)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "auto-detach unavailable", "error", err)
	}

	d := &Device{
		opts:     opts,
		ctx:      ctx,
		dev:      dev,
		detached: make(chan struct{}),
		stop:     make(chan struct{}),
		info: hal.DeviceInfo{
			VendorID:  uint16(dev.Desc.Vendor),
			ProductID: uint16(dev.Desc.Product),
			Bus:       dev.Desc.Bus,
			Address:   dev.Desc.Address,
			Speed:     speed(dev.Desc.Speed),
		},
	}

	if d.cfg, err = dev.Config(1); err != nil {
		d.release()
		return nil, fmt.Errorf("set configuration: %w", err)
	}
	if d.intf, err = d.cfg.Interface(opts.Interface, opts.AltSetting); err != nil {
		d.release()
		return nil, fmt.Errorf("claim interface %d: %w", opts.Interface, err)
	}
	if d.out, err = d.intf.OutEndpoint(int(opts.Endpoint & 0x0F)); err != nil {
		d.release()
		return nil, fmt.Errorf("%w: 0x%02x: %v", pkg.ErrInvalidEndpoint, opts.Endpoint, err)
	}

	d.queue = hal.NewQueue(hal.DefaultQueueDepth, d.write, classify)
	d.queue.Start(context.Background())

	d.polling.Add(1)
	go d.poll()

	pkg.LogInfo(pkg.ComponentHAL, "usb device opened", "path", d.info.Path(), "speed", d.info.Speed)
	return d, nil
}

// Info returns the device identity.
func (d *Device) Info() hal.DeviceInfo { return d.info }

// Detached is closed once the device is found to be gone.
func (d *Device) Detached() <-chan struct{} { return d.detached }

func (d *Device) markDetached() {
	d.detachOnce.Do(func() {
		pkg.LogInfo(pkg.ComponentHAL, "usb device detached", "path", d.info.Path())
		close(d.detached)
	})
}

// ControlTransfer performs a control transfer. The context deadline, if
// any, bounds the transfer.
func (d *Device) ControlTransfer(ctx context.Context, setup *hal.SetupPacket, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if setup.IsIn() && len(data) > int(setup.Length) {
		data = data[:setup.Length]
	}

	d.controlMu.Lock()
	defer d.controlMu.Unlock()

	d.dev.ControlTimeout = 0
	if deadline, ok := ctx.Deadline(); ok {
		d.dev.ControlTimeout = max(time.Until(deadline), time.Millisecond)
	}
	n, err := d.dev.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, data)
	if err != nil {
		return n, d.transferError(err)
	}
	return n, nil
}

// SetInterface selects an alternate setting with a standard request.
func (d *Device) SetInterface(iface, alt uint8) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	setup := &hal.SetupPacket{
		RequestType: hal.RequestDirOut | hal.RequestTypeStandard | hal.RequestRecipientInterface,
		Request:     hal.RequestSetInterface,
		Value:       uint16(alt),
		Index:       uint16(iface),
	}
	_, err := d.ControlTransfer(ctx, setup, nil)
	return err
}

// SubmitBulk queues a bulk OUT transfer.
func (d *Device) SubmitBulk(ep uint8, data []byte, done hal.CompletionFunc) (hal.TransferID, error) {
	select {
	case <-d.detached:
		return 0, pkg.ErrNoDevice
	default:
	}
	if ep != d.opts.Endpoint {
		return 0, fmt.Errorf("%w: 0x%02x", pkg.ErrInvalidEndpoint, ep)
	}
	return d.queue.Submit(ep, data, done)
}

// Cancel cancels a queued or running transfer.
func (d *Device) Cancel(id hal.TransferID) error {
	return d.queue.Cancel(id)
}

func (d *Device) write(ctx context.Context, _ uint8, data []byte) (int, error) {
	n, err := d.out.WriteContext(ctx, data)
	if err != nil && classify(err) == pkg.TransferStatusNoDevice {
		d.markDetached()
	}
	return n, err
}

// poll probes the device until it disappears or the device is closed.
func (d *Device) poll() {
	defer d.polling.Done()
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-d.detached:
			return
		case <-ticker.C:
			d.controlMu.Lock()
			_, err := d.dev.ActiveConfigNum()
			d.controlMu.Unlock()
			if err != nil && classify(err) == pkg.TransferStatusNoDevice {
				d.markDetached()
				return
			}
		}
	}
}

// Close stops the queue and releases the device.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stop)
	d.polling.Wait()
	err := d.queue.Stop()
	d.release()
	return err
}

func (d *Device) release() {
	if d.intf != nil {
		d.intf.Close()
	}
	if d.cfg != nil {
		d.cfg.Close()
	}
	if d.dev != nil {
		d.dev.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
}

func (d *Device) transferError(err error) error {
	switch classify(err) {
	case pkg.TransferStatusNoDevice:
		d.markDetached()
		return fmt.Errorf("%w: %v", pkg.ErrNoDevice, err)
	case pkg.TransferStatusStall:
		return fmt.Errorf("%w: %v", pkg.ErrStall, err)
	case pkg.TransferStatusTimeout:
		return fmt.Errorf("%w: %v", pkg.ErrTimeout, err)
	case pkg.TransferStatusCancelled:
		return fmt.Errorf("%w: %v", pkg.ErrCancelled, err)
	default:
		return fmt.Errorf("%w: %v", pkg.ErrProtocol, err)
	}
}

// classify maps libusb errors onto transfer statuses.
func classify(err error) pkg.TransferStatus {
	if err == nil {
		return pkg.TransferStatusSuccess
	}

	var ts gousb.TransferStatus
	if errors.As(err, &ts) {
		switch ts {
		case gousb.TransferCompleted:
			return pkg.TransferStatusSuccess
		case gousb.TransferNoDevice:
			return pkg.TransferStatusNoDevice
		case gousb.TransferCancelled:
			return pkg.TransferStatusCancelled
		case gousb.TransferStall:
			return pkg.TransferStatusStall
		case gousb.TransferTimedOut:
			return pkg.TransferStatusTimeout
		default:
			return pkg.TransferStatusError
		}
	}

	var ue gousb.Error
	if errors.As(err, &ue) {
		switch ue {
		case gousb.ErrorNoDevice:
			return pkg.TransferStatusNoDevice
		case gousb.ErrorPipe:
			return pkg.TransferStatusStall
		case gousb.ErrorTimeout:
			return pkg.TransferStatusTimeout
		case gousb.ErrorInterrupted:
			return pkg.TransferStatusCancelled
		default:
			return pkg.TransferStatusError
		}
	}

	return pkg.StatusFromError(err)
}

func speed(s gousb.Speed) hal.Speed {
	switch s {
	case gousb.SpeedLow:
		return hal.SpeedLow
	case gousb.SpeedFull:
		return hal.SpeedFull
	case gousb.SpeedHigh:
		return hal.SpeedHigh
	default:
		return hal.SpeedUnknown
	}
}
