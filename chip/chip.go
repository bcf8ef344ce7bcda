package chip

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ardnew/sinn7/hal"
	"github.com/ardnew/sinn7/pcm"
	"github.com/ardnew/sinn7/pkg"
)

// Card naming.
const (
	DriverName       = "snd-usb-sinn7"
	DefaultShortName = "Sinn7 Status 24|96"
)

// Status 24|96 USB identity.
const (
	VendorID  uint16 = 0x200c
	ProductID uint16 = 0x1006
)

// Quirk holds per-model overrides.
type Quirk struct {
	DeviceName string
}

// DeviceID matches a supported device.
type DeviceID struct {
	VendorID  uint16
	ProductID uint16
	Interface uint8
	Quirk     *Quirk
}

// DeviceTable lists the supported devices.
var DeviceTable = []DeviceID{
	{VendorID: VendorID, ProductID: ProductID, Interface: 0, Quirk: &Quirk{DeviceName: "Status 24|96"}},
}

// Match returns the table entry for info.
func Match(info hal.DeviceInfo) (DeviceID, bool) {
	for _, id := range DeviceTable {
		if id.VendorID == info.VendorID && id.ProductID == info.ProductID {
			return id, true
		}
	}
	return DeviceID{}, false
}

// Chip is one probed and registered device.
type Chip struct {
	// ID uniquely identifies this probe of the device.
	ID uuid.UUID

	// Slot is the registry slot; Number is the card number.
	Slot   int
	Number int

	// Card is the card identifier string.
	Card string

	ShortName string
	LongName  string

	dev hal.DeviceHAL
	reg *Registry
	pcm *pcm.Runtime

	gone     atomic.Bool
	once     sync.Once
	quit     chan struct{}
	released chan struct{}
}

// Probe verifies dev, runs the vendor handshake, reserves a card slot and
// creates the streaming engine. A detach monitor disconnects the chip when
// the device goes away.
func Probe(ctx context.Context, dev hal.DeviceHAL, reg *Registry, cfg pcm.Config) (*Chip, error) {
	info := dev.Info()
	id, ok := Match(info)
	if !ok {
		return nil, fmt.Errorf("%w: device %04x:%04x", pkg.ErrNotSupported, info.VendorID, info.ProductID)
	}

	if err := (handshake{ctl: dev}).run(ctx); err != nil {
		pkg.LogError(pkg.ComponentChip, "handshake failed", "path", info.Path(), "error", err)
		return nil, err
	}

	c := &Chip{
		ID:       uuid.New(),
		dev:      dev,
		reg:      reg,
		quit:     make(chan struct{}),
		released: make(chan struct{}),
	}

	slot, opts, err := reg.reserve(c)
	if err != nil {
		pkg.LogError(pkg.ComponentChip, "no available card slot", "path", info.Path())
		return nil, err
	}
	c.Slot = slot
	c.Number = slot
	if opts.Index >= 0 {
		c.Number = opts.Index
	}
	c.Card = opts.ID
	if c.Card == "" {
		c.Card = fmt.Sprintf("Status2496_%d", c.Number)
	}

	c.ShortName = DefaultShortName
	if id.Quirk != nil && id.Quirk.DeviceName != "" {
		c.ShortName = id.Quirk.DeviceName
	}
	c.LongName = c.ShortName + " at " + info.Path()

	c.pcm = pcm.NewRuntime(dev, cfg)

	go c.monitor()

	pkg.LogInfo(pkg.ComponentChip, "card registered",
		"card", c.Number, "id", c.Card, "name", c.LongName, "uuid", c.ID)
	return c, nil
}

// PCM returns the streaming engine.
func (c *Chip) PCM() *pcm.Runtime { return c.pcm }

// Device returns the transport.
func (c *Chip) Device() hal.DeviceHAL { return c.dev }

// Gone reports whether the chip has been disconnected.
func (c *Chip) Gone() bool { return c.gone.Load() }

// Disconnected is closed once Disconnect has completed.
func (c *Chip) Disconnected() <-chan struct{} { return c.released }

// Disconnect stops streaming and releases the card slot. It is safe to
// call more than once and from any goroutine.
func (c *Chip) Disconnect() {
	c.once.Do(func() {
		c.gone.Store(true)
		close(c.quit)
		c.pcm.Abort()
		c.reg.release(c.Slot, c)
		close(c.released)
		pkg.LogInfo(pkg.ComponentChip, "card disconnected", "card", c.Number, "name", c.LongName)
	})
}

func (c *Chip) monitor() {
	select {
	case <-c.dev.Detached():
		c.Disconnect()
	case <-c.quit:
	}
}
