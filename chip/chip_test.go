package chip

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/sinn7/hal"
	"github.com/ardnew/sinn7/hal/loopback"
	"github.com/ardnew/sinn7/pcm"
	"github.com/ardnew/sinn7/pkg"
)

// =============================================================================
// Registry Tests
// =============================================================================

func TestRegistry_Capacity(t *testing.T) {
	r := NewRegistry(nil)
	chips := make([]*Chip, MaxCards)
	for i := range chips {
		chips[i] = &Chip{}
		slot, opts, err := r.reserve(chips[i])
		if err != nil {
			t.Fatalf("reserve(%d) error = %v", i, err)
		}
		if slot != i || opts.Index != -1 || !opts.Enable {
			t.Errorf("reserve(%d) = %d, %+v", i, slot, opts)
		}
	}

	if _, _, err := r.reserve(&Chip{}); !errors.Is(err, pkg.ErrNoResources) {
		t.Errorf("reserve() on full registry error = %v, want ErrNoResources", err)
	}
	if r.Len() != MaxCards {
		t.Errorf("Len() = %d, want %d", r.Len(), MaxCards)
	}

	// Releasing with the wrong owner is ignored.
	r.release(2, &Chip{})
	if r.Len() != MaxCards {
		t.Error("release() by a non-owner freed the slot")
	}

	r.release(2, chips[2])
	if slot, _, err := r.reserve(&Chip{}); err != nil || slot != 2 {
		t.Errorf("reserve() after release = %d, %v; want 2, nil", slot, err)
	}
}

func TestRegistry_DisabledSlots(t *testing.T) {
	opts := make([]CardOptions, MaxCards)
	opts[3] = CardOptions{Index: 5, ID: "studio", Enable: true}
	r := NewRegistry(opts)

	slot, got, err := r.reserve(&Chip{})
	if err != nil {
		t.Fatalf("reserve() error = %v", err)
	}
	if slot != 3 || got.ID != "studio" || got.Index != 5 {
		t.Errorf("reserve() = %d, %+v", slot, got)
	}
	if _, _, err := r.reserve(&Chip{}); !errors.Is(err, pkg.ErrNoResources) {
		t.Errorf("second reserve() error = %v, want ErrNoResources", err)
	}
	if len(r.Cards()) != 1 {
		t.Errorf("Cards() = %d entries, want 1", len(r.Cards()))
	}
}

// =============================================================================
// Probe Tests
// =============================================================================

func TestProbe(t *testing.T) {
	dev := loopback.New(loopback.Options{Info: &hal.DeviceInfo{
		VendorID: loopback.VendorID, ProductID: loopback.ProductID, Bus: 2, Address: 9,
	}})
	defer dev.Close()
	reg := NewRegistry(nil)

	c, err := Probe(context.Background(), dev, reg, pcm.DefaultConfig())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	defer c.Disconnect()

	if c.ShortName != "Status 24|96" {
		t.Errorf("ShortName = %q", c.ShortName)
	}
	if c.LongName != "Status 24|96 at usb-2-9" {
		t.Errorf("LongName = %q", c.LongName)
	}
	if c.Card != "Status2496_0" || c.Number != 0 {
		t.Errorf("Card = %q, Number = %d", c.Card, c.Number)
	}
	if c.ID.String() == "" {
		t.Error("ID is empty")
	}
	if reg.Len() != 1 {
		t.Errorf("registry Len() = %d, want 1", reg.Len())
	}

	for iface := uint8(0); iface < 2; iface++ {
		if dev.AltSetting(iface) != 1 {
			t.Errorf("interface %d alt = %d, want 1", iface, dev.AltSetting(iface))
		}
	}
	for _, ep := range []uint16{0x86, 0x05} {
		if dev.Halted(ep) {
			t.Errorf("endpoint 0x%02x still halted", ep)
		}
	}
	if got := len(dev.Controls()); got != 10 {
		t.Errorf("control requests = %d, want 10", got)
	}
	if first := dev.Controls()[0]; first.RequestType != 0xC0 || first.Request != 0x56 || first.Length != 15 {
		t.Errorf("first request = %v", &first)
	}
}

func TestProbe_Mismatch(t *testing.T) {
	tests := []struct {
		name string
		opts loopback.Options
	}{
		{"firmware", loopback.Options{Firmware: []byte{0x31, 0x01, 0x09}}},
		{"mode", loopback.Options{Mode: 0x07}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := loopback.New(tt.opts)
			defer dev.Close()
			reg := NewRegistry(nil)

			if _, err := Probe(context.Background(), dev, reg, pcm.DefaultConfig()); !errors.Is(err, pkg.ErrFirmwareMismatch) {
				t.Errorf("Probe() error = %v, want ErrFirmwareMismatch", err)
			}
			if reg.Len() != 0 {
				t.Error("failed probe left a registered card")
			}
		})
	}
}

func TestProbe_Unsupported(t *testing.T) {
	dev := loopback.New(loopback.Options{Info: &hal.DeviceInfo{VendorID: 0x1234, ProductID: 0x5678}})
	defer dev.Close()

	if _, err := Probe(context.Background(), dev, NewRegistry(nil), pcm.DefaultConfig()); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("Probe() error = %v, want ErrNotSupported", err)
	}
	if len(dev.Controls()) != 0 {
		t.Error("unsupported device received control requests")
	}
}

func TestProbe_NoSlot(t *testing.T) {
	dev := loopback.New(loopback.Options{})
	defer dev.Close()

	reg := NewRegistry(make([]CardOptions, MaxCards))
	if _, err := Probe(context.Background(), dev, reg, pcm.DefaultConfig()); !errors.Is(err, pkg.ErrNoResources) {
		t.Errorf("Probe() error = %v, want ErrNoResources", err)
	}
}

// =============================================================================
// Disconnect Tests
// =============================================================================

func TestChip_Unplug(t *testing.T) {
	dev := loopback.New(loopback.Options{})
	reg := NewRegistry(nil)

	cfg := pcm.DefaultConfig()
	cfg.StopTimeout = 10 * time.Millisecond
	c, err := Probe(context.Background(), dev, reg, cfg)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if err := c.PCM().Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	dev.Unplug()

	select {
	case <-c.Disconnected():
	case <-time.After(2 * time.Second):
		t.Fatal("chip not disconnected after unplug")
	}
	if !c.Gone() {
		t.Error("Gone() = false")
	}
	if reg.Len() != 0 {
		t.Errorf("registry Len() = %d, want 0", reg.Len())
	}
	if c.PCM().State() != pcm.StreamDisabled {
		t.Errorf("stream state = %v, want disabled", c.PCM().State())
	}
	if err := c.PCM().Open(nil); !errors.Is(err, pkg.ErrDeviceUnavailable) {
		t.Errorf("Open() after unplug error = %v", err)
	}

	// Idempotent.
	c.Disconnect()
}
