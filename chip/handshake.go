package chip

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ardnew/sinn7/hal"
	"github.com/ardnew/sinn7/pkg"
)

// controlTimeout bounds each handshake request.
const controlTimeout = time.Second

// Handshake requests.
const (
	requestFirmware uint8 = 0x56
	requestMode     uint8 = 0x49
	requestGetCur   uint8 = 0x81
	requestSetCur   uint8 = 0x01

	// modeRun is written to start the device.
	modeRun uint16 = 0x32

	// sampleRateControl is the endpoint sampling frequency control.
	sampleRateControl uint16 = 0x100
)

var (
	firmwarePrefix = []byte{0x31, 0x01, 0x08}
	rate44100      = []byte{0x44, 0xAC, 0x00}
)

// Endpoints configured during the handshake.
const (
	endpointIn  uint16 = 0x86
	endpointOut uint16 = 0x05
)

type handshake struct {
	ctl hal.ControlHAL
}

func (h handshake) control(ctx context.Context, setup *hal.SetupPacket, data []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()
	return h.ctl.ControlTransfer(ctx, setup, data)
}

// run performs the vendor initialization sequence. Unexpected replies
// fail with [pkg.ErrFirmwareMismatch]; errors on write-only requests are
// logged and ignored, as the device is known to reject some of them.
func (h handshake) run(ctx context.Context) error {
	fw := make([]byte, 15)
	if _, err := h.control(ctx, &hal.SetupPacket{
		RequestType: hal.RequestDirIn | hal.RequestTypeVendor,
		Request:     requestFirmware,
		Length:      uint16(len(fw)),
	}, fw); err != nil {
		return fmt.Errorf("firmware query: %w", err)
	}
	if !bytes.HasPrefix(fw, firmwarePrefix) {
		pkg.LogError(pkg.ComponentChip, "unexpected firmware answer", "received", fmt.Sprintf("% x", fw[:3]))
		return fmt.Errorf("%w: firmware % x, expected % x", pkg.ErrFirmwareMismatch, fw[:3], firmwarePrefix)
	}

	for iface := uint8(0); iface < 2; iface++ {
		if err := h.ctl.SetInterface(iface, 1); err != nil {
			return fmt.Errorf("can't set interface %d: %w", iface, err)
		}
	}

	if err := h.checkMode(ctx); err != nil {
		return err
	}
	if err := h.checkRate(ctx, 0); err != nil {
		return err
	}

	rate := append([]byte(nil), rate44100...)
	for _, ep := range []uint16{endpointIn, endpointOut} {
		h.tolerate("set sample rate", ep, func() error {
			_, err := h.control(ctx, &hal.SetupPacket{
				RequestType: hal.RequestDirOut | hal.RequestTypeClass | hal.RequestRecipientEndpoint,
				Request:     requestSetCur,
				Value:       sampleRateControl,
				Index:       ep,
				Length:      uint16(len(rate)),
			}, rate)
			return err
		})
	}

	if err := h.checkRate(ctx, endpointIn); err != nil {
		return err
	}
	if err := h.checkMode(ctx); err != nil {
		return err
	}

	h.tolerate("set mode", 0, func() error {
		_, err := h.control(ctx, &hal.SetupPacket{
			RequestType: hal.RequestDirOut | hal.RequestTypeVendor,
			Request:     requestMode,
			Value:       modeRun,
		}, nil)
		return err
	})

	for _, ep := range []uint16{endpointIn, endpointOut} {
		h.tolerate("clear halt", ep, func() error {
			_, err := h.control(ctx, &hal.SetupPacket{
				RequestType: hal.RequestDirOut | hal.RequestTypeStandard | hal.RequestRecipientEndpoint,
				Request:     hal.RequestClearFeature,
				Value:       hal.FeatureEndpointHalt,
				Index:       ep,
			}, nil)
			return err
		})
	}
	return nil
}

func (h handshake) checkMode(ctx context.Context) error {
	mode := make([]byte, 1)
	if _, err := h.control(ctx, &hal.SetupPacket{
		RequestType: hal.RequestDirIn | hal.RequestTypeVendor,
		Request:     requestMode,
		Length:      1,
	}, mode); err != nil {
		return fmt.Errorf("mode query: %w", err)
	}
	if mode[0] != 0x32 && mode[0] != 0x12 {
		pkg.LogError(pkg.ComponentChip, "unexpected mode answer", "received", mode[0])
		return fmt.Errorf("%w: mode 0x%02x, expected 0x32 or 0x12", pkg.ErrFirmwareMismatch, mode[0])
	}
	return nil
}

func (h handshake) checkRate(ctx context.Context, ep uint16) error {
	rate := make([]byte, 3)
	if _, err := h.control(ctx, &hal.SetupPacket{
		RequestType: hal.RequestDirIn | hal.RequestTypeClass | hal.RequestRecipientEndpoint,
		Request:     requestGetCur,
		Value:       sampleRateControl,
		Index:       ep,
		Length:      uint16(len(rate)),
	}, rate); err != nil {
		return fmt.Errorf("rate query: %w", err)
	}
	if !bytes.Equal(rate, rate44100) {
		pkg.LogError(pkg.ComponentChip, "unexpected rate answer", "endpoint", ep, "received", fmt.Sprintf("% x", rate))
		return fmt.Errorf("%w: rate % x, expected % x", pkg.ErrFirmwareMismatch, rate, rate44100)
	}
	return nil
}

func (h handshake) tolerate(what string, ep uint16, fn func() error) {
	if err := fn(); err != nil {
		pkg.LogWarn(pkg.ComponentChip, what+" ignored", "endpoint", ep, "error", err)
	}
}
