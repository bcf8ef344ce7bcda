package pcm

import (
	"context"
	"fmt"
	"time"

	"github.com/ardnew/sinn7/hal"
	"github.com/ardnew/sinn7/pkg"
)

// RequestSetRate is the vendor request selecting the device clock.
const RequestSetRate uint8 = 0xb0

// rateTimeout bounds the set-rate control request.
const rateTimeout = 100 * time.Millisecond

// rateCodes maps sample rates to set-rate request values.
var rateCodes = map[int]uint16{
	44100:  0x43,
	48000:  0x4b,
	88200:  0x42,
	96000:  0x4a,
	176400: 0x40,
	192000: 0x48,
	352800: 0x58,
	384000: 0x68,
}

// RateCode returns the set-rate request value for rate.
func RateCode(rate int) (uint16, bool) {
	code, ok := rateCodes[rate]
	return code, ok
}

// setRate sends the set-rate vendor request. The device does not
// acknowledge it beyond the status stage.
func setRate(ctx context.Context, ctl hal.ControlHAL, rate int) error {
	code, ok := RateCode(rate)
	if !ok {
		return fmt.Errorf("%w: rate %d", pkg.ErrNotSupported, rate)
	}

	ctx, cancel := context.WithTimeout(ctx, rateTimeout)
	defer cancel()

	setup := &hal.SetupPacket{
		RequestType: hal.RequestDirOut | hal.RequestTypeVendor | hal.RequestRecipientOther,
		Request:     RequestSetRate,
		Value:       code,
	}
	if _, err := ctl.ControlTransfer(ctx, setup, nil); err != nil {
		pkg.LogError(pkg.ComponentPCM, "error setting sample rate", "rate", rate, "error", err)
		return err
	}
	return nil
}
