//go:build !(cgo && libusb)

package usb

import (
	"fmt"

	"github.com/ardnew/sinn7/hal"
	"github.com/ardnew/sinn7/pkg"
)

// Open reports that this build has no libusb support. Build with
// CGO_ENABLED=1 and -tags libusb to enable it.
func Open(opts Options) (hal.DeviceHAL, error) {
	return nil, fmt.Errorf("%w: usb backend requires -tags libusb", pkg.ErrNotSupported)
}
