//go:build !(cgo && libusb)

package usb

import (
	"errors"
	"testing"

	"github.com/ardnew/sinn7/pkg"
)

func TestOpen_NotSupported(t *testing.T) {
	dev, err := Open(Options{VendorID: 0x200c, ProductID: 0x1006})
	if !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("Open() error = %v, want ErrNotSupported", err)
	}
	if dev != nil {
		t.Error("Open() returned a device")
	}
}
