package hal

import (
	"context"
	"fmt"

	"github.com/ardnew/sinn7/pkg"
)

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// bmRequestType fields.
const (
	RequestDirOut uint8 = 0x00
	RequestDirIn  uint8 = 0x80

	RequestTypeStandard uint8 = 0x00
	RequestTypeClass    uint8 = 0x20
	RequestTypeVendor   uint8 = 0x40

	RequestRecipientDevice    uint8 = 0x00
	RequestRecipientInterface uint8 = 0x01
	RequestRecipientEndpoint  uint8 = 0x02
	RequestRecipientOther     uint8 = 0x03
)

// Standard requests used by the driver.
const (
	RequestClearFeature uint8 = 0x01
	RequestSetInterface uint8 = 0x0B

	// FeatureEndpointHalt is the ENDPOINT_HALT feature selector.
	FeatureEndpointHalt uint16 = 0x00
)

// SetupPacket represents a USB SETUP packet in the HAL layer.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// IsIn reports whether the data stage flows device to host.
func (s *SetupPacket) IsIn() bool {
	return s.RequestType&RequestDirIn != 0
}

// String returns a compact description for logging.
func (s *SetupPacket) String() string {
	return fmt.Sprintf("type=0x%02x req=0x%02x val=0x%04x idx=0x%04x len=%d",
		s.RequestType, s.Request, s.Value, s.Index, s.Length)
}

// TransferID identifies a submitted asynchronous transfer.
type TransferID uint64

// CompletionFunc receives the outcome of an asynchronous transfer.
//
// It runs on a HAL goroutine and must not block.
type CompletionFunc func(status pkg.TransferStatus, n int)

// DeviceInfo describes the opened device.
type DeviceInfo struct {
	VendorID  uint16
	ProductID uint16
	Bus       int
	Address   int
	Speed     Speed
}

// Path returns the bus path used in card long names.
func (i DeviceInfo) Path() string {
	return fmt.Sprintf("usb-%d-%d", i.Bus, i.Address)
}

// ControlHAL issues synchronous control requests on endpoint 0.
type ControlHAL interface {
	// ControlTransfer performs a control transfer. For IN requests data is
	// filled with the reply; for OUT requests data is sent.
	// Returns the number of bytes transferred in the data phase.
	ControlTransfer(ctx context.Context, setup *SetupPacket, data []byte) (int, error)

	// SetInterface selects an alternate setting on an interface.
	SetInterface(iface, alt uint8) error
}

// BulkHAL submits asynchronous bulk OUT transfers.
type BulkHAL interface {
	// SubmitBulk queues data for transmission on ep and returns immediately.
	// done is called exactly once when the transfer completes, fails or is
	// cancelled. The caller must not modify data until done runs.
	SubmitBulk(ep uint8, data []byte, done CompletionFunc) (TransferID, error)

	// Cancel requests cancellation of a submitted transfer. The transfer's
	// completion still runs, normally with [pkg.TransferStatusCancelled].
	// Cancelling an unknown or finished transfer is not an error.
	Cancel(id TransferID) error
}

// DeviceHAL is the full transport surface the driver needs from an opened
// device: one control channel and one bulk OUT channel.
type DeviceHAL interface {
	ControlHAL
	BulkHAL

	// Info describes the device.
	Info() DeviceInfo

	// Detached is closed when the device is removed.
	Detached() <-chan struct{}

	// Close releases the device. Pending transfers complete with
	// [pkg.TransferStatusShutdown].
	Close() error
}
