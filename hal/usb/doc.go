// Package usb implements [hal.DeviceHAL] on libusb through gousb.
//
// The backend is compiled only with cgo and the libusb build tag:
//
//	CGO_ENABLED=1 go build -tags libusb ./...
//
// Other builds get an [Open] that fails with [pkg.ErrNotSupported], so the
// loopback backend remains usable everywhere.
//
// Bulk OUT transfers run through a [hal.Queue] on top of the endpoint's
// synchronous WriteContext. libusb errors are mapped onto transfer statuses,
// and a poller watches for removal so [hal.DeviceHAL.Detached] fires even
// while the stream is idle.
package usb
