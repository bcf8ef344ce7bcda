// Package hal defines the transport boundary between the streaming engine
// and a USB device.
//
// The engine needs exactly two channels to the device: synchronous control
// requests on endpoint 0 for the vendor handshake, and asynchronous bulk OUT
// submissions with a completion callback for audio. [DeviceHAL] bundles
// both with device identity and removal notification.
//
// # Completion Contract
//
// Every successful [BulkHAL.SubmitBulk] is followed by exactly one call of
// its [CompletionFunc], from a HAL goroutine. Completions must not block;
// the engine only updates flags and performs non-blocking channel sends.
//
// # Queue
//
// Most transports are synchronous (a libusb write, an in-memory copy).
// [Queue] adapts such a write function into the asynchronous surface with
// ordered execution, per-transfer cancellation and shutdown completion:
//
//	q := hal.NewQueue(hal.DefaultQueueDepth, writeFn, nil)
//	q.Start(ctx)
//	id, err := q.Submit(0x05, buf, func(status pkg.TransferStatus, n int) {
//	    // flag updates only
//	})
//
// # Implementations
//
// An in-memory device emulator lives in
// [github.com/ardnew/sinn7/hal/loopback]; a libusb transport lives in
// [github.com/ardnew/sinn7/hal/usb].
package hal
