package pkg

import (
	"context"
	"errors"
)

// Streaming engine errors.
var (
	// ErrInvalidFormat indicates an unsupported sample width or format.
	ErrInvalidFormat = errors.New("invalid sample format")

	// ErrSubmission indicates the transport rejected a transfer submission.
	ErrSubmission = errors.New("transfer submission failed")

	// ErrDeviceGone indicates a completion reported device removal or shutdown.
	ErrDeviceGone = errors.New("device gone")

	// ErrDeviceUnavailable is returned by every stream operation once the
	// panic latch is set, until the stream is closed and reopened.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrTimeout indicates a bounded wait expired.
	ErrTimeout = errors.New("timeout")

	// ErrFirmwareMismatch indicates an unexpected vendor handshake reply.
	ErrFirmwareMismatch = errors.New("unexpected firmware reply")
)

// USB transport errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrCancelled indicates a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrNoDevice indicates the device is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrShutdown indicates the transport was shut down.
	ErrShutdown = errors.New("transport shut down")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// Generic errors.
var (
	// ErrInvalidState indicates an invalid state for the operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrBusy indicates the resource is busy.
	ErrBusy = errors.New("resource busy")

	// ErrNoResources indicates insufficient resources (e.g., free card slots).
	ErrNoResources = errors.New("no resources available")

	// ErrNotRunning indicates the component is not running.
	ErrNotRunning = errors.New("not running")
)

// TransferStatus represents the completion status of a USB transfer.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess   TransferStatus = iota // Transfer completed successfully
	TransferStatusError                           // Transfer failed with error
	TransferStatusStall                           // Endpoint stalled
	TransferStatusTimeout                         // Transfer timed out
	TransferStatusCancelled                       // Transfer was cancelled (unlinked)
	TransferStatusNoDevice                        // Device was removed
	TransferStatusShutdown                        // Endpoint or transport shut down
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusStall:
		return "stall"
	case TransferStatusTimeout:
		return "timeout"
	case TransferStatusCancelled:
		return "cancelled"
	case TransferStatusNoDevice:
		return "no-device"
	case TransferStatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusTimeout:
		return ErrTimeout
	case TransferStatusCancelled:
		return ErrCancelled
	case TransferStatusNoDevice:
		return ErrNoDevice
	case TransferStatusShutdown:
		return ErrShutdown
	default:
		return ErrProtocol
	}
}

// IsFatal reports whether the status means the device can no longer be
// streamed to.
func (s TransferStatus) IsFatal() bool {
	return s == TransferStatusNoDevice || s == TransferStatusShutdown
}

// StatusFromError maps a transport error onto a transfer status.
func StatusFromError(err error) TransferStatus {
	switch {
	case err == nil:
		return TransferStatusSuccess
	case errors.Is(err, ErrNoDevice):
		return TransferStatusNoDevice
	case errors.Is(err, ErrShutdown):
		return TransferStatusShutdown
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return TransferStatusCancelled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return TransferStatusTimeout
	case errors.Is(err, ErrStall):
		return TransferStatusStall
	default:
		return TransferStatusError
	}
}
