package pkg

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestTransferStatus_String(t *testing.T) {
	tests := []struct {
		status TransferStatus
		want   string
	}{
		{TransferStatusSuccess, "success"},
		{TransferStatusError, "error"},
		{TransferStatusStall, "stall"},
		{TransferStatusTimeout, "timeout"},
		{TransferStatusCancelled, "cancelled"},
		{TransferStatusNoDevice, "no-device"},
		{TransferStatusShutdown, "shutdown"},
		{TransferStatus(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("TransferStatus.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransferStatus_Error(t *testing.T) {
	tests := []struct {
		status  TransferStatus
		wantErr error
	}{
		{TransferStatusSuccess, nil},
		{TransferStatusStall, ErrStall},
		{TransferStatusTimeout, ErrTimeout},
		{TransferStatusCancelled, ErrCancelled},
		{TransferStatusNoDevice, ErrNoDevice},
		{TransferStatusShutdown, ErrShutdown},
		{TransferStatusError, ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			err := tt.status.Error()
			if tt.wantErr == nil && err != nil {
				t.Errorf("TransferStatus.Error() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("TransferStatus.Error() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransferStatus_IsFatal(t *testing.T) {
	fatal := map[TransferStatus]bool{
		TransferStatusNoDevice: true,
		TransferStatusShutdown: true,
	}
	for s := TransferStatusSuccess; s <= TransferStatusShutdown; s++ {
		if got := s.IsFatal(); got != fatal[s] {
			t.Errorf("%v.IsFatal() = %v, want %v", s, got, fatal[s])
		}
	}
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want TransferStatus
	}{
		{"nil", nil, TransferStatusSuccess},
		{"no device", ErrNoDevice, TransferStatusNoDevice},
		{"wrapped no device", fmt.Errorf("write: %w", ErrNoDevice), TransferStatusNoDevice},
		{"shutdown", ErrShutdown, TransferStatusShutdown},
		{"cancelled", ErrCancelled, TransferStatusCancelled},
		{"context cancelled", context.Canceled, TransferStatusCancelled},
		{"deadline", context.DeadlineExceeded, TransferStatusTimeout},
		{"stall", ErrStall, TransferStatusStall},
		{"other", errors.New("boom"), TransferStatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFromError(tt.err); got != tt.want {
				t.Errorf("StatusFromError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrors_Distinct(t *testing.T) {
	errs := []error{
		ErrInvalidFormat, ErrSubmission, ErrDeviceGone, ErrDeviceUnavailable,
		ErrTimeout, ErrFirmwareMismatch, ErrStall, ErrCancelled, ErrProtocol,
		ErrNoDevice, ErrShutdown, ErrInvalidEndpoint, ErrInvalidState,
		ErrInvalidParameter, ErrBufferTooSmall, ErrNotSupported, ErrBusy,
		ErrNoResources, ErrNotRunning,
	}
	for i := range errs {
		for j := range errs {
			if i != j && errors.Is(errs[i], errs[j]) {
				t.Errorf("errors %d (%v) and %d (%v) compare equal", i, errs[i], j, errs[j])
			}
		}
	}
}
