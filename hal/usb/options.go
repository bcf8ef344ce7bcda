package usb

import "time"

// Options selects the device to open.
type Options struct {
	VendorID  uint16
	ProductID uint16

	// Interface and AltSetting are claimed on open.
	Interface  int
	AltSetting int

	// Endpoint is the bulk OUT endpoint address.
	Endpoint uint8

	// PollInterval is how often the device is probed for removal.
	PollInterval time.Duration
}

// DefaultPollInterval is the removal polling period.
const DefaultPollInterval = 500 * time.Millisecond

func (o *Options) normalize() {
	if o.Endpoint == 0 {
		o.Endpoint = 0x05
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
}
