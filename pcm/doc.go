// Package pcm implements the playback streaming engine for the Sinn7
// Status 24|96.
//
// The device has no isochronous endpoint. Audio is sent over bulk OUT
// endpoint 0x05 in a bit-serial format: every 24-bit sample becomes 24
// bytes holding 0x00 or 0x01, ten stereo frames make one 512-byte block,
// and each block ends with a 32-byte trailer starting FD FF.
//
// # Engine
//
// [Runtime] keeps eight transfer slots of [MaxPacketSize] bytes. Start
// primes every slot with silence and waits for the device to acknowledge
// one, then a dispatcher goroutine ticks every 2 ms. Each tick takes an
// idle slot, copies one period out of the host's circular [DMABuffer]
// (or silence while the substream is inactive), encodes it into the slot
// and submits it. Ticks with no idle slot are skipped.
//
//	rt := pcm.NewRuntime(dev, pcm.DefaultConfig())
//	rt.Open(stream)
//	rt.HWParams(pcm.HWParams{Format: pcm.FormatS16LE, Channels: 2,
//	    Rate: 44100, PeriodFrames: 250, Periods: 8})
//	rt.Prepare(ctx)
//	rt.Trigger(pcm.TriggerStart)
//
// # States
//
//	Disabled -> Starting -> Running -> Stopping -> Disabled
//
// A rejected submission or a completion reporting device removal sets a
// sticky panic latch and moves the stream to Disabled. Until the stream is
// reopened, every operation except Close fails with
// [pkg.ErrDeviceUnavailable].
//
// # Locking
//
// Lifecycle operations hold the runtime mutex. The dispatcher holds only
// the substream mutex, and only while copying one period. HostStream's
// PeriodElapsed runs on the dispatcher goroutine with no engine lock held.
// It may call any operation. A lifecycle operation that stops the stream
// from inside the callback does not wait for the dispatcher to exit; the
// current tick is abandoned instead of submitted.
package pcm
