// Package loopback provides an in-memory Status 24|96 for tests and
// dry runs.
//
// The emulator answers the vendor handshake, accepts bulk OUT transfers
// on endpoint 0x05 and optionally captures the raw wire stream or the
// decoded samples. Fault injection covers rejected submissions, failed
// completions, a stalled endpoint and device removal.
//
//	dev := loopback.New(loopback.Options{PCM: &buf, Realtime: true})
//	defer dev.Close()
package loopback
