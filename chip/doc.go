// Package chip binds a Status 24|96 to a card slot.
//
// [Probe] checks the device table, runs the vendor handshake (firmware
// query, alternate settings, sample rate and mode checks, endpoint halt
// clearing) and registers the device in a [Registry] of [MaxCards] slots
// configured by [CardOptions]. The resulting [Chip] owns the playback
// engine and disconnects itself when the transport reports removal.
package chip
