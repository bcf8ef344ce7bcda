// Package decode turns audio files into the PCM the device plays:
// interleaved S16_LE stereo at 44100 Hz.
//
// WAV (16 or 24-bit PCM), MP3 and FLAC are supported. Mono input is
// duplicated to both channels; deeper samples are truncated to 16 bits.
// Input at any other sample rate is rejected with [pkg.ErrNotSupported],
// as the device clock is fixed.
package decode
