// Package player drives a [pcm.Runtime] with the call sequence of a host
// audio framework.
//
// The player owns the circular DMA buffer. It prefills every period,
// prepares and starts the stream, and refills each period as the engine
// reports it consumed. At the end of input it pads with silence until the
// transfer carrying the last audio period has completed, then stops and
// closes the stream.
// If the engine overtakes the writer, the player counts an underrun and
// skips ahead.
package player
