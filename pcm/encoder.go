package pcm

import (
	"github.com/ardnew/sinn7/pkg"
)

// Wire layout constants.
const (
	// BlockFrames is the number of audio frames carried by one wire block.
	BlockFrames = 10

	// BlockSize is the size of one encoded wire block in bytes.
	BlockSize = 512

	// ChannelWireBytes is the wire size of one channel sample: 24 bits,
	// one byte per bit.
	ChannelWireBytes = 24

	// FrameWireBytes is the wire size of one stereo frame.
	FrameWireBytes = 2 * ChannelWireBytes

	// TrailerSize is the size of the trailer closing each block.
	TrailerSize = BlockSize - BlockFrames*FrameWireBytes
)

// wireChannels is the channel count on the wire.
const wireChannels = 2

// trailer terminates every 512-byte block.
var trailer = [TrailerSize]byte{0xFD, 0xFF}

// Justify selects where a 16-bit sample lands in the 24-bit wire word.
type Justify uint8

const (
	// JustifyLSB zero-extends: 0x1234 is sent as 00 12 34.
	JustifyLSB Justify = iota

	// JustifyMSB left-justifies: 0x1234 is sent as 12 34 00.
	JustifyMSB
)

// String returns the option name.
func (j Justify) String() string {
	switch j {
	case JustifyLSB:
		return "lsb"
	case JustifyMSB:
		return "msb"
	default:
		return "unknown"
	}
}

// ParseJustify converts "lsb" or "msb" into a Justify value.
func ParseJustify(s string) (Justify, error) {
	switch s {
	case "", "lsb":
		return JustifyLSB, nil
	case "msb":
		return JustifyMSB, nil
	default:
		return JustifyLSB, pkg.ErrInvalidParameter
	}
}

// EncodedSize returns the wire size of frames audio frames.
func EncodedSize(frames int) int {
	if frames <= 0 {
		return 0
	}
	return (frames + BlockFrames - 1) / BlockFrames * BlockSize
}

// Encoder converts little-endian PCM into the bit-serial wire format.
// The zero value zero-extends 16-bit samples.
type Encoder struct {
	Justify Justify
}

// Encode converts frames of interleaved stereo PCM (width bytes per sample)
// into a newly allocated wire buffer.
func Encode(src []byte, frames, width int) ([]byte, error) {
	return Encoder{}.Encode(src, frames, width)
}

// EncodeInto is [Encoder.EncodeInto] with the default justification.
func EncodeInto(dst, src []byte, frames, width int) (int, error) {
	return Encoder{}.EncodeInto(dst, src, frames, width)
}

// Encode allocates a buffer of [EncodedSize](frames) bytes and encodes into it.
func (e Encoder) Encode(src []byte, frames, width int) ([]byte, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	dst := make([]byte, EncodedSize(frames))
	if _, err := e.EncodeInto(dst, src, frames, width); err != nil {
		return nil, err
	}
	return dst, nil
}

// EncodeInto encodes into dst and returns the number of bytes written.
//
// Each sample becomes 24 bytes, one per bit, MSB first, holding 0x01 or
// 0x00. Every ten frames form a block closed by the trailer; a short final
// block is zero-padded. Nothing is written on error.
func (e Encoder) EncodeInto(dst, src []byte, frames, width int) (int, error) {
	if err := checkWidth(width); err != nil {
		return 0, err
	}
	if frames <= 0 {
		return 0, nil
	}
	size := EncodedSize(frames)
	if len(dst) < size || len(src) < frames*wireChannels*width {
		return 0, pkg.ErrBufferTooSmall
	}

	out := dst[:size]
	in := src
	for block := 0; block < size; block += BlockSize {
		w := out[block : block+BlockSize]
		n := frames - block/BlockSize*BlockFrames
		if n > BlockFrames {
			n = BlockFrames
		}
		pos := 0
		for f := 0; f < n; f++ {
			for ch := 0; ch < wireChannels; ch++ {
				expand(w[pos:pos+ChannelWireBytes], e.word(in, width))
				in = in[width:]
				pos += ChannelWireBytes
			}
		}
		clear(w[pos : BlockFrames*FrameWireBytes])
		copy(w[BlockFrames*FrameWireBytes:], trailer[:])
	}
	return size, nil
}

// word assembles the 24-bit wire value of the sample at the head of in.
func (e Encoder) word(in []byte, width int) uint32 {
	if width == 3 {
		return uint32(in[0]) | uint32(in[1])<<8 | uint32(in[2])<<16
	}
	v := uint32(in[0]) | uint32(in[1])<<8
	if e.Justify == JustifyMSB {
		v <<= 8
	}
	return v
}

// expand writes the 24 bits of v MSB first, one byte per bit.
func expand(w []byte, v uint32) {
	_ = w[ChannelWireBytes-1]
	for i := 0; i < ChannelWireBytes; i++ {
		w[i] = byte(v>>(ChannelWireBytes-1-i)) & 1
	}
}

// Decode reverses the wire encoding into little-endian PCM of the given
// width. Trailers and padding are skipped, so the result holds every
// frame slot of every block; callers trim to the frame count they sent.
func Decode(wire []byte, width int, j Justify) ([]byte, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	if len(wire)%BlockSize != 0 {
		return nil, pkg.ErrInvalidParameter
	}

	out := make([]byte, 0, len(wire)/BlockSize*BlockFrames*wireChannels*width)
	for block := 0; block < len(wire); block += BlockSize {
		w := wire[block : block+BlockFrames*FrameWireBytes]
		for pos := 0; pos < len(w); pos += ChannelWireBytes {
			var v uint32
			for _, bit := range w[pos : pos+ChannelWireBytes] {
				v = v<<1 | uint32(bit&1)
			}
			if width == 3 {
				out = append(out, byte(v), byte(v>>8), byte(v>>16))
				continue
			}
			if j == JustifyMSB {
				v >>= 8
			}
			out = append(out, byte(v), byte(v>>8))
		}
	}
	return out, nil
}

func checkWidth(width int) error {
	if width != 2 && width != 3 {
		return pkg.ErrInvalidFormat
	}
	return nil
}
