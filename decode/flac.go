package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"

	"github.com/ardnew/sinn7/pkg"
)

// flacReader converts decoded FLAC frames to S16_LE stereo.
type flacReader struct {
	stream *flac.Stream
	bits   int
	out    []byte
	err    error
}

func newFLAC(r io.Reader) (io.Reader, Info, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := Info{
		Codec:         "flac",
		SampleRate:    int(stream.Info.SampleRate),
		Channels:      int(stream.Info.NChannels),
		BitsPerSample: int(stream.Info.BitsPerSample),
	}
	if info.Channels < 1 || info.Channels > 2 {
		return nil, Info{}, fmt.Errorf("%w: %d channels", pkg.ErrNotSupported, info.Channels)
	}
	return &flacReader{stream: stream, bits: info.BitsPerSample}, info, nil
}

func (f *flacReader) Read(p []byte) (int, error) {
	for len(f.out) == 0 {
		if f.err != nil {
			return 0, f.err
		}
		frame, err := f.stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				f.err = io.EOF
			} else {
				f.err = fmt.Errorf("flac decode error: %w", err)
			}
			continue
		}

		f.out = f.out[:0]
		left := frame.Subframes[0].Samples
		right := left
		if len(frame.Subframes) > 1 {
			right = frame.Subframes[1].Samples
		}
		for i := 0; i < int(frame.BlockSize); i++ {
			f.out = putFrame(f.out, to16(left[i], f.bits), to16(right[i], f.bits))
		}
	}

	n := copy(p, f.out)
	f.out = f.out[n:]
	return n, nil
}
