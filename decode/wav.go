package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ardnew/sinn7/pkg"
)

const wavFormatPCM = 1

// ErrMalformed reports a broken container.
var ErrMalformed = errors.New("malformed audio file")

// wavReader converts the data chunk of a PCM WAV file.
type wavReader struct {
	r        io.Reader
	channels int
	width    int
	bits     int
	in       []byte
	out      []byte
}

func newWAV(r io.Reader) (io.Reader, Info, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, Info{}, fmt.Errorf("%w: wav header: %w", ErrMalformed, err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, Info{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrMalformed)
	}

	var (
		info    Info
		haveFmt bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return nil, Info{}, fmt.Errorf("%w: missing data chunk", ErrMalformed)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Info{}, fmt.Errorf("%w: fmt chunk of %d bytes", ErrMalformed, size)
			}
			body := make([]byte, size+size&1)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, Info{}, fmt.Errorf("%w: fmt chunk: %w", ErrMalformed, err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			info = Info{
				Codec:         "wav",
				Channels:      int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate:    int(binary.LittleEndian.Uint32(body[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
			}
			if format != wavFormatPCM {
				return nil, Info{}, fmt.Errorf("%w: wav format %d", pkg.ErrNotSupported, format)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, Info{}, fmt.Errorf("%w: data before fmt", ErrMalformed)
			}
			if info.Channels < 1 || info.Channels > 2 {
				return nil, Info{}, fmt.Errorf("%w: %d channels", pkg.ErrNotSupported, info.Channels)
			}
			if info.BitsPerSample != 16 && info.BitsPerSample != 24 {
				return nil, Info{}, fmt.Errorf("%w: %d-bit samples", pkg.ErrNotSupported, info.BitsPerSample)
			}
			return &wavReader{
				r:        io.LimitReader(r, size),
				channels: info.Channels,
				width:    info.BitsPerSample / 8,
				bits:     info.BitsPerSample,
			}, info, nil

		default:
			if _, err := io.CopyN(io.Discard, r, size+size&1); err != nil {
				return nil, Info{}, fmt.Errorf("%w: chunk %q: %w", ErrMalformed, id, err)
			}
		}
	}
}

func (w *wavReader) Read(p []byte) (int, error) {
	for len(w.out) == 0 {
		frame := w.channels * w.width
		want := max(len(p)/FrameBytes, 1) * frame
		if cap(w.in) < want {
			w.in = make([]byte, want)
		}
		n, err := io.ReadAtLeast(w.r, w.in[:want], frame)
		n -= n % frame
		w.out = w.out[:0]
		for off := 0; off < n; off += frame {
			l := w.sample(w.in[off:])
			r := l
			if w.channels == 2 {
				r = w.sample(w.in[off+w.width:])
			}
			w.out = putFrame(w.out, l, r)
		}
		if n == 0 && err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			return 0, err
		}
	}

	n := copy(p, w.out)
	w.out = w.out[n:]
	return n, nil
}

func (w *wavReader) sample(b []byte) int16 {
	if w.width == 3 {
		v := int32(b[0])<<8 | int32(b[1])<<16 | int32(int8(b[2]))<<24
		return to16(v>>8, 24)
	}
	return int16(binary.LittleEndian.Uint16(b))
}
