package decode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ardnew/sinn7/pkg"
)

// Output format of every source.
const (
	SampleRate = 44100
	Channels   = 2
	FrameBytes = Channels * 2
)

// Info describes the input stream before conversion.
type Info struct {
	Codec         string
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Source yields interleaved S16_LE stereo PCM at 44100 Hz.
type Source struct {
	io.Reader
	Name string
	Info Info

	closer io.Closer
}

// Close releases the underlying file.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Open opens an audio file, choosing the decoder by extension.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	src, err := New(f, ext)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	src.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	src.closer = f

	pkg.LogInfo(pkg.ComponentDecode, "loaded audio",
		"name", src.Name, "codec", src.Info.Codec, "rate", src.Info.SampleRate,
		"channels", src.Info.Channels, "bits", src.Info.BitsPerSample)
	return src, nil
}

// New decodes r with the decoder for ext (".wav", ".mp3" or ".flac").
func New(r io.Reader, ext string) (*Source, error) {
	var (
		pcm  io.Reader
		info Info
		err  error
	)
	switch ext {
	case ".wav", ".wave":
		pcm, info, err = newWAV(r)
	case ".mp3":
		pcm, info, err = newMP3(r)
	case ".flac":
		pcm, info, err = newFLAC(r)
	default:
		return nil, fmt.Errorf("%w: audio format %q (supported: .wav, .mp3, .flac)", pkg.ErrNotSupported, ext)
	}
	if err != nil {
		return nil, err
	}
	if info.SampleRate != SampleRate {
		return nil, fmt.Errorf("%w: sample rate %d Hz, device runs at %d Hz", pkg.ErrNotSupported, info.SampleRate, SampleRate)
	}
	return &Source{Reader: pcm, Info: info}, nil
}

// to16 scales a signed sample of the given bit depth to 16 bits.
func to16(v int32, bits int) int16 {
	switch {
	case bits > 16:
		return int16(v >> (bits - 16))
	case bits < 16:
		return int16(v << (16 - bits))
	default:
		return int16(v)
	}
}

// putFrame appends one stereo S16_LE frame.
func putFrame(dst []byte, l, r int16) []byte {
	return append(dst, byte(l), byte(uint16(l)>>8), byte(r), byte(uint16(r)>>8))
}
