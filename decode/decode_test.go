package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/ardnew/sinn7/pkg"
)

// wavFile builds a PCM WAV file with an extra chunk before the data.
func wavFile(channels, rate, bits int, data []byte) []byte {
	var b bytes.Buffer
	put := func(v any) { binary.Write(&b, binary.LittleEndian, v) }

	b.WriteString("RIFF")
	put(uint32(4 + 8 + 16 + 8 + 2 + 8 + len(data)))
	b.WriteString("WAVE")

	b.WriteString("fmt ")
	put(uint32(16))
	put(uint16(wavFormatPCM))
	put(uint16(channels))
	put(uint32(rate))
	put(uint32(rate * channels * bits / 8))
	put(uint16(channels * bits / 8))
	put(uint16(bits))

	b.WriteString("LIST")
	put(uint32(2))
	b.Write([]byte{0, 0})

	b.WriteString("data")
	put(uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func TestWAV_Stereo16(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	src, err := New(bytes.NewReader(wavFile(2, 44100, 16, data)), ".wav")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if src.Info.Codec != "wav" || src.Info.Channels != 2 || src.Info.BitsPerSample != 16 {
		t.Errorf("Info = %+v", src.Info)
	}

	got, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("pcm = % x, want % x", got, data)
	}
}

func TestWAV_MonoDuplicated(t *testing.T) {
	data := []byte{0x34, 0x12, 0xCD, 0xAB}
	src, err := New(bytes.NewReader(wavFile(1, 44100, 16, data)), ".wav")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, _ := io.ReadAll(src)
	want := []byte{0x34, 0x12, 0x34, 0x12, 0xCD, 0xAB, 0xCD, 0xAB}
	if !bytes.Equal(got, want) {
		t.Errorf("pcm = % x, want % x", got, want)
	}
}

func TestWAV_24Bit(t *testing.T) {
	// Left 0x123456, right -1.
	data := []byte{0x56, 0x34, 0x12, 0xFF, 0xFF, 0xFF}
	src, err := New(bytes.NewReader(wavFile(2, 44100, 24, data)), ".wav")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, _ := io.ReadAll(src)
	want := []byte{0x34, 0x12, 0xFF, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("pcm = % x, want % x", got, want)
	}
}

func TestWAV_SmallReads(t *testing.T) {
	data := make([]byte, 400)
	for i := range data {
		data[i] = byte(i)
	}
	src, err := New(bytes.NewReader(wavFile(2, 44100, 16, data)), ".wav")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var got []byte
	buf := make([]byte, 3)
	for {
		n, err := src.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
	if !bytes.Equal(got, data) {
		t.Error("pcm differs when read in small pieces")
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		ext  string
		want error
	}{
		{"unknown extension", nil, ".ogg", pkg.ErrNotSupported},
		{"wrong rate", wavFile(2, 48000, 16, make([]byte, 8)), ".wav", pkg.ErrNotSupported},
		{"8-bit", wavFile(2, 44100, 8, make([]byte, 8)), ".wav", pkg.ErrNotSupported},
		{"surround", wavFile(6, 44100, 16, make([]byte, 24)), ".wav", pkg.ErrNotSupported},
		{"not riff", []byte("OggS0000000000000000"), ".wav", ErrMalformed},
		{"truncated", []byte("RIFF"), ".wav", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(bytes.NewReader(tt.data), tt.ext)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTo16(t *testing.T) {
	tests := []struct {
		v    int32
		bits int
		want int16
	}{
		{0x1234, 16, 0x1234},
		{0x123456, 24, 0x1234},
		{-1, 24, -1},
		{0x12, 8, 0x1200},
	}
	for _, tt := range tests {
		if got := to16(tt.v, tt.bits); got != tt.want {
			t.Errorf("to16(%#x, %d) = %#x, want %#x", tt.v, tt.bits, got, tt.want)
		}
	}
}
