package decode

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// newMP3 decodes MPEG audio. The decoder always yields S16_LE stereo.
func newMP3(r io.Reader) (io.Reader, Info, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return d, Info{
		Codec:         "mp3",
		SampleRate:    d.SampleRate(),
		Channels:      2,
		BitsPerSample: 16,
	}, nil
}
