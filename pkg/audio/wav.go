// Package audio provides the audio sinks and the render loop:
// device output, 16-bit PCM WAV files, and the policy for running
// a program into one or both of them.
package audio

import (
	"fmt"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// NumChannels is the number of output channels; output is always
// interleaved stereo.
const NumChannels = 2

// WAVFile writes 16-bit PCM WAV output. The RIFF sizes are
// back-patched when the file is closed.
type WAVFile struct {
	f     *os.File
	enc   *wav.Encoder
	srate int
}

// CreateWAVFile creates a WAV file for stereo 16-bit PCM output at
// the given sample rate.
func CreateWAVFile(path string, srate uint32) (*WAVFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create WAV file: %w", err)
	}
	return &WAVFile{
		f:     f,
		enc:   wav.NewEncoder(f, int(srate), 16, NumChannels, 1),
		srate: int(srate),
	}, nil
}

// Write appends interleaved samples to the file.
func (w *WAVFile) Write(samples []int16) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	return w.enc.Write(&gaudio.IntBuffer{
		Format: &gaudio.Format{
			NumChannels: NumChannels,
			SampleRate:  w.srate,
		},
		Data:           data,
		SourceBitDepth: 16,
	})
}

// Close finalizes the WAV header and closes the file.
func (w *WAVFile) Close() error {
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
