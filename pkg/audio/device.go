package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
)

// The oto context can only be created once per process; it is
// cached here together with the rate it was opened at.
var (
	otoCtx      *oto.Context
	otoCtxSRate uint32
)

// Device is a blocking sink for interleaved stereo int16 frames,
// backed by the system audio output.
type Device struct {
	player *oto.Player
	pw     *io.PipeWriter
	srate  uint32
}

// OpenDevice opens the audio device for stereo 16-bit output. The
// returned device reports the sample rate actually in use, which
// for an already-open backend may differ from the one requested.
func OpenDevice(srate uint32) (*Device, error) {
	if otoCtx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   int(srate),
			ChannelCount: NumChannels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return nil, fmt.Errorf("cannot open audio device: %w", err)
		}
		<-ready
		otoCtx = ctx
		otoCtxSRate = srate
	}
	pr, pw := io.Pipe()
	d := &Device{
		pw:    pw,
		srate: otoCtxSRate,
	}
	d.player = otoCtx.NewPlayer(pr)
	d.player.SetBufferSize(int(otoCtxSRate) / 10 * NumChannels * 2) // 100ms
	d.player.Play()
	return d, nil
}

// SRate returns the sample rate the device runs at.
func (d *Device) SRate() uint32 {
	return d.srate
}

// Write blocks until the device has accepted the samples.
func (d *Device) Write(samples []int16) error {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	if _, err := d.pw.Write(b); err != nil {
		return fmt.Errorf("audio device write failed: %w", err)
	}
	return nil
}

// Close drains buffered audio, then shuts the device down.
func (d *Device) Close() error {
	d.pw.Close()
	for d.player.BufferedSize() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	return d.player.Close()
}
