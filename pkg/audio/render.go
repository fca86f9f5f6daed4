package audio

import (
	"fmt"
	"os"

	"github.com/hyphop/saugns/pkg/gen"
	"github.com/hyphop/saugns/pkg/program"
	"github.com/hyphop/saugns/pkg/ramp"
)

// bufFrames is the number of frames rendered per sink write.
const bufFrames = 1024

// Params configures a render.
type Params struct {
	SRate     uint32
	UseDevice bool
	WavPath   string
	// Progress, if set, is called after each written block with
	// the frame counts for the current render target.
	Progress func(done, total uint32)
	// Stop, when closed, ends rendering early without error.
	Stop <-chan struct{}
}

func stopped(p *Params) bool {
	if p.Stop == nil {
		return false
	}
	select {
	case <-p.Stop:
		return true
	default:
		return false
	}
}

// produceAudio renders prg at the given sample rate, sending the
// output to the non-nil sinks. Sink errors are reported once; the
// render continues on the remaining sink.
func produceAudio(prg *program.Program, srate uint32,
	dev *Device, wf *WAVFile, p *Params) error {
	g := gen.New(prg, srate)
	buf := make([]int16, bufFrames*NumChannels)
	total := ramp.TimeSamples(prg.DurationMS, srate)
	var done uint32
	var devErr, wfErr error
	for {
		n, more := g.Run(buf, bufFrames)
		if n > 0 {
			if dev != nil && devErr == nil {
				if err := dev.Write(buf[:NumChannels*n]); err != nil {
					devErr = err
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
			}
			if wf != nil && wfErr == nil {
				if err := wf.Write(buf[:NumChannels*n]); err != nil {
					wfErr = fmt.Errorf("WAV file write failed: %w", err)
					fmt.Fprintf(os.Stderr, "error: %v\n", wfErr)
				}
			}
			done += n
			if p.Progress != nil {
				p.Progress(done, total)
			}
		}
		if !more || stopped(p) {
			break
		}
	}
	if devErr != nil {
		return devErr
	}
	return wfErr
}

// Render runs the program through the audio generator until
// completion, with output to either none, one, or both of the
// audio device or a WAV file. If both are active but run at
// different sample rates, the program is rendered twice, once
// per rate, with a warning.
func Render(prg *program.Program, p Params) error {
	var dev *Device
	var wf *WAVFile
	var err error
	if p.UseDevice {
		dev, err = OpenDevice(p.SRate)
		if err != nil {
			return err
		}
	}
	if p.WavPath != "" {
		wf, err = CreateWAVFile(p.WavPath, p.SRate)
		if err != nil {
			if dev != nil {
				dev.Close()
			}
			return err
		}
	}
	if dev != nil && wf != nil && dev.SRate() != p.SRate {
		fmt.Fprintf(os.Stderr,
			"warning: generating audio twice, using different sample rates\n")
		err = produceAudio(prg, dev.SRate(), dev, nil, &p)
		if err2 := produceAudio(prg, p.SRate, nil, wf, &p); err == nil {
			err = err2
		}
	} else {
		srate := p.SRate
		if dev != nil {
			srate = dev.SRate()
		}
		err = produceAudio(prg, srate, dev, wf, &p)
	}
	if dev != nil {
		if cerr := dev.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if wf != nil {
		if cerr := wf.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("WAV file close failed: %w", cerr)
		}
	}
	return err
}
