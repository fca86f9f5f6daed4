package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"github.com/hyphop/saugns/pkg/script"
)

func TestWAVFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	wf, err := CreateWAVFile(path, 44100)
	if err != nil {
		t.Fatal(err)
	}
	samples := make([]int16, 2*1000)
	for i := range samples {
		samples[i] = int16(i % 512)
	}
	if err := wf.Write(samples); err != nil {
		t.Fatal(err)
	}
	if err := wf.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if d.SampleRate != 44100 || d.NumChans != NumChannels || d.BitDepth != 16 {
		t.Errorf("format = %d Hz, %d ch, %d bit; want 44100, 2, 16",
			d.SampleRate, d.NumChans, d.BitDepth)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
	for i := range samples {
		if int16(buf.Data[i]) != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], samples[i])
		}
	}
}

func TestRenderToWAV(t *testing.T) {
	prg, err := script.Load("Osin t0.1 f440", false)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "sine.wav")
	var lastDone, lastTotal uint32
	err = Render(prg, Params{
		SRate:   44100,
		WavPath: path,
		Progress: func(done, total uint32) {
			lastDone, lastTotal = done, total
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if lastTotal != 4410 {
		t.Errorf("total frames = %d, want 4410", lastTotal)
	}
	if lastDone == 0 || lastDone > lastTotal {
		t.Errorf("done frames = %d, want within (0, %d]", lastDone, lastTotal)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	d.ReadInfo()
	if d.SampleRate != 44100 || d.NumChans != NumChannels {
		t.Errorf("format = %d Hz, %d ch; want 44100, 2",
			d.SampleRate, d.NumChans)
	}
}
