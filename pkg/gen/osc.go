package gen

import (
	"math"

	"github.com/hyphop/saugns/pkg/wave"
)

// Osc is a table-lookup oscillator with 32-bit fixed-point phase.
type Osc struct {
	Phase uint32
	coeff float32
	lut   *[wave.Len]float32
}

// NewOsc returns an oscillator for the given sample rate,
// with the sine table selected.
func NewOsc(srate uint32) Osc {
	return Osc{
		coeff: float32(4294967296.0 / float64(srate)),
		lut:   wave.LUT(wave.Sin),
	}
}

// SetWave selects the lookup table for a wave type.
func (o *Osc) SetWave(t wave.Type) {
	o.lut = wave.LUT(t)
}

// PhaseFrom converts a floating point phase value
// (0.0 = 0 degrees, 1.0 = 360 degrees) to the 32-bit form.
func PhaseFrom(p float32) uint32 {
	return uint32(int64(math.Round(float64(p) * 4294967296.0)))
}

func (o *Osc) phaseInc(freq float32) uint32 {
	return uint32(int64(math.Round(float64(o.coeff * freq))))
}

// CycleLen returns the length of a wave cycle for freq,
// in samples.
func (o *Osc) CycleLen(freq float32) uint32 {
	return uint32(math.Round(4294967296.0 / float64(o.coeff*freq)))
}

// CycleOffs returns the offset relative to a wave cycle for freq,
// based on pos. Can be used to reduce a time length to something
// rounder, ending at a wave cycle boundary.
func (o *Osc) CycleOffs(freq float32, pos uint32) int32 {
	inc := o.phaseInc(freq)
	if inc == 0 {
		return 0
	}
	phs := inc * pos
	return int32((phs - wave.Scale) / inc)
}

// Run produces one sample in the -1.0 to 1.0 range,
// advancing the phase.
func (o *Osc) Run(freq float32, pmS32 int32) float32 {
	phase := o.Phase + uint32(pmS32)
	s := wave.GetLerp(o.lut, phase)
	o.Phase += o.phaseInc(freq)
	return s
}

// RunEnv produces one sample in the 0.0 to 1.0 range,
// for wave envelope use.
func (o *Osc) RunEnv(freq float32, pmS32 int32) float32 {
	return o.Run(freq, pmS32)*0.5 + 0.5
}
