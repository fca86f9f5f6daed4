// Package ramp implements timed value trajectories for synthesis
// parameters. A ramp holds a state value and, optionally, a goal to
// move toward along a shape function over a set time.
package ramp

import "math"

// Shape selects a trajectory function.
type Shape uint8

// Ramp shapes.
const (
	Hold Shape = iota
	Lin
	Exp
	Log
	Esd
	Lsd
	NumShapes
)

// Names holds the script names of the ramp shapes, indexed by Shape.
var Names = [NumShapes]string{
	"hold",
	"lin",
	"exp",
	"log",
	"esd",
	"lsd",
}

// ShapeNamed returns the ramp shape for a script name.
func ShapeNamed(name string) (Shape, bool) {
	for i, n := range Names {
		if n == name {
			return Shape(i), true
		}
	}
	return 0, false
}

// Ramp flags.
const (
	// FlagState is set when the initial value v0 holds a value.
	FlagState uint8 = 1 << iota
	// FlagStateRatio marks v0 as a multiplier on a parent frequency.
	FlagStateRatio
	// FlagGoal is set when the target value vt is to be ramped toward.
	FlagGoal
	// FlagGoalRatio marks vt as a multiplier on a parent frequency.
	FlagGoalRatio
	// FlagTime is set when the ramp time was explicitly given.
	FlagTime
)

// Ramp is a scalar parameter with an optional timed transition.
// With no goal set it produces the constant v0.
type Ramp struct {
	V0, Vt float32
	TimeMS uint32
	Shape  Shape
	Flags  uint8
}

// Reset sets the instance to default values. Parameter-specific
// state values are not included.
func (o *Ramp) Reset() {
	*o = Ramp{Shape: Lin}
}

// Enabled returns whether the ramp carries any value assignment.
func (o *Ramp) Enabled() bool {
	return o.Flags&(FlagState|FlagGoal) != 0
}

// Copy copies changes from src, preserving non-overridden parts
// of the state.
func (o *Ramp) Copy(src *Ramp) {
	var mask uint8
	if src.Flags&FlagState != 0 {
		o.V0 = src.V0
		mask |= FlagState | FlagStateRatio
	}
	if src.Flags&FlagGoal != 0 {
		o.Vt = src.Vt
		o.TimeMS = src.TimeMS
		o.Shape = src.Shape
		mask |= FlagGoal | FlagGoalRatio | FlagTime
	}
	o.Flags &^= mask
	o.Flags |= src.Flags & mask
}

// FillFunc fills buf with values from v0 (at position 0) to vt
// (at position time), beginning at position pos.
type FillFunc func(buf []float32, v0, vt float32, pos, time uint32)

// FillFuncs holds the fill functions, indexed by Shape.
var FillFuncs = [NumShapes]FillFunc{
	FillHold,
	FillLin,
	FillExp,
	FillLog,
	FillEsd,
	FillLsd,
}

// FillHold fills buf with copies of v0.
func FillHold(buf []float32, v0, vt float32, pos, time uint32) {
	for i := range buf {
		buf[i] = v0
	}
}

// FillLin fills buf along a linear trajectory.
func FillLin(buf []float32, v0, vt float32, pos, time uint32) {
	invTime := 1.0 / float32(time)
	for i := range buf {
		buf[i] = v0 + (vt-v0)*(float32(pos+uint32(i))*invTime)
	}
}

// FillExp fills buf along a steady exponential-like trajectory.
// Unlike a real exponential curve, it has a definite beginning and
// end; one of the esd or lsd polynomials is picked depending on
// whether the curve rises or falls.
func FillExp(buf []float32, v0, vt float32, pos, time uint32) {
	if v0 > vt {
		FillEsd(buf, v0, vt, pos, time)
	} else {
		FillLsd(buf, v0, vt, pos, time)
	}
}

// FillLog fills buf along a steady logarithmic-like trajectory,
// the counterpart of FillExp.
func FillLog(buf []float32, v0, vt float32, pos, time uint32) {
	if v0 < vt {
		FillEsd(buf, v0, vt, pos, time)
	} else {
		FillLsd(buf, v0, vt, pos, time)
	}
}

// FillEsd fills buf along a trajectory which exponentially
// saturates and decays (like a capacitor), using an ear-tuned
// polynomial symmetric to the lsd type.
func FillEsd(buf []float32, v0, vt float32, pos, time uint32) {
	invTime := 1.0 / float32(time)
	for i := range buf {
		mod := 1.0 - float32(pos+uint32(i))*invTime
		modp2 := mod * mod
		modp3 := modp2 * mod
		mod = modp3 + (modp2*modp3-modp2)*
			(mod*(629.0/1792.0)+modp2*(1163.0/1792.0))
		buf[i] = vt + (v0-vt)*mod
	}
}

// FillLsd fills buf along a trajectory which logarithmically
// saturates and decays (opposite of a capacitor), using an
// ear-tuned polynomial symmetric to the esd type.
func FillLsd(buf []float32, v0, vt float32, pos, time uint32) {
	invTime := 1.0 / float32(time)
	for i := range buf {
		mod := float32(pos+uint32(i)) * invTime
		modp2 := mod * mod
		modp3 := modp2 * mod
		mod = modp3 + (modp2*modp3-modp2)*
			(mod*(629.0/1792.0)+modp2*(1163.0/1792.0))
		buf[i] = v0 + (vt-v0)*mod
	}
}

// TimeSamples converts a millisecond time to a sample count
// at the given sample rate.
func TimeSamples(timeMS, srate uint32) uint32 {
	return uint32(math.Round(float64(timeMS) * float64(srate) * 0.001))
}

func (o *Ramp) fillState(buf []float32, from, to uint32, mulbuf []float32) {
	if o.Flags&FlagStateRatio != 0 {
		for i := from; i < to; i++ {
			buf[i] = o.V0 * mulbuf[i]
		}
	} else {
		for i := from; i < to; i++ {
			buf[i] = o.V0
		}
	}
}

// Run fills buf with values for the ramp. If a goal is used, it is
// ramped toward; once reached, the goal vt becomes the new state v0.
// If the state and/or goal value is a ratio, mulbuf supplies the
// sequence of value multipliers.
//
// Returns true if the ramp target is not yet reached.
func (o *Ramp) Run(pos *uint32, buf []float32, srate uint32,
	mulbuf []float32) bool {
	bufLen := uint32(len(buf))
	if o.Flags&FlagGoal == 0 {
		o.fillState(buf, 0, bufLen, mulbuf)
		return false
	}
	time := TimeSamples(o.TimeMS, srate)
	if o.Flags&FlagGoalRatio != 0 {
		if o.Flags&FlagStateRatio == 0 {
			// divide v0 and enable ratio to match vt
			o.V0 /= mulbuf[0]
			o.Flags |= FlagStateRatio
		}
	} else {
		if o.Flags&FlagStateRatio != 0 {
			// multiply v0 and disable ratio to match vt
			o.V0 *= mulbuf[0]
			o.Flags &^= FlagStateRatio
		}
	}
	n := time - *pos
	if n > bufLen {
		n = bufLen
	}
	FillFuncs[o.Shape](buf[:n], o.V0, o.Vt, *pos, time)
	if o.Flags&FlagGoalRatio != 0 {
		for i := uint32(0); i < n; i++ {
			buf[i] *= mulbuf[i]
		}
	}
	*pos += n
	if *pos == time {
		// Goal reached; turn into new state and fill any
		// remaining buffer values using it.
		o.V0 = o.Vt
		o.Flags &^= FlagGoal | FlagGoalRatio
		o.fillState(buf, n, bufLen, mulbuf)
		return false
	}
	return true
}

// Skip advances the ramp position by skipLen values without
// generating samples. If the goal is reached, vt becomes the
// new state v0.
//
// Returns true if the ramp target is not yet reached.
func (o *Ramp) Skip(pos *uint32, skipLen, srate uint32) bool {
	if o.Flags&FlagGoal == 0 {
		return false
	}
	time := TimeSamples(o.TimeMS, srate)
	n := time - *pos
	if n > skipLen {
		n = skipLen
	}
	*pos += n
	if *pos == time {
		o.V0 = o.Vt
		if o.Flags&FlagGoalRatio != 0 {
			o.Flags |= FlagStateRatio
		} else {
			o.Flags &^= FlagStateRatio
		}
		o.Flags &^= FlagGoal | FlagGoalRatio
		return false
	}
	return true
}
