// Package gen implements the audio generator: a pull-mode
// interpreter that walks a program's event timeline, maintains
// per-operator run state, and renders interleaved stereo int16
// sample blocks through recursive operator evaluation with phase,
// frequency and amplitude modulation.
package gen

import (
	"fmt"
	"math"
	"os"

	"github.com/hyphop/saugns/pkg/program"
	"github.com/hyphop/saugns/pkg/ramp"
	"github.com/hyphop/saugns/pkg/wave"
)

// blockLen is the scratch buffer length; rendering proceeds in
// chunks of at most this many frames.
const blockLen = 256

// timeInf is the remaining-time sentinel for linked and infinite
// durations.
const timeInf = ^uint32(0)

type buf [blockLen]float32

// opNode is the run state for one operator.
type opNode struct {
	time    uint32 // remaining samples; timeInf for linked/infinite
	silence uint32
	visited bool
	nested  bool
	wave    wave.Type
	osc     Osc
	freq, freq2 ramp.Ramp
	amp, amp2   ramp.Ramp
	freqPos, freq2Pos uint32
	ampPos, amp2Pos   uint32
	fmods, pmods, amods []uint32
}

// Run node status flags.
const (
	runPrepared uint8 = 1 << iota
	runActive
)

// voiceNode is the run node for a voice; pos counts samples and is
// negative while awaiting activation.
type voiceNode struct {
	pos      int32
	status   uint8
	pan      ramp.Ramp
	panPos   uint32
	carriers []uint32
}

type eventNode struct {
	waittime uint32
	e        *program.Event
}

// Generator interprets a program, advancing simulated time as
// sample blocks are pulled from it. The program itself is never
// mutated and may be shared between generator instances.
type Generator struct {
	srate    uint32
	ampScale float32
	bufs     []buf
	events   []eventNode
	event    int
	eventPos uint32
	voices []voiceNode
	voice  int
	ops    []opNode
	// Click-reduction time snap state: the smallest pending
	// cycle-boundary offset, applied to the next event delay.
	delayOffs int32
	timeOffs  bool
}

// New creates a generator rendering prg at the given sample rate.
func New(prg *program.Program, srate uint32) *Generator {
	o := &Generator{
		srate:    srate,
		ampScale: 1,
		events:   make([]eventNode, len(prg.Events)),
		voices:   make([]voiceNode, prg.VoCount),
		ops:      make([]opNode, prg.OpCount),
	}
	for i := range o.ops {
		o.ops[i].osc = NewOsc(srate)
	}
	if prg.Mode&program.ModeAmpDivVoices != 0 && prg.VoCount > 1 {
		o.ampScale /= float32(prg.VoCount)
	}
	var indexWaittime uint32
	for i := range prg.Events {
		e := &prg.Events[i]
		en := &o.events[i]
		en.e = e
		en.waittime = ramp.TimeSamples(e.WaitMS, srate)
		indexWaittime += en.waittime
		if e.VoData != nil {
			o.voices[e.VoID].pos = -int32(indexWaittime)
			indexWaittime = 0
		}
	}
	return o
}

// calcBufs counts the scratch buffers needed to evaluate an
// operator, including its linked modulators.
func (o *Generator) calcBufs(opID uint32) int {
	n := &o.ops[opID]
	if n.visited {
		fmt.Fprintf(os.Stderr,
			"warning: generator: skipping operator %d; circular references unsupported\n",
			opID)
		return 0
	}
	count := 0
	n.visited = true
	for _, mods := range [3][]uint32{n.fmods, n.pmods, n.amods} {
		for _, id := range mods {
			if res := o.calcBufs(id); res > count {
				count = res
			}
		}
	}
	n.visited = false
	// Per level: output, frequency, modulator output, value
	// pre-image, phase offset, and amplitude buffers.
	return count + 6
}

// upsizeBufs checks the operators of a voice and grows the scratch
// buffer allocation if needed. Buffers are never shrunk.
func (o *Generator) upsizeBufs(vn *voiceNode) {
	count := 0
	for _, id := range vn.carriers {
		if res := o.calcBufs(id); res > count {
			count = res
		}
	}
	if count > len(o.bufs) {
		o.bufs = make([]buf, count)
	}
}

// adjustTime is the click-reduction time snap: the duration is
// shortened to end at a wave cycle boundary, and the delay change
// is carried over to the following event delays.
func (o *Generator) adjustTime(n *opNode) {
	if n.time == 0 || n.time == timeInf {
		return
	}
	posOffs := n.osc.CycleOffs(n.freq.V0, n.time)
	if posOffs <= 0 || uint32(posOffs) >= n.time {
		return
	}
	n.time -= uint32(posOffs)
	if !o.timeOffs || o.delayOffs > posOffs {
		o.delayOffs = posOffs
		o.timeOffs = true
	}
}

// handleEvent processes one event; to be called when its time comes.
// Voice updates are done last, as operator updates may change node
// adjacents, and buffer recalculation is done during voice updates.
func (o *Generator) handleEvent(en *eventNode) {
	e := en.e
	for i := range e.OpData {
		od := &e.OpData[i]
		n := &o.ops[od.ID]
		n.nested = od.Nested
		if od.Params&program.OpAdjcs != 0 {
			if od.FMods != nil {
				n.fmods = od.FMods
			}
			if od.PMods != nil {
				n.pmods = od.PMods
			}
			if od.AMods != nil {
				n.amods = od.AMods
			}
		}
		if od.Params&program.OpWave != 0 {
			n.wave = od.Wave
			n.osc.SetWave(od.Wave)
		}
		adjtime := false
		if od.Params&program.OpTime != 0 {
			if od.Time.Flags&program.TimeLinked != 0 {
				n.time = timeInf
			} else {
				n.time = ramp.TimeSamples(od.Time.VMs, o.srate)
				adjtime = true
			}
		}
		if od.Params&program.OpSilence != 0 {
			n.silence = ramp.TimeSamples(od.SilenceMS, o.srate)
		}
		if od.Params&program.OpFreq != 0 {
			n.freq.Copy(&od.Freq)
			n.freqPos = 0
			adjtime = true
		}
		if od.Params&program.OpFreq2 != 0 {
			n.freq2.Copy(&od.Freq2)
			n.freq2Pos = 0
		}
		if od.Params&program.OpPhase != 0 {
			n.osc.Phase = PhaseFrom(od.Phase)
		}
		if od.Params&program.OpAmp != 0 {
			n.amp.Copy(&od.Amp)
			n.ampPos = 0
		}
		if od.Params&program.OpAmp2 != 0 {
			n.amp2.Copy(&od.Amp2)
			n.amp2Pos = 0
		}
		if !n.nested && adjtime && od.Params&program.OpTime != 0 {
			/* here so a new freq is also used if set */
			o.adjustTime(n)
		}
	}
	if len(o.voices) == 0 {
		return
	}
	vn := &o.voices[e.VoID]
	if vd := e.VoData; vd != nil {
		if vd.Params&program.VoPan != 0 {
			vn.pan.Copy(&vd.Pan)
			vn.panPos = 0
		}
		if vd.Params&program.VoOpList != 0 {
			vn.carriers = vd.Carriers
		}
	}
	o.upsizeBufs(vn)
	vn.status |= runPrepared | runActive
	vn.pos = 0
	if o.voice > int(e.VoID) { /* go back to re-activated node */
		o.voice = int(e.VoID)
	}
}

// runBlock generates up to n samples for an operator node into
// bufs[0], the remainder (if any) zero-filled when accInd is zero.
// Recursively visits the modulators of the node, if any. Returns
// the number of samples generated for the node.
func (o *Generator) runBlock(bufs []buf, n uint32,
	op *opNode, parentFreq []float32, accInd int) uint32 {
	sbuf := bufs[0][:]
	nextbuf := bufs[1:]
	length := n
	/*
	 * If silence, zero-fill and delay processing for duration.
	 */
	var zeroLen uint32
	if op.silence > 0 {
		zeroLen = op.silence
		if zeroLen > length {
			zeroLen = length
		}
		if accInd == 0 {
			for i := uint32(0); i < zeroLen; i++ {
				sbuf[i] = 0
			}
		}
		length -= zeroLen
		if op.time != timeInf {
			op.time -= zeroLen
		}
		op.silence -= zeroLen
		if length == 0 {
			return zeroLen
		}
		sbuf = sbuf[zeroLen:]
	}
	/*
	 * Guard against circular references.
	 */
	if op.visited {
		for i := uint32(0); i < length; i++ {
			sbuf[i] = 0
		}
		return zeroLen + length
	}
	op.visited = true
	/*
	 * Limit length to time duration of operator.
	 */
	var skipLen uint32
	if op.time != timeInf && op.time < length {
		skipLen = length - op.time
		length = op.time
	}
	/*
	 * Handle frequency (alternatively ratio) parameter, including
	 * frequency modulation if modulators linked.
	 */
	freq := nextbuf[0][:length]
	nextbuf = nextbuf[1:]
	op.freq.Run(&op.freqPos, freq, o.srate, parentFreq)
	if len(op.fmods) > 0 {
		for i, id := range op.fmods {
			o.runBlockWaveEnv(nextbuf, length, &o.ops[id], freq, i)
		}
		fmbuf := nextbuf[0][:length]
		dyn := nextbuf[1][:length]
		op.freq2.Run(&op.freq2Pos, dyn, o.srate, parentFreq)
		for i := range freq {
			freq[i] += (dyn[i] - freq[i]) * fmbuf[i]
		}
	}
	/*
	 * If phase modulators linked, get phase offsets for modulation.
	 */
	var pm []float32
	if len(op.pmods) > 0 {
		for i, id := range op.pmods {
			o.runBlock(nextbuf, length, &o.ops[id], freq, i)
		}
		pm = nextbuf[0][:length]
		nextbuf = nextbuf[1:]
	}
	/*
	 * Handle amplitude parameter, including amplitude modulation
	 * if modulators linked.
	 */
	var amp []float32
	if len(op.amods) > 0 {
		for i, id := range op.amods {
			o.runBlockWaveEnv(nextbuf, length, &o.ops[id], freq, i)
		}
		am := nextbuf[0][:length]
		ampv := nextbuf[1][:length]
		dynv := nextbuf[2][:length]
		op.amp.Run(&op.ampPos, ampv, o.srate, parentFreq)
		op.amp2.Run(&op.amp2Pos, dynv, o.srate, parentFreq)
		for i := range am {
			am[i] = ampv[i] + am[i]*(dynv[i]-ampv[i])
		}
		amp = am
	} else {
		amp = nextbuf[0][:length]
		op.amp.Run(&op.ampPos, amp, o.srate, parentFreq)
	}
	/*
	 * Generate integer-scale output - either for voice output or
	 * phase modulation input.
	 */
	for i := uint32(0); i < length; i++ {
		var spm int32
		if pm != nil {
			spm = int32(pm[i]) << 16
		}
		s := op.osc.Run(freq[i], spm) * amp[i] * math.MaxInt16
		if accInd > 0 {
			s += sbuf[i]
		}
		sbuf[i] = s
	}
	/*
	 * Update time duration left, zero rest of buffer if unfilled.
	 */
	if op.time != timeInf {
		if accInd == 0 && skipLen > 0 {
			tail := sbuf[length : length+skipLen]
			for i := range tail {
				tail[i] = 0
			}
		}
		op.time -= length
	}
	op.visited = false
	return zeroLen + length
}

// runBlockWaveEnv is the wave envelope variant of runBlock,
// producing values in the 0.0 to 1.0 range for use in modulating
// frequency or amplitude. Sibling outputs multiply rather than add.
func (o *Generator) runBlockWaveEnv(bufs []buf, n uint32,
	op *opNode, parentFreq []float32, accInd int) uint32 {
	sbuf := bufs[0][:]
	nextbuf := bufs[1:]
	length := n
	var zeroLen uint32
	if op.silence > 0 {
		zeroLen = op.silence
		if zeroLen > length {
			zeroLen = length
		}
		if accInd == 0 {
			for i := uint32(0); i < zeroLen; i++ {
				sbuf[i] = 0
			}
		}
		length -= zeroLen
		if op.time != timeInf {
			op.time -= zeroLen
		}
		op.silence -= zeroLen
		if length == 0 {
			return zeroLen
		}
		sbuf = sbuf[zeroLen:]
	}
	if op.visited {
		for i := uint32(0); i < length; i++ {
			sbuf[i] = 0
		}
		return zeroLen + length
	}
	op.visited = true
	var skipLen uint32
	if op.time != timeInf && op.time < length {
		skipLen = length - op.time
		length = op.time
	}
	freq := nextbuf[0][:length]
	nextbuf = nextbuf[1:]
	op.freq.Run(&op.freqPos, freq, o.srate, parentFreq)
	if len(op.fmods) > 0 {
		for i, id := range op.fmods {
			o.runBlockWaveEnv(nextbuf, length, &o.ops[id], freq, i)
		}
		fmbuf := nextbuf[0][:length]
		dyn := nextbuf[1][:length]
		op.freq2.Run(&op.freq2Pos, dyn, o.srate, parentFreq)
		for i := range freq {
			freq[i] += (dyn[i] - freq[i]) * fmbuf[i]
		}
	}
	var pm []float32
	if len(op.pmods) > 0 {
		for i, id := range op.pmods {
			o.runBlock(nextbuf, length, &o.ops[id], freq, i)
		}
		pm = nextbuf[0][:length]
		nextbuf = nextbuf[1:]
	}
	for i := uint32(0); i < length; i++ {
		var spm int32
		if pm != nil {
			spm = int32(pm[i]) << 16
		}
		s := op.osc.RunEnv(freq[i], spm)
		if accInd > 0 {
			s *= sbuf[i]
		}
		sbuf[i] = s
	}
	if op.time != timeInf {
		if accInd == 0 && skipLen > 0 {
			tail := sbuf[length : length+skipLen]
			for i := range tail {
				tail[i] = 0
			}
		}
		op.time -= length
	}
	op.visited = false
	return zeroLen + length
}

func mixAdd(out []int16, i uint32, v float32) {
	t := int32(out[i]) + int32(math.Round(float64(v)))
	if t > math.MaxInt16 {
		t = math.MaxInt16
	} else if t < math.MinInt16 {
		t = math.MinInt16
	}
	out[i] = int16(t)
}

// mixOutput mixes the first scratch buffer into the interleaved
// stereo output for a voice. The second scratch buffer is used for
// panning when the pan setting is ramped.
func (o *Generator) mixOutput(vn *voiceNode, out []int16, n uint32) {
	sBuf := o.bufs[0][:]
	scale := o.ampScale
	if vn.pan.Flags&ramp.FlagGoal != 0 {
		panBuf := o.bufs[1][:n]
		vn.pan.Run(&vn.panPos, panBuf, o.srate, nil)
		for i := uint32(0); i < n; i++ {
			s := sBuf[i] * scale
			p := s * (panBuf[i]*0.5 + 0.5)
			mixAdd(out, 2*i, s-p)
			mixAdd(out, 2*i+1, p)
		}
	} else {
		for i := uint32(0); i < n; i++ {
			s := sBuf[i] * scale
			p := s * (vn.pan.V0*0.5 + 0.5)
			mixAdd(out, 2*i, s-p)
			mixAdd(out, 2*i+1, p)
		}
	}
}

// runVoice generates up to n frames for a voice, mixed into the
// interleaved stereo output buffer by addition. Returns the number
// of frames generated for the voice.
func (o *Generator) runVoice(vn *voiceNode, out []int16, n uint32) uint32 {
	var outLen uint32
	if len(vn.carriers) == 0 {
		vn.status &^= runActive
		return 0
	}
	var time uint32
	for _, id := range vn.carriers {
		opn := &o.ops[id]
		if opn.time == 0 || opn.time == timeInf {
			continue
		}
		if opn.time > time {
			time = opn.time
		}
	}
	if time > n {
		time = n
	}
	/*
	 * Repeatedly generate up to blockLen samples until done.
	 */
	sp := out
	for time > 0 {
		length := time
		if length > blockLen {
			length = blockLen
		}
		time -= length
		accInd := 0
		var genLen uint32
		for _, id := range vn.carriers {
			opn := &o.ops[id]
			if opn.time == 0 {
				continue
			}
			lastLen := o.runBlock(o.bufs, length, opn, nil, accInd)
			accInd++
			if lastLen > genLen {
				genLen = lastLen
			}
		}
		if genLen == 0 {
			break
		}
		o.mixOutput(vn, sp, genLen)
		sp = sp[2*genLen:]
		outLen += genLen
	}
	finished := true
	for _, id := range vn.carriers {
		if o.ops[id].time != 0 && o.ops[id].time != timeInf {
			finished = false
			break
		}
	}
	vn.pos += int32(outLen)
	if finished {
		vn.status &^= runActive
	}
	return outLen
}

// Run is the main sound generation function. Call repeatedly to
// write up to frames new frames into the interleaved stereo buffer
// buf; values beyond the generated length are zeroed. Returns the
// precise number of frames generated, and whether further calls are
// needed to complete the signal.
func (o *Generator) Run(buf []int16, frames uint32) (uint32, bool) {
	out := buf[:2*frames]
	for i := range out {
		out[i] = 0
	}
	length := frames
	var genLen uint32
	for {
		/*
		 * Event pump: shorten the block to the next pending wait
		 * so that event boundaries are sample-exact; remainders
		 * are processed in a second pass below.
		 */
		var skipLen uint32
		for o.event < len(o.events) {
			en := &o.events[o.event]
			if o.eventPos < en.waittime {
				if o.timeOffs {
					/* delay change == previous time change */
					d := uint32(o.delayOffs)
					if rem := en.waittime - o.eventPos; rem < d {
						d = rem
					}
					en.waittime -= d
					o.timeOffs = false
					o.delayOffs = 0
					if o.eventPos >= en.waittime {
						o.handleEvent(en)
						o.event++
						o.eventPos = 0
						continue
					}
				}
				waittime := en.waittime - o.eventPos
				if waittime < length {
					skipLen = length - waittime
					length = waittime
				}
				o.eventPos += length
				break
			}
			o.handleEvent(en)
			o.event++
			o.eventPos = 0
		}
		var lastLen uint32
		for i := o.voice; i < len(o.voices); i++ {
			vn := &o.voices[i]
			if vn.pos < 0 {
				waittime := uint32(-vn.pos)
				if waittime >= length {
					vn.pos += int32(length)
					break /* end for now; waits accumulate across nodes */
				}
				out = out[2*waittime:]
				length -= waittime
				vn.pos = 0
			}
			if vn.status&runActive != 0 {
				voiceLen := o.runVoice(vn, out, length)
				if voiceLen > lastLen {
					lastLen = voiceLen
				}
			}
		}
		genLen += lastLen
		if skipLen == 0 {
			break
		}
		out = out[2*length:]
		length = skipLen
	}
	/*
	 * Advance starting voice and check for end of signal.
	 */
	for {
		if o.voice == len(o.voices) {
			if o.event != len(o.events) {
				break
			}
			/* the end */
			return genLen, false
		}
		vn := &o.voices[o.voice]
		if vn.status&runPrepared == 0 || vn.status&runActive != 0 {
			break
		}
		o.voice++
	}
	/*
	 * Further calls needed to complete signal.
	 */
	return frames, true
}

// SRate returns the generator's sample rate.
func (o *Generator) SRate() uint32 {
	return o.srate
}
