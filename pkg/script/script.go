// Package script compiles SAU source into a linear audio program.
// The work happens in three stages: a recursive-descent parse into a
// graph of events and operator references, a lowering pass that
// performs timing inference, grouping, composite flattening and
// modulation-graph construction, and a final conversion that assigns
// stable voice and operator IDs to produce the program form.
package script

import (
	"github.com/hyphop/saugns/pkg/program"
	"github.com/hyphop/saugns/pkg/ramp"
	"github.com/hyphop/saugns/pkg/wave"
)

// Option-changed flags, set when a script assigns a default.
const (
	OptAmpMult uint32 = 1 << iota
	OptA4Freq
	OptDefTime
	OptDefFreq
	OptDefRelFreq
	OptDefChanMix
)

// Options holds the script-wide defaults, as set by 'S' lines.
// The final state is included in the parse result.
type Options struct {
	Changed    uint32
	AmpMult    float32 // amplitude multiplier for non-modulator operators
	A4Freq     float32 // A4 tuning for frequency as note
	DefTimeMS  uint32
	DefFreq    float32
	DefRelFreq float32
	DefChanMix float32
}

// defaultOptions is used until changed in a script.
var defaultOptions = Options{
	AmpMult:    1,
	A4Freq:     444,
	DefTimeMS:  1000,
	DefFreq:    444,
	DefRelFreq: 1,
	DefChanMix: 0,
}

// Operator node list types.
type listType uint8

const (
	listGraph listType = iota
	listFMod
	listPMod
	listAMod
)

// Script data operator flags.
const (
	sdopNewCarrier uint32 = 1 << iota
	sdopLaterUsed
	sdopMultiple
	sdopNested
)

// opList is a modulator list for one script operator node.
type opList struct {
	ops []*opData
}

// opData is the script-data form of one operator update.
type opData struct {
	event   *evData
	opFlags uint32
	opID    uint32
	opParams  uint32
	time      program.Time
	silenceMS uint32
	wave      wave.Type
	freq, freq2 ramp.Ramp
	amp, amp2   ramp.Ramp
	phase       float32
	opPrev *opData // preceding node for same operator
	// A non-nil list replaces the operator's modulators of that
	// kind from this event on; nil means no change.
	fmods, pmods, amods *opList
}

// Script data event flags.
const (
	sdevNewOpGraph uint32 = 1 << iota
	sdevVoiceLaterUsed
)

// evData is the script-data form of one event.
type evData struct {
	next    *evData
	waitMS  uint32
	evFlags uint32
	opAll   []*opData // all operator updates for the event
	voID     uint32
	voParams uint32
	voPrev   *evData // preceding event for same voice
	pan      ramp.Ramp
	opCarriers []*opData
}

// scriptData is the result of lowering a parse.
type scriptData struct {
	events *evData
	name   string
	sopt   Options
}
