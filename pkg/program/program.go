// Package program defines the linear, time-ordered form of a
// compiled script: a vector of events carrying voice and operator
// updates with stable IDs. A Program is immutable after build and
// may be shared between generator instances.
package program

import (
	"github.com/hyphop/saugns/pkg/ramp"
	"github.com/hyphop/saugns/pkg/wave"
)

// TimeInf is a time value that PrintInfo shows as infinite. The
// script build does not assign it; "ti" on a nested operator is
// recorded with the TimeLinked flag instead.
const TimeInf = ^uint32(0)

// Time is a duration in milliseconds with parse state flags.
type Time struct {
	VMs   uint32
	Flags uint8
}

// Time flags.
const (
	// TimeSet is set once a duration has been decided.
	TimeSet uint8 = 1 << iota
	// TimeLinked marks a duration inherited from the enclosing
	// carrier at render time.
	TimeLinked
)

// Operator parameter flags, for the per-update changed bitmask.
const (
	OpTime uint32 = 1 << iota
	OpSilence
	OpWave
	OpFreq
	OpFreq2
	OpPhase
	OpAmp
	OpAmp2
	OpAdjcs
)

// OpParamsMask covers all operator parameters.
const OpParamsMask = (OpAdjcs << 1) - 1

// Voice parameter flags.
const (
	VoPan uint32 = 1 << iota
	VoOpList
)

// VoParamsMask covers all voice parameters.
const VoParamsMask = (VoOpList << 1) - 1

// Operator use types within a voice graph.
const (
	UseCarr uint8 = iota
	UseFMod
	UsePMod
	UseAMod
	NumUses
)

// UseNames holds print labels for the use types.
var UseNames = [NumUses]string{"CA", "FM", "PM", "AM"}

// OpRef is an entry in a voice's operator traversal list.
type OpRef struct {
	ID    uint32
	Use   uint8
	Level uint8
}

// OpData is an operator update: the changed-parameter bitmask and
// the new values for the parameters it names. A nil modulator list
// means no change to that list.
type OpData struct {
	ID     uint32
	Params uint32
	Nested bool
	Wave   wave.Type
	Time   Time
	SilenceMS uint32
	Freq, Freq2 ramp.Ramp
	Amp, Amp2   ramp.Ramp
	Phase  float32
	FMods, PMods, AMods []uint32
}

// VoData is a voice update.
type VoData struct {
	Params uint32
	Pan    ramp.Ramp
	// Carriers lists the top-level operators of the voice graph.
	Carriers []uint32
	// OpList is the complete traversal of the voice graph,
	// innermost modulators first.
	OpList []OpRef
}

// Event is one step of the timeline: a wait relative to the
// previous event, then an optional voice update and zero or more
// operator updates.
type Event struct {
	WaitMS uint32
	VoID   uint32
	VoData *VoData
	OpData []OpData
}

// Program mode flags.
const (
	// ModeAmpDivVoices scales amplitude down by the voice count.
	ModeAmpDivVoices uint8 = 1 << iota
)

// Program is the compiled, immutable form of one script.
type Program struct {
	Name        string
	Events      []Event
	Mode        uint8
	VoCount     uint32
	OpCount     uint32
	OpNestDepth uint32
	DurationMS  uint32
}
