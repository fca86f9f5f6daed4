package script

import (
	"fmt"
	"math"
	"os"

	"github.com/hyphop/saugns/pkg/program"
)

/*
 * Program construction from script data.
 *
 * Allocation of events, voices, operators.
 */

func opListIDs(ol *opList) []uint32 {
	ids := make([]uint32, 0, len(ol.ops))
	for _, od := range ol.ops {
		ids = append(ids, od.opID)
	}
	return ids
}

// Voice allocation state flags.
const (
	vaOpList uint32 = 1 << 0
)

// vaState is per-voice state used during program data allocation.
type vaState struct {
	lastEv     *evData
	carriers   []uint32
	flags      uint32
	durationMS uint32
}

// voiceDuration returns the longest operator duration among
// top-level operators for the graph of the voice event.
func voiceDuration(e *evData) uint32 {
	var durationMS uint32
	for _, op := range e.opCarriers {
		if op.time.VMs > durationMS {
			durationMS = op.time.VMs
		}
	}
	return durationMS
}

// Operator allocation state flags.
const (
	oaVisited uint32 = 1 << 0
)

// oaState is per-operator state used during program data allocation.
type oaState struct {
	lastSod *opData
	fmods, pmods, amods []uint32
	flags   uint32
}

type scriptConv struct {
	events []program.Event
	va     []vaState
	oa     []oaState
	ev     *program.Event
	evVoOplist []program.OpRef
	evOpData   []program.OpData
	opNestLevel, opNestMax uint32
	durationMS uint32
}

// voAllocGetID returns the voice ID for an event, reusing an
// expired voice without later use if one exists.
func (o *scriptConv) voAllocGetID(e *evData) uint32 {
	if e.voPrev != nil {
		return e.voPrev.voID
	}
	for id := range o.va {
		vas := &o.va[id]
		if vas.lastEv.evFlags&sdevVoiceLaterUsed == 0 &&
			vas.durationMS == 0 {
			*vas = vaState{}
			return uint32(id)
		}
	}
	o.va = append(o.va, vaState{})
	return uint32(len(o.va) - 1)
}

// voAllocUpdate updates voices for an event and returns its
// voice ID.
func (o *scriptConv) voAllocUpdate(e *evData) uint32 {
	for id := range o.va {
		if o.va[id].durationMS < e.waitMS {
			o.va[id].durationMS = 0
		} else {
			o.va[id].durationMS -= e.waitMS
		}
	}
	voID := o.voAllocGetID(e)
	e.voID = voID
	vas := &o.va[voID]
	vas.lastEv = e
	vas.flags &^= vaOpList
	if e.evFlags&sdevNewOpGraph != 0 {
		vas.durationMS = voiceDuration(e)
	}
	return voID
}

// opAllocUpdate updates operators for an update node and returns
// its operator ID. Expired operator IDs are not recycled.
func (o *scriptConv) opAllocUpdate(od *opData) uint32 {
	var opID uint32
	if od.opPrev != nil {
		opID = od.opPrev.opID
	} else {
		opID = uint32(len(o.oa))
		o.oa = append(o.oa, oaState{})
	}
	od.opID = opID
	o.oa[opID].lastSod = od
	return opID
}

// convertOpdata converts data for an operator node to program
// operator data, adding it to the list used for the current
// program event.
func (o *scriptConv) convertOpdata(op *opData, opID uint32) {
	ood := program.OpData{
		ID:        opID,
		Params:    op.opParams,
		Nested:    op.opFlags&sdopNested != 0,
		Wave:      op.wave,
		Time:      op.time,
		SilenceMS: op.silenceMS,
		Freq:      op.freq,
		Freq2:     op.freq2,
		Amp:       op.amp,
		Amp2:      op.amp2,
		Phase:     op.phase,
	}
	o.evOpData = append(o.evOpData, ood)
}

// convertOps converts the flat script operator data list in two
// stages, adding all the operator data nodes, then filling in the
// modulator lists when all nodes are registered.
func (o *scriptConv) convertOps(e *evData) {
	for _, op := range e.opAll {
		opID := o.opAllocUpdate(op)
		o.convertOpdata(op, opID)
	}
	for i := range o.evOpData {
		od := &o.evOpData[i]
		vas := &o.va[o.ev.VoID]
		oas := &o.oa[od.ID]
		sod := oas.lastSod
		if sod.fmods != nil {
			vas.flags |= vaOpList
			oas.fmods = opListIDs(sod.fmods)
			od.FMods = oas.fmods
		}
		if sod.pmods != nil {
			vas.flags |= vaOpList
			oas.pmods = opListIDs(sod.pmods)
			od.PMods = oas.pmods
		}
		if sod.amods != nil {
			vas.flags |= vaOpList
			oas.amods = opListIDs(sod.amods)
			od.AMods = oas.amods
		}
	}
}

// traverseOpList traverses an operator list,
// as part of building a graph for the voice.
func (o *scriptConv) traverseOpList(ids []uint32, use uint8) {
	for _, id := range ids {
		o.traverseOpNode(program.OpRef{
			ID:    id,
			Use:   use,
			Level: uint8(o.opNestLevel),
		})
	}
}

// traverseOpNode traverses parts of the voice operator graph
// reached from an operator node, adding the reference after
// traversal of its modulator lists.
func (o *scriptConv) traverseOpNode(ref program.OpRef) {
	oas := &o.oa[ref.ID]
	if oas.flags&oaVisited != 0 {
		fmt.Fprintf(os.Stderr,
			"warning: scriptconv: skipping operator %d; circular references unsupported\n",
			ref.ID)
		return
	}
	if o.opNestLevel > o.opNestMax {
		o.opNestMax = o.opNestLevel
	}
	o.opNestLevel++
	oas.flags |= oaVisited
	if oas.fmods != nil {
		o.traverseOpList(oas.fmods, program.UseFMod)
	}
	if oas.pmods != nil {
		o.traverseOpList(oas.pmods, program.UsePMod)
	}
	if oas.amods != nil {
		o.traverseOpList(oas.amods, program.UseAMod)
	}
	oas.flags &^= oaVisited
	o.opNestLevel--
	o.evVoOplist = append(o.evVoOplist, ref)
}

// traverseVoice traverses the operator graph for a voice built
// during allocation, assigning the operator reference list to the
// voice data.
func (o *scriptConv) traverseVoice(vd *program.VoData, vas *vaState) {
	if vas.carriers == nil {
		return
	}
	o.traverseOpList(vas.carriers, program.UseCarr)
	vd.OpList = append([]program.OpRef(nil), o.evVoOplist...)
	o.evVoOplist = o.evVoOplist[:0] // reuse allocation
}

// convertEvent converts all voice and operator data for a script
// event node into an output event.
func (o *scriptConv) convertEvent(e *evData) {
	voID := o.voAllocUpdate(e)
	vas := &o.va[voID]
	o.events = append(o.events, program.Event{
		WaitMS: e.waitMS,
		VoID:   voID,
	})
	o.ev = &o.events[len(o.events)-1]
	o.convertOps(e)
	if len(o.evOpData) > 0 {
		o.ev.OpData = append([]program.OpData(nil), o.evOpData...)
		o.evOpData = o.evOpData[:0] // reuse allocation
	}
	voParams := e.voParams
	if e.evFlags&sdevNewOpGraph != 0 {
		vas.flags |= vaOpList
	}
	if vas.flags&vaOpList != 0 {
		voParams |= program.VoOpList
	}
	if voParams != 0 {
		ovd := &program.VoData{
			Params: voParams,
			Pan:    e.pan,
		}
		if e.evFlags&sdevNewOpGraph != 0 {
			carriers := &opList{ops: e.opCarriers}
			vas.carriers = opListIDs(carriers)
		}
		ovd.Carriers = vas.carriers
		o.ev.VoData = ovd
		if vas.flags&vaOpList != 0 {
			o.traverseVoice(ovd, vas)
		}
	}
}

// buildProgram allocates events, voices, and operators,
// producing the final program.
func buildProgram(sd *scriptData) (*program.Program, error) {
	o := scriptConv{}
	for e := sd.events; e != nil; e = e.next {
		o.convertEvent(e)
		o.durationMS += e.waitMS
	}
	var remainingMS uint32
	for i := range o.va {
		if o.va[i].durationMS > remainingMS {
			remainingMS = o.va[i].durationMS
		}
	}
	o.durationMS += remainingMS

	prg := &program.Program{
		Name:        sd.name,
		Events:      o.events,
		VoCount:     uint32(len(o.va)),
		OpCount:     uint32(len(o.oa)),
		OpNestDepth: o.opNestMax,
		DurationMS:  o.durationMS,
	}
	if sd.sopt.Changed&OptAmpMult == 0 {
		/*
		 * Enable amplitude scaling (division) by voice count,
		 * handled by the audio generator.
		 */
		prg.Mode |= program.ModeAmpDivVoices
	}
	if len(o.va) > math.MaxUint16 {
		return nil, fmt.Errorf(
			"number of voices used cannot exceed %d", math.MaxUint16)
	}
	if o.opNestMax > math.MaxUint8 {
		return nil, fmt.Errorf(
			"operators nested %d levels, maximum is %d levels",
			o.opNestMax, math.MaxUint8)
	}
	return prg, nil
}

// Load compiles one script, given by path or as inline text, into
// its program form. Parse problems are reported as warnings and do
// not fail the load; a non-nil error means no program could be
// built at all.
func Load(arg string, isPath bool) (*program.Program, error) {
	p, err := parseScript(arg, isPath)
	if err != nil {
		return nil, err
	}
	sd := convertParse(p)
	prg, err := buildProgram(sd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	return prg, nil
}
