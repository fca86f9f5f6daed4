package script

import (
	"fmt"
	"os"

	"github.com/hyphop/saugns/pkg/program"
	"github.com/hyphop/saugns/pkg/ramp"
)

/*
 * Script data construction from parse data.
 *
 * Timing is adjusted and the event list flattened; the per-event
 * operator list becomes flat, with modulator lists kept per
 * operator for recursive traversal in the program build.
 */

// groupEvents adjusts timing for a '|'-terminated event grouping.
// The script syntax for time grouping is only allowed on the "top"
// operator level, so the algorithm only deals with this for the
// events involved.
func groupEvents(to *parseEv) {
	eAfter := to.next
	var wait, waitcount uint32
	for e := to.groupFrom; e != eAfter; {
		for ref := e.opList.refs; ref != nil; ref = ref.next {
			op := ref.data
			if e.next == eAfter && ref == e.opList.lastRef &&
				op.time.Flags&program.TimeSet == 0 {
				/* default for last node in group */
				op.time.Flags |= program.TimeSet
			}
			if wait < op.time.VMs {
				wait = op.time.VMs
			}
		}
		e = e.next
		if e != nil {
			waitcount += e.waitMS
		}
	}
	for e := to.groupFrom; e != eAfter; {
		for ref := e.opList.refs; ref != nil; ref = ref.next {
			op := ref.data
			if op.time.Flags&program.TimeSet == 0 {
				/* fill in sensible default time */
				op.time.VMs = wait + waitcount
				op.time.Flags |= program.TimeSet
			}
		}
		e = e.next
		if e != nil {
			waitcount -= e.waitMS
		}
	}
	to.groupFrom = nil
	if eAfter != nil {
		eAfter.waitMS += wait
	}
}

func timeRamp(rmp *ramp.Ramp, defaultTimeMS uint32) {
	if rmp.Flags&ramp.FlagTime == 0 {
		rmp.TimeMS = defaultTimeMS
	}
}

func timeOperator(op *parseOp) {
	e := op.event
	if op.opFlags&pdopNested != 0 &&
		op.time.Flags&program.TimeSet == 0 {
		if op.opFlags&pdopHasComposite == 0 {
			op.time.Flags |= program.TimeLinked
		}
		op.time.Flags |= program.TimeSet
	}
	if op.time.Flags&program.TimeLinked == 0 {
		timeRamp(&op.freq, op.time.VMs)
		timeRamp(&op.freq2, op.time.VMs)
		timeRamp(&op.amp, op.time.VMs)
		timeRamp(&op.amp2, op.time.VMs)
		if op.opFlags&pdopSilenceAdded == 0 {
			op.time.VMs += op.silenceMS
			op.opFlags |= pdopSilenceAdded
		}
	}
	if e.evFlags&pdevAddWaitDuration != 0 {
		if e.next != nil {
			e.next.waitMS += op.time.VMs
		}
		e.evFlags &^= pdevAddWaitDuration
	}
	for list := op.nestLists; list != nil; list = list.next {
		for ref := list.newRefs; ref != nil; ref = ref.next {
			timeOperator(ref.data)
		}
	}
}

// timeEvent adjusts default ramp durations, handles silence, and
// the case of adding present event duration to the wait time of the
// next event. Composite timing is done before the list is flattened.
func timeEvent(e *parseEv) {
	for ref := e.opList.newRefs; ref != nil; ref = ref.next {
		timeOperator(ref.data)
	}
	if e.composite != nil {
		ce := e.composite
		ceOp := ce.opList.refs.data
		ceOpPrev := ceOp.prev
		eOp := ceOpPrev
		eOp.time.Flags |= program.TimeSet /* always used from now on */
		for {
			ce.waitMS += ceOpPrev.time.VMs
			if ceOp.time.Flags&program.TimeSet == 0 {
				ceOp.time.Flags |= program.TimeSet
				if ceOp.opFlags&(pdopNested|pdopHasComposite) ==
					pdopNested {
					ceOp.time.Flags |= program.TimeLinked
				} else {
					ceOp.time.VMs = ceOpPrev.time.VMs -
						ceOpPrev.silenceMS
				}
			}
			timeEvent(ce)
			if ceOp.time.Flags&program.TimeLinked != 0 {
				eOp.time.Flags |= program.TimeLinked
			} else if eOp.time.Flags&program.TimeLinked == 0 {
				eOp.time.VMs += ceOp.time.VMs +
					(ce.waitMS - ceOpPrev.time.VMs)
			}
			ceOp.opParams &^= program.OpTime
			ceOpPrev = ceOp
			ce = ce.next
			if ce == nil {
				break
			}
			ceOp = ce.opList.refs.data
		}
	}
}

// flattenEvents deals with events that are "composite" (attached to
// a main event as successive "sub-events" rather than part of the
// big, linear event sequence). Such events, if attached to the
// passed event, are given their place in the ordinary event list.
func flattenEvents(e *parseEv) {
	ce := e.composite
	se := e.next
	sePrev := e
	var waitMS, addedWaitMS uint32
	for ce != nil {
		if se == nil {
			/*
			 * No more events in the ordinary sequence,
			 * so append all composites.
			 */
			sePrev.next = ce
			break
		}
		/*
		 * If several events should pass in the ordinary sequence
		 * before the next composite is inserted, skip ahead.
		 */
		waitMS += se.waitMS
		if se.next != nil && (waitMS+se.next.waitMS) <=
			(ce.waitMS+addedWaitMS) {
			sePrev = se
			se = se.next
			continue
		}
		/*
		 * Insert next composite before or after
		 * the next event of the ordinary sequence.
		 */
		ceNext := ce.next
		if se.waitMS >= (ce.waitMS + addedWaitMS) {
			se.waitMS -= ce.waitMS + addedWaitMS
			addedWaitMS = 0
			waitMS = 0
			sePrev.next = ce
			sePrev = ce
			sePrev.next = se
		} else {
			seNext := se.next
			ce.waitMS -= waitMS
			addedWaitMS += ce.waitMS
			waitMS = 0
			se.next = ce
			ce.next = seNext
			sePrev = ce
			se = seNext
		}
		ce = ceNext
	}
	e.composite = nil
}

// opContext is per-operator context for references,
// used during conversion.
type opContext struct {
	newest *parseOp // most recent in time-ordered events
}

// voContext is per-voice context for references,
// used during conversion.
type voContext struct {
	newest *parseEv // most recent in time-ordered events
}

type parseConv struct {
	ev, firstEv *evData
	name        string
	warnedMultiple bool
}

// updateOpContext gets the operator context for a node, updating
// associated data. If the node is ignored, the pdopIgnored flag is
// set before returning nil.
func (o *parseConv) updateOpContext(od *opData,
	pod *parseOp) *opContext {
	var oc *opContext
	if pod.prev == nil {
		oc = &opContext{}
	} else {
		oc = pod.prev.opContext
		if oc == nil {
			/*
			 * This happens for any follow-on nodes
			 * (updates) for nodes not handled.
			 */
			pod.opFlags |= pdopIgnored
			return nil
		}
		odPrev := oc.newest.opConv
		od.opPrev = odPrev
		odPrev.opFlags |= sdopLaterUsed
	}
	oc.newest = pod
	pod.opContext = oc
	return oc
}

// addOpData converts data for an operator node to script operator
// data, adding it to the list used for the current script event.
func (o *parseConv) addOpData(podRef *parseOpRef) bool {
	pod := podRef.data
	od := &opData{}
	e := o.ev
	pod.opConv = od
	od.event = e
	od.opParams = pod.opParams
	od.time = pod.time
	od.silenceMS = pod.silenceMS
	od.wave = pod.wave
	if pod.opFlags&pdopNested != 0 {
		od.opFlags |= sdopNested
	}
	if podRef.listType == listGraph && podRef.mode&refAdd != 0 {
		e.evFlags |= sdevNewOpGraph
		od.opFlags |= sdopNewCarrier
	}
	od.freq = pod.freq
	od.freq2 = pod.freq2
	od.amp = pod.amp
	od.amp2 = pod.amp2
	od.phase = pod.phase
	if o.updateOpContext(od, pod) == nil {
		return false
	}
	e.opAll = append(e.opAll, od)
	return true
}

// addOps recursively creates needed operator data nodes,
// visiting new operator nodes as they branch out.
func (o *parseConv) addOps(pol *parseOpList) {
	if pol == nil {
		return
	}
	for podRef := pol.newRefs; podRef != nil; podRef = podRef.next {
		pod := podRef.data
		if pod.opFlags&pdopMultiple != 0 {
			// Multiple-operator nodes are dropped from lowering.
			if !o.warnedMultiple {
				fmt.Fprintf(os.Stderr,
					"warning: %s: multiple-operator binding unsupported; ignoring\n",
					o.name)
				o.warnedMultiple = true
			}
			pod.opFlags |= pdopIgnored
			continue
		}
		if !o.addOpData(podRef) {
			continue
		}
		for list := pod.nestLists; list != nil; list = list.next {
			o.addOps(list)
		}
	}
}

// linkOps recursively fills in lists for the operator node graph,
// visiting all linked operator nodes as they branch out.
func (o *parseConv) linkOps(ol *opList, pol *parseOpList) {
	if pol == nil {
		return
	}
	for podRef := pol.refs; podRef != nil; podRef = podRef.next {
		pod := podRef.data
		if pod.opFlags&pdopIgnored != 0 {
			continue
		}
		od := pod.opConv
		if ol != nil {
			ol.ops = append(ol.ops, od)
		}
		for list := pod.nestLists; list != nil; list = list.next {
			var dst **opList
			switch list.typ {
			case listFMod:
				dst = &od.fmods
			case listPMod:
				dst = &od.pmods
			case listAMod:
				dst = &od.amods
			default:
				continue
			}
			if *dst == nil {
				*dst = &opList{}
			}
			o.linkOps(*dst, list)
		}
	}
}

// addEvent converts the given event data node and all associated
// operator data nodes.
func (o *parseConv) addEvent(pe *parseEv) {
	e := &evData{}
	pe.evConv = e
	if o.firstEv == nil {
		o.firstEv = e
	} else {
		o.ev.next = e
	}
	o.ev = e
	e.waitMS = pe.waitMS
	var vc *voContext
	if pe.voPrev == nil {
		vc = &voContext{}
		e.evFlags |= sdevNewOpGraph
	} else {
		vc = pe.voPrev.voContext
		voPrev := vc.newest.evConv
		e.voPrev = voPrev
		voPrev.evFlags |= sdevVoiceLaterUsed
	}
	vc.newest = pe
	pe.voContext = vc
	e.voParams = pe.voParams
	e.pan = pe.pan
	o.addOps(&pe.opList)
	if e.evFlags&sdevNewOpGraph != 0 {
		carriers := &opList{}
		o.linkOps(carriers, &pe.opList)
		e.opCarriers = carriers.ops
	} else {
		o.linkOps(nil, &pe.opList)
	}
}

// convertParse converts parser output to script data, performing
// the post-parsing passes: timing adjustments, then flattening of
// the event list while events are converted. Flattening must follow
// the timing pass; otherwise events cannot always be arranged in
// the correct order.
func convertParse(p *parseResult) *scriptData {
	o := parseConv{name: p.name}
	for pe := p.events; pe != nil; pe = pe.next {
		timeEvent(pe)
		if pe.groupFrom != nil {
			groupEvents(pe)
		}
	}
	s := &scriptData{name: p.name, sopt: p.sopt}
	for pe := p.events; pe != nil; pe = pe.next {
		o.addEvent(pe)
		if pe.composite != nil {
			flattenEvents(pe)
		}
	}
	s.events = o.firstEv
	return s
}
