package script

import (
	"fmt"
	"math"
	"os"

	"github.com/hyphop/saugns/pkg/program"
	"github.com/hyphop/saugns/pkg/ramp"
	"github.com/hyphop/saugns/pkg/scanner"
	"github.com/hyphop/saugns/pkg/wave"
)

/*
 * Parse data.
 */

// Operator reference modes.
const (
	refUpdate uint8 = 0
	refAdd    uint8 = 1 << 0
)

// parseOpRef is a listed reference to an operator node, with the
// label it may carry and how it entered the list.
type parseOpRef struct {
	data     *parseOp
	labelSym *scanner.SymStr
	mode     uint8
	listType listType
	next     *parseOpRef
}

// parseOpList collects operator references for an event or a
// nest scope.
type parseOpList struct {
	typ     listType
	refs    *parseOpRef
	newRefs *parseOpRef
	lastRef *parseOpRef
	next    *parseOpList
}

func (ol *parseOpList) add(data *parseOp, mode uint8) *parseOpRef {
	ref := &parseOpRef{data: data, mode: mode, listType: ol.typ}
	if ol.refs == nil {
		ol.refs = ref
	}
	if ol.newRefs == nil {
		ol.newRefs = ref
	} else {
		ol.lastRef.next = ref
	}
	ol.lastRef = ref
	return ref
}

// Parse data operator flags.
const (
	pdopNested uint32 = 1 << iota
	pdopMultiple
	pdopSilenceAdded
	pdopHasComposite
	pdopIgnored
)

// parseOp is the parse-graph node for one operator step.
type parseOp struct {
	event     *parseEv
	nextBound *parseOp
	opFlags   uint32
	opParams  uint32
	time      program.Time
	silenceMS uint32
	wave      wave.Type
	freq, freq2 ramp.Ramp
	amp, amp2   ramp.Ramp
	phase       float32
	prev *parseOp // preceding node for same operator
	nestLists    *parseOpList
	lastNestList *parseOpList
	// for parseconv
	opConv    *opData
	opContext *opContext
}

// Parse data event flags.
const (
	pdevAddWaitDuration uint32 = 1 << iota
)

// parseEv is the parse-graph node for one event. Includes any voice
// and operator data part of the event.
type parseEv struct {
	next      *parseEv
	groupFrom *parseEv
	composite *parseEv
	waitMS    uint32
	evFlags   uint32
	opList    parseOpList
	voParams uint32
	voPrev   *parseEv // preceding event for voice
	pan      ramp.Ramp
	// for parseconv
	evConv    *evData
	voContext *voContext
}

// parseResult is the parser output handed to lowering.
type parseResult struct {
	events *parseEv
	name   string
	sopt   Options
}

/*
 * Parser.
 */

type parser struct {
	sopt      Options
	waveNames []*scanner.SymStr
	rampNames []*scanner.SymStr
	sc        *scanner.Scanner
	st        *scanner.SymTab
	callLevel int
	// node state
	ev, firstEv *parseEv
}

func isVisible(c byte) bool { return c >= '!' && c <= '~' }

// handleUnknownOrEOF warns for an unknown character, treating it as
// invalid unless it is an end marker. Returns false at EOF.
func (o *parser) handleUnknownOrEOF(c byte) bool {
	if c == scanner.EOF {
		return false
	}
	if isVisible(c) {
		o.sc.Warning("invalid character '%c'", c)
	} else {
		o.sc.Warning("invalid character (value 0x%02X)", c)
	}
	return true
}

func (o *parser) warnEOFWithoutClosing(c byte) {
	o.sc.Warning("end of file without closing '%c'", c)
}

func (o *parser) warnClosingWithoutOpening(closeC, openC byte) {
	o.sc.Warning("closing '%c' without opening '%c'", closeC, openC)
}

/*
 * Numeric expressions: a precedence climber over the levels
 * NUM < POW < MLT < ADT < SUB (parenthesized).
 */

const (
	numExpSub = iota
	numExpAdt
	numExpMlt
	numExpPow
	numExpNum
)

type numParser struct {
	o         *parser
	numconst  scanner.NumConstFunc
	hasInfNum bool
}

func (np *numParser) scanNumR(pri, level int) float64 {
	sc := np.o.sc
	var num float64
	minus := false
	if level == 1 {
		sc.SetWsLevel(scanner.WsNone)
	}
	c := sc.Getc()
	if level > 0 && (c == '+' || c == '-') {
		if c == '-' {
			minus = true
		}
		c = sc.Getc()
	}
	if c == '(' {
		num = np.scanNumR(numExpSub, level+1)
	} else {
		sc.Ungetc()
		var readLen int
		num, readLen = sc.Getd(np.numconst)
		if readLen == 0 {
			return math.NaN()
		}
		if math.IsNaN(num) {
			return math.NaN()
		}
	}
	if minus {
		num = -num
	}
	if level == 0 || pri == numExpNum {
		return num /* defer all */
	}
Loop:
	for {
		if math.IsInf(num, 0) {
			np.hasInfNum = true
		}
		c = sc.Getc()
		switch c {
		case '(':
			if pri >= numExpMlt {
				break Loop
			}
			num *= np.scanNumR(numExpSub, level+1)
		case ')':
			if pri != numExpSub {
				break Loop
			}
			return num
		case '^':
			if pri >= numExpPow {
				break Loop
			}
			num = math.Exp(math.Log(num) * np.scanNumR(numExpPow, level))
		case '*':
			if pri >= numExpMlt {
				break Loop
			}
			num *= np.scanNumR(numExpMlt, level)
		case '/':
			if pri >= numExpMlt {
				break Loop
			}
			num /= np.scanNumR(numExpMlt, level)
		case '+':
			if pri >= numExpAdt {
				break Loop
			}
			num += np.scanNumR(numExpAdt, level)
		case '-':
			if pri >= numExpAdt {
				break Loop
			}
			num -= np.scanNumR(numExpAdt, level)
		default:
			if pri == numExpSub {
				sc.Warning(
					"numerical expression has '(' without closing ')'")
			}
			break Loop
		}
		if math.IsNaN(num) {
			break Loop
		}
	}
	sc.Ungetc()
	return num
}

func (o *parser) scanNum(numconst scanner.NumConstFunc,
	v *float32) bool {
	np := numParser{o: o, numconst: numconst}
	wsLevel := o.sc.WsLevel()
	num := np.scanNumR(numExpNum, 0)
	o.sc.SetWsLevel(wsLevel) // restore if changed
	if math.IsNaN(num) {
		return false
	}
	if math.IsInf(num, 0) {
		np.hasInfNum = true
	}
	if np.hasInfNum {
		o.sc.Warning("discarding expression with infinite number")
		return false
	}
	*v = float32(num)
	return true
}

func (o *parser) scanTimeVal(val *uint32) bool {
	var valS float32
	if !o.scanNum(nil, &valS) {
		return false
	}
	if valS < 0 {
		o.sc.Warning("discarding negative time value")
		return false
	}
	*val = uint32(math.Round(float64(valS) * 1000))
	return true
}

/*
 * Named numeric constants.
 */

func scanChanMixConst(sc *scanner.Scanner) (float64, int) {
	switch sc.RawGetc() {
	case 'C':
		return 0, 1
	case 'L':
		return -1, 1
	case 'R':
		return 1, 1
	case scanner.EOF:
		return 0, 0
	default:
		sc.RawUnget(1)
		return 0, 0
	}
}

const numOctaves = 11

var noteOctaves = [numOctaves]float32{
	1.0 / 16,
	1.0 / 8,
	1.0 / 4,
	1.0 / 2,
	1, /* no. 4 - standard tuning here */
	2,
	4,
	8,
	16,
	32,
	64,
}

// Three just-intonation scales; the middle one has 9/8 replaced
// with 10/9 for symmetry.
var noteScales = [3][8]float32{
	{ /* flat */
		48.0 / 25,
		16.0 / 15,
		6.0 / 5,
		32.0 / 25,
		36.0 / 25,
		8.0 / 5,
		9.0 / 5,
		96.0 / 25,
	},
	{ /* normal */
		1,
		10.0 / 9,
		5.0 / 4,
		4.0 / 3,
		3.0 / 2,
		5.0 / 3,
		15.0 / 8,
		2,
	},
	{ /* sharp */
		25.0 / 24,
		75.0 / 64,
		125.0 / 96,
		25.0 / 18,
		25.0 / 16,
		225.0 / 128,
		125.0 / 64,
		25.0 / 12,
	},
}

func (o *parser) scanNoteConst(sc *scanner.Scanner) (float64, int) {
	readLen := 0
	c := sc.RawGetc()
	if c == scanner.EOF {
		return 0, 0
	}
	readLen++
	subnote := -1
	if c >= 'a' && c <= 'g' {
		subnote = int(c) - 'c'
		if subnote < 0 { /* a, b */
			subnote += 7
		}
		c = sc.RawGetc()
		if c != scanner.EOF {
			readLen++
		}
	}
	if c < 'A' || c > 'G' {
		sc.RawUnget(readLen)
		return 0, 0
	}
	note := int(c) - 'C'
	if note < 0 { /* A, B */
		note += 7
	}
	semitone := 1
	c = sc.RawGetc()
	switch c {
	case 's':
		semitone = 2
		readLen++
	case 'f':
		semitone = 0
		readLen++
	case scanner.EOF:
	default:
		sc.RawUnget(1)
	}
	octave, numLen := sc.Geti()
	readLen += numLen
	if numLen == 0 {
		octave = 4
	} else if octave >= numOctaves {
		sc.Warning(
			"invalid octave specified for note, using 4 (valid range 0-10)")
		octave = 4
	}
	freq := o.sopt.A4Freq * (3.0 / 5.0) /* get C4 */
	freq *= noteOctaves[octave] * noteScales[semitone][note]
	if subnote >= 0 {
		freq *= 1 + (noteScales[semitone][note+1]/
			noteScales[semitone][note]-1)*
			(noteScales[1][subnote]-1)
	}
	return float64(freq), readLen
}

func (o *parser) scanLabel(op byte) *scanner.SymStr {
	symstr := o.sc.GetSymStr()
	if symstr == nil {
		o.sc.Warning("ignoring %c without label name", op)
	}
	return symstr
}

func printNames(strs []*scanner.SymStr) {
	fmt.Fprint(os.Stderr, "\t")
	for i, s := range strs {
		if i > 0 {
			fmt.Fprint(os.Stderr, ", ")
		}
		fmt.Fprint(os.Stderr, s.Key)
	}
	fmt.Fprintln(os.Stderr)
}

func (o *parser) scanSymafind(stra []*scanner.SymStr,
	printType string) (int, bool) {
	symstr := o.sc.GetSymStr()
	if symstr == nil {
		o.sc.Warning("%s type value missing", printType)
		return 0, false
	}
	for i, s := range stra {
		if s == symstr {
			return i, true
		}
	}
	o.sc.Warning("invalid %s type value; available are:", printType)
	printNames(stra)
	return 0, false
}

func (o *parser) scanWavetype() (wave.Type, bool) {
	id, ok := o.scanSymafind(o.waveNames, "wave")
	return wave.Type(id), ok
}

func (o *parser) scanRampState(numconst scanner.NumConstFunc,
	rmp *ramp.Ramp, mult bool) bool {
	if !o.scanNum(numconst, &rmp.V0) {
		return false
	}
	if mult {
		rmp.Flags |= ramp.FlagStateRatio
	} else {
		rmp.Flags &^= ramp.FlagStateRatio
	}
	rmp.Flags |= ramp.FlagState
	return true
}

func (o *parser) scanRamp(numconst scanner.NumConstFunc,
	rmp *ramp.Ramp, mult bool) bool {
	if !o.sc.Tryc('{') {
		return o.scanRampState(numconst, rmp, mult)
	}
	goal := false
	timeSet := rmp.Flags&ramp.FlagTime != 0
	var vt float32
	timeMS := o.sopt.DefTimeMS
	shape := rmp.Shape // has default
	if rmp.Flags&ramp.FlagGoal != 0 {
		// allow partial change
		if (rmp.Flags&ramp.FlagGoalRatio != 0) == mult {
			goal = true
			vt = rmp.Vt
		}
		timeMS = rmp.TimeMS
	}
Loop:
	for {
		c := o.sc.Getc()
		switch c {
		case scanner.Space, scanner.Lnbrk:
		case 'c':
			if id, ok := o.scanSymafind(o.rampNames, "ramp"); ok {
				shape = ramp.Shape(id)
			}
		case 't':
			if o.scanTimeVal(&timeMS) {
				timeSet = true
			}
		case 'v':
			if o.scanNum(numconst, &vt) {
				goal = true
			}
		case '}':
			break Loop
		default:
			if !o.handleUnknownOrEOF(c) {
				o.warnEOFWithoutClosing('}')
				break Loop
			}
		}
	}
	if !goal {
		o.sc.Warning("ignoring value ramp with no target value")
		return false
	}
	rmp.Vt = vt
	rmp.TimeMS = timeMS
	rmp.Shape = shape
	rmp.Flags |= ramp.FlagGoal
	if mult {
		rmp.Flags |= ramp.FlagGoalRatio
	} else {
		rmp.Flags &^= ramp.FlagGoalRatio
	}
	if timeSet {
		rmp.Flags |= ramp.FlagTime
	} else {
		rmp.Flags &^= ramp.FlagTime
	}
	return true
}

/*
 * Scope values.
 */
const (
	scopeTop uint8 = iota
	scopeBlock
	scopeBind
	scopeNest
)

/*
 * Current "location" (what is being parsed/worked on) for parse level.
 */
const (
	sdplInNone     uint8 = iota // no target for parameters
	sdplInDefaults              // adjusting default values
	sdplInEvent                 // adjusting operator and/or voice
)

/*
 * Parse level flags.
 */
const (
	sdplBindMultiple uint32 = 1 << iota // prev node interpreted as set of nodes
	sdplNestedScope
	sdplActiveEv
	sdplActiveOp
)

// parseLevel holds everything that needs to be separate for each
// nested parse level.
type parseLevel struct {
	o            *parser
	parent       *parseLevel
	plFlags      uint32
	location     uint8
	scope        uint8
	listType     listType
	lastListType listType
	event, lastEvent *parseEv
	opRef        *parseOpRef
	parentOpRef  *parseOpRef
	firstOpRef   *parseOpRef
	lastOp       *parseOp
	opList       *parseOpList
	setLabel     *scanner.SymStr
	// timing/delay
	groupFrom *parseEv // where to begin for groupEvents()
	composite *parseEv // grouping of events for a voice and/or operator
	nextWaitMS uint32  // added for next event
}

// parseWaittime reads a '\' wait: either a numeric delay, or 't'
// for adding the duration of the present part before what follows.
// Returns true when a new update node is wanted for the wait.
func (pl *parseLevel) parseWaittime() bool {
	o := pl.o
	sc := o.sc
	if sc.Tryc('t') {
		e := pl.event
		if e == nil {
			e = pl.lastEvent
		}
		if e == nil {
			sc.Warning(
				"add wait for last duration before any parts given")
			return false
		}
		e.evFlags |= pdevAddWaitDuration
		pl.location = sdplInNone // what follows begins a new event
		return false
	}
	var waitMS uint32
	if !o.scanTimeVal(&waitMS) {
		return false
	}
	pl.nextWaitMS += waitMS
	return true
}

/*
 * Node- and scope-handling functions.
 */

func (pl *parseLevel) endOperator() {
	if pl.plFlags&sdplActiveOp == 0 {
		return
	}
	pl.plFlags &^= sdplActiveOp
	o := pl.o
	op := pl.opRef.data
	if op.freq.Enabled() {
		op.opParams |= program.OpFreq
	}
	if op.freq2.Enabled() {
		op.opParams |= program.OpFreq2
	}
	if op.amp.Enabled() {
		op.opParams |= program.OpAmp
		if op.opFlags&pdopNested == 0 {
			op.amp.V0 *= o.sopt.AmpMult
			op.amp.Vt *= o.sopt.AmpMult
		}
	}
	if op.amp2.Enabled() {
		op.opParams |= program.OpAmp2
		if op.opFlags&pdopNested == 0 {
			op.amp2.V0 *= o.sopt.AmpMult
			op.amp2.Vt *= o.sopt.AmpMult
		}
	}
	pop := op.prev
	if pop == nil {
		// Reset all operator state for initial event.
		op.opParams |= program.OpParamsMask
	} else {
		if op.wave != pop.wave {
			op.opParams |= program.OpWave
		}
		/* time param set when time set */
		if op.silenceMS != 0 {
			op.opParams |= program.OpSilence
		}
		/* phase param set when phase set */
	}
	pl.opRef = nil
	pl.lastOp = op
}

func (pl *parseLevel) endEvent() {
	if pl.plFlags&sdplActiveEv == 0 {
		return
	}
	pl.plFlags &^= sdplActiveEv
	e := pl.event
	pl.endOperator()
	if e.pan.Enabled() {
		e.voParams |= program.VoPan
	}
	if e.voPrev == nil {
		// Reset all voice state for initial event.
		e.voParams |= program.VoPan
	}
	pl.lastEvent = e
	pl.event = nil
}

func (pl *parseLevel) beginEvent(pve *parseEv, isComposite bool) {
	o := pl.o
	pl.endEvent()
	e := &parseEv{}
	pl.event = e
	e.waitMS = pl.nextWaitMS
	pl.nextWaitMS = 0
	e.opList.typ = listGraph
	e.pan.Reset()
	if pve != nil {
		if isComposite {
			if pl.composite == nil {
				pve.composite = e
				pl.composite = pve
			} else {
				pve.next = e
			}
		}
		e.voPrev = pve
	} else {
		// New voice with initial parameter values.
		e.pan.V0 = o.sopt.DefChanMix
		e.pan.Flags |= ramp.FlagState
	}
	if pl.groupFrom == nil {
		pl.groupFrom = e
	}
	if !isComposite {
		if o.firstEv == nil {
			o.firstEv = e
		} else {
			o.ev.next = e
		}
		o.ev = e
		pl.composite = nil
	}
	pl.plFlags |= sdplActiveEv
}

// listOperator adds a new operator to its parents: either to the
// current event node, or to an operator list in the case of
// operator linking/nesting.
func (pl *parseLevel) listOperator(od *parseOp, mode uint8) *parseOpRef {
	e := pl.event
	ol := pl.opList
	if pl.listType == listGraph || mode&refAdd == 0 {
		ol = &e.opList
	}
	ref := ol.add(od, mode)
	pl.opRef = ref
	if pl.firstOpRef == nil {
		pl.firstOpRef = ref
	}
	pl.lastListType = pl.listType
	return ref
}

// beginOperator begins a new operator node - depending on the
// context, either for the present event or for a new event begun.
func (pl *parseLevel) beginOperator(prevOpRef *parseOpRef,
	mode uint8, isComposite bool) {
	o := pl.o
	if pl.event == nil || /* not in event means previous implicitly ended */
		pl.location != sdplInEvent ||
		pl.nextWaitMS != 0 ||
		isComposite {
		var pve *parseEv
		if prevOpRef != nil {
			pve = prevOpRef.data.event
		}
		pl.beginEvent(pve, isComposite)
	}
	e := pl.event
	pl.endOperator()
	op := &parseOp{}
	if !isComposite && pl.lastOp != nil {
		pl.lastOp.nextBound = op
	}
	ref := pl.listOperator(op, mode)
	/*
	 * Initialize node.
	 */
	op.time.VMs = o.sopt.DefTimeMS /* time is not copied */
	op.freq.Reset()
	op.freq2.Reset()
	op.amp.Reset()
	op.amp2.Reset()
	if prevOpRef != nil {
		pop := prevOpRef.data
		op.prev = pop
		op.opFlags = pop.opFlags & (pdopNested | pdopMultiple)
		if isComposite {
			pop.opFlags |= pdopHasComposite
		} else {
			op.time.Flags |= program.TimeSet
		}
		op.wave = pop.wave
		op.phase = pop.phase
		if pl.plFlags&sdplBindMultiple != 0 {
			mpop := pop
			var maxTime uint32
			for mpop != nil {
				if maxTime < mpop.time.VMs {
					maxTime = mpop.time.VMs
				}
				mpop = mpop.nextBound
			}
			op.opFlags |= pdopMultiple
			op.time.VMs = maxTime
			pl.plFlags &^= sdplBindMultiple
		}
	} else {
		// New operator with initial parameter values.
		if ref.listType == listGraph {
			op.freq.V0 = o.sopt.DefFreq
		} else {
			op.opFlags |= pdopNested
			op.freq.V0 = o.sopt.DefRelFreq
			op.freq.Flags |= ramp.FlagStateRatio
		}
		op.freq.Flags |= ramp.FlagState
		op.amp.V0 = 1
		op.amp.Flags |= ramp.FlagState
	}
	op.event = e
	/*
	 * Assign label. If no new label but previous node (for a
	 * non-composite) has one, update label to point to new node,
	 * but keep pointer in previous node.
	 */
	if pl.setLabel != nil {
		ref.labelSym = pl.setLabel
		ref.labelSym.Data = ref
		pl.setLabel = nil
	} else if !isComposite && prevOpRef != nil &&
		prevOpRef.labelSym != nil {
		ref.labelSym = prevOpRef.labelSym
		ref.labelSym.Data = ref
	}
	pl.plFlags |= sdplActiveOp
}

func (o *parser) beginScope(pl, parentPl *parseLevel,
	lt listType, newscope uint8) {
	*pl = parseLevel{o: o, scope: newscope, listType: lt}
	if parentPl == nil {
		// newscope == scopeTop handled here
		pl.opList = &parseOpList{typ: lt}
		return
	}
	pl.parent = parentPl
	pl.plFlags = parentPl.plFlags & (sdplNestedScope | sdplBindMultiple)
	pl.location = parentPl.location
	pl.event = parentPl.event
	pl.opRef = parentPl.opRef
	pl.parentOpRef = parentPl.parentOpRef
	switch newscope {
	case scopeBlock:
		pl.groupFrom = parentPl.groupFrom
		pl.opList = parentPl.opList
	case scopeBind:
		pl.groupFrom = parentPl.groupFrom
		pl.opList = &parseOpList{typ: lt}
	case scopeNest:
		pl.plFlags |= sdplNestedScope
		pl.parentOpRef = parentPl.opRef
		pl.opList = &parseOpList{typ: lt}
	}
}

func (pl *parseLevel) endScope() {
	o := pl.o
	pl.endOperator()
	if pl.setLabel != nil {
		o.sc.Warning("ignoring label assignment without operator")
	}
	switch pl.scope {
	case scopeTop:
		/*
		 * At end of top scope (ie. at end of script),
		 * end last event and adjust timing.
		 */
		pl.endEvent()
		groupTo := pl.lastEvent
		if pl.composite != nil {
			groupTo = pl.composite
		}
		if groupTo != nil && pl.groupFrom != nil {
			groupTo.groupFrom = pl.groupFrom
		}
	case scopeBlock:
		if pl.parent.groupFrom == nil {
			pl.parent.groupFrom = pl.groupFrom
		}
		if pl.plFlags&sdplActiveEv != 0 {
			pl.parent.endEvent()
			pl.parent.plFlags |= sdplActiveEv
			pl.parent.event = pl.event
		}
		if pl.lastEvent != nil {
			pl.parent.lastEvent = pl.lastEvent
		}
	case scopeBind:
		if pl.parent.groupFrom == nil {
			pl.parent.groupFrom = pl.groupFrom
		}
		/*
		 * Begin multiple-operator node in parent scope for the
		 * operator nodes in this scope, provided any are present.
		 */
		if pl.firstOpRef != nil {
			pl.parent.plFlags |= sdplBindMultiple
			lt := pl.parent.listType
			pl.parent.listType = pl.parent.lastListType
			pl.parent.beginOperator(pl.firstOpRef, refUpdate, false)
			pl.parent.listType = lt
		}
	case scopeNest:
		if pl.parentOpRef == nil {
			break
		}
		parentOp := pl.parentOpRef.data
		if parentOp.nestLists == nil {
			parentOp.nestLists = pl.opList
		} else {
			parentOp.lastNestList.next = pl.opList
		}
		parentOp.lastNestList = pl.opList
	}
}

/*
 * Main parser functions.
 */

func (pl *parseLevel) parseSettings() bool {
	o := pl.o
	sc := o.sc
	pl.location = sdplInDefaults
	for {
		c := sc.Getc()
		switch c {
		case scanner.Space:
		case 'a':
			if o.scanNum(nil, &o.sopt.AmpMult) {
				o.sopt.Changed |= OptAmpMult
			}
		case 'c':
			if o.scanNum(scanChanMixConst, &o.sopt.DefChanMix) {
				o.sopt.Changed |= OptDefChanMix
			}
		case 'f':
			if o.scanNum(o.scanNoteConst, &o.sopt.DefFreq) {
				o.sopt.Changed |= OptDefFreq
			}
		case 'n':
			var freq float32
			if o.scanNum(nil, &freq) {
				if freq < 1 {
					sc.Warning(
						"ignoring tuning frequency (Hz) below 1.0")
					break
				}
				o.sopt.A4Freq = freq
				o.sopt.Changed |= OptA4Freq
			}
		case 'r':
			if o.scanNum(nil, &o.sopt.DefRelFreq) {
				o.sopt.Changed |= OptDefRelFreq
			}
		case 't':
			if o.scanTimeVal(&o.sopt.DefTimeMS) {
				o.sopt.Changed |= OptDefTime
			}
		default:
			sc.Ungetc()
			return true /* let parseLevel() take care of it */
		}
	}
}

func (pl *parseLevel) parseEvAmp() bool {
	o := pl.o
	sc := o.sc
	op := pl.opRef.data
	o.scanRamp(nil, &op.amp, false)
	if sc.Tryc(',') {
		o.scanRamp(nil, &op.amp2, false)
	}
	if sc.Tryc('~') && sc.Tryc('[') {
		op.opParams |= program.OpAdjcs
		o.parseLevel(pl, listAMod, scopeNest)
	}
	return false
}

func (pl *parseLevel) parseEvChanMix() bool {
	o := pl.o
	e := pl.event
	op := pl.opRef.data
	if op.opFlags&pdopNested != 0 {
		return true // reject
	}
	o.scanRamp(scanChanMixConst, &e.pan, false)
	return false
}

func (pl *parseLevel) parseEvFreq(relFreq bool) bool {
	o := pl.o
	sc := o.sc
	op := pl.opRef.data
	if relFreq && op.opFlags&pdopNested == 0 {
		return true // reject
	}
	var numconst scanner.NumConstFunc
	if !relFreq {
		numconst = o.scanNoteConst
	}
	o.scanRamp(numconst, &op.freq, relFreq)
	if sc.Tryc(',') {
		o.scanRamp(numconst, &op.freq2, relFreq)
	}
	if sc.Tryc('~') && sc.Tryc('[') {
		op.opParams |= program.OpAdjcs
		o.parseLevel(pl, listFMod, scopeNest)
	}
	return false
}

func (pl *parseLevel) parseEvPhase() bool {
	o := pl.o
	sc := o.sc
	op := pl.opRef.data
	var phase float32
	if o.scanNum(nil, &phase) {
		op.phase = float32(math.Mod(float64(phase), 1))
		if op.phase < 0 {
			op.phase += 1
		}
		op.opParams |= program.OpPhase
	}
	if sc.Tryc('+') && sc.Tryc('[') {
		op.opParams |= program.OpAdjcs
		o.parseLevel(pl, listPMod, scopeNest)
	}
	return false
}

func (pl *parseLevel) parseStep() bool {
	o := pl.o
	sc := o.sc
	op := pl.opRef.data
	pl.location = sdplInEvent
	for {
		c := sc.Getc()
		switch c {
		case scanner.Space:
		case '\\':
			if pl.parseWaittime() {
				pl.beginOperator(pl.opRef, refUpdate, false)
				op = pl.opRef.data
			}
		case 'a':
			if pl.parseEvAmp() {
				goto Unknown
			}
		case 'c':
			if pl.parseEvChanMix() {
				goto Unknown
			}
		case 'f':
			if pl.parseEvFreq(false) {
				goto Unknown
			}
		case 'p':
			if pl.parseEvPhase() {
				goto Unknown
			}
		case 'r':
			if pl.parseEvFreq(true) {
				goto Unknown
			}
		case 's':
			o.scanTimeVal(&op.silenceMS)
		case 't':
			if sc.Tryc('*') {
				/* later fitted or kept to default */
				op.time.VMs = o.sopt.DefTimeMS
				op.time.Flags = 0
			} else if sc.Tryc('i') {
				if op.opFlags&pdopNested == 0 {
					sc.Warning(
						"ignoring 'ti' (infinite time) for non-nested operator")
					break
				}
				op.time.Flags |= program.TimeSet | program.TimeLinked
			} else {
				if !o.scanTimeVal(&op.time.VMs) {
					break
				}
				op.time.Flags = program.TimeSet
			}
			op.opParams |= program.OpTime
		case 'w':
			w, ok := o.scanWavetype()
			if !ok {
				break
			}
			op.wave = w
		default:
			goto Unknown
		}
		continue
	Unknown:
		sc.Ungetc()
		return true /* let parseLevel() take care of it */
	}
}

// Deferred-handler flags for the parse level loop.
const (
	handleDefer uint8 = 1 << iota
	deferredStep
	deferredSettings
)

func (o *parser) parseLevel(parentPl *parseLevel,
	lt listType, newscope uint8) bool {
	var pl parseLevel
	var flags uint8
	endscope := false
	o.beginScope(&pl, parentPl, lt, newscope)
	o.callLevel++
	sc := o.sc
	for {
		c := sc.Getc()
		switch c {
		case scanner.Space:
		case scanner.Lnbrk:
			if pl.scope == scopeTop {
				/*
				 * On top level of script,
				 * each line has a new "subscope".
				 */
				if o.callLevel > 1 {
					goto Return
				}
				flags = 0
				pl.location = sdplInNone
				pl.firstOpRef = nil
			}
		case '\'':
			/*
			 * Label assignment (set to what follows).
			 */
			if pl.setLabel != nil {
				sc.Warning(
					"ignoring label assignment to label assignment")
				break
			}
			pl.setLabel = o.scanLabel(c)
		case ';':
			if pl.location == sdplInDefaults || pl.event == nil {
				goto Invalid
			}
			pl.beginOperator(pl.opRef, refUpdate, true)
			flags = 0
			if pl.parseStep() {
				flags = handleDefer | deferredStep
			}
		case '@':
			if sc.Tryc('[') {
				pl.endOperator()
				if o.parseLevel(&pl, lt, scopeBind) {
					goto Return
				}
				/*
				 * Multiple-operator node now open.
				 */
				flags = 0
				if pl.parseStep() {
					flags = handleDefer | deferredStep
				}
				break
			}
			/*
			 * Label reference (get and use value).
			 */
			if pl.setLabel != nil {
				sc.Warning(
					"ignoring label assignment to label reference")
				pl.setLabel = nil
			}
			pl.location = sdplInNone
			if label := o.scanLabel(c); label != nil {
				ref, _ := label.Data.(*parseOpRef)
				if ref == nil {
					sc.Warning(
						"ignoring reference to undefined label")
				} else {
					pl.beginOperator(ref, refUpdate, false)
					flags = 0
					if pl.parseStep() {
						flags = handleDefer | deferredStep
					}
				}
			}
		case 'O':
			w, ok := o.scanWavetype()
			if !ok {
				break
			}
			pl.beginOperator(nil, refAdd, false)
			pl.opRef.data.wave = w
			flags = 0
			if pl.parseStep() {
				flags = handleDefer | deferredStep
			}
		case 'S':
			flags = 0
			if pl.parseSettings() {
				flags = handleDefer | deferredSettings
			}
		case '[':
			if o.parseLevel(&pl, lt, scopeBlock) {
				goto Return
			}
		case '\\':
			if pl.location == sdplInDefaults ||
				(pl.plFlags&sdplNestedScope != 0 && pl.event != nil) {
				goto Invalid
			}
			pl.parseWaittime()
		case ']':
			if pl.scope == scopeNest {
				pl.endOperator()
			}
			if pl.scope > scopeTop {
				endscope = true
				goto Return
			}
			o.warnClosingWithoutOpening(']', '[')
		case '|':
			if pl.location == sdplInDefaults ||
				(pl.plFlags&sdplNestedScope != 0 && pl.event != nil) {
				goto Invalid
			}
			if pl.event == nil {
				sc.Warning("end of sequence before any parts given")
				break
			}
			if pl.groupFrom != nil {
				groupTo := pl.event
				if pl.composite != nil {
					groupTo = pl.composite
				}
				groupTo.groupFrom = pl.groupFrom
				pl.groupFrom = nil
			}
			pl.endEvent()
			flags &^= deferredStep
			pl.location = sdplInNone
		case '}':
			o.warnClosingWithoutOpening('}', '{')
		default:
			goto Invalid
		}
		goto Handled
	Invalid:
		if !o.handleUnknownOrEOF(c) {
			goto Finish
		}
	Handled:
		/* Return to sub-parsing routines. */
		if flags != 0 && flags&handleDefer == 0 {
			test := flags
			flags = 0
			if test&deferredStep != 0 {
				if pl.parseStep() {
					flags = handleDefer | deferredStep
				}
			} else if test&deferredSettings != 0 {
				if pl.parseSettings() {
					flags = handleDefer | deferredSettings
				}
			}
		}
		flags &^= handleDefer
	}
Finish:
	if newscope > scopeTop {
		o.warnEOFWithoutClosing(']')
	}
Return:
	pl.endScope()
	o.callLevel--
	/* Should return from calling scope if/when parent scope is ended. */
	return endscope && pl.scope != newscope
}

// parseScript processes one script, by path or inline text.
func parseScript(arg string, isPath bool) (*parseResult, error) {
	o := &parser{
		sopt: defaultOptions,
		st:   scanner.NewSymTab(),
	}
	o.sc = scanner.New(o.st)
	o.waveNames = o.st.PoolStrs(wave.Names[:])
	o.rampNames = o.st.PoolStrs(ramp.Names[:])
	if err := o.sc.Open(arg, isPath); err != nil {
		return nil, err
	}
	o.parseLevel(nil, listGraph, scopeTop)
	name := o.sc.Name()
	o.sc.Close()
	return &parseResult{
		events: o.firstEv,
		name:   name,
		sopt:   o.sopt,
	}, nil
}
