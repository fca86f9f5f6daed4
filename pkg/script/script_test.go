package script

import (
	"math"
	"strings"
	"testing"

	"github.com/hyphop/saugns/pkg/program"
	"github.com/hyphop/saugns/pkg/ramp"
)

func load(t *testing.T, src string) *program.Program {
	t.Helper()
	prg, err := Load(src, false)
	if err != nil {
		t.Fatalf("Load(%q): %v", src, err)
	}
	return prg
}

func TestSettingsOnly(t *testing.T) {
	prg := load(t, "S t0")
	if len(prg.Events) != 0 {
		t.Errorf("got %d events, want 0", len(prg.Events))
	}
	if prg.DurationMS != 0 {
		t.Errorf("duration = %d ms, want 0", prg.DurationMS)
	}
}

func TestSingleOperator(t *testing.T) {
	prg := load(t, "Osin t0.5 f440")
	if len(prg.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(prg.Events))
	}
	if prg.OpCount != 1 || prg.VoCount != 1 {
		t.Errorf("op/vo counts = %d/%d, want 1/1",
			prg.OpCount, prg.VoCount)
	}
	ev := &prg.Events[0]
	if ev.WaitMS != 0 {
		t.Errorf("wait = %d, want 0", ev.WaitMS)
	}
	if len(ev.OpData) != 1 {
		t.Fatalf("got %d op updates, want 1", len(ev.OpData))
	}
	od := &ev.OpData[0]
	if od.Time.VMs != 500 {
		t.Errorf("time = %d ms, want 500", od.Time.VMs)
	}
	if od.Freq.V0 != 440 {
		t.Errorf("freq = %g, want 440", od.Freq.V0)
	}
	if od.Params&program.OpFreq == 0 || od.Params&program.OpTime == 0 {
		t.Errorf("params = %#x, missing freq/time", od.Params)
	}
	if od.Nested {
		t.Error("top-level operator marked nested")
	}
	vd := ev.VoData
	if vd == nil {
		t.Fatal("no voice data on initial event")
	}
	if len(vd.Carriers) != 1 || vd.Carriers[0] != 0 {
		t.Errorf("carriers = %v, want [0]", vd.Carriers)
	}
	if prg.DurationMS != 500 {
		t.Errorf("duration = %d ms, want 500", prg.DurationMS)
	}
}

func TestDefaults(t *testing.T) {
	prg := load(t, "S f220 t0.25\nOsin")
	if len(prg.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(prg.Events))
	}
	od := &prg.Events[0].OpData[0]
	if od.Freq.V0 != 220 {
		t.Errorf("freq = %g, want default 220", od.Freq.V0)
	}
	if od.Time.VMs != 250 {
		t.Errorf("time = %d ms, want default 250", od.Time.VMs)
	}
}

func TestNoteConstant(t *testing.T) {
	prg := load(t, "Osin fA4 t1")
	od := &prg.Events[0].OpData[0]
	if math.Abs(float64(od.Freq.V0)-444) > 0.01 {
		t.Errorf("freq = %g, want 444 (A4 at default tuning)", od.Freq.V0)
	}
	prg = load(t, "S n440\nOsin fA4 t1")
	od = &prg.Events[0].OpData[0]
	if math.Abs(float64(od.Freq.V0)-440) > 0.01 {
		t.Errorf("freq = %g, want 440 with n440 tuning", od.Freq.V0)
	}
}

func TestNumericExpression(t *testing.T) {
	prg := load(t, "Osin f(100+10*2) t1")
	od := &prg.Events[0].OpData[0]
	if od.Freq.V0 != 120 {
		t.Errorf("freq = %g, want 120", od.Freq.V0)
	}
}

func TestRampSyntax(t *testing.T) {
	prg := load(t, "Osin f{v880 t0.2 cexp} t0.5")
	od := &prg.Events[0].OpData[0]
	f := &od.Freq
	if f.Flags&ramp.FlagGoal == 0 {
		t.Fatal("freq ramp goal not set")
	}
	if f.Vt != 880 {
		t.Errorf("freq goal = %g, want 880", f.Vt)
	}
	if f.TimeMS != 200 {
		t.Errorf("ramp time = %d ms, want 200", f.TimeMS)
	}
	if f.Shape != ramp.Exp {
		t.Errorf("ramp shape = %v, want exp", f.Shape)
	}
}

func TestRampWithoutGoalDiscarded(t *testing.T) {
	prg := load(t, "Osin f{t0.2} t0.5")
	od := &prg.Events[0].OpData[0]
	if od.Freq.Flags&ramp.FlagGoal != 0 {
		t.Error("goal-less ramp not discarded")
	}
}

func TestComposite(t *testing.T) {
	prg := load(t, "Osin f440 t0.1; t0.1 f880; t0.1 f1320")
	if len(prg.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(prg.Events))
	}
	if prg.OpCount != 1 {
		t.Errorf("op count = %d, want 1 (composite reuses operator)",
			prg.OpCount)
	}
	if w := prg.Events[1].WaitMS; w != 100 {
		t.Errorf("second event wait = %d ms, want 100", w)
	}
	if w := prg.Events[2].WaitMS; w != 100 {
		t.Errorf("third event wait = %d ms, want 100", w)
	}
	if vms := prg.Events[0].OpData[0].Time.VMs; vms != 300 {
		t.Errorf("main operator time = %d ms, want 300 (sum)", vms)
	}
	// Composite steps carry no time param of their own.
	for i := 1; i < 3; i++ {
		od := &prg.Events[i].OpData[0]
		if od.ID != 0 {
			t.Errorf("event %d updates op %d, want 0", i, od.ID)
		}
		if od.Params&program.OpTime != 0 {
			t.Errorf("event %d carries a time param", i)
		}
	}
	if f := prg.Events[1].OpData[0].Freq.V0; f != 880 {
		t.Errorf("second step freq = %g, want 880", f)
	}
	if prg.DurationMS != 300 {
		t.Errorf("duration = %d ms, want 300", prg.DurationMS)
	}
}

func TestWaitForPreviousDuration(t *testing.T) {
	prg := load(t, `Osin f200 t0.5 \t Osin f400 t0.5`)
	if len(prg.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(prg.Events))
	}
	if w := prg.Events[1].WaitMS; w != 500 {
		t.Errorf("second event wait = %d ms, want 500", w)
	}
	// The first voice has lapsed when the second operator starts,
	// so its ID is reused.
	if prg.OpCount != 2 || prg.VoCount != 1 {
		t.Errorf("op/vo counts = %d/%d, want 2/1",
			prg.OpCount, prg.VoCount)
	}
	if prg.DurationMS != 1000 {
		t.Errorf("duration = %d ms, want 1000", prg.DurationMS)
	}
}

func TestNumericWait(t *testing.T) {
	prg := load(t, "Osin f200 t0.2\n\\0.5 Osin f400 t0.2")
	if len(prg.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(prg.Events))
	}
	if w := prg.Events[1].WaitMS; w != 500 {
		t.Errorf("second event wait = %d ms, want 500", w)
	}
}

func TestGroupFillsUnsetTimes(t *testing.T) {
	prg := load(t, "Osin f100 Osin f200 t2 |")
	if len(prg.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(prg.Events))
	}
	ev := &prg.Events[0]
	if len(ev.OpData) != 2 {
		t.Fatalf("got %d op updates, want 2", len(ev.OpData))
	}
	if vms := ev.OpData[0].Time.VMs; vms != 2000 {
		t.Errorf("first operator time = %d ms, want group max 2000", vms)
	}
	if vms := ev.OpData[1].Time.VMs; vms != 2000 {
		t.Errorf("second operator time = %d ms, want 2000", vms)
	}
	if prg.DurationMS != 2000 {
		t.Errorf("duration = %d ms, want 2000", prg.DurationMS)
	}
}

func TestGroupAbsorbsWait(t *testing.T) {
	prg := load(t, "Osin f100 t1 |\nOsin f200 t0.5")
	if len(prg.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(prg.Events))
	}
	if w := prg.Events[1].WaitMS; w != 1000 {
		t.Errorf("event after group waits %d ms, want 1000", w)
	}
}

func TestModulatorLists(t *testing.T) {
	prg := load(t, "Osin f100 t0.5 a~[Osin f2]")
	if prg.OpCount != 2 {
		t.Fatalf("op count = %d, want 2", prg.OpCount)
	}
	ev := &prg.Events[0]
	if len(ev.OpData) != 2 {
		t.Fatalf("got %d op updates, want 2", len(ev.OpData))
	}
	carrier := &ev.OpData[0]
	mod := &ev.OpData[1]
	if carrier.AMods == nil || len(carrier.AMods) != 1 ||
		carrier.AMods[0] != mod.ID {
		t.Errorf("carrier amods = %v, want [%d]", carrier.AMods, mod.ID)
	}
	if !mod.Nested {
		t.Error("modulator not marked nested")
	}
	if mod.Time.Flags&program.TimeLinked == 0 {
		t.Error("modulator with unset time not linked")
	}
	if len(ev.VoData.Carriers) != 1 {
		t.Errorf("carriers = %v, want 1 entry", ev.VoData.Carriers)
	}
}

func TestRelativeFreq(t *testing.T) {
	prg := load(t, "Osin f100 t0.5 f~[Osin r2]")
	mod := &prg.Events[0].OpData[1]
	if mod.Freq.V0 != 2 {
		t.Errorf("modulator freq = %g, want ratio 2", mod.Freq.V0)
	}
	if mod.Freq.Flags&ramp.FlagStateRatio == 0 {
		t.Error("modulator freq not flagged as ratio")
	}
}

func TestNestDepthAndOpList(t *testing.T) {
	prg := load(t, "Osin f137 t1 p+[Osin f32 p+[Osin f42]]")
	if prg.OpCount != 3 {
		t.Fatalf("op count = %d, want 3", prg.OpCount)
	}
	if prg.OpNestDepth != 2 {
		t.Errorf("nest depth = %d, want 2", prg.OpNestDepth)
	}
	vd := prg.Events[0].VoData
	if vd == nil || len(vd.OpList) != 3 {
		t.Fatalf("voice op list = %+v, want 3 entries", vd)
	}
	// Innermost modulator first, carrier last.
	if vd.OpList[0].Use != program.UsePMod || vd.OpList[0].Level != 2 {
		t.Errorf("first entry = %+v, want PM at level 2", vd.OpList[0])
	}
	if last := vd.OpList[2]; last.Use != program.UseCarr || last.Level != 0 {
		t.Errorf("last entry = %+v, want carrier at level 0", last)
	}
}

func TestLabelReference(t *testing.T) {
	prg := load(t, "'alpha Osin f100 t1\n@alpha f200")
	if len(prg.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(prg.Events))
	}
	if prg.OpCount != 1 || prg.VoCount != 1 {
		t.Errorf("op/vo counts = %d/%d, want 1/1",
			prg.OpCount, prg.VoCount)
	}
	od := &prg.Events[1].OpData[0]
	if od.ID != 0 {
		t.Errorf("update targets op %d, want 0", od.ID)
	}
	if od.Freq.V0 != 200 {
		t.Errorf("updated freq = %g, want 200", od.Freq.V0)
	}
}

func TestUndefinedLabelIgnored(t *testing.T) {
	prg := load(t, "@nosuch f100")
	if len(prg.Events) != 0 {
		t.Errorf("got %d events, want 0", len(prg.Events))
	}
}

func TestInfiniteTimeNonNestedIgnored(t *testing.T) {
	prg := load(t, "Osin ti f100")
	od := &prg.Events[0].OpData[0]
	if od.Time.Flags&program.TimeLinked != 0 {
		t.Error("'ti' accepted for non-nested operator")
	}
}

func TestNegativeTimeDiscarded(t *testing.T) {
	prg := load(t, "Osin t(0-1) f100")
	od := &prg.Events[0].OpData[0]
	if od.Time.VMs != 1000 {
		t.Errorf("time = %d ms, want default 1000 after discard", od.Time.VMs)
	}
}

func TestChanMixConstant(t *testing.T) {
	prg := load(t, "Osin f100 t0.5 cL")
	vd := prg.Events[0].VoData
	if vd == nil || vd.Pan.V0 != -1 {
		t.Fatalf("pan = %+v, want v0 -1 for L", vd)
	}
}

func TestAmpMultApplied(t *testing.T) {
	prg := load(t, "S a0.5\nOsin f100 t1 a1")
	od := &prg.Events[0].OpData[0]
	if od.Amp.V0 != 0.5 {
		t.Errorf("amp = %g, want 0.5 after S a0.5", od.Amp.V0)
	}
	if prg.Mode&program.ModeAmpDivVoices != 0 {
		t.Error("amp-div-voices mode set although S a given")
	}
}

func TestAmpDivVoicesDefault(t *testing.T) {
	prg := load(t, "Osin f100 t1")
	if prg.Mode&program.ModeAmpDivVoices == 0 {
		t.Error("amp-div-voices mode not set by default")
	}
}

func TestPrintInfo(t *testing.T) {
	prg := load(t, "Osin f440 t0.5")
	var b strings.Builder
	prg.PrintInfo(&b)
	out := b.String()
	for _, want := range []string{"Program:", "Duration:", "op 0", "CA"} {
		if !strings.Contains(out, want) {
			t.Errorf("print info missing %q in:\n%s", want, out)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path.sau", true); err == nil {
		t.Error("loading a missing file did not fail")
	}
}
