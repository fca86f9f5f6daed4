package ramp

import (
	"math"
	"testing"
)

func TestShapeNamed(t *testing.T) {
	for i, name := range Names {
		shape, ok := ShapeNamed(name)
		if !ok || shape != Shape(i) {
			t.Errorf("ShapeNamed(%q) = %v, %v; want %v, true",
				name, shape, ok, Shape(i))
		}
	}
	if _, ok := ShapeNamed("bogus"); ok {
		t.Error("ShapeNamed(\"bogus\") succeeded")
	}
}

func TestFillLinEndpoints(t *testing.T) {
	buf := make([]float32, 100)
	FillLin(buf, 0, 1, 0, 100)
	if buf[0] != 0 {
		t.Errorf("lin start = %g, want 0", buf[0])
	}
	if got := buf[99]; math.Abs(float64(got)-0.99) > 1e-5 {
		t.Errorf("lin end = %g, want 0.99", got)
	}
	for i := 1; i < 100; i++ {
		if buf[i] <= buf[i-1] {
			t.Fatalf("lin not increasing at %d", i)
		}
	}
}

func TestFillExpLogDirections(t *testing.T) {
	rise := make([]float32, 10)
	fall := make([]float32, 10)
	FillExp(rise, 0, 1, 0, 10)
	FillExp(fall, 1, 0, 0, 10)
	for i := 1; i < 10; i++ {
		if rise[i] < rise[i-1] {
			t.Fatalf("exp rise not monotonic at %d", i)
		}
		if fall[i] > fall[i-1] {
			t.Fatalf("exp fall not monotonic at %d", i)
		}
	}
}

func TestRunConstant(t *testing.T) {
	r := Ramp{V0: 440, Flags: FlagState}
	buf := make([]float32, 64)
	var pos uint32
	if r.Run(&pos, buf, 1000, nil) {
		t.Error("constant ramp reported unfinished goal")
	}
	for i, v := range buf {
		if v != 440 {
			t.Fatalf("buf[%d] = %g, want 440", i, v)
		}
	}
}

func TestRunGoalReached(t *testing.T) {
	// 100 ms at 1000 Hz = 100 samples of transition.
	r := Ramp{V0: 0, Vt: 1, TimeMS: 100, Shape: Lin,
		Flags: FlagState | FlagGoal | FlagTime}
	buf := make([]float32, 60)
	var pos uint32
	if !r.Run(&pos, buf, 1000, nil) {
		t.Fatal("goal reported reached too early")
	}
	if pos != 60 {
		t.Fatalf("pos = %d, want 60", pos)
	}
	if r.Run(&pos, buf, 1000, nil) {
		t.Fatal("goal not reached after full time")
	}
	if r.V0 != 1 || r.Flags&FlagGoal != 0 {
		t.Errorf("goal value not adopted as state: v0=%g flags=%#x",
			r.V0, r.Flags)
	}
	// The samples past the transition hold the goal value.
	for i := 40; i < 60; i++ {
		if buf[i] != 1 {
			t.Fatalf("buf[%d] = %g, want 1", i, buf[i])
		}
	}
}

func TestRunStateRatio(t *testing.T) {
	r := Ramp{V0: 0.5, Flags: FlagState | FlagStateRatio}
	buf := make([]float32, 4)
	mul := []float32{100, 200, 300, 400}
	var pos uint32
	r.Run(&pos, buf, 1000, mul)
	want := []float32{50, 100, 150, 200}
	for i := range buf {
		if buf[i] != want[i] {
			t.Fatalf("buf[%d] = %g, want %g", i, buf[i], want[i])
		}
	}
}

func TestCopyPartial(t *testing.T) {
	var dst Ramp
	dst.Reset()
	dst.V0 = 100
	dst.Flags = FlagState
	src := Ramp{Vt: 200, TimeMS: 50, Shape: Exp, Flags: FlagGoal | FlagTime}
	dst.Copy(&src)
	if dst.V0 != 100 {
		t.Errorf("state value clobbered: %g", dst.V0)
	}
	if dst.Vt != 200 || dst.TimeMS != 50 || dst.Shape != Exp {
		t.Errorf("goal not copied: %+v", dst)
	}
	if dst.Flags&FlagGoal == 0 || dst.Flags&FlagState == 0 {
		t.Errorf("flags wrong: %#x", dst.Flags)
	}
}

func TestTimeSamples(t *testing.T) {
	if got := TimeSamples(500, 48000); got != 24000 {
		t.Errorf("TimeSamples(500, 48000) = %d, want 24000", got)
	}
	if got := TimeSamples(0, 44100); got != 0 {
		t.Errorf("TimeSamples(0, 44100) = %d, want 0", got)
	}
}

func TestSkip(t *testing.T) {
	r := Ramp{V0: 0, Vt: 2, TimeMS: 10, Shape: Lin,
		Flags: FlagState | FlagGoal | FlagTime}
	var pos uint32
	if !r.Skip(&pos, 5, 1000) {
		t.Fatal("goal reported reached too early")
	}
	if r.Skip(&pos, 100, 1000) {
		t.Fatal("goal not reached after skipping past time")
	}
	if r.V0 != 2 {
		t.Errorf("v0 = %g, want 2", r.V0)
	}
}
