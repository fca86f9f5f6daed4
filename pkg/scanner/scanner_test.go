package scanner

import "testing"

func open(t *testing.T, src string) *Scanner {
	t.Helper()
	sc := New(NewSymTab())
	if err := sc.Open(src, false); err != nil {
		t.Fatal(err)
	}
	return sc
}

func TestGetcFiltering(t *testing.T) {
	sc := open(t, "a  \t b\nc")
	want := []byte{'a', Space, 'b', Lnbrk, 'c', EOF}
	for i, w := range want {
		if c := sc.Getc(); c != w {
			t.Fatalf("Getc #%d = %q, want %q", i, c, w)
		}
	}
}

func TestWsNone(t *testing.T) {
	sc := open(t, "a \n b")
	sc.SetWsLevel(WsNone)
	if c := sc.Getc(); c != 'a' {
		t.Fatalf("Getc = %q, want 'a'", c)
	}
	if c := sc.Getc(); c != 'b' {
		t.Fatalf("Getc = %q, want 'b' with whitespace skipped", c)
	}
}

func TestLineComment(t *testing.T) {
	sc := open(t, "a#! comment\nb")
	if c := sc.Getc(); c != 'a' {
		t.Fatalf("Getc = %q, want 'a'", c)
	}
	if c := sc.Getc(); c != Lnbrk {
		t.Fatalf("Getc = %q, want line break after comment", c)
	}
	if c := sc.Getc(); c != 'b' {
		t.Fatalf("Getc = %q, want 'b'", c)
	}
}

func TestQuitMarker(t *testing.T) {
	sc := open(t, "a#Qb")
	if c := sc.Getc(); c != 'a' {
		t.Fatalf("Getc = %q, want 'a'", c)
	}
	if c := sc.Getc(); c != EOF {
		t.Fatalf("Getc = %q, want EOF at #Q", c)
	}
	if c := sc.Getc(); c != EOF {
		t.Fatalf("Getc after close = %q, want EOF", c)
	}
}

func TestPlainHash(t *testing.T) {
	sc := open(t, "#x")
	if c := sc.Getc(); c != '#' {
		t.Fatalf("Getc = %q, want '#'", c)
	}
	if c := sc.Getc(); c != 'x' {
		t.Fatalf("Getc = %q, want 'x'", c)
	}
}

func TestUngetc(t *testing.T) {
	sc := open(t, "ab")
	if c := sc.Getc(); c != 'a' {
		t.Fatal("unexpected first char")
	}
	sc.Getc()
	sc.Ungetc()
	if c := sc.Getc(); c != 'b' {
		t.Fatalf("Getc after Ungetc = %q, want 'b'", c)
	}
}

func TestTryc(t *testing.T) {
	sc := open(t, "[x")
	if !sc.Tryc('[') {
		t.Fatal("Tryc('[') failed")
	}
	if sc.Tryc('y') {
		t.Fatal("Tryc('y') matched 'x'")
	}
	if c := sc.Getc(); c != 'x' {
		t.Fatalf("Getc = %q, want 'x' after failed Tryc", c)
	}
}

func TestGetSymStr(t *testing.T) {
	sc := open(t, "foo_1 foo_1")
	s1 := sc.GetSymStr()
	if s1 == nil || s1.Key != "foo_1" {
		t.Fatalf("GetSymStr = %v", s1)
	}
	sc.Getc() // space
	s2 := sc.GetSymStr()
	if s1 != s2 {
		t.Error("same identifier not interned to same entry")
	}
}

func TestGetd(t *testing.T) {
	sc := open(t, "123.5x")
	val, n := sc.Getd(nil)
	if n == 0 || val != 123.5 {
		t.Fatalf("Getd = %g (len %d), want 123.5", val, n)
	}
	if c := sc.Getc(); c != 'x' {
		t.Fatalf("Getc = %q after number, want 'x'", c)
	}
	sc = open(t, "x")
	if _, n := sc.Getd(nil); n != 0 {
		t.Fatal("Getd consumed a non-number")
	}
}

func TestGeti(t *testing.T) {
	sc := open(t, "42x")
	val, n := sc.Geti()
	if n != 2 || val != 42 {
		t.Fatalf("Geti = %d (len %d), want 42 (len 2)", val, n)
	}
}

func TestLineTracking(t *testing.T) {
	sc := open(t, "a\nbc")
	sc.Getc()
	sc.Getc() // line break
	sc.Getc() // 'b'
	if sc.Line() != 2 {
		t.Errorf("Line() = %d, want 2", sc.Line())
	}
}
