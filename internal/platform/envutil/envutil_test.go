package envutil

import "testing"

func TestIntParsesOrFallsBack(t *testing.T) {
	t.Setenv("E_INT", "42")
	if got := Int("E_INT", 1); got != 42 {
		t.Fatalf("Int: want=42 got=%d", got)
	}
	t.Setenv("E_INT", "not-a-number")
	if got := Int("E_INT", 1); got != 1 {
		t.Fatalf("Int with invalid value: want fallback=1 got=%d", got)
	}
	t.Setenv("E_INT", "")
	if got := Int("E_INT", 7); got != 7 {
		t.Fatalf("Int with unset value: want fallback=7 got=%d", got)
	}
}

func TestBool(t *testing.T) {
	cases := map[string]bool{"true": true, "TRUE": true, "1": true, "yes": true, "YES": true, "false": false, "0": false, "nope": false}
	for v, want := range cases {
		t.Setenv("E_BOOL", v)
		if got := Bool("E_BOOL", false); got != want {
			t.Fatalf("Bool(%q): want=%v got=%v", v, want, got)
		}
	}
	t.Setenv("E_BOOL", "")
	if !Bool("E_BOOL", true) {
		t.Fatalf("Bool with unset value: want fallback=true")
	}
}

func TestString(t *testing.T) {
	t.Setenv("E_STR", "  hello  ")
	if got := String("E_STR", "def"); got != "hello" {
		t.Fatalf("String: want trimmed value, got=%q", got)
	}
	t.Setenv("E_STR", "")
	if got := String("E_STR", "def"); got != "def" {
		t.Fatalf("String with unset value: want fallback, got=%q", got)
	}
}

func TestDurationParsesBareSecondsAndGoDuration(t *testing.T) {
	t.Setenv("E_DUR", "30")
	if got := Duration("E_DUR", 0); got.String() != "30s" {
		t.Fatalf("Duration(bare seconds): want=30s got=%v", got)
	}
	t.Setenv("E_DUR", "2m")
	if got := Duration("E_DUR", 0); got.String() != "2m0s" {
		t.Fatalf("Duration(go syntax): want=2m0s got=%v", got)
	}
	t.Setenv("E_DUR", "garbage")
	if got := Duration("E_DUR", 5); got != 5 {
		t.Fatalf("Duration with invalid value: want fallback=5 got=%v", got)
	}
}

func TestIntClampedClampsToRange(t *testing.T) {
	t.Setenv("E_CLAMP", "500")
	if got := IntClamped("E_CLAMP", 1, 1, 10); got != 10 {
		t.Fatalf("IntClamped above range: want=10 got=%d", got)
	}
	t.Setenv("E_CLAMP", "-5")
	if got := IntClamped("E_CLAMP", 1, 1, 10); got != 1 {
		t.Fatalf("IntClamped below range: want=1 got=%d", got)
	}
	t.Setenv("E_CLAMP", "5")
	if got := IntClamped("E_CLAMP", 1, 1, 10); got != 5 {
		t.Fatalf("IntClamped within range: want=5 got=%d", got)
	}
}
