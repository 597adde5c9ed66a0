package envutil

import "testing"

func TestFloatFallsBackOnGarbage(t *testing.T) {
	t.Setenv("CAT_TEST_FLOAT", "abc")
	if got := Float("CAT_TEST_FLOAT", 0.3); got != 0.3 {
		t.Fatalf("Float: want=0.3 got=%v", got)
	}
	t.Setenv("CAT_TEST_FLOAT", " 0.25 ")
	if got := Float("CAT_TEST_FLOAT", 0.3); got != 0.25 {
		t.Fatalf("Float: want=0.25 got=%v", got)
	}
	t.Setenv("CAT_TEST_FLOAT", "NaN")
	if got := Float("CAT_TEST_FLOAT", 0.3); got != 0.3 {
		t.Fatalf("Float(NaN): want=0.3 got=%v", got)
	}
}

func TestBool(t *testing.T) {
	cases := []struct {
		raw  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tc := range cases {
		t.Setenv("CAT_TEST_BOOL", tc.raw)
		if got := Bool("CAT_TEST_BOOL", tc.def); got != tc.want {
			t.Fatalf("Bool(%q, %v): want=%v got=%v", tc.raw, tc.def, tc.want, got)
		}
	}
}

func TestIntAndString(t *testing.T) {
	t.Setenv("CAT_TEST_INT", "12")
	if got := Int("CAT_TEST_INT", 3); got != 12 {
		t.Fatalf("Int: want=12 got=%d", got)
	}
	t.Setenv("CAT_TEST_STR", "  ")
	if got := String("CAT_TEST_STR", "memory"); got != "memory" {
		t.Fatalf("String: want=memory got=%q", got)
	}
}
