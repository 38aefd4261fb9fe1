package sink

import "testing"

func TestParseArgs(t *testing.T) {
	got := ParseArgs(`hackrf=0, buffers=32 bias_tx=1 label="a b,c" flag`)
	want := map[string]string{
		"hackrf":  "0",
		"buffers": "32",
		"bias_tx": "1",
		"label":   "a b,c",
		"flag":    "",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestParseArgsEmpty(t *testing.T) {
	if got := ParseArgs("  ,, "); len(got) != 0 {
		t.Fatalf("expected no params, got %v", got)
	}
}
