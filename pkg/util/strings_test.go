package util

import (
	"math"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	got := NormalizeName("  iShares Core MSCI-World (Acc)  ")
	if got != "ishares core msci world acc" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestJaccard(t *testing.T) {
	a := Tokens("ishares core msci world")
	b := Tokens("iShares MSCI World")
	if got := Jaccard(a, b); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("unexpected %v", got)
	}
	if got := Jaccard(nil, nil); got != 0 {
		t.Fatalf("unexpected %v", got)
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\": {\"b\": 1}}\n```":   `{"a": {"b": 1}}`,
		`Sure: {"name": "x}"} trailing {"z":1}`: `{"name": "x}"}`,
		`{ broken {"ok": true}`:                 `{"ok": true}`,
	}
	for in, want := range cases {
		got, err := ExtractJSONObject(in)
		if err != nil || got != want {
			t.Fatalf("ExtractJSONObject(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ExtractJSONObject("no json here"); err != ErrNoJSONObject {
		t.Fatalf("expected ErrNoJSONObject, got %v", err)
	}
}
