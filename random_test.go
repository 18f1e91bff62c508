package pgwire

import (
	"strings"
	"testing"
)

func TestRandomPrintableLengthAndAlphabet(t *testing.T) {
	s, err := randomPrintable(16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s) != 16 {
		t.Fatalf("length = %d, want 16", len(s))
	}
	for _, r := range s {
		if !strings.ContainsRune(printableAlphabet, r) {
			t.Fatalf("character %q not in printableAlphabet", r)
		}
	}
}

func TestRandomPrintableDistinctAcrossCalls(t *testing.T) {
	a, err := randomPrintable(20)
	if err != nil {
		t.Fatal(err)
	}
	b, err := randomPrintable(20)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("expected distinct statement names across calls (astronomically unlikely collision otherwise)")
	}
}

func TestRandomPrintableZeroLength(t *testing.T) {
	s, err := randomPrintable(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "" {
		t.Errorf("s = %q, want empty string", s)
	}
}
