package ulid

import (
	"testing"
	"time"
)

func TestMonotonicOrdering(t *testing.T) {
	var prev ID
	for i := 0; i < 10000; i++ {
		id := New()
		if i > 0 && id.Compare(prev) <= 0 {
			t.Fatalf("ordering regressed at iteration %d: prev=%s id=%s", i, prev, id)
		}
		prev = id
	}
}

func TestStringRoundTrip(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := New()
		s := id.String()
		if len(s) != 26 {
			t.Fatalf("expected 26-char string, got %d: %q", len(s), s)
		}
		parsed, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if parsed != id {
			t.Fatalf("round trip mismatch: %v != %v", parsed, id)
		}
	}
}

func TestStringOrderMatchesByteOrder(t *testing.T) {
	a := global.new(time.UnixMilli(1000))
	b := global.new(time.UnixMilli(1000))
	if b.Compare(a) <= 0 {
		t.Fatalf("expected b > a, got a=%v b=%v", a, b)
	}
	if !(b.String() > a.String()) {
		t.Fatalf("expected string order to match byte order: a=%s b=%s", a, b)
	}
}

func TestClockSkewDoesNotRegress(t *testing.T) {
	future := global.new(time.UnixMilli(5_000_000))
	past := global.new(time.UnixMilli(1_000)) // simulated clock going backwards
	if past.Compare(future) <= 0 {
		t.Fatalf("id generated after simulated clock regression must still sort after the prior id")
	}
}

func TestParseInvalidLength(t *testing.T) {
	if _, err := Parse("short"); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestParseInvalidCharacter(t *testing.T) {
	bad := "ILOU" + "0000000000000000000000"
	if _, err := Parse(bad[:26]); err == nil {
		t.Fatal("expected error for invalid Crockford characters")
	}
}

func TestZero(t *testing.T) {
	var z ID
	if !z.Zero() {
		t.Fatal("zero value should report Zero() == true")
	}
	if New().Zero() {
		t.Fatal("generated id should not be zero")
	}
}
