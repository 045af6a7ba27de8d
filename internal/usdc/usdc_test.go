package usdc

import (
	"math/big"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"", 0, true},
		{"0", 0, true},
		{"1", 1000000, true},
		{"1.5", 1500000, true},
		{"100.00", 100000000, true},
		{"0.000001", 1, true},
		{"0.0000019", 1, true}, // truncated, not rounded
		{".5", 500000, true},
		{"-1", 0, false},
		{"1.2.3", 0, false},
		{"abc", 0, false},
	}

	for _, tc := range cases {
		got, ok := Parse(tc.in)
		if ok != tc.ok {
			t.Errorf("Parse(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && got.Int64() != tc.want {
			t.Errorf("Parse(%q) = %d, want %d", tc.in, got.Int64(), tc.want)
		}
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0.000000"},
		{1, "0.000001"},
		{1500000, "1.500000"},
		{100000000, "100.000000"},
		{-2500000, "-2.500000"},
	}

	for _, tc := range cases {
		if got := Format(big.NewInt(tc.in)); got != tc.want {
			t.Errorf("Format(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if got := Format(nil); got != "0.000000" {
		t.Errorf("Format(nil) = %q, want 0.000000", got)
	}
}

func TestDouble(t *testing.T) {
	got, ok := Double("100.00")
	if !ok || got != "200.000000" {
		t.Errorf("Double(100.00) = %q, %v", got, ok)
	}

	if _, ok := Double("not-a-number"); ok {
		t.Error("Double should reject invalid input")
	}
}

func TestEqual(t *testing.T) {
	if !Equal("100", "100.000000") {
		t.Error("100 and 100.000000 should be equal")
	}
	if Equal("100", "100.000001") {
		t.Error("100 and 100.000001 should differ")
	}
	if Equal("x", "100") {
		t.Error("invalid input should never be equal")
	}
}

func TestIsPositive(t *testing.T) {
	if !IsPositive("0.000001") {
		t.Error("smallest unit should be positive")
	}
	if IsPositive("0") || IsPositive("") || IsPositive("-5") {
		t.Error("zero, empty and negative are not positive")
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0.000000", "1.000000", "12.345678"} {
		amount, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) failed", s)
		}
		if got := Format(amount); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}
