package amount

import (
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	cases := map[string]uint64{
		"12.5":      12_500_000,
		"0.000001":  1,
		"1":         1_000_000,
		" 250 ":     250_000_000,
		"0":         0,
		"100.10000": 100_100_000,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseRejects(t *testing.T) {
	if _, err := Parse("0.0000001"); !errors.Is(err, ErrPrecision) {
		t.Fatalf("expected precision error, got %v", err)
	}
	if _, err := Parse("-1"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid for negative, got %v", err)
	}
	if _, err := Parse("abc"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if _, err := Parse(""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid for empty, got %v", err)
	}
	if _, err := Parse("18446744073709.551616"); !errors.Is(err, ErrRange) {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestParseMaxUnits(t *testing.T) {
	got, err := Parse("18446744073709.551615")
	if err != nil {
		t.Fatalf("Parse max: %v", err)
	}
	if got != math.MaxUint64 {
		t.Fatalf("got %d", got)
	}
}

func TestParseUnits(t *testing.T) {
	got, err := ParseUnits("500u")
	if err != nil || got != 500 {
		t.Fatalf("ParseUnits(500u) = %d, %v", got, err)
	}
	if _, err := ParseUnits("1.5"); err == nil {
		t.Fatalf("expected error for fractional units")
	}
}

func TestFormat(t *testing.T) {
	if got := Format(12_500_000); got != "12.5" {
		t.Fatalf("Format = %s", got)
	}
	if got := Format(1); got != "0.000001" {
		t.Fatalf("Format(1) = %s", got)
	}
	if got := FormatFixed(12_500_000); got != "12.500000" {
		t.Fatalf("FormatFixed = %s", got)
	}
	if got := Format(0); got != "0" {
		t.Fatalf("Format(0) = %s", got)
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(250, 1000); got != "25" {
		t.Fatalf("Percent = %s", got)
	}
	if got := Percent(1, 3); got != "33.33" {
		t.Fatalf("Percent = %s", got)
	}
	if got := Percent(5, 0); got != "0" {
		t.Fatalf("Percent zero whole = %s", got)
	}
}
