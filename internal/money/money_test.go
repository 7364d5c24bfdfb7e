package money

import "testing"

func TestValid(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{name: "common two-exponent currency", code: "USD", valid: true},
		{name: "zero-exponent currency", code: "JPY", valid: true},
		{name: "three-exponent currency", code: "BHD", valid: true},
		{name: "lowercase code", code: "usd", valid: false},
		{name: "too short", code: "US", valid: false},
		{name: "too long", code: "USDT", valid: false},
		{name: "unknown code", code: "XXX", valid: false},
		{name: "empty", code: "", valid: false},
		{name: "digits", code: "US1", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.code); got != tt.valid {
				t.Errorf("Valid(%q) = %v, want %v", tt.code, got, tt.valid)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		code     string
		expected string
	}{
		{name: "whole dollars", amount: 100000, code: "USD", expected: "1000.00"},
		{name: "cents", amount: 1050, code: "USD", expected: "10.50"},
		{name: "negative amount", amount: -30000, code: "USD", expected: "-300.00"},
		{name: "single minor unit", amount: 1, code: "EUR", expected: "0.01"},
		{name: "zero-exponent currency keeps no decimals", amount: 150, code: "JPY", expected: "150"},
		{name: "three-exponent currency", amount: 12345, code: "BHD", expected: "12.345"},
		{name: "zero", amount: 0, code: "USD", expected: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.amount, tt.code); got != tt.expected {
				t.Errorf("Format(%d, %q) = %q, want %q", tt.amount, tt.code, got, tt.expected)
			}
		})
	}
}

func TestExponentFallback(t *testing.T) {
	if got := Exponent("ZZZ"); got != 2 {
		t.Errorf("Exponent for unknown code = %d, want fallback 2", got)
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	d := Decimal(1050, "USD")
	if d.String() != "10.5" {
		t.Errorf("Decimal(1050, USD) = %s, want 10.5", d.String())
	}
	// Shifting back by the exponent must reproduce the minor units exactly.
	if minor := d.Shift(Exponent("USD")).IntPart(); minor != 1050 {
		t.Errorf("round trip = %d, want 1050", minor)
	}
}
