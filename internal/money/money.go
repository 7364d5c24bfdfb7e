// Package money provides minor-unit arithmetic helpers for ISO 4217
// currencies. Ledger amounts are stored as signed int64 minor units; this
// package owns the currency registry and the conversion to decimal
// major-unit strings used in event payloads.
package money

import "github.com/shopspring/decimal"

// exponents maps recognized ISO 4217 alphabetic codes to their minor-unit
// exponent: the number of digits after the decimal point in the major unit.
// Most currencies use 2; JPY-style currencies use 0; a few use 3.
var exponents = map[string]int32{
	"AED": 2, "AUD": 2, "BRL": 2, "CAD": 2, "CHF": 2, "CNY": 2, "CZK": 2,
	"DKK": 2, "EUR": 2, "GBP": 2, "HKD": 2, "ILS": 2, "INR": 2, "KZT": 2,
	"MXN": 2, "NOK": 2, "NZD": 2, "PLN": 2, "RUB": 2, "SAR": 2, "SEK": 2,
	"SGD": 2, "TRY": 2, "USD": 2, "ZAR": 2,
	"CLP": 0, "ISK": 0, "JPY": 0, "KRW": 0, "VND": 0,
	"BHD": 3, "JOD": 3, "KWD": 3, "OMR": 3, "TND": 3,
}

// Valid reports whether code is a recognized ISO 4217 alphabetic code.
func Valid(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	_, ok := exponents[code]
	return ok
}

// Exponent returns the minor-unit exponent for a recognized currency code.
// Unrecognized codes fall back to 2, the most common exponent.
func Exponent(code string) int32 {
	if exp, ok := exponents[code]; ok {
		return exp
	}
	return 2
}

// Decimal converts an amount in minor units to its major-unit decimal value,
// e.g. 1050 USD minor units become 10.50.
func Decimal(amount int64, code string) decimal.Decimal {
	return decimal.New(amount, -Exponent(code))
}

// Format renders an amount in minor units as a fixed-point decimal string
// with the currency's full minor precision, e.g. "10.50" for 1050 USD or
// "150" for 150 JPY.
func Format(amount int64, code string) string {
	return Decimal(amount, code).StringFixed(Exponent(code))
}
