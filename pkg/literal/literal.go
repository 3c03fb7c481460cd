// Package literal parses the constant literal syntax accepted by the
// front-end (spec §6): single bits "0"/"1", 0b/0B binary, 0x/0X hex,
// and plain decimal, with '\'' as an ignored digit separator.
package literal

import (
	"strings"

	"github.com/oisee/hlim/pkg/herr"
)

// Value is a parsed literal: its numeric value and its bit width, which
// is the digit count times bits per digit for binary and hex, the
// minimal binary width of the value for decimal, and 1 for the
// single-bit forms "0" and "1" (callers are free to widen it).
type Value struct {
	Bits  uint64
	Width uint32
	Base  Base
}

type Base int

const (
	Binary Base = iota
	Hex
	Decimal
)

// Parse parses s per the grammar in spec §6.
func Parse(s string) (Value, error) {
	if s == "0" {
		return Value{Bits: 0, Width: 1, Base: Decimal}, nil
	}
	if s == "1" {
		return Value{Bits: 1, Width: 1, Base: Decimal}, nil
	}
	if len(s) == 0 {
		return Value{}, herr.New(herr.LiteralError, "empty literal")
	}

	switch {
	case hasPrefix(s, "0b") || hasPrefix(s, "0B"):
		return parseBase(s[2:], 2, Binary, digitsPerBit(1))
	case hasPrefix(s, "0x") || hasPrefix(s, "0X"):
		return parseBase(s[2:], 16, Hex, digitsPerBit(4))
	default:
		return parseDecimal(s)
	}
}

func hasPrefix(s, p string) bool {
	return len(s) >= len(p) && s[:len(p)] == p
}

// digitsPerBit returns a width-per-digit function used to compute the
// literal's implied bit width from its (separator-stripped) digit
// count.
func digitsPerBit(bitsPerDigit uint32) func(ndigits int) uint32 {
	return func(ndigits int) uint32 {
		return uint32(ndigits) * bitsPerDigit
	}
}

func stripSeparators(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r == '\'' {
			if i == 0 {
				return "", herr.New(herr.LiteralError, "leading digit separator")
			}
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" {
		return "", herr.New(herr.LiteralError, "no digits after prefix")
	}
	return out, nil
}

func parseBase(digitsWithSeps string, base int, b Base, width func(int) uint32) (Value, error) {
	digits, err := stripSeparators(digitsWithSeps)
	if err != nil {
		return Value{}, err
	}
	var value uint64
	for _, r := range digits {
		d, ok := digitValue(r)
		if !ok || int(d) >= base {
			return Value{}, herr.New(herr.LiteralError, "invalid digit %q for base %d", r, base)
		}
		// Overflow of the accumulator is not itself an error for
		// binary/hex: width is defined by digit count, not by u64
		// range, since HDL literals may exceed 64 bits in principle.
		// We still track the low 64 bits for convenience.
		value = value*uint64(base) + uint64(d)
	}
	return Value{Bits: value, Width: width(len(digits)), Base: b}, nil
}

func parseDecimal(s string) (Value, error) {
	digits, err := stripSeparators(s)
	if err != nil {
		return Value{}, err
	}
	if len(digits) > 1 && digits[0] == '0' {
		return Value{}, herr.New(herr.LiteralError, "decimal literal %q has a leading zero", s)
	}
	var value uint64
	for _, r := range digits {
		d, ok := digitValue(r)
		if !ok || d > 9 {
			return Value{}, herr.New(herr.LiteralError, "invalid decimal digit %q", r)
		}
		if value > (^uint64(0)-uint64(d))/10 {
			return Value{}, herr.New(herr.LiteralError, "decimal literal %q overflows 64 bits", s)
		}
		value = value*10 + uint64(d)
	}
	return Value{Bits: value, Width: minimalWidth(value), Base: Decimal}, nil
}

func minimalWidth(v uint64) uint32 {
	if v == 0 {
		return 1
	}
	w := uint32(0)
	for v > 0 {
		w++
		v >>= 1
	}
	return w
}

func digitValue(r rune) (uint64, bool) {
	switch {
	case r >= '0' && r <= '9':
		return uint64(r - '0'), true
	case r >= 'a' && r <= 'f':
		return uint64(r-'a') + 10, true
	case r >= 'A' && r <= 'F':
		return uint64(r-'A') + 10, true
	default:
		return 0, false
	}
}

// Format renders v back to the given base, for the round-trip property
// in spec §8 (modulo separators and case: callers compare the
// canonical lowercase, no-separator form).
func Format(v Value) string {
	switch v.Base {
	case Binary:
		return "0b" + formatUint(v.Bits, 2)
	case Hex:
		return "0x" + formatUint(v.Bits, 16)
	default:
		return formatUint(v.Bits, 10)
	}
}

func formatUint(v uint64, base int) string {
	if v == 0 {
		return "0"
	}
	const digits = "0123456789abcdef"
	var buf [64]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v%uint64(base)]
		v /= uint64(base)
	}
	return string(buf[i:])
}
