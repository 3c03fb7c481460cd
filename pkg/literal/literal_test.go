package literal

import (
	"testing"

	"github.com/oisee/hlim/pkg/herr"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		bits  uint64
		width uint32
		base  Base
	}{
		{"bit zero", "0", 0, 1, Decimal},
		{"bit one", "1", 1, 1, Decimal},
		{"decimal", "42", 42, 6, Decimal},
		{"decimal with separators", "1'000'000", 1000000, 20, Decimal},
		{"binary", "0b1010", 0xA, 4, Binary},
		{"binary uppercase prefix", "0B1010", 0xA, 4, Binary},
		{"binary with separators", "0b1010'1010", 0xAA, 8, Binary},
		{"hex", "0xFF", 0xFF, 8, Hex},
		{"hex lowercase prefix", "0xff", 0xFF, 8, Hex},
		{"hex with separators", "0xDE'AD'BE'EF", 0xDEADBEEF, 32, Hex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.in, err)
			}
			if v.Bits != tt.bits {
				t.Fatalf("Parse(%q).Bits = %#x, want %#x", tt.in, v.Bits, tt.bits)
			}
			if v.Width != tt.width {
				t.Fatalf("Parse(%q).Width = %d, want %d", tt.in, v.Width, tt.width)
			}
			if v.Base != tt.base {
				t.Fatalf("Parse(%q).Base = %v, want %v", tt.in, v.Base, tt.base)
			}
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	tests := []string{"0", "1", "42", "0b1010", "0xff"}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			v, err := Parse(in)
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", in, err)
			}
			out := Format(v)
			v2, err := Parse(out)
			if err != nil {
				t.Fatalf("Parse(Format(%q)=%q) unexpected error: %v", in, out, err)
			}
			if v2.Bits != v.Bits {
				t.Fatalf("round trip through Format(%q)=%q changed Bits: %#x != %#x", in, out, v2.Bits, v.Bits)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"leading zero decimal", "007"},
		{"leading separator", "'123"},
		{"empty after binary prefix", "0b"},
		{"empty after hex prefix", "0x"},
		{"invalid binary digit", "0b102"},
		{"invalid hex digit", "0xFG"},
		{"invalid decimal digit", "12a"},
		{"decimal overflow", "99999999999999999999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			if err == nil {
				t.Fatalf("Parse(%q) expected error, got nil", tt.in)
			}
			if !herr.Is(err, herr.LiteralError) {
				t.Fatalf("Parse(%q) error = %v, want a LiteralError", tt.in, err)
			}
		})
	}
}
