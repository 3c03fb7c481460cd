package bitvec

import "testing"

func TestGetSetRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		width int
		idx   int
		value bool
	}{
		{"low bit", 8, 0, true},
		{"high bit", 65, 64, true},
		{"mid word boundary", 130, 63, true},
		{"clear bit", 8, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.width)
			s.Set(Value, tt.idx, tt.value)
			if got := s.Get(Value, tt.idx); got != tt.value {
				t.Fatalf("Get(%d) = %v, want %v", tt.idx, got, tt.value)
			}
		})
	}
}

func TestExtractInsertNonstraddling(t *testing.T) {
	s := New(64)
	s.InsertNonstraddling(Value, 4, 4, 0xA)
	got := s.ExtractNonstraddling(Value, 4, 4)
	if got != 0xA {
		t.Fatalf("extract = %#x, want 0xa", got)
	}
	if s.ExtractNonstraddling(Value, 0, 4) != 0 {
		t.Fatalf("expected untouched low nibble to remain 0")
	}
}

func TestExtractNonstraddlingPanicsOnStraddle(t *testing.T) {
	s := New(128)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on straddling extract")
		}
	}()
	s.ExtractNonstraddling(Value, 60, 8)
}

func TestAllDefinedNonstraddling(t *testing.T) {
	s := New(16)
	if s.AllDefinedNonstraddling(0, 16) {
		t.Fatal("fresh state must be all-undefined")
	}
	for i := 0; i < 16; i++ {
		s.Set(Defined, i, true)
	}
	if !s.AllDefinedNonstraddling(0, 16) {
		t.Fatal("expected all-defined after setting every bit")
	}
}

func TestExtractZeroLength(t *testing.T) {
	s := New(8)
	out := s.Extract(4, 0)
	if out.Len() != 0 {
		t.Fatalf("zero-length extract should have Len()==0, got %d", out.Len())
	}
}

func TestCopyRange(t *testing.T) {
	src := New(8)
	src.InsertNonstraddling(Value, 0, 8, 0xAB)
	dst := New(16)
	CopyRange(dst, 4, src, 0, 8)
	if got := dst.ExtractNonstraddling(Value, 4, 8); got != 0xAB {
		t.Fatalf("copied range = %#x, want 0xab", got)
	}
}

func TestResizePreservesExistingBits(t *testing.T) {
	s := New(4)
	s.InsertNonstraddling(Value, 0, 4, 0xF)
	s.Resize(70)
	if got := s.ExtractNonstraddling(Value, 0, 4); got != 0xF {
		t.Fatalf("resize clobbered existing bits: got %#x", got)
	}
	if s.Get(Value, 65) {
		t.Fatal("resize should zero-extend")
	}
}
