// Package bitvec implements BitVectorState (spec §4.1): dense
// two-plane (value, defined) packed bit storage with range
// extract/insert, sized in bits rather than bytes so that arbitrary
// circuit signal widths pack tightly.
package bitvec

import (
	"math/big"
	"math/bits"

	"github.com/oisee/hlim/pkg/herr"
)

// Plane selects which bit-plane an operation addresses.
type Plane int

const (
	Value Plane = iota
	Defined
	numPlanes
)

const wordBits = 64

// State is a fixed-capacity-on-demand packed bit vector with two
// planes. The zero value is a usable empty State.
type State struct {
	words [numPlanes][]uint64
	n     int // length in bits
}

// New returns a State of length n bits, all-zero value and
// all-undefined (Defined plane clear), matching simulator power-on
// semantics (spec §4.6).
func New(n int) *State {
	s := &State{}
	s.Resize(n)
	return s
}

// Len returns the current length in bits.
func (s *State) Len() int { return s.n }

// Resize grows or shrinks the vector. Growing zero-extends both
// planes; shrinking simply truncates. Bits beyond Len() are
// unspecified per the contract in spec §4.1 and must never be read.
func (s *State) Resize(n int) {
	if n < 0 {
		n = 0
	}
	nw := wordsFor(n)
	for p := 0; p < int(numPlanes); p++ {
		if len(s.words[p]) < nw {
			grown := make([]uint64, nw)
			copy(grown, s.words[p])
			s.words[p] = grown
		}
	}
	s.n = n
}

func wordsFor(nbits int) int {
	return (nbits + wordBits - 1) / wordBits
}

// Clear zeroes both planes without changing the length.
func (s *State) Clear() {
	for p := 0; p < int(numPlanes); p++ {
		for i := range s.words[p] {
			s.words[p][i] = 0
		}
	}
}

func (s *State) checkIdx(idx int) {
	if idx < 0 || idx >= s.n {
		panic(herr.New(herr.InternalError, "bitvec index %d out of range [0,%d)", idx, s.n))
	}
}

// Get reads a single bit from the given plane.
func (s *State) Get(plane Plane, idx int) bool {
	s.checkIdx(idx)
	w, b := idx/wordBits, uint(idx%wordBits)
	return s.words[plane][w]&(1<<b) != 0
}

// Set writes a single bit.
func (s *State) Set(plane Plane, idx int, v bool) {
	s.checkIdx(idx)
	w, b := idx/wordBits, uint(idx%wordBits)
	if v {
		s.words[plane][w] |= 1 << b
	} else {
		s.words[plane][w] &^= 1 << b
	}
}

// Toggle flips a single bit and returns its new value.
func (s *State) Toggle(plane Plane, idx int) bool {
	v := !s.Get(plane, idx)
	s.Set(plane, idx, v)
	return v
}

// ExtractNonstraddling reads a contiguous subfield of at most
// wordBits bits that lies entirely within one backing machine word.
// Callers that straddle a word boundary violate the precondition
// documented in spec §8 and receive an InternalError panic, matching
// the "precondition violation" language there.
func (s *State) ExtractNonstraddling(plane Plane, start, size int) uint64 {
	if size == 0 {
		return 0
	}
	if size > wordBits {
		panic(herr.New(herr.InternalError, "extract_nonstraddling size %d exceeds word width", size))
	}
	if start/wordBits != (start+size-1)/wordBits {
		panic(herr.New(herr.InternalError, "extract_nonstraddling [%d,%d) straddles a word boundary", start, start+size))
	}
	if start < 0 || start+size > s.n {
		panic(herr.New(herr.InternalError, "extract_nonstraddling [%d,%d) out of range [0,%d)", start, start+size, s.n))
	}
	w := start / wordBits
	off := uint(start % wordBits)
	mask := maskFor(size)
	return (s.words[plane][w] >> off) & mask
}

// InsertNonstraddling writes a contiguous, non-straddling subfield.
func (s *State) InsertNonstraddling(plane Plane, start, size int, v uint64) {
	if size == 0 {
		return
	}
	if size > wordBits {
		panic(herr.New(herr.InternalError, "insert_nonstraddling size %d exceeds word width", size))
	}
	if start/wordBits != (start+size-1)/wordBits {
		panic(herr.New(herr.InternalError, "insert_nonstraddling [%d,%d) straddles a word boundary", start, start+size))
	}
	if start < 0 || start+size > s.n {
		panic(herr.New(herr.InternalError, "insert_nonstraddling [%d,%d) out of range [0,%d)", start, start+size, s.n))
	}
	w := start / wordBits
	off := uint(start % wordBits)
	mask := maskFor(size) << off
	s.words[plane][w] = (s.words[plane][w] &^ mask) | ((v << off) & mask)
}

func maskFor(size int) uint64 {
	if size >= wordBits {
		return ^uint64(0)
	}
	return (uint64(1) << uint(size)) - 1
}

// Extract returns a new State holding bits [start,start+size) of both
// planes, straddling word boundaries freely (unlike
// ExtractNonstraddling).
func (s *State) Extract(start, size int) *State {
	out := New(size)
	for p := Plane(0); p < numPlanes; p++ {
		copyBits(out, s, p, 0, start, size)
	}
	return out
}

// CopyRange copies size bits from src[srcStart:] to dst[dstStart:] in
// place, for both planes.
func CopyRange(dst *State, dstStart int, src *State, srcStart, size int) {
	for p := Plane(0); p < numPlanes; p++ {
		copyBits(dst, src, p, dstStart, srcStart, size)
	}
}

func copyBits(dst *State, src *State, plane Plane, dstStart, srcStart, size int) {
	for i := 0; i < size; i++ {
		dst.Set(plane, dstStart+i, src.Get(plane, srcStart+i))
	}
}

// AllDefinedNonstraddling reports whether every bit in [start,
// start+size) of the Defined plane is 1, restricted (like its
// sibling) to a range within a single word.
func (s *State) AllDefinedNonstraddling(start, size int) bool {
	if size == 0 {
		return true
	}
	word := s.ExtractNonstraddling(Defined, start, size)
	want := maskFor(size)
	return word&want == want
}

// ExtractWide reads a bit-for-bit value of at most 64 bits starting at
// an arbitrary, possibly non-word-aligned bit offset. Unlike
// ExtractNonstraddling it may straddle word boundaries; it costs O(size)
// instead of O(1), which is acceptable for a reference simulator.
func (s *State) ExtractWide(plane Plane, start, size int) uint64 {
	if size > wordBits {
		panic(herr.New(herr.InternalError, "ExtractWide size %d exceeds 64 bits; use ExtractBig", size))
	}
	var v uint64
	for i := 0; i < size; i++ {
		if s.Get(plane, start+i) {
			v |= uint64(1) << uint(i)
		}
	}
	return v
}

// InsertWide is ExtractWide's write counterpart.
func (s *State) InsertWide(plane Plane, start, size int, v uint64) {
	for i := 0; i < size; i++ {
		s.Set(plane, start+i, v&(uint64(1)<<uint(i)) != 0)
	}
}

// AllDefined reports whether every bit in [start,start+size) of the
// Defined plane is 1, with no single-word restriction.
func (s *State) AllDefined(start, size int) bool {
	for i := 0; i < size; i++ {
		if !s.Get(Defined, start+i) {
			return false
		}
	}
	return true
}

// ExtractBig reads an arbitrary-width unsigned value as a *big.Int,
// used by the Arithmetic/Compare node kinds so that widths beyond 64
// bits are handled correctly.
func (s *State) ExtractBig(plane Plane, start, size int) *big.Int {
	out := new(big.Int)
	for i := size - 1; i >= 0; i-- {
		out.Lsh(out, 1)
		if s.Get(plane, start+i) {
			out.SetBit(out, 0, 1)
		}
	}
	return out
}

// InsertBig writes the low `size` bits of v (truncating silently, the
// normal HDL wraparound behaviour for arithmetic overflow).
func (s *State) InsertBig(plane Plane, start, size int, v *big.Int) {
	for i := 0; i < size; i++ {
		s.Set(plane, start+i, v.Bit(i) == 1)
	}
}

// PopCountDefined is a small utility exercised by the simulator to
// report how much of a wide bus is known, used for diagnostics.
func (s *State) PopCountDefined(start, size int) int {
	count := 0
	remaining := size
	pos := start
	for remaining > 0 {
		word := pos / wordBits
		wordStart := word * wordBits
		avail := wordStart + wordBits - pos
		take := remaining
		if take > avail {
			take = avail
		}
		count += bits.OnesCount64(s.ExtractNonstraddling(Defined, pos, take))
		pos += take
		remaining -= take
	}
	return count
}
