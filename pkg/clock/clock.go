// Package clock implements the hierarchical clock model of spec §4.2:
// a root clock with an absolute frequency, clocks derived from it by
// a rational multiplier and phase shift, and the register/memory
// reset attributes carried per clock and consumed by the program
// builder and VHDL exporter.
package clock

import (
	"github.com/oisee/hlim/pkg/herr"
)

// Edge is the triggering edge of a clock.
type Edge int

const (
	Rising Edge = iota
	Falling
)

// ResetType is the per-clock register reset discipline.
type ResetType int

const (
	ResetNone ResetType = iota
	ResetSynchronous
	ResetAsynchronous
)

// TriState models a three-valued "do we care" usage flag, used for
// register_enable_usage and register_reset_usage.
type TriState int

const (
	DontCare TriState = iota
	Use
	DontUse
)

// VendorAttr is a single vendor-specific attribute value.
type VendorAttr struct {
	Type  string
	Value string
}

// RegisterAttributes holds the per-clock register/memory reset policy
// described in spec §4.2.
type RegisterAttributes struct {
	ResetType            ResetType
	InitializeRegs       bool
	ResetActiveHigh      bool
	MemoryResetType      ResetType
	InitializeMemory     bool
	RegisterEnableUsage  TriState
	RegisterResetUsage   TriState
	VendorAttributes     map[string]map[string]VendorAttr // vendor -> name -> attr
}

// NewRegisterAttributes returns the zero-value defaults: no reset
// wired, enable/reset usage left to the downstream tool's discretion.
func NewRegisterAttributes() RegisterAttributes {
	return RegisterAttributes{
		VendorAttributes: make(map[string]map[string]VendorAttr),
	}
}

// SetVendorAttribute records an attribute string under (vendor, name).
func (a *RegisterAttributes) SetVendorAttribute(vendor, name string, v VendorAttr) {
	if a.VendorAttributes == nil {
		a.VendorAttributes = make(map[string]map[string]VendorAttr)
	}
	m, ok := a.VendorAttributes[vendor]
	if !ok {
		m = make(map[string]VendorAttr)
		a.VendorAttributes[vendor] = m
	}
	m[name] = v
}

// Clock is the common interface implemented by RootClock, DerivedClock
// and GatedClock. Clocks are owned by a Circuit with stable identity;
// callers hold *RootClock/*DerivedClock/*GatedClock pointers, never
// copies.
type Clock interface {
	ClockName() string
	Edge() Edge
	Attributes() *RegisterAttributes
	// AbsoluteFrequency returns the clock's absolute frequency (the
	// root's frequency times every multiplier along its derivation
	// chain), or herr.SimError-tagged
	// UnknownFrequency if the chain passes through a GatedClock.
	AbsoluteFrequency() (Rational, error)
	// AbsolutePhaseShift returns the phase shift relative to the same
	// root, in units of the root's period.
	AbsolutePhaseShift() (Rational, error)
}

// RootClock is an ungated, externally supplied clock with a known
// absolute frequency.
type RootClock struct {
	Name       string
	AbsFreq    Rational
	TrigEdge   Edge
	RegAttrs   RegisterAttributes
}

func NewRootClock(name string, freq Rational, edge Edge) *RootClock {
	return &RootClock{Name: name, AbsFreq: freq, TrigEdge: edge, RegAttrs: NewRegisterAttributes()}
}

func (c *RootClock) ClockName() string                { return c.Name }
func (c *RootClock) Edge() Edge                        { return c.TrigEdge }
func (c *RootClock) Attributes() *RegisterAttributes   { return &c.RegAttrs }
func (c *RootClock) AbsoluteFrequency() (Rational, error) { return c.AbsFreq, nil }
func (c *RootClock) AbsolutePhaseShift() (Rational, error) { return R(0, 1), nil }

// DerivedClock is a clock generated from a parent by a rational
// multiplier and phase shift (e.g. a /2 divider or a PLL output).
type DerivedClock struct {
	Name        string
	Parent      Clock
	Multiplier  Rational
	PhaseShift  Rational
	PhaseSync   bool
	TrigEdge    Edge
	RegAttrs    RegisterAttributes
}

func NewDerivedClock(name string, parent Clock, multiplier, phaseShift Rational, edge Edge) *DerivedClock {
	return &DerivedClock{
		Name:       name,
		Parent:     parent,
		Multiplier: multiplier,
		PhaseShift: phaseShift,
		TrigEdge:   edge,
		RegAttrs:   NewRegisterAttributes(),
	}
}

func (c *DerivedClock) ClockName() string              { return c.Name }
func (c *DerivedClock) Edge() Edge                      { return c.TrigEdge }
func (c *DerivedClock) Attributes() *RegisterAttributes { return &c.RegAttrs }

func (c *DerivedClock) AbsoluteFrequency() (Rational, error) {
	parentFreq, err := c.Parent.AbsoluteFrequency()
	if err != nil {
		return Rational{}, err
	}
	return parentFreq.Mul(c.Multiplier), nil
}

func (c *DerivedClock) AbsolutePhaseShift() (Rational, error) {
	parentShift, err := c.Parent.AbsolutePhaseShift()
	if err != nil {
		return Rational{}, err
	}
	return parentShift.Add(c.PhaseShift), nil
}

// GatedClock is a clock whose trigger is qualified by a circuit
// signal (e.g. a clock-enable gate) rather than a fixed rational
// relationship to its parent. Its absolute frequency is therefore
// unknowable from the clock tree alone, matching the "signal-driven
// clock" failure mode named in spec §4.2. Not explicitly named as a
// clock kind in spec.md (which enumerates "two variants"), but
// required for that clause to have a referent; treated as a
// supplemented feature.
type GatedClock struct {
	Name     string
	Parent   Clock
	TrigEdge Edge
	RegAttrs RegisterAttributes
}

func NewGatedClock(name string, parent Clock, edge Edge) *GatedClock {
	return &GatedClock{Name: name, Parent: parent, TrigEdge: edge, RegAttrs: NewRegisterAttributes()}
}

func (c *GatedClock) ClockName() string              { return c.Name }
func (c *GatedClock) Edge() Edge                      { return c.TrigEdge }
func (c *GatedClock) Attributes() *RegisterAttributes { return &c.RegAttrs }

// AbsoluteFrequency always fails for a GatedClock, with a
// herr.SimError whose message names UnknownFrequency; clocks derived
// from it pass that error on.
func (c *GatedClock) AbsoluteFrequency() (Rational, error) {
	return Rational{}, herr.New(herr.SimError, "clock %q is signal-gated: UnknownFrequency", c.Name)
}

func (c *GatedClock) AbsolutePhaseShift() (Rational, error) {
	return Rational{}, herr.New(herr.SimError, "clock %q is signal-gated: UnknownFrequency", c.Name)
}

// RelativeTo expresses a's frequency as a ratio of b's frequency, i.e.
// how many a-periods fit in one b-period, and the phase difference
// expressed relative to b's period. Matches spec §4.2 "relative_to".
func RelativeTo(a, b Clock) (freqRatio Rational, phaseDiff Rational, err error) {
	fa, err := a.AbsoluteFrequency()
	if err != nil {
		return Rational{}, Rational{}, err
	}
	fb, err := b.AbsoluteFrequency()
	if err != nil {
		return Rational{}, Rational{}, err
	}
	pa, err := a.AbsolutePhaseShift()
	if err != nil {
		return Rational{}, Rational{}, err
	}
	pb, err := b.AbsolutePhaseShift()
	if err != nil {
		return Rational{}, Rational{}, err
	}
	return fa.Div(fb), pa.Sub(pb), nil
}
