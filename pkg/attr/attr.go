// Package attr defines the standalone records spec §4.8 describes for
// signal/path attributes, pins, and external module declarations, and
// the builders that apply them onto the inline payloads hlim.Node
// already carries (AttributesData, PathAttributesData, PinData,
// ExternalData). Grounded on the teacher's codegen.BackendOptions
// shape: a plain option struct with setters, applied at construction
// time rather than mutated implicitly.
package attr

import (
	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/herr"
	"github.com/oisee/hlim/pkg/hlim"
	"github.com/oisee/hlim/pkg/script"
)

// SignalAttributes is the standalone record for spec §4.8's per-signal
// attribute bag (max_fanout, allow_fusing, crossing_clock_domain, plus
// a per-vendor map).
type SignalAttributes struct {
	MaxFanout           int
	AllowFusing         bool
	CrossingClockDomain bool
	Vendor              map[string]map[string]string
}

// NewSignalAttributes returns a zero-value record with its Vendor map
// ready to populate.
func NewSignalAttributes() *SignalAttributes {
	return &SignalAttributes{Vendor: make(map[string]map[string]string)}
}

// SetVendor records a vendor-specific key/value pair, creating the
// vendor's sub-map on first use.
func (a *SignalAttributes) SetVendor(vendor, key, value string) {
	if a.Vendor == nil {
		a.Vendor = make(map[string]map[string]string)
	}
	m, ok := a.Vendor[vendor]
	if !ok {
		m = make(map[string]string)
		a.Vendor[vendor] = m
	}
	m[key] = value
}

// Annotate splices an hlim.Attributes node in front of src, carrying
// this record's values, and returns the new node: since Attributes
// passes its input through to its output unchanged (spec §4.8), every
// existing sink of src is left alone and callers should wire further
// consumers to the returned node's output 0 instead of to src
// directly.
func (a *SignalAttributes) Annotate(c *hlim.Circuit, src hlim.NodePort) (*hlim.Node, error) {
	n := c.NewAttributes()
	if err := n.ConnectInput(0, src); err != nil {
		return nil, err
	}
	ad := n.Data.(*hlim.AttributesData)
	ad.MaxFanout = a.MaxFanout
	ad.AllowFusing = a.AllowFusing
	ad.CrossingClockDomain = a.CrossingClockDomain
	for vendor, kv := range a.Vendor {
		for k, v := range kv {
			if ad.Vendor == nil {
				ad.Vendor = make(map[string]map[string]string)
			}
			vm, ok := ad.Vendor[vendor]
			if !ok {
				vm = make(map[string]string)
				ad.Vendor[vendor] = vm
			}
			vm[k] = v
		}
	}
	return n, nil
}

// AnnotateWithScript is Annotate, except every vendor value is first
// evaluated as a Lua expression through ev.
func (a *SignalAttributes) AnnotateWithScript(c *hlim.Circuit, src hlim.NodePort, ev *script.Evaluator) (*hlim.Node, error) {
	resolved, err := evalVendor(ev, a.Vendor)
	if err != nil {
		return nil, err
	}
	withResolved := *a
	withResolved.Vendor = resolved
	return withResolved.Annotate(c, src)
}

func evalVendor(ev *script.Evaluator, vendor map[string]map[string]string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(vendor))
	for name, kv := range vendor {
		resolved, err := ev.EvalMap(kv)
		if err != nil {
			return nil, err
		}
		out[name] = resolved
	}
	return out, nil
}

// PathAttributes is the standalone record for spec §4.8's start->end
// timing-exception container (false_path, multi_cycle, and friends,
// carried generically via the same per-vendor map shape as
// SignalAttributes).
type PathAttributes struct {
	Vendor map[string]map[string]string
}

// NewPathAttributes returns a zero-value record with its Vendor map
// ready to populate.
func NewPathAttributes() *PathAttributes {
	return &PathAttributes{Vendor: make(map[string]map[string]string)}
}

// SetVendor records a vendor-specific key/value pair (e.g.
// vendor="xilinx", key="false_path", value="true").
func (p *PathAttributes) SetVendor(vendor, key, value string) {
	if p.Vendor == nil {
		p.Vendor = make(map[string]map[string]string)
	}
	m, ok := p.Vendor[vendor]
	if !ok {
		m = make(map[string]string)
		p.Vendor[vendor] = m
	}
	m[key] = value
}

// Build creates the hlim.PathAttributes node for a start->end pair.
func (p *PathAttributes) Build(c *hlim.Circuit, start, end hlim.NodePort) *hlim.Node {
	n := c.NewPathAttributes(start, end)
	pd := n.Data.(*hlim.PathAttributesData)
	for vendor, kv := range p.Vendor {
		for k, v := range kv {
			if pd.Vendor == nil {
				pd.Vendor = make(map[string]map[string]string)
			}
			vm, ok := pd.Vendor[vendor]
			if !ok {
				vm = make(map[string]string)
				pd.Vendor[vendor] = vm
			}
			vm[k] = v
		}
	}
	return n
}

// BuildWithScript is Build, except every vendor value is first
// evaluated as a Lua expression through ev.
func (p *PathAttributes) BuildWithScript(c *hlim.Circuit, start, end hlim.NodePort, ev *script.Evaluator) (*hlim.Node, error) {
	resolved, err := evalVendor(ev, p.Vendor)
	if err != nil {
		return nil, err
	}
	withResolved := *p
	withResolved.Vendor = resolved
	return withResolved.Build(c, start, end), nil
}

// DiffPair names the positive/negative legs of a differential pin
// pair (spec §4.8 "optional differential suffix pair").
type DiffPair struct {
	Pos string
	Neg string
}

// Pin is the standalone record for spec §4.8's pin declaration:
// direction, name, optional differential suffix pair, optional input
// clock override, and a simulation_only escape hatch (e.g. a testbench
// stimulus pin that never reaches the exported entity).
type Pin struct {
	Kind           hlim.PinKind
	Name           string
	Diff           *DiffPair
	ClockOverride  clock.Clock
	SimulationOnly bool
}

// Build creates the underlying hlim.Pin node of the given connection
// type and copies this record's fields onto its PinData.
func (p *Pin) Build(c *hlim.Circuit, typ hlim.ConnectionType) (*hlim.Node, error) {
	if p.ClockOverride != nil && p.Kind != hlim.PinInput {
		return nil, herr.New(herr.DesignError, "pin %q: clock override is only valid on an input pin", p.Name)
	}
	n := c.NewPin(p.Kind, p.Name, typ)
	pd := n.Data.(*hlim.PinData)
	pd.ClockOverride = p.ClockOverride
	pd.SimulationOnly = p.SimulationOnly
	if p.Diff != nil {
		pd.IsDifferential = true
		pd.DiffPos = p.Diff.Pos
		pd.DiffNeg = p.Diff.Neg
	}
	if p.ClockOverride != nil {
		n.Clocks = append(n.Clocks, p.ClockOverride)
	}
	return n, nil
}

// ExternalModule is the standalone record for spec §4.8's black-box
// module declaration: declared ins/outs/inouts, generics, and the
// bound per-port clock relations the CDC checker validates consumed
// inputs against.
type ExternalModule struct {
	ModuleName string
	Ins        []hlim.ConnectionType
	Outs       []hlim.ConnectionType
	Inouts     []hlim.ConnectionType
	Generics   map[string]string

	// InClocks has one entry per input, in the order Ins then Inouts
	// are concatenated onto the node's input list (Build appends
	// Inouts to both the input and output sides, since a black box's
	// inout port is simultaneously a consumer and a driver from this
	// graph's point of view).
	InClocks []clock.Clock
	// OutClockRelations has one entry per output, Outs then Inouts.
	OutClockRelations []clock.Clock
}

// Build instantiates the hlim.External node, binds its clock
// relations, and copies Generics onto it. Generics values are taken
// literally; use BuildWithScript to resolve expression-valued
// generics first.
func (m *ExternalModule) Build(c *hlim.Circuit) (*hlim.Node, error) {
	ins := append(append([]hlim.ConnectionType(nil), m.Ins...), m.Inouts...)
	outs := append(append([]hlim.ConnectionType(nil), m.Outs...), m.Inouts...)
	if len(m.InClocks) != len(ins) {
		return nil, herr.New(herr.DesignError, "external %q: %d in_clocks for %d inputs (ins+inouts)", m.ModuleName, len(m.InClocks), len(ins))
	}
	if len(m.OutClockRelations) != len(outs) {
		return nil, herr.New(herr.DesignError, "external %q: %d out_clock_relations for %d outputs (outs+inouts)", m.ModuleName, len(m.OutClockRelations), len(outs))
	}

	n := c.NewExternal(m.ModuleName, ins, outs)
	if err := n.BindExternalClocks(m.InClocks, m.OutClockRelations); err != nil {
		return nil, err
	}
	ed := n.Data.(*hlim.ExternalData)
	for k, v := range m.Generics {
		ed.Generics[k] = v
	}
	return n, nil
}

// BuildWithScript is Build, except every Generics value is first
// evaluated as a Lua expression through ev (e.g. "8*2" resolves to
// "16" before landing on the node), matching the "parametric
// generation" role gopher-lua plays for the teacher's code generator.
func (m *ExternalModule) BuildWithScript(c *hlim.Circuit, ev *script.Evaluator) (*hlim.Node, error) {
	resolved, err := ev.EvalMap(m.Generics)
	if err != nil {
		return nil, err
	}
	withResolved := *m
	withResolved.Generics = resolved
	return withResolved.Build(c)
}
