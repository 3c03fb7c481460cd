package hlim

import (
	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/herr"
)

// Kind is the closed set of node kinds (spec §3), dispatched by
// explicit switch rather than a polymorphic interface per node kind —
// the same "sum type over a closed set, behaviour by match" shape the
// teacher uses for ir.Opcode/ir.Instruction (pkg/ir/ir.go).
type Kind int

const (
	KindSignal Kind = iota
	KindConstant
	KindRewire
	KindArithmetic
	KindLogic
	KindCompare
	KindMultiplexer
	KindPriorityConditional
	KindRegister
	KindMemory
	KindMemPort
	KindPin
	KindExternal
	KindSignalTap
	KindExportOverride
	KindAttributes
	KindPathAttributes
	KindCDC
	KindMultiDriver
)

func (k Kind) String() string {
	names := [...]string{
		"Signal", "Constant", "Rewire", "Arithmetic", "Logic", "Compare",
		"Multiplexer", "PriorityConditional", "Register", "Memory", "MemPort",
		"Pin", "External", "SignalTap", "ExportOverride", "Attributes",
		"PathAttributes", "CDC", "MultiDriver",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "UnknownKind"
	}
	return names[k]
}

// Fixed register input port indices (spec §3 invariant 4).
const (
	RegDataInput        = 0
	RegResetValueInput  = 1
	RegEnableInput      = 2
	regFixedInputCount  = 3
)

// Input is one input port: at most one driver.
type Input struct {
	Driver NodePort
}

// Output is one output port: a type, a production kind, and the list
// of sinks currently driven from it.
type Output struct {
	Type    ConnectionType
	OutKind OutputKind
	Sinks   []NodePort
}

// Node is the concrete representation of every HLIM node kind. Kind-
// specific parameters live in Data, type-asserted by the Kind field;
// Inputs/Outputs are the generic, kind-agnostic wiring surface every
// node shares.
type Node struct {
	ID      int
	Kind    Kind
	Name    string
	Comment string
	Group   *NodeGroup
	Clocks  []clock.Clock
	Loc     herr.Location

	Inputs  []Input
	Outputs []Output

	Data any
}

// --- kind-specific payloads ---

type ArithOp int

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
)

func (o ArithOp) String() string {
	return [...]string{"Add", "Sub", "Mul", "Div", "Rem"}[o]
}

type LogicOp int

const (
	OpAnd LogicOp = iota
	OpNand
	OpOr
	OpNor
	OpXor
	OpXnor
	OpNot
)

func (o LogicOp) String() string {
	return [...]string{"And", "Nand", "Or", "Nor", "Xor", "Xnor", "Not"}[o]
}

type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
	OpLt
	OpGt
	OpLeq
	OpGeq
)

func (o CompareOp) String() string {
	return [...]string{"Eq", "Neq", "Lt", "Gt", "Leq", "Geq"}[o]
}

// ArithmeticData/LogicData/CompareData hold the specific operator.
type ArithmeticData struct{ Op ArithOp }
type LogicData struct{ Op LogicOp }
type CompareData struct{ Op CompareOp }

// ConstantData holds the fixed value/defined planes produced at
// power-on (spec §3 invariant 5: Constant outputs are never
// recomputed).
type ConstantData struct {
	Value *bitvec.State
}

// RewireRangeKind selects a rewire output range's source (spec §3).
type RewireRangeKind int

const (
	RewireFromInput RewireRangeKind = iota
	RewireZero
	RewireOne
)

// RewireRange is one contiguous slice of a Rewire node's output word.
type RewireRange struct {
	Kind   RewireRangeKind
	Input  int // input index, used when Kind == RewireFromInput
	Offset int // bit offset into that input
	Width  int
}

type RewireData struct {
	Ranges []RewireRange
}

// MultiplexerData records the data-port count N (port 0 is always the
// selector, ports 1..N the data inputs).
type MultiplexerData struct {
	N int
}

// PriorityConditionalData records how many (condition,value) pairs
// have been added beyond the fixed default input at port 0.
type PriorityConditionalData struct {
	NumChoices int
}

// RegisterData has no fields: a register's reset value arrives on its
// RegResetValueInput input, and nothing else is stored per register.
type RegisterData struct{}

// MemoryData / MemPortData model a memory with N ports. MemPort nodes
// reference their owning Memory node; a memory without any bound
// clock on at least one write port is a SimError at program-build
// time (spec §7 "memory port without clock").
type MemoryData struct {
	WordWidth  uint32
	Depth      int
	InitValue  *bitvec.State // optional caller-supplied power-on content
}

type MemPortKind int

const (
	MemPortRead MemPortKind = iota
	MemPortWrite
	MemPortReadWrite
)

type MemPortData struct {
	Memory *Node
	Kind   MemPortKind
}

// PinKind distinguishes Pin directions.
type PinKind int

const (
	PinInput PinKind = iota
	PinOutput
	PinBidir
)

type PinData struct {
	Kind           PinKind
	DiffPos        string
	DiffNeg        string
	IsDifferential bool
	ClockOverride  clock.Clock // input pins only
	SimulationOnly bool
}

// ExternalData describes a black-box module instantiation.
type ExternalData struct {
	ModuleName        string
	InTypes           []ConnectionType // declared input types, checked against whatever connects
	Generics          map[string]string
	InClocks          []clock.Clock // one per input, by input index
	OutClockRelations []clock.Clock // one per output, by output index
}

// SignalTapKind selects what a SignalTap node renders as.
type SignalTapKind int

const (
	TapAssert SignalTapKind = iota
	TapWarn
	TapDebug
	TapWatch
)

type SignalTapData struct {
	Kind SignalTapKind
	Text string
}

// ExportOverrideData lets a node present one value to the simulator
// and a different one to the VHDL exporter (e.g. simulation-only
// randomization vs. synthesisable default).
type ExportOverrideData struct {
	ExportValue *bitvec.State
}

// AttributesData / PathAttributesData are carried inline on
// Attributes/PathAttributes nodes; pkg/attr defines the richer
// standalone records these wrap for the exporter/simulator to read.
type AttributesData struct {
	MaxFanout           int
	AllowFusing         bool
	CrossingClockDomain bool
	Vendor              map[string]map[string]string
}

type PathAttributesData struct {
	Vendor map[string]map[string]string
}

// CDCData marks a clock domain crossing from InputClock to
// OutputClock (spec §3/§4.3).
type CDCData struct {
	InputClock  clock.Clock
	OutputClock clock.Clock
	MaxSkew     int
	NetDelay    int
	IsGrayCoded bool
}

type MultiDriverData struct{}

// ResizeInputs grows or shrinks the input port list, disconnecting
// any ports that are dropped (spec §4.3).
func (n *Node) ResizeInputs(count int) {
	for i := count; i < len(n.Inputs); i++ {
		n.DisconnectInput(i)
	}
	if count > len(n.Inputs) {
		grown := make([]Input, count)
		copy(grown, n.Inputs)
		n.Inputs = grown
	} else {
		n.Inputs = n.Inputs[:count]
	}
}

// ResizeOutputs grows or shrinks the output port list. Shrinking an
// output that still has sinks is a design error: it would silently
// strand sink back-references.
func (n *Node) ResizeOutputs(count int) error {
	for i := count; i < len(n.Outputs); i++ {
		if len(n.Outputs[i].Sinks) > 0 {
			return herr.New(herr.DesignError, "cannot shrink output %d of %s#%d: still has %d sink(s)", i, n.Kind, n.ID, len(n.Outputs[i].Sinks)).
				WithPorts(n.portRef(i))
		}
	}
	if count > len(n.Outputs) {
		grown := make([]Output, count)
		copy(grown, n.Outputs)
		n.Outputs = grown
	} else {
		n.Outputs = n.Outputs[:count]
	}
	return nil
}

func (n *Node) portRef(port int) herr.PortRef {
	return herr.PortRef{NodeID: n.ID, NodeKind: n.Kind.String(), Port: port}
}

// GetDriver returns the NodePort driving input i, or the null
// NodePort if unconnected.
func (n *Node) GetDriver(i int) NodePort {
	if i < 0 || i >= len(n.Inputs) {
		return NodePort{}
	}
	return n.Inputs[i].Driver
}

// GetNonSignalDriver traverses Signal alias chains until it reaches a
// non-Signal producer, returning the null NodePort if the chain ends
// in an unbound input (spec §4.3).
func (n *Node) GetNonSignalDriver(i int) NodePort {
	driver := n.GetDriver(i)
	seen := map[*Node]bool{}
	for !driver.IsNull() && driver.Node.Kind == KindSignal {
		if seen[driver.Node] {
			// A cycle of pure signal aliases; treat as unresolved.
			return NodePort{}
		}
		seen[driver.Node] = true
		driver = driver.Node.GetDriver(0)
	}
	return driver
}

// ConnectInput atomically disconnects any existing driver on input i
// and wires src in its place, pushing a sink back-reference onto
// src's output (spec §4.3 invariant 1).
func (n *Node) ConnectInput(i int, src NodePort) error {
	if i < 0 || i >= len(n.Inputs) {
		return herr.New(herr.InternalError, "ConnectInput: input %d out of range on %s#%d", i, n.Kind, n.ID)
	}
	if src.IsNull() {
		return herr.New(herr.InternalError, "ConnectInput: src must not be null; use DisconnectInput")
	}
	if src.Port < 0 || src.Port >= len(src.Node.Outputs) {
		return herr.New(herr.InternalError, "ConnectInput: src output %d out of range on %s#%d", src.Port, src.Node.Kind, src.Node.ID)
	}

	n.DisconnectInput(i)

	if err := propagateType(n, i, src); err != nil {
		return err
	}

	n.Inputs[i].Driver = src
	out := &src.Node.Outputs[src.Port]
	out.Sinks = append(out.Sinks, NodePort{Node: n, Port: i})
	return nil
}

// DisconnectInput reverses ConnectInput: clears input i and removes
// the matching back-reference from its former driver's sink list,
// using swap-remove for O(fanout) worst case (spec §4.3).
func (n *Node) DisconnectInput(i int) {
	if i < 0 || i >= len(n.Inputs) {
		return
	}
	driver := n.Inputs[i].Driver
	if driver.IsNull() {
		return
	}
	n.Inputs[i].Driver = NodePort{}

	sinks := driver.Node.Outputs[driver.Port].Sinks
	for idx, s := range sinks {
		if s.Node == n && s.Port == i {
			last := len(sinks) - 1
			sinks[idx] = sinks[last]
			sinks = sinks[:last]
			driver.Node.Outputs[driver.Port].Sinks = sinks
			return
		}
	}
}

// DependentClocks returns the set of clocks output o's value depends
// on: the node's own bound clocks, plus (when output o is Immediate)
// the union of every connected input driver's dependent clocks.
func (n *Node) DependentClocks(output int) []clock.Clock {
	if output < 0 || output >= len(n.Outputs) {
		return nil
	}
	seen := map[clock.Clock]bool{}
	var out []clock.Clock
	add := func(c clock.Clock) {
		if c != nil && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	if n.Kind == KindCDC {
		// A CDC node is a domain boundary: downstream consumers see
		// only its OutputClock, never the input side's domain.
		cd := n.Data.(*CDCData)
		add(cd.OutputClock)
		return out
	}
	for _, c := range n.Clocks {
		add(c)
	}
	switch n.Outputs[output].OutKind {
	case Latched, Constant:
		return out
	}
	for _, in := range n.Inputs {
		if in.Driver.IsNull() {
			continue
		}
		for _, c := range in.Driver.Node.DependentClocks(in.Driver.Port) {
			add(c)
		}
	}
	return out
}

// CheckValidInputClocks implements the default per-node clock-domain
// check of spec §4.3: every input whose driver depends on some clock
// must depend only on clocks this node itself is bound to (or on no
// clock at all, i.e. a constant-domain value). It returns the indices
// of any offending inputs; nil means the node is clock-consistent. A
// node with no bound clocks is never checked (it has nothing to be
// consistent with).
func (n *Node) CheckValidInputClocks() []int {
	if len(n.Clocks) == 0 {
		return nil
	}
	own := map[clock.Clock]bool{}
	for _, c := range n.Clocks {
		own[c] = true
	}
	var bad []int
	for i, in := range n.Inputs {
		if in.Driver.IsNull() {
			continue
		}
		deps := in.Driver.Node.DependentClocks(in.Driver.Port)
		if len(deps) == 0 {
			continue
		}
		for _, d := range deps {
			if !own[d] {
				bad = append(bad, i)
				break
			}
		}
	}
	return bad
}

// CloneUnconnected reproduces all intrinsic state (kind, widths,
// attributes, clock bindings, name, comment, location) with no input
// or sink wiring (spec §4.3, invariant tested in spec §8 item 4).
func (n *Node) CloneUnconnected() *Node {
	clone := &Node{
		Kind:    n.Kind,
		Name:    n.Name,
		Comment: n.Comment,
		Loc:     n.Loc,
		Clocks:  append([]clock.Clock(nil), n.Clocks...),
	}
	clone.Inputs = make([]Input, len(n.Inputs))
	clone.Outputs = make([]Output, len(n.Outputs))
	for i, o := range n.Outputs {
		clone.Outputs[i] = Output{Type: o.Type, OutKind: o.OutKind}
	}
	clone.Data = cloneData(n.Kind, n.Data)
	return clone
}

func cloneData(kind Kind, data any) any {
	switch d := data.(type) {
	case *ArithmeticData:
		c := *d
		return &c
	case *LogicData:
		c := *d
		return &c
	case *CompareData:
		c := *d
		return &c
	case *ConstantData:
		c := &ConstantData{}
		if d.Value != nil {
			c.Value = d.Value.Extract(0, d.Value.Len())
		}
		return c
	case *RewireData:
		c := &RewireData{Ranges: append([]RewireRange(nil), d.Ranges...)}
		return c
	case *MultiplexerData:
		c := *d
		return &c
	case *PriorityConditionalData:
		c := *d
		return &c
	case *RegisterData:
		c := *d
		return &c
	case *MemoryData:
		c := *d
		return &c
	case *MemPortData:
		c := *d
		return &c // Memory pointer intentionally shared: clone is unconnected at the port-wiring level, not at the structural-reference level.
	case *PinData:
		c := *d
		return &c
	case *ExternalData:
		c := &ExternalData{ModuleName: d.ModuleName, Generics: copyStringMap(d.Generics),
			InTypes:           append([]ConnectionType(nil), d.InTypes...),
			InClocks:          append([]clock.Clock(nil), d.InClocks...),
			OutClockRelations: append([]clock.Clock(nil), d.OutClockRelations...)}
		return c
	case *SignalTapData:
		c := *d
		return &c
	case *ExportOverrideData:
		c := &ExportOverrideData{}
		if d.ExportValue != nil {
			c.ExportValue = d.ExportValue.Extract(0, d.ExportValue.Len())
		}
		return c
	case *AttributesData:
		c := &AttributesData{MaxFanout: d.MaxFanout, AllowFusing: d.AllowFusing, CrossingClockDomain: d.CrossingClockDomain, Vendor: copyNestedMap(d.Vendor)}
		return c
	case *PathAttributesData:
		c := &PathAttributesData{Vendor: copyNestedMap(d.Vendor)}
		return c
	case *CDCData:
		c := *d
		return &c
	case *MultiDriverData:
		c := *d
		return &c
	default:
		return nil
	}
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyNestedMap(m map[string]map[string]string) map[string]map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]map[string]string, len(m))
	for k, v := range m {
		out[k] = copyStringMap(v)
	}
	return out
}
