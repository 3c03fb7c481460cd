package hlim

import (
	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/bscope"
	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/herr"
)

// Circuit owns every node and clock with stable pointer identity
// (spec §3 Ownership). Destroying a Circuit releases the whole graph;
// all intra-graph references are non-owning *Node/clock.Clock
// pointers that remain valid for the Circuit's lifetime.
type Circuit struct {
	nodes  []*Node
	clocks []clock.Clock
	root   *NodeGroup
	nextID int

	// Process-wide construction scopes (spec §5/§9). A single Circuit
	// carries its own scope stacks rather than a single global, which
	// keeps construction thread-confined to whichever goroutine is
	// building this particular circuit and makes tests hermetic.
	GroupScope       *bscope.Stack[*NodeGroup]
	ClockScope       *bscope.Stack[clock.Clock]
	EnableScope      *bscope.Stack[NodePort]
	ConditionalScope *bscope.Stack[NodePort]
	Stats            *EventStatistics
}

// EventStatistics counts nodes created per group path, the simplest
// possible "event/property statistics" ambient scope named in spec §1
// as out-of-scope for detailed reporting but referenced in §5/§9 as a
// construction-time scope that must exist.
type EventStatistics struct {
	scope *bscope.Stack[string]
	Count map[string]int
}

func newEventStatistics() *EventStatistics {
	return &EventStatistics{scope: bscope.New[string](), Count: make(map[string]int)}
}

// Enter pushes a named scope (e.g. an Area's name) and returns a
// release token.
func (e *EventStatistics) Enter(name string) bscope.Token { return e.scope.Push(name) }
func (e *EventStatistics) Exit(tok bscope.Token)           { e.scope.Pop(tok) }

func (e *EventStatistics) record(kind Kind) {
	path, _ := e.scope.Current()
	e.Count[path+"/"+kind.String()]++
}

// NewCircuit creates an empty Circuit with a root Entity group named
// rootName.
func NewCircuit(rootName string) *Circuit {
	c := &Circuit{
		GroupScope:       bscope.New[*NodeGroup](),
		ClockScope:       bscope.New[clock.Clock](),
		EnableScope:      bscope.New[NodePort](),
		ConditionalScope: bscope.New[NodePort](),
		Stats:            newEventStatistics(),
	}
	c.root = &NodeGroup{Kind: GroupEntity, Name: rootName, Attrs: make(map[string]string)}
	return c
}

// RootGroup returns the circuit's root NodeGroup.
func (c *Circuit) RootGroup() *NodeGroup { return c.root }

// Nodes returns every node the circuit owns, in creation order.
func (c *Circuit) Nodes() []*Node { return c.nodes }

// Clocks returns every clock the circuit owns, in creation order.
func (c *Circuit) Clocks() []clock.Clock { return c.clocks }

// CurrentGroup resolves the ambient group: the top of GroupScope, or
// the circuit root if no group scope is active.
func (c *Circuit) CurrentGroup() *NodeGroup {
	if g, ok := c.GroupScope.Current(); ok {
		return g
	}
	return c.root
}

// PushGroup enters group g as the ambient current group.
func (c *Circuit) PushGroup(g *NodeGroup) bscope.Token { return c.GroupScope.Push(g) }
func (c *Circuit) PopGroup(tok bscope.Token)           { c.GroupScope.Pop(tok) }

// CreateClock registers a clock with the circuit and returns it for
// convenient chaining (spec §4.4 Circuit.create_clock).
func (c *Circuit) CreateClock(ck clock.Clock) clock.Clock {
	c.clocks = append(c.clocks, ck)
	return ck
}

func (c *Circuit) createNode(kind Kind, numInputs, numOutputs int, data any, group *NodeGroup) *Node {
	if group == nil {
		group = c.CurrentGroup()
	}
	c.nextID++
	n := &Node{
		ID:      c.nextID,
		Kind:    kind,
		Data:    data,
		Loc:     herr.CaptureLocation(2),
		Inputs:  make([]Input, numInputs),
		Outputs: make([]Output, numOutputs),
	}
	c.nodes = append(c.nodes, n)
	group.addNode(n)
	c.Stats.record(kind)
	return n
}

// --- typed constructors (spec §3/§4.3) ---

// NewSignal creates a named alias node: one input, one output of
// identical type (spec §3 invariant 3).
func (c *Circuit) NewSignal(name string) *Node {
	n := c.createNode(KindSignal, 1, 1, nil, nil)
	n.Name = name
	return n
}

// NewConstant creates a constant node whose output is fixed at
// power-on and never recomputed (spec §3 invariant 5). Zero-width
// constants are rejected per spec §8.
func (c *Circuit) NewConstant(value *bitvec.State, typ ConnectionType) (*Node, error) {
	if typ.Width == 0 {
		return nil, herr.New(herr.DesignError, "zero-width constant: ZeroWidth")
	}
	n := c.createNode(KindConstant, 0, 1, &ConstantData{Value: value}, nil)
	n.Outputs[0] = Output{Type: typ, OutKind: Constant}
	return n, nil
}

// NewArithmetic creates a 2-input arithmetic node.
func (c *Circuit) NewArithmetic(op ArithOp) *Node {
	return c.createNode(KindArithmetic, 2, 1, &ArithmeticData{Op: op}, nil)
}

// NewLogic creates a logic node. Not takes 1 input; all others take 2.
func (c *Circuit) NewLogic(op LogicOp) *Node {
	numInputs := 2
	if op == OpNot {
		numInputs = 1
	}
	return c.createNode(KindLogic, numInputs, 1, &LogicData{Op: op}, nil)
}

// NewCompare creates a comparison node; its output type is fixed at
// construction (spec §3 invariant: Compare always produces {Bool,1}).
func (c *Circuit) NewCompare(op CompareOp) *Node {
	n := c.createNode(KindCompare, 2, 1, &CompareData{Op: op}, nil)
	n.Outputs[0] = Output{Type: ConnectionType{Interp: Bool, Width: 1}, OutKind: Immediate}
	return n
}

// NewRewire creates a rewire node with the given output ranges fixed
// at construction (spec §3). The node gets one input for every index
// up to the highest Input named by an Input-kind range; ranges keep
// the indices they were given, so the caller connects each input at
// the index its ranges name.
func (c *Circuit) NewRewire(ranges []RewireRange, outType ConnectionType) (*Node, error) {
	maxInput := -1
	totalWidth := 0
	for _, r := range ranges {
		if r.Kind == RewireFromInput && r.Input > maxInput {
			maxInput = r.Input
		}
		totalWidth += r.Width
	}
	if uint32(totalWidth) != outType.Width {
		return nil, herr.New(herr.DesignError, "rewire: range widths sum to %d, declared output width is %d", totalWidth, outType.Width)
	}
	n := c.createNode(KindRewire, maxInput+1, 1, &RewireData{Ranges: append([]RewireRange(nil), ranges...)}, nil)
	n.Outputs[0] = Output{Type: outType, OutKind: Immediate}
	return n, nil
}

// NewMultiplexer creates a multiplexer with a selector at port 0 and
// numData data inputs at ports 1..numData.
func (c *Circuit) NewMultiplexer(numData int) *Node {
	return c.createNode(KindMultiplexer, 1+numData, 1, &MultiplexerData{N: numData}, nil)
}

// NewPriorityConditional creates a priority-conditional node with only
// its default input (port 0), not yet connected.
func (c *Circuit) NewPriorityConditional() *Node {
	return c.createNode(KindPriorityConditional, 1, 1, &PriorityConditionalData{}, nil)
}

// AddChoice extends a PriorityConditional node by one (condition,
// value) pair and returns their new input indices (spec §4.3).
func (n *Node) AddChoice() (condIdx, valIdx int) {
	pd := n.Data.(*PriorityConditionalData)
	condIdx = len(n.Inputs)
	valIdx = condIdx + 1
	n.ResizeInputs(len(n.Inputs) + 2)
	pd.NumChoices++
	return condIdx, valIdx
}

// NewRegister creates a register bound to exactly one clock, with
// fixed input ports {DATA, RESET_VALUE, ENABLE} (spec §3 invariant 4).
func (c *Circuit) NewRegister(ck clock.Clock) *Node {
	n := c.createNode(KindRegister, regFixedInputCount, 1, &RegisterData{}, nil)
	n.Clocks = []clock.Clock{ck}
	n.Outputs[0] = Output{OutKind: Latched}
	return n
}

// NewMemory creates a memory node; MemPort nodes reference it by
// pointer and carry the actual read/write ports.
func (c *Circuit) NewMemory(wordWidth uint32, depth int) *Node {
	return c.createNode(KindMemory, 0, 0, &MemoryData{WordWidth: wordWidth, Depth: depth}, nil)
}

// NewMemPort creates a port on mem. Read and read-write ports expose
// one data output, created Immediate; write ports have no outputs. No
// clock is bound here: the caller appends to n.Clocks, and a read port
// with a clock is then sampled on that clock's edge.
func (c *Circuit) NewMemPort(mem *Node, kind MemPortKind, addrWidth, dataWidth uint32) *Node {
	var numIn, numOut int
	switch kind {
	case MemPortRead:
		numIn, numOut = 1, 1 // ADDR
	case MemPortWrite:
		numIn, numOut = 3, 0 // ADDR, DATA, ENABLE
	case MemPortReadWrite:
		numIn, numOut = 3, 1
	}
	n := c.createNode(KindMemPort, numIn, numOut, &MemPortData{Memory: mem, Kind: kind}, nil)
	if numOut > 0 {
		n.Outputs[0] = Output{Type: ConnectionType{Interp: Raw, Width: dataWidth}, OutKind: Immediate}
	}
	return n
}

// Fixed MemPort input indices.
const (
	MemPortAddr   = 0
	MemPortData_  = 1
	MemPortEnable = 2
)

// NewPin creates a Pin node of the given direction and type.
func (c *Circuit) NewPin(kind PinKind, name string, typ ConnectionType) *Node {
	var numIn, numOut int
	switch kind {
	case PinInput:
		numIn, numOut = 0, 1
	case PinOutput:
		numIn, numOut = 1, 0
	case PinBidir:
		numIn, numOut = 1, 1
	}
	n := c.createNode(KindPin, numIn, numOut, &PinData{Kind: kind}, nil)
	n.Name = name
	if numOut > 0 {
		n.Outputs[0] = Output{Type: typ, OutKind: Immediate}
	}
	return n
}

// NewExternal creates a black-box module instantiation with the given
// input/output types fixed at construction.
func (c *Circuit) NewExternal(moduleName string, insTypes, outsTypes []ConnectionType) *Node {
	n := c.createNode(KindExternal, len(insTypes), len(outsTypes), &ExternalData{
		ModuleName: moduleName,
		InTypes:    append([]ConnectionType(nil), insTypes...),
		Generics:   make(map[string]string),
	}, nil)
	for i, t := range outsTypes {
		n.Outputs[i] = Output{Type: t, OutKind: Immediate}
	}
	return n
}

// BindExternalClocks records the per-input/per-output clock relations
// of an External module declaration (spec §4.8) and unions them into
// the node's own bound-clock set, so the generic
// Node.CheckValidInputClocks consistency check applies to black-box
// instantiations the same way it applies to registers and memory
// ports.
func (n *Node) BindExternalClocks(inClocks, outClockRelations []clock.Clock) error {
	if n.Kind != KindExternal {
		return herr.New(herr.InternalError, "BindExternalClocks called on non-External node %s#%d", n.Kind, n.ID)
	}
	ed := n.Data.(*ExternalData)
	ed.InClocks = append([]clock.Clock(nil), inClocks...)
	ed.OutClockRelations = append([]clock.Clock(nil), outClockRelations...)
	seen := map[clock.Clock]bool{}
	for _, c := range n.Clocks {
		seen[c] = true
	}
	add := func(c clock.Clock) {
		if c != nil && !seen[c] {
			seen[c] = true
			n.Clocks = append(n.Clocks, c)
		}
	}
	for _, c := range inClocks {
		add(c)
	}
	for _, c := range outClockRelations {
		add(c)
	}
	return nil
}

// NewSignalTap creates an assert/warn/debug/watch node over one
// signal input.
func (c *Circuit) NewSignalTap(kind SignalTapKind, text string) *Node {
	return c.createNode(KindSignalTap, 1, 0, &SignalTapData{Kind: kind, Text: text}, nil)
}

// NewExportOverride creates a node presenting a simulation value on
// its input and a distinct export-time value.
func (c *Circuit) NewExportOverride(exportValue *bitvec.State) *Node {
	n := c.createNode(KindExportOverride, 1, 1, &ExportOverrideData{ExportValue: exportValue}, nil)
	return n
}

// NewAttributes annotates a single signal; it passes its input
// through to its output unchanged (propagateType treats it like a
// Signal alias).
func (c *Circuit) NewAttributes() *Node {
	return c.createNode(KindAttributes, 1, 1, &AttributesData{Vendor: make(map[string]map[string]string)}, nil)
}

// NewPathAttributes annotates a start->end path; it carries no
// signal, only metadata.
func (c *Circuit) NewPathAttributes(start, end NodePort) *Node {
	n := c.createNode(KindPathAttributes, 0, 0, &PathAttributesData{Vendor: make(map[string]map[string]string)}, nil)
	n.Name = start.String() + "->" + end.String()
	return n
}

// NewCDC marks a clock-domain crossing from inClk to outClk.
func (c *Circuit) NewCDC(inClk, outClk clock.Clock) *Node {
	n := c.createNode(KindCDC, 1, 1, &CDCData{InputClock: inClk, OutputClock: outClk}, nil)
	n.Clocks = []clock.Clock{inClk, outClk}
	return n
}

// NewMultiDriver creates an explicit tri-state/inout merge node over
// numDrivers inputs.
func (c *Circuit) NewMultiDriver(numDrivers int) *Node {
	return c.createNode(KindMultiDriver, numDrivers, 1, &MultiDriverData{}, nil)
}

