// Package program implements the Program builder of spec §4.5: it
// takes a finished hlim.Circuit and produces the packed, scheduled
// form a simulator or exporter actually walks — signal storage
// offsets, a topologically ordered execution block, the reset-node
// list, and per-clock-domain latched-node lists. Grounded on the
// teacher's codegen.Backend "lower an already-validated IR to a
// flatter, ordered form" shape (pkg/codegen/backend.go).
package program

import (
	"sort"

	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/herr"
	"github.com/oisee/hlim/pkg/hlim"
)

// MappedNode pairs a circuit node with its resolved storage wiring.
type MappedNode struct {
	Node    *hlim.Node
	Wiring  hlim.Wiring
}

// LatchedEntry is one Latched-output node sampled by a clock domain,
// together with the clock's input index on that node (the index into
// Node.Clocks/Inputs relevant to that sampling — for Register/MemPort
// there is exactly one clock, so this is always 0, but the field is
// kept explicit for nodes that may one day bind more than one).
type LatchedEntry struct {
	Mapped     *MappedNode
	ClockIndex int
}

// ClockDomain groups every Latched node sampled by one clock.
type ClockDomain struct {
	Clock   clock.Clock
	Latches []LatchedEntry
}

// ExecutionBlock is a topologically ordered run of MappedNodes whose
// Immediate outputs must be (re)computed, in order, to settle the
// combinational network. Spec §4.5 Step 5 allows multiple blocks when
// a design partitions into independent concurrency domains; this
// builder always produces the single default block named there,
// since nothing in this design calls for finer partitioning yet.
type ExecutionBlock []*MappedNode

// Program is the complete, packed output of Build: everything a
// simulator or exporter needs to run or render the circuit without
// re-deriving topology.
type Program struct {
	Circuit *hlim.Circuit

	FullStateWidth int
	byNode         map[*hlim.Node]*MappedNode
	entries        map[*hlim.Node][]*allocEntry

	Blocks       []ExecutionBlock
	ResetNodes   []*MappedNode
	ClockDomains []*ClockDomain

	RequiredOutputs []hlim.NodePort
}

// MappedNodeFor looks up the wiring resolved for n, or nil if n was
// not part of the built Program (e.g. a pure Signal, which never gets
// its own storage).
func (p *Program) MappedNodeFor(n *hlim.Node) *MappedNode {
	return p.byNode[n]
}

// OffsetOf resolves the storage offset backing np's current value,
// chasing through Signal aliases to their resolved driver (spec §8
// invariant 5: a Signal allocates no offset of its own). Used by
// SigHandle construction and by anything else that needs to read or
// write a port's value directly.
func (p *Program) OffsetOf(np hlim.NodePort) (int, error) {
	if np.IsNull() {
		return 0, herr.New(herr.InternalError, "OffsetOf: null port")
	}
	if np.Node.Kind == hlim.KindSignal {
		driver := np.Node.GetNonSignalDriver(0)
		if driver.IsNull() {
			return 0, herr.New(herr.DesignError, "signal %q has no resolvable driver", np.Node.Name).WithPorts(
				herr.PortRef{NodeID: np.Node.ID, NodeKind: np.Node.Kind.String(), Port: np.Port})
		}
		return p.OffsetOf(driver)
	}
	es, ok := p.entries[np.Node]
	if !ok || np.Port < 0 || np.Port >= len(es) {
		return 0, herr.New(herr.InternalError, "no allocation for node %s#%d port %d", np.Node.Kind, np.Node.ID, np.Port)
	}
	return es[np.Port].offset, nil
}

// BuildOptions configures Build. The zero value is a reasonable
// default (no extra required outputs beyond exported Pins).
type BuildOptions struct {
	// RequiredOutputs forces the named ports to be retained/observable
	// even if nothing in the circuit else consumes them (e.g. a
	// testbench probe point).
	RequiredOutputs []hlim.NodePort
}

// Build lowers circuit into a Program: spec §4.5 Steps 1-5.
//
//  1. Signal allocation: every non-Signal output gets a bucket-
//     allocated storage offset; Signal nodes coalesce onto their
//     resolved non-Signal driver's offset instead of allocating their
//     own (spec §4.5 Step 1, "signal nodes are pure aliases").
//  2. MappedNode construction: each node's Inputs/Outputs are resolved
//     to concrete offsets into the shared state vector.
//  3. Reset-node / latched-node classification.
//  4. Topological scheduling of the Immediate-output subgraph (Kahn's
//     algorithm, node-ID tie-break for determinism); a node left
//     unscheduled after the algorithm terminates means a combinational
//     cycle, reported as a DesignError (spec §3 invariant: cycles must
//     be broken by at least one Latched output).
//  5. Per-clock-domain CDC validity check using the generic
//     Node.CheckValidInputClocks/DependentClocks machinery.
func Build(c *hlim.Circuit, opts BuildOptions) (*Program, error) {
	nodes := c.Nodes()

	alloc := newBucketAllocator()
	entries := make(map[*hlim.Node][]*allocEntry, len(nodes))

	// Step 1: allocate storage for every non-Signal output.
	for _, n := range nodes {
		if n.Kind == hlim.KindSignal {
			continue
		}
		es := make([]*allocEntry, len(n.Outputs))
		for oi, o := range n.Outputs {
			es[oi] = alloc.Request(int(o.Type.Width))
		}
		entries[n] = es
	}

	// Internal (non-port) storage: only Memory needs this, for its
	// backing array (spec §4.5 Step 1 / DESIGN.md Open Question).
	internalEntries := make(map[*hlim.Node][]*allocEntry, len(nodes))
	for _, n := range nodes {
		if n.Kind != hlim.KindMemory {
			continue
		}
		md := n.Data.(*hlim.MemoryData)
		internalEntries[n] = []*allocEntry{alloc.Request(int(md.WordWidth) * md.Depth)}
	}

	p := &Program{Circuit: c, byNode: make(map[*hlim.Node]*MappedNode, len(nodes)), entries: entries}
	p.FullStateWidth = alloc.Finalize()

	// Step 2: MappedNode construction.
	for _, n := range nodes {
		if n.Kind == hlim.KindSignal {
			continue
		}
		w := hlim.Wiring{
			InputOffsets:  make([]int, len(n.Inputs)),
			OutputOffsets: make([]int, len(n.Outputs)),
		}
		for i, in := range n.Inputs {
			if in.Driver.IsNull() {
				continue
			}
			off, err := p.OffsetOf(in.Driver)
			if err != nil {
				return nil, err
			}
			w.InputOffsets[i] = off
		}
		for oi := range n.Outputs {
			w.OutputOffsets[oi] = entries[n][oi].offset
		}
		if ies, ok := internalEntries[n]; ok {
			w.InternalOffsets = make([]int, len(ies))
			for i, e := range ies {
				w.InternalOffsets[i] = e.offset
			}
		}
		mn := &MappedNode{Node: n, Wiring: w}
		p.byNode[n] = mn
	}

	// Step 3: reset-node and per-clock-domain latched-node lists.
	domains := map[clock.Clock]*ClockDomain{}
	var domainOrder []clock.Clock
	for _, n := range nodes {
		mn := p.byNode[n]
		if mn == nil {
			continue
		}
		switch n.Kind {
		case hlim.KindConstant:
			p.ResetNodes = append(p.ResetNodes, mn)
		case hlim.KindRegister:
			p.ResetNodes = append(p.ResetNodes, mn)
			ck := n.Clocks[0]
			d := domains[ck]
			if d == nil {
				d = &ClockDomain{Clock: ck}
				domains[ck] = d
				domainOrder = append(domainOrder, ck)
			}
			d.Latches = append(d.Latches, LatchedEntry{Mapped: mn, ClockIndex: 0})
		case hlim.KindMemory:
			p.ResetNodes = append(p.ResetNodes, mn)
		case hlim.KindMemPort:
			md := n.Data.(*hlim.MemPortData)
			if md.Kind == hlim.MemPortRead && len(n.Clocks) == 0 {
				continue // combinational read, not a latch
			}
			if len(n.Clocks) == 0 {
				return nil, herr.New(herr.SimError, "memory port %s#%d has no clock", n.Kind, n.ID)
			}
			ck := n.Clocks[0]
			d := domains[ck]
			if d == nil {
				d = &ClockDomain{Clock: ck}
				domains[ck] = d
				domainOrder = append(domainOrder, ck)
			}
			d.Latches = append(d.Latches, LatchedEntry{Mapped: mn, ClockIndex: 0})
		}
	}
	for _, ck := range domainOrder {
		p.ClockDomains = append(p.ClockDomains, domains[ck])
	}

	// Step 4: topological scheduling of the Immediate subgraph (Kahn's
	// algorithm over the nodes needsEvaluate selects — pass-throughs
	// like Attributes and CDC are included so they forward their value;
	// SignalTap, Pin, External and PathAttributes are not scheduled).
	block, err := scheduleImmediate(p, nodes)
	if err != nil {
		return nil, err
	}
	p.Blocks = []ExecutionBlock{block}

	// Step 5: CDC / clock-domain validity check.
	if err := checkClockDomains(nodes); err != nil {
		return nil, err
	}

	p.RequiredOutputs = append([]hlim.NodePort(nil), opts.RequiredOutputs...)
	return p, nil
}

// needsEvaluate reports whether n participates in the combinational
// schedule at all (has a SimulateEvaluate effect worth ordering).
func needsEvaluate(n *hlim.Node) bool {
	switch n.Kind {
	case hlim.KindSignal, hlim.KindConstant:
		return false
	case hlim.KindRegister, hlim.KindMemory, hlim.KindPin, hlim.KindExternal, hlim.KindSignalTap, hlim.KindPathAttributes:
		return false
	case hlim.KindMemPort:
		md := n.Data.(*hlim.MemPortData)
		return md.Kind == hlim.MemPortRead && len(n.Clocks) == 0
	default:
		return true
	}
}

// scheduleImmediate orders the combinational subgraph via Kahn's
// algorithm, using only edges that matter for ordering: an edge from
// driver to consumer counts only if the driver's output is Immediate
// (edges from Latched/Constant outputs are already "ready" every
// tick and never force an ordering constraint, per spec §4.5 Step 4).
func scheduleImmediate(p *Program, nodes []*hlim.Node) (ExecutionBlock, error) {
	var candidates []*hlim.Node
	for _, n := range nodes {
		if needsEvaluate(n) {
			candidates = append(candidates, n)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	inDegree := make(map[*hlim.Node]int, len(candidates))
	isCandidate := make(map[*hlim.Node]bool, len(candidates))
	for _, n := range candidates {
		isCandidate[n] = true
	}
	// consumers[d] = candidate nodes that read one of d's Immediate
	// outputs directly (through at most a chain of Signal aliases).
	consumers := make(map[*hlim.Node][]*hlim.Node)
	for _, n := range candidates {
		seenDrivers := map[*hlim.Node]bool{}
		for _, in := range n.Inputs {
			driver := in.Driver
			if driver.IsNull() {
				continue
			}
			if driver.Node.Kind == hlim.KindSignal {
				driver = driver.Node.GetNonSignalDriver(0)
				if driver.IsNull() {
					continue
				}
			}
			d := driver.Node
			if !isCandidate[d] {
				continue
			}
			if d.Outputs[driver.Port].OutKind != hlim.Immediate {
				continue
			}
			if seenDrivers[d] {
				continue
			}
			seenDrivers[d] = true
			inDegree[n]++
			consumers[d] = append(consumers[d], n)
		}
	}

	var ready []*hlim.Node
	for _, n := range candidates {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })

	var order []*hlim.Node
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		var newlyReady []*hlim.Node
		for _, cons := range consumers[n] {
			inDegree[cons]--
			if inDegree[cons] == 0 {
				newlyReady = append(newlyReady, cons)
			}
		}
		sort.Slice(newlyReady, func(i, j int) bool { return newlyReady[i].ID < newlyReady[j].ID })
		ready = append(ready, newlyReady...)
		sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	}

	if len(order) != len(candidates) {
		var stuck []int
		scheduled := map[*hlim.Node]bool{}
		for _, n := range order {
			scheduled[n] = true
		}
		for _, n := range candidates {
			if !scheduled[n] {
				stuck = append(stuck, n.ID)
			}
		}
		return nil, herr.New(herr.DesignError,
			"combinational cycle detected among nodes %v: not broken by a Latched output", stuck)
	}

	block := make(ExecutionBlock, 0, len(order))
	for _, n := range order {
		block = append(block, p.byNode[n])
	}
	return block, nil
}

// checkClockDomains runs Node.CheckValidInputClocks over every node
// with bound clocks and reports the first violation as a SimError,
// naming it UnmarkedCDC per spec §8 scenario E5: a value crossed from
// one clock domain to another without an intervening CDC node.
func checkClockDomains(nodes []*hlim.Node) error {
	for _, n := range nodes {
		bad := n.CheckValidInputClocks()
		if len(bad) == 0 {
			continue
		}
		return herr.New(herr.SimError,
			"UnmarkedCDC: node %s#%d (%s) has input(s) %v driven from a clock domain it is not bound to",
			n.Kind, n.ID, n.Name, bad).WithPorts(portRefs(n, bad)...)
	}
	return nil
}

func portRefs(n *hlim.Node, ports []int) []herr.PortRef {
	out := make([]herr.PortRef, len(ports))
	for i, p := range ports {
		out[i] = herr.PortRef{NodeID: n.ID, NodeKind: n.Kind.String(), Port: p}
	}
	return out
}
