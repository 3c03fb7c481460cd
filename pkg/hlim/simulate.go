package hlim

import (
	"math/big"

	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/herr"
)

// Wiring is the bit-offset mapping the program builder computes for
// one node (spec §4.5 Step 2 MappedNode): where each input/output
// port's value lives in the shared simulation state, plus any
// internal offsets a kind needs beyond its visible ports (only
// Memory uses InternalOffsets, for its backing store — see
// DESIGN.md's Open Question decision on this field).
type Wiring struct {
	InputOffsets    []int
	OutputOffsets   []int
	InternalOffsets []int
}

// SimulateEvaluate recomputes every Immediate output of n from its
// current input values. Only called for nodes with at least one
// Immediate output (the program builder never schedules pure
// Latched/Constant nodes here).
func (n *Node) SimulateEvaluate(state *bitvec.State, w Wiring) error {
	switch n.Kind {
	case KindSignal, KindAttributes, KindExportOverride, KindCDC:
		width := int(n.Outputs[0].Type.Width)
		bitvec.CopyRange(state, w.OutputOffsets[0], state, w.InputOffsets[0], width)
		return nil
	case KindArithmetic:
		return evalArithmetic(n, state, w)
	case KindLogic:
		return evalLogic(n, state, w)
	case KindCompare:
		return evalCompare(n, state, w)
	case KindMultiplexer:
		return evalMultiplexer(n, state, w)
	case KindPriorityConditional:
		return evalPriorityConditional(n, state, w)
	case KindRewire:
		return evalRewire(n, state, w)
	case KindMultiDriver:
		return evalMultiDriver(n, state, w)
	case KindMemPort:
		md := n.Data.(*MemPortData)
		if md.Kind == MemPortRead && len(n.Clocks) == 0 {
			return evalMemReadCombinational(n, state, w)
		}
		return nil // clocked ports are advanced, not evaluated
	case KindExternal, KindPin, KindSignalTap:
		return nil // opaque / no combinational recompute of their own
	default:
		return herr.New(herr.InternalError, "SimulateEvaluate: unhandled kind %s", n.Kind)
	}
}

// SimulateReset applies power-on state to every Constant or Latched
// output of n (spec §4.6 Power-on).
func (n *Node) SimulateReset(state *bitvec.State, w Wiring) error {
	switch n.Kind {
	case KindConstant:
		cd := n.Data.(*ConstantData)
		width := int(n.Outputs[0].Type.Width)
		if cd.Value != nil {
			bitvec.CopyRange(state, w.OutputOffsets[0], cd.Value, 0, width)
			for i := 0; i < width; i++ {
				state.Set(bitvec.Defined, w.OutputOffsets[0]+i, cd.Value.Get(bitvec.Defined, i))
			}
		}
		return nil
	case KindRegister:
		width := int(n.Outputs[0].Type.Width)
		if !n.Inputs[RegResetValueInput].Driver.IsNull() {
			bitvec.CopyRange(state, w.OutputOffsets[0], state, w.InputOffsets[RegResetValueInput], width)
		}
		// Unconnected reset value: leave the output at its zero/
		// undefined power-on default (Defined plane already clear).
		return nil
	case KindMemory:
		md := n.Data.(*MemoryData)
		total := int(md.WordWidth) * md.Depth
		if md.InitValue != nil && len(w.InternalOffsets) > 0 {
			n := total
			if md.InitValue.Len() < n {
				n = md.InitValue.Len()
			}
			bitvec.CopyRange(state, w.InternalOffsets[0], md.InitValue, 0, n)
		}
		return nil
	default:
		return herr.New(herr.InternalError, "SimulateReset: kind %s is not a reset-list member", n.Kind)
	}
}

// SimulateAdvance samples n's Latched output(s) on a triggering edge
// of the clock bound at clockIdx (spec §4.6 event loop step 1).
func (n *Node) SimulateAdvance(state *bitvec.State, w Wiring, clockIdx int) error {
	switch n.Kind {
	case KindRegister:
		width := int(n.Outputs[0].Type.Width)
		if enableAsserted(n, state, w, RegEnableInput) {
			bitvec.CopyRange(state, w.OutputOffsets[0], state, w.InputOffsets[RegDataInput], width)
		}
		return nil
	case KindMemPort:
		md := n.Data.(*MemPortData)
		memData := md.Memory.Data.(*MemoryData)
		wordWidth := int(memData.WordWidth)
		switch md.Kind {
		case MemPortWrite:
			if !enableAsserted(n, state, w, MemPortEnable) {
				return nil
			}
			addr := int(state.ExtractWide(bitvec.Value, w.InputOffsets[MemPortAddr], addrWidthOf(n)))
			if addr < 0 || addr >= memData.Depth {
				return herr.New(herr.RuntimeError, "memory write address %d out of range [0,%d)", addr, memData.Depth)
			}
			base := w.InternalOffsets[0] + addr*wordWidth
			bitvec.CopyRange(state, base, state, w.InputOffsets[MemPortData_], wordWidth)
			return nil
		case MemPortRead:
			addr := int(state.ExtractWide(bitvec.Value, w.InputOffsets[MemPortAddr], addrWidthOf(n)))
			if addr < 0 || addr >= memData.Depth {
				return herr.New(herr.RuntimeError, "memory read address %d out of range [0,%d)", addr, memData.Depth)
			}
			base := w.InternalOffsets[0] + addr*wordWidth
			bitvec.CopyRange(state, w.OutputOffsets[0], state, base, wordWidth)
			return nil
		case MemPortReadWrite:
			// Read-before-write: the registered output reflects the
			// word at addr as it stood before this edge's write.
			addr := int(state.ExtractWide(bitvec.Value, w.InputOffsets[MemPortAddr], addrWidthOf(n)))
			if addr < 0 || addr >= memData.Depth {
				return herr.New(herr.RuntimeError, "memory port address %d out of range [0,%d)", addr, memData.Depth)
			}
			base := w.InternalOffsets[0] + addr*wordWidth
			bitvec.CopyRange(state, w.OutputOffsets[0], state, base, wordWidth)
			if enableAsserted(n, state, w, MemPortEnable) {
				bitvec.CopyRange(state, base, state, w.InputOffsets[MemPortData_], wordWidth)
			}
			return nil
		}
		return nil
	default:
		return herr.New(herr.InternalError, "SimulateAdvance: kind %s has no Latched output", n.Kind)
	}
}

func addrWidthOf(n *Node) int {
	return int(n.Inputs[MemPortAddr].Driver.Node.Outputs[n.Inputs[MemPortAddr].Driver.Port].Type.Width)
}

func enableAsserted(n *Node, state *bitvec.State, w Wiring, enableInput int) bool {
	if enableInput >= len(n.Inputs) || n.Inputs[enableInput].Driver.IsNull() {
		return true
	}
	return state.Get(bitvec.Value, w.InputOffsets[enableInput])
}

func evalArithmetic(n *Node, state *bitvec.State, w Wiring) error {
	ad := n.Data.(*ArithmeticData)
	width := int(n.Outputs[0].Type.Width)
	a := state.ExtractBig(bitvec.Value, w.InputOffsets[0], width)
	b := state.ExtractBig(bitvec.Value, w.InputOffsets[1], width)
	out := new(big.Int)
	switch ad.Op {
	case OpAdd:
		out.Add(a, b)
	case OpSub:
		out.Sub(a, b)
		if out.Sign() < 0 {
			mod := new(big.Int).Lsh(big.NewInt(1), uint(width))
			out.Add(out, mod)
		}
	case OpMul:
		out.Mul(a, b)
	case OpDiv:
		if b.Sign() == 0 {
			return herr.New(herr.RuntimeError, "arithmetic#%d: division by zero", n.ID)
		}
		out.Div(a, b)
	case OpRem:
		if b.Sign() == 0 {
			return herr.New(herr.RuntimeError, "arithmetic#%d: division by zero", n.ID)
		}
		out.Mod(a, b)
	}
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(width)), big.NewInt(1))
	out.And(out, mask)
	state.InsertBig(bitvec.Value, w.OutputOffsets[0], width, out)
	defined := state.AllDefined(w.InputOffsets[0], width) && state.AllDefined(w.InputOffsets[1], width)
	for i := 0; i < width; i++ {
		state.Set(bitvec.Defined, w.OutputOffsets[0]+i, defined)
	}
	return nil
}

func evalLogic(n *Node, state *bitvec.State, w Wiring) error {
	ld := n.Data.(*LogicData)
	width := int(n.Outputs[0].Type.Width)
	get := func(input, bit int) bool { return state.Get(bitvec.Value, w.InputOffsets[input]+bit) }
	for i := 0; i < width; i++ {
		var v bool
		a := get(0, i)
		if ld.Op == OpNot {
			v = !a
		} else {
			b := get(1, i)
			switch ld.Op {
			case OpAnd:
				v = a && b
			case OpNand:
				v = !(a && b)
			case OpOr:
				v = a || b
			case OpNor:
				v = !(a || b)
			case OpXor:
				v = a != b
			case OpXnor:
				v = a == b
			}
		}
		state.Set(bitvec.Value, w.OutputOffsets[0]+i, v)
	}
	definedA := state.AllDefined(w.InputOffsets[0], width)
	defined := definedA
	if ld.Op != OpNot {
		defined = defined && state.AllDefined(w.InputOffsets[1], width)
	}
	for i := 0; i < width; i++ {
		state.Set(bitvec.Defined, w.OutputOffsets[0]+i, defined)
	}
	return nil
}

func evalCompare(n *Node, state *bitvec.State, w Wiring) error {
	cd := n.Data.(*CompareData)
	width := int(n.Inputs[0].Driver.Node.Outputs[n.Inputs[0].Driver.Port].Type.Width)
	a := state.ExtractBig(bitvec.Value, w.InputOffsets[0], width)
	b := state.ExtractBig(bitvec.Value, w.InputOffsets[1], width)
	cmp := a.Cmp(b)
	var result bool
	switch cd.Op {
	case OpEq:
		result = cmp == 0
	case OpNeq:
		result = cmp != 0
	case OpLt:
		result = cmp < 0
	case OpGt:
		result = cmp > 0
	case OpLeq:
		result = cmp <= 0
	case OpGeq:
		result = cmp >= 0
	}
	state.Set(bitvec.Value, w.OutputOffsets[0], result)
	defined := state.AllDefined(w.InputOffsets[0], width) && state.AllDefined(w.InputOffsets[1], width)
	state.Set(bitvec.Defined, w.OutputOffsets[0], defined)
	return nil
}

func evalMultiplexer(n *Node, state *bitvec.State, w Wiring) error {
	md := n.Data.(*MultiplexerData)
	width := int(n.Outputs[0].Type.Width)
	selWidth := int(n.Inputs[0].Driver.Node.Outputs[n.Inputs[0].Driver.Port].Type.Width)
	if !state.AllDefined(w.InputOffsets[0], selWidth) {
		for i := 0; i < width; i++ {
			state.Set(bitvec.Defined, w.OutputOffsets[0]+i, false)
		}
		return nil
	}
	sel := int(state.ExtractWide(bitvec.Value, w.InputOffsets[0], selWidth))
	if sel < 0 || sel >= md.N {
		return herr.New(herr.RuntimeError, "multiplexer#%d: selector value %d out of range [0,%d)", n.ID, sel, md.N)
	}
	srcOffset := w.InputOffsets[1+sel]
	bitvec.CopyRange(state, w.OutputOffsets[0], state, srcOffset, width)
	return nil
}

func evalPriorityConditional(n *Node, state *bitvec.State, w Wiring) error {
	pd := n.Data.(*PriorityConditionalData)
	width := int(n.Outputs[0].Type.Width)
	for choice := 0; choice < pd.NumChoices; choice++ {
		condIdx := 1 + 2*choice
		valIdx := condIdx + 1
		if state.AllDefined(w.InputOffsets[condIdx], 1) && state.Get(bitvec.Value, w.InputOffsets[condIdx]) {
			bitvec.CopyRange(state, w.OutputOffsets[0], state, w.InputOffsets[valIdx], width)
			return nil
		}
	}
	bitvec.CopyRange(state, w.OutputOffsets[0], state, w.InputOffsets[0], width)
	return nil
}

// evalRewire lays ranges out high-to-low: the first range in the list
// is the most significant chunk of the output, matching spec's "the
// concatenation of all ranges (in order) produces the output word"
// (the same order pkg/vhdl's "&"-joined rendering reads left to
// right).
func evalRewire(n *Node, state *bitvec.State, w Wiring) error {
	rd := n.Data.(*RewireData)
	pos := int(n.Outputs[0].Type.Width)
	for _, rng := range rd.Ranges {
		pos -= rng.Width
		switch rng.Kind {
		case RewireFromInput:
			bitvec.CopyRange(state, w.OutputOffsets[0]+pos, state, w.InputOffsets[rng.Input]+rng.Offset, rng.Width)
		case RewireZero, RewireOne:
			v := rng.Kind == RewireOne
			for i := 0; i < rng.Width; i++ {
				state.Set(bitvec.Value, w.OutputOffsets[0]+pos+i, v)
				state.Set(bitvec.Defined, w.OutputOffsets[0]+pos+i, true)
			}
		}
	}
	return nil
}

func evalMultiDriver(n *Node, state *bitvec.State, w Wiring) error {
	width := int(n.Outputs[0].Type.Width)
	driven := false
	for i, in := range n.Inputs {
		if in.Driver.IsNull() {
			continue
		}
		if !driven {
			bitvec.CopyRange(state, w.OutputOffsets[0], state, w.InputOffsets[i], width)
			driven = true
			continue
		}
		// Later connected drivers must agree bit-for-bit with the
		// first; a conflicting multi-drive is a runtime fault, not
		// silently resolved, since this reference simulator has no
		// tri-state 'Z' plane to arbitrate with.
		for b := 0; b < width; b++ {
			if state.Get(bitvec.Value, w.OutputOffsets[0]+b) != state.Get(bitvec.Value, w.InputOffsets[i]+b) {
				return herr.New(herr.RuntimeError, "multi_driver#%d: conflicting drivers", n.ID)
			}
		}
	}
	return nil
}

func evalMemReadCombinational(n *Node, state *bitvec.State, w Wiring) error {
	md := n.Data.(*MemPortData)
	memData := md.Memory.Data.(*MemoryData)
	wordWidth := int(memData.WordWidth)
	addr := int(state.ExtractWide(bitvec.Value, w.InputOffsets[MemPortAddr], addrWidthOf(n)))
	if addr < 0 || addr >= memData.Depth {
		return herr.New(herr.RuntimeError, "memory read address %d out of range [0,%d)", addr, memData.Depth)
	}
	base := w.InternalOffsets[0] + addr*wordWidth
	bitvec.CopyRange(state, w.OutputOffsets[0], state, base, wordWidth)
	return nil
}
