package hlim

import "github.com/oisee/hlim/pkg/herr"

// propagateType implements spec §3 invariant 2 and the per-kind rules
// of spec §4.3: connecting input i of n to src may recompute n's
// output type(s), but must never silently change an output type that
// already has sinks (i.e. is "already consumed").
func propagateType(n *Node, i int, src NodePort) error {
	switch n.Kind {
	case KindSignal, KindAttributes:
		return propagateSignal(n, src)
	case KindArithmetic, KindLogic, KindMultiDriver:
		return propagateMaxWidth(n, src)
	case KindCompare:
		return propagateCompare(n, i, src)
	case KindMultiplexer:
		return propagateMux(n, i, src)
	case KindPriorityConditional:
		return propagatePriorityConditional(n, i, src)
	case KindRegister:
		return propagateRegister(n, i, src)
	case KindCDC:
		return propagateCDC(n, i, src)
	case KindExternal:
		return propagateExternal(n, i, src)
	default:
		// Fixed-type kinds (Constant, Rewire, Pin, Memory, MemPort,
		// SignalTap, ExportOverride, PathAttributes): type was
		// established at construction, and
		// connecting a data input does not alter it.
		return nil
	}
}

func srcType(src NodePort) ConnectionType {
	return src.Node.Outputs[src.Port].Type
}

func ensureOneOutput(n *Node) {
	if len(n.Outputs) == 0 {
		n.Outputs = make([]Output, 1)
	}
}

func propagateSignal(n *Node, src NodePort) error {
	ensureOneOutput(n)
	newType := srcType(src)
	out := &n.Outputs[0]
	if len(out.Sinks) > 0 && out.Type != newType {
		return herr.New(herr.DesignError, "signal %q: reconnecting with a different type %v (was %v) while already consumed", n.Name, newType, out.Type).
			WithPorts(n.portRef(0))
	}
	out.Type = newType
	out.OutKind = Immediate
	return nil
}

func propagateMaxWidth(n *Node, src NodePort) error {
	ensureOneOutput(n)
	out := &n.Outputs[0]
	newType := srcType(src)

	combined := newType
	for idx, in := range n.Inputs {
		if in.Driver.IsNull() || in.Driver.Equal(src) {
			continue
		}
		_ = idx
		t := srcType(in.Driver)
		if t.Interp != combined.Interp {
			return herr.New(herr.DesignError, "%s#%d: mismatched interpretations %v vs %v", n.Kind, n.ID, t.Interp, combined.Interp)
		}
		if t.Width > combined.Width {
			combined.Width = t.Width
		}
	}
	if len(out.Sinks) > 0 && out.Type != combined {
		return herr.New(herr.DesignError, "%s#%d: connecting would change an already-consumed output type from %v to %v", n.Kind, n.ID, out.Type, combined)
	}
	out.Type = combined
	if out.OutKind != Latched && out.OutKind != Constant {
		out.OutKind = Immediate
	}
	return nil
}

func propagateCompare(n *Node, i int, src NodePort) error {
	ensureOneOutput(n)
	out := &n.Outputs[0]
	out.Type = ConnectionType{Interp: Bool, Width: 1}
	out.OutKind = Immediate

	other := 0
	if i == 0 {
		other = 1
	}
	if other < len(n.Inputs) && !n.Inputs[other].Driver.IsNull() {
		ot := srcType(n.Inputs[other].Driver)
		nt := srcType(src)
		if ot.Width != nt.Width {
			return herr.New(herr.DesignError, "compare#%d: operand width mismatch %d vs %d", n.ID, ot.Width, nt.Width)
		}
	}
	return nil
}

func propagateMux(n *Node, i int, src NodePort) error {
	ensureOneOutput(n)
	md := n.Data.(*MultiplexerData)
	if i == 0 {
		// Selector: does not affect output type.
		return nil
	}
	out := &n.Outputs[0]
	newType := srcType(src)
	for idx := 1; idx <= md.N; idx++ {
		if idx == i || idx >= len(n.Inputs) || n.Inputs[idx].Driver.IsNull() {
			continue
		}
		t := srcType(n.Inputs[idx].Driver)
		if t != newType {
			return herr.New(herr.DesignError, "multiplexer#%d: data input %d type %v does not match data input %d type %v", n.ID, i, newType, idx, t)
		}
	}
	if len(out.Sinks) > 0 && out.Type != newType && out.Type != (ConnectionType{}) {
		return herr.New(herr.DesignError, "multiplexer#%d: connecting data input %d would change an already-consumed output type from %v to %v", n.ID, i, out.Type, newType)
	}
	out.Type = newType
	out.OutKind = Immediate
	return nil
}

func propagatePriorityConditional(n *Node, i int, src NodePort) error {
	ensureOneOutput(n)
	if i != 0 && (i-1)%2 == 0 {
		// Condition input of a (condition,value) pair: must be Bool,1.
		t := srcType(src)
		if t != (ConnectionType{Interp: Bool, Width: 1}) {
			return herr.New(herr.DesignError, "priority_conditional#%d: condition input %d must be Bool(1), got %v", n.ID, i, t)
		}
		return nil
	}
	// i==0 (default) or a value slot of a pair.
	out := &n.Outputs[0]
	newType := srcType(src)
	if len(out.Sinks) > 0 && out.Type != (ConnectionType{}) && out.Type != newType {
		return herr.New(herr.DesignError, "priority_conditional#%d: value input %d type %v conflicts with already-consumed output type %v", n.ID, i, newType, out.Type)
	}
	out.Type = newType
	out.OutKind = Immediate
	return nil
}

func propagateRegister(n *Node, i int, src NodePort) error {
	ensureOneOutput(n)
	out := &n.Outputs[0]
	out.OutKind = Latched

	if i != RegDataInput && i != RegResetValueInput {
		return nil // ENABLE does not carry the data type
	}
	newType := srcType(src)
	if out.Type != (ConnectionType{}) && out.Type != newType {
		return herr.New(herr.DesignError, "register#%d: input %d type %v conflicts with register type %v", n.ID, i, newType, out.Type)
	}
	out.Type = newType
	return nil
}

// propagateExternal checks a connected input against the declared
// type from the ExternalModule declaration (spec §4.8); External's
// own outputs are fixed at construction and never recomputed.
func propagateExternal(n *Node, i int, src NodePort) error {
	ed := n.Data.(*ExternalData)
	if i < 0 || i >= len(ed.InTypes) {
		return nil
	}
	declared := ed.InTypes[i]
	got := srcType(src)
	if got != declared {
		return herr.New(herr.DesignError, "external %q: input %d declared %v, connected %v", ed.ModuleName, i, declared, got).WithPorts(n.portRef(i))
	}
	return nil
}

func propagateCDC(n *Node, i int, src NodePort) error {
	ensureOneOutput(n)
	out := &n.Outputs[0]
	newType := srcType(src)
	if len(out.Sinks) > 0 && out.Type != (ConnectionType{}) && out.Type != newType {
		return herr.New(herr.DesignError, "cdc#%d: connecting input would change already-consumed output type from %v to %v", n.ID, out.Type, newType)
	}
	out.Type = newType
	out.OutKind = Immediate
	return nil
}
