package vhdl

import (
	"fmt"
	"strings"

	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/herr"
	"github.com/oisee/hlim/pkg/hlim"
)

// bitLiteral renders one node output's constant bits as a VHDL bit
// string literal, 'U' where undefined (spec §4.1 undefined bits carry
// through to the generated text rather than silently defaulting).
func bitLiteral(v *bitvec.State, width int) string {
	var b strings.Builder
	for i := width - 1; i >= 0; i-- {
		if !v.Get(bitvec.Defined, i) {
			b.WriteByte('U')
		} else if v.Get(bitvec.Value, i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// typedLiteral wraps a bit string literal in the type-qualified
// aggregate form a VHDL-93 tool accepts as a constant expression
// ('1' for a single STD_LOGIC bit, TYPE'("...") for a vector).
func typedLiteral(t hlim.ConnectionType, v *bitvec.State) (string, error) {
	if t.Interp == hlim.Bool {
		return "'" + bitLiteral(v, 1) + "'", nil
	}
	vt, err := vhdlType(t)
	if err != nil {
		return "", err
	}
	base := vt
	if i := strings.IndexByte(vt, '('); i >= 0 {
		base = vt[:i]
	}
	return fmt.Sprintf("%s'(\"%s\")", base, bitLiteral(v, int(t.Width))), nil
}

func logicOpSymbol(op hlim.LogicOp) (string, bool) {
	switch op {
	case hlim.OpAnd:
		return "and", true
	case hlim.OpNand:
		return "nand", true
	case hlim.OpOr:
		return "or", true
	case hlim.OpNor:
		return "nor", true
	case hlim.OpXor:
		return "xor", true
	case hlim.OpXnor:
		return "xnor", true
	case hlim.OpNot:
		return "not", false
	}
	return "", true
}

func arithOpSymbol(op hlim.ArithOp) string {
	switch op {
	case hlim.OpAdd:
		return "+"
	case hlim.OpSub:
		return "-"
	case hlim.OpMul:
		return "*"
	case hlim.OpDiv:
		return "/"
	case hlim.OpRem:
		return "mod"
	}
	return "?"
}

func compareOpSymbol(op hlim.CompareOp) string {
	switch op {
	case hlim.OpEq:
		return "="
	case hlim.OpNeq:
		return "/="
	case hlim.OpLt:
		return "<"
	case hlim.OpGt:
		return ">"
	case hlim.OpLeq:
		return "<="
	case hlim.OpGeq:
		return ">="
	}
	return "?"
}

// exprOf renders the VHDL expression producing np's value: either the
// name already resolved for a signal/port-backed node, or (for a node
// whose output was not assigned its own signal) a recursively inlined
// sub-expression.
func (b *entityBuilder) exprOf(np hlim.NodePort) (string, error) {
	if np.IsNull() {
		return "", herr.New(herr.ExportError, "unconnected input reached VHDL export")
	}
	if name, ok := b.names[np]; ok {
		return name, nil
	}
	return b.inlineExpr(np.Node)
}

// inlineExpr renders n's own formula regardless of whether n also has
// a signal name reserved for it (used both by exprOf, for a driver
// with no name yet, and by renderIfSignal, to compute the
// right-hand side of a node that owns its name but must still
// compute a fresh expression for it).
func (b *entityBuilder) inlineExpr(n *hlim.Node) (string, error) {
	switch n.Kind {
	case hlim.KindSignal:
		return b.exprOf(n.GetNonSignalDriver(0))
	case hlim.KindConstant:
		cd := n.Data.(*hlim.ConstantData)
		return typedLiteral(n.Outputs[0].Type, cd.Value)
	case hlim.KindExportOverride:
		od := n.Data.(*hlim.ExportOverrideData)
		return typedLiteral(n.Outputs[0].Type, od.ExportValue)
	case hlim.KindArithmetic:
		ad := n.Data.(*hlim.ArithmeticData)
		lhs, err := b.exprOf(n.GetDriver(0))
		if err != nil {
			return "", err
		}
		rhs, err := b.exprOf(n.GetDriver(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", lhs, arithOpSymbol(ad.Op), rhs), nil
	case hlim.KindLogic:
		ld := n.Data.(*hlim.LogicData)
		sym, binary := logicOpSymbol(ld.Op)
		lhs, err := b.exprOf(n.GetDriver(0))
		if err != nil {
			return "", err
		}
		if !binary {
			return fmt.Sprintf("(%s %s)", sym, lhs), nil
		}
		rhs, err := b.exprOf(n.GetDriver(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", lhs, sym, rhs), nil
	case hlim.KindCompare:
		cd := n.Data.(*hlim.CompareData)
		lhs, err := b.exprOf(n.GetDriver(0))
		if err != nil {
			return "", err
		}
		rhs, err := b.exprOf(n.GetDriver(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", lhs, compareOpSymbol(cd.Op), rhs), nil
	case hlim.KindRewire:
		return b.renderRewire(n)
	case hlim.KindMultiplexer:
		return b.renderMuxExpr(n)
	case hlim.KindCDC:
		return b.exprOf(n.GetDriver(0))
	default:
		return "", herr.New(herr.ExportError, "%s#%d has no inline VHDL expression form", n.Kind, n.ID)
	}
}

func (b *entityBuilder) renderRewire(n *hlim.Node) (string, error) {
	rd := n.Data.(*hlim.RewireData)
	parts := make([]string, 0, len(rd.Ranges))
	for _, r := range rd.Ranges {
		switch r.Kind {
		case hlim.RewireZero, hlim.RewireOne:
			lit, err := typedLiteral(hlim.ConnectionType{Interp: hlim.Raw, Width: uint32(r.Width)}, fillBits(r.Width, r.Kind == hlim.RewireOne))
			if err != nil {
				return "", err
			}
			parts = append(parts, lit)
		case hlim.RewireFromInput:
			src, err := b.exprOf(n.GetDriver(r.Input))
			if err != nil {
				return "", err
			}
			if r.Width == 1 {
				parts = append(parts, fmt.Sprintf("%s(%d)", src, r.Offset))
			} else {
				parts = append(parts, fmt.Sprintf("%s(%d downto %d)", src, r.Offset+r.Width-1, r.Offset))
			}
		}
	}
	return strings.Join(parts, " & "), nil
}

func fillBits(width int, one bool) *bitvec.State {
	v := bitvec.New(width)
	for i := 0; i < width; i++ {
		v.Set(bitvec.Defined, i, true)
		v.Set(bitvec.Value, i, one)
	}
	return v
}

// renderMuxExpr inlines a multiplexer as a cascaded "when/else"
// expression indexed by the selector's unsigned value (spec §4.7
// "Multiplexer becomes a when ... else expression").
func (b *entityBuilder) renderMuxExpr(n *hlim.Node) (string, error) {
	md := n.Data.(*hlim.MultiplexerData)
	sel, err := b.exprOf(n.GetDriver(0))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for idx := 1; idx <= md.N; idx++ {
		val, err := b.exprOf(n.GetDriver(idx))
		if err != nil {
			return "", err
		}
		if idx > 1 {
			sb.WriteString(" else ")
		}
		fmt.Fprintf(&sb, "%s when to_integer(%s) = %d", val, sel, idx-1)
	}
	return sb.String(), nil
}

// renderPriorityConditionalAssign renders a PriorityConditional as a
// concurrent conditional signal assignment into target.
func (b *entityBuilder) renderPriorityConditionalAssign(target string, n *hlim.Node) (string, error) {
	pd := n.Data.(*hlim.PriorityConditionalData)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <= ", target)
	for i := 0; i < pd.NumChoices; i++ {
		condIdx := 1 + 2*i
		valIdx := condIdx + 1
		cond, err := b.exprOf(n.GetDriver(condIdx))
		if err != nil {
			return "", err
		}
		val, err := b.exprOf(n.GetDriver(valIdx))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%s when %s = '1' else ", val, cond)
	}
	def, err := b.exprOf(n.GetDriver(0))
	if err != nil {
		return "", err
	}
	sb.WriteString(def)
	sb.WriteString(";")
	return sb.String(), nil
}
