package vhdl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/herr"
	"github.com/oisee/hlim/pkg/hlim"
)

type portDecl struct {
	name, dir, typ string
}

type signalDecl struct {
	name, typ string
}

// entityBuilder accumulates one GroupEntity's VHDL text. One instance
// is used per entity; exprOf/names is the memo table of already-
// resolved (signal- or port-backed) node outputs.
type entityBuilder struct {
	opts   Options
	global *namespace
	ns     *namespace

	names map[hlim.NodePort]string

	ports   []portDecl
	signals []signalDecl
	body    []string // concurrent statements and processes, in emission order

	clockPorts map[clock.Clock]string
	resetPorts map[clock.Clock]string

	nested map[*hlim.Node]bool // nodes living in a nested child Entity group

	sdc *[]string
}

// Export walks circuit's NodeGroup tree and renders one VHDL file per
// GroupEntity group found (spec §4.7 "Entity extraction"). Returns a
// map from relative file path to file contents; an SDC side-file is
// included under "constraints.sdc" whenever any CDC node was
// exported (spec §4.7 "CDC ... emits, into an SDC side-file, a path
// constraint").
func Export(c *hlim.Circuit, opts Options) (map[string]string, error) {
	global := newNamespace(nil)
	files := make(map[string]string)
	var sdc []string

	var walk func(g *hlim.NodeGroup) error
	walk = func(g *hlim.NodeGroup) error {
		if g.Kind == hlim.GroupEntity {
			content, err := buildEntity(g, opts, global, &sdc)
			if err != nil {
				return herr.New(herr.ExportError, "entity %q: %v", g.Name, err)
			}
			files[entityPath(g)] = content
		}
		for _, child := range g.Children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(c.RootGroup()); err != nil {
		return nil, err
	}
	if len(sdc) > 0 {
		sort.Strings(sdc)
		files["constraints.sdc"] = opts.header() + strings.Join(sdc, "\n") + "\n"
	}
	return files, nil
}

func entityPath(g *hlim.NodeGroup) string {
	var segs []string
	for p := g; p != nil; p = p.Parent {
		if p.Kind == hlim.GroupEntity {
			segs = append([]string{p.Name}, segs...)
		}
	}
	if len(segs) == 0 {
		return g.Name + ".vhd"
	}
	return strings.Join(segs, "/") + ".vhd"
}

// collectEntityNodes flattens g's own nodes and every descendant
// group's nodes into one list, EXCEPT it still flags which ones live
// directly under a nested Entity subgroup (rather than an Area or
// Procedure) so that signalKindFor names such a node's signal as
// SignalChildIO (spec §4.7 classification list, "child-entity I/O");
// being nested does not by itself give a node a signal of its own.
// See DESIGN.md for why a nested Entity group is
// flattened into its parent's file rather than separately
// instantiated (hlim's Pin model has no port-map composition
// mechanism of its own — External already covers true black-box
// instantiation).
func collectEntityNodes(top *hlim.NodeGroup) ([]*hlim.Node, map[*hlim.Node]bool) {
	var nodes []*hlim.Node
	nested := make(map[*hlim.Node]bool)
	var walk func(g *hlim.NodeGroup)
	walk = func(g *hlim.NodeGroup) {
		for _, n := range g.Nodes {
			nodes = append(nodes, n)
			if g != top && g.Kind == hlim.GroupEntity {
				nested[n] = true
			}
		}
		for _, child := range g.Children {
			walk(child)
		}
	}
	walk(top)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nested
}

func buildEntity(g *hlim.NodeGroup, opts Options, global *namespace, sdc *[]string) (string, error) {
	nodes, nested := collectEntityNodes(g)

	b := &entityBuilder{
		opts:       opts,
		global:     global,
		ns:         newNamespace(global),
		names:      make(map[hlim.NodePort]string),
		clockPorts: make(map[clock.Clock]string),
		resetPorts: make(map[clock.Clock]string),
		nested:     nested,
		sdc:        sdc,
	}
	b.ns.reserve(g.Name)

	for _, n := range nodes {
		if err := b.classify(n); err != nil {
			return "", err
		}
	}
	for _, n := range nodes {
		if err := b.render(n); err != nil {
			return "", err
		}
	}

	return b.format(g.Name), nil
}

func (b *entityBuilder) signalKindFor(n *hlim.Node) SignalKind {
	if b.nested[n] {
		return SignalChildIO
	}
	switch n.Kind {
	case hlim.KindRegister, hlim.KindMemPort:
		return SignalRegister
	case hlim.KindMultiplexer:
		return SignalWire
	default:
		return SignalWire
	}
}

// needsSignal decides which nodes get their own VHDL signal instead
// of being inlined as a sub-expression: registers, multiplexers,
// priority conditionals, memory ports, pins, external instances,
// signal taps and CDC nodes always do, and any other node whose single
// output feeds more than one sink.
func needsSignal(n *hlim.Node) bool {
	switch n.Kind {
	case hlim.KindRegister, hlim.KindMultiplexer, hlim.KindPriorityConditional,
		hlim.KindMemPort, hlim.KindPin, hlim.KindExternal, hlim.KindSignalTap,
		hlim.KindCDC:
		return true
	}
	if len(n.Outputs) == 1 && len(n.Outputs[0].Sinks) > 1 {
		return true
	}
	return false
}

// classify resolves a name (port, register signal, or plain wire) for
// every node whose output needs one of its own; inlined nodes are
// named lazily by exprOf during render.
func (b *entityBuilder) classify(n *hlim.Node) error {
	switch n.Kind {
	case hlim.KindPin:
		return b.classifyPin(n)
	case hlim.KindExternal:
		return b.classifyExternalClocks(n)
	}
	if len(n.Clocks) > 0 {
		for _, ck := range n.Clocks {
			if err := b.ensureClockPort(ck); err != nil {
				return err
			}
		}
	}
	if !needsSignal(n) || len(n.Outputs) == 0 {
		return nil
	}
	desired := n.Name
	if desired == "" {
		desired = strings.ToLower(n.Kind.String())
	}
	kind := b.signalKindFor(n)
	name, err := b.ns.resolve(func(attempt int) string {
		return b.opts.formatting().SignalName(desired, kind, attempt)
	})
	if err != nil {
		return err
	}
	b.names[hlim.NodePort{Node: n, Port: 0}] = name
	vt, err := vhdlType(n.Outputs[0].Type)
	if err != nil {
		return err
	}
	b.signals = append(b.signals, signalDecl{name: name, typ: vt})
	return nil
}

func (b *entityBuilder) classifyPin(n *hlim.Node) error {
	pd := n.Data.(*hlim.PinData)
	name, err := b.ns.resolve(func(attempt int) string {
		return b.opts.formatting().NodeName(n, attempt)
	})
	if err != nil {
		return err
	}
	var typ hlim.ConnectionType
	dir := "in"
	switch pd.Kind {
	case hlim.PinInput:
		typ = n.Outputs[0].Type
		dir = "in"
		b.names[hlim.NodePort{Node: n, Port: 0}] = name
	case hlim.PinOutput:
		typ = driverType(n, 0)
		dir = "out"
	case hlim.PinBidir:
		typ = n.Outputs[0].Type
		dir = "inout"
		b.names[hlim.NodePort{Node: n, Port: 0}] = name
	}
	vt, err := vhdlType(typ)
	if err != nil {
		return err
	}
	if pd.ClockOverride != nil {
		if err := b.ensureClockPort(pd.ClockOverride); err != nil {
			return err
		}
	}
	b.ports = append(b.ports, portDecl{name: name, dir: dir, typ: vt})
	b.names[hlim.NodePort{Node: n, Port: -1}] = name // port name keyed separately for output pins
	return nil
}

func driverType(n *hlim.Node, input int) hlim.ConnectionType {
	drv := n.GetNonSignalDriver(input)
	if drv.IsNull() {
		return hlim.ConnectionType{}
	}
	return drv.Node.Outputs[drv.Port].Type
}

func (b *entityBuilder) classifyExternalClocks(n *hlim.Node) error {
	ed := n.Data.(*hlim.ExternalData)
	for _, ck := range ed.InClocks {
		if ck == nil {
			continue
		}
		if err := b.ensureClockPort(ck); err != nil {
			return err
		}
	}
	for _, ck := range ed.OutClockRelations {
		if ck == nil {
			continue
		}
		if err := b.ensureClockPort(ck); err != nil {
			return err
		}
	}
	name, err := b.ns.resolve(func(attempt int) string {
		return b.opts.formatting().SignalName(n.Name, SignalWire, attempt)
	})
	if err != nil {
		return err
	}
	for i := range n.Outputs {
		b.names[hlim.NodePort{Node: n, Port: i}] = fmt.Sprintf("%s_out%d", name, i)
	}
	return nil
}

func (b *entityBuilder) ensureClockPort(ck clock.Clock) error {
	if _, ok := b.clockPorts[ck]; ok {
		return nil
	}
	name, err := b.global.resolve(func(attempt int) string {
		return b.opts.formatting().GlobalName(ck.ClockName(), attempt)
	})
	if err != nil {
		return err
	}
	b.clockPorts[ck] = name
	b.ports = append(b.ports, portDecl{name: name, dir: "in", typ: "STD_LOGIC"})

	if rt := ck.Attributes().ResetType; rt != clock.ResetNone {
		rname, err := b.global.resolve(func(attempt int) string {
			return b.opts.formatting().GlobalName("rst_"+ck.ClockName(), attempt)
		})
		if err != nil {
			return err
		}
		b.resetPorts[ck] = rname
		b.ports = append(b.ports, portDecl{name: rname, dir: "in", typ: "STD_LOGIC"})
	}
	return nil
}

func (b *entityBuilder) render(n *hlim.Node) error {
	switch n.Kind {
	case hlim.KindPin:
		return b.renderPin(n)
	case hlim.KindRegister:
		return b.renderRegister(n)
	case hlim.KindMultiplexer:
		return b.renderMuxSignal(n)
	case hlim.KindPriorityConditional:
		return b.renderPriorityConditional(n)
	case hlim.KindMemPort:
		return b.renderMemPort(n)
	case hlim.KindExternal:
		return b.renderExternal(n)
	case hlim.KindSignalTap:
		return b.renderSignalTap(n)
	case hlim.KindCDC:
		return b.renderCDC(n)
	case hlim.KindSignal, hlim.KindConstant, hlim.KindArithmetic, hlim.KindLogic,
		hlim.KindCompare, hlim.KindRewire, hlim.KindExportOverride,
		hlim.KindAttributes, hlim.KindPathAttributes, hlim.KindMultiDriver, hlim.KindMemory:
		return b.renderIfSignal(n)
	default:
		return herr.New(herr.ExportError, "%s#%d has no VHDL rendering", n.Kind, n.ID)
	}
}

// renderIfSignal emits a concurrent assignment for any node that was
// given its own signal during classify (multi-sink wires); purely
// inlined nodes render lazily wherever a consumer calls exprOf.
func (b *entityBuilder) renderIfSignal(n *hlim.Node) error {
	name, ok := b.names[hlim.NodePort{Node: n, Port: 0}]
	if !ok || len(n.Outputs) == 0 {
		return nil
	}
	// Signal/Attributes are transparent pass-throughs onto whatever
	// drives them; every other kind here renders its own expression
	// (a literal, an operator, ...) via exprOfOwn.
	var expr string
	var err error
	switch n.Kind {
	case hlim.KindSignal, hlim.KindAttributes:
		expr, err = b.exprOf(n.GetNonSignalDriver(0))
	default:
		expr, err = b.exprOfOwn(n)
	}
	if err != nil {
		return err
	}
	b.body = append(b.body, fmt.Sprintf("%s <= %s;", name, expr))
	return nil
}

// exprOfOwn renders n's own combinational expression even though n
// already has a signal name reserved in b.names (because of
// fan-out); it must not consult that memo itself or it would just
// return its own name back.
func (b *entityBuilder) exprOfOwn(n *hlim.Node) (string, error) {
	return b.inlineExpr(n)
}

func (b *entityBuilder) renderPin(n *hlim.Node) error {
	pd := n.Data.(*hlim.PinData)
	if pd.Kind == hlim.PinOutput || pd.Kind == hlim.PinBidir {
		name := b.names[hlim.NodePort{Node: n, Port: -1}]
		drv := n.GetNonSignalDriver(0)
		expr, err := b.exprOf(drv)
		if err != nil {
			return err
		}
		b.body = append(b.body, fmt.Sprintf("%s <= %s;", name, expr))
	}
	return nil
}

func (b *entityBuilder) renderRegister(n *hlim.Node) error {
	name := b.names[hlim.NodePort{Node: n, Port: 0}]
	ck := n.Clocks[0]
	clkName := b.clockPorts[ck]
	edgeFn := "rising_edge"
	if ck.Edge() == clock.Falling {
		edgeFn = "falling_edge"
	}

	dataExpr, err := b.exprOf(n.GetDriver(hlim.RegDataInput))
	if err != nil {
		return err
	}
	var enableExpr string
	if !n.GetDriver(hlim.RegEnableInput).IsNull() {
		enableExpr, err = b.exprOf(n.GetDriver(hlim.RegEnableInput))
		if err != nil {
			return err
		}
	}

	rname, hasReset := b.resetPorts[ck]
	async := hasReset && ck.Attributes().ResetType == clock.ResetAsynchronous
	var resetExpr string
	if hasReset {
		if !n.GetDriver(hlim.RegResetValueInput).IsNull() {
			resetExpr, err = b.exprOf(n.GetDriver(hlim.RegResetValueInput))
			if err != nil {
				return err
			}
		} else {
			// No reset-value driver connected: the register still has a
			// reset port wired up (via its clock's RegisterAttributes),
			// so reset to all-zero.
			width := int(n.Outputs[0].Type.Width)
			resetExpr, err = typedLiteral(n.Outputs[0].Type, fillBits(width, false))
			if err != nil {
				return err
			}
		}
	}

	update := fmt.Sprintf("%s <= %s;", name, dataExpr)
	if enableExpr != "" {
		update = fmt.Sprintf("if %s = '1' then\n      %s\n    end if;", enableExpr, update)
	}

	var sensitivity string
	var body string
	switch {
	case async:
		sensitivity = fmt.Sprintf("%s, %s", clkName, rname)
		body = fmt.Sprintf("  if %s = '1' then\n    %s <= %s;\n  elsif %s(%s) then\n    %s\n  end if;",
			rname, name, resetExpr, edgeFn, clkName, update)
	case hasReset:
		sensitivity = clkName
		if enableExpr != "" {
			body = fmt.Sprintf("  if %s(%s) then\n    if %s = '1' then\n      %s <= %s;\n    elsif %s = '1' then\n      %s <= %s;\n    end if;\n  end if;",
				edgeFn, clkName, rname, name, resetExpr, enableExpr, name, dataExpr)
		} else {
			body = fmt.Sprintf("  if %s(%s) then\n    if %s = '1' then\n      %s <= %s;\n    else\n      %s\n    end if;\n  end if;",
				edgeFn, clkName, rname, name, resetExpr, update)
		}
	default:
		sensitivity = clkName
		body = fmt.Sprintf("  if %s(%s) then\n    %s\n  end if;", edgeFn, clkName, update)
	}

	stmt := fmt.Sprintf("process(%s)\nbegin\n%s\nend process;", sensitivity, body)
	b.body = append(b.body, stmt)
	return nil
}

func (b *entityBuilder) renderMuxSignal(n *hlim.Node) error {
	name := b.names[hlim.NodePort{Node: n, Port: 0}]
	expr, err := b.renderMuxExpr(n)
	if err != nil {
		return err
	}
	b.body = append(b.body, fmt.Sprintf("%s <= %s;", name, expr))
	return nil
}

func (b *entityBuilder) renderPriorityConditional(n *hlim.Node) error {
	name := b.names[hlim.NodePort{Node: n, Port: 0}]
	if name == "" {
		// Single-sink priority conditionals were not forced onto their
		// own signal; give them one now since a conditional signal
		// assignment needs a concrete target.
		var err error
		name, err = b.ns.resolve(func(attempt int) string {
			return b.opts.formatting().SignalName(n.Name, SignalWire, attempt)
		})
		if err != nil {
			return err
		}
		vt, err := vhdlType(n.Outputs[0].Type)
		if err != nil {
			return err
		}
		b.signals = append(b.signals, signalDecl{name: name, typ: vt})
		b.names[hlim.NodePort{Node: n, Port: 0}] = name
	}
	stmt, err := b.renderPriorityConditionalAssign(name, n)
	if err != nil {
		return err
	}
	b.body = append(b.body, stmt)
	return nil
}

func (b *entityBuilder) renderMemPort(n *hlim.Node) error {
	md := n.Data.(*hlim.MemPortData)
	mem := md.Memory
	memSig, ok := b.names[hlim.NodePort{Node: mem, Port: 0}]
	if !ok {
		var err error
		memSig, err = b.ns.resolve(func(attempt int) string {
			return b.opts.formatting().SignalName(mem.Name, SignalRegister, attempt)
		})
		if err != nil {
			return err
		}
		mdData := mem.Data.(*hlim.MemoryData)
		b.signals = append(b.signals, signalDecl{
			name: memSig,
			typ:  fmt.Sprintf("hlim_mem_array(0 to %d)(%d downto 0)", mdData.Depth-1, mdData.WordWidth-1),
		})
		b.names[hlim.NodePort{Node: mem, Port: 0}] = memSig
	}

	name := b.names[hlim.NodePort{Node: n, Port: 0}]
	addrExpr, err := b.exprOf(n.GetDriver(hlim.MemPortAddr))
	if err != nil {
		return err
	}

	if md.Kind == hlim.MemPortRead && len(n.Clocks) == 0 {
		b.body = append(b.body, fmt.Sprintf("%s <= %s(to_integer(%s));", name, memSig, addrExpr))
		return nil
	}

	ck := n.Clocks[0]
	clkName := b.clockPorts[ck]
	edgeFn := "rising_edge"
	if ck.Edge() == clock.Falling {
		edgeFn = "falling_edge"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "process(%s)\nbegin\n  if %s(%s) then\n", clkName, edgeFn, clkName)
	if md.Kind == hlim.MemPortReadWrite && name != "" {
		fmt.Fprintf(&sb, "    %s <= %s(to_integer(%s));\n", name, memSig, addrExpr)
	}
	if md.Kind == hlim.MemPortWrite || md.Kind == hlim.MemPortReadWrite {
		enableExpr, err := b.exprOf(n.GetDriver(hlim.MemPortEnable))
		if err != nil {
			return err
		}
		dataExpr, err := b.exprOf(n.GetDriver(hlim.MemPortData_))
		if err != nil {
			return err
		}
		fmt.Fprintf(&sb, "    if %s = '1' then\n      %s(to_integer(%s)) <= %s;\n    end if;\n", enableExpr, memSig, addrExpr, dataExpr)
	}
	sb.WriteString("  end if;\nend process;")
	b.body = append(b.body, sb.String())
	return nil
}

// renderExternal instantiates a black-box module by position rather
// than by name: ExternalData carries the module's declared port
// types but not its port names, so a positional port map (inputs in
// declaration order, then outputs) is the only association this IR
// can make (spec §4.7 "External ... component instantiation").
func (b *entityBuilder) renderExternal(n *hlim.Node) error {
	ed := n.Data.(*hlim.ExternalData)
	label, err := b.ns.resolve(func(attempt int) string {
		return b.opts.formatting().NodeName(n, attempt)
	})
	if err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s : entity work.%s\n", label, ed.ModuleName)
	if len(ed.Generics) > 0 {
		keys := make([]string, 0, len(ed.Generics))
		for k := range ed.Generics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var generics []string
		for _, k := range keys {
			generics = append(generics, fmt.Sprintf("  %s => %s", k, ed.Generics[k]))
		}
		sb.WriteString("generic map(\n")
		sb.WriteString(strings.Join(generics, ",\n"))
		sb.WriteString("\n)\n")
	}
	sb.WriteString("port map(\n")
	var maps []string
	for i := range n.Inputs {
		expr, err := b.exprOf(n.GetDriver(i))
		if err != nil {
			return err
		}
		maps = append(maps, "  "+expr)
	}
	for i := range n.Outputs {
		maps = append(maps, "  "+b.names[hlim.NodePort{Node: n, Port: i}])
	}
	sb.WriteString(strings.Join(maps, ",\n"))
	sb.WriteString("\n);")
	b.body = append(b.body, sb.String())
	return nil
}

func (b *entityBuilder) renderSignalTap(n *hlim.Node) error {
	td := n.Data.(*hlim.SignalTapData)
	if td.Kind == hlim.TapWatch {
		return nil // retained for debuggers only; emits nothing (spec §4.7)
	}
	cond, err := b.exprOf(n.GetDriver(0))
	if err != nil {
		return err
	}
	severity := "note"
	if td.Kind == hlim.TapWarn {
		severity = "warning"
	}
	if td.Kind == hlim.TapAssert {
		severity = "error"
	}
	label, err := b.ns.resolve(func(attempt int) string {
		return b.opts.formatting().NodeName(n, attempt)
	})
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("%s: process(%s)\nbegin\n  assert %s = '0' report %q severity %s;\nend process;",
		label, cond, cond, td.Text, severity)
	b.body = append(b.body, stmt)
	return nil
}

// renderCDC is structurally transparent (spec §4.7 "CDC ... passes
// its value straight through") but still gets its own signal (forced
// via needsSignal) so the emitted SDC constraint can name a concrete
// signal rather than an opaque node reference.
func (b *entityBuilder) renderCDC(n *hlim.Node) error {
	name := b.names[hlim.NodePort{Node: n, Port: 0}]
	srcExpr, err := b.exprOf(n.GetDriver(0))
	if err != nil {
		return err
	}
	b.body = append(b.body, fmt.Sprintf("%s <= %s;", name, srcExpr))

	cd := n.Data.(*hlim.CDCData)
	*b.sdc = append(*b.sdc, fmt.Sprintf(
		"set_cdc_constraint -from {%s} -from_clock {%s} -to {%s} -to_clock {%s} -max_skew %d -net_delay %d -gray_coded %t",
		srcExpr, cd.InputClock.ClockName(), name, cd.OutputClock.ClockName(), cd.MaxSkew, cd.NetDelay, cd.IsGrayCoded))
	return nil
}

func (b *entityBuilder) format(entityName string) string {
	var sb strings.Builder
	sb.WriteString(b.opts.header())
	sb.WriteString("\nlibrary IEEE;\n")
	sb.WriteString("use IEEE.STD_LOGIC_1164.ALL;\n")
	sb.WriteString("use IEEE.NUMERIC_STD.ALL;\n\n")

	fmt.Fprintf(&sb, "entity %s is\n", entityName)
	if len(b.ports) > 0 {
		sb.WriteString("port(\n")
		for i, p := range b.ports {
			comma := ";"
			if i == len(b.ports)-1 {
				comma = ""
			}
			fmt.Fprintf(&sb, "  %s : %s %s%s\n", p.name, p.dir, p.typ, comma)
		}
		sb.WriteString(");\n")
	}
	fmt.Fprintf(&sb, "end entity %s;\n\n", entityName)

	fmt.Fprintf(&sb, "architecture rtl of %s is\n\n", entityName)
	hasMem := false
	for _, s := range b.signals {
		if strings.Contains(s.typ, "hlim_mem_array") {
			hasMem = true
		}
	}
	if hasMem {
		sb.WriteString("type hlim_mem_word is array(natural range <>) of STD_LOGIC;\n")
		sb.WriteString("type hlim_mem_array is array(natural range <>) of hlim_mem_word;\n\n")
	}
	for _, s := range b.signals {
		fmt.Fprintf(&sb, "signal %s : %s;\n", s.name, s.typ)
	}
	sb.WriteString("\nbegin\n\n")
	for _, stmt := range b.body {
		sb.WriteString(stmt)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "end architecture rtl;\n")
	return sb.String()
}
