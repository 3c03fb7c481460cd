package attr

import (
	"testing"

	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/hlim"
	"github.com/oisee/hlim/pkg/script"
)

func u8() hlim.ConnectionType { return hlim.ConnectionType{Interp: hlim.Unsigned, Width: 8} }

func mustConnect(t *testing.T, n *hlim.Node, i int, src hlim.NodePort) {
	t.Helper()
	if err := n.ConnectInput(i, src); err != nil {
		t.Fatalf("ConnectInput(%d): %v", i, err)
	}
}

func bitVal(width int, v uint64) *bitvec.State {
	s := bitvec.New(width)
	s.InsertWide(bitvec.Value, 0, width, v)
	for i := 0; i < width; i++ {
		s.Set(bitvec.Defined, i, true)
	}
	return s
}

func TestSignalAttributesAnnotate(t *testing.T) {
	c := hlim.NewCircuit("top")
	val, err := c.NewConstant(bitVal(8, 5), u8())
	if err != nil {
		t.Fatalf("NewConstant: %v", err)
	}

	sa := NewSignalAttributes()
	sa.MaxFanout = 4
	sa.AllowFusing = true
	sa.SetVendor("xilinx", "KEEP", "true")

	an, err := sa.Annotate(c, hlim.NodePort{Node: val, Port: 0})
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	ad := an.Data.(*hlim.AttributesData)
	if ad.MaxFanout != 4 || !ad.AllowFusing {
		t.Fatalf("attribute fields not copied: %+v", ad)
	}
	if ad.Vendor["xilinx"]["KEEP"] != "true" {
		t.Fatalf("vendor map not copied: %+v", ad.Vendor)
	}
	if an.Inputs[0].Driver.Node != val {
		t.Fatalf("Attributes node not wired to its source")
	}

	sink := c.NewArithmetic(hlim.OpAdd)
	mustConnect(t, sink, 0, hlim.NodePort{Node: an, Port: 0})
	if sink.Inputs[0].Driver.Node != an {
		t.Fatalf("downstream consumer should wire to the Attributes node, not bypass it")
	}
}

func TestPathAttributesBuild(t *testing.T) {
	c := hlim.NewCircuit("top")
	a := c.NewSignal("a")
	b := c.NewSignal("b")

	pa := NewPathAttributes()
	pa.SetVendor("xilinx", "false_path", "true")
	n := pa.Build(c, hlim.NodePort{Node: a, Port: 0}, hlim.NodePort{Node: b, Port: 0})

	pd := n.Data.(*hlim.PathAttributesData)
	if pd.Vendor["xilinx"]["false_path"] != "true" {
		t.Fatalf("path vendor attribute not set: %+v", pd.Vendor)
	}
	if len(n.Inputs) != 0 || len(n.Outputs) != 0 {
		t.Fatalf("PathAttributes should carry no signal, got %d in %d out", len(n.Inputs), len(n.Outputs))
	}
}

func TestPinBuildDifferentialAndClockOverride(t *testing.T) {
	c := hlim.NewCircuit("top")
	ck := clock.NewRootClock("sysclk", clock.R(100_000_000, 1), clock.Rising)

	p := &Pin{Kind: hlim.PinInput, Name: "clk_in", ClockOverride: ck, Diff: &DiffPair{Pos: "_p", Neg: "_n"}}
	n, err := p.Build(c, hlim.ConnectionType{Interp: hlim.Bool, Width: 1})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	pd := n.Data.(*hlim.PinData)
	if !pd.IsDifferential || pd.DiffPos != "_p" || pd.DiffNeg != "_n" {
		t.Fatalf("differential fields not set: %+v", pd)
	}
	if pd.ClockOverride != ck {
		t.Fatalf("clock override not set")
	}
	found := false
	for _, c := range n.Clocks {
		if c == ck {
			found = true
		}
	}
	if !found {
		t.Fatalf("clock override not folded into node.Clocks")
	}
}

func TestPinClockOverrideRejectedOnOutput(t *testing.T) {
	c := hlim.NewCircuit("top")
	ck := clock.NewRootClock("sysclk", clock.R(100_000_000, 1), clock.Rising)
	p := &Pin{Kind: hlim.PinOutput, Name: "q", ClockOverride: ck}
	if _, err := p.Build(c, u8()); err == nil {
		t.Fatalf("expected error for clock override on a non-input pin")
	}
}

func TestExternalModuleBuildFoldsInouts(t *testing.T) {
	c := hlim.NewCircuit("top")
	ckA := clock.NewRootClock("a", clock.R(50_000_000, 1), clock.Rising)
	ckB := clock.NewRootClock("b", clock.R(50_000_000, 1), clock.Rising)

	m := &ExternalModule{
		ModuleName:        "fifo",
		Ins:               []hlim.ConnectionType{u8()},
		Outs:              []hlim.ConnectionType{u8()},
		Inouts:            []hlim.ConnectionType{u8()},
		Generics:          map[string]string{"DEPTH": "16"},
		InClocks:          []clock.Clock{ckA, ckB},
		OutClockRelations: []clock.Clock{ckA, ckB},
	}
	n, err := m.Build(c)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(n.Inputs) != 2 || len(n.Outputs) != 2 {
		t.Fatalf("expected inouts folded onto both sides, got %d in %d out", len(n.Inputs), len(n.Outputs))
	}
	ed := n.Data.(*hlim.ExternalData)
	if ed.Generics["DEPTH"] != "16" {
		t.Fatalf("generics not copied: %+v", ed.Generics)
	}
	if len(n.Clocks) != 2 {
		t.Fatalf("expected both clocks bound onto the node, got %d", len(n.Clocks))
	}
}

func TestExternalModuleBuildWithScriptResolvesGenerics(t *testing.T) {
	c := hlim.NewCircuit("top")
	ck := clock.NewRootClock("a", clock.R(50_000_000, 1), clock.Rising)

	m := &ExternalModule{
		ModuleName:        "fifo",
		Ins:               []hlim.ConnectionType{u8()},
		Outs:              []hlim.ConnectionType{u8()},
		Generics:          map[string]string{"DEPTH": "4*4"},
		InClocks:          []clock.Clock{ck},
		OutClockRelations: []clock.Clock{ck},
	}
	ev := script.NewEvaluator()
	defer ev.Close()

	n, err := m.BuildWithScript(c, ev)
	if err != nil {
		t.Fatalf("BuildWithScript: %v", err)
	}
	ed := n.Data.(*hlim.ExternalData)
	if ed.Generics["DEPTH"] != "16" {
		t.Fatalf("expected DEPTH resolved to 16, got %q", ed.Generics["DEPTH"])
	}
}

func TestExternalModuleBuildRejectsMismatchedClockCounts(t *testing.T) {
	c := hlim.NewCircuit("top")
	m := &ExternalModule{
		ModuleName: "bad",
		Ins:        []hlim.ConnectionType{u8()},
		Outs:       []hlim.ConnectionType{u8()},
	}
	if _, err := m.Build(c); err == nil {
		t.Fatalf("expected error for missing in_clocks/out_clock_relations")
	}
}
