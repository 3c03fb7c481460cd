package design

import (
	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/hlim"
	"github.com/oisee/hlim/pkg/program"
)

func u8() hlim.ConnectionType  { return hlim.ConnectionType{Interp: hlim.Unsigned, Width: 8} }
func bit1() hlim.ConnectionType { return hlim.ConnectionType{Interp: hlim.Bool, Width: 1} }

func constVal(width int, v uint64) *bitvec.State {
	s := bitvec.New(width)
	s.InsertWide(bitvec.Value, 0, width, v)
	for i := 0; i < width; i++ {
		s.Set(bitvec.Defined, i, true)
	}
	return s
}

func init() {
	Register("counter", buildCounter)
	Register("mux2", buildMux2)
	Register("splice", buildSplice)
}

// buildCounter is an 8-bit up-counter: synchronous rst takes priority
// over en, en gates the increment, otherwise the count holds. Reset is
// ordinary combinational priority logic feeding RegDataInput, since
// hlim.SimulateReset only applies a register's reset value at
// power-on (pkg/hlim/simulate.go) — a live "rst" pin has to be wired
// into the data path to have any effect after power-on.
func buildCounter() (*Design, error) {
	c := hlim.NewCircuit("counter")
	ck := clock.NewRootClock("clk", clock.R(50_000_000, 1), clock.Rising)
	attrs := ck.Attributes()
	attrs.ResetType = clock.ResetSynchronous
	c.CreateClock(ck)

	rst := c.NewPin(hlim.PinInput, "rst", bit1())
	en := c.NewPin(hlim.PinInput, "en", bit1())

	reg := c.NewRegister(ck)
	reg.Name = "count"
	reg.Outputs[0].Type = u8()

	zero, err := c.NewConstant(constVal(8, 0), u8())
	if err != nil {
		return nil, err
	}
	one, err := c.NewConstant(constVal(8, 1), u8())
	if err != nil {
		return nil, err
	}

	plusOne := c.NewArithmetic(hlim.OpAdd)
	if err := plusOne.ConnectInput(0, hlim.NodePort{Node: reg, Port: 0}); err != nil {
		return nil, err
	}
	if err := plusOne.ConnectInput(1, hlim.NodePort{Node: one, Port: 0}); err != nil {
		return nil, err
	}

	next := c.NewPriorityConditional()
	if err := next.ConnectInput(0, hlim.NodePort{Node: reg, Port: 0}); err != nil { // default: hold
		return nil, err
	}
	rstCond, rstVal := next.AddChoice()
	if err := next.ConnectInput(rstCond, hlim.NodePort{Node: rst, Port: 0}); err != nil {
		return nil, err
	}
	if err := next.ConnectInput(rstVal, hlim.NodePort{Node: zero, Port: 0}); err != nil {
		return nil, err
	}
	enCond, enVal := next.AddChoice()
	if err := next.ConnectInput(enCond, hlim.NodePort{Node: en, Port: 0}); err != nil {
		return nil, err
	}
	if err := next.ConnectInput(enVal, hlim.NodePort{Node: plusOne, Port: 0}); err != nil {
		return nil, err
	}

	if err := reg.ConnectInput(hlim.RegDataInput, hlim.NodePort{Node: next, Port: 0}); err != nil {
		return nil, err
	}
	if err := reg.ConnectInput(hlim.RegResetValueInput, hlim.NodePort{Node: zero, Port: 0}); err != nil {
		return nil, err
	}

	out := c.NewPin(hlim.PinOutput, "count_out", u8())
	if err := out.ConnectInput(0, hlim.NodePort{Node: reg, Port: 0}); err != nil {
		return nil, err
	}

	outputs := map[string]hlim.NodePort{
		"count": out.GetDriver(0),
	}
	return &Design{
		Name:    "counter",
		Circuit: c,
		Clock:   ck,
		Inputs: map[string]hlim.NodePort{
			"rst": {Node: rst, Port: 0},
			"en":  {Node: en, Port: 0},
		},
		Outputs:      outputs,
		BuildOptions: requireOutputs(outputs),
	}, nil
}

// requireOutputs asks program.Build to keep every named probe point
// observable even if nothing downstream of its output Pin happens to
// consume it (pkg/program.BuildOptions "testbench probe point").
func requireOutputs(outputs map[string]hlim.NodePort) program.BuildOptions {
	opts := program.BuildOptions{RequiredOutputs: make([]hlim.NodePort, 0, len(outputs))}
	for _, np := range outputs {
		opts.RequiredOutputs = append(opts.RequiredOutputs, np)
	}
	return opts
}

// buildMux2 is a purely combinational 2-way multiplexer, the minimal
// design exercising no clock domain at all (a vhdl-export-only demo).
func buildMux2() (*Design, error) {
	c := hlim.NewCircuit("picker")
	sel := c.NewPin(hlim.PinInput, "sel", u8())
	a := c.NewPin(hlim.PinInput, "a", u8())
	b := c.NewPin(hlim.PinInput, "b", u8())

	mux := c.NewMultiplexer(2)
	if err := mux.ConnectInput(0, hlim.NodePort{Node: sel, Port: 0}); err != nil {
		return nil, err
	}
	if err := mux.ConnectInput(1, hlim.NodePort{Node: a, Port: 0}); err != nil {
		return nil, err
	}
	if err := mux.ConnectInput(2, hlim.NodePort{Node: b, Port: 0}); err != nil {
		return nil, err
	}

	out := c.NewPin(hlim.PinOutput, "y", u8())
	if err := out.ConnectInput(0, hlim.NodePort{Node: mux, Port: 0}); err != nil {
		return nil, err
	}

	outputs := map[string]hlim.NodePort{"y": out.GetDriver(0)}
	return &Design{
		Name:    "mux2",
		Circuit: c,
		Inputs: map[string]hlim.NodePort{
			"sel": {Node: sel, Port: 0},
			"a":   {Node: a, Port: 0},
			"b":   {Node: b, Port: 0},
		},
		Outputs:      outputs,
		BuildOptions: requireOutputs(outputs),
	}, nil
}

// buildSplice concatenates the high and low nibble of an 8-bit input
// in swapped order, a minimal Rewire demo.
func buildSplice() (*Design, error) {
	c := hlim.NewCircuit("splice")
	src := c.NewPin(hlim.PinInput, "src", u8())
	ranges := []hlim.RewireRange{
		{Kind: hlim.RewireFromInput, Input: 0, Offset: 0, Width: 4},
		{Kind: hlim.RewireFromInput, Input: 0, Offset: 4, Width: 4},
	}
	rw, err := c.NewRewire(ranges, u8())
	if err != nil {
		return nil, err
	}
	if err := rw.ConnectInput(0, hlim.NodePort{Node: src, Port: 0}); err != nil {
		return nil, err
	}

	out := c.NewPin(hlim.PinOutput, "y", u8())
	if err := out.ConnectInput(0, hlim.NodePort{Node: rw, Port: 0}); err != nil {
		return nil, err
	}

	outputs := map[string]hlim.NodePort{"y": out.GetDriver(0)}
	return &Design{
		Name:         "splice",
		Circuit:      c,
		Inputs:       map[string]hlim.NodePort{"src": {Node: src, Port: 0}},
		Outputs:      outputs,
		BuildOptions: requireOutputs(outputs),
	}, nil
}
