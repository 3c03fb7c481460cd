// Package design is a named registry of ready-built HLIM circuits for
// cmd/hlimc to operate on. spec.md has no on-disk circuit description
// format — a circuit is built by calling the pkg/hlim API directly —
// so the CLI needs something concrete to name on the command line.
// Grounded on the teacher's pkg/codegen.BackendFactory/RegisterBackend
// registry shape (pkg/codegen/backend.go), generalized from "name a
// code generation backend" to "name a circuit to simulate or export".
package design

import (
	"sort"

	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/hlim"
	"github.com/oisee/hlim/pkg/program"
)

// Design bundles a built Circuit with the handles a driver needs to
// find its interesting ports without re-deriving them from the graph.
type Design struct {
	Name string

	Circuit *hlim.Circuit
	// Clock is the design's primary clock, or nil for a purely
	// combinational design with nothing to step.
	Clock clock.Clock

	// Inputs maps a human name to the NodePort a SigHandle can write
	// (an input or bidirectional Pin's own output).
	Inputs map[string]hlim.NodePort
	// Outputs maps a human name to the NodePort a SigHandle can read:
	// the driver feeding an output Pin, since an output Pin itself has
	// no output slot to read from (circuit.go NewPin).
	Outputs map[string]hlim.NodePort

	// BuildOptions is passed to program.Build/sim.CompileProgram when
	// a caller wants this design's default scheduling options.
	BuildOptions program.BuildOptions
}

// Factory builds one fresh Design instance. Factories are called once
// per Get, so repeated CLI invocations never share mutable state.
type Factory func() (*Design, error)

var registry = make(map[string]Factory)

// Register adds name to the registry. Intended to run from an init()
// in examples.go; panics on a duplicate name since that only happens
// from a programming mistake, never user input.
func Register(name string, f Factory) {
	if _, exists := registry[name]; exists {
		panic("design: duplicate registration for " + name)
	}
	registry[name] = f
}

// Get builds and returns the named design, or an error if name is not
// registered.
func Get(name string) (*Design, error) {
	f, ok := registry[name]
	if !ok {
		return nil, &UnknownDesignError{Name: name, Known: List()}
	}
	return f()
}

// List returns the registered design names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownDesignError reports a design name with no registered factory.
type UnknownDesignError struct {
	Name  string
	Known []string
}

func (e *UnknownDesignError) Error() string {
	return "design: no such design " + e.Name
}
