// Package vhdl implements the VHDL export backend of spec §4.7: walk
// the NodeGroup tree, classify nodes per entity, allocate collision-
// free names through a CodeFormatting strategy, and render each
// entity's ports/signals/processes as VHDL-93 text. Grounded on the
// teacher's pkg/codegen backend-registry shape (Options/BaseBackend):
// a small options struct plus a pluggable formatting strategy rather
// than one hardwired renderer.
package vhdl

import (
	"fmt"

	"github.com/oisee/hlim/pkg/herr"
	"github.com/oisee/hlim/pkg/hlim"
)

// vhdlType renders a ConnectionType per spec §4.7's table. Other
// interpretations (OneHot, Float) are an export-time error — the
// table names exactly four renderable interpretations.
func vhdlType(t hlim.ConnectionType) (string, error) {
	switch t.Interp {
	case hlim.Bool:
		if t.Width != 1 {
			return "", herr.New(herr.ExportError, "Bool connection type must have width 1, got %d", t.Width)
		}
		return "STD_LOGIC", nil
	case hlim.Raw:
		return fmt.Sprintf("STD_LOGIC_VECTOR(%d downto 0)", t.Width-1), nil
	case hlim.Unsigned:
		return fmt.Sprintf("UNSIGNED(%d downto 0)", t.Width-1), nil
	case hlim.Signed2s:
		return fmt.Sprintf("SIGNED(%d downto 0)", t.Width-1), nil
	default:
		return "", herr.New(herr.ExportError, "connection type %v has no VHDL rendering", t)
	}
}

// SignalKind classifies a name request within an entity's namespace
// (spec §4.7 "signal_name(desired, kind, attempt)").
type SignalKind int

const (
	SignalWire SignalKind = iota
	SignalRegister
	SignalPort
	SignalChildIO
)

func (k SignalKind) String() string {
	switch k {
	case SignalRegister:
		return "register"
	case SignalPort:
		return "port"
	case SignalChildIO:
		return "child_io"
	default:
		return "wire"
	}
}

// CodeFormatting supplies deterministic, retryable name candidates
// (spec §4.7 Namespacing); the namespace calls with increasing
// attempt until a candidate is free.
type CodeFormatting interface {
	// NodeName names a node directly (used for process/component
	// instantiation labels).
	NodeName(n *hlim.Node, attempt int) string
	// SignalName names one of a node's outputs that needs a VHDL
	// signal declared for it.
	SignalName(desired string, kind SignalKind, attempt int) string
	// GlobalName names a root-namespace identifier (clock, reset)
	// shared across every entity.
	GlobalName(id string, attempt int) string
}

// DefaultFormatting is the teacher-style zero-configuration
// CodeFormatting: desired name verbatim on attempt 0, desired name
// with a numeric suffix afterward.
type DefaultFormatting struct{}

func suffixed(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, attempt)
}

func (DefaultFormatting) NodeName(n *hlim.Node, attempt int) string {
	base := n.Name
	if base == "" {
		base = fmt.Sprintf("%s_%d", n.Kind, n.ID)
	}
	return suffixed(base, attempt)
}

func (DefaultFormatting) SignalName(desired string, kind SignalKind, attempt int) string {
	if desired == "" {
		desired = "sig"
	}
	if attempt == 0 {
		return desired
	}
	return fmt.Sprintf("%s_%s_%d", desired, kind, attempt)
}

func (DefaultFormatting) GlobalName(id string, attempt int) string {
	return suffixed(id, attempt)
}

// Options configures one Export call.
type Options struct {
	Formatting CodeFormatting
	// Header is prefixed, verbatim, to every generated file (spec
	// §4.7 "configured file header comment"). A default is used when
	// empty.
	Header string
}

func (o Options) formatting() CodeFormatting {
	if o.Formatting == nil {
		return DefaultFormatting{}
	}
	return o.Formatting
}

func (o Options) header() string {
	if o.Header != "" {
		return o.Header
	}
	return "-- Code generated by hlim. DO NOT EDIT.\n"
}
