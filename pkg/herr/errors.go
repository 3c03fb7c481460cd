// Package herr implements the error taxonomy shared by every layer of
// the circuit core: construction (DesignError), internal invariant
// violations (InternalError), program-build preconditions (SimError),
// simulation-time faults (RuntimeError), VHDL export (ExportError) and
// constant-literal parsing (LiteralError).
package herr

import (
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies an Error. The set is closed; see spec §7.
type Kind int

const (
	DesignError Kind = iota
	InternalError
	SimError
	RuntimeError
	ExportError
	LiteralError
)

func (k Kind) String() string {
	switch k {
	case DesignError:
		return "DesignError"
	case InternalError:
		return "InternalError"
	case SimError:
		return "SimError"
	case RuntimeError:
		return "RuntimeError"
	case ExportError:
		return "ExportError"
	case LiteralError:
		return "LiteralError"
	default:
		return "UnknownError"
	}
}

// PortRef names a node port without depending on pkg/hlim, which
// would otherwise create an import cycle (hlim constructs errors that
// cite its own ports).
type PortRef struct {
	NodeID   int
	NodeKind string
	Port     int
}

func (p PortRef) String() string {
	return fmt.Sprintf("%s#%d.port[%d]", p.NodeKind, p.NodeID, p.Port)
}

// Location is a captured call site, recorded at node-creation time so
// that a construction-time error can be reported against the code
// that built the offending node, not against the package that later
// noticed the problem.
type Location struct {
	File string
	Line int
	Func string
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d (%s)", l.File, l.Line, l.Func)
}

// CaptureLocation records the frame `skip` levels above its own caller
// (skip 0 records the caller itself); frames are not filtered by
// package.
func CaptureLocation(skip int) Location {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{}
	}
	name := "?"
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = fn.Name()
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
	}
	return Location{File: file, Line: line, Func: name}
}

// Error is the concrete error type returned across all package
// boundaries in this module.
type Error struct {
	Kind     Kind
	Message  string
	Location Location
	Ports    []PortRef
	Wrapped  error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	if e.Location.File != "" {
		fmt.Fprintf(&b, " (at %s)", e.Location)
	}
	for _, p := range e.Ports {
		fmt.Fprintf(&b, " [%s]", p)
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, ": %v", e.Wrapped)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New builds an Error of the given kind, capturing the caller's
// location.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Location: CaptureLocation(1),
	}
}

// Wrap builds an Error that chains an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	e := New(kind, format, args...)
	e.Location = CaptureLocation(1)
	e.Wrapped = cause
	return e
}

// WithPorts attaches the involved node ports to an Error and returns
// it, for chaining at the call site.
func (e *Error) WithPorts(ports ...PortRef) *Error {
	e.Ports = append(e.Ports, ports...)
	return e
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == kind
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
