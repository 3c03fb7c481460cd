package vhdl

import (
	"strings"

	"github.com/oisee/hlim/pkg/herr"
)

// maxNameAttempts bounds the "shotgun naming" collision search (spec
// §4.7 step 2). Not specified by spec.md; chosen defensively.
const maxNameAttempts = 1024

// namespace tracks case-insensitively used names in one scope,
// delegating lookups to a parent scope on miss (spec §4.7
// "remembers used names per scope and delegates to the parent on
// miss; first-use wins").
type namespace struct {
	parent *namespace
	used   map[string]bool
}

func newNamespace(parent *namespace) *namespace {
	return &namespace{parent: parent, used: make(map[string]bool)}
}

func (ns *namespace) takenAnywhere(lower string) bool {
	if ns.used[lower] {
		return true
	}
	if ns.parent != nil {
		return ns.parent.takenAnywhere(lower)
	}
	return false
}

// reserve claims name in this scope outright (used for names fixed
// before the shotgun pass, e.g. a caller-chosen entity name).
func (ns *namespace) reserve(name string) {
	ns.used[strings.ToLower(name)] = true
}

// resolve runs candidate(attempt) with increasing attempt until it
// produces a name unused in this scope or any ancestor, claims it in
// this scope, and returns it.
func (ns *namespace) resolve(candidate func(attempt int) string) (string, error) {
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := candidate(attempt)
		lower := strings.ToLower(name)
		if !ns.takenAnywhere(lower) {
			ns.used[lower] = true
			return name, nil
		}
	}
	return "", herr.New(herr.ExportError, "could not resolve a free name after %d attempts", maxNameAttempts)
}
