package main

import (
	"fmt"
	"sort"

	"github.com/oisee/hlim/pkg/design"
)

func printDesigns() {
	names := design.List()
	fmt.Println("Available designs:")
	for _, n := range names {
		fmt.Printf("  - %s\n", n)
	}
}

// sortedKeys is a small formatting helper shared by the sim and repl
// commands when printing a design's inputs/outputs.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
