package depgraph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// CycleError reports a reference cycle discovered during a scan. Cycles
// are a data error in this domain (a shot referencing an asset that embeds
// a reference back to the shot) and abort construction rather than being
// silently broken.
type CycleError struct {
	// Path lists the entity URIs around the cycle; the first entry is
	// repeated at the end.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// IsCycleError reports whether err is a scan cycle.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

const (
	colorWhite = iota // unvisited
	colorGray         // on the current DFS stack
	colorBlack        // fully explored
)

// findCycle runs a three-color depth-first search over the forward edges.
// Nodes and neighbors are visited in sorted order so the reported cycle is
// deterministic. Returns nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	keys := make([]string, 0, len(g.entities))
	for k := range g.entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	color := make(map[string]int, len(keys))
	var stack []string

	var visit func(node string) []string
	visit = func(node string) []string {
		color[node] = colorGray
		stack = append(stack, node)

		neighbors := make([]string, 0, len(g.forward[node]))
		for n := range g.forward[node] {
			neighbors = append(neighbors, n)
		}
		sort.Strings(neighbors)

		for _, next := range neighbors {
			switch color[next] {
			case colorGray:
				start := 0
				for i, k := range stack {
					if k == next {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				return append(cycle, next)
			case colorWhite:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[node] = colorBlack
		return nil
	}

	for _, k := range keys {
		if color[k] != colorWhite {
			continue
		}
		if cycle := visit(k); cycle != nil {
			return cycle
		}
	}
	return nil
}
