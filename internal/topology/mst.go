package topology

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/prim_kruskal"

	"github.com/reflowd/reflowd/internal/southbound"
)

// undirectedLink is one physical switch-to-switch link, ordered A < B.
type undirectedLink struct {
	A, B southbound.SwitchID
}

func newUndirectedLink(a, b southbound.SwitchID) undirectedLink {
	if a > b {
		a, b = b, a
	}
	return undirectedLink{A: a, B: b}
}

// computeSpanningTree returns the undirected pair keys of the minimum
// spanning forest over the switch subgraph. Every link gets a distinct
// weight equal to its rank in the lexicographically sorted link list, so
// equal-cost ties always resolve to the smallest (min,max) pairs and the
// result is deterministic.
//
// The topology may be transiently disconnected (a switch is up before its
// links are discovered), so the tree is computed per connected component.
func computeSpanningTree(switches []southbound.SwitchID, links []undirectedLink) (map[string]struct{}, error) {
	sorted := append([]undirectedLink(nil), links...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].A != sorted[j].A {
			return sorted[i].A < sorted[j].A
		}
		return sorted[i].B < sorted[j].B
	})

	rank := make(map[undirectedLink]int64, len(sorted))
	adj := make(map[southbound.SwitchID][]southbound.SwitchID, len(switches))
	for i, l := range sorted {
		if _, seen := rank[l]; seen {
			continue
		}
		rank[l] = int64(i + 1)
		adj[l.A] = append(adj[l.A], l.B)
		adj[l.B] = append(adj[l.B], l.A)
	}

	tree := make(map[string]struct{}, len(switches))
	visited := make(map[southbound.SwitchID]bool, len(switches))

	for _, root := range switches {
		if visited[root] {
			continue
		}
		component := collectComponent(root, adj, visited)
		if len(component) < 2 {
			continue
		}

		g := core.NewGraph(core.WithWeighted())
		for _, sw := range component {
			if err := g.AddVertex(switchVertex(sw)); err != nil {
				return nil, fmt.Errorf("adding vertex %d: %w", sw, err)
			}
		}
		inComponent := make(map[southbound.SwitchID]bool, len(component))
		for _, sw := range component {
			inComponent[sw] = true
		}
		for l, w := range rank {
			if !inComponent[l.A] || !inComponent[l.B] {
				continue
			}
			if _, err := g.AddEdge(switchVertex(l.A), switchVertex(l.B), w); err != nil {
				return nil, fmt.Errorf("adding edge %d-%d: %w", l.A, l.B, err)
			}
		}

		edges, _, err := prim_kruskal.Kruskal(g)
		if err != nil {
			return nil, fmt.Errorf("spanning tree for component of %d: %w", root, err)
		}
		for _, e := range edges {
			a, err := parseSwitchVertex(e.From)
			if err != nil {
				return nil, err
			}
			b, err := parseSwitchVertex(e.To)
			if err != nil {
				return nil, err
			}
			tree[pairKey(a, b)] = struct{}{}
		}
	}

	return tree, nil
}

// collectComponent walks the connected component of root, marking visits.
// Neighbors are visited in sorted order for reproducible traversal.
func collectComponent(root southbound.SwitchID, adj map[southbound.SwitchID][]southbound.SwitchID, visited map[southbound.SwitchID]bool) []southbound.SwitchID {
	var component []southbound.SwitchID
	queue := []southbound.SwitchID{root}
	visited[root] = true
	for len(queue) > 0 {
		sw := queue[0]
		queue = queue[1:]
		component = append(component, sw)

		neighbors := append([]southbound.SwitchID(nil), adj[sw]...)
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
		for _, n := range neighbors {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return component
}

func switchVertex(id southbound.SwitchID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseSwitchVertex(v string) (southbound.SwitchID, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing switch vertex %q: %w", v, err)
	}
	return southbound.SwitchID(n), nil
}
