package path

import (
	"math"
	"sort"
	"strings"

	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/dijkstra"

	"github.com/reflowd/reflowd/internal/topology"
)

// edgeBan names one directed edge excluded from a spur computation.
type edgeBan struct {
	from string
	to   string
}

// kShortestPaths enumerates up to k loop-free paths from src to dst in
// non-decreasing hop-count order (Yen's algorithm over repeated Dijkstra
// runs). Host nodes other than the endpoints never appear: they are left
// out of the search graph entirely, so every interior hop is a switch.
func kShortestPaths(snap *topology.Snapshot, src, dst topology.NodeRef, k int) [][]topology.NodeRef {
	srcKey, dstKey := src.Key(), dst.Key()

	first, ok := shortestPath(snap, srcKey, dstKey, nil, nil)
	if !ok {
		return nil
	}

	found := [][]string{first}
	seen := map[string]struct{}{joinPath(first): {}}
	var candidates [][]string

	for len(found) < k {
		prev := found[len(found)-1]

		for i := 0; i < len(prev)-1; i++ {
			spur := prev[i]
			root := prev[:i+1]

			banned := make(map[edgeBan]struct{})
			for _, p := range found {
				if len(p) > i && samePrefix(p, root) {
					banned[edgeBan{from: p[i], to: p[i+1]}] = struct{}{}
				}
			}
			bannedNodes := make(map[string]struct{})
			for _, node := range root[:len(root)-1] {
				bannedNodes[node] = struct{}{}
			}

			spurPath, ok := shortestPath(snap, spur, dstKey, bannedNodes, banned)
			if !ok {
				continue
			}

			full := append(append([]string{}, root[:len(root)-1]...), spurPath...)
			key := joinPath(full)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			candidates = append(candidates, full)
		}

		if len(candidates) == 0 {
			break
		}
		sort.Slice(candidates, func(i, j int) bool {
			if len(candidates[i]) != len(candidates[j]) {
				return len(candidates[i]) < len(candidates[j])
			}
			return joinPath(candidates[i]) < joinPath(candidates[j])
		})
		found = append(found, candidates[0])
		candidates = candidates[1:]
	}

	out := make([][]topology.NodeRef, 0, len(found))
	for _, p := range found {
		refs, ok := resolvePath(snap, p)
		if !ok {
			continue
		}
		out = append(out, refs)
	}
	return out
}

// shortestPath runs Dijkstra on the snapshot with the given node and edge
// exclusions, returning the node key sequence from src to dst.
func shortestPath(snap *topology.Snapshot, srcKey, dstKey string, bannedNodes map[string]struct{}, bannedEdges map[edgeBan]struct{}) ([]string, bool) {
	g, ok := buildSearchGraph(snap, srcKey, dstKey, bannedNodes, bannedEdges)
	if !ok {
		return nil, false
	}

	dist, prevMap, err := dijkstra.Dijkstra(g, dijkstra.Source(srcKey), dijkstra.WithReturnPath())
	if err != nil {
		return nil, false
	}
	d, ok := dist[dstKey]
	if !ok || d == math.MaxInt64 {
		return nil, false
	}

	var path []string
	for at := dstKey; at != ""; at = prevMap[at] {
		path = append(path, at)
		if at == srcKey {
			break
		}
	}
	if path[len(path)-1] != srcKey {
		return nil, false
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, true
}

// buildSearchGraph projects the snapshot onto a weighted directed graph
// with every hop costing 1. Hosts other than the endpoints are omitted so
// no path can cross a host.
func buildSearchGraph(snap *topology.Snapshot, srcKey, dstKey string, bannedNodes map[string]struct{}, bannedEdges map[edgeBan]struct{}) (*core.Graph, bool) {
	g := core.NewGraph(core.WithDirected(true), core.WithWeighted())

	include := func(ref topology.NodeRef) bool {
		key := ref.Key()
		if _, banned := bannedNodes[key]; banned {
			return false
		}
		return ref.Kind == topology.KindSwitch || key == srcKey || key == dstKey
	}

	edges := snap.Edges()
	haveSrc := false
	for _, e := range edges {
		if !include(e.From) || !include(e.To) {
			continue
		}
		if _, banned := bannedEdges[edgeBan{from: e.From.Key(), to: e.To.Key()}]; banned {
			continue
		}
		if err := addVertexOnce(g, e.From.Key()); err != nil {
			return nil, false
		}
		if err := addVertexOnce(g, e.To.Key()); err != nil {
			return nil, false
		}
		if _, err := g.AddEdge(e.From.Key(), e.To.Key(), 1); err != nil {
			return nil, false
		}
		if e.From.Key() == srcKey {
			haveSrc = true
		}
	}
	if !haveSrc {
		return nil, false
	}
	return g, true
}

func addVertexOnce(g *core.Graph, key string) error {
	if g.HasVertex(key) {
		return nil
	}
	return g.AddVertex(key)
}

func samePrefix(p, root []string) bool {
	for i := range root {
		if p[i] != root[i] {
			return false
		}
	}
	return true
}

func joinPath(p []string) string {
	return strings.Join(p, ">")
}

// resolvePath maps vertex keys back to node references.
func resolvePath(snap *topology.Snapshot, keys []string) ([]topology.NodeRef, bool) {
	refs := make([]topology.NodeRef, 0, len(keys))
	for _, key := range keys {
		node, ok := snap.LookupKey(key)
		if !ok {
			return nil, false
		}
		refs = append(refs, node.Ref)
	}
	return refs, true
}

// pathString formats a path for logs.
func pathString(path []topology.NodeRef) string {
	parts := make([]string, 0, len(path))
	for _, ref := range path {
		parts = append(parts, ref.String())
	}
	return strings.Join(parts, " -> ")
}
