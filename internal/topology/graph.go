package topology

import (
	"fmt"
	"sort"

	"github.com/reflowd/reflowd/internal/southbound"
)

// Snapshot is an immutable build of the network graph. The store replaces
// the current snapshot wholesale on every topology mutation; readers (path
// selection, diagnostics) keep using the build they hold.
type Snapshot struct {
	nodes []Node
	byKey map[string]NodeID
	adj   map[NodeID][]Edge
	mst   map[string]struct{} // undirected switch pair keys
}

// EdgeView is a directed edge with both endpoints resolved, for iteration.
type EdgeView struct {
	From    NodeRef
	To      NodeRef
	SrcPort uint32
	DstPort uint32
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		byKey: make(map[string]NodeID),
		adj:   make(map[NodeID][]Edge),
		mst:   make(map[string]struct{}),
	}
}

// addNode interns a node and returns its index.
func (s *Snapshot) addNode(ref NodeRef) NodeID {
	if id, ok := s.byKey[ref.Key()]; ok {
		return id
	}
	id := NodeID(len(s.nodes))
	s.nodes = append(s.nodes, Node{Ref: ref})
	s.byKey[ref.Key()] = id
	return id
}

// addEdge appends one directed edge.
func (s *Snapshot) addEdge(from, to NodeID, srcPort, dstPort uint32) {
	s.adj[from] = append(s.adj[from], Edge{To: to, SrcPort: srcPort, DstPort: dstPort})
}

// pairKey builds the undirected MST membership key for two switches.
func pairKey(a, b southbound.SwitchID) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%d", a, b)
}

// HasNode reports whether the node is present in this build.
func (s *Snapshot) HasNode(ref NodeRef) bool {
	_, ok := s.byKey[ref.Key()]
	return ok
}

// Lookup resolves a node reference to its index.
func (s *Snapshot) Lookup(ref NodeRef) (NodeID, bool) {
	id, ok := s.byKey[ref.Key()]
	return id, ok
}

// LookupKey resolves a vertex key (as produced by NodeRef.Key) to its node.
func (s *Snapshot) LookupKey(key string) (Node, bool) {
	id, ok := s.byKey[key]
	if !ok {
		return Node{}, false
	}
	return s.nodes[id], true
}

// Node returns the node table entry for an index.
func (s *Snapshot) Node(id NodeID) Node {
	return s.nodes[id]
}

// NodeCount returns the number of nodes.
func (s *Snapshot) NodeCount() int {
	return len(s.nodes)
}

// Neighbors returns the adjacent node references of ref, in insertion order.
func (s *Snapshot) Neighbors(ref NodeRef) []NodeRef {
	id, ok := s.byKey[ref.Key()]
	if !ok {
		return nil
	}
	out := make([]NodeRef, 0, len(s.adj[id]))
	for _, e := range s.adj[id] {
		out = append(out, s.nodes[e.To].Ref)
	}
	return out
}

// EdgePort returns the port on u leading to v.
func (s *Snapshot) EdgePort(u, v NodeRef) (uint32, bool) {
	uid, ok := s.byKey[u.Key()]
	if !ok {
		return 0, false
	}
	vid, ok := s.byKey[v.Key()]
	if !ok {
		return 0, false
	}
	for _, e := range s.adj[uid] {
		if e.To == vid {
			return e.SrcPort, true
		}
	}
	return 0, false
}

// NeighborByPort resolves which switch sits behind the given port of sw.
// Host-facing ports have no switch neighbor and return false.
func (s *Snapshot) NeighborByPort(sw southbound.SwitchID, port uint32) (southbound.SwitchID, bool) {
	id, ok := s.byKey[SwitchRef(sw).Key()]
	if !ok {
		return 0, false
	}
	for _, e := range s.adj[id] {
		to := s.nodes[e.To].Ref
		if to.Kind == KindSwitch && e.SrcPort == port {
			return to.Switch, true
		}
	}
	return 0, false
}

// IsInMST reports whether the undirected link between two switches belongs
// to the current spanning tree.
func (s *Snapshot) IsInMST(a, b southbound.SwitchID) bool {
	_, ok := s.mst[pairKey(a, b)]
	return ok
}

// MSTSize returns the number of undirected tree edges.
func (s *Snapshot) MSTSize() int {
	return len(s.mst)
}

// Switches returns the switch identifiers present, ascending.
func (s *Snapshot) Switches() []southbound.SwitchID {
	var out []southbound.SwitchID
	for _, n := range s.nodes {
		if n.Ref.Kind == KindSwitch {
			out = append(out, n.Ref.Switch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Hosts returns the host MACs present, ascending.
func (s *Snapshot) Hosts() []string {
	var out []string
	for _, n := range s.nodes {
		if n.Ref.Kind == KindHost {
			out = append(out, n.Ref.MAC)
		}
	}
	sort.Strings(out)
	return out
}

// Edges returns every directed edge, ordered by source then target index.
func (s *Snapshot) Edges() []EdgeView {
	var out []EdgeView
	for id := range s.nodes {
		for _, e := range s.adj[NodeID(id)] {
			out = append(out, EdgeView{
				From:    s.nodes[id].Ref,
				To:      s.nodes[e.To].Ref,
				SrcPort: e.SrcPort,
				DstPort: e.DstPort,
			})
		}
	}
	return out
}
