package topology

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/reflowd/reflowd/internal/metrics"
	"github.com/reflowd/reflowd/internal/southbound"
)

// portPair carries the two port numbers of one physical link: APort on the
// lower-numbered switch, BPort on the higher-numbered one.
type portPair struct {
	APort uint32
	BPort uint32
}

// Store owns the network graph. It keeps a canonical switch/link list, the
// learned-host table reference, and rebuilds an immutable Snapshot plus the
// spanning tree and blocked-port shadow on every mutation.
//
// All mutating methods are called from the event router only; concurrent
// readers obtain the current build via Snapshot.
type Store struct {
	logger   *slog.Logger
	registry *southbound.Registry
	hosts    *HostTable

	mu       sync.RWMutex
	switches map[southbound.SwitchID]struct{}
	links    map[undirectedLink]portPair
	blocked  map[southbound.SwitchID]map[uint32]struct{}
	snap     *Snapshot
}

// NewStore creates an empty topology store.
func NewStore(registry *southbound.Registry, hosts *HostTable, logger *slog.Logger) *Store {
	return &Store{
		logger:   logger,
		registry: registry,
		hosts:    hosts,
		switches: make(map[southbound.SwitchID]struct{}),
		links:    make(map[undirectedLink]portPair),
		blocked:  make(map[southbound.SwitchID]map[uint32]struct{}),
		snap:     newSnapshot(),
	}
}

// Snapshot returns the current immutable graph build.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// AddSwitch records a switch and rebuilds.
func (s *Store) AddSwitch(ctx context.Context, id southbound.SwitchID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switches[id] = struct{}{}
	s.rebuild(ctx)
}

// RemoveSwitch drops a switch and every link touching it, then rebuilds.
// Learned hosts behind the switch stay in the host table and rejoin the
// graph if the switch returns.
func (s *Store) RemoveSwitch(ctx context.Context, id southbound.SwitchID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.switches, id)
	for l := range s.links {
		if l.A == id || l.B == id {
			delete(s.links, l)
		}
	}
	delete(s.blocked, id)
	s.rebuild(ctx)
}

// AddLink records a switch-to-switch link and rebuilds. srcPort is the port
// on src leading to dst; dstPort the reverse.
func (s *Store) AddLink(ctx context.Context, src, dst southbound.SwitchID, srcPort, dstPort uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := newUndirectedLink(src, dst)
	pp := portPair{APort: srcPort, BPort: dstPort}
	if src != l.A {
		pp = portPair{APort: dstPort, BPort: srcPort}
	}
	s.links[l] = pp
	s.rebuild(ctx)
}

// RemoveLink drops a link and rebuilds.
func (s *Store) RemoveLink(ctx context.Context, src, dst southbound.SwitchID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, newUndirectedLink(src, dst))
	s.rebuild(ctx)
}

// RefreshHosts rebuilds after the host table changed.
func (s *Store) RefreshHosts(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuild(ctx)
}

// BlockedPorts returns a copy of the blocked-port shadow, ports ascending.
func (s *Store) BlockedPorts() map[southbound.SwitchID][]uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[southbound.SwitchID][]uint32, len(s.blocked))
	for sw, ports := range s.blocked {
		list := make([]uint32, 0, len(ports))
		for p := range ports {
			list = append(list, p)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		out[sw] = list
	}
	return out
}

// rebuild recomputes the snapshot, spanning tree, and flood blocks. Caller
// holds the write lock.
//
// The sequence follows the flood-safety argument: first re-enable every
// previously blocked port, then recompute the tree on the new topology,
// then disable exactly the non-tree ports. A command failure is logged and
// skipped; the shadow reflects intent and the next mutation re-issues it.
func (s *Store) rebuild(ctx context.Context) {
	for sw, ports := range s.blocked {
		for port := range ports {
			s.setPortFlood(ctx, sw, port, true)
		}
	}
	s.blocked = make(map[southbound.SwitchID]map[uint32]struct{})

	snap := newSnapshot()

	switches := make([]southbound.SwitchID, 0, len(s.switches))
	for sw := range s.switches {
		switches = append(switches, sw)
	}
	sort.Slice(switches, func(i, j int) bool { return switches[i] < switches[j] })
	for _, sw := range switches {
		snap.addNode(SwitchRef(sw))
	}

	links := make([]undirectedLink, 0, len(s.links))
	for l := range s.links {
		links = append(links, l)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].A != links[j].A {
			return links[i].A < links[j].A
		}
		return links[i].B < links[j].B
	})
	for _, l := range links {
		pp := s.links[l]
		a, _ := snap.Lookup(SwitchRef(l.A))
		b, _ := snap.Lookup(SwitchRef(l.B))
		snap.addEdge(a, b, pp.APort, pp.BPort)
		snap.addEdge(b, a, pp.BPort, pp.APort)
	}

	for _, h := range s.hosts.Entries() {
		if _, ok := s.switches[h.Switch]; !ok {
			continue
		}
		hid := snap.addNode(NodeRef{Kind: KindHost, MAC: h.MAC})
		sid, _ := snap.Lookup(SwitchRef(h.Switch))
		snap.addEdge(hid, sid, 0, h.Port)
		snap.addEdge(sid, hid, h.Port, 0)
	}

	tree, err := computeSpanningTree(switches, links)
	if err != nil {
		s.logger.Error("spanning tree computation failed, blocking every switch link",
			"error", err)
		tree = make(map[string]struct{})
	}
	snap.mst = tree

	for _, l := range links {
		if _, ok := tree[pairKey(l.A, l.B)]; ok {
			continue
		}
		pp := s.links[l]
		s.setPortFlood(ctx, l.A, pp.APort, false)
		s.recordBlocked(l.A, pp.APort)
		s.setPortFlood(ctx, l.B, pp.BPort, false)
		s.recordBlocked(l.B, pp.BPort)
	}

	s.snap = snap

	blockedCount := 0
	for _, ports := range s.blocked {
		blockedCount += len(ports)
	}
	metrics.SwitchesConnected.Set(float64(len(switches)))
	metrics.LinksKnown.Set(float64(2 * len(links)))
	metrics.PortsBlocked.Set(float64(blockedCount))
	metrics.TopologyRebuilds.Inc()

	s.logger.Debug("topology rebuilt",
		"switches", len(switches),
		"links", len(links),
		"hosts", s.hosts.Len(),
		"tree_edges", len(tree),
		"blocked_ports", blockedCount)
}

func (s *Store) recordBlocked(sw southbound.SwitchID, port uint32) {
	ports, ok := s.blocked[sw]
	if !ok {
		ports = make(map[uint32]struct{})
		s.blocked[sw] = ports
	}
	ports[port] = struct{}{}
}

func (s *Store) setPortFlood(ctx context.Context, sw southbound.SwitchID, port uint32, enabled bool) {
	dp, err := s.registry.Get(sw)
	if err != nil {
		s.logger.Debug("skipping flood change, switch not registered",
			"switch", sw, "port", port, "enable", enabled)
		return
	}
	if err := dp.SetPortFlood(ctx, port, enabled); err != nil {
		metrics.SouthboundErrors.WithLabelValues("set_port_flood").Inc()
		s.logger.Warn("flood change failed",
			"switch", sw, "port", port, "enable", enabled, "error", err)
	}
}
