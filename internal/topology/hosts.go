package topology

import (
	"net"
	"sort"
	"sync"

	"github.com/reflowd/reflowd/internal/metrics"
	"github.com/reflowd/reflowd/internal/southbound"
)

// HostEntry records where a host was last seen: the switch and ingress port
// of its most recent packet-in.
type HostEntry struct {
	MAC    string
	Switch southbound.SwitchID
	Port   uint32
}

// HostTable is the MAC learning table. Entries are set on first packet-in
// from a MAC and replaced when the host shows up behind a different
// attachment point. Entries are never aged out: hosts are assumed stable
// for the experiment window.
type HostTable struct {
	mu      sync.RWMutex
	entries map[string]HostEntry
}

// NewHostTable creates an empty host table.
func NewHostTable() *HostTable {
	return &HostTable{
		entries: make(map[string]HostEntry),
	}
}

// Learn records the attachment point of a source MAC. It reports whether
// the table changed (new host, or moved attachment), in which case the
// caller must refresh the topology.
func (t *HostTable) Learn(mac net.HardwareAddr, sw southbound.SwitchID, port uint32) bool {
	key := CanonicalMAC(mac)

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.entries[key]
	if ok && prev.Switch == sw && prev.Port == port {
		return false
	}
	t.entries[key] = HostEntry{MAC: key, Switch: sw, Port: port}
	metrics.HostsLearned.Set(float64(len(t.entries)))
	return true
}

// Lookup returns the attachment point of a MAC.
func (t *HostTable) Lookup(mac net.HardwareAddr) (HostEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[CanonicalMAC(mac)]
	return e, ok
}

// LookupKey is Lookup for an already-canonical MAC string.
func (t *HostTable) LookupKey(mac string) (HostEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[mac]
	return e, ok
}

// Entries returns all learned hosts sorted by MAC.
func (t *HostTable) Entries() []HostEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]HostEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}

// Len returns the number of learned hosts.
func (t *HostTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
