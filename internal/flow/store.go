// Package flow tracks per-flow state: the measured rate, the installed
// path, liveness countdowns, and re-routing cooldowns.
package flow

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/reflowd/reflowd/internal/metrics"
	"github.com/reflowd/reflowd/internal/southbound"
	"github.com/reflowd/reflowd/internal/topology"
)

// Key identifies a transport flow by MAC pair and L4 port pair. MACs are in
// canonical lower-case form.
type Key struct {
	SrcMAC string
	DstMAC string
	TpSrc  uint16
	TpDst  uint16
}

// KeyFromMatch derives the flow key from a rule match.
func KeyFromMatch(m southbound.Match) Key {
	return Key{
		SrcMAC: topology.CanonicalMAC(m.SrcMAC),
		DstMAC: topology.CanonicalMAC(m.DstMAC),
		TpSrc:  m.TpSrc,
		TpDst:  m.TpDst,
	}
}

// Reversed returns the key of the reply direction: MACs swapped, transport
// ports kept, since the sender demultiplexes replies by the same port pair.
func (k Key) Reversed() Key {
	return Key{SrcMAC: k.DstMAC, DstMAC: k.SrcMAC, TpSrc: k.TpSrc, TpDst: k.TpDst}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", k.SrcMAC, k.TpSrc, k.DstMAC, k.TpDst)
}

// Record is the tracked state of one flow. Values are mutated only by the
// event router; readers receive copies.
type Record struct {
	Key             Key
	CurrentRate     float64 // bytes/second, lifetime average
	DesiredRate     float64 // bytes/second
	Path            []topology.NodeRef
	UpdateTime      time.Time
	Active          bool
	ActiveCountdown int
	RerouteCooldown int
}

// Store holds all flow records. Records are never deleted; flows that stop
// refreshing become and stay inactive.
type Store struct {
	desiredRate    float64
	countdownTicks int

	mu    sync.RWMutex
	flows map[Key]*Record
}

// NewStore creates a flow store with the given per-flow rate goal
// (bytes/second) and liveness countdown.
func NewStore(desiredRate float64, countdownTicks int) *Store {
	return &Store{
		desiredRate:    desiredRate,
		countdownTicks: countdownTicks,
		flows:          make(map[Key]*Record),
	}
}

// UpdateFromStats applies one flow statistics entry: the rate becomes the
// lifetime average (cumulative bytes over flow duration), the liveness
// countdown resets, and a pending re-route cooldown is decremented. The
// installed path survives across updates. Returns a copy of the record.
func (s *Store) UpdateFromStats(entry southbound.FlowStatsEntry, now time.Time) Record {
	key := KeyFromMatch(entry.Match)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.flows[key]
	if !ok {
		rec = &Record{Key: key, DesiredRate: s.desiredRate}
		s.flows[key] = rec
	}

	// Lifetime average instead of delta-over-interval: the reported
	// duration is monotonic, so a lost sample cannot produce a spike.
	if entry.DurationSec > 0 {
		rec.CurrentRate = float64(entry.ByteCount) / float64(entry.DurationSec)
	} else {
		rec.CurrentRate = 0
	}
	rec.Active = true
	rec.ActiveCountdown = s.countdownTicks
	rec.UpdateTime = now
	if rec.RerouteCooldown > 0 {
		rec.RerouteCooldown--
	}

	s.updateGauges()
	return *rec
}

// SetPath records the installed path for a flow, creating the record if the
// first packet-in precedes the first stats reply.
func (s *Store) SetPath(key Key, path []topology.NodeRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.flows[key]
	if !ok {
		rec = &Record{Key: key, DesiredRate: s.desiredRate}
		s.flows[key] = rec
	}
	rec.Path = append([]topology.NodeRef(nil), path...)
}

// SetRerouted switches a flow to a new path and arms the cooldown.
func (s *Store) SetRerouted(key Key, path []topology.NodeRef, cooldownTicks int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.flows[key]
	if !ok {
		return
	}
	rec.Path = append([]topology.NodeRef(nil), path...)
	rec.RerouteCooldown = cooldownTicks
}

// Get returns a copy of a flow record.
func (s *Store) Get(key Key) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.flows[key]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// TickCountdown decrements the liveness countdown of every active flow and
// returns the keys that just went inactive. A non-empty result is the
// flow-set-changed signal that wakes the re-router.
func (s *Store) TickCountdown() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deactivated []Key
	for key, rec := range s.flows {
		if !rec.Active {
			continue
		}
		rec.ActiveCountdown--
		if rec.ActiveCountdown <= 0 {
			rec.Active = false
			rec.ActiveCountdown = 0
			deactivated = append(deactivated, key)
		}
	}
	if len(deactivated) > 0 {
		sort.Slice(deactivated, func(i, j int) bool {
			return deactivated[i].String() < deactivated[j].String()
		})
		s.updateGauges()
	}
	return deactivated
}

// Candidate is one underserved flow considered for re-routing.
type Candidate struct {
	Record Record
	Ratio  float64 // current over desired rate; lower is worse served
}

// Candidates returns the active flows with no pending cooldown whose rate
// is below triggerRatio of their goal, worst served first.
func (s *Store) Candidates(triggerRatio float64) []Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Candidate
	for _, rec := range s.flows {
		if !rec.Active || rec.RerouteCooldown != 0 {
			continue
		}
		if rec.CurrentRate >= triggerRatio*rec.DesiredRate {
			continue
		}
		out = append(out, Candidate{Record: *rec, Ratio: rec.CurrentRate / rec.DesiredRate})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ratio != out[j].Ratio {
			return out[i].Ratio < out[j].Ratio
		}
		return out[i].Record.Key.String() < out[j].Record.Key.String()
	})
	return out
}

// Traversing returns copies of the flows whose path crosses the link
// between two switches, in either direction.
func (s *Store) Traversing(a, b southbound.SwitchID) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.flows {
		if PathHasEdge(rec.Path, a, b) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// All returns copies of every record, sorted by key.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.flows))
	for _, rec := range s.flows {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Len returns the number of tracked flows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flows)
}

// updateGauges refreshes the tracked-flow gauges. Caller holds the lock.
func (s *Store) updateGauges() {
	active, inactive := 0, 0
	for _, rec := range s.flows {
		if rec.Active {
			active++
		} else {
			inactive++
		}
	}
	metrics.FlowsTracked.WithLabelValues("active").Set(float64(active))
	metrics.FlowsTracked.WithLabelValues("inactive").Set(float64(inactive))
}

// PathHasEdge reports whether two switches are adjacent on a path, in
// either order.
func PathHasEdge(path []topology.NodeRef, a, b southbound.SwitchID) bool {
	for i := 0; i+1 < len(path); i++ {
		u, v := path[i], path[i+1]
		if u.Kind != topology.KindSwitch || v.Kind != topology.KindSwitch {
			continue
		}
		if (u.Switch == a && v.Switch == b) || (u.Switch == b && v.Switch == a) {
			return true
		}
	}
	return false
}
