package link

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/reflowd/reflowd/internal/metrics"
	"github.com/reflowd/reflowd/internal/southbound"
	"github.com/reflowd/reflowd/internal/topology"
)

// edgeKey identifies one directed switch-to-switch edge.
type edgeKey struct {
	Src southbound.SwitchID
	Dst southbound.SwitchID
}

// Record is the tracked state of one directed edge. Both directions of a
// physical link share the capacity value published by the oracle, but each
// direction carries its own usage sample and flow count.
type Record struct {
	Src           southbound.SwitchID
	Dst           southbound.SwitchID
	CapacityBytes float64 // bytes/second
	UsageBytes    float64 // bytes/second over the last poll interval
	PrevRxBytes   uint64
	UpdateTime    time.Time
	ActiveFlows   int
}

// Store holds per-edge records. Mutations come from the event router only.
type Store struct {
	intervalSec float64
	logger      *slog.Logger

	mu    sync.RWMutex
	edges map[edgeKey]*Record
}

// NewStore creates a link store. intervalSec is the stats polling period
// used to turn byte-counter deltas into rates.
func NewStore(intervalSec int, logger *slog.Logger) *Store {
	return &Store{
		intervalSec: float64(intervalSec),
		logger:      logger,
		edges:       make(map[edgeKey]*Record),
	}
}

// UpdatePortStats applies one port statistics sample for the directed edge
// src→dst. It returns the updated record and whether the configured
// capacity dropped below its previous value, which triggers an immediate
// re-route consideration for flows crossing the edge.
func (s *Store) UpdatePortStats(src, dst southbound.SwitchID, rxBytes uint64, capacityBytes float64, now time.Time) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := edgeKey{Src: src, Dst: dst}
	rec, ok := s.edges[key]
	if !ok {
		rec = &Record{Src: src, Dst: dst}
		s.edges[key] = rec
	}
	prevCapacity := rec.CapacityBytes

	var delta uint64
	if rxBytes > rec.PrevRxBytes {
		delta = rxBytes - rec.PrevRxBytes
	}
	rec.UsageBytes = float64(delta) / s.intervalSec
	rec.PrevRxBytes = rxBytes
	rec.CapacityBytes = capacityBytes
	rec.UpdateTime = now

	metrics.LinkUsageBytes.WithLabelValues(src.String(), dst.String()).Set(rec.UsageBytes)
	metrics.LinkCapacityBytes.WithLabelValues(src.String(), dst.String()).Set(capacityBytes)

	dropped := ok && capacityBytes < prevCapacity
	return *rec, dropped
}

// Get returns a copy of the record for the directed edge src→dst.
func (s *Store) Get(src, dst southbound.SwitchID) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.edges[edgeKey{Src: src, Dst: dst}]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// ActiveFlows returns the flow count of the directed edge src→dst.
func (s *Store) ActiveFlows(src, dst southbound.SwitchID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.edges[edgeKey{Src: src, Dst: dst}]
	if !ok {
		return 0
	}
	return rec.ActiveFlows
}

// AddPathFlows increments the flow count on every interior switch-to-switch
// hop of path, both directions.
func (s *Store) AddPathFlows(path []topology.NodeRef) {
	s.adjustPathFlows(path, 1)
}

// RemovePathFlows decrements the flow count on every interior hop of path,
// both directions. Going negative is a bookkeeping bug; the count is
// clamped and logged.
func (s *Store) RemovePathFlows(path []topology.NodeRef) {
	s.adjustPathFlows(path, -1)
}

func (s *Store) adjustPathFlows(path []topology.NodeRef, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i+1 < len(path); i++ {
		u, v := path[i], path[i+1]
		if u.Kind != topology.KindSwitch || v.Kind != topology.KindSwitch {
			continue
		}
		s.adjustEdge(u.Switch, v.Switch, delta)
		s.adjustEdge(v.Switch, u.Switch, delta)
	}
}

// adjustEdge changes one directed edge's count. Caller holds the lock.
func (s *Store) adjustEdge(src, dst southbound.SwitchID, delta int) {
	key := edgeKey{Src: src, Dst: dst}
	rec, ok := s.edges[key]
	if !ok {
		rec = &Record{Src: src, Dst: dst}
		s.edges[key] = rec
	}
	rec.ActiveFlows += delta
	if rec.ActiveFlows < 0 {
		s.logger.Error("active flow count went negative, clamping",
			"src", src, "dst", dst)
		rec.ActiveFlows = 0
	}
}

// All returns copies of every record, sorted by (src, dst).
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.edges))
	for _, rec := range s.edges {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Src != out[j].Src {
			return out[i].Src < out[j].Src
		}
		return out[i].Dst < out[j].Dst
	})
	return out
}

// Audit recomputes per-edge flow counts from scratch across the given
// paths and returns the edges whose running count disagrees. Used by tests
// and debug assertions on the incremental bookkeeping.
func (s *Store) Audit(paths [][]topology.NodeRef) []Record {
	counts := make(map[edgeKey]int)
	for _, path := range paths {
		for i := 0; i+1 < len(path); i++ {
			u, v := path[i], path[i+1]
			if u.Kind != topology.KindSwitch || v.Kind != topology.KindSwitch {
				continue
			}
			counts[edgeKey{Src: u.Switch, Dst: v.Switch}]++
			counts[edgeKey{Src: v.Switch, Dst: u.Switch}]++
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var bad []Record
	for key, rec := range s.edges {
		if rec.ActiveFlows != counts[key] {
			bad = append(bad, *rec)
		}
	}
	for key, n := range counts {
		if _, ok := s.edges[key]; !ok && n != 0 {
			bad = append(bad, Record{Src: key.Src, Dst: key.Dst})
		}
	}
	sort.Slice(bad, func(i, j int) bool {
		if bad[i].Src != bad[j].Src {
			return bad[i].Src < bad[j].Src
		}
		return bad[i].Dst < bad[j].Dst
	})
	return bad
}
