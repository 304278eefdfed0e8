// Package path chooses end-to-end forwarding paths: it enumerates the K
// hop-count-shortest loop-free paths between two nodes and scores each by
// its bottleneck expected throughput against the per-flow rate goal.
package path

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/reflowd/reflowd/internal/link"
	"github.com/reflowd/reflowd/internal/metrics"
	"github.com/reflowd/reflowd/internal/southbound"
	"github.com/reflowd/reflowd/internal/topology"
)

// ErrNoPath is returned when no scoreable path exists between the nodes.
var ErrNoPath = errors.New("path: no usable path")

// LinkView is the read side of the link store the selector scores against.
type LinkView interface {
	Get(src, dst southbound.SwitchID) (link.Record, bool)
}

// Result is a selected path and its expected bottleneck throughput in
// bytes/second. Throughput is +Inf for paths with no switch-to-switch hop.
type Result struct {
	Path       []topology.NodeRef
	Throughput float64
}

// Selector computes and scores candidate paths.
type Selector struct {
	k           int
	desiredRate float64 // bytes/second
	logger      *slog.Logger
}

// NewSelector creates a selector considering up to k candidate paths
// against the given per-flow goal in bytes/second.
func NewSelector(k int, desiredRate float64, logger *slog.Logger) *Selector {
	return &Selector{
		k:           k,
		desiredRate: desiredRate,
		logger:      logger,
	}
}

// Select returns the preferred path from src to dst.
//
// Candidates are scored by their bottleneck hop and scanned in ascending
// score order; the first one exceeding the rate goal wins. That prefers the
// least-overprovisioned acceptable path, leaving headroom on fatter paths
// for flows that will need it. When nothing meets the goal the
// best-scoring candidate is returned.
func (s *Selector) Select(snap *topology.Snapshot, src, dst topology.NodeRef, links LinkView) (Result, error) {
	started := time.Now()
	defer func() {
		metrics.PathSelectionDuration.Observe(time.Since(started).Seconds())
	}()

	if !snap.HasNode(src) || !snap.HasNode(dst) {
		return Result{}, ErrNoPath
	}

	var scored []Result
	for _, candidate := range kShortestPaths(snap, src, dst, s.k) {
		throughput, ok := s.score(candidate, links)
		if !ok {
			// A hop without a link record is a just-learned link with
			// unknown capacity; the candidate is not scoreable yet.
			continue
		}
		scored = append(scored, Result{Path: candidate, Throughput: throughput})
	}
	if len(scored) == 0 {
		return Result{}, ErrNoPath
	}

	// Ties go to the shorter path, preserving plain hop-count routing when
	// scores do not discriminate.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Throughput != scored[j].Throughput {
			return scored[i].Throughput < scored[j].Throughput
		}
		return len(scored[i].Path) < len(scored[j].Path)
	})

	for _, r := range scored {
		if r.Throughput > s.desiredRate {
			s.logger.Debug("path selected",
				"src", src.String(), "dst", dst.String(),
				"path", pathString(r.Path), "throughput_bps", r.Throughput)
			return r, nil
		}
	}

	best := scored[len(scored)-1]
	for _, r := range scored {
		if r.Throughput == best.Throughput {
			best = r
			break
		}
	}
	s.logger.Debug("no path meets the rate goal, using best available",
		"src", src.String(), "dst", dst.String(),
		"path", pathString(best.Path), "throughput_bps", best.Throughput)
	return best, nil
}

// score computes the expected bottleneck throughput of one candidate: per
// switch-to-switch hop the larger of the unused capacity and the fair
// share a new flow would get, minimized along the path.
func (s *Selector) score(path []topology.NodeRef, links LinkView) (float64, bool) {
	throughput := math.Inf(1)
	for i := 0; i+1 < len(path); i++ {
		u, v := path[i], path[i+1]
		if u.Kind != topology.KindSwitch || v.Kind != topology.KindSwitch {
			continue
		}
		rec, ok := links.Get(u.Switch, v.Switch)
		if !ok {
			return 0, false
		}
		available := rec.CapacityBytes - rec.UsageBytes
		if available < 0 {
			available = 0
		}
		fairShare := rec.CapacityBytes / float64(rec.ActiveFlows+1)
		perLink := math.Max(available, fairShare)
		if perLink < throughput {
			throughput = perLink
		}
	}
	return throughput, true
}
