package path_test

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"testing"
	"time"

	"github.com/reflowd/reflowd/internal/link"
	"github.com/reflowd/reflowd/internal/path"
	"github.com/reflowd/reflowd/internal/southbound"
	"github.com/reflowd/reflowd/internal/southbound/southboundtest"
	"github.com/reflowd/reflowd/internal/topology"
)

const (
	desired = 125_000.0   // 1 Mbps in bytes/second
	cap10M  = 1_250_000.0 // 10 Mbps
	cap1M   = 125_000.0   // 1 Mbps
)

var (
	h1MAC = "00:00:00:00:00:01"
	h2MAC = "00:00:00:00:00:02"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// triangle builds switches 1,2,3 in a full mesh with h1 on switch 1 and h2
// on switch 3, and a link store where every directed switch edge has the
// given capacity and zero usage.
func triangle(t *testing.T, capacity float64) (*topology.Snapshot, *link.Store) {
	t.Helper()
	ctx := context.Background()
	hosts := topology.NewHostTable()
	registry := southbound.NewRegistry()
	store := topology.NewStore(registry, hosts, discard())
	for _, id := range []southbound.SwitchID{1, 2, 3} {
		registry.Add(southboundtest.NewFakeDatapath(id))
		store.AddSwitch(ctx, id)
	}
	store.AddLink(ctx, 1, 2, 1, 1)
	store.AddLink(ctx, 1, 3, 2, 1)
	store.AddLink(ctx, 2, 3, 2, 2)

	h1, _ := net.ParseMAC(h1MAC)
	h2, _ := net.ParseMAC(h2MAC)
	hosts.Learn(h1, 1, 10)
	hosts.Learn(h2, 3, 10)
	store.RefreshHosts(ctx)

	links := link.NewStore(1, discard())
	now := time.Now()
	for _, pair := range [][2]southbound.SwitchID{{1, 2}, {2, 1}, {1, 3}, {3, 1}, {2, 3}, {3, 2}} {
		links.UpdatePortStats(pair[0], pair[1], 0, capacity, now)
	}
	return store.Snapshot(), links
}

func hostRef(s string) topology.NodeRef {
	mac, _ := net.ParseMAC(s)
	return topology.HostRef(mac)
}

func pathSwitches(p []topology.NodeRef) []southbound.SwitchID {
	var out []southbound.SwitchID
	for _, ref := range p {
		if ref.Kind == topology.KindSwitch {
			out = append(out, ref.Switch)
		}
	}
	return out
}

func sameSwitches(got []topology.NodeRef, want ...southbound.SwitchID) bool {
	sw := pathSwitches(got)
	if len(sw) != len(want) {
		return false
	}
	for i := range want {
		if sw[i] != want[i] {
			return false
		}
	}
	return true
}

func TestSelectUncongestedPrefersDirect(t *testing.T) {
	snap, links := triangle(t, cap10M)
	sel := path.NewSelector(5, desired, discard())

	res, err := sel.Select(snap, hostRef(h1MAC), hostRef(h2MAC), links)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if !sameSwitches(res.Path, 1, 3) {
		t.Errorf("path switches = %v, want [1 3]", pathSwitches(res.Path))
	}
	if res.Path[0] != hostRef(h1MAC) || res.Path[len(res.Path)-1] != hostRef(h2MAC) {
		t.Errorf("path endpoints = %v, want host MACs", res.Path)
	}
	if res.Throughput != cap10M {
		t.Errorf("Throughput = %v, want %v", res.Throughput, cap10M)
	}
}

func TestSelectAvoidsCongestedLink(t *testing.T) {
	snap, links := triangle(t, cap10M)
	now := time.Now()

	// Direct link 1<->3 drops to 1 Mbps with 0.9 Mbps used and one flow
	// already on it: available 0.1 Mbps, fair share 0.5 Mbps.
	links.UpdatePortStats(1, 3, 112_500, cap1M, now)
	links.UpdatePortStats(3, 1, 112_500, cap1M, now)
	links.AddPathFlows([]topology.NodeRef{
		hostRef("00:00:00:00:00:03"),
		topology.SwitchRef(1), topology.SwitchRef(3),
		hostRef("00:00:00:00:00:04"),
	})

	sel := path.NewSelector(5, desired, discard())
	res, err := sel.Select(snap, hostRef(h1MAC), hostRef(h2MAC), links)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if !sameSwitches(res.Path, 1, 2, 3) {
		t.Errorf("path switches = %v, want detour [1 2 3]", pathSwitches(res.Path))
	}
	if res.Throughput != cap10M {
		t.Errorf("Throughput = %v, want %v", res.Throughput, cap10M)
	}
}

func TestSelectKOneDegeneratesToShortest(t *testing.T) {
	snap, links := triangle(t, cap10M)
	now := time.Now()
	// Starve the direct link; with K=1 there is no detour candidate and
	// the best (only) path is returned even below the goal.
	links.UpdatePortStats(1, 3, 112_500, cap1M, now)
	links.AddPathFlows([]topology.NodeRef{
		hostRef("00:00:00:00:00:03"),
		topology.SwitchRef(1), topology.SwitchRef(3),
		hostRef("00:00:00:00:00:04"),
	})

	sel := path.NewSelector(1, desired, discard())
	res, err := sel.Select(snap, hostRef(h1MAC), hostRef(h2MAC), links)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if !sameSwitches(res.Path, 1, 3) {
		t.Errorf("path switches = %v, want hop-count shortest [1 3]", pathSwitches(res.Path))
	}
	if res.Throughput >= desired {
		t.Errorf("Throughput = %v, expected a best-effort path below the goal", res.Throughput)
	}
}

func TestSelectFairShareWithTwoFlows(t *testing.T) {
	snap, links := triangle(t, cap10M)
	now := time.Now()

	// Fully used direct link carrying two flows: a third contender can
	// expect capacity/3.
	links.UpdatePortStats(1, 3, uint64(cap10M), cap10M, now)
	for i := 0; i < 2; i++ {
		links.AddPathFlows([]topology.NodeRef{
			hostRef("00:00:00:00:00:03"),
			topology.SwitchRef(1), topology.SwitchRef(3),
			hostRef("00:00:00:00:00:04"),
		})
	}

	sel := path.NewSelector(1, desired, discard())
	res, err := sel.Select(snap, hostRef(h1MAC), hostRef(h2MAC), links)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	want := cap10M / 3
	if math.Abs(res.Throughput-want) > 1 {
		t.Errorf("Throughput = %v, want fair share %v", res.Throughput, want)
	}
}

func TestSelectSkipsUnknownLink(t *testing.T) {
	snap, _ := triangle(t, cap10M)

	// A link store that never saw the direct 1<->3 edge: the candidate
	// using it is unscoreable and the detour wins.
	links := link.NewStore(1, discard())
	now := time.Now()
	for _, pair := range [][2]southbound.SwitchID{{1, 2}, {2, 1}, {2, 3}, {3, 2}} {
		links.UpdatePortStats(pair[0], pair[1], 0, cap10M, now)
	}

	sel := path.NewSelector(5, desired, discard())
	res, err := sel.Select(snap, hostRef(h1MAC), hostRef(h2MAC), links)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if !sameSwitches(res.Path, 1, 2, 3) {
		t.Errorf("path switches = %v, want [1 2 3]", pathSwitches(res.Path))
	}
}

func TestSelectNoPath(t *testing.T) {
	snap, links := triangle(t, cap10M)
	sel := path.NewSelector(5, desired, discard())

	// Unknown destination node.
	_, err := sel.Select(snap, hostRef(h1MAC), hostRef("00:00:00:00:00:99"), links)
	if !errors.Is(err, path.ErrNoPath) {
		t.Errorf("Select error = %v, want ErrNoPath", err)
	}
}
