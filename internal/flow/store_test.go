package flow

import (
	"net"
	"testing"
	"time"

	"github.com/reflowd/reflowd/internal/southbound"
	"github.com/reflowd/reflowd/internal/topology"
)

const desired = 125000.0 // 1 Mbps in bytes/second

func testMatch(t *testing.T, src, dst string, tpSrc, tpDst uint16) southbound.Match {
	t.Helper()
	srcMAC, err := net.ParseMAC(src)
	if err != nil {
		t.Fatalf("ParseMAC(%q): %v", src, err)
	}
	dstMAC, err := net.ParseMAC(dst)
	if err != nil {
		t.Fatalf("ParseMAC(%q): %v", dst, err)
	}
	return southbound.Match{SrcMAC: srcMAC, DstMAC: dstMAC, TpSrc: tpSrc, TpDst: tpDst}
}

func hostSwitchPath(hosts [2]string, switches ...southbound.SwitchID) []topology.NodeRef {
	path := []topology.NodeRef{{Kind: topology.KindHost, MAC: hosts[0]}}
	for _, sw := range switches {
		path = append(path, topology.SwitchRef(sw))
	}
	return append(path, topology.NodeRef{Kind: topology.KindHost, MAC: hosts[1]})
}

func TestUpdateFromStats(t *testing.T) {
	s := NewStore(desired, 2)
	now := time.Now()

	rec := s.UpdateFromStats(southbound.FlowStatsEntry{
		Match:       testMatch(t, "00:00:00:00:00:01", "00:00:00:00:00:02", 40000, 5001),
		ByteCount:   1_000_000,
		DurationSec: 10,
	}, now)

	if rec.CurrentRate != 100000 {
		t.Errorf("CurrentRate = %v, want 100000", rec.CurrentRate)
	}
	if !rec.Active || rec.ActiveCountdown != 2 {
		t.Errorf("liveness = (%v, %d), want (true, 2)", rec.Active, rec.ActiveCountdown)
	}
	if rec.DesiredRate != desired {
		t.Errorf("DesiredRate = %v, want %v", rec.DesiredRate, desired)
	}
	if !rec.UpdateTime.Equal(now) {
		t.Errorf("UpdateTime = %v, want %v", rec.UpdateTime, now)
	}
}

func TestUpdateZeroDuration(t *testing.T) {
	s := NewStore(desired, 2)
	rec := s.UpdateFromStats(southbound.FlowStatsEntry{
		Match:       testMatch(t, "00:00:00:00:00:01", "00:00:00:00:00:02", 1, 2),
		ByteCount:   500,
		DurationSec: 0,
	}, time.Now())
	if rec.CurrentRate != 0 {
		t.Errorf("CurrentRate = %v, want 0 for zero duration", rec.CurrentRate)
	}
}

func TestUpdatePreservesPathAndDecrementsCooldown(t *testing.T) {
	s := NewStore(desired, 2)
	m := testMatch(t, "00:00:00:00:00:01", "00:00:00:00:00:02", 1, 2)
	key := KeyFromMatch(m)
	path := hostSwitchPath([2]string{key.SrcMAC, key.DstMAC}, 1, 3)

	s.SetPath(key, path)
	s.SetRerouted(key, path, 2)

	rec := s.UpdateFromStats(southbound.FlowStatsEntry{Match: m, ByteCount: 1, DurationSec: 1}, time.Now())
	if len(rec.Path) != 4 {
		t.Errorf("Path length = %d, want 4", len(rec.Path))
	}
	if rec.RerouteCooldown != 1 {
		t.Errorf("RerouteCooldown = %d, want 1", rec.RerouteCooldown)
	}

	rec = s.UpdateFromStats(southbound.FlowStatsEntry{Match: m, ByteCount: 2, DurationSec: 1}, time.Now())
	if rec.RerouteCooldown != 0 {
		t.Errorf("RerouteCooldown = %d, want 0", rec.RerouteCooldown)
	}

	// Never below zero.
	rec = s.UpdateFromStats(southbound.FlowStatsEntry{Match: m, ByteCount: 3, DurationSec: 1}, time.Now())
	if rec.RerouteCooldown != 0 {
		t.Errorf("RerouteCooldown = %d, want 0 (clamped)", rec.RerouteCooldown)
	}
}

func TestTickCountdownDeactivates(t *testing.T) {
	s := NewStore(desired, 2)
	m := testMatch(t, "00:00:00:00:00:01", "00:00:00:00:00:02", 1, 2)
	s.UpdateFromStats(southbound.FlowStatsEntry{Match: m, ByteCount: 1, DurationSec: 1}, time.Now())

	if got := s.TickCountdown(); len(got) != 0 {
		t.Fatalf("first tick deactivated %v, want none", got)
	}
	got := s.TickCountdown()
	if len(got) != 1 || got[0] != KeyFromMatch(m) {
		t.Fatalf("second tick deactivated %v, want the one flow", got)
	}

	rec, ok := s.Get(KeyFromMatch(m))
	if !ok || rec.Active {
		t.Errorf("record after deactivation = (%+v, %v), want inactive", rec, ok)
	}

	// Inactive flows are not decremented again; records stay forever.
	if got := s.TickCountdown(); len(got) != 0 {
		t.Errorf("third tick deactivated %v, want none", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (records are never deleted)", s.Len())
	}
}

func TestCandidatesOrderingAndFilter(t *testing.T) {
	s := NewStore(desired, 2)
	now := time.Now()

	add := func(src string, bytes uint64) Key {
		m := testMatch(t, src, "00:00:00:00:00:99", 1, 2)
		s.UpdateFromStats(southbound.FlowStatsEntry{Match: m, ByteCount: bytes, DurationSec: 1}, now)
		return KeyFromMatch(m)
	}

	worst := add("00:00:00:00:00:01", 10_000)  // 8% of goal
	mid := add("00:00:00:00:00:02", 50_000)    // 40% of goal
	add("00:00:00:00:00:03", 120_000)          // 96%, above trigger
	cooled := add("00:00:00:00:00:04", 10_000) // underserved but cooling down
	s.SetPath(cooled, nil)
	s.SetRerouted(cooled, nil, 2)

	cands := s.Candidates(0.75)
	if len(cands) != 2 {
		t.Fatalf("Candidates returned %d, want 2", len(cands))
	}
	if cands[0].Record.Key != worst {
		t.Errorf("first candidate = %v, want worst served %v", cands[0].Record.Key, worst)
	}
	if cands[1].Record.Key != mid {
		t.Errorf("second candidate = %v, want %v", cands[1].Record.Key, mid)
	}
}

func TestTraversing(t *testing.T) {
	s := NewStore(desired, 2)
	m := testMatch(t, "00:00:00:00:00:01", "00:00:00:00:00:02", 1, 2)
	key := KeyFromMatch(m)
	s.UpdateFromStats(southbound.FlowStatsEntry{Match: m, ByteCount: 1, DurationSec: 1}, time.Now())
	s.SetPath(key, hostSwitchPath([2]string{key.SrcMAC, key.DstMAC}, 1, 3))

	if got := s.Traversing(1, 3); len(got) != 1 {
		t.Errorf("Traversing(1, 3) = %d flows, want 1", len(got))
	}
	// Either direction of the same physical link matches.
	if got := s.Traversing(3, 1); len(got) != 1 {
		t.Errorf("Traversing(3, 1) = %d flows, want 1", len(got))
	}
	if got := s.Traversing(1, 2); len(got) != 0 {
		t.Errorf("Traversing(1, 2) = %d flows, want 0", len(got))
	}
}

func TestKeyReversed(t *testing.T) {
	k := Key{SrcMAC: "aa", DstMAC: "bb", TpSrc: 1000, TpDst: 2000}
	r := k.Reversed()
	if r.SrcMAC != "bb" || r.DstMAC != "aa" {
		t.Errorf("Reversed MACs = %s->%s, want bb->aa", r.SrcMAC, r.DstMAC)
	}
	if r.TpSrc != 1000 || r.TpDst != 2000 {
		t.Errorf("Reversed ports = %d,%d, want unchanged 1000,2000", r.TpSrc, r.TpDst)
	}
}
