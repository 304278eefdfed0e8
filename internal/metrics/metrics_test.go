package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	// promauto registers automatically; exercise each metric once and spot
	// check values via testutil.

	EventsProcessed.WithLabelValues("packet_in").Inc()
	EventBufferDrops.Inc()
	PacketIns.WithLabelValues("flooded").Inc()
	SouthboundErrors.WithLabelValues("set_port_flood").Inc()
	SwitchesConnected.Set(3)
	LinksKnown.Set(6)
	HostsLearned.Set(2)
	TopologyRebuilds.Inc()
	PortsBlocked.Set(2)
	FlowsTracked.WithLabelValues("active").Set(4)
	FlowInstalls.WithLabelValues("new").Inc()
	Reroutes.WithLabelValues("capacity_drop").Inc()
	StatsReplies.WithLabelValues("port").Inc()
	LinkUsageBytes.WithLabelValues("1", "2").Set(125000)
	LinkCapacityBytes.WithLabelValues("1", "2").Set(1250000)
	PathSelectionDuration.Observe(0.002)

	if got := testutil.ToFloat64(SwitchesConnected); got != 3 {
		t.Errorf("SwitchesConnected = %v, want 3", got)
	}
	if got := testutil.ToFloat64(EventBufferDrops); got != 1 {
		t.Errorf("EventBufferDrops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(LinkUsageBytes.WithLabelValues("1", "2")); got != 125000 {
		t.Errorf("LinkUsageBytes = %v, want 125000", got)
	}
}

func TestMetricsNamespace(t *testing.T) {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range mfs {
		name := mf.GetName()
		if strings.HasPrefix(name, "go_") ||
			strings.HasPrefix(name, "process_") ||
			strings.HasPrefix(name, "promhttp_") {
			continue
		}
		if !strings.HasPrefix(name, "reflowd_") {
			t.Errorf("metric %q does not have reflowd_ prefix", name)
		}
	}
}
