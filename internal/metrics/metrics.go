// Package metrics defines all Prometheus metrics for reflowd.
// All metrics use the "reflowd_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reflowd"

// --- Southbound event metrics ---

var (
	// EventsProcessed counts events handled by the event router, by type.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "Total southbound events processed by the router, by type.",
	}, []string{"type"})

	// EventBufferDrops counts events dropped because the router inbox was full.
	EventBufferDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_buffer_drops_total",
		Help:      "Total events dropped due to a full router inbox.",
	})

	// PacketIns counts packet-in events by outcome (routed, flooded,
	// discovery, no_path).
	PacketIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packet_ins_total",
		Help:      "Total packet-in events, by handling outcome.",
	}, []string{"outcome"})

	// SouthboundErrors counts failed southbound commands by operation.
	SouthboundErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "southbound_errors_total",
		Help:      "Total failed southbound commands, by operation.",
	}, []string{"operation"})
)

// --- Topology metrics ---

var (
	// SwitchesConnected is the number of switches currently registered.
	SwitchesConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "switches_connected",
		Help:      "Number of switches currently connected.",
	})

	// LinksKnown is the number of directed switch-to-switch edges in the graph.
	LinksKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "links_known",
		Help:      "Number of directed switch-to-switch links in the topology.",
	})

	// HostsLearned is the number of hosts in the learning table.
	HostsLearned = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hosts_learned",
		Help:      "Number of hosts in the learning table.",
	})

	// TopologyRebuilds counts full graph/MST recomputations.
	TopologyRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "topology_rebuilds_total",
		Help:      "Total full topology rebuilds (graph, MST, port blocks).",
	})

	// PortsBlocked is the number of ports with flooding currently disabled.
	PortsBlocked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ports_blocked",
		Help:      "Number of switch ports with flooding disabled.",
	})
)

// --- Flow and link metrics ---

var (
	// FlowsTracked is the number of flow records, by active state.
	FlowsTracked = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "flows_tracked",
		Help:      "Number of tracked flows, by state (active, inactive).",
	}, []string{"state"})

	// FlowInstalls counts path installations, by reason (new, reroute).
	FlowInstalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flow_installs_total",
		Help:      "Total path installations, by reason.",
	}, []string{"reason"})

	// Reroutes counts flows moved to a new path, by trigger
	// (underserved, capacity_drop).
	Reroutes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reroutes_total",
		Help:      "Total flow re-routes, by trigger.",
	}, []string{"trigger"})

	// StatsReplies counts statistics replies processed, by kind (flow, port).
	StatsReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stats_replies_total",
		Help:      "Total statistics replies processed, by kind.",
	}, []string{"kind"})

	// LinkUsageBytes is the last measured per-link usage in bytes/second.
	LinkUsageBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "link_usage_bytes_per_second",
		Help:      "Measured link usage in bytes per second, by directed edge.",
	}, []string{"src", "dst"})

	// LinkCapacityBytes is the last known per-link capacity in bytes/second.
	LinkCapacityBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "link_capacity_bytes_per_second",
		Help:      "Configured link capacity in bytes per second, by directed edge.",
	}, []string{"src", "dst"})

	// PathSelectionDuration tracks path computation latency.
	PathSelectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "path_selection_duration_seconds",
		Help:      "K-shortest-paths selection duration in seconds.",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})
)
