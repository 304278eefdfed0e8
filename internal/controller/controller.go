// Package controller hosts the event router: the single task that applies
// every southbound event to the topology, flow, and link state, drives the
// packet-in forwarding pipeline, and runs the periodic re-routing pass.
package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/reflowd/reflowd/internal/config"
	"github.com/reflowd/reflowd/internal/events"
	"github.com/reflowd/reflowd/internal/flow"
	"github.com/reflowd/reflowd/internal/link"
	"github.com/reflowd/reflowd/internal/metrics"
	"github.com/reflowd/reflowd/internal/path"
	"github.com/reflowd/reflowd/internal/southbound"
	"github.com/reflowd/reflowd/internal/stats"
	"github.com/reflowd/reflowd/internal/topology"
)

// Controller owns all mutable control-plane state. Every mutation happens
// on the Run goroutine; collectors and transport callbacks only enqueue
// events into the inbox.
type Controller struct {
	cfg    *config.Config
	logger *slog.Logger
	inbox  *events.Inbox

	registry  *southbound.Registry
	hosts     *topology.HostTable
	topo      *topology.Store
	flows     *flow.Store
	links     *link.Store
	oracle    *link.Oracle
	selector  *path.Selector
	collector *stats.Collector
	installer *Installer
}

// New wires a controller from configuration. The inbox is shared with the
// transport driver, which publishes southbound events into it.
func New(cfg *config.Config, inbox *events.Inbox, logger *slog.Logger) *Controller {
	registry := southbound.NewRegistry()
	hosts := topology.NewHostTable()
	interval := time.Duration(cfg.Stats.IntervalSeconds) * time.Second
	oracleTTL := time.Duration(cfg.Oracle.CacheTTLSeconds) * time.Second

	return &Controller{
		cfg:       cfg,
		logger:    logger,
		inbox:     inbox,
		registry:  registry,
		hosts:     hosts,
		topo:      topology.NewStore(registry, hosts, logger),
		flows:     flow.NewStore(cfg.DesiredRateBytes(), cfg.Routing.ActiveCountdownTicks),
		links:     link.NewStore(cfg.Stats.IntervalSeconds, logger),
		oracle:    link.NewOracle(cfg.Oracle.Path, oracleTTL, logger),
		selector:  path.NewSelector(cfg.Routing.KShortestPaths, cfg.DesiredRateBytes(), logger),
		collector: stats.NewCollector(interval, inbox, logger),
		installer: NewInstaller(registry, logger),
	}
}

// Inbox returns the event inbox transport drivers publish into.
func (c *Controller) Inbox() *events.Inbox { return c.inbox }

// Registry returns the datapath registry.
func (c *Controller) Registry() *southbound.Registry { return c.registry }

// Topology returns the topology store for read-only consumers.
func (c *Controller) Topology() *topology.Store { return c.topo }

// Flows returns the flow store for read-only consumers.
func (c *Controller) Flows() *flow.Store { return c.flows }

// Links returns the link store for read-only consumers.
func (c *Controller) Links() *link.Store { return c.links }

// Hosts returns the host learning table for read-only consumers.
func (c *Controller) Hosts() *topology.HostTable { return c.hosts }

// Run consumes the inbox until ctx is cancelled, then stops the pollers,
// drains pending events, and returns.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("event router started",
		"stats_interval", c.cfg.Stats.IntervalSeconds,
		"k_shortest_paths", c.cfg.Routing.KShortestPaths,
		"desired_rate_bps", c.cfg.Routing.DesiredRateBps)

	for {
		select {
		case <-ctx.Done():
			c.collector.Shutdown()
			c.inbox.Close()
			for evt := range c.inbox.C() {
				c.dispatch(context.Background(), evt)
			}
			c.logger.Info("event router stopped")
			return nil
		case evt, ok := <-c.inbox.C():
			if !ok {
				c.collector.Shutdown()
				c.logger.Info("event router stopped, inbox closed")
				return nil
			}
			c.dispatch(ctx, evt)
		}
	}
}

// Close stops the stats pollers without touching the inbox. Run does this
// itself on cancellation; Close covers callers that drive HandleEvent
// directly.
func (c *Controller) Close() {
	c.collector.Shutdown()
}

// HandleEvent applies a single event synchronously. Exposed for transports
// that already serialize delivery and for tests; Run applies events through
// the same dispatch.
func (c *Controller) HandleEvent(ctx context.Context, evt events.Event) {
	c.dispatch(ctx, evt)
}

func (c *Controller) dispatch(ctx context.Context, evt events.Event) {
	metrics.EventsProcessed.WithLabelValues(evt.Kind()).Inc()

	switch e := evt.(type) {
	case events.SwitchUp:
		c.onSwitchUp(ctx, e)
	case events.SwitchDown:
		c.onSwitchDown(ctx, e)
	case events.LinkUp:
		c.topo.AddLink(ctx, e.Src, e.Dst, e.SrcPort, e.DstPort)
	case events.LinkDown:
		c.topo.RemoveLink(ctx, e.Src, e.Dst)
	case events.PacketIn:
		c.onPacketIn(ctx, e)
	case events.FlowStatsReply:
		c.onFlowStats(e)
	case events.PortStatsReply:
		c.onPortStats(ctx, e)
	case events.StatsTick:
		c.onStatsTick(ctx, e)
	case events.FlowRemoved:
		// Liveness is countdown-driven; an eviction notice adds nothing.
		c.logger.Debug("ignoring flow removed notice", "switch", e.Switch)
	default:
		c.logger.Warn("unhandled event", "kind", evt.Kind())
	}
}

func (c *Controller) onSwitchUp(ctx context.Context, e events.SwitchUp) {
	c.logger.Info("switch up", "switch", e.ID, "ports", len(e.Ports))
	c.registry.Add(e.Datapath)

	// Discovery frames are consumed by the topology layer; a high-priority
	// drop keeps them out of the data path.
	rule := southbound.FlowRule{
		Match:    southbound.Match{EtherType: discoveryEtherType},
		Actions:  []southbound.Action{southbound.Drop()},
		Priority: southbound.PriorityDiscoveryDrop,
	}
	if err := e.Datapath.InstallFlowRule(ctx, rule); err != nil {
		metrics.SouthboundErrors.WithLabelValues("install_flow_rule").Inc()
		c.logger.Warn("discovery drop install failed", "switch", e.ID, "error", err)
	}

	c.topo.AddSwitch(ctx, e.ID)
	c.collector.Start(ctx, e.Datapath)
}

func (c *Controller) onSwitchDown(ctx context.Context, e events.SwitchDown) {
	c.logger.Info("switch down", "switch", e.ID)
	c.collector.Stop(e.ID)
	c.registry.Remove(e.ID)
	c.topo.RemoveSwitch(ctx, e.ID)
}

func (c *Controller) onFlowStats(e events.FlowStatsReply) {
	metrics.StatsReplies.WithLabelValues("flow").Inc()
	now := time.Now()
	for _, entry := range e.Entries {
		// Only the per-flow rules carry a flow key; the default program
		// and the discovery drop are not flows.
		if entry.Priority != southbound.PriorityFlow {
			continue
		}
		if len(entry.Match.SrcMAC) == 0 || len(entry.Match.DstMAC) == 0 {
			c.logger.Debug("flow stats entry without a parsable key, ignoring",
				"switch", e.Switch)
			continue
		}
		c.flows.UpdateFromStats(entry, now)
	}
}

func (c *Controller) onPortStats(ctx context.Context, e events.PortStatsReply) {
	metrics.StatsReplies.WithLabelValues("port").Inc()
	snap := c.topo.Snapshot()
	now := time.Now()

	for _, entry := range e.Entries {
		neighbor, ok := snap.NeighborByPort(e.Switch, entry.PortNo)
		if !ok {
			// Host-facing or unknown port: not a link we meter.
			continue
		}
		capacity := c.oracle.CapacityBytes(e.Switch, neighbor)
		_, dropped := c.links.UpdatePortStats(e.Switch, neighbor, entry.RxBytes, capacity, now)
		if dropped {
			c.logger.Info("link capacity dropped, rerouting affected flows",
				"src", e.Switch, "dst", neighbor, "capacity_bps", capacity)
			c.rerouteAcrossEdge(ctx, e.Switch, neighbor)
		}
	}
}

func (c *Controller) onStatsTick(ctx context.Context, e events.StatsTick) {
	deactivated := c.flows.TickCountdown()
	for _, key := range deactivated {
		c.logger.Debug("flow went inactive", "flow", key.String(), "switch", e.Switch)
	}
	c.reroutePass(ctx)
}
