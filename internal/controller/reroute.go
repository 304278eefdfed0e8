package controller

import (
	"context"

	"github.com/reflowd/reflowd/internal/flow"
	"github.com/reflowd/reflowd/internal/metrics"
	"github.com/reflowd/reflowd/internal/southbound"
	"github.com/reflowd/reflowd/internal/topology"
)

// reroutePass runs at the end of every stats tick: every active flow with
// no pending cooldown that receives less than the trigger ratio of its
// goal is re-examined, worst served first. A flow only moves when the
// candidate path promises a clear improvement; the trigger/improvement
// hysteresis and the cooldown keep flows from oscillating between paths
// whose scores straddle the threshold.
func (c *Controller) reroutePass(ctx context.Context) {
	candidates := c.flows.Candidates(c.cfg.Routing.RerouteRatioTrigger)
	if len(candidates) == 0 {
		return
	}

	snap := c.topo.Snapshot()
	for _, cand := range candidates {
		c.maybeReroute(ctx, snap, cand.Record, "underserved")
	}
}

// rerouteAcrossEdge re-examines every active flow with no pending cooldown
// whose path crosses the link whose capacity just dropped, regardless of
// its measured rate; inactive and cooling-down flows are skipped. The
// improvement test still applies: a flow on the degraded link is only
// moved somewhere measurably better.
func (c *Controller) rerouteAcrossEdge(ctx context.Context, a, b southbound.SwitchID) {
	affected := c.flows.Traversing(a, b)
	if len(affected) == 0 {
		return
	}

	snap := c.topo.Snapshot()
	for _, rec := range affected {
		if !rec.Active || rec.RerouteCooldown != 0 {
			continue
		}
		c.maybeReroute(ctx, snap, rec, "capacity_drop")
	}
}

// maybeReroute applies the improvement test and, on success, switches the
// flow to the newly selected path.
func (c *Controller) maybeReroute(ctx context.Context, snap *topology.Snapshot, rec flow.Record, trigger string) {
	srcRef := topology.NodeRef{Kind: topology.KindHost, MAC: rec.Key.SrcMAC}
	dstRef := topology.NodeRef{Kind: topology.KindHost, MAC: rec.Key.DstMAC}
	if !snap.HasNode(srcRef) || !snap.HasNode(dstRef) {
		return
	}

	result, err := c.selector.Select(snap, srcRef, dstRef, c.links)
	if err != nil {
		c.logger.Debug("no candidate path for reroute", "flow", rec.Key.String())
		return
	}
	if result.Throughput <= c.cfg.Routing.RerouteRatioImprove*rec.CurrentRate {
		return
	}

	c.links.RemovePathFlows(rec.Path)
	c.links.AddPathFlows(result.Path)
	c.flows.SetRerouted(rec.Key, result.Path, c.cfg.Routing.RerouteCooldownTicks)
	if err := c.installer.InstallBidirectional(ctx, snap, result.Path, rec.Key); err != nil {
		c.logger.Warn("reroute install failed", "flow", rec.Key.String(), "error", err)
	}
	metrics.Reroutes.WithLabelValues(trigger).Inc()
	metrics.FlowInstalls.WithLabelValues("reroute").Inc()
	c.logger.Info("flow rerouted",
		"flow", rec.Key.String(),
		"trigger", trigger,
		"rate_bps", rec.CurrentRate,
		"expected_bps", result.Throughput)
}
