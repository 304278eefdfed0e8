package controller

import (
	"context"

	"github.com/reflowd/reflowd/internal/events"
	"github.com/reflowd/reflowd/internal/flow"
	"github.com/reflowd/reflowd/internal/metrics"
	"github.com/reflowd/reflowd/internal/southbound"
	"github.com/reflowd/reflowd/internal/topology"
	"github.com/reflowd/reflowd/pkg/ethframe"
)

// discoveryEtherType is the control-plane discovery protocol (LLDP).
const discoveryEtherType = uint16(ethframe.EtherTypeLLDP)

// onPacketIn runs the forwarding pipeline for one punted frame: learn the
// source, then either flood along the spanning tree (unknown destination or
// no transport ports) or select and install a path for the flow.
func (c *Controller) onPacketIn(ctx context.Context, e events.PacketIn) {
	frame, err := ethframe.Parse(e.Frame)
	if err != nil {
		// An unparsable frame still gets delivered; treat it as unknown
		// and let the tree flood carry it.
		c.logger.Warn("unparsable packet-in frame, flooding",
			"switch", e.Switch, "in_port", e.InPort, "error", err)
		metrics.PacketIns.WithLabelValues("flooded").Inc()
		c.flood(ctx, e)
		return
	}

	if frame.IsDiscovery() {
		metrics.PacketIns.WithLabelValues("discovery").Inc()
		return
	}

	if c.hosts.Learn(frame.SrcMAC, e.Switch, e.InPort) {
		c.topo.RefreshHosts(ctx)
	}

	dstEntry, known := c.hosts.Lookup(frame.DstMAC)
	if !known {
		metrics.PacketIns.WithLabelValues("flooded").Inc()
		c.flood(ctx, e)
		return
	}

	ports, ok := frame.Transport()
	if !ok {
		// No flow key can be formed without L4 ports.
		metrics.PacketIns.WithLabelValues("flooded").Inc()
		c.flood(ctx, e)
		return
	}

	key := flow.Key{
		SrcMAC: topology.CanonicalMAC(frame.SrcMAC),
		DstMAC: topology.CanonicalMAC(frame.DstMAC),
		TpSrc:  ports.Src,
		TpDst:  ports.Dst,
	}

	snap := c.topo.Snapshot()
	srcRef := topology.HostRef(frame.SrcMAC)
	dstRef := topology.HostRef(frame.DstMAC)

	result, err := c.selector.Select(snap, srcRef, dstRef, c.links)
	if err != nil {
		c.logger.Warn("no path for flow, flooding as last resort",
			"flow", key.String(), "dst_switch", dstEntry.Switch, "error", err)
		metrics.PacketIns.WithLabelValues("no_path").Inc()
		c.flood(ctx, e)
		return
	}

	c.adoptPath(ctx, snap, key, result.Path, "new")
	metrics.PacketIns.WithLabelValues("routed").Inc()

	// Re-inject through the flow table so the just-installed rules forward
	// the trigger packet itself.
	c.packetOut(ctx, e, []southbound.Action{southbound.TableLookup()})
}

// adoptPath points a flow at a path: rules are (re)installed in both
// directions, the flow record is updated, and per-edge flow counts move
// from the previous path to the new one.
func (c *Controller) adoptPath(ctx context.Context, snap *topology.Snapshot, key flow.Key, newPath []topology.NodeRef, reason string) {
	if prev, ok := c.flows.Get(key); ok && len(prev.Path) > 0 {
		c.links.RemovePathFlows(prev.Path)
	}

	if err := c.installer.InstallBidirectional(ctx, snap, newPath, key); err != nil {
		c.logger.Warn("path install failed", "flow", key.String(), "error", err)
	}
	c.flows.SetPath(key, newPath)
	c.links.AddPathFlows(newPath)
	metrics.FlowInstalls.WithLabelValues(reason).Inc()
}

// flood sends the frame out along the spanning tree. A single flood action
// suffices: the blocked-port configuration confines it to tree links.
func (c *Controller) flood(ctx context.Context, e events.PacketIn) {
	c.packetOut(ctx, e, []southbound.Action{southbound.Flood()})
}

func (c *Controller) packetOut(ctx context.Context, e events.PacketIn, actions []southbound.Action) {
	dp, err := c.registry.Get(e.Switch)
	if err != nil {
		c.logger.Debug("packet-out skipped, switch not registered", "switch", e.Switch)
		return
	}
	out := southbound.PacketOut{
		BufferID: e.BufferID,
		InPort:   e.InPort,
		Actions:  actions,
	}
	if e.BufferID == southbound.NoBuffer {
		out.Frame = e.Frame
	}
	if err := dp.SendPacketOut(ctx, out); err != nil {
		metrics.SouthboundErrors.WithLabelValues("send_packet_out").Inc()
		c.logger.Warn("packet-out failed", "switch", e.Switch, "error", err)
	}
}
