package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/reflowd/reflowd/internal/flow"
	"github.com/reflowd/reflowd/internal/metrics"
	"github.com/reflowd/reflowd/internal/southbound"
	"github.com/reflowd/reflowd/internal/topology"
)

// Installer pushes per-hop forwarding rules along chosen paths. It is
// stateless; re-installing the same path is harmless because the switch
// replaces rules with identical matches.
type Installer struct {
	registry *southbound.Registry
	logger   *slog.Logger
}

// NewInstaller creates an installer sending through the given registry.
func NewInstaller(registry *southbound.Registry, logger *slog.Logger) *Installer {
	return &Installer{registry: registry, logger: logger}
}

// InstallBidirectional installs rules for the forward path under key and
// for the reversed path under the reply key (MACs swapped, same transport
// ports, which the source uses to demultiplex replies).
func (i *Installer) InstallBidirectional(ctx context.Context, snap *topology.Snapshot, path []topology.NodeRef, key flow.Key) error {
	if err := i.InstallPath(ctx, snap, path, key); err != nil {
		return err
	}
	return i.InstallPath(ctx, snap, reversePath(path), key.Reversed())
}

// InstallPath emits one forwarding rule per switch hop: match the flow key,
// output toward the next node. Host nodes are skipped.
func (i *Installer) InstallPath(ctx context.Context, snap *topology.Snapshot, path []topology.NodeRef, key flow.Key) error {
	match, err := matchFromKey(key)
	if err != nil {
		return err
	}

	for idx := 0; idx+1 < len(path); idx++ {
		cur, next := path[idx], path[idx+1]
		if cur.Kind != topology.KindSwitch {
			continue
		}
		outPort, ok := snap.EdgePort(cur, next)
		if !ok {
			i.logger.Warn("no port toward next hop, skipping rule",
				"switch", cur.Switch, "next", next.String(), "flow", key.String())
			continue
		}
		dp, err := i.registry.Get(cur.Switch)
		if err != nil {
			i.logger.Warn("switch not registered, skipping rule",
				"switch", cur.Switch, "flow", key.String())
			continue
		}
		rule := southbound.FlowRule{
			Match:    match,
			Actions:  []southbound.Action{southbound.Output(outPort)},
			Priority: southbound.PriorityFlow,
		}
		if err := dp.InstallFlowRule(ctx, rule); err != nil {
			metrics.SouthboundErrors.WithLabelValues("install_flow_rule").Inc()
			i.logger.Warn("flow rule install failed",
				"switch", cur.Switch, "flow", key.String(), "error", err)
		}
	}
	return nil
}

// matchFromKey builds the wire match for a flow key.
func matchFromKey(key flow.Key) (southbound.Match, error) {
	src, err := net.ParseMAC(key.SrcMAC)
	if err != nil {
		return southbound.Match{}, fmt.Errorf("parsing flow source MAC %q: %w", key.SrcMAC, err)
	}
	dst, err := net.ParseMAC(key.DstMAC)
	if err != nil {
		return southbound.Match{}, fmt.Errorf("parsing flow destination MAC %q: %w", key.DstMAC, err)
	}
	return southbound.Match{
		SrcMAC: src,
		DstMAC: dst,
		TpSrc:  key.TpSrc,
		TpDst:  key.TpDst,
	}, nil
}

func reversePath(path []topology.NodeRef) []topology.NodeRef {
	out := make([]topology.NodeRef, len(path))
	for i, ref := range path {
		out[len(path)-1-i] = ref
	}
	return out
}
