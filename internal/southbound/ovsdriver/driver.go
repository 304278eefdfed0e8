// Package ovsdriver implements the southbound Datapath against a local
// Open vSwitch bridge using the OVS control programs. It is a poll-mode
// driver: rule pushes, flood toggles, and statistics work; packet-in and
// packet-out need a live OpenFlow channel and are reported as unsupported.
// Topology and packet events come from whatever owns that channel.
package ovsdriver

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/digitalocean/go-openvswitch/ovs"

	"github.com/reflowd/reflowd/internal/events"
	"github.com/reflowd/reflowd/internal/southbound"
)

// ErrUnsupported is returned for operations that need an OpenFlow channel.
var ErrUnsupported = errors.New("ovsdriver: operation needs an OpenFlow channel")

// openFlowAPI is the slice of ovs.Client.OpenFlow the driver uses,
// extracted for tests.
type openFlowAPI interface {
	AddFlow(bridge string, f *ovs.Flow) error
	ModPort(bridge string, port int, action ovs.PortAction) error
	DumpPorts(bridge string) ([]*ovs.PortStats, error)
	DumpFlows(bridge string) ([]*ovs.Flow, error)
	DumpAggregate(bridge string, f *ovs.MatchFlow) (*ovs.FlowStats, error)
}

// installedFlow remembers a pushed rule so poll-mode flow statistics can be
// rebuilt from per-cookie aggregates.
type installedFlow struct {
	match       southbound.Match
	priority    int
	installedAt time.Time
}

// Driver drives one bridge as one switch.
type Driver struct {
	id     southbound.SwitchID
	bridge string
	ofctl  openFlowAPI
	inbox  *events.Inbox
	logger *slog.Logger

	mu        sync.Mutex
	installed map[uint64]installedFlow
}

// New creates a driver for the bridge, publishing statistics replies into
// the controller inbox. Pass client.OpenFlow of an ovs.Client built with
// ovs.New (plus ovs.Sudo() where the control programs need it).
func New(id southbound.SwitchID, bridge string, ofctl openFlowAPI, inbox *events.Inbox, logger *slog.Logger) *Driver {
	return &Driver{
		id:        id,
		bridge:    bridge,
		ofctl:     ofctl,
		inbox:     inbox,
		logger:    logger,
		installed: make(map[uint64]installedFlow),
	}
}

func (d *Driver) ID() southbound.SwitchID { return d.id }

// InstallFlowRule translates the rule into OVS flows. A transport-port
// match needs a concrete IP protocol on the wire, so a keyed rule becomes
// one TCP and one UDP flow sharing a cookie; the aggregate per cookie still
// counts the whole flow.
func (d *Driver) InstallFlowRule(_ context.Context, rule southbound.FlowRule) error {
	actions, err := ovsActions(rule.Actions)
	if err != nil {
		return err
	}

	cookie := cookieForMatch(rule.Match)
	base := ovs.Flow{
		Priority: rule.Priority,
		Cookie:   cookie,
		Actions:  actions,
	}

	var flows []*ovs.Flow
	if rule.Match.TpSrc != 0 || rule.Match.TpDst != 0 {
		for _, proto := range []ovs.Protocol{ovs.ProtocolTCPv4, ovs.ProtocolUDPv4} {
			f := base
			f.Protocol = proto
			f.Matches = ovsMatches(rule.Match)
			flows = append(flows, &f)
		}
	} else {
		f := base
		f.Matches = ovsMatches(rule.Match)
		flows = append(flows, &f)
	}

	for _, f := range flows {
		if err := d.ofctl.AddFlow(d.bridge, f); err != nil {
			return fmt.Errorf("adding flow to bridge %s: %w", d.bridge, err)
		}
	}

	if rule.Priority == southbound.PriorityFlow {
		d.mu.Lock()
		if _, ok := d.installed[cookie]; !ok {
			d.installed[cookie] = installedFlow{
				match:       rule.Match,
				priority:    rule.Priority,
				installedAt: time.Now(),
			}
		}
		d.mu.Unlock()
	}
	return nil
}

func (d *Driver) SetPortFlood(_ context.Context, port uint32, enabled bool) error {
	action := ovs.PortActionNoFlood
	if enabled {
		action = ovs.PortActionFlood
	}
	if err := d.ofctl.ModPort(d.bridge, int(port), action); err != nil {
		return fmt.Errorf("modifying port %d on bridge %s: %w", port, d.bridge, err)
	}
	return nil
}

// RequestFlowStats aggregates counters per remembered cookie and publishes
// a flow statistics reply. Rules that vanished from the bridge are pruned.
func (d *Driver) RequestFlowStats(_ context.Context) error {
	live, err := d.ofctl.DumpFlows(d.bridge)
	if err != nil {
		return fmt.Errorf("dumping flows on bridge %s: %w", d.bridge, err)
	}
	liveCookies := make(map[uint64]struct{}, len(live))
	for _, f := range live {
		liveCookies[f.Cookie] = struct{}{}
	}

	d.mu.Lock()
	tracked := make(map[uint64]installedFlow, len(d.installed))
	for cookie, fl := range d.installed {
		if _, ok := liveCookies[cookie]; !ok {
			delete(d.installed, cookie)
			continue
		}
		tracked[cookie] = fl
	}
	d.mu.Unlock()

	now := time.Now()
	entries := make([]southbound.FlowStatsEntry, 0, len(tracked))
	for cookie, fl := range tracked {
		stats, err := d.ofctl.DumpAggregate(d.bridge, &ovs.MatchFlow{
			Cookie:     cookie,
			CookieMask: ^uint64(0),
			Table:      ovs.AnyTable,
		})
		if err != nil {
			d.logger.Warn("aggregate dump failed", "bridge", d.bridge, "error", err)
			continue
		}
		entries = append(entries, southbound.FlowStatsEntry{
			Match:       fl.match,
			Priority:    fl.priority,
			ByteCount:   stats.ByteCount,
			PacketCount: stats.PacketCount,
			DurationSec: uint32(now.Sub(fl.installedAt).Seconds()),
		})
	}

	d.inbox.Publish(events.FlowStatsReply{Switch: d.id, Entries: entries})
	return nil
}

// RequestPortStats publishes one port statistics reply from a port dump.
func (d *Driver) RequestPortStats(_ context.Context) error {
	ports, err := d.ofctl.DumpPorts(d.bridge)
	if err != nil {
		return fmt.Errorf("dumping ports on bridge %s: %w", d.bridge, err)
	}

	entries := make([]southbound.PortStatsEntry, 0, len(ports))
	for _, p := range ports {
		if p.PortID < 0 {
			// LOCAL and other pseudo ports are not topology links.
			continue
		}
		entries = append(entries, southbound.PortStatsEntry{
			PortNo:  uint32(p.PortID),
			RxBytes: p.Received.Bytes,
			TxBytes: p.Transmitted.Bytes,
		})
	}

	d.inbox.Publish(events.PortStatsReply{Switch: d.id, Entries: entries})
	return nil
}

// SendPacketOut is unavailable without an OpenFlow channel.
func (d *Driver) SendPacketOut(context.Context, southbound.PacketOut) error {
	return ErrUnsupported
}

// ovsMatches translates a match to OVS match clauses.
func ovsMatches(m southbound.Match) []ovs.Match {
	var out []ovs.Match
	if m.EtherType != 0 {
		out = append(out, ovs.DataLinkType(m.EtherType))
	}
	if len(m.SrcMAC) != 0 {
		out = append(out, ovs.DataLinkSource(m.SrcMAC.String()))
	}
	if len(m.DstMAC) != 0 {
		out = append(out, ovs.DataLinkDestination(m.DstMAC.String()))
	}
	if m.TpSrc != 0 {
		out = append(out, ovs.TransportSourcePort(m.TpSrc))
	}
	if m.TpDst != 0 {
		out = append(out, ovs.TransportDestinationPort(m.TpDst))
	}
	return out
}

// ovsActions translates forwarding actions to OVS actions.
func ovsActions(actions []southbound.Action) ([]ovs.Action, error) {
	out := make([]ovs.Action, 0, len(actions))
	for _, a := range actions {
		switch a.Type {
		case southbound.ActionOutput:
			out = append(out, ovs.Output(int(a.Port)))
		case southbound.ActionFlood:
			out = append(out, ovs.Flood())
		case southbound.ActionDrop:
			out = append(out, ovs.Drop())
		case southbound.ActionTable:
			return nil, ErrUnsupported
		default:
			return nil, fmt.Errorf("ovsdriver: unknown action type %d", a.Type)
		}
	}
	return out, nil
}

// cookieForMatch derives a stable cookie from the flow key fields.
func cookieForMatch(m southbound.Match) uint64 {
	h := fnv.New64a()
	h.Write(m.SrcMAC)
	h.Write(m.DstMAC)
	h.Write([]byte{
		byte(m.TpSrc >> 8), byte(m.TpSrc),
		byte(m.TpDst >> 8), byte(m.TpDst),
		byte(m.EtherType >> 8), byte(m.EtherType),
	})
	return h.Sum64()
}
