// Package southbound defines the transport abstraction between the
// controller and its switches: the per-switch control handle, the match and
// action model for forwarding rules, and the statistics reply formats.
// Concrete drivers (the OpenFlow channel owned by the harness, or the
// poll-mode Open vSwitch driver) live below this package.
package southbound

import (
	"context"
	"fmt"
	"net"
)

// SwitchID is the stable integer identifier a switch reports for itself.
type SwitchID uint64

func (id SwitchID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// Rule priorities. Per-flow rules sit above the default accept/flood
// program; the discovery drop sits above everything.
const (
	PriorityDefault       = 0
	PriorityFlow          = 1
	PriorityDiscoveryDrop = 100
)

// NoBuffer indicates a packet-out must carry the raw frame because the
// switch did not buffer it.
const NoBuffer uint32 = 0xffffffff

// Match selects the frames of a single transport flow, or — for the
// discovery-drop rule — a bare EtherType. Zero values wildcard a field.
type Match struct {
	SrcMAC    net.HardwareAddr
	DstMAC    net.HardwareAddr
	TpSrc     uint16
	TpDst     uint16
	EtherType uint16
}

func (m Match) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", m.SrcMAC, m.TpSrc, m.DstMAC, m.TpDst)
}

// ActionType enumerates the forwarding actions the controller uses.
type ActionType int

const (
	// ActionOutput forwards out a specific port.
	ActionOutput ActionType = iota
	// ActionFlood forwards out every port with flooding enabled.
	ActionFlood
	// ActionTable re-runs the frame through the switch's flow table.
	ActionTable
	// ActionDrop discards the frame (empty action set on the wire).
	ActionDrop
)

// Action is one forwarding action of a rule or packet-out.
type Action struct {
	Type ActionType
	Port uint32 // meaningful for ActionOutput only
}

// Output returns an output-to-port action.
func Output(port uint32) Action { return Action{Type: ActionOutput, Port: port} }

// Flood returns an output-flood action.
func Flood() Action { return Action{Type: ActionFlood} }

// TableLookup returns an output-table-lookup action.
func TableLookup() Action { return Action{Type: ActionTable} }

// Drop returns a discard action.
func Drop() Action { return Action{Type: ActionDrop} }

// FlowRule is a forwarding rule pushed to one switch.
type FlowRule struct {
	Match    Match
	Actions  []Action
	Priority int
}

// PacketOut re-injects a packet-in into the data plane. Frame is ignored
// when BufferID is a real buffer; it must be set when BufferID == NoBuffer.
type PacketOut struct {
	BufferID uint32
	Frame    []byte
	InPort   uint32
	Actions  []Action
}

// FlowStatsEntry is one flow's counters from a flow statistics reply.
type FlowStatsEntry struct {
	Match       Match
	Priority    int
	ByteCount   uint64
	PacketCount uint64
	DurationSec uint32
}

// PortStatsEntry is one port's counters from a port statistics reply.
type PortStatsEntry struct {
	PortNo  uint32
	RxBytes uint64
	TxBytes uint64
}

// PortInfo describes a switch port announced at switch-up.
type PortInfo struct {
	No   uint32
	Name string
}

// Datapath is the control channel to one switch. Implementations must be
// safe for use from the router and the stats collectors concurrently.
type Datapath interface {
	// ID returns the switch's datapath identifier.
	ID() SwitchID

	// InstallFlowRule pushes a forwarding rule.
	InstallFlowRule(ctx context.Context, rule FlowRule) error

	// SetPortFlood enables or disables flooding out the given port.
	SetPortFlood(ctx context.Context, port uint32, enabled bool) error

	// RequestFlowStats asks for counters of all installed flows. The reply
	// arrives asynchronously as an events.FlowStatsReply.
	RequestFlowStats(ctx context.Context) error

	// RequestPortStats asks for counters of all ports. The reply arrives
	// asynchronously as an events.PortStatsReply.
	RequestPortStats(ctx context.Context) error

	// SendPacketOut re-injects a packet into the data plane.
	SendPacketOut(ctx context.Context, out PacketOut) error
}
