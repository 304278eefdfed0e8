// Package events defines the southbound event model and the buffered inbox
// that serializes all events into the controller's router task.
package events

import (
	"github.com/reflowd/reflowd/internal/southbound"
)

// Event is a southbound or timer event consumed by the event router.
// Dispatch is by type switch; every event names its kind for logging and
// metrics.
type Event interface {
	Kind() string
}

// SwitchUp announces a switch connection with its control handle and ports.
type SwitchUp struct {
	ID       southbound.SwitchID
	Datapath southbound.Datapath
	Ports    []southbound.PortInfo
}

func (SwitchUp) Kind() string { return "switch_up" }

// SwitchDown announces a switch disconnect.
type SwitchDown struct {
	ID southbound.SwitchID
}

func (SwitchDown) Kind() string { return "switch_down" }

// LinkUp announces a discovered switch-to-switch link. SrcPort is the port
// on Src leading to Dst; DstPort the reverse.
type LinkUp struct {
	Src     southbound.SwitchID
	Dst     southbound.SwitchID
	SrcPort uint32
	DstPort uint32
}

func (LinkUp) Kind() string { return "link_up" }

// LinkDown announces a lost switch-to-switch link.
type LinkDown struct {
	Src southbound.SwitchID
	Dst southbound.SwitchID
}

func (LinkDown) Kind() string { return "link_down" }

// PacketIn carries a data-plane frame punted to the controller.
type PacketIn struct {
	Switch   southbound.SwitchID
	InPort   uint32
	Frame    []byte
	BufferID uint32
}

func (PacketIn) Kind() string { return "packet_in" }

// FlowStatsReply carries one switch's flow counters.
type FlowStatsReply struct {
	Switch  southbound.SwitchID
	Entries []southbound.FlowStatsEntry
}

func (FlowStatsReply) Kind() string { return "flow_stats_reply" }

// PortStatsReply carries one switch's port counters.
type PortStatsReply struct {
	Switch  southbound.SwitchID
	Entries []southbound.PortStatsEntry
}

func (PortStatsReply) Kind() string { return "port_stats_reply" }

// FlowRemoved reports a rule evicted by the switch. The router tolerates and
// ignores it: flow liveness is countdown-driven.
type FlowRemoved struct {
	Switch southbound.SwitchID
	Match  southbound.Match
}

func (FlowRemoved) Kind() string { return "flow_removed" }

// StatsTick marks the end of one collector polling round for a switch. The
// router decrements flow liveness countdowns and runs the re-routing pass on
// this event, keeping all store mutations on the router task.
type StatsTick struct {
	Switch southbound.SwitchID
}

func (StatsTick) Kind() string { return "stats_tick" }
