// Package topology maintains the controller's view of the network: typed
// switch/host nodes, port-carrying directed edges, the minimum spanning tree
// that confines flooding, and the host learning table.
package topology

import (
	"fmt"
	"net"
	"strings"

	"github.com/reflowd/reflowd/internal/southbound"
)

// NodeKind tags a node as a switch or a host. Graph operations dispatch on
// the tag.
type NodeKind int

const (
	KindSwitch NodeKind = iota
	KindHost
)

func (k NodeKind) String() string {
	switch k {
	case KindSwitch:
		return "switch"
	case KindHost:
		return "host"
	default:
		return "unknown"
	}
}

// NodeID is a stable index into the graph's node table. All internal edge
// references are indices, never pointers.
type NodeID int

// NodeRef names a node independently of any particular graph build: either
// a switch identifier or a host MAC.
type NodeRef struct {
	Kind   NodeKind
	Switch southbound.SwitchID // valid when Kind == KindSwitch
	MAC    string              // canonical lower-case form, valid when Kind == KindHost
}

// SwitchRef returns the NodeRef for a switch.
func SwitchRef(id southbound.SwitchID) NodeRef {
	return NodeRef{Kind: KindSwitch, Switch: id}
}

// HostRef returns the NodeRef for a host MAC, canonicalized.
func HostRef(mac net.HardwareAddr) NodeRef {
	return NodeRef{Kind: KindHost, MAC: CanonicalMAC(mac)}
}

// Key returns a unique string form usable as a graph vertex id.
func (r NodeRef) Key() string {
	if r.Kind == KindSwitch {
		return fmt.Sprintf("s:%d", r.Switch)
	}
	return "h:" + r.MAC
}

func (r NodeRef) String() string {
	if r.Kind == KindSwitch {
		return r.Switch.String()
	}
	return r.MAC
}

// CanonicalMAC formats a hardware address in the lower-case colon form used
// as the host map key.
func CanonicalMAC(mac net.HardwareAddr) string {
	return strings.ToLower(mac.String())
}

// Node is one entry of the graph's node table.
type Node struct {
	Ref NodeRef
}

// Edge is a directed adjacency entry. SrcPort is the port on the edge's
// owning node leading to To; DstPort is the port on To leading back. Host
// sides carry port 0.
type Edge struct {
	To      NodeID
	SrcPort uint32
	DstPort uint32
}
