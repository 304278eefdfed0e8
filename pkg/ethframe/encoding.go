package ethframe

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Frame is a decoded Ethernet header plus its payload.
type Frame struct {
	DstMAC    net.HardwareAddr
	SrcMAC    net.HardwareAddr
	EtherType EtherType
	VLANID    uint16 // 0 when untagged
	Payload   []byte
}

// TransportPorts holds the L4 port pair extracted from a TCP or UDP segment.
type TransportPorts struct {
	Protocol IPProtocol
	Src      uint16
	Dst      uint16
}

// Parse decodes the Ethernet header of a raw frame. A single 802.1Q tag is
// unwrapped; the reported EtherType is always the inner one.
func Parse(b []byte) (*Frame, error) {
	if len(b) < EthernetHeaderLen {
		return nil, fmt.Errorf("frame too short: %d bytes, need %d", len(b), EthernetHeaderLen)
	}

	f := &Frame{
		DstMAC:    net.HardwareAddr(append([]byte(nil), b[0:6]...)),
		SrcMAC:    net.HardwareAddr(append([]byte(nil), b[6:12]...)),
		EtherType: EtherType(binary.BigEndian.Uint16(b[12:14])),
		Payload:   b[EthernetHeaderLen:],
	}

	if f.EtherType == EtherTypeVLAN {
		if len(b) < EthernetHeaderLen+VLANTagLen {
			return nil, fmt.Errorf("tagged frame too short: %d bytes", len(b))
		}
		f.VLANID = binary.BigEndian.Uint16(b[14:16]) & 0x0fff
		f.EtherType = EtherType(binary.BigEndian.Uint16(b[16:18]))
		f.Payload = b[EthernetHeaderLen+VLANTagLen:]
	}

	return f, nil
}

// IsBroadcast reports whether the frame is addressed to ff:ff:ff:ff:ff:ff.
func (f *Frame) IsBroadcast() bool {
	for _, octet := range f.DstMAC {
		if octet != 0xff {
			return false
		}
	}
	return len(f.DstMAC) == 6
}

// IsDiscovery reports whether the frame belongs to the control-plane
// discovery protocol and must not be learned or forwarded.
func (f *Frame) IsDiscovery() bool {
	return f.EtherType == EtherTypeLLDP
}

// Transport extracts the TCP/UDP port pair from an IPv4 payload. The second
// return value is false when the frame carries no identifiable L4 ports
// (non-IPv4, fragments past the first, or protocols other than TCP/UDP).
func (f *Frame) Transport() (TransportPorts, bool) {
	if f.EtherType != EtherTypeIPv4 {
		return TransportPorts{}, false
	}
	p := f.Payload
	if len(p) < IPv4MinHeaderLen {
		return TransportPorts{}, false
	}
	if version := p[0] >> 4; version != 4 {
		return TransportPorts{}, false
	}
	ihl := int(p[0]&0x0f) * 4
	if ihl < IPv4MinHeaderLen || len(p) < ihl+4 {
		return TransportPorts{}, false
	}
	// Non-first fragments carry no L4 header.
	if fragOffset := binary.BigEndian.Uint16(p[6:8]) & 0x1fff; fragOffset != 0 {
		return TransportPorts{}, false
	}

	proto := IPProtocol(p[9])
	if proto != IPProtocolTCP && proto != IPProtocolUDP {
		return TransportPorts{}, false
	}

	l4 := p[ihl:]
	return TransportPorts{
		Protocol: proto,
		Src:      binary.BigEndian.Uint16(l4[0:2]),
		Dst:      binary.BigEndian.Uint16(l4[2:4]),
	}, true
}
