// Package southboundtest provides an in-memory Datapath implementation for
// controller tests: every command is recorded instead of sent.
package southboundtest

import (
	"context"
	"sync"

	"github.com/reflowd/reflowd/internal/southbound"
)

// FloodChange records one SetPortFlood call.
type FloodChange struct {
	Port    uint32
	Enabled bool
}

// FakeDatapath records all southbound commands issued to it.
type FakeDatapath struct {
	id southbound.SwitchID

	mu                sync.Mutex
	rules             []southbound.FlowRule
	floodChanges      []FloodChange
	packetOuts        []southbound.PacketOut
	flowStatsRequests int
	portStatsRequests int

	// Err, when set, is returned by every command.
	Err error
}

// NewFakeDatapath creates a fake handle for the given switch id.
func NewFakeDatapath(id southbound.SwitchID) *FakeDatapath {
	return &FakeDatapath{id: id}
}

func (d *FakeDatapath) ID() southbound.SwitchID { return d.id }

func (d *FakeDatapath) InstallFlowRule(_ context.Context, rule southbound.FlowRule) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.rules = append(d.rules, rule)
	return nil
}

func (d *FakeDatapath) SetPortFlood(_ context.Context, port uint32, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.floodChanges = append(d.floodChanges, FloodChange{Port: port, Enabled: enabled})
	return nil
}

func (d *FakeDatapath) RequestFlowStats(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.flowStatsRequests++
	return nil
}

func (d *FakeDatapath) RequestPortStats(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.portStatsRequests++
	return nil
}

func (d *FakeDatapath) SendPacketOut(_ context.Context, out southbound.PacketOut) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.packetOuts = append(d.packetOuts, out)
	return nil
}

// Rules returns a copy of all installed rules.
func (d *FakeDatapath) Rules() []southbound.FlowRule {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]southbound.FlowRule(nil), d.rules...)
}

// FloodChanges returns a copy of all SetPortFlood calls in order.
func (d *FakeDatapath) FloodChanges() []FloodChange {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]FloodChange(nil), d.floodChanges...)
}

// PacketOuts returns a copy of all packet-out commands.
func (d *FakeDatapath) PacketOuts() []southbound.PacketOut {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]southbound.PacketOut(nil), d.packetOuts...)
}

// StatsRequests returns the number of flow and port stats requests issued.
func (d *FakeDatapath) StatsRequests() (flow, port int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flowStatsRequests, d.portStatsRequests
}

// Reset clears all recorded commands.
func (d *FakeDatapath) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = nil
	d.floodChanges = nil
	d.packetOuts = nil
	d.flowStatsRequests = 0
	d.portStatsRequests = 0
}
