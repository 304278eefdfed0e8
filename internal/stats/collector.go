// Package stats runs the per-switch statistics pollers. Each switch that
// comes up gets its own task that periodically requests flow and port
// counters and then signals the end of its round to the event router.
// Replies travel back asynchronously through the transport as events; the
// collector never touches the stores itself.
package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reflowd/reflowd/internal/events"
	"github.com/reflowd/reflowd/internal/metrics"
	"github.com/reflowd/reflowd/internal/southbound"
)

// Collector supervises one polling task per switch.
type Collector struct {
	interval time.Duration
	inbox    *events.Inbox
	logger   *slog.Logger

	mu      sync.Mutex
	cancels map[southbound.SwitchID]context.CancelFunc
	wg      sync.WaitGroup
}

// NewCollector creates a collector polling each switch every interval.
func NewCollector(interval time.Duration, inbox *events.Inbox, logger *slog.Logger) *Collector {
	return &Collector{
		interval: interval,
		inbox:    inbox,
		logger:   logger,
		cancels:  make(map[southbound.SwitchID]context.CancelFunc),
	}
}

// Start launches the polling task for a switch. A second Start for the same
// switch replaces the old task.
func (c *Collector) Start(ctx context.Context, dp southbound.Datapath) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cancel, ok := c.cancels[dp.ID()]; ok {
		cancel()
	}
	taskCtx, cancel := context.WithCancel(ctx)
	c.cancels[dp.ID()] = cancel

	c.wg.Add(1)
	go c.poll(taskCtx, dp)
}

// Stop cancels the polling task of one switch.
func (c *Collector) Stop(id southbound.SwitchID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.cancels[id]; ok {
		cancel()
		delete(c.cancels, id)
	}
}

// Shutdown cancels every task and waits for them to return.
func (c *Collector) Shutdown() {
	c.mu.Lock()
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// poll is one switch's polling loop: request both stat kinds, signal the
// tick, sleep, repeat. One outstanding request pair per switch.
func (c *Collector) poll(ctx context.Context, dp southbound.Datapath) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := dp.RequestFlowStats(ctx); err != nil {
			metrics.SouthboundErrors.WithLabelValues("request_flow_stats").Inc()
			c.logger.Warn("flow stats request failed", "switch", dp.ID(), "error", err)
		}
		if err := dp.RequestPortStats(ctx); err != nil {
			metrics.SouthboundErrors.WithLabelValues("request_port_stats").Inc()
			c.logger.Warn("port stats request failed", "switch", dp.ID(), "error", err)
		}

		// The router decrements flow liveness countdowns and runs the
		// re-routing pass on this signal, keeping every store mutation on
		// its task.
		c.inbox.Publish(events.StatsTick{Switch: dp.ID()})

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
