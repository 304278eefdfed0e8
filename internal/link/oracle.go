// Package link tracks per-directed-edge state: configured capacity,
// measured usage, and the number of flows routed across the edge. The
// capacity itself comes from an external oracle document maintained by the
// experiment harness; the controller only ever reads it.
package link

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/reflowd/reflowd/internal/southbound"
)

// bytesPerMbps converts the oracle's Mbps figures to the bytes-per-second
// scale used for comparisons against measured usage.
const bytesPerMbps = 1_000_000.0 / 8

// Oracle reads the harness's link bandwidth document: a JSON object mapping
// "{srcID}-{dstID}" to capacity in Mbps, both directions present. A missing
// key means capacity 0; an unreadable document means all capacities 0 until
// it becomes readable again.
type Oracle struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	cached  map[string]float64
	readAt  time.Time
	haveDoc bool
}

// NewOracle creates an oracle reader. A zero ttl re-reads the document on
// every lookup; the low poll rate makes either choice cheap.
func NewOracle(path string, ttl time.Duration, logger *slog.Logger) *Oracle {
	return &Oracle{
		path:   path,
		ttl:    ttl,
		logger: logger,
	}
}

// CapacityBytes returns the configured capacity of the directed edge
// src→dst in bytes per second.
func (o *Oracle) CapacityBytes(src, dst southbound.SwitchID) float64 {
	doc := o.document()
	mbps, ok := doc[fmt.Sprintf("%d-%d", src, dst)]
	if !ok {
		return 0
	}
	return mbps * bytesPerMbps
}

func (o *Oracle) document() map[string]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.haveDoc && o.ttl > 0 && time.Since(o.readAt) < o.ttl {
		return o.cached
	}

	data, err := os.ReadFile(o.path)
	if err != nil {
		o.logger.Warn("capacity oracle unreadable, treating capacities as 0",
			"path", o.path, "error", err)
		o.cached = nil
		o.haveDoc = false
		return nil
	}

	doc := make(map[string]float64)
	if err := json.Unmarshal(data, &doc); err != nil {
		o.logger.Warn("capacity oracle malformed, treating capacities as 0",
			"path", o.path, "error", err)
		o.cached = nil
		o.haveDoc = false
		return nil
	}

	o.cached = doc
	o.readAt = time.Now()
	o.haveDoc = true
	return doc
}
