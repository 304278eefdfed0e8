package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reflowd/reflowd/internal/config"
	"github.com/reflowd/reflowd/internal/flow"
	"github.com/reflowd/reflowd/internal/link"
	"github.com/reflowd/reflowd/internal/southbound"
	"github.com/reflowd/reflowd/internal/southbound/southboundtest"
	"github.com/reflowd/reflowd/internal/topology"
)

func testServer(t *testing.T) (*Server, *flow.Store, *link.Store) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	cfg := config.Default()

	registry := southbound.NewRegistry()
	hosts := topology.NewHostTable()
	topo := topology.NewStore(registry, hosts, logger)
	flows := flow.NewStore(cfg.DesiredRateBytes(), cfg.Routing.ActiveCountdownTicks)
	links := link.NewStore(cfg.Stats.IntervalSeconds, logger)

	ctx := context.Background()
	for _, id := range []southbound.SwitchID{1, 2, 3} {
		registry.Add(southboundtest.NewFakeDatapath(id))
		topo.AddSwitch(ctx, id)
	}
	topo.AddLink(ctx, 1, 2, 1, 1)
	topo.AddLink(ctx, 1, 3, 2, 1)
	topo.AddLink(ctx, 2, 3, 2, 2)

	h1, _ := net.ParseMAC("00:00:00:00:00:01")
	hosts.Learn(h1, 1, 10)
	topo.RefreshHosts(ctx)

	return NewServer(cfg, registry, topo, hosts, flows, links, logger), flows, links
}

func doRequest(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandleHealth(t *testing.T) {
	s, _, _ := testServer(t)
	rec := doRequest(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["switches"].(float64) != 3 {
		t.Errorf("switches = %v, want 3", body["switches"])
	}
}

func TestHandleListSwitches(t *testing.T) {
	s, _, _ := testServer(t)
	rec := doRequest(t, s, "/api/v1/switches")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body []switchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body) != 3 {
		t.Fatalf("switches = %d, want 3", len(body))
	}
	// The triangle blocks the 2<->3 link; switch 2 has a blocked port.
	var s2 *switchResponse
	for i := range body {
		if body[i].ID == 2 {
			s2 = &body[i]
		}
	}
	if s2 == nil || len(s2.BlockedPorts) != 1 {
		t.Errorf("switch 2 = %+v, want one blocked port", s2)
	}
}

func TestHandleListLinksAndFlows(t *testing.T) {
	s, flows, links := testServer(t)

	links.UpdatePortStats(1, 3, 5000, 1_250_000, time.Now())
	src, _ := net.ParseMAC("00:00:00:00:00:01")
	dst, _ := net.ParseMAC("00:00:00:00:00:02")
	flows.UpdateFromStats(southbound.FlowStatsEntry{
		Match:       southbound.Match{SrcMAC: src, DstMAC: dst, TpSrc: 1000, TpDst: 2000},
		ByteCount:   1_000_000,
		DurationSec: 10,
	}, time.Now())

	rec := doRequest(t, s, "/api/v1/links")
	var linkBody []linkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &linkBody); err != nil {
		t.Fatalf("decoding links: %v", err)
	}
	if len(linkBody) != 1 || linkBody[0].CapacityBps != 1_250_000 {
		t.Errorf("links = %+v, want one 1.25MB/s record", linkBody)
	}

	rec = doRequest(t, s, "/api/v1/flows")
	var flowBody []flowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &flowBody); err != nil {
		t.Fatalf("decoding flows: %v", err)
	}
	if len(flowBody) != 1 {
		t.Fatalf("flows = %d, want 1", len(flowBody))
	}
	if flowBody[0].RateBps != 100000 || !flowBody[0].Active {
		t.Errorf("flow = %+v, want active at 100000 B/s", flowBody[0])
	}
}

func TestHandleTopology(t *testing.T) {
	s, _, _ := testServer(t)
	rec := doRequest(t, s, "/api/v1/topology")

	var body topologyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding topology: %v", err)
	}
	if len(body.Switches) != 3 || len(body.Hosts) != 1 {
		t.Errorf("topology = %d switches / %d hosts, want 3 / 1", len(body.Switches), len(body.Hosts))
	}
	// 6 directed switch edges + 2 host edges.
	if len(body.Edges) != 8 {
		t.Errorf("edges = %d, want 8", len(body.Edges))
	}
	inTree := 0
	for _, e := range body.Edges {
		if e.InTree {
			inTree++
		}
	}
	if inTree != 4 {
		t.Errorf("tree edges = %d, want 4 (two links, both directions)", inTree)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := testServer(t)
	rec := doRequest(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
