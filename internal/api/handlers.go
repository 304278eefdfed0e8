package api

import (
	"net/http"
	"time"

	"github.com/reflowd/reflowd/internal/topology"
)

// handleHealth returns process health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"timestamp":      time.Now().Unix(),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"switches":       s.registry.Len(),
	})
}

// switchResponse is the JSON representation of a connected switch.
type switchResponse struct {
	ID           uint64   `json:"id"`
	BlockedPorts []uint32 `json:"blocked_ports"`
}

func (s *Server) handleListSwitches(w http.ResponseWriter, r *http.Request) {
	blocked := s.topo.BlockedPorts()
	out := make([]switchResponse, 0)
	for _, id := range s.registry.IDs() {
		resp := switchResponse{ID: uint64(id), BlockedPorts: []uint32{}}
		if ports, ok := blocked[id]; ok {
			resp.BlockedPorts = ports
		}
		out = append(out, resp)
	}
	JSONResponse(w, http.StatusOK, out)
}

// hostResponse is the JSON representation of a learned host.
type hostResponse struct {
	MAC    string `json:"mac"`
	Switch uint64 `json:"switch"`
	Port   uint32 `json:"port"`
}

func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	out := make([]hostResponse, 0, s.hosts.Len())
	for _, h := range s.hosts.Entries() {
		out = append(out, hostResponse{MAC: h.MAC, Switch: uint64(h.Switch), Port: h.Port})
	}
	JSONResponse(w, http.StatusOK, out)
}

// linkResponse is the JSON representation of one directed link.
type linkResponse struct {
	Src           uint64  `json:"src"`
	Dst           uint64  `json:"dst"`
	CapacityBps   float64 `json:"capacity_bytes_per_second"`
	UsageBps      float64 `json:"usage_bytes_per_second"`
	ActiveFlows   int     `json:"active_flows"`
	UpdatedUnixMs int64   `json:"updated_unix_ms"`
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	records := s.links.All()
	out := make([]linkResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, linkResponse{
			Src:           uint64(rec.Src),
			Dst:           uint64(rec.Dst),
			CapacityBps:   rec.CapacityBytes,
			UsageBps:      rec.UsageBytes,
			ActiveFlows:   rec.ActiveFlows,
			UpdatedUnixMs: rec.UpdateTime.UnixMilli(),
		})
	}
	JSONResponse(w, http.StatusOK, out)
}

// flowResponse is the JSON representation of one tracked flow.
type flowResponse struct {
	SrcMAC        string   `json:"src_mac"`
	DstMAC        string   `json:"dst_mac"`
	TpSrc         uint16   `json:"tp_src"`
	TpDst         uint16   `json:"tp_dst"`
	RateBps       float64  `json:"rate_bytes_per_second"`
	DesiredBps    float64  `json:"desired_bytes_per_second"`
	Active        bool     `json:"active"`
	Cooldown      int      `json:"reroute_cooldown"`
	Path          []string `json:"path"`
	UpdatedUnixMs int64    `json:"updated_unix_ms"`
}

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	records := s.flows.All()
	out := make([]flowResponse, 0, len(records))
	for _, rec := range records {
		path := make([]string, 0, len(rec.Path))
		for _, ref := range rec.Path {
			path = append(path, ref.String())
		}
		out = append(out, flowResponse{
			SrcMAC:        rec.Key.SrcMAC,
			DstMAC:        rec.Key.DstMAC,
			TpSrc:         rec.Key.TpSrc,
			TpDst:         rec.Key.TpDst,
			RateBps:       rec.CurrentRate,
			DesiredBps:    rec.DesiredRate,
			Active:        rec.Active,
			Cooldown:      rec.RerouteCooldown,
			Path:          path,
			UpdatedUnixMs: rec.UpdateTime.UnixMilli(),
		})
	}
	JSONResponse(w, http.StatusOK, out)
}

// topologyResponse is the JSON view of the graph and its spanning tree.
type topologyResponse struct {
	Switches []uint64           `json:"switches"`
	Hosts    []string           `json:"hosts"`
	Edges    []topologyEdgeView `json:"edges"`
}

type topologyEdgeView struct {
	From    string `json:"from"`
	To      string `json:"to"`
	SrcPort uint32 `json:"src_port"`
	DstPort uint32 `json:"dst_port"`
	InTree  bool   `json:"in_tree"`
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	snap := s.topo.Snapshot()

	resp := topologyResponse{
		Switches: make([]uint64, 0),
		Hosts:    snap.Hosts(),
		Edges:    make([]topologyEdgeView, 0),
	}
	for _, id := range snap.Switches() {
		resp.Switches = append(resp.Switches, uint64(id))
	}
	for _, e := range snap.Edges() {
		view := topologyEdgeView{
			From:    e.From.String(),
			To:      e.To.String(),
			SrcPort: e.SrcPort,
			DstPort: e.DstPort,
		}
		if e.From.Kind == topology.KindSwitch && e.To.Kind == topology.KindSwitch {
			view.InTree = snap.IsInMST(e.From.Switch, e.To.Switch)
		}
		resp.Edges = append(resp.Edges, view)
	}
	JSONResponse(w, http.StatusOK, resp)
}
