package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/geo"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/metrics"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// LatestTelemetry holds the most recent fix and computed speed for a device.
type LatestTelemetry struct {
	Tenant   string  `json:"tenantId"`
	PlanID   string  `json:"planId,omitempty"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	SpeedKmh float64 `json:"speedKmh"`
	TS       string  `json:"ts"`
}

// TelemetryCache stores the latest reading per tenant/plan.
type TelemetryCache struct {
	mu sync.Mutex
	// key: tenant|planId
	m map[string]LatestTelemetry
}

func NewTelemetryCache() *TelemetryCache {
	return &TelemetryCache{m: map[string]LatestTelemetry{}}
}

func (c *TelemetryCache) key(tenant, planID string) string { return tenant + "|" + planID }

func (c *TelemetryCache) Upsert(t LatestTelemetry) {
	if t.Tenant == "" {
		return
	}
	c.mu.Lock()
	c.m[c.key(t.Tenant, t.PlanID)] = t
	c.mu.Unlock()
}

func (c *TelemetryCache) Get(tenant, planID string) (LatestTelemetry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.m[c.key(tenant, planID)]
	return t, ok
}

// TelemetryWSHandler handles GET /v1/telemetry/ws. The browser pushes raw
// geolocation fixes; the server computes ground speed against the previous
// fix on the same connection and echoes a reading back per fix.
func (s *Server) TelemetryWSHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	planID := r.URL.Query().Get("planId")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	var prev *geo.Fix
	for {
		var fix model.GeoFix
		if err := conn.ReadJSON(&fix); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		metrics.TelemetryFixes.Inc()

		ts, err := time.Parse(time.RFC3339, fix.TS)
		if err != nil {
			ts = time.Now().UTC()
		}
		cur := geo.Fix{Lat: fix.Lat, Lng: fix.Lng, TS: ts}
		reading := model.SpeedReading{TS: ts.Format(time.RFC3339)}
		if prev != nil {
			reading.SpeedKmh, reading.DistM = geo.SpeedKmh(*prev, cur)
		}
		prev = &cur

		s.Telemetry.Upsert(LatestTelemetry{
			Tenant: p.Tenant, PlanID: planID,
			Lat: fix.Lat, Lng: fix.Lng,
			SpeedKmh: reading.SpeedKmh, TS: reading.TS,
		})
		if err := conn.WriteJSON(reading); err != nil {
			return
		}
	}
}

// TelemetryLatestHandler handles GET /v1/telemetry/latest?planId=...
func (s *Server) TelemetryLatestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	planID := r.URL.Query().Get("planId")
	t, ok := s.Telemetry.Get(p.Tenant, planID)
	if !ok {
		writeProblem(w, http.StatusNotFound, "No telemetry", "no fixes received", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
