// Package main runs a demo client against the telemetry websocket: it creates
// a plan, streams a short drive through Sydney, and prints the speed readings
// the server echoes back.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type fix struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	TS  string  `json:"ts"`
}

type reading struct {
	SpeedKmh float64 `json:"speedKmh"`
	DistM    float64 `json:"distM"`
	TS       string  `json:"ts"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a plan to attach telemetry to
	body := []byte(`{"name":"ws demo"}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/plans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var plan struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		log.Fatal(err)
	}
	log.Printf("Plan ID: %s", plan.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/telemetry/ws", RawQuery: "planId=" + plan.ID}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// A short drive north along George St, one fix per second.
	lat, lng := -33.8736, 151.2069
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		f := fix{Lat: lat, Lng: lng, TS: now.Format(time.RFC3339)}
		if err := c.WriteJSON(f); err != nil {
			log.Fatal("write:", err)
		}
		var r reading
		if err := c.ReadJSON(&r); err != nil {
			log.Fatal("read:", err)
		}
		log.Printf("WS <- %.1f km/h over %.0f m", r.SpeedKmh, r.DistM)
		lat += 0.0001
		now = now.Add(time.Second)
	}

	// The REST surface sees the same reading
	lreq, _ := http.NewRequest(http.MethodGet, base+"/v1/telemetry/latest?planId="+plan.ID, nil)
	lreq.Header.Set("X-Tenant-Id", "t_demo")
	lresp, err := http.DefaultClient.Do(lreq)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lresp.Body.Close() }()
	var latest map[string]any
	_ = json.NewDecoder(lresp.Body).Decode(&latest)
	log.Printf("latest: %v", latest)
}
