package model

// Core domain types for plans, stops and optimization results.

// Stop roles. A plan holds at most one start and one end stop.
const (
	RoleStart = "start"
	RoleEnd   = "end"
	RoleVia   = "via"
)

// Optimization statuses.
const (
	OptimizationPending   = "pending"
	OptimizationSucceeded = "succeeded"
	OptimizationFailed    = "failed"
)

type StopIn struct {
	Address string `json:"address"`
	Role    string `json:"role,omitempty"` // start, end, via (default via)
}

type Stop struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Role    string `json:"role"`
	Seq     int    `json:"seq"`
}

type Plan struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status"` // draft, optimizing, optimized, failed
	Stops     []Stop `json:"stops"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type PlanIn struct {
	Name  string   `json:"name,omitempty"`
	Stops []StopIn `json:"stops,omitempty"`
}

// PlanOut is the listing read model (stops elided).
type PlanOut struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status"`
	StopCount int    `json:"stopCount"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type OptimizeRequest struct {
	Model        string `json:"model,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	RoundTrip    bool   `json:"roundTrip,omitempty"`
}

// OptimizedStop is a stop decorated with the metadata the optimizer returned:
// travel time to the next stop, an optional street-view link, and flags.
type OptimizedStop struct {
	ID               string `json:"id"`
	Address          string `json:"address"`
	Seq              int    `json:"seq"`
	TravelTimeToNext string `json:"travelTimeToNext,omitempty"`
	StreetViewURL    string `json:"streetViewUrl,omitempty"`
	IsStart          bool   `json:"isStart,omitempty"`
	IsEnd            bool   `json:"isEnd,omitempty"`
	Unmatched        bool   `json:"unmatched,omitempty"`
}

type Optimization struct {
	ID          string          `json:"id"`
	PlanID      string          `json:"planId"`
	TenantID    string          `json:"tenantId"`
	Status      string          `json:"status"`
	Model       string          `json:"model,omitempty"`
	Stops       []OptimizedStop `json:"stops,omitempty"`
	Error       string          `json:"error,omitempty"`
	RequestedAt string          `json:"requestedAt,omitempty"`
	FinishedAt  string          `json:"finishedAt,omitempty"`
}

type ImportResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Stops   []Stop   `json:"stops,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// GeoFix is a raw geolocation sample pushed by the browser.
type GeoFix struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	TS  string  `json:"ts"`
}

// SpeedReading is what the telemetry socket echoes back per fix.
type SpeedReading struct {
	SpeedKmh float64 `json:"speedKmh"`
	DistM    float64 `json:"distM"`
	TS       string  `json:"ts"`
}

// Station is a static external radio-station link shown by the UI modal.
type Station struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Genre  string `json:"genre,omitempty"`
	Region string `json:"region,omitempty"`
}

type ThemePreference struct {
	Theme string `json:"theme"` // light or dark
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
