package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

// fakeOptimizer reverses the stop order, which is enough to tell the
// handler saved what the optimizer returned.
type fakeOptimizer struct {
	err   error
	calls int
}

func (f *fakeOptimizer) Optimize(_ context.Context, stops []model.Stop, _ model.OptimizeRequest) ([]model.OptimizedStop, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.OptimizedStop, 0, len(stops))
	for i := len(stops) - 1; i >= 0; i-- {
		out = append(out, model.OptimizedStop{
			ID: stops[i].ID, Address: stops[i].Address, Seq: len(stops) - 1 - i,
			TravelTimeToNext: "5 mins",
		})
	}
	return out, nil
}

func createPlan(t *testing.T, s *Server, addresses ...string) model.Plan {
	t.Helper()
	stops := make([]model.StopIn, 0, len(addresses))
	for _, a := range addresses {
		stops = append(stops, model.StopIn{Address: a})
	}
	b, _ := json.Marshal(model.PlanIn{Name: "test", Stops: stops})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	s.PlansHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create plan: got %d body %s", rr.Code, rr.Body.String())
	}
	var plan model.Plan
	if err := json.Unmarshal(rr.Body.Bytes(), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	return plan
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestPlanLifecycle(t *testing.T) {
	s := newTestServer(t)
	plan := createPlan(t, s, "1 George St, Sydney", "50 Collins St, Melbourne")

	// GET by id
	rr := httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/plans/"+plan.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("get plan: got %d", rr.Code)
	}

	// list
	rr = httptest.NewRecorder()
	s.PlansHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/plans?limit=5", nil))
	if rr.Code != 200 {
		t.Fatalf("list plans: got %d", rr.Code)
	}

	// delete
	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/plans/"+plan.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete plan: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/plans/"+plan.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get deleted plan: got %d", rr.Code)
	}
}

func TestStopsAddRemove(t *testing.T) {
	s := newTestServer(t)
	plan := createPlan(t, s)
	base := "/v1/plans/" + plan.ID + "/stops"

	post := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, base, bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		s.PlanByIDHandler(rr, req)
		return rr
	}

	if rr := post(`{"address":"1 George St","role":"start"}`); rr.Code != http.StatusCreated {
		t.Fatalf("add start: got %d body %s", rr.Code, rr.Body.String())
	}
	if rr := post(`{"address":"2 Pitt St"}`); rr.Code != http.StatusCreated {
		t.Fatalf("add via: got %d", rr.Code)
	}
	// second start replaces the first
	if rr := post(`{"address":"3 Kent St","role":"start"}`); rr.Code != http.StatusCreated {
		t.Fatalf("replace start: got %d", rr.Code)
	}
	if rr := post(`{"address":"   "}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("blank address: got %d", rr.Code)
	}

	rr := httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/plans/"+plan.ID, nil))
	var got model.Plan
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if len(got.Stops) != 2 {
		t.Fatalf("stops after replace: got %d want 2", len(got.Stops))
	}
	starts := 0
	var viaID string
	for _, st := range got.Stops {
		if st.Role == model.RoleStart {
			starts++
			if st.Address != "3 Kent St" {
				t.Fatalf("start address: got %q", st.Address)
			}
		} else {
			viaID = st.ID
		}
	}
	if starts != 1 {
		t.Fatalf("start count: got %d", starts)
	}

	// remove one stop
	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodDelete, base+"/"+viaID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("remove stop: got %d", rr.Code)
	}
	// clear the rest
	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodDelete, base, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("clear stops: got %d", rr.Code)
	}
}

func TestOptimizeSuccess(t *testing.T) {
	s := newTestServer(t)
	fake := &fakeOptimizer{}
	s.Planner = fake
	plan := createPlan(t, s, "1 George St", "2 Pitt St", "3 Kent St")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/"+plan.ID+"/optimize", bytes.NewReader([]byte(`{"roundTrip":false}`)))
	req.Header.Set("Content-Type", "application/json")
	s.PlanByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("optimize: got %d body %s", rr.Code, rr.Body.String())
	}
	var opt model.Optimization
	_ = json.Unmarshal(rr.Body.Bytes(), &opt)
	if opt.Status != model.OptimizationSucceeded {
		t.Fatalf("status: got %q", opt.Status)
	}
	if len(opt.Stops) != 3 || opt.Stops[0].Address != "3 Kent St" {
		t.Fatalf("stops: got %+v", opt.Stops)
	}
	if fake.calls != 1 {
		t.Fatalf("optimizer calls: got %d", fake.calls)
	}

	// GET /optimization returns the saved result
	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/plans/"+plan.ID+"/optimization", nil))
	if rr.Code != 200 {
		t.Fatalf("latest optimization: got %d", rr.Code)
	}
}

func TestOptimizeFailure(t *testing.T) {
	s := newTestServer(t)
	s.Planner = &fakeOptimizer{err: fmt.Errorf("model unavailable")}
	plan := createPlan(t, s, "1 George St", "2 Pitt St")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/"+plan.ID+"/optimize", nil)
	s.PlanByIDHandler(rr, req)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("optimize failure: got %d", rr.Code)
	}
	var opt model.Optimization
	_ = json.Unmarshal(rr.Body.Bytes(), &opt)
	if opt.Status != model.OptimizationFailed || opt.Error == "" {
		t.Fatalf("failed job: %+v", opt)
	}

	// a failed job releases the pending slot
	s.Planner = &fakeOptimizer{}
	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/plans/"+plan.ID+"/optimize", nil))
	if rr.Code != 200 {
		t.Fatalf("retry after failure: got %d body %s", rr.Code, rr.Body.String())
	}
}

func TestOptimizeGuards(t *testing.T) {
	s := newTestServer(t)

	// no planner configured
	plan := createPlan(t, s, "1 George St", "2 Pitt St")
	rr := httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/plans/"+plan.ID+"/optimize", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("no planner: got %d", rr.Code)
	}

	s.Planner = &fakeOptimizer{}
	// too few stops
	small := createPlan(t, s, "1 George St")
	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/plans/"+small.ID+"/optimize", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("too few stops: got %d", rr.Code)
	}
	// unknown plan
	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/plans/nope/optimize", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown plan: got %d", rr.Code)
	}
	// bad model name
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/"+plan.ID+"/optimize", bytes.NewReader([]byte(`{"model":"gpt-4o"}`)))
	req.Header.Set("Content-Type", "application/json")
	s.PlanByIDHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad model: got %d", rr.Code)
	}
}

func TestThemePreference(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.ThemeHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/preferences/theme", nil))
	if rr.Code != 200 {
		t.Fatalf("get theme: got %d", rr.Code)
	}
	var pref model.ThemePreference
	_ = json.Unmarshal(rr.Body.Bytes(), &pref)
	if pref.Theme != "light" {
		t.Fatalf("default theme: got %q", pref.Theme)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/preferences/theme", bytes.NewReader([]byte(`{"theme":"dark"}`)))
	s.ThemeHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("put theme: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ThemeHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/preferences/theme", nil))
	_ = json.Unmarshal(rr.Body.Bytes(), &pref)
	if pref.Theme != "dark" {
		t.Fatalf("saved theme: got %q", pref.Theme)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/v1/preferences/theme", bytes.NewReader([]byte(`{"theme":"sepia"}`)))
	s.ThemeHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid theme: got %d", rr.Code)
	}
}

func TestStations(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.StationsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/stations", nil))
	if rr.Code != 200 {
		t.Fatalf("stations: got %d", rr.Code)
	}
	var out struct {
		Items []model.Station `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if len(out.Items) == 0 {
		t.Fatalf("stations: empty list")
	}
}

func TestSubscriptionsAdminOnly(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"url":"https://example.com/hook","events":["optimization.succeeded"],"secret":"s1"}`)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body))
	req.Header.Set("X-Role", "driver")
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin create: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("admin create: got %d body %s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 {
		t.Fatalf("list subscriptions: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete subscription: got %d", rr.Code)
	}
}

func TestTelemetryLatest(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.TelemetryLatestHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/telemetry/latest?planId=p1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("no telemetry: got %d", rr.Code)
	}

	s.Telemetry.Upsert(LatestTelemetry{Tenant: "t_demo", PlanID: "p1", Lat: -33.87, Lng: 151.21, SpeedKmh: 42})
	rr = httptest.NewRecorder()
	s.TelemetryLatestHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/telemetry/latest?planId=p1", nil))
	if rr.Code != 200 {
		t.Fatalf("latest telemetry: got %d", rr.Code)
	}
	var got LatestTelemetry
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if got.SpeedKmh != 42 {
		t.Fatalf("speed: got %v", got.SpeedKmh)
	}
}

// ctxStore refuses writes on a dead context, the way a real database does.
type ctxStore struct {
	store.Store
}

func (c *ctxStore) FailOptimization(ctx context.Context, tenant, optID, errMsg string) (model.Optimization, error) {
	if err := ctx.Err(); err != nil {
		return model.Optimization{}, err
	}
	return c.Store.FailOptimization(ctx, tenant, optID, errMsg)
}

func (c *ctxStore) CompleteOptimization(ctx context.Context, tenant, optID string, stops []model.OptimizedStop) (model.Optimization, error) {
	if err := ctx.Err(); err != nil {
		return model.Optimization{}, err
	}
	return c.Store.CompleteOptimization(ctx, tenant, optID, stops)
}

// droppingOptimizer simulates the client hanging up mid-call.
type droppingOptimizer struct {
	cancel context.CancelFunc
}

func (d *droppingOptimizer) Optimize(ctx context.Context, _ []model.Stop, _ model.OptimizeRequest) ([]model.OptimizedStop, error) {
	d.cancel()
	return nil, ctx.Err()
}

func TestOptimizeClientGoneStillFinalizes(t *testing.T) {
	s := newTestServer(t)
	s.Store = &ctxStore{Store: s.Store}
	plan := createPlan(t, s, "1 George St", "2 Pitt St")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Planner = &droppingOptimizer{cancel: cancel}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/"+plan.ID+"/optimize", nil).WithContext(ctx)
	s.PlanByIDHandler(rr, req)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("aborted optimize: got %d body %s", rr.Code, rr.Body.String())
	}
	var opt model.Optimization
	_ = json.Unmarshal(rr.Body.Bytes(), &opt)
	if opt.Status != model.OptimizationFailed {
		t.Fatalf("job not finalized: %+v", opt)
	}

	// the pending slot is free again
	s.Planner = &fakeOptimizer{}
	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/plans/"+plan.ID+"/optimize", nil))
	if rr.Code != 200 {
		t.Fatalf("retry after aborted run: got %d body %s", rr.Code, rr.Body.String())
	}
}
