package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	plans    map[string]*model.Plan          // id -> plan
	plansTen map[string][]string             // tenant -> plan ids (insertion order)
	opts     map[string]*model.Optimization  // id -> optimization
	optsPlan map[string][]string             // planId -> optimization ids
	themes   map[string]string               // tenant -> theme
	subs     map[string][]model.Subscription // tenant -> subscriptions

	deliveries map[string]*memDelivery
	deliverIDs []string
}

func NewMemory() *Memory {
	return &Memory{
		plans:      map[string]*model.Plan{},
		plansTen:   map[string][]string{},
		opts:       map[string]*model.Optimization{},
		optsPlan:   map[string][]string{},
		themes:     map[string]string{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// clonePlan snapshots a plan so callers never alias the stored Stops slice.
func clonePlan(p *model.Plan) model.Plan {
	out := *p
	out.Stops = append([]model.Stop(nil), p.Stops...)
	return out
}

func (m *Memory) CreatePlan(ctx context.Context, tenantID string, in model.PlanIn) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &model.Plan{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      strings.TrimSpace(in.Name),
		Status:    "draft",
		Stops:     []model.Stop{},
		CreatedAt: nowRFC3339(),
		UpdatedAt: nowRFC3339(),
	}
	m.plans[p.ID] = p
	m.plansTen[tenantID] = append(m.plansTen[tenantID], p.ID)
	for _, s := range in.Stops {
		m.addStopLocked(p, s)
	}
	return clonePlan(p), nil
}

func (m *Memory) planLocked(tenantID, planID string) (*model.Plan, error) {
	p, ok := m.plans[planID]
	if !ok || p.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, planID string) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.planLocked(tenantID, planID)
	if err != nil {
		return model.Plan{}, err
	}
	return clonePlan(p), nil
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.plansTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.PlanOut{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		p := m.plans[ids[i]]
		out = append(out, model.PlanOut{ID: p.ID, TenantID: p.TenantID, Name: p.Name, Status: p.Status, StopCount: len(p.Stops), UpdatedAt: p.UpdatedAt})
		next = ids[i]
	}
	if start+len(out) >= len(ids) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) DeletePlan(ctx context.Context, tenantID, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.planLocked(tenantID, planID); err != nil {
		return err
	}
	delete(m.plans, planID)
	ids := m.plansTen[tenantID]
	for i, id := range ids {
		if id == planID {
			m.plansTen[tenantID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// addStopLocked appends a stop, replacing any previous start/end holder.
func (m *Memory) addStopLocked(p *model.Plan, in model.StopIn) model.Stop {
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role != model.RoleStart && role != model.RoleEnd {
		role = model.RoleVia
	}
	if role != model.RoleVia {
		// fresh slice: never compact in place under an aliased snapshot
		kept := make([]model.Stop, 0, len(p.Stops))
		for _, s := range p.Stops {
			if s.Role != role {
				kept = append(kept, s)
			}
		}
		p.Stops = kept
	}
	s := model.Stop{ID: uuid.New().String(), Address: strings.TrimSpace(in.Address), Role: role}
	p.Stops = append(p.Stops, s)
	renumber(p)
	p.UpdatedAt = nowRFC3339()
	return p.Stops[len(p.Stops)-1]
}

func renumber(p *model.Plan) {
	for i := range p.Stops {
		p.Stops[i].Seq = i
	}
}

func (m *Memory) AddStop(ctx context.Context, tenantID, planID string, in model.StopIn) (model.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.planLocked(tenantID, planID)
	if err != nil {
		return model.Stop{}, err
	}
	return m.addStopLocked(p, in), nil
}

func (m *Memory) AddStops(ctx context.Context, tenantID, planID string, ins []model.StopIn) (int, int, []model.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.planLocked(tenantID, planID)
	if err != nil {
		return 0, 0, nil, err
	}
	seen := map[string]bool{}
	for _, s := range p.Stops {
		seen[normAddr(s.Address)] = true
	}
	created, skipped := 0, 0
	added := []model.Stop{}
	for _, in := range ins {
		k := normAddr(in.Address)
		if k == "" || seen[k] {
			skipped++
			continue
		}
		seen[k] = true
		added = append(added, m.addStopLocked(p, in))
		created++
	}
	return created, skipped, added, nil
}

func normAddr(a string) string {
	return strings.ToLower(strings.Join(strings.Fields(a), " "))
}

func (m *Memory) RemoveStop(ctx context.Context, tenantID, planID, stopID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.planLocked(tenantID, planID)
	if err != nil {
		return err
	}
	for i, s := range p.Stops {
		if s.ID == stopID {
			p.Stops = append(p.Stops[:i], p.Stops[i+1:]...)
			renumber(p)
			p.UpdatedAt = nowRFC3339()
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ClearStops(ctx context.Context, tenantID, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.planLocked(tenantID, planID)
	if err != nil {
		return err
	}
	p.Stops = []model.Stop{}
	p.Status = "draft"
	p.UpdatedAt = nowRFC3339()
	return nil
}

func (m *Memory) BeginOptimization(ctx context.Context, tenantID, planID, modelName string) (model.Optimization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.planLocked(tenantID, planID)
	if err != nil {
		return model.Optimization{}, err
	}
	for _, oid := range m.optsPlan[planID] {
		if m.opts[oid].Status == model.OptimizationPending {
			return model.Optimization{}, ErrOptimizationPending
		}
	}
	o := &model.Optimization{
		ID:          uuid.New().String(),
		PlanID:      planID,
		TenantID:    tenantID,
		Status:      model.OptimizationPending,
		Model:       modelName,
		RequestedAt: nowRFC3339(),
	}
	m.opts[o.ID] = o
	m.optsPlan[planID] = append(m.optsPlan[planID], o.ID)
	p.Status = "optimizing"
	p.UpdatedAt = nowRFC3339()
	return *o, nil
}

func (m *Memory) CompleteOptimization(ctx context.Context, tenantID, optID string, stops []model.OptimizedStop) (model.Optimization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.opts[optID]
	if !ok || o.TenantID != tenantID {
		return model.Optimization{}, ErrNotFound
	}
	o.Status = model.OptimizationSucceeded
	o.Stops = stops
	o.FinishedAt = nowRFC3339()
	if p, ok := m.plans[o.PlanID]; ok {
		p.Status = "optimized"
		p.UpdatedAt = nowRFC3339()
	}
	return *o, nil
}

func (m *Memory) FailOptimization(ctx context.Context, tenantID, optID, errMsg string) (model.Optimization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.opts[optID]
	if !ok || o.TenantID != tenantID {
		return model.Optimization{}, ErrNotFound
	}
	o.Status = model.OptimizationFailed
	o.Error = errMsg
	o.FinishedAt = nowRFC3339()
	if p, ok := m.plans[o.PlanID]; ok {
		p.Status = "failed"
		p.UpdatedAt = nowRFC3339()
	}
	return *o, nil
}

func (m *Memory) GetOptimization(ctx context.Context, tenantID, optID string) (model.Optimization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.opts[optID]
	if !ok || o.TenantID != tenantID {
		return model.Optimization{}, ErrNotFound
	}
	return *o, nil
}

func (m *Memory) LatestOptimization(ctx context.Context, tenantID, planID string) (model.Optimization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.optsPlan[planID]
	for i := len(ids) - 1; i >= 0; i-- {
		o := m.opts[ids[i]]
		if o.TenantID == tenantID {
			return *o, nil
		}
	}
	return model.Optimization{}, ErrNotFound
}

func (m *Memory) GetThemePreference(ctx context.Context, tenantID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.themes[tenantID]
	if !ok {
		return "light", nil
	}
	return t, nil
}

func (m *Memory) SaveThemePreference(ctx context.Context, tenantID, theme string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.themes[tenantID] = theme
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], sub)
	return sub, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i, s := range subs {
			if s.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(subs) {
		end = len(subs)
	}
	out := append([]model.Subscription{}, subs[start:end]...)
	next := ""
	if end < len(subs) && len(out) > 0 {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	for i, s := range subs {
		if s.ID == id {
			m.subs[tenantID] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, TenantID: tenantID, SubscriptionID: subscriptionID,
			EventType: eventType, URL: url, Secret: secret, Payload: payload,
			Status: "queued",
		},
		NextAttemptAt: time.Now(),
	}
	m.deliverIDs = append(m.deliverIDs, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	ids := append([]string{}, m.deliverIDs...)
	sort.Strings(ids)
	for _, id := range ids {
		d := m.deliveries[id]
		if d == nil || d.Status != "queued" || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
	} else {
		d.Status = "queued"
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}
