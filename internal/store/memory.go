package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"taxinav/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu            sync.Mutex
	scenarios     map[string]model.Scenario // id -> scenario
	scenariosTen  map[string][]string       // tenant -> scenario ids
	plans         map[string]model.Plan     // id -> plan
	plansTen      map[string][]string       // tenant -> plan ids
	subs          map[string][]model.Subscription
	deliveries    map[string]*memDelivery
	deliveriesTen map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		scenarios:     map[string]model.Scenario{},
		scenariosTen:  map[string][]string{},
		plans:         map[string]model.Plan{},
		plansTen:      map[string][]string{},
		subs:          map[string][]model.Subscription{},
		deliveries:    map[string]*memDelivery{},
		deliveriesTen: map[string][]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) CreateScenario(ctx context.Context, tenantID string, in model.ScenarioIn) (model.Scenario, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc := model.Scenario{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		ScenarioIn: in,
	}
	m.scenarios[sc.ID] = sc
	m.scenariosTen[tenantID] = append(m.scenariosTen[tenantID], sc.ID)
	return sc, nil
}

func (m *Memory) GetScenario(ctx context.Context, tenantID, id string) (model.Scenario, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scenarios[id]
	if !ok || sc.TenantID != tenantID {
		return model.Scenario{}, ErrNotFound
	}
	return sc, nil
}

func (m *Memory) ListScenarios(ctx context.Context, tenantID, cursor string, limit int) ([]model.Scenario, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.scenariosTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.Scenario{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.scenarios[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) DeleteScenario(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scenarios[id]
	if !ok || sc.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.scenarios, id)
	m.scenariosTen[tenantID] = removeID(m.scenariosTen[tenantID], id)
	return nil
}

func (m *Memory) CreatePlan(ctx context.Context, plan model.Plan) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	if plan.CreatedAt == "" {
		plan.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	m.plans[plan.ID] = plan
	m.plansTen[plan.TenantID] = append(m.plansTen[plan.TenantID], plan.ID)
	return plan, nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, id string) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok || p.TenantID != tenantID {
		return model.Plan{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, scenarioID, status, cursor string, limit int) ([]model.Plan, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.plansTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.Plan{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		p := m.plans[ids[i]]
		if scenarioID != "" && p.ScenarioID != scenarioID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
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
	out := []model.Subscription{}
	var next string
	for i := start; i < len(subs) && len(out) < limit; i++ {
		out = append(out, subs[i])
		next = subs[i].ID
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	for i, s := range subs {
		if s.ID == id {
			m.subs[tenantID] = append(subs[:i:i], subs[i+1:]...)
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
			ID:             id,
			TenantID:       tenantID,
			SubscriptionID: subscriptionID,
			EventType:      eventType,
			URL:            url,
			Secret:         secret,
			Payload:        payload,
			Status:         "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.deliveriesTen[tenantID] = append(m.deliveriesTen[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, d := range m.deliveries {
		if len(out) >= limit {
			break
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
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
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
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

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.deliveriesTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []map[string]any{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		d := m.deliveries[ids[i]]
		if status != "" && d.Status != status {
			continue
		}
		item := map[string]any{
			"id":        d.ID,
			"eventType": d.EventType,
			"url":       d.URL,
			"status":    d.Status,
			"attempts":  d.Attempts,
		}
		if d.LastError != "" {
			item["lastError"] = d.LastError
		}
		if d.ResponseCode != 0 {
			item["responseCode"] = d.ResponseCode
		}
		out = append(out, item)
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = "pending"
	d.NextAttemptAt = time.Now()
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func cursorIndex(ids []string, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, id := range ids {
		if id == cursor {
			return i + 1
		}
	}
	return 0
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
