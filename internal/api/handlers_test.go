package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"taxinav/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

// smallScenario is a single taxi segment with one departure, solvable in
// milliseconds.
func smallScenario() model.ScenarioIn {
	return model.ScenarioIn{
		Name:  "small",
		Nodes: []model.NodeID{"1", "2"},
		Edges: []model.EdgeIn{{From: "1", To: "2", LengthM: 100, SpeedMin: 5, SpeedMax: 15}},
		Fleet: []model.AircraftIn{{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "2"}},
		Params: model.Params{
			SeparationM: 5,
		},
	}
}

func createScenario(t *testing.T, s *Server, in model.ScenarioIn) model.Scenario {
	t.Helper()
	b, _ := json.Marshal(in)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/scenarios", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "planner")
	s.ScenariosHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create scenario: got %d body %s", rr.Code, rr.Body.String())
	}
	var sc model.Scenario
	if err := json.Unmarshal(rr.Body.Bytes(), &sc); err != nil {
		t.Fatalf("decode scenario: %v", err)
	}
	return sc
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

func TestScenarioLifecycle(t *testing.T) {
	s := newTestServer(t)
	sc := createScenario(t, s, smallScenario())

	// GET by id
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/scenarios/"+sc.ID, nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.ScenarioByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("get scenario: %d", rr.Code)
	}

	// List
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/scenarios?limit=5", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.ScenariosHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("list scenarios: %d", rr.Code)
	}

	// Delete
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/v1/scenarios/"+sc.ID, nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "admin")
	s.ScenarioByIDHandler(rr, req)
	if rr.Code != 204 {
		t.Fatalf("delete scenario: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/scenarios/"+sc.ID, nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.ScenarioByIDHandler(rr, req)
	if rr.Code != 404 {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestScenarioValidationRejected(t *testing.T) {
	s := newTestServer(t)
	in := smallScenario()
	in.Fleet[0].Role = "cargo"
	b, _ := json.Marshal(in)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/scenarios", bytes.NewReader(b))
	req.Header.Set("X-Tenant-Id", "t_test")
	s.ScenariosHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPlanCreateAndGet(t *testing.T) {
	s := newTestServer(t)
	sc := createScenario(t, s, smallScenario())

	body, _ := json.Marshal(model.PlanRequest{ScenarioID: sc.ID})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "planner")
	s.PlansHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("plan create: got %d body %s", rr.Code, rr.Body.String())
	}
	var plan model.Plan
	if err := json.Unmarshal(rr.Body.Bytes(), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if plan.Status != model.PlanOptimal {
		t.Fatalf("expected optimal plan, got %s (%s)", plan.Status, plan.Error)
	}
	if len(plan.Schedules) != 1 || plan.Schedules[0].RouteIndex != 0 {
		t.Fatalf("bad schedules: %+v", plan.Schedules)
	}

	// GET by id
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/plans/"+plan.ID, nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.PlanByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("plan get: %d", rr.Code)
	}

	// List filtered by status
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/plans?status=optimal", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.PlansHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("plan list: %d", rr.Code)
	}
	var lst struct {
		Items []model.Plan `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &lst); err != nil || len(lst.Items) != 1 {
		t.Fatalf("expected one optimal plan, got %s", rr.Body.String())
	}
}

func TestPlanUnknownScenario(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"scenarioId":"nope"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader(body))
	req.Header.Set("X-Tenant-Id", "t_test")
	s.PlansHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPlanForbiddenRole(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader([]byte(`{"scenarioId":"x"}`)))
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "viewer")
	s.PlansHandler(rr, req)
	if rr.Code != 403 {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestPlanRateLimited(t *testing.T) {
	s := newTestServer(t)
	s.limiter = rate.NewLimiter(rate.Limit(0.001), 1)
	sc := createScenario(t, s, smallScenario())
	body, _ := json.Marshal(model.PlanRequest{ScenarioID: sc.ID})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader(body))
	req.Header.Set("X-Tenant-Id", "t_test")
	s.PlansHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("first plan: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader(body))
	req.Header.Set("X-Tenant-Id", "t_test")
	s.PlansHandler(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}

func TestPlanEnqueuesWebhook(t *testing.T) {
	s := newTestServer(t)
	// Subscribe to plan.completed
	subBody := []byte(`{"url":"https://example.invalid/webhook","events":["plan.completed"],"secret":"shh"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(subBody))
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "admin")
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d body %s", rr.Code, rr.Body.String())
	}

	sc := createScenario(t, s, smallScenario())
	body, _ := json.Marshal(model.PlanRequest{ScenarioID: sc.ID})
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader(body))
	req.Header.Set("X-Tenant-Id", "t_test")
	s.PlansHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("plan create: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries?limit=5", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "admin")
	s.WebhookDeliveriesHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("deliveries: %d", rr.Code)
	}
	var dres struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &dres); err != nil {
		t.Fatalf("decode deliveries: %v", err)
	}
	if len(dres.Items) == 0 {
		t.Fatalf("expected at least one delivery")
	}
	if et, _ := dres.Items[0]["eventType"].(string); et != "plan.completed" {
		t.Fatalf("eventType: %q", et)
	}
}

func TestSubscriptionValidation(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader([]byte(`{"url":"https://x","events":["bogus.event"]}`)))
	req.Header.Set("X-Role", "admin")
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests. Body access is locked: the handler
// writes from its own goroutine while the test polls.
type sseRecorder struct {
	mu   sync.Mutex
	hdr  http.Header
	buf  bytes.Buffer
	code int
}

func (r *sseRecorder) Header() http.Header {
	if r.hdr == nil {
		r.hdr = http.Header{}
	}
	return r.hdr
}
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}
func (r *sseRecorder) Flush() {}

func (r *sseRecorder) body() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf.Bytes()...)
}

func TestPlanEventsSSE(t *testing.T) {
	s := newTestServer(t)
	pid := "plan-under-test"

	sseReq := httptest.NewRequest(http.MethodGet, "/v1/plans/"+pid+"/events/stream", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sseReq = sseReq.WithContext(ctx)
	sseReq.Header.Set("X-Tenant-Id", "t_test")

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		s.PlanByIDHandler(rec, sseReq)
		close(done)
	}()

	// Give the handler time to subscribe and send the first heartbeat
	time.Sleep(50 * time.Millisecond)
	s.Broker.Publish(pid, SSEEvent{Type: "plan.completed", Data: map[string]any{"planId": pid}})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if bytes.Contains(rec.body(), []byte("event: plan.completed")) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !bytes.Contains(rec.body(), []byte("event: plan.completed")) {
		t.Fatalf("SSE did not contain expected event. Body: %s", rec.body())
	}
	cancel()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("handler did not exit after cancel")
	}
}
