package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"taxinav/internal/metrics"
	"taxinav/internal/model"
	"taxinav/internal/store"
	"taxinav/internal/webhooks"
)

// ScenariosHandler handles POST/GET /v1/scenarios
func (s *Server) ScenariosHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		pr := s.getPrincipal(r)
		if !pr.CanPlan() {
			writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		var in model.ScenarioIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateScenario(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid scenario", err.Error(), r.URL.Path)
			return
		}
		sc, err := s.Store.CreateScenario(r.Context(), pr.Tenant, in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create scenario failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sc)
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListScenarios(r.Context(), tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List scenarios failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ScenarioByIDHandler handles GET/DELETE /v1/scenarios/{id}
func (s *Server) ScenarioByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/scenarios/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodGet:
		sc, err := s.Store.GetScenario(r.Context(), tenant, id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Scenario not found", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, sc)
	case http.MethodDelete:
		pr := s.getPrincipal(r)
		if !pr.CanPlan() {
			writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		if err := s.Store.DeleteScenario(r.Context(), tenant, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Scenario not found", "", r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Delete scenario failed", err.Error(), r.URL.Path)
			return
		}
		w.WriteHeader(204)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PlansHandler handles POST/GET /v1/plans
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		pr := s.getPrincipal(r)
		if !pr.CanPlan() {
			writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		if !s.limiter.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Rate limit exceeded", "retry later", r.URL.Path)
			return
		}
		var req model.PlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validatePlanRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = pr.Tenant
		}
		sc, err := s.Store.GetScenario(r.Context(), req.TenantID, req.ScenarioID)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Scenario not found", err.Error(), r.URL.Path)
			return
		}
		plan := s.runPlan(r.Context(), sc, req.Options)
		stored, err := s.Store.CreatePlan(r.Context(), *plan)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Store plan failed", err.Error(), r.URL.Path)
			return
		}
		s.publishPlanEvents(r.Context(), stored)
		writeJSON(w, http.StatusCreated, stored)
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		q := r.URL.Query()
		limit := 100
		if v := q.Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListPlans(r.Context(), tenant, q.Get("scenarioId"), q.Get("status"), q.Get("cursor"), limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// runPlan executes the planning pipeline and wraps configuration errors as a
// terminal "error" plan, so every run leaves an inspectable record.
func (s *Server) runPlan(ctx context.Context, sc model.Scenario, opts model.PlanOptions) *model.Plan {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()
	plan, err := s.Planner.Plan(ctx, sc.ScenarioIn, opts)
	if err != nil {
		plan = &model.Plan{Status: model.PlanError, Error: err.Error()}
	}
	plan.TenantID = sc.TenantID
	plan.ScenarioID = sc.ID

	metrics.PlanRuns.WithLabelValues(plan.Status).Inc()
	metrics.PlanBuildDuration.Observe(float64(plan.Stats.BuildMs) / 1000)
	metrics.PlanSolveDuration.Observe(float64(plan.Stats.SolveMs) / 1000)
	if plan.Stats.Variables > 0 {
		metrics.ModelSize.WithLabelValues("variables").Observe(float64(plan.Stats.Variables))
		metrics.ModelSize.WithLabelValues("constraints").Observe(float64(plan.Stats.Constraints))
	}
	return plan
}

func (s *Server) publishPlanEvents(ctx context.Context, plan model.Plan) {
	evtType := webhooks.EventPlanFailed
	switch plan.Status {
	case model.PlanOptimal:
		evtType = webhooks.EventPlanCompleted
	case model.PlanInfeasible:
		evtType = webhooks.EventPlanInfeasible
	case model.PlanUnbounded:
		evtType = webhooks.EventPlanUnbounded
	}
	data := map[string]any{
		"planId":     plan.ID,
		"scenarioId": plan.ScenarioID,
		"status":     plan.Status,
		"objective":  plan.Objective,
		"ts":         time.Now().UTC().Format(time.RFC3339),
	}
	s.Broker.Publish(plan.ID, SSEEvent{Type: evtType, Data: data})
	s.Pub.Emit(ctx, plan.TenantID, evtType, data)
}

// PlanByIDHandler handles GET /v1/plans/{id} and GET /v1/plans/{id}/events/stream
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		s.planEventsSSE(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	plan, err := s.Store.GetPlan(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Plan not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) planEventsSSE(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	// initial heartbeat
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"planId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"planId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		if err := validateSubscription(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(204)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(405)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
