package store

import (
	"context"
	"errors"
	"time"

	"taxinav/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Scenarios
	CreateScenario(ctx context.Context, tenantID string, in model.ScenarioIn) (model.Scenario, error)
	GetScenario(ctx context.Context, tenantID, id string) (model.Scenario, error)
	ListScenarios(ctx context.Context, tenantID, cursor string, limit int) ([]model.Scenario, string, error)
	DeleteScenario(ctx context.Context, tenantID, id string) error

	// Plans
	CreatePlan(ctx context.Context, plan model.Plan) (model.Plan, error)
	GetPlan(ctx context.Context, tenantID, id string) (model.Plan, error)
	ListPlans(ctx context.Context, tenantID, scenarioID, status, cursor string, limit int) ([]model.Plan, string, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

	// Readiness
	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")
