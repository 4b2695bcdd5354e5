package store

import (
	"context"
	"errors"
	"time"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Plans
	CreatePlan(ctx context.Context, tenantID string, in model.PlanIn) (model.Plan, error)
	GetPlan(ctx context.Context, tenantID, planID string) (model.Plan, error)
	ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanOut, string, error)
	DeletePlan(ctx context.Context, tenantID, planID string) error

	// Stops
	AddStop(ctx context.Context, tenantID, planID string, in model.StopIn) (model.Stop, error)
	AddStops(ctx context.Context, tenantID, planID string, ins []model.StopIn) (created, skipped int, stops []model.Stop, err error)
	RemoveStop(ctx context.Context, tenantID, planID, stopID string) error
	ClearStops(ctx context.Context, tenantID, planID string) error

	// Optimizations. BeginOptimization enforces the single-pending-job rule
	// per plan and returns ErrOptimizationPending when one is in flight.
	BeginOptimization(ctx context.Context, tenantID, planID, modelName string) (model.Optimization, error)
	CompleteOptimization(ctx context.Context, tenantID, optID string, stops []model.OptimizedStop) (model.Optimization, error)
	FailOptimization(ctx context.Context, tenantID, optID, errMsg string) (model.Optimization, error)
	GetOptimization(ctx context.Context, tenantID, optID string) (model.Optimization, error)
	LatestOptimization(ctx context.Context, tenantID, planID string) (model.Optimization, error)

	// Theme preference (the one persisted UI flag)
	GetThemePreference(ctx context.Context, tenantID string) (string, error)
	SaveThemePreference(ctx context.Context, tenantID, theme string) error

	// Webhook subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

var (
	ErrNotFound            = errors.New("not found")
	ErrOptimizationPending = errors.New("optimization already pending for plan")
)
