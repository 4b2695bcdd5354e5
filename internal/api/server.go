package api

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/auth"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/planner"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/store"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/webhooks"
)

// Optimizer is the planning surface the handlers call. It is satisfied by
// *planner.Planner and by fakes in tests.
type Optimizer interface {
	Optimize(ctx context.Context, stops []model.Stop, req model.OptimizeRequest) ([]model.OptimizedStop, error)
}

type Server struct {
	Store     store.Store
	Planner   Optimizer
	Pub       *webhooks.Publisher
	Auth      *auth.Verifier
	Broker    EventBroker
	Telemetry *TelemetryCache
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store;
// if GEMINI_API_KEY is unset, optimize requests answer 503.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}
	// Broker selection
	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	// Optimizer: nil when no API key is configured
	var opt Optimizer
	if os.Getenv("GEMINI_API_KEY") != "" {
		llm, err := planner.NewGeminiClient(context.Background())
		if err != nil {
			return nil, err
		}
		opt = planner.New(llm)
	} else {
		log.Printf("GEMINI_API_KEY not set; optimize requests will be rejected")
	}
	return &Server{
		Store:     s,
		Planner:   opt,
		Pub:       webhooks.NewPublisher(s),
		Auth:      auth.NewVerifierFromEnv(),
		Broker:    broker,
		Telemetry: NewTelemetryCache(),
	}, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
