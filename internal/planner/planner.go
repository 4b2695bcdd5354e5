// Package planner delegates stop ordering to an external generative-AI
// service and reconciles the answer back onto locally-owned stop records.
package planner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
)

// LLMClient is the minimal surface the planner needs from an AI provider.
type LLMClient interface {
	Complete(ctx context.Context, modelName, prompt string) (string, error)
}

var (
	ErrNoStops     = errors.New("plan has no stops to optimize")
	ErrRateLimited = errors.New("optimizer rate limit exceeded")
	ErrEmptyReply  = errors.New("optimizer returned no parsable route")
)

// Planner wraps an LLM client with rate limiting and response reconciliation.
// The ordering decision itself is entirely the model's; the planner only
// serializes stops into a prompt and maps the reply back to stop records.
type Planner struct {
	llm          LLMClient
	limiter      *rate.Limiter
	defaultModel string
}

func New(llm LLMClient) *Planner {
	rps := 1.0
	if v := os.Getenv("OPTIMIZER_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	burst := 2
	if v := os.Getenv("OPTIMIZER_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	return &Planner{
		llm:          llm,
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		defaultModel: envOr("OPTIMIZER_MODEL", "gemini-2.0-flash"),
	}
}

// Optimize serializes the plan's addresses into a prompt, calls the model
// and returns the reconciled ordered stops.
func (p *Planner) Optimize(ctx context.Context, stops []model.Stop, req model.OptimizeRequest) ([]model.OptimizedStop, error) {
	if len(stops) == 0 {
		return nil, ErrNoStops
	}
	if !p.limiter.Allow() {
		return nil, ErrRateLimited
	}
	modelName := strings.TrimSpace(req.Model)
	if modelName == "" {
		modelName = p.defaultModel
	}
	prompt := buildPrompt(stops, req)
	reply, err := p.llm.Complete(ctx, modelName, prompt)
	if err != nil {
		return nil, fmt.Errorf("optimizer call: %w", err)
	}
	route, err := parseRoute(reply)
	if err != nil {
		return nil, err
	}
	return Reconcile(stops, route), nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
