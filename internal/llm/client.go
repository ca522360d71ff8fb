package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/llm/adapters"
	"github.com/af-corp/querysmith/internal/telemetry"
	"github.com/af-corp/querysmith/internal/types"
)

// ErrNoRoute is returned when a logical model has no usable provider.
var ErrNoRoute = errors.New("no available provider")

// Route is one concrete provider/model pair a logical model may resolve to.
type Route struct {
	Provider string
	Model    string
	Adapter  adapters.Adapter
}

// ResolveRoutes returns the registered routes for a logical model, primary
// first, in configured order. Routes whose provider is not registered are
// skipped.
func ResolveRoutes(modelsCfg *config.ModelsConfig, registry *Registry, modelName string) ([]Route, error) {
	mapping, ok := modelsCfg.Models[modelName]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", modelName)
	}

	var routes []Route
	for _, pr := range mapping.Routes() {
		if a, ok := registry.Get(pr.Provider); ok {
			routes = append(routes, Route{Provider: pr.Provider, Model: pr.Model, Adapter: a})
		}
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w for model: %s", ErrNoRoute, modelName)
	}
	return routes, nil
}

// Client resolves a logical model name to provider routes and calls them in
// order until one succeeds, skipping providers whose circuit is open.
type Client struct {
	models      func() *config.ModelsConfig
	registry    *Registry
	health      *HealthTracker
	maxAttempts int
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

func NewClient(models func() *config.ModelsConfig, registry *Registry, health *HealthTracker, routing config.RoutingConfig, metrics *telemetry.Metrics, logger *slog.Logger) *Client {
	attempts := routing.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		models:      models,
		registry:    registry,
		health:      health,
		maxAttempts: attempts,
		metrics:     metrics,
		logger:      logger,
	}
}

// Complete sends req to the first healthy route. req.Model names the logical
// model; each attempt rewrites it to the route's provider model.
func (c *Client) Complete(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
	routes, err := ResolveRoutes(c.models(), c.registry, req.Model)
	if err != nil {
		return nil, err
	}

	var lastErr error
	attempts := 0
	for _, route := range routes {
		if attempts >= c.maxAttempts {
			break
		}
		if !c.health.Allow(route.Provider) {
			c.logger.Debug("provider circuit open, skipping",
				"provider", route.Provider,
				"purpose", req.Purpose,
			)
			continue
		}
		attempts++

		call := *req
		call.Model = route.Model
		start := time.Now()
		resp, err := route.Adapter.Complete(ctx, &call)
		elapsed := float64(time.Since(start).Milliseconds())

		if err == nil {
			c.health.RecordSuccess(route.Provider)
			c.record(req.Purpose, route.Provider, "ok", elapsed, resp.Usage)
			return resp, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			// The caller gave up; that says nothing about the provider.
			c.record(req.Purpose, route.Provider, "canceled", elapsed, types.Usage{})
			return nil, fmt.Errorf("%s: %w", route.Provider, err)
		}
		c.health.RecordFailure(route.Provider)
		c.record(req.Purpose, route.Provider, "error", elapsed, types.Usage{})
		c.logger.Warn("model call failed",
			"provider", route.Provider,
			"model", route.Model,
			"purpose", req.Purpose,
			"error", err,
		)

		var se *adapters.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return nil, fmt.Errorf("%s: %w", route.Provider, err)
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("%w for model %s: all circuits open", ErrNoRoute, req.Model)
	}
	return nil, fmt.Errorf("all routes failed for model %s: %w", req.Model, lastErr)
}

func (c *Client) record(purpose types.Purpose, provider, status string, ms float64, usage types.Usage) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordModelCall(telemetry.ModelCallLabels{
		Purpose:          string(purpose),
		Provider:         provider,
		Status:           status,
		DurationMs:       ms,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	})
}
