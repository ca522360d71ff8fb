package filter

import (
	"context"

	"github.com/af-corp/querysmith/internal/telemetry"
	"github.com/af-corp/querysmith/internal/types"
)

// Action represents the filter decision.
type Action string

const (
	ActionPass  Action = "pass"
	ActionFlag  Action = "flag"
	ActionBlock Action = "block"
)

// Result is returned by each filter.
type Result struct {
	Action     Action
	FilterName string
	Message    string
	Detections int
	Score      float64
}

// Filter is the interface all content filters implement.
type Filter interface {
	Name() string
	Enabled() bool
	ScanRequest(ctx context.Context, req *types.Request) Result
}

// Chain runs filters in order, stopping on the first Block.
type Chain struct {
	filters []Filter
	metrics *telemetry.Metrics
}

// NewChain creates a filter chain from the given filters. metrics may be nil.
func NewChain(metrics *telemetry.Metrics, filters ...Filter) *Chain {
	return &Chain{filters: filters, metrics: metrics}
}

// Run executes all enabled filters in order. Returns all results and a pointer
// to the first blocking result (nil if no filter blocked).
func (c *Chain) Run(ctx context.Context, req *types.Request) ([]Result, *Result) {
	var results []Result
	for _, f := range c.filters {
		if !f.Enabled() {
			continue
		}
		r := f.ScanRequest(ctx, req)
		results = append(results, r)
		if c.metrics != nil {
			c.metrics.RecordFilterAction(r.FilterName, string(r.Action))
		}
		if r.Action == ActionBlock {
			return results, &r
		}
	}
	return results, nil
}

// Screen runs the chain and summarizes it as a verdict for the pipeline.
func (c *Chain) Screen(ctx context.Context, req *types.Request) (*types.Verdict, error) {
	results, blocked := c.Run(ctx, req)

	v := &types.Verdict{}
	for _, r := range results {
		v.Summary.Set(r.FilterName, types.FilterAction{
			Action:     string(r.Action),
			Detections: r.Detections,
			Score:      r.Score,
		})
	}
	if blocked != nil {
		v.Blocked = true
		v.Filter = blocked.FilterName
		v.Reason = blocked.Message
	}
	return v, nil
}
