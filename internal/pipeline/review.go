package pipeline

import (
	"context"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/types"
)

// review asks a stricter reviewer to check candidate against the schema and
// the original request. ok is false when any step failed; the caller then
// keeps its unreviewed candidate. An empty reviewed statement is a valid
// answer meaning the request cannot be satisfied.
func (s *Service) review(ctx context.Context, cfg config.PipelineConfig, schema, request, candidate string) (reviewed string, truncated bool, ok bool) {
	resp, err := s.call(ctx, cfg, types.PurposeReview, reviewSystem, reviewPrompt(schema, request, candidate), cfg.Temperature, types.ShapeSQL)
	if err != nil {
		s.reviewDegraded("call", err)
		return "", false, false
	}

	payload, _, err := s.parse(ctx, cfg, types.ModeGenerate, types.ShapeSQL, resp.Text)
	if err != nil {
		s.reviewDegraded("parse", err)
		return "", false, false
	}

	if s.metrics != nil {
		s.metrics.RecordReview("applied")
	}
	return normalizeTerminator(payload.SQL, resp.Truncated()), resp.Truncated(), true
}

func (s *Service) reviewDegraded(step string, err error) {
	s.logger.Warn("review degraded, keeping unreviewed sql", "stage", "review", "step", step, "error", err)
	if s.metrics != nil {
		s.metrics.RecordReview("degraded")
	}
}
