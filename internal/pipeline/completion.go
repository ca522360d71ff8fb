package pipeline

import (
	"context"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/types"
)

// complete asks the model to continue a truncated or incomplete statement
// until it passes IsComplete or the iteration limit is reached. A failed or
// blank continuation keeps the previous candidate and ends the loop. It
// returns the final candidate, the number of continuation calls made, and
// whether the result is complete.
func (s *Service) complete(ctx context.Context, cfg config.PipelineConfig, mode types.Mode, schema, request, candidate string, truncated bool) (string, int, bool) {
	limit := cfg.MaxCompletionIterations
	if limit <= 0 || limit > config.MaxCompletionIterations {
		limit = config.MaxCompletionIterations
	}

	current := candidate
	calls := 0
	for calls < limit && (truncated || !IsComplete(current)) {
		calls++
		resp, err := s.call(ctx, cfg, types.PurposeContinue, continueSystem, continuePrompt(schema, request, current), cfg.Temperature, types.ShapeSQL)
		if err != nil {
			s.logger.Warn("continuation call failed, keeping partial sql", "stage", "completion", "iteration", calls, "error", err)
			break
		}
		payload, _, err := s.parse(ctx, cfg, mode, types.ShapeSQL, resp.Text)
		if err != nil || payload.SQL == "" {
			s.logger.Warn("continuation unusable, keeping partial sql", "stage", "completion", "iteration", calls, "error", err)
			break
		}
		truncated = resp.Truncated()
		current = normalizeTerminator(payload.SQL, truncated)
	}

	complete := !truncated && IsComplete(current)
	if s.metrics != nil {
		s.metrics.RecordCompletion(string(mode), calls, complete)
	}
	if !complete {
		s.logger.Warn("completion did not converge", "stage", "completion", "mode", mode, "iterations", calls)
	}
	return current, calls, complete
}
