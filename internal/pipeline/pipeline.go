package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/telemetry"
	"github.com/af-corp/querysmith/internal/types"
)

// Model is the language-model inference collaborator.
type Model interface {
	Complete(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error)
}

// SchemaStore returns a user's schema context. found is false when the user
// has none.
type SchemaStore interface {
	SchemaContext(ctx context.Context, userID string) (schema string, found bool, err error)
}

// QuotaTracker atomically checks and consumes one unit of a user's daily
// quota. allowed is false when the limit is already reached.
type QuotaTracker interface {
	CheckAndConsume(ctx context.Context, userID string, limit int64) (allowed bool, err error)
}

type HistoryStore interface {
	Append(ctx context.Context, rec *types.HistoryRecord) error
}

// Guard screens a request before any of it is sent to the model.
type Guard interface {
	Screen(ctx context.Context, req *types.Request) (*types.Verdict, error)
}

// Formatter applies cosmetic formatting to SQL text.
type Formatter interface {
	Format(sql string) (string, error)
}

// Deps wires a Service. Guard, Formatter, Metrics and Logger are optional.
type Deps struct {
	Model     Model
	Schemas   SchemaStore
	Quota     QuotaTracker
	History   HistoryStore
	Guard     Guard
	Formatter Formatter
	Config    func() config.PipelineConfig
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

// Service runs the SQL synthesis pipeline. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	model     Model
	schemas   SchemaStore
	quota     QuotaTracker
	history   HistoryStore
	guard     Guard
	formatter Formatter
	config    func() config.PipelineConfig
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := d.Config
	if cfg == nil {
		def := config.DefaultConfig().Pipeline
		cfg = func() config.PipelineConfig { return def }
	}
	return &Service{
		model:     d.Model,
		schemas:   d.Schemas,
		quota:     d.Quota,
		history:   d.History,
		guard:     d.Guard,
		formatter: d.Formatter,
		config:    cfg,
		metrics:   d.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Run takes one request through dispatch, parsing, review, completion,
// formatting and persistence. Every failure is a *Error.
func (s *Service) Run(ctx context.Context, req *types.Request) (*types.Result, error) {
	start := s.now()
	res, err := s.run(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	elapsed := s.now().Sub(start)
	if s.metrics != nil {
		s.metrics.RecordRun(string(req.Mode), outcome, float64(elapsed.Milliseconds()))
	}

	if err != nil {
		level := slog.LevelWarn
		if k := KindOf(err); k == KindUpstreamCallFailed || k == KindPayloadUnparseable || k == KindDependency {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "pipeline run failed",
			"request_id", req.RequestID,
			"user_id", req.UserID,
			"mode", req.Mode,
			"outcome", outcome,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("pipeline run completed",
		"request_id", req.RequestID,
		"user_id", req.UserID,
		"mode", req.Mode,
		"repairs", res.Repairs,
		"reviewed", res.Reviewed,
		"continuations", res.Continuations,
		"complete", res.Complete,
		"warnings", len(res.Warnings),
		"duration_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

func (s *Service) run(ctx context.Context, req *types.Request) (*types.Result, error) {
	cfg := s.config()

	if err := Validate(req); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	if !req.Mode.CallsModel() {
		return s.finish(ctx, req, &types.Result{
			RequestID: req.RequestID,
			Mode:      req.Mode,
			Output:    s.formatSQL(req.SQL),
			Complete:  true,
		})
	}

	schema, err := s.schemaFor(ctx, req)
	if err != nil {
		return nil, err
	}

	prompt, err := BuildPrompt(req, schema)
	if err != nil {
		return nil, err
	}

	res := &types.Result{RequestID: req.RequestID, Mode: req.Mode}
	if err := s.screen(ctx, req, res); err != nil {
		return nil, err
	}
	if err := s.consumeQuota(ctx, cfg, req); err != nil {
		return nil, err
	}

	temperature := cfg.Temperature
	if req.Mode == types.ModeExplain {
		temperature = cfg.ExplainTemperature
	}
	resp, err := s.call(ctx, cfg, types.PurposeGenerate, prompt.System, prompt.User, temperature, prompt.Shape)
	if err != nil {
		return nil, wrapError(KindUpstreamCallFailed, "model call failed", err)
	}

	payload, repairs, err := s.parse(ctx, cfg, req.Mode, prompt.Shape, resp.Text)
	res.Repairs = repairs
	if err != nil {
		return nil, wrapError(KindPayloadUnparseable, "parse model output", err)
	}

	if payload.Shape == types.ShapeExplanation {
		res.Explanation = payload.Explanation
		res.Output = FormatExplanation(payload.Explanation)
		res.Complete = true
		return s.finish(ctx, req, res)
	}

	truncated := resp.Truncated()
	candidate := normalizeTerminator(payload.SQL, truncated)

	if req.Mode == types.ModeGenerate && cfg.ReviewEnabled && candidate != "" {
		if reviewed, t, ok := s.review(ctx, cfg, schema, req.Prompt, candidate); ok {
			candidate, truncated = reviewed, t
			res.Reviewed = true
		}
	}

	res.Complete = candidate != "" && !truncated && IsComplete(candidate)
	if candidate != "" && !res.Complete && cfg.CompletesMode(string(req.Mode)) {
		candidate, res.Continuations, res.Complete = s.complete(ctx, cfg, req.Mode, schema, req.Input(), candidate, truncated)
		if !res.Complete {
			res.Warnings = append(res.Warnings, "the SQL may be incomplete: the model did not finish the statement")
		}
	}

	res.Output = s.formatSQL(candidate)
	if strings.TrimSpace(res.Output) == "" {
		return nil, newError(KindEmptyResult, "final sql is blank")
	}
	return s.finish(ctx, req, res)
}

// finish appends the history record. A history failure does not undo the
// result; it becomes a warning.
func (s *Service) finish(ctx context.Context, req *types.Request, res *types.Result) (*types.Result, error) {
	if s.history == nil {
		return res, nil
	}
	rec := &types.HistoryRecord{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Mode:        req.Mode,
		RequestText: req.Input(),
		Output:      res.Output,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.history.Append(ctx, rec); err != nil {
		s.logger.Warn("history append failed",
			"request_id", req.RequestID,
			"user_id", req.UserID,
			"error", err,
		)
		res.Warnings = append(res.Warnings, "the result was not saved to history")
	}
	return res, nil
}

// schemaFor fetches the schema context. Only generate needs it; other modes
// carry on without it if the store is unavailable.
func (s *Service) schemaFor(ctx context.Context, req *types.Request) (string, error) {
	if s.schemas == nil {
		return "", nil
	}
	schema, found, err := s.schemas.SchemaContext(ctx, req.UserID)
	if err != nil {
		if req.Mode == types.ModeGenerate {
			return "", wrapError(KindDependency, "fetch schema context", err)
		}
		s.logger.Warn("schema fetch failed, continuing without schema",
			"request_id", req.RequestID,
			"mode", req.Mode,
			"error", err,
		)
		return "", nil
	}
	if !found {
		return "", nil
	}
	return schema, nil
}

func (s *Service) screen(ctx context.Context, req *types.Request, res *types.Result) error {
	if s.guard == nil {
		return nil
	}
	verdict, err := s.guard.Screen(ctx, req)
	if err != nil {
		return wrapError(KindDependency, "content guard", err)
	}
	res.Filters = verdict.Summary
	if verdict.Blocked {
		return newError(KindContentBlocked, verdict.Filter+": "+verdict.Reason)
	}
	return nil
}

func (s *Service) consumeQuota(ctx context.Context, cfg config.PipelineConfig, req *types.Request) error {
	if s.quota == nil {
		return nil
	}
	limit := req.DailyQuota
	if limit <= 0 {
		limit = cfg.DefaultDailyQuota
	}
	allowed, err := s.quota.CheckAndConsume(ctx, req.UserID, limit)
	if err != nil {
		return wrapError(KindDependency, "consume quota", err)
	}
	if !allowed {
		if s.metrics != nil {
			s.metrics.RecordRateLimitHit("quota")
		}
		return newError(KindQuotaExceeded, "daily quota reached")
	}
	return nil
}

// call issues one model request bounded by the per-call timeout.
func (s *Service) call(ctx context.Context, cfg config.PipelineConfig, purpose types.Purpose, system, prompt string, temperature float64, shape types.Shape) (*types.ModelResponse, error) {
	if cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
	}
	return s.model.Complete(ctx, &types.ModelRequest{
		Purpose:         purpose,
		Model:           cfg.Model,
		System:          system,
		Prompt:          prompt,
		Temperature:     temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Shape:           shape,
	})
}

// parse decodes raw model output into a payload, allowing exactly one repair
// call.
func (s *Service) parse(ctx context.Context, cfg config.PipelineConfig, mode types.Mode, shape types.Shape, raw string) (*types.Payload, int, error) {
	p := FallbackParser[*types.Payload]{
		Decode: decoderFor(shape),
		Repair: func(ctx context.Context, text string) (string, error) {
			resp, err := s.call(ctx, cfg, types.PurposeRepair, repairSystemFor(shape), repairPrompt(text), 0, shape)
			if err != nil {
				return "", err
			}
			return resp.Text, nil
		},
		MaxRepairs: 1,
	}

	payload, repairs, err := p.Parse(ctx, StripFences(raw))
	if repairs > 0 && s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		s.metrics.RecordRepair(string(mode), outcome)
	}
	return payload, repairs, err
}

func (s *Service) formatSQL(sql string) string {
	cleaned := strings.TrimSpace(sql)
	if s.formatter == nil || cleaned == "" {
		return cleaned
	}
	out, err := s.formatter.Format(cleaned)
	if err != nil {
		s.logger.Debug("sql formatting skipped", "error", err)
		return cleaned
	}
	return out
}
