package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/sqlfmt"
	"github.com/af-corp/querysmith/internal/types"
)

func generateReq() *types.Request {
	return &types.Request{RequestID: "req-1", UserID: "u-1", Mode: types.ModeGenerate, Prompt: "list all users"}
}

func TestRun_GenerateWithoutSchema(t *testing.T) {
	model := newScriptedModel()
	h := newHarness(model)
	h.schemas.schema = ""

	_, err := h.svc.Run(context.Background(), generateReq())
	if KindOf(err) != KindSchemaRequired {
		t.Fatalf("expected schema_required, got %v", err)
	}
	if model.total() != 0 {
		t.Errorf("expected zero model calls, got %d", model.total())
	}
	if h.quota.calls != 0 {
		t.Error("quota must not be consumed when the request is refused")
	}
}

func TestRun_GenerateHappyPath(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT * FROM users"}`}).
		on(types.PurposeReview, reply{text: `{"sql":"SELECT * FROM users"}`})
	h := newHarness(model)
	h.svc.formatter = sqlfmt.New()

	res, err := h.svc.Run(context.Background(), generateReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "SELECT *\nFROM users;"
	if res.Output != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
	if !res.Reviewed || !res.Complete || res.Continuations != 0 || res.Repairs != 0 {
		t.Errorf("unexpected bookkeeping %+v", res)
	}
	if model.count(types.PurposeContinue) != 0 {
		t.Error("complete sql must not be continued")
	}
	if h.quota.calls != 1 || h.quota.limit != h.cfg.DefaultDailyQuota {
		t.Errorf("quota calls = %d limit = %d", h.quota.calls, h.quota.limit)
	}

	if len(h.history.records) != 1 {
		t.Fatalf("expected one history record, got %d", len(h.history.records))
	}
	rec := h.history.records[0]
	if rec.Mode != types.ModeGenerate || rec.Output != want || rec.RequestText != "list all users" || rec.UserID != "u-1" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestRun_TrailingCommentKeepsTerminatorOutside(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT id FROM users -- every user"}`}).
		on(types.PurposeReview, reply{text: `{"sql":"SELECT id FROM users -- every user"}`})
	h := newHarness(model)
	h.svc.formatter = sqlfmt.New()

	res, err := h.svc.Run(context.Background(), generateReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT id\nFROM users; -- every user"
	if res.Output != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
	if !res.Complete || res.Continuations != 0 {
		t.Errorf("complete = %v continuations = %d", res.Complete, res.Continuations)
	}
}

func TestRun_BlockCommentDoesNotTriggerCompletion(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT 1 /* ( */;"}`}).
		on(types.PurposeReview, reply{text: `{"sql":"SELECT 1 /* ( */;"}`})
	h := newHarness(model)

	res, err := h.svc.Run(context.Background(), generateReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.count(types.PurposeContinue) != 0 {
		t.Errorf("continuations = %d, want 0", model.count(types.PurposeContinue))
	}
	if !res.Complete {
		t.Error("statement with a block comment should be complete")
	}
}

func TestRun_GenerateCallParameters(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT 1;"}`}).
		on(types.PurposeReview, reply{text: `{"sql":"SELECT 1;"}`})
	h := newHarness(model)

	if _, err := h.svc.Run(context.Background(), generateReq()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := model.calls[0]
	if first.Purpose != types.PurposeGenerate || first.Model != h.cfg.Model || first.Shape != types.ShapeSQL {
		t.Errorf("unexpected first call %+v", first)
	}
	if first.Temperature != h.cfg.Temperature || first.MaxOutputTokens != h.cfg.MaxOutputTokens {
		t.Errorf("unexpected sampling params %+v", first)
	}
	review := model.calls[1]
	if !strings.Contains(review.Prompt, usersSchema) || !strings.Contains(review.Prompt, "list all users") || !strings.Contains(review.Prompt, "SELECT 1;") {
		t.Errorf("review prompt missing context: %q", review.Prompt)
	}
}

func TestRun_RepairOnce(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: "Here is your query: SELECT id FROM users;"}).
		on(types.PurposeRepair, reply{text: `{"sql":"SELECT id FROM users;"}`}).
		on(types.PurposeReview, reply{text: `{"sql":"SELECT id FROM users;"}`})
	h := newHarness(model)

	res, err := h.svc.Run(context.Background(), generateReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Repairs != 1 || model.count(types.PurposeRepair) != 1 {
		t.Errorf("expected one repair, got %d (calls %d)", res.Repairs, model.count(types.PurposeRepair))
	}
	if res.Output != "SELECT id FROM users;" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestRun_RepairFailsIsUnparseable(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: "I cannot help with that."}).
		on(types.PurposeRepair, reply{text: "still not json"})
	h := newHarness(model)

	_, err := h.svc.Run(context.Background(), generateReq())
	if KindOf(err) != KindPayloadUnparseable {
		t.Fatalf("expected payload_unparseable, got %v", err)
	}
	if model.count(types.PurposeRepair) != 1 {
		t.Errorf("expected exactly one repair call, got %d", model.count(types.PurposeRepair))
	}
	if len(h.history.records) != 0 {
		t.Error("failed runs must not be recorded")
	}
}

func TestRun_ValidPayloadSkipsRepair(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: "```json\n{\"sql\": \"SELECT 1;\"}\n```"}).
		on(types.PurposeReview, reply{text: `{"sql":"SELECT 1;"}`})
	h := newHarness(model)

	if _, err := h.svc.Run(context.Background(), generateReq()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.count(types.PurposeRepair) != 0 {
		t.Error("valid payload must not trigger repair")
	}
}

func TestRun_ReviewFailureDegrades(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT email FROM users;"}`}).
		on(types.PurposeReview, reply{err: errors.New("upstream 503")})
	h := newHarness(model)

	res, err := h.svc.Run(context.Background(), generateReq())
	if err != nil {
		t.Fatalf("review failure must not fail the run: %v", err)
	}
	if res.Output != "SELECT email FROM users;" || res.Reviewed {
		t.Errorf("expected unreviewed candidate, got %+v", res)
	}
}

func TestRun_ReviewUnparseableDegrades(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT email FROM users;"}`}).
		on(types.PurposeReview, reply{text: "looks fine to me"}).
		on(types.PurposeRepair, reply{text: "no idea"})
	h := newHarness(model)

	res, err := h.svc.Run(context.Background(), generateReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "SELECT email FROM users;" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestRun_ReviewCorrects(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT mail FROM users;"}`}).
		on(types.PurposeReview, reply{text: `{"sql":"SELECT email FROM users;"}`})
	h := newHarness(model)

	res, err := h.svc.Run(context.Background(), generateReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "SELECT email FROM users;" || !res.Reviewed {
		t.Errorf("expected reviewed sql, got %+v", res)
	}
}

func TestRun_ReviewSaysUnsatisfiable(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT weather FROM users;"}`}).
		on(types.PurposeReview, reply{text: `{"sql":""}`})
	h := newHarness(model)

	_, err := h.svc.Run(context.Background(), generateReq())
	if KindOf(err) != KindEmptyResult {
		t.Fatalf("expected empty_result, got %v", err)
	}
	if model.count(types.PurposeContinue) != 0 {
		t.Error("blank candidates are not continued")
	}
}

func TestRun_GenerateBlankIsEmptyResult(t *testing.T) {
	model := newScriptedModel().on(types.PurposeGenerate, reply{text: `{"sql":"  "}`})
	h := newHarness(model)

	_, err := h.svc.Run(context.Background(), generateReq())
	if KindOf(err) != KindEmptyResult {
		t.Fatalf("expected empty_result, got %v", err)
	}
	if model.count(types.PurposeReview) != 0 {
		t.Error("blank candidates are not reviewed")
	}
}

func TestRun_CompletionConverges(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT id, email FROM users WHERE"}`, finish: types.FinishLength}).
		on(types.PurposeReview, reply{text: `{"sql":"SELECT id, email FROM users WHERE"}`, finish: types.FinishLength}).
		on(types.PurposeContinue, reply{text: `{"sql":"SELECT id, email FROM users WHERE id > 10;"}`})
	h := newHarness(model)

	res, err := h.svc.Run(context.Background(), generateReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Continuations != 1 || !res.Complete {
		t.Errorf("expected one converging continuation, got %+v", res)
	}
	if res.Output != "SELECT id, email FROM users WHERE id > 10;" {
		t.Errorf("output = %q", res.Output)
	}
	cont := model.calls[len(model.calls)-1]
	if !strings.Contains(cont.Prompt, "SELECT id, email FROM users WHERE") || !strings.Contains(cont.Prompt, usersSchema) {
		t.Errorf("continuation prompt missing context: %q", cont.Prompt)
	}
}

func TestRun_CompletionBounded(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT id FROM"}`, finish: types.FinishLength}).
		on(types.PurposeReview, reply{err: errors.New("down")}).
		on(types.PurposeContinue, reply{text: `{"sql":"SELECT id FROM users WHERE"}`, finish: types.FinishLength})
	h := newHarness(model)

	res, err := h.svc.Run(context.Background(), generateReq())
	if err != nil {
		t.Fatalf("non-convergence must not fail the run: %v", err)
	}
	if got := model.count(types.PurposeContinue); got != 3 {
		t.Errorf("expected exactly 3 continuation calls, got %d", got)
	}
	if res.Complete || res.Output != "SELECT id FROM users WHERE" {
		t.Errorf("expected last partial candidate, got %+v", res)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected an incompleteness warning")
	}
}

func TestRun_CompletionLimitNeverExceedsThree(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT id FROM"}`, finish: types.FinishLength}).
		on(types.PurposeReview, reply{err: errors.New("down")}).
		on(types.PurposeContinue, reply{text: `{"sql":"SELECT id FROM users WHERE"}`, finish: types.FinishLength})
	h := newHarness(model)
	h.cfg.MaxCompletionIterations = 10

	if _, err := h.svc.Run(context.Background(), generateReq()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := model.count(types.PurposeContinue); got != 3 {
		t.Errorf("continuation calls = %d, want 3", got)
	}
}

func TestRun_CompletionKeepsCandidateOnUnusableContinuation(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT id FROM users WHERE id ="}`, finish: types.FinishLength}).
		on(types.PurposeReview, reply{err: errors.New("down")}).
		on(types.PurposeContinue, reply{text: "garbage"}).
		on(types.PurposeRepair, reply{text: "more garbage"})
	h := newHarness(model)

	res, err := h.svc.Run(context.Background(), generateReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.count(types.PurposeContinue) != 1 {
		t.Errorf("loop should exit after one failed parse, got %d calls", model.count(types.PurposeContinue))
	}
	if res.Output != "SELECT id FROM users WHERE id =" {
		t.Errorf("previous candidate should be kept, got %q", res.Output)
	}
}

func TestRun_OptimizeTruncatedIsCompleted(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT id FROM users WHERE created_at >"}`, finish: types.FinishLength}).
		on(types.PurposeContinue, reply{text: `{"sql":"SELECT id FROM users WHERE created_at > now() - interval '1 day';"}`})
	h := newHarness(model)

	res, err := h.svc.Run(context.Background(), &types.Request{UserID: "u-1", Mode: types.ModeOptimize, SQL: "select * from users where created_at > now() - interval '1 day'"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.count(types.PurposeContinue) < 1 {
		t.Error("truncated optimize output should be continued")
	}
	if model.count(types.PurposeReview) != 0 {
		t.Error("review is generate-only")
	}
	if !res.Complete {
		t.Errorf("expected complete sql, got %q", res.Output)
	}
}

func TestRun_OptimizeWithoutCompletion(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT id FROM users WHERE"}`, finish: types.FinishLength})
	h := newHarness(model)
	h.cfg.CompletionModes = []string{"generate"}

	res, err := h.svc.Run(context.Background(), &types.Request{UserID: "u-1", Mode: types.ModeOptimize, SQL: "select id from users"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.count(types.PurposeContinue) != 0 {
		t.Error("optimize is excluded from completion in this config")
	}
	if res.Output != "SELECT id FROM users WHERE" {
		t.Errorf("truncated sql should be returned as-is, got %q", res.Output)
	}
}

func TestRun_FormatIsLocal(t *testing.T) {
	model := newScriptedModel()
	h := newHarness(model)
	h.svc.formatter = sqlfmt.New()

	res, err := h.svc.Run(context.Background(), &types.Request{UserID: "u-1", Mode: types.ModeFormat, SQL: "select * from users where id=1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "SELECT *\nFROM users\nWHERE id = 1" {
		t.Errorf("output = %q", res.Output)
	}
	if model.total() != 0 || h.quota.calls != 0 {
		t.Errorf("format must not call the model or consume quota (calls %d, quota %d)", model.total(), h.quota.calls)
	}
	if len(h.history.records) != 1 || h.history.records[0].Mode != types.ModeFormat {
		t.Error("format runs are recorded in history")
	}
}

func TestRun_FormatWithoutFormatter(t *testing.T) {
	h := newHarness(newScriptedModel())

	res, err := h.svc.Run(context.Background(), &types.Request{Mode: types.ModeFormat, SQL: "  select 1  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "select 1" {
		t.Errorf("expected cleaned input, got %q", res.Output)
	}
}

func TestRun_Explain(t *testing.T) {
	model := newScriptedModel().on(types.PurposeGenerate, reply{
		text: `{"summary":"Lists users.","steps":["Scan users"],"output_columns":["id: user id"],"performance_notes":[],"risks":["Unbounded result"]}`,
	})
	h := newHarness(model)

	res, err := h.svc.Run(context.Background(), &types.Request{UserID: "u-1", Mode: types.ModeExplain, SQL: "select id from users"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Summary\nLists users.\n\nExecution Steps\n1. Scan users\n\nOutput Columns\n- id: user id\n\nRisks\n- Unbounded result"
	if res.Output != want {
		t.Errorf("report = %q, want %q", res.Output, want)
	}
	if model.calls[0].Temperature != h.cfg.ExplainTemperature || model.calls[0].Shape != types.ShapeExplanation {
		t.Errorf("explain call params %+v", model.calls[0])
	}
	if model.count(types.PurposeReview)+model.count(types.PurposeContinue) != 0 {
		t.Error("explain is neither reviewed nor continued")
	}
}

func TestRun_QuotaExceeded(t *testing.T) {
	model := newScriptedModel()
	h := newHarness(model)
	h.quota.allow = false

	_, err := h.svc.Run(context.Background(), generateReq())
	if KindOf(err) != KindQuotaExceeded {
		t.Fatalf("expected quota_exceeded, got %v", err)
	}
	if model.total() != 0 {
		t.Error("no model call after quota refusal")
	}
}

func TestRun_RequestQuotaOverridesDefault(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT 1;"}`}).
		on(types.PurposeReview, reply{text: `{"sql":"SELECT 1;"}`})
	h := newHarness(model)
	req := generateReq()
	req.DailyQuota = 7

	if _, err := h.svc.Run(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.quota.limit != 7 {
		t.Errorf("limit = %d, want 7", h.quota.limit)
	}
}

func TestRun_UpstreamFailure(t *testing.T) {
	model := newScriptedModel().on(types.PurposeGenerate, reply{err: errors.New("all routes failed")})
	h := newHarness(model)

	_, err := h.svc.Run(context.Background(), generateReq())
	if KindOf(err) != KindUpstreamCallFailed {
		t.Fatalf("expected upstream_call_failed, got %v", err)
	}
	var pe *Error
	if !errors.As(err, &pe) || strings.Contains(pe.UserMessage(), "all routes failed") {
		t.Error("user message must not leak upstream detail")
	}
}

// stalledModel never answers; only context cancellation ends a call.
type stalledModel struct{}

func (stalledModel) Complete(ctx context.Context, _ *types.ModelRequest) (*types.ModelResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_CallTimeoutCancelsModel(t *testing.T) {
	h := newHarness(newScriptedModel())
	h.cfg.CallTimeout = 20 * time.Millisecond
	h.svc = NewService(Deps{
		Model:   stalledModel{},
		Schemas: h.schemas,
		Quota:   h.quota,
		History: h.history,
		Config:  func() config.PipelineConfig { return h.cfg },
	})

	start := time.Now()
	_, err := h.svc.Run(context.Background(), generateReq())
	if KindOf(err) != KindUpstreamCallFailed {
		t.Fatalf("expected upstream_call_failed, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("cause should be the deadline, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("call timeout was not applied")
	}
}

func TestRun_GuardBlocks(t *testing.T) {
	model := newScriptedModel()
	h := newHarness(model)
	h.guard.verdict = &types.Verdict{Blocked: true, Filter: "secrets", Reason: "credential detected"}

	_, err := h.svc.Run(context.Background(), generateReq())
	if KindOf(err) != KindContentBlocked {
		t.Fatalf("expected content_blocked, got %v", err)
	}
	if h.quota.calls != 0 || model.total() != 0 {
		t.Error("blocked requests consume nothing")
	}
}

func TestRun_SchemaStoreDown(t *testing.T) {
	h := newHarness(newScriptedModel())
	h.schemas.err = errors.New("redis: connection refused")

	_, err := h.svc.Run(context.Background(), generateReq())
	if KindOf(err) != KindDependency {
		t.Fatalf("expected dependency_unavailable, got %v", err)
	}
}

func TestRun_HistoryFailureIsWarning(t *testing.T) {
	model := newScriptedModel().
		on(types.PurposeGenerate, reply{text: `{"sql":"SELECT 1;"}`}).
		on(types.PurposeReview, reply{text: `{"sql":"SELECT 1;"}`})
	h := newHarness(model)
	h.history.err = errors.New("db down")

	res, err := h.svc.Run(context.Background(), generateReq())
	if err != nil {
		t.Fatalf("history failure must not fail the run: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", res.Warnings)
	}
}

func TestRun_InvalidMode(t *testing.T) {
	h := newHarness(newScriptedModel())
	_, err := h.svc.Run(context.Background(), &types.Request{Mode: "summarize", SQL: "select 1"})
	if KindOf(err) != KindInvalidMode {
		t.Fatalf("expected invalid_mode, got %v", err)
	}
}
