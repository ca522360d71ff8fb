package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/filter"
	"github.com/af-corp/querysmith/internal/sqlfmt"
	"github.com/af-corp/querysmith/internal/types"
)

// Policies live in package querysmith.policy and define allow and reason.
const decisionQuery = `decision := {"allow": data.querysmith.policy.allow, "reason": data.querysmith.policy.reason}`

const defaultEvalTimeout = 100 * time.Millisecond

// PolicyInput is the document policies see as input.
type PolicyInput struct {
	User    PolicyUser    `json:"user"`
	Request PolicyRequest `json:"request"`
	Time    PolicyTime    `json:"time"`
}

type PolicyUser struct {
	ID    string `json:"id"`
	KeyID string `json:"key_id"`
}

// PolicyRequest describes the submitted work. Statements holds the leading
// verb of each submitted SQL statement; it is empty for generate requests and
// for SQL the tokenizer could not read, which sets Unparsed instead.
type PolicyRequest struct {
	Mode       string   `json:"mode"`
	InputChars int      `json:"input_chars"`
	Statements []string `json:"statements"`
	Unparsed   bool     `json:"unparsed"`
}

type PolicyTime struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluator is the policy filter. Until Load succeeds every request is
// denied.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyFilterConfig
	now      func() time.Time
}

func NewEvaluator(cfg func() config.PolicyFilterConfig) *Evaluator {
	return &Evaluator{cfg: cfg, now: time.Now}
}

func (e *Evaluator) Name() string  { return "policy" }
func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles the modules under the configured bundle path. Calling it
// again swaps the compiled query atomically; a failed compile keeps the
// previous one.
func (e *Evaluator) Load() error {
	dir := e.cfg().BundlePath
	modules, err := LoadRegoFiles(dir)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", dir)
		return nil
	}
	if err := e.LoadFromModules(modules); err != nil {
		return err
	}
	slog.Info("opa policies loaded", "path", dir, "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from module name to source.
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	opts := make([]func(*rego.Rego), 0, len(modules)+1)
	opts = append(opts, rego.Query(decisionQuery))
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the compiled policies against input. A missing or
// malformed result is a denial, not an error.
func (e *Evaluator) Evaluate(ctx context.Context, input PolicyInput) (Decision, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()
	if prepared == nil {
		return Decision{Reason: "no policies loaded"}, nil
	}

	timeout := e.cfg().EvaluationTimeout
	if timeout <= 0 {
		timeout = defaultEvalTimeout
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return Decision{Reason: "policy evaluation error"}, err
	}
	if len(results) == 0 {
		return Decision{Reason: "no policy result"}, nil
	}

	doc, ok := results[0].Bindings["decision"].(map[string]interface{})
	if !ok {
		return Decision{Reason: "unexpected policy result format"}, nil
	}
	allowed, _ := doc["allow"].(bool)
	reason, _ := doc["reason"].(string)
	return Decision{Allowed: allowed, Reason: reason}, nil
}

func (e *Evaluator) input(req *types.Request) PolicyInput {
	now := e.now().UTC()
	in := PolicyInput{
		User: PolicyUser{ID: req.UserID, KeyID: req.APIKeyID},
		Request: PolicyRequest{
			Mode:       string(req.Mode),
			InputChars: len([]rune(req.Input())),
			Statements: []string{},
		},
		Time: PolicyTime{Hour: now.Hour(), Day: now.Weekday().String()},
	}
	if !req.Mode.TakesPrompt() {
		if verbs, err := sqlfmt.Statements(req.SQL); err != nil {
			in.Request.Unparsed = true
		} else if len(verbs) > 0 {
			in.Request.Statements = verbs
		}
	}
	return in
}

// ScanRequest implements filter.Filter. Evaluation errors block the request.
func (e *Evaluator) ScanRequest(ctx context.Context, req *types.Request) filter.Result {
	d, err := e.Evaluate(ctx, e.input(req))
	if err != nil {
		slog.Error("policy evaluation failed", "request_id", req.RequestID, "error", err)
		return filter.Result{Action: filter.ActionBlock, FilterName: "policy", Message: "policy evaluation failed"}
	}
	if !d.Allowed {
		return filter.Result{Action: filter.ActionBlock, FilterName: "policy", Message: "denied by policy: " + d.Reason}
	}
	return filter.Result{Action: filter.ActionPass, FilterName: "policy"}
}
