package filter

import (
	"context"
	"testing"

	"github.com/af-corp/querysmith/internal/types"
)

type stubFilter struct {
	name    string
	enabled bool
	result  Result
	calls   int
}

func (s *stubFilter) Name() string  { return s.name }
func (s *stubFilter) Enabled() bool { return s.enabled }

func (s *stubFilter) ScanRequest(_ context.Context, _ *types.Request) Result {
	s.calls++
	return s.result
}

func TestChain_StopsOnFirstBlock(t *testing.T) {
	secrets := &stubFilter{name: "secrets", enabled: true, result: Result{Action: ActionBlock, FilterName: "secrets", Message: "AWS Access Key detected in request", Detections: 1}}
	injection := &stubFilter{name: "injection", enabled: true, result: Result{Action: ActionPass, FilterName: "injection"}}

	chain := NewChain(nil, secrets, injection)
	results, blocked := chain.Run(context.Background(), &types.Request{})

	if blocked == nil || blocked.FilterName != "secrets" {
		t.Fatalf("expected secrets block, got %+v", blocked)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
	if injection.calls != 0 {
		t.Error("filters after a block must not run")
	}
}

func TestChain_SkipsDisabled(t *testing.T) {
	policy := &stubFilter{name: "policy", enabled: false, result: Result{Action: ActionBlock, FilterName: "policy"}}
	chain := NewChain(nil, policy)

	_, blocked := chain.Run(context.Background(), &types.Request{})
	if blocked != nil {
		t.Fatal("disabled filter must not block")
	}
	if policy.calls != 0 {
		t.Error("disabled filter must not run")
	}
}

func TestChain_Screen(t *testing.T) {
	chain := NewChain(nil,
		&stubFilter{name: "secrets", enabled: true, result: Result{Action: ActionPass, FilterName: "secrets"}},
		&stubFilter{name: "injection", enabled: true, result: Result{Action: ActionFlag, FilterName: "injection", Detections: 1, Score: 0.7}},
		&stubFilter{name: "policy", enabled: true, result: Result{Action: ActionBlock, FilterName: "policy", Message: "explain is disabled for trial keys"}},
	)

	v, err := chain.Screen(context.Background(), &types.Request{Mode: types.ModeExplain, SQL: "SELECT 1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Blocked || v.Filter != "policy" || v.Reason != "explain is disabled for trial keys" {
		t.Errorf("verdict = %+v", v)
	}
	if v.Summary.Injection.Action != "flag" || v.Summary.Injection.Score != 0.7 {
		t.Errorf("injection summary = %+v", v.Summary.Injection)
	}
	if v.Summary.Secrets.Action != "pass" {
		t.Errorf("secrets summary = %+v", v.Summary.Secrets)
	}
}

func TestChain_ScreenEmpty(t *testing.T) {
	v, err := NewChain(nil).Screen(context.Background(), &types.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Blocked {
		t.Error("empty chain must not block")
	}
}
