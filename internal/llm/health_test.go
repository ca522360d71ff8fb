package llm

import (
	"testing"
	"time"
)

func TestHealthTracker_LazyCreation(t *testing.T) {
	ht := NewHealthTracker(3, 5*time.Second)
	if !ht.Allow("openai") {
		t.Error("expected new provider to be available")
	}
	if len(ht.Snapshot()) != 1 {
		t.Error("expected breaker to be created on first use")
	}
}

func TestHealthTracker_IndependentProviders(t *testing.T) {
	ht := NewHealthTracker(1, time.Minute)

	ht.RecordFailure("openai")

	if ht.Allow("openai") {
		t.Error("expected openai to be unavailable")
	}
	if !ht.Allow("anthropic") {
		t.Error("expected anthropic to be available")
	}
	if !ht.AnyOpen() {
		t.Error("expected AnyOpen=true")
	}
}

func TestHealthTracker_Snapshot(t *testing.T) {
	ht := NewHealthTracker(1, time.Minute)
	ht.RecordSuccess("gemini")
	ht.RecordFailure("anthropic")

	got := ht.Snapshot()
	want := []ProviderState{
		{Provider: "anthropic", State: "open", Failures: 1},
		{Provider: "gemini", State: "closed"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d states, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("state[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHealthTracker_OnTransition(t *testing.T) {
	ht := NewHealthTracker(2, time.Minute)
	var seen []string
	ht.OnTransition(func(provider string, from, to CircuitState) {
		seen = append(seen, provider+":"+from.String()+"->"+to.String())
	})

	ht.RecordFailure("openai")
	ht.RecordFailure("openai")
	ht.Breaker("openai").Reset()
	ht.RecordFailure("gemini")

	want := []string{"openai:closed->open", "openai:open->closed"}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}
