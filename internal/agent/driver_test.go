package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"taskchain/internal/artifact"
	"taskchain/internal/chain"
	"taskchain/internal/config"
	"taskchain/internal/tools"
)

func driverConfig() config.Config {
	cfg := config.Default()
	cfg.Identity.Email = "operator@example.com"
	cfg.Identity.Secret = "s3cret"
	return cfg
}

func TestSolveResetsChainScopedState(t *testing.T) {
	chainCtx := chain.NewContext()
	store := artifact.NewStore()

	// Leftovers from a previous chain.
	chainCtx.Reset("https://quiz.example/old")
	chainCtx.RecordAttempt("https://quiz.example/old")
	store.Put("stale payload")

	d := NewDriver(chainCtx, store, tools.NewRegistry(), &scriptedLLM{}, driverConfig(), zerolog.Nop())
	if err := d.Solve(context.Background(), startTask); err != nil {
		t.Fatalf("Solve: %v", err)
	}

	if got := chainCtx.ActiveTask(); got != startTask {
		t.Fatalf("active task = %s, want start task", got)
	}
	if got := chainCtx.Attempts("https://quiz.example/old"); got != 0 {
		t.Fatalf("old attempts survived reset: %d", got)
	}
	if store.Len() != 0 {
		t.Fatalf("artifact store not reset, %d entries", store.Len())
	}
	if _, ok := chainCtx.FirstSeen(startTask); !ok {
		t.Fatal("start task first-seen not registered")
	}
}

func TestSolveSeedsIdentityIntoSystemPrompt(t *testing.T) {
	llm := &scriptedLLM{}
	d := NewDriver(chain.NewContext(), artifact.NewStore(), tools.NewRegistry(), llm, driverConfig(), zerolog.Nop())
	if err := d.Solve(context.Background(), startTask); err != nil {
		t.Fatalf("Solve: %v", err)
	}

	first := llm.call(0)
	system := first[0].Content
	if !strings.Contains(system, "operator@example.com") || !strings.Contains(system, "s3cret") {
		t.Fatal("system prompt must carry the submission identity")
	}
}

func TestSolveSurfacesBudgetExhaustion(t *testing.T) {
	cfg := driverConfig()
	cfg.Limits.MaxTransitions = 3

	llm := &scriptedLLM{}
	for i := 0; i < 10; i++ {
		llm.responses = append(llm.responses, assistantToolCall())
	}
	// Plain non-terminating content loops Reasoning forever.
	for i := range llm.responses {
		llm.responses[i].Content = "working on it"
		llm.responses[i].ToolCalls = nil
	}

	d := NewDriver(chain.NewContext(), artifact.NewStore(), tools.NewRegistry(), llm, cfg, zerolog.Nop())
	if err := d.Solve(context.Background(), startTask); err == nil {
		t.Fatal("expected budget exhaustion to surface")
	}
}
