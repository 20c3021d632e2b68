package submit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"taskchain/internal/artifact"
	"taskchain/internal/chain"
	"taskchain/internal/config"
)

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		TaskTimeoutSec:   180,
		OffsetTimeoutSec: 90,
		MaxAttempts:      4,
	}
}

func newTestSubmitter(t *testing.T, handler http.HandlerFunc, clock *time.Time) (*Submitter, *chain.Context, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	now := func() time.Time { return *clock }
	chainCtx := chain.NewContextAt(now)
	sub := New(chainCtx, artifact.NewStore(), srv.Client(), testLimits(), zerolog.Nop())
	sub.now = now
	return sub, chainCtx, srv
}

func TestCorrectAnswerAdvancesToNextTask(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sub, chainCtx, srv := newTestSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"correct": true, "url": "https://quiz.example/t2"})
	}, &clock)

	chainCtx.Reset("https://quiz.example/t1")
	result, err := sub.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"payload": map[string]any{"answer": "42"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["url"] != "https://quiz.example/t2" {
		t.Fatalf("result = %v", result)
	}
	if got := chainCtx.ActiveTask(); got != "https://quiz.example/t2" {
		t.Fatalf("active task = %s, want next task", got)
	}
	if _, armed := chainCtx.Offset(); armed {
		t.Fatal("offset must be cleared after advancing")
	}
	if _, ok := chainCtx.FirstSeen("https://quiz.example/t2"); !ok {
		t.Fatal("next task first-seen must be registered")
	}
}

func TestWrongAnswerWithinBudgetRetries(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sub, chainCtx, srv := newTestSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"correct": false, "url": "https://quiz.example/t2"})
	}, &clock)

	chainCtx.Reset("https://quiz.example/t1")
	result, err := sub.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"payload": map[string]any{"answer": "wrong"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["message"] != RetryDirective {
		t.Fatalf("result = %v, want retry directive", result)
	}
	if result["url"] != "https://quiz.example/t1" {
		t.Fatalf("retry must point back at the current task, got %v", result["url"])
	}
	if got := chainCtx.ActiveTask(); got != "https://quiz.example/t1" {
		t.Fatalf("active task = %s, must stay on current task", got)
	}
	if _, armed := chainCtx.Offset(); !armed {
		t.Fatal("offset must be armed while a retry is pending")
	}
}

func TestWrongAnswerAfterAttemptCapSkips(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sub, chainCtx, srv := newTestSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"correct": false,
			"url":     "https://quiz.example/t2",
			"hint":    "secret detail that must not leak on skip",
		})
	}, &clock)

	chainCtx.Reset("https://quiz.example/t1")
	for i := 0; i < 3; i++ {
		chainCtx.RecordAttempt("https://quiz.example/t1")
	}

	result, err := sub.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"payload": map[string]any{"answer": "still wrong"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result) != 1 || result["url"] != "https://quiz.example/t2" {
		t.Fatalf("skip result = %v, want bare next-url body", result)
	}
	if got := chainCtx.ActiveTask(); got != "https://quiz.example/t2" {
		t.Fatalf("active task = %s, want next task after give-up", got)
	}
	if _, armed := chainCtx.Offset(); armed {
		t.Fatal("offset must be cleared after moving on")
	}
}

func TestWrongAnswerAfterTaskTimeoutSkips(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sub, chainCtx, srv := newTestSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"correct": false, "url": "https://quiz.example/t2"})
	}, &clock)

	chainCtx.Reset("https://quiz.example/t1")
	clock = clock.Add(181 * time.Second)

	result, err := sub.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"payload": map[string]any{"answer": "late"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["url"] != "https://quiz.example/t2" {
		t.Fatalf("result = %v, want next task after timeout", result)
	}
	if got := chainCtx.ActiveTask(); got != "https://quiz.example/t2" {
		t.Fatalf("active task = %s", got)
	}
}

func TestWrongAnswerAfterOffsetTimeoutSkips(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sub, chainCtx, srv := newTestSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"correct": false, "url": "https://quiz.example/t2"})
	}, &clock)

	chainCtx.Reset("https://quiz.example/t1")
	first, err := sub.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"payload": map[string]any{"answer": "wrong"},
	})
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if first["message"] != RetryDirective {
		t.Fatalf("first result = %v, want retry", first)
	}

	clock = clock.Add(91 * time.Second)
	second, err := sub.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"payload": map[string]any{"answer": "wrong again"},
	})
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if second["url"] != "https://quiz.example/t2" {
		t.Fatalf("second result = %v, want skip to next task", second)
	}
	if _, armed := chainCtx.Offset(); armed {
		t.Fatal("offset must be cleared after moving on")
	}
}

func TestMissingNextURLFinishesChain(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sub, chainCtx, srv := newTestSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"correct": true})
	}, &clock)

	chainCtx.Reset("https://quiz.example/t1")
	result, err := sub.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"payload": map[string]any{"answer": "final"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["message"] != DoneMessage {
		t.Fatalf("result = %v, want completion message", result)
	}
	if got := chainCtx.ActiveTask(); got != "https://quiz.example/t1" {
		t.Fatalf("active task moved on completion: %s", got)
	}
}

func TestArtifactReferenceIsInflatedBeforePosting(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var posted map[string]any
	sub, chainCtx, srv := newTestSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&posted)
		json.NewEncoder(w).Encode(map[string]any{"correct": true, "url": "https://quiz.example/t2"})
	}, &clock)

	store := artifact.NewStore()
	sub.store = store
	ref := store.Put("aGVsbG8=")

	chainCtx.Reset("https://quiz.example/t1")
	if _, err := sub.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"payload": map[string]any{"answer": ref, "email": "a@b.c"},
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if posted["answer"] != "aGVsbG8=" {
		t.Fatalf("posted answer = %v, reference not inflated", posted["answer"])
	}
}

func TestRejectionWithJSONBodyIsNotAVerdict(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sub, chainCtx, srv := newTestSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "invalid answer format"})
	}, &clock)

	chainCtx.Reset("https://quiz.example/t1")
	result, err := sub.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"payload": map[string]any{"answer": "bad"},
	})
	if err != nil {
		t.Fatalf("rejections must come back as results, got error: %v", err)
	}
	if _, done := result["message"]; done {
		t.Fatalf("result = %v, rejection must not read as a completed chain", result)
	}
	body, ok := result["error"].(map[string]any)
	if !ok || body["error"] != "invalid answer format" {
		t.Fatalf("result = %v, want rejection body under error key", result)
	}
	if got := chainCtx.ActiveTask(); got != "https://quiz.example/t1" {
		t.Fatalf("active task changed on rejection: %s", got)
	}
	if _, armed := chainCtx.Offset(); armed {
		t.Fatal("offset must not be touched by a rejection")
	}
}

func TestRejectionWithURLInBodyDoesNotAdvance(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sub, chainCtx, srv := newTestSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"correct": true,
			"url":     "https://quiz.example/t2",
		})
	}, &clock)

	chainCtx.Reset("https://quiz.example/t1")
	if _, err := sub.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"payload": map[string]any{"answer": "x"},
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := chainCtx.ActiveTask(); got != "https://quiz.example/t1" {
		t.Fatalf("active task advanced off a rejection body: %s", got)
	}
	if _, known := chainCtx.FirstSeen("https://quiz.example/t2"); known {
		t.Fatal("rejection body must not register a next task")
	}
}

func TestRejectionWithTextBodyComesBackAsText(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sub, chainCtx, srv := newTestSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited, slow down", http.StatusTooManyRequests)
	}, &clock)

	chainCtx.Reset("https://quiz.example/t1")
	result, err := sub.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"payload": map[string]any{"answer": "x"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	msg, _ := result["error"].(string)
	if !strings.Contains(msg, "429") || !strings.Contains(msg, "rate limited") {
		t.Fatalf("result = %v, want status and body text", result)
	}
	if got := chainCtx.ActiveTask(); got != "https://quiz.example/t1" {
		t.Fatalf("active task changed on rejection: %s", got)
	}
}

func TestTransportErrorComesBackAsResult(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	chainCtx := chain.NewContextAt(now)
	chainCtx.Reset("https://quiz.example/t1")

	sub := New(chainCtx, artifact.NewStore(), &http.Client{Timeout: 50 * time.Millisecond}, testLimits(), zerolog.Nop())
	sub.now = now

	result, err := sub.Execute(context.Background(), map[string]any{
		"url":     "http://127.0.0.1:1/submit",
		"payload": map[string]any{"answer": "x"},
	})
	if err != nil {
		t.Fatalf("transport failures must come back as results, got error: %v", err)
	}
	msg, _ := result["error"].(string)
	if !strings.Contains(msg, "post answer") {
		t.Fatalf("result = %v, want transport error entry", result)
	}
	if got := chainCtx.ActiveTask(); got != "https://quiz.example/t1" {
		t.Fatalf("active task changed on transport failure: %s", got)
	}
}

func TestMalformedInvocationIsHardError(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sub, _, _ := newTestSubmitter(t, func(w http.ResponseWriter, r *http.Request) {}, &clock)

	if _, err := sub.Execute(context.Background(), map[string]any{"payload": map[string]any{}}); err == nil {
		t.Fatal("missing url must be rejected")
	}
	if _, err := sub.Execute(context.Background(), map[string]any{"url": "http://x"}); err == nil {
		t.Fatal("missing payload must be rejected")
	}
}
