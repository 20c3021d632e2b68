// Package submit implements the answer submission protocol. Submissions are
// a tool like any other, but they are the only place chain timing state is
// consulted and advanced: every response decides whether the chain retries
// the current task or moves on to the next one.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"taskchain/internal/artifact"
	"taskchain/internal/chain"
	"taskchain/internal/config"
)

const (
	// RetryDirective is surfaced to the model when a wrong answer should be
	// attempted again instead of moving on.
	RetryDirective = "Retry Again!"

	// DoneMessage is returned when the grader stops handing out task URLs.
	DoneMessage = "Tasks completed"
)

const answerLogLimit = 100

// Submitter posts answer payloads to the grader and applies the retry and
// give-up policy against the shared chain timing state.
type Submitter struct {
	chain  *chain.Context
	store  *artifact.Store
	client *http.Client
	limits config.LimitsConfig
	log    zerolog.Logger
	now    func() time.Time
}

func New(chainCtx *chain.Context, store *artifact.Store, client *http.Client, limits config.LimitsConfig, log zerolog.Logger) *Submitter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Submitter{
		chain:  chainCtx,
		store:  store,
		client: client,
		limits: limits,
		log:    log,
		now:    time.Now,
	}
}

func (s *Submitter) Name() string { return "post_request" }

func (s *Submitter) Description() string {
	return "Submit an answer payload as JSON to the given URL and return the grader response. The response tells you whether to retry or which URL to process next."
}

func (s *Submitter) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Submission endpoint URL",
			},
			"payload": map[string]any{
				"type":        "object",
				"description": "JSON body to post, including the answer field",
			},
		},
		"required":             []string{"url", "payload"},
		"additionalProperties": false,
	}
}

// Execute posts the payload and folds the grader verdict into the chain
// state. Transport and grader failures come back as structured results so
// the model can retry; only malformed invocations are hard errors.
func (s *Submitter) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	endpoint, _ := args["url"].(string)
	payload, _ := args["payload"].(map[string]any)
	if endpoint == "" || payload == nil {
		return nil, fmt.Errorf("url and payload are required")
	}

	s.inflateAnswer(payload)

	active := s.chain.ActiveTask()
	attempt := s.chain.RecordAttempt(active)
	s.log.Info().
		Str("task", active).
		Int("attempt", attempt).
		Str("answer", answerPreview(payload["answer"])).
		Msg("submitting answer")

	body, status, err := s.post(ctx, endpoint, payload)
	if err != nil {
		s.log.Warn().Err(err).Str("task", active).Msg("submission failed")
		return map[string]any{"error": err.Error()}, nil
	}
	if status >= 400 {
		// A rejection body is not a verdict; it must never touch the
		// active-task pointer or the timers.
		s.log.Warn().Int("status", status).Str("task", active).Msg("submission rejected")
		return map[string]any{"error": body}, nil
	}

	return s.applyVerdict(active, attempt, body), nil
}

// inflateAnswer swaps an artifact reference for its stored payload so the
// encoded content never transits the conversation.
func (s *Submitter) inflateAnswer(payload map[string]any) {
	answer, ok := payload["answer"].(string)
	if !ok || !artifact.IsRef(answer) {
		return
	}
	if full, ok := s.store.Resolve(answer); ok {
		payload["answer"] = full
	}
}

func (s *Submitter) post(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("post answer: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	body := map[string]any{}
	if err := json.Unmarshal(data, &body); err != nil {
		if resp.StatusCode >= 400 {
			return nil, 0, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// applyVerdict decides between advancing to the next task and retrying the
// current one, updating the active-task pointer and the offset timer.
func (s *Submitter) applyVerdict(active string, attempt int, body map[string]any) map[string]any {
	nextURL, _ := body["url"].(string)
	if nextURL == "" {
		s.chain.ClearOffset()
		return map[string]any{"message": DoneMessage}
	}

	nextFirstSeen := s.chain.Touch(nextURL)

	correct, hasVerdict := body["correct"].(bool)
	if hasVerdict && !correct {
		elapsed, _ := s.chain.Elapsed(active)
		overBudget := attempt >= s.limits.MaxAttempts || elapsed >= s.limits.TaskTimeout()
		if offset, armed := s.chain.Offset(); armed && s.now().Sub(offset) > s.limits.OffsetTimeout() {
			overBudget = true
		}

		if !overBudget {
			s.chain.SetOffset(nextFirstSeen)
			body["url"] = active
			body["message"] = RetryDirective
			s.chain.SetActiveTask(active)
			s.log.Info().Str("task", active).Int("attempt", attempt).Msg("wrong answer, retrying")
			return body
		}
		s.log.Info().
			Str("task", active).
			Int("attempt", attempt).
			Dur("elapsed", elapsed).
			Msg("giving up on task, moving on")
		body = map[string]any{"url": nextURL}
	}

	s.chain.SetActiveTask(nextURL)
	s.chain.ClearOffset()
	return body
}

func answerPreview(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > answerLogLimit {
		return s[:answerLogLimit]
	}
	return s
}
