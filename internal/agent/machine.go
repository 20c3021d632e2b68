// Package agent holds the orchestration core: the conversation state
// machine that drives a task chain turn by turn, and the chain driver that
// seeds and runs it.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"taskchain/internal/chain"
	"taskchain/internal/config"
	"taskchain/internal/conversation"
	"taskchain/internal/gateway"
	"taskchain/internal/tools"
)

type State int

const (
	StateStart State = iota
	StateReasoning
	StateToolDispatch
	StateMalformedRecovery
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateReasoning:
		return "reasoning"
	case StateToolDispatch:
		return "tool_dispatch"
	case StateMalformedRecovery:
		return "malformed_recovery"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ErrBudgetExhausted aborts a chain whose transition count exceeded the
// recurrence budget. It is an operational failure, not a task result.
var ErrBudgetExhausted = errors.New("state transition budget exhausted")

// Completer is the model gateway surface the machine needs.
type Completer interface {
	Complete(ctx context.Context, msgs []conversation.Message, tools []gateway.ToolDefinition) (conversation.Message, error)
}

const (
	malformedInstruction = "SYSTEM ERROR: Your previous tool call was Malformed (Invalid JSON). Resend the tool call as well-formed JSON: escape newlines (\\n) and quotes inside string values."

	timeoutInstructionFmt = "SYSTEM: You have exceeded the time limit for the current quiz. Immediately submit a deliberately WRONG answer for the CURRENT quiz using the post_request tool so the chain can move on. Current quiz URL: %s"

	contextClearedFmt = "Context cleared due to length. Continue processing URL: %s"
)

// Machine advances one chain through the reasoning loop: model turns, tool
// dispatch, malformed recovery, and END termination.
type Machine struct {
	conv     *conversation.Conversation
	chain    *chain.Context
	registry *tools.Registry
	llm      Completer
	broker   *callBroker
	limits   config.LimitsConfig
	log      zerolog.Logger
	now      func() time.Time

	systemPrompt string
	startTask    string
	toolDefs     []gateway.ToolDefinition
	pending      []conversation.ToolCall
}

func NewMachine(chainCtx *chain.Context, registry *tools.Registry, llm Completer, limits config.LimitsConfig, systemPrompt, startTask string, log zerolog.Logger) *Machine {
	defs := make([]gateway.ToolDefinition, 0)
	for _, t := range registry.List() {
		defs = append(defs, gateway.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return &Machine{
		conv:         conversation.New(),
		chain:        chainCtx,
		registry:     registry,
		llm:          llm,
		broker:       newCallBroker(),
		limits:       limits,
		log:          log,
		now:          time.Now,
		systemPrompt: systemPrompt,
		startTask:    startTask,
		toolDefs:     defs,
	}
}

// Run drives the machine to a terminal state. Model gateway failures and
// budget exhaustion are fatal; everything else feeds back into the
// conversation and the loop continues.
func (m *Machine) Run(ctx context.Context) error {
	state := StateStart
	transitions := 0
	for state != StateTerminated {
		transitions++
		if transitions > m.limits.MaxTransitions {
			m.log.Error().Int("transitions", transitions).Msg("chain aborted")
			return ErrBudgetExhausted
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch state {
		case StateStart:
			m.seed()
			state = StateReasoning
		case StateReasoning:
			state, err = m.reason(ctx)
		case StateToolDispatch:
			err = m.dispatch(ctx)
			state = StateReasoning
		case StateMalformedRecovery:
			m.conv.Append(conversation.Message{
				Role:    conversation.RoleUser,
				Content: malformedInstruction,
			})
			state = StateReasoning
		}
		if err != nil {
			return err
		}
	}
	m.log.Info().Int("transitions", transitions).Msg("chain terminated")
	return nil
}

func (m *Machine) seed() {
	m.conv.Append(
		conversation.Message{Role: conversation.RoleSystem, Content: m.systemPrompt},
		conversation.Message{Role: conversation.RoleUser, Content: m.startTask},
	)
}

func (m *Machine) reason(ctx context.Context) (State, error) {
	resp, err := m.llm.Complete(ctx, m.promptView(), m.toolDefs)
	if err != nil {
		return StateTerminated, fmt.Errorf("model turn: %w", err)
	}
	m.conv.Append(resp)

	switch {
	case resp.FinishReason == gateway.FinishMalformed:
		return StateMalformedRecovery, nil
	case len(resp.ToolCalls) > 0:
		m.pending = resp.ToolCalls
		return StateToolDispatch, nil
	case conversation.IsTermination(resp):
		return StateTerminated, nil
	default:
		return StateReasoning, nil
	}
}

// promptView assembles the messages for the next model turn. A task that
// ran over its time budget gets the forced wrong-answer instruction instead
// of the normal trimming pass; injected instructions are view-only and never
// enter the stored history.
func (m *Machine) promptView() []conversation.Message {
	active := m.chain.ActiveTask()

	if m.timedOut(active) {
		m.log.Warn().Str("task", active).Msg("task over time budget, forcing wrong answer")
		return append(m.conv.Messages(), conversation.Message{
			Role:    conversation.RoleUser,
			Content: fmt.Sprintf(timeoutInstructionFmt, active),
		})
	}

	view, hasUser := m.conv.Window(m.limits.MaxContextTokens)
	if !hasUser {
		view = append(view, conversation.Message{
			Role:    conversation.RoleUser,
			Content: fmt.Sprintf(contextClearedFmt, active),
		})
	}
	return view
}

func (m *Machine) timedOut(active string) bool {
	if elapsed, ok := m.chain.Elapsed(active); ok && elapsed >= m.limits.TaskTimeout() {
		return true
	}
	if offset, armed := m.chain.Offset(); armed && m.now().Sub(offset) > m.limits.OffsetTimeout() {
		return true
	}
	return false
}

// dispatch executes every pending tool call and appends the results in
// request order. Calls in one turn have no ordering dependency and run
// concurrently when there is more than one.
func (m *Machine) dispatch(ctx context.Context) error {
	calls := m.pending
	m.pending = nil

	results := make([]conversation.Message, len(calls))
	if len(calls) == 1 {
		results[0] = m.executeCall(ctx, calls[0])
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i, tc := range calls {
			i, tc := i, tc
			g.Go(func() error {
				results[i] = m.executeCall(gctx, tc)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	m.conv.Append(results...)
	return nil
}

// executeCall resolves and runs one tool call. Every failure mode comes
// back as a tool message; the model sees the error and reacts.
func (m *Machine) executeCall(ctx context.Context, tc conversation.ToolCall) conversation.Message {
	args := map[string]any{}
	if tc.Arguments != "" {
		var decoded any
		if err := json.Unmarshal([]byte(tc.Arguments), &decoded); err != nil {
			return toolErrorMessage(tc, fmt.Sprintf("invalid tool arguments JSON: %v", err))
		}
		obj, ok := decoded.(map[string]any)
		if !ok {
			return toolErrorMessage(tc, "tool arguments must be a JSON object")
		}
		args = obj
	}

	tool, ok := m.registry.Lookup(tc.Name)
	if !ok {
		return toolErrorMessage(tc, fmt.Sprintf("tool %q not registered", tc.Name))
	}

	start := m.now()
	result, err, cached := m.runTool(ctx, tool, args)
	evt := m.log.Debug().
		Str("tool", tc.Name).
		Dur("took", time.Since(start)).
		Bool("cached", cached)
	if err != nil {
		evt.Err(err).Msg("tool call failed")
		return toolErrorMessage(tc, err.Error())
	}
	evt.Msg("tool call done")
	return toolResultMessage(tc, result)
}

func (m *Machine) runTool(ctx context.Context, tool tools.Tool, args map[string]any) (map[string]any, error, bool) {
	run := func(runCtx context.Context) (map[string]any, error) {
		if key := lockKeyFor(args); key != "" {
			return m.broker.WithResourceLock(runCtx, key, func(lockedCtx context.Context) (map[string]any, error) {
				return tool.Execute(lockedCtx, args)
			})
		}
		return tool.Execute(runCtx, args)
	}

	if c, ok := tool.(tools.Cacheable); ok && c.Cacheable() {
		return m.broker.Do(ctx, cacheKeyFor(tool.Name(), args), run)
	}
	out, err := run(ctx)
	return out, err, false
}

func toolResultMessage(tc conversation.ToolCall, result map[string]any) conversation.Message {
	payload := map[string]any{"ok": true, "result": result}
	b, _ := json.Marshal(payload)
	return conversation.Message{
		Role:       conversation.RoleTool,
		Name:       tc.Name,
		ToolCallID: tc.ID,
		Content:    string(b),
	}
}

func toolErrorMessage(tc conversation.ToolCall, message string) conversation.Message {
	payload := map[string]any{"ok": false, "error": message}
	b, _ := json.Marshal(payload)
	return conversation.Message{
		Role:       conversation.RoleTool,
		Name:       tc.Name,
		ToolCallID: tc.ID,
		Content:    string(b),
	}
}
