package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"taskchain/internal/config"
	"taskchain/internal/conversation"
)

// ChatProvider speaks the chat-completions wire format most hosted reasoning
// endpoints expose.
type ChatProvider struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func (p *ChatProvider) Name() string { return p.cfg.Name }

func (p *ChatProvider) Complete(ctx context.Context, req Request) (conversation.Message, error) {
	payload := map[string]any{
		"model":    coalesce(req.Model, p.cfg.Model),
		"messages": wireMessages(req.Messages),
		"stream":   false,
	}
	if len(req.Tools) > 0 {
		payload["tools"] = wireTools(req.Tools)
		payload["tool_choice"] = "auto"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, chatCompletionsURL(p.cfg.BaseURL), bytes.NewReader(body))
	if err != nil {
		return conversation.Message{}, fmt.Errorf("create chat request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")
	for k, v := range p.cfg.Headers {
		hreq.Header.Set(k, v)
	}
	if p.cfg.APIKeyEnv != "" {
		if key := strings.TrimSpace(os.Getenv(p.cfg.APIKeyEnv)); key != "" {
			hreq.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := p.client.Do(hreq)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("chat http call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return conversation.Message{}, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return conversation.Message{}, fmt.Errorf("chat status %d: %s", resp.StatusCode, snippet(string(respBody), 500))
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return conversation.Message{}, fmt.Errorf("parse chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return conversation.Message{}, fmt.Errorf("chat response had no choices")
	}
	choice := out.Choices[0]

	msg := conversation.Message{
		Role:         conversation.RoleAssistant,
		Content:      contentString(choice.Message.Content),
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, conversation.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return msg, nil
}

func wireMessages(msgs []conversation.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		role := string(m.Role)
		if role == "" {
			continue
		}
		wire := map[string]any{"role": role}
		if len(m.ToolCalls) > 0 {
			calls := make([]map[string]any, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, map[string]any{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]any{
						"name":      tc.Name,
						"arguments": tc.Arguments,
					},
				})
			}
			wire["tool_calls"] = calls
			if m.Content == "" {
				wire["content"] = nil
			} else {
				wire["content"] = m.Content
			}
		} else {
			wire["content"] = m.Text()
		}
		if m.ToolCallID != "" {
			wire["tool_call_id"] = m.ToolCallID
		}
		if m.Name != "" && m.Role != conversation.RoleTool {
			wire["name"] = m.Name
		}
		out = append(out, wire)
	}
	return out
}

func wireTools(tools []ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return out
}

type chatCompletionResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	FinishReason string          `json:"finish_reason"`
	Message      chatWireMessage `json:"message"`
}

type chatWireMessage struct {
	Role      string         `json:"role"`
	Content   any            `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// MockProvider answers with a canned echo of the request; used in tests and
// for dry runs without a configured endpoint.
type MockProvider struct {
	name  string
	model string
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) Complete(_ context.Context, req Request) (conversation.Message, error) {
	parts := []string{fmt.Sprintf("model=%s", coalesce(req.Model, p.model, "mock-small"))}
	parts = append(parts, fmt.Sprintf("messages=%d", len(req.Messages)))
	if len(req.Tools) > 0 {
		parts = append(parts, fmt.Sprintf("tools=%d", len(req.Tools)))
	}
	return conversation.Message{
		Role:         conversation.RoleAssistant,
		Content:      "[mock-provider] " + strings.Join(parts, " | "),
		FinishReason: "stop",
	}, nil
}

// NewProvider builds the provider declared by cfg.
func NewProvider(cfg config.ProviderConfig) Provider {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	switch cfg.Type {
	case "mock":
		return &MockProvider{name: cfg.Name, model: cfg.Model}
	default:
		return &ChatProvider{cfg: cfg, client: &http.Client{Timeout: timeout}}
	}
}

func chatCompletionsURL(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

func contentString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
