package gateway

import (
	"context"

	"taskchain/internal/conversation"
)

// FinishMalformed is the finish-reason the provider reports when the model
// produced a tool call it could not encode as valid JSON. The state machine
// recovers from it with a corrective instruction.
const FinishMalformed = "MALFORMED_FUNCTION_CALL"

type Request struct {
	Model    string
	Messages []conversation.Message
	Tools    []ToolDefinition
}

type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Provider turns a conversation into exactly one assistant message. It
// performs no retries; retry and timeout policy live above this layer.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (conversation.Message, error)
}
