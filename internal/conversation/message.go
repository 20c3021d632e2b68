package conversation

import "strings"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlock is one element of a structured assistant message.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is one entry in a conversation. Content carries plain text;
// Blocks carries structured content when the provider returns it. Exactly one
// of the two is normally populated.
type Message struct {
	Role         Role
	Content      string
	Blocks       []ContentBlock
	Name         string
	ToolCallID   string
	ToolCalls    []ToolCall
	FinishReason string
}

// Text returns the plain content, falling back to the first structured block.
func (m Message) Text() string {
	if m.Content != "" || len(m.Blocks) == 0 {
		return m.Content
	}
	return m.Blocks[0].Text
}

// TerminationToken ends a chain when an assistant message consists of exactly
// this token after trimming surrounding whitespace. The match is exact:
// trailing punctuation or different casing does not terminate.
const TerminationToken = "END"

func IsTermination(m Message) bool {
	if m.Role != RoleAssistant || len(m.ToolCalls) > 0 {
		return false
	}
	if m.Content != "" {
		return strings.TrimSpace(m.Content) == TerminationToken
	}
	if len(m.Blocks) > 0 {
		return strings.TrimSpace(m.Blocks[0].Text) == TerminationToken
	}
	return false
}
