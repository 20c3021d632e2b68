package conversation

// Conversation is the append-only message history for one chain execution.
// Trimming never mutates the stored history; Window produces a bounded view.
type Conversation struct {
	msgs []Message
}

func New() *Conversation {
	return &Conversation{}
}

func (c *Conversation) Append(msgs ...Message) {
	c.msgs = append(c.msgs, msgs...)
}

func (c *Conversation) Len() int {
	return len(c.msgs)
}

// Messages returns a copy of the full history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Window returns a view of the history that fits maxTokens: the system
// message (when the history starts with one) plus the newest suffix of the
// remainder, realigned so the suffix starts on a user message. hasUser
// reports whether the view contains a user message; when it does not, the
// caller appends a synthetic reminder before invoking the model.
func (c *Conversation) Window(maxTokens int) (view []Message, hasUser bool) {
	if len(c.msgs) == 0 {
		return nil, false
	}

	var system []Message
	rest := c.msgs
	if rest[0].Role == RoleSystem {
		system = rest[:1]
		rest = rest[1:]
	}

	budget := maxTokens
	for _, m := range system {
		budget -= EstimateTokens(m)
	}

	// Keep the newest messages that fit.
	start := len(rest)
	used := 0
	for i := len(rest) - 1; i >= 0; i-- {
		cost := EstimateTokens(rest[i])
		if used+cost > budget && start < len(rest) {
			break
		}
		used += cost
		start = i
	}

	// Realign so the window opens on a user message. A window that starts
	// mid-exchange (on an assistant or tool message) confuses providers.
	aligned := start
	for aligned < len(rest) && rest[aligned].Role != RoleUser {
		aligned++
	}
	if aligned < len(rest) {
		start = aligned
	}

	view = append(view, system...)
	view = append(view, rest[start:]...)
	for _, m := range view {
		if m.Role == RoleUser {
			hasUser = true
			break
		}
	}
	return view, hasUser
}
