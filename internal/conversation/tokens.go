package conversation

// Character-based token estimate; close enough for budget trimming without a
// model-specific tokenizer.
const charsPerToken = 4

func EstimateTokens(m Message) int {
	chars := len(m.Content)
	for _, b := range m.Blocks {
		chars += len(b.Text)
	}
	for _, tc := range m.ToolCalls {
		chars += len(tc.Name) + len(tc.Arguments)
	}
	if chars == 0 {
		return 1
	}
	return (chars + charsPerToken - 1) / charsPerToken
}
