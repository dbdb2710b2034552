package llm

// TrimMessages trims a conversation to fit within a token budget.
//
// The budget should already account for the system prompt and a reserve
// for the model's output. This function only manages the message list.
//
// Messages are grouped into exchanges (a user message plus the assistant
// replies that follow it). The most recent exchange is always kept and
// the oldest are dropped first, so the trimmed history still opens with a
// user turn.
func TrimMessages(messages []Message, maxTokens int) []Message {
	if len(messages) == 0 {
		return messages
	}

	groups := groupMessages(messages)

	total := 0
	for _, g := range groups {
		total += g.tokens
	}

	if total <= maxTokens {
		return messages
	}

	kept := total
	dropUntil := 0
	for dropUntil < len(groups)-1 && kept > maxTokens {
		kept -= groups[dropUntil].tokens
		dropUntil++
	}

	var trimmed []Message
	for _, g := range groups[dropUntil:] {
		trimmed = append(trimmed, g.messages...)
	}
	return trimmed
}

// messageGroup is a unit of conversation that is kept or dropped whole.
type messageGroup struct {
	messages []Message
	tokens   int
}

// groupMessages starts a new group at every user message. Assistant
// messages join the group before them; leading assistant messages form a
// group of their own.
func groupMessages(messages []Message) []messageGroup {
	var groups []messageGroup
	for _, msg := range messages {
		if msg.Role == RoleUser || len(groups) == 0 {
			groups = append(groups, messageGroup{})
		}
		g := &groups[len(groups)-1]
		g.messages = append(g.messages, msg)
		g.tokens += EstimateMessageTokens(msg)
	}
	return groups
}
