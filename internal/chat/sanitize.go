package chat

import (
	"hatch-backend/internal/ai"
)

// SanitizeResponseMessages removes tool calls that never got a result, which
// happens when the stream ends while the model is still writing a call, and
// empty text parts. Messages left with no content are dropped.
func SanitizeResponseMessages(messages []ai.Message) []ai.Message {
	resolved := make(map[string]bool)
	for _, msg := range messages {
		for _, result := range msg.ToolResults() {
			resolved[result.ToolCallId] = true
		}
	}

	sanitized := make([]ai.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != ai.RoleAssistant {
			if len(msg.Content) > 0 {
				sanitized = append(sanitized, msg)
			}
			continue
		}

		var content []ai.Part
		for _, part := range msg.Content {
			switch part.Type {
			case ai.PartText:
				if part.Text == "" {
					continue
				}
			case ai.PartToolCall:
				if !resolved[part.ToolCallId] {
					continue
				}
			}
			content = append(content, part)
		}

		if len(content) > 0 {
			sanitized = append(sanitized, ai.Message{Role: msg.Role, Content: content})
		}
	}
	return sanitized
}
