package ai

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// Part is one piece of a message's content. The json form is what gets
// persisted as message content.
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallId string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

type Message struct {
	Role    Role   `json:"role"`
	Content []Part `json:"content"`
}

func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []Part{{Type: PartText, Text: text}}}
}

func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Content {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (m Message) partsOf(t PartType) []Part {
	var parts []Part
	for _, p := range m.Content {
		if p.Type == t {
			parts = append(parts, p)
		}
	}
	return parts
}

func (m Message) ToolCalls() []Part {
	return m.partsOf(PartToolCall)
}

func (m Message) ToolResults() []Part {
	return m.partsOf(PartToolResult)
}
