package ai

import (
	"context"
	"iter"
)

type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type JSONSchema struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Request is a single round trip to the model.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Tools    []ToolDefinition
	// Constrains the output to a json document matching the schema.
	Schema *JSONSchema
	// Expected output, used by providers that support predicted outputs to
	// speed up small edits of existing content.
	Prediction string
}

type EventType string

const (
	EventTextDelta     EventType = "text-delta"
	EventToolCallStart EventType = "tool-call-streaming-start"
	EventToolCallDelta EventType = "tool-call-delta"
	EventToolCall      EventType = "tool-call"
	EventFinish        EventType = "finish"
)

type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishContentFilter FinishReason = "content-filter"
	FinishUnknown       FinishReason = "unknown"
)

type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
	}
}

// Event is one item of a provider stream. A tool call is reported with
// EventToolCallStart, any number of EventToolCallDelta, and finally
// EventToolCall once its arguments are complete. Calls that never reach
// EventToolCall were cut off and must not be executed.
type Event struct {
	Type         EventType
	Text         string
	ToolCallId   string
	ToolName     string
	ArgsDelta    string
	Args         string
	FinishReason FinishReason
	Usage        Usage
}

type Provider interface {
	Stream(ctx context.Context, req Request) iter.Seq2[Event, error]
}
