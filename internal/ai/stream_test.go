package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"hatch-backend/internal/ai"
	"hatch-backend/internal/ai/aitest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func collect(t *testing.T, stream *ai.TextStream) ([]ai.StreamPart, error) {
	t.Helper()
	var parts []ai.StreamPart
	for part, err := range stream.FullStream(context.Background()) {
		if err != nil {
			return parts, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func partTypes(parts []ai.StreamPart) []ai.StreamPartType {
	types := make([]ai.StreamPartType, len(parts))
	for i, p := range parts {
		types[i] = p.Type
	}
	return types
}

func TestStreamTextPlain(t *testing.T) {
	provider := aitest.NewProvider(aitest.Text("Hello", ", world"))
	stream := ai.StreamText(provider, ai.StreamTextOptions{
		Model:    "grok-2",
		System:   "be nice",
		Messages: []ai.Message{ai.TextMessage(ai.RoleUser, "hi")},
		MaxSteps: 5,
	})

	parts, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []ai.StreamPartType{
		ai.StreamStepStart, ai.StreamTextDelta, ai.StreamTextDelta, ai.StreamStepFinish, ai.StreamFinish,
	}, partTypes(parts))

	response := stream.ResponseMessages()
	require.Len(t, response, 1)
	assert.Equal(t, ai.RoleAssistant, response[0].Role)
	assert.Equal(t, "Hello, world", response[0].Text())
	assert.Equal(t, ai.FinishStop, stream.FinishReason())

	requests := provider.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "be nice", requests[0].System)
	assert.Equal(t, "grok-2", requests[0].Model)
}

func TestStreamTextToolLoop(t *testing.T) {
	provider := aitest.NewProvider(
		aitest.ToolCall("call-1", "lookup", map[string]string{"q": "deductible"}),
		aitest.Text("Your deductible is $500."),
	)

	var executed []string
	stream := ai.StreamText(provider, ai.StreamTextOptions{
		Messages: []ai.Message{ai.TextMessage(ai.RoleUser, "what's my deductible")},
		MaxSteps: 5,
		Tools: map[string]ai.Tool{
			"lookup": {
				Description: "look things up",
				Parameters:  map[string]any{"type": "object"},
				Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
					executed = append(executed, gjson.GetBytes(args, "q").String())
					return map[string]string{"answer": "500"}, nil
				},
			},
		},
	})

	parts, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"deductible"}, executed)
	assert.Equal(t, []ai.StreamPartType{
		ai.StreamStepStart, ai.StreamToolCallStart, ai.StreamToolCallDelta, ai.StreamToolCall, ai.StreamToolResult, ai.StreamStepFinish,
		ai.StreamStepStart, ai.StreamTextDelta, ai.StreamStepFinish,
		ai.StreamFinish,
	}, partTypes(parts))
	assert.True(t, parts[5].IsContinued)

	response := stream.ResponseMessages()
	require.Len(t, response, 3)
	assert.Equal(t, ai.RoleAssistant, response[0].Role)
	assert.Len(t, response[0].ToolCalls(), 1)
	assert.Equal(t, ai.RoleTool, response[1].Role)
	assert.JSONEq(t, `{"answer":"500"}`, string(response[1].ToolResults()[0].Result))
	assert.Equal(t, "Your deductible is $500.", response[2].Text())

	// The second round sees the tool call and its result.
	requests := provider.Requests()
	require.Len(t, requests, 2)
	assert.Len(t, requests[1].Messages, 3)
	require.Len(t, requests[0].Tools, 1)
	assert.Equal(t, "lookup", requests[0].Tools[0].Name)
}

func TestStreamTextMaxSteps(t *testing.T) {
	provider := aitest.NewProvider(
		aitest.ToolCall("call-1", "noop", map[string]string{}),
		aitest.ToolCall("call-2", "noop", map[string]string{}),
		aitest.Text("unreachable"),
	)

	calls := 0
	stream := ai.StreamText(provider, ai.StreamTextOptions{
		MaxSteps: 2,
		Tools: map[string]ai.Tool{
			"noop": {Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
				calls++
				return "ok", nil
			}},
		},
	})

	parts, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, provider.Remaining())
	assert.False(t, parts[len(parts)-2].IsContinued)
}

func TestStreamTextUnterminatedToolCall(t *testing.T) {
	provider := aitest.NewProvider(aitest.Response{Events: []ai.Event{
		{Type: ai.EventTextDelta, Text: "Creating it now"},
		{Type: ai.EventToolCallStart, ToolCallId: "call-1", ToolName: "noop"},
		{Type: ai.EventToolCallDelta, ToolCallId: "call-1", ToolName: "noop", ArgsDelta: `{"title": "Ap`},
		aitest.Finish(ai.FinishLength),
	}})

	stream := ai.StreamText(provider, ai.StreamTextOptions{
		MaxSteps: 5,
		Tools: map[string]ai.Tool{
			"noop": {Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
				t.Fatal("incomplete tool call must not run")
				return nil, nil
			}},
		},
	})

	_, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, 1, stream.DroppedToolCalls())

	response := stream.ResponseMessages()
	require.Len(t, response, 1)
	assert.Len(t, response[0].ToolCalls(), 1)
	assert.Empty(t, response[0].ToolResults())
}

func TestStreamTextOnlySendsAnsweredToolCalls(t *testing.T) {
	provider := aitest.NewProvider(
		aitest.Response{Events: []ai.Event{
			{Type: ai.EventToolCallStart, ToolCallId: "call-1", ToolName: "noop"},
			{Type: ai.EventToolCall, ToolCallId: "call-1", ToolName: "noop", Args: `{}`},
			{Type: ai.EventToolCallStart, ToolCallId: "call-2", ToolName: "noop"},
			{Type: ai.EventToolCallDelta, ToolCallId: "call-2", ToolName: "noop", ArgsDelta: `{"q": "de`},
			aitest.Finish(ai.FinishToolCalls),
		}},
		aitest.Text("Done."),
	)

	stream := ai.StreamText(provider, ai.StreamTextOptions{
		MaxSteps: 5,
		Tools: map[string]ai.Tool{
			"noop": {Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
				return "ok", nil
			}},
		},
	})

	_, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, 1, stream.DroppedToolCalls())

	requests := provider.Requests()
	require.Len(t, requests, 2)
	require.Len(t, requests[1].Messages, 2)
	calls := requests[1].Messages[0].ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call-1", calls[0].ToolCallId)
	assert.Equal(t, ai.RoleTool, requests[1].Messages[1].Role)

	// The cut-off call is still part of the response for sanitization.
	response := stream.ResponseMessages()
	require.Len(t, response, 3)
	assert.Len(t, response[0].ToolCalls(), 2)
}

func TestStreamTextErrors(t *testing.T) {
	upstream := errors.New("provider unavailable")
	provider := aitest.NewProvider(aitest.Response{
		Events: []ai.Event{{Type: ai.EventTextDelta, Text: "partial"}},
		Err:    upstream,
	})
	_, err := collect(t, ai.StreamText(provider, ai.StreamTextOptions{MaxSteps: 5}))
	assert.ErrorIs(t, err, upstream)

	provider = aitest.NewProvider(aitest.ToolCall("call-1", "missing", map[string]string{}))
	_, err = collect(t, ai.StreamText(provider, ai.StreamTextOptions{MaxSteps: 5}))
	assert.ErrorIs(t, err, ai.ErrUnknownTool)

	toolErr := errors.New("boom")
	provider = aitest.NewProvider(aitest.ToolCall("call-1", "fails", map[string]string{}))
	_, err = collect(t, ai.StreamText(provider, ai.StreamTextOptions{
		MaxSteps: 5,
		Tools: map[string]ai.Tool{
			"fails": {Execute: func(ctx context.Context, args json.RawMessage) (any, error) { return nil, toolErr }},
		},
	}))
	assert.ErrorIs(t, err, toolErr)
}

func TestStreamObject(t *testing.T) {
	provider := aitest.NewProvider(aitest.Text(`{"co`, `de": "print(`, `'hi')"}`))

	var codes []string
	for obj, err := range ai.StreamObject(context.Background(), provider, ai.StreamObjectOptions{
		Prompt: "hello world",
		Schema: ai.JSONSchema{Name: "code", Schema: map[string]any{"type": "object"}},
	}) {
		require.NoError(t, err)
		codes = append(codes, obj.Get("code").String())
	}

	assert.Equal(t, []string{"", "print(", "print('hi')"}, codes)

	requests := provider.Requests()
	require.Len(t, requests, 1)
	require.NotNil(t, requests[0].Schema)
	assert.Equal(t, "hello world", requests[0].Messages[0].Text())
}

func TestStreamObjectInvalid(t *testing.T) {
	provider := aitest.NewProvider(aitest.Text(`{"code": "unterminated`))
	var lastErr error
	for _, err := range ai.StreamObject(context.Background(), provider, ai.StreamObjectOptions{}) {
		lastErr = err
	}
	assert.ErrorIs(t, lastErr, ai.ErrNoObjectGenerated)
}

func TestStreamArray(t *testing.T) {
	provider := aitest.NewProvider(aitest.Text(
		`{"elements": [{"a": "1"`,
		`}, {"a": "2"}, {"a"`,
		`: "3"}]}`,
	))

	var seen []string
	for element, err := range ai.StreamArray(context.Background(), provider, ai.StreamObjectOptions{
		Schema: ai.JSONSchema{Name: "items", Schema: map[string]any{"type": "object"}},
	}) {
		require.NoError(t, err)
		seen = append(seen, element.Get("a").String())
	}

	assert.Equal(t, []string{"1", "2", "3"}, seen)

	schema := provider.Requests()[0].Schema.Schema
	assert.Contains(t, schema["properties"], "elements")
}
