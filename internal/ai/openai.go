package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider talks to any OpenAI compatible chat completions api.
type OpenAIProvider struct {
	client openai.Client
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(2)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		params, err := buildParams(req)
		if err != nil {
			yield(Event{}, err)
			return
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		calls := make(map[int64]*pendingToolCall)
		var order []int64
		finish := FinishUnknown
		var usage Usage

		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage = Usage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens}
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !yield(Event{Type: EventTextDelta, Text: choice.Delta.Content}, nil) {
						return
					}
				}

				for _, tc := range choice.Delta.ToolCalls {
					call, ok := calls[tc.Index]
					if !ok {
						call = &pendingToolCall{id: tc.ID, name: tc.Function.Name}
						if call.id == "" {
							call.id = fmt.Sprintf("call_%d", tc.Index)
						}
						calls[tc.Index] = call
						order = append(order, tc.Index)
						if !yield(Event{Type: EventToolCallStart, ToolCallId: call.id, ToolName: call.name}, nil) {
							return
						}
					}
					if tc.Function.Arguments != "" {
						call.args.WriteString(tc.Function.Arguments)
						if !yield(Event{Type: EventToolCallDelta, ToolCallId: call.id, ToolName: call.name, ArgsDelta: tc.Function.Arguments}, nil) {
							return
						}
					}
				}

				if choice.FinishReason != "" {
					finish = mapFinishReason(choice.FinishReason)
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield(Event{}, fmt.Errorf("error streaming completion: %w", err))
			return
		}

		for _, idx := range order {
			call := calls[idx]
			args := call.args.String()
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			if !json.Valid([]byte(args)) {
				slog.Warn("discarding tool call with incomplete arguments", "tool", call.name, "tool_call_id", call.id)
				continue
			}
			if !yield(Event{Type: EventToolCall, ToolCallId: call.id, ToolName: call.name, Args: args}, nil) {
				return
			}
		}

		yield(Event{Type: EventFinish, FinishReason: finish, Usage: usage}, nil)
	}
}

func mapFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishUnknown
	}
}

func buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		converted, err := convertMessage(msg)
		if err != nil {
			return params, err
		}
		params.Messages = append(params.Messages, converted...)
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  shared.FunctionParameters(tool.Parameters),
			},
		})
	}
	if len(req.Tools) > 0 {
		params.ParallelToolCalls = openai.Bool(false)
	}

	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.Schema.Name,
					Description: openai.String(req.Schema.Description),
					Schema:      req.Schema.Schema,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	if req.Prediction != "" {
		params.Prediction = openai.ChatCompletionPredictionContentParam{
			Content: openai.ChatCompletionPredictionContentContentUnionParam{
				OfString: openai.String(req.Prediction),
			},
		}
	}

	return params, nil
}

func convertMessage(msg Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case RoleSystem:
		return []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(msg.Text())}, nil
	case RoleUser:
		return []openai.ChatCompletionMessageParamUnion{openai.UserMessage(msg.Text())}, nil
	case RoleAssistant:
		assistant := openai.ChatCompletionAssistantMessageParam{}
		if text := msg.Text(); text != "" {
			assistant.Content.OfString = openai.String(text)
		}
		for _, call := range msg.ToolCalls() {
			args := string(call.Args)
			if args == "" {
				args = "{}"
			}
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: call.ToolCallId,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      call.ToolName,
					Arguments: args,
				},
			})
		}
		return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &assistant}}, nil
	case RoleTool:
		var out []openai.ChatCompletionMessageParamUnion
		for _, result := range msg.ToolResults() {
			out = append(out, openai.ToolMessage(string(result.Result), result.ToolCallId))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported message role '%s'", msg.Role)
	}
}
