package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
)

var ErrUnknownTool = errors.New("unknown tool")

type Tool struct {
	Description string
	Parameters  map[string]any
	Execute     func(ctx context.Context, args json.RawMessage) (any, error)
}

type StreamTextOptions struct {
	Model    string
	System   string
	Messages []Message
	// Prompt is appended to Messages as a user message when set.
	Prompt     string
	Tools      map[string]Tool
	MaxSteps   int
	Prediction string
}

type StreamPartType string

const (
	StreamStepStart     StreamPartType = "step-start"
	StreamTextDelta     StreamPartType = "text-delta"
	StreamToolCallStart StreamPartType = "tool-call-streaming-start"
	StreamToolCallDelta StreamPartType = "tool-call-delta"
	StreamToolCall      StreamPartType = "tool-call"
	StreamToolResult    StreamPartType = "tool-result"
	StreamStepFinish    StreamPartType = "step-finish"
	StreamFinish        StreamPartType = "finish"
)

type StreamPart struct {
	Type         StreamPartType
	MessageId    string
	Text         string
	ToolCallId   string
	ToolName     string
	ArgsDelta    string
	Args         json.RawMessage
	Result       json.RawMessage
	FinishReason FinishReason
	Usage        Usage
	IsContinued  bool
}

// TextStream is a multi step generation. The model may call tools, their
// results are fed back to it and it continues, up to MaxSteps rounds.
type TextStream struct {
	provider Provider
	opts     StreamTextOptions

	response     []Message
	usage        Usage
	finishReason FinishReason
	dropped      int
}

func StreamText(provider Provider, opts StreamTextOptions) *TextStream {
	if opts.MaxSteps < 1 {
		opts.MaxSteps = 1
	}
	return &TextStream{provider: provider, opts: opts}
}

// ResponseMessages returns the assistant and tool messages generated so far.
// Tool calls that were started but never completed are included without a
// matching result.
func (s *TextStream) ResponseMessages() []Message {
	return s.response
}

func (s *TextStream) Usage() Usage {
	return s.usage
}

func (s *TextStream) FinishReason() FinishReason {
	return s.finishReason
}

// DroppedToolCalls is the number of tool calls that were cut off before
// their arguments were complete.
func (s *TextStream) DroppedToolCalls() int {
	return s.dropped
}

func (s *TextStream) toolDefinitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(s.opts.Tools))
	for _, name := range slices.Sorted(maps.Keys(s.opts.Tools)) {
		tool := s.opts.Tools[name]
		defs = append(defs, ToolDefinition{Name: name, Description: tool.Description, Parameters: tool.Parameters})
	}
	return defs
}

// FullStream runs the generation, reporting every event as it happens. Tools
// are executed synchronously between the tool call and tool result parts.
func (s *TextStream) FullStream(ctx context.Context) iter.Seq2[StreamPart, error] {
	return func(yield func(StreamPart, error) bool) {
		messages := append([]Message{}, s.opts.Messages...)
		if s.opts.Prompt != "" {
			messages = append(messages, TextMessage(RoleUser, s.opts.Prompt))
		}
		tools := s.toolDefinitions()
		// history is what the model sees on the next step: only calls that
		// completed, each followed by its result.
		var history []Message

		for step := 0; step < s.opts.MaxSteps; step++ {
			messageId := "msg-" + uuid.NewString()
			if !yield(StreamPart{Type: StreamStepStart, MessageId: messageId}, nil) {
				return
			}

			req := Request{
				Model:      s.opts.Model,
				System:     s.opts.System,
				Messages:   slices.Concat(messages, history),
				Tools:      tools,
				Prediction: s.opts.Prediction,
			}

			assistant, results, finish, stepUsage, ok := s.runStep(ctx, req, yield)
			if !ok {
				return
			}

			s.usage = s.usage.Add(stepUsage)
			s.finishReason = finish

			if len(assistant.Content) > 0 {
				s.response = append(s.response, assistant)
				if answered := withoutPendingCalls(assistant, results); len(answered.Content) > 0 {
					history = append(history, answered)
				}
			}
			if len(results.Content) > 0 {
				s.response = append(s.response, results)
				history = append(history, results)
			}

			continued := finish == FinishToolCalls && len(results.Content) > 0 && step+1 < s.opts.MaxSteps
			if !yield(StreamPart{Type: StreamStepFinish, FinishReason: finish, Usage: stepUsage, IsContinued: continued}, nil) {
				return
			}
			if !continued {
				break
			}
		}

		yield(StreamPart{Type: StreamFinish, FinishReason: s.finishReason, Usage: s.usage}, nil)
	}
}

// runStep streams one model round and executes the tool calls it produced.
// ok is false when the stream was stopped or failed, in which case the
// error has already been reported.
func (s *TextStream) runStep(ctx context.Context, req Request, yield func(StreamPart, error) bool) (assistant, results Message, finish FinishReason, usage Usage, ok bool) {
	assistant = Message{Role: RoleAssistant}
	results = Message{Role: RoleTool}
	finish = FinishUnknown

	var text strings.Builder
	started := make(map[string]*Part)
	var startedOrder []string
	var completed []Part

	flushText := func() {
		if text.Len() > 0 {
			assistant.Content = append(assistant.Content, Part{Type: PartText, Text: text.String()})
			text.Reset()
		}
	}

	for event, err := range s.provider.Stream(ctx, req) {
		if err != nil {
			s.recordPartial(&assistant, flushText, started, startedOrder)
			yield(StreamPart{}, err)
			return assistant, results, finish, usage, false
		}

		var part StreamPart
		switch event.Type {
		case EventTextDelta:
			text.WriteString(event.Text)
			part = StreamPart{Type: StreamTextDelta, Text: event.Text}
		case EventToolCallStart:
			started[event.ToolCallId] = &Part{Type: PartToolCall, ToolCallId: event.ToolCallId, ToolName: event.ToolName}
			startedOrder = append(startedOrder, event.ToolCallId)
			part = StreamPart{Type: StreamToolCallStart, ToolCallId: event.ToolCallId, ToolName: event.ToolName}
		case EventToolCallDelta:
			part = StreamPart{Type: StreamToolCallDelta, ToolCallId: event.ToolCallId, ToolName: event.ToolName, ArgsDelta: event.ArgsDelta}
		case EventToolCall:
			call := Part{Type: PartToolCall, ToolCallId: event.ToolCallId, ToolName: event.ToolName, Args: json.RawMessage(event.Args)}
			if _, ok := started[event.ToolCallId]; !ok {
				startedOrder = append(startedOrder, event.ToolCallId)
			}
			started[event.ToolCallId] = &call
			completed = append(completed, call)
			part = StreamPart{Type: StreamToolCall, ToolCallId: call.ToolCallId, ToolName: call.ToolName, Args: call.Args}
		case EventFinish:
			finish = event.FinishReason
			usage = event.Usage
			continue
		default:
			continue
		}

		if !yield(part, nil) {
			return assistant, results, finish, usage, false
		}
	}

	flushText()
	for _, id := range startedOrder {
		assistant.Content = append(assistant.Content, *started[id])
	}
	if dropped := len(startedOrder) - len(completed); dropped > 0 {
		s.dropped += dropped
	}

	for _, call := range completed {
		tool, exists := s.opts.Tools[call.ToolName]
		if !exists || tool.Execute == nil {
			yield(StreamPart{}, fmt.Errorf("%w '%s'", ErrUnknownTool, call.ToolName))
			return assistant, results, finish, usage, false
		}

		slog.Info("executing tool", "tool", call.ToolName, "tool_call_id", call.ToolCallId)
		output, err := tool.Execute(ctx, call.Args)
		if err != nil {
			yield(StreamPart{}, fmt.Errorf("error executing tool '%s': %w", call.ToolName, err))
			return assistant, results, finish, usage, false
		}

		result, err := json.Marshal(output)
		if err != nil {
			yield(StreamPart{}, fmt.Errorf("error serializing result of tool '%s': %w", call.ToolName, err))
			return assistant, results, finish, usage, false
		}

		results.Content = append(results.Content, Part{Type: PartToolResult, ToolCallId: call.ToolCallId, ToolName: call.ToolName, Result: result})
		if !yield(StreamPart{Type: StreamToolResult, ToolCallId: call.ToolCallId, ToolName: call.ToolName, Args: call.Args, Result: result}, nil) {
			return assistant, results, finish, usage, false
		}
	}

	return assistant, results, finish, usage, true
}

func (s *TextStream) recordPartial(assistant *Message, flushText func(), started map[string]*Part, order []string) {
	flushText()
	for _, id := range order {
		assistant.Content = append(assistant.Content, *started[id])
	}
	if len(assistant.Content) > 0 {
		s.response = append(s.response, *assistant)
	}
}

// Text drains the stream and returns the generated text, calling onDelta for
// every fragment.
func (s *TextStream) Text(ctx context.Context, onDelta func(string)) (string, error) {
	var b strings.Builder
	for part, err := range s.FullStream(ctx) {
		if err != nil {
			return b.String(), err
		}
		if part.Type == StreamTextDelta {
			b.WriteString(part.Text)
			if onDelta != nil {
				onDelta(part.Text)
			}
		}
	}
	return b.String(), nil
}

// withoutPendingCalls drops the tool calls of assistant that have no result
// in results. They stay in the response messages and are removed there by
// sanitization.
func withoutPendingCalls(assistant, results Message) Message {
	answered := make(map[string]bool, len(results.Content))
	for _, r := range results.Content {
		answered[r.ToolCallId] = true
	}

	out := Message{Role: assistant.Role}
	for _, part := range assistant.Content {
		if part.Type == PartToolCall && !answered[part.ToolCallId] {
			continue
		}
		out.Content = append(out.Content, part)
	}
	return out
}
