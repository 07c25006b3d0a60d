// Package aitest provides a scripted model provider for tests.
package aitest

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"

	"hatch-backend/internal/ai"
)

var ErrScriptExhausted = errors.New("scripted provider has no responses left")

// Response is the scripted outcome of one Stream call. Err, if set, is
// reported after Events have been yielded.
type Response struct {
	Events []ai.Event
	Err    error
}

// Provider replays responses in order, one per Stream call, and records the
// requests it received.
type Provider struct {
	mu        sync.Mutex
	responses []Response
	requests  []ai.Request
}

func NewProvider(responses ...Response) *Provider {
	return &Provider{responses: responses}
}

func (p *Provider) Stream(ctx context.Context, req ai.Request) iter.Seq2[ai.Event, error] {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var resp Response
	exhausted := len(p.responses) == 0
	if !exhausted {
		resp = p.responses[0]
		p.responses = p.responses[1:]
	}
	p.mu.Unlock()

	return func(yield func(ai.Event, error) bool) {
		if exhausted {
			yield(ai.Event{}, ErrScriptExhausted)
			return
		}
		for _, event := range resp.Events {
			if err := ctx.Err(); err != nil {
				yield(ai.Event{}, err)
				return
			}
			if !yield(event, nil) {
				return
			}
		}
		if resp.Err != nil {
			yield(ai.Event{}, resp.Err)
		}
	}
}

func (p *Provider) Requests() []ai.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ai.Request{}, p.requests...)
}

func (p *Provider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.responses)
}

// Text scripts a plain text answer delivered in the given fragments.
func Text(fragments ...string) Response {
	var events []ai.Event
	for _, f := range fragments {
		events = append(events, ai.Event{Type: ai.EventTextDelta, Text: f})
	}
	events = append(events, Finish(ai.FinishStop))
	return Response{Events: events}
}

// ToolCall scripts a response in which the model calls a single tool.
func ToolCall(id, name string, args any) Response {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return Response{Events: []ai.Event{
		{Type: ai.EventToolCallStart, ToolCallId: id, ToolName: name},
		{Type: ai.EventToolCallDelta, ToolCallId: id, ToolName: name, ArgsDelta: string(raw)},
		{Type: ai.EventToolCall, ToolCallId: id, ToolName: name, Args: string(raw)},
		Finish(ai.FinishToolCalls),
	}}
}

func Finish(reason ai.FinishReason) ai.Event {
	return ai.Event{Type: ai.EventFinish, FinishReason: reason, Usage: ai.Usage{PromptTokens: 10, CompletionTokens: 5}}
}
