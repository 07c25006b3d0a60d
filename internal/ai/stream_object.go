package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrNoObjectGenerated = errors.New("no object generated")

type StreamObjectOptions struct {
	Model      string
	System     string
	Prompt     string
	Schema     JSONSchema
	Prediction string
}

func (o StreamObjectOptions) request(schema JSONSchema) Request {
	return Request{
		Model:      o.Model,
		System:     o.System,
		Messages:   []Message{TextMessage(RoleUser, o.Prompt)},
		Schema:     &schema,
		Prediction: o.Prediction,
	}
}

// StreamObject generates a json object matching opts.Schema, yielding every
// new partial version of it as the model writes. The last value yielded is
// the complete object.
func StreamObject(ctx context.Context, provider Provider, opts StreamObjectOptions) iter.Seq2[gjson.Result, error] {
	return func(yield func(gjson.Result, error) bool) {
		var text strings.Builder
		last := ""

		for event, err := range provider.Stream(ctx, opts.request(opts.Schema)) {
			if err != nil {
				yield(gjson.Result{}, err)
				return
			}
			if event.Type != EventTextDelta {
				continue
			}

			text.WriteString(event.Text)
			partial, ok := CompletePartialJSON(text.String())
			if !ok || partial == last {
				continue
			}
			last = partial

			if !yield(gjson.Parse(partial), nil) {
				return
			}
		}

		if !json.Valid([]byte(text.String())) {
			yield(gjson.Result{}, fmt.Errorf("%w: response is not valid json", ErrNoObjectGenerated))
		}
	}
}

const elementsKey = "elements"

// StreamArray generates an array whose elements match opts.Schema, yielding
// each element once it is complete.
func StreamArray(ctx context.Context, provider Provider, opts StreamObjectOptions) iter.Seq2[gjson.Result, error] {
	wrapped := JSONSchema{
		Name:        opts.Schema.Name,
		Description: opts.Schema.Description,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				elementsKey: map[string]any{"type": "array", "items": opts.Schema.Schema},
			},
			"required":             []string{elementsKey},
			"additionalProperties": false,
		},
	}

	return func(yield func(gjson.Result, error) bool) {
		var text strings.Builder
		emitted := 0

		emit := func(doc string, upTo int) bool {
			for ; emitted < upTo; emitted++ {
				element := gjson.Get(doc, fmt.Sprintf("%s.%d", elementsKey, emitted))
				if !yield(element, nil) {
					return false
				}
			}
			return true
		}

		for event, err := range provider.Stream(ctx, opts.request(wrapped)) {
			if err != nil {
				yield(gjson.Result{}, err)
				return
			}
			if event.Type != EventTextDelta {
				continue
			}

			text.WriteString(event.Text)
			partial, ok := CompletePartialJSON(text.String())
			if !ok {
				continue
			}

			// Every element but the last one seen has been closed.
			count := int(gjson.Get(partial, elementsKey+".#").Int())
			if !emit(partial, count-1) {
				return
			}
		}

		final := text.String()
		if !json.Valid([]byte(final)) || !gjson.Get(final, elementsKey).IsArray() {
			yield(gjson.Result{}, fmt.Errorf("%w: response is not a valid array", ErrNoObjectGenerated))
			return
		}
		emit(final, int(gjson.Get(final, elementsKey+".#").Int()))
	}
}
