package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hatch-backend/internal/ai"
	"hatch-backend/internal/auth"
	"hatch-backend/internal/database"
	"hatch-backend/internal/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ToolCreateDocument     = "createDocument"
	ToolUpdateDocument     = "updateDocument"
	ToolRequestSuggestions = "requestSuggestions"

	MaxSuggestions = 5
)

const (
	documentCreatedMessage  = "A document was created and is now visible to the user."
	documentUpdatedMessage  = "The document has been updated successfully."
	suggestionsAddedMessage = "Suggestions have been added to the document"
	documentNotFoundMessage = "Document not found"
)

// streamEvent is a custom data part sent to the client while a tool runs.
type streamEvent struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

type toolError struct {
	Error string `json:"error"`
}

type documentResult struct {
	Id      uuid.UUID `json:"id"`
	Title   string    `json:"title"`
	Kind    string    `json:"kind"`
	Content string    `json:"content,omitempty"`
	Message string    `json:"message,omitempty"`
}

type suggestionEvent struct {
	Id            uuid.UUID `json:"id"`
	DocumentId    uuid.UUID `json:"documentId"`
	OriginalText  string    `json:"originalText"`
	SuggestedText string    `json:"suggestedText"`
	Description   string    `json:"description"`
	IsResolved    bool      `json:"isResolved"`
}

var codeSchema = ai.JSONSchema{
	Name:        "code",
	Description: "A self contained code snippet",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{"type": "string"},
		},
		"required":             []string{"code"},
		"additionalProperties": false,
	},
}

var suggestionSchema = ai.JSONSchema{
	Name:        "suggestions",
	Description: "Suggested edits to a piece of writing",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"originalSentence":  map[string]any{"type": "string", "description": "The original sentence"},
			"suggestedSentence": map[string]any{"type": "string", "description": "The suggested sentence"},
			"description":       map[string]any{"type": "string", "description": "The description of the suggestion"},
		},
		"required":             []string{"originalSentence", "suggestedSentence", "description"},
		"additionalProperties": false,
	},
}

// toolbox holds everything the tools of one chat request share. Tools write
// their progress to the same stream the orchestrator relays to.
type toolbox struct {
	db       *gorm.DB
	provider ai.Provider
	model    ai.Model
	session  *auth.Session
	stream   *DataStreamWriter
}

func (t *toolbox) tools() map[string]ai.Tool {
	return map[string]ai.Tool{
		ToolCreateDocument: {
			Description: "Create a document for a writing activity. This tool will call other functions that will generate the contents of the document based on the title and kind.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{"type": "string"},
					"kind":  map[string]any{"type": "string", "enum": []string{database.DocumentText, database.DocumentCode}},
				},
				"required":             []string{"title", "kind"},
				"additionalProperties": false,
			},
			Execute: instrumentTool(ToolCreateDocument, t.createDocument),
		},
		ToolUpdateDocument: {
			Description: "Update a document with the given description.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":          map[string]any{"type": "string", "description": "The ID of the document to update"},
					"description": map[string]any{"type": "string", "description": "The description of changes that need to be made"},
				},
				"required":             []string{"id", "description"},
				"additionalProperties": false,
			},
			Execute: instrumentTool(ToolUpdateDocument, t.updateDocument),
		},
		ToolRequestSuggestions: {
			Description: "Request suggestions for a document",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"documentId": map[string]any{"type": "string", "description": "The ID of the document to request edits"},
				},
				"required":             []string{"documentId"},
				"additionalProperties": false,
			},
			Execute: instrumentTool(ToolRequestSuggestions, t.requestSuggestions),
		},
	}
}

func instrumentTool(name string, execute func(context.Context, json.RawMessage) (any, error)) func(context.Context, json.RawMessage) (any, error) {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		start := time.Now()
		result, err := execute(ctx, args)
		status := "ok"
		if err != nil {
			status = "error"
		} else if _, ok := result.(toolError); ok {
			status = "not_found"
		}
		metrics.ToolCalls.WithLabelValues(name, status).Inc()
		slog.Info("tool finished", "tool", name, "status", status, "duration", time.Since(start))
		return result, err
	}
}

func decodeArgs[T any](tool string, args json.RawMessage) (T, error) {
	var data T
	if err := json.Unmarshal(args, &data); err != nil {
		return data, fmt.Errorf("invalid arguments for tool '%s': %w", tool, err)
	}
	return data, nil
}

func (t *toolbox) emit(eventType string, content any) {
	t.stream.WriteData(streamEvent{Type: eventType, Content: content})
}

// generateDraft runs the nested generation for a document, relaying every
// fragment to the client, and returns the final content.
func (t *toolbox) generateDraft(ctx context.Context, kind, system, prompt, prediction string) (string, error) {
	switch kind {
	case database.DocumentCode:
		draft := ""
		for object, err := range ai.StreamObject(ctx, t.provider, ai.StreamObjectOptions{
			Model:  t.model.ApiIdentifier,
			System: system,
			Prompt: prompt,
			Schema: codeSchema,
		}) {
			if err != nil {
				return "", err
			}
			if code := object.Get("code").String(); code != "" && code != draft {
				t.emit("code-delta", code)
				draft = code
			}
		}
		return draft, nil

	default:
		return ai.StreamText(t.provider, ai.StreamTextOptions{
			Model:      t.model.ApiIdentifier,
			System:     system,
			Prompt:     prompt,
			Prediction: prediction,
		}).Text(ctx, func(delta string) {
			t.emit("text-delta", delta)
		})
	}
}

type createDocumentArgs struct {
	Title string `json:"title"`
	Kind  string `json:"kind"`
}

func (t *toolbox) createDocument(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[createDocumentArgs](ToolCreateDocument, raw)
	if err != nil {
		return nil, err
	}
	if args.Kind != database.DocumentText && args.Kind != database.DocumentCode {
		return nil, fmt.Errorf("invalid document kind '%s'", args.Kind)
	}

	id := uuid.New()
	t.emit("id", id)
	t.emit("title", args.Title)
	t.emit("kind", args.Kind)
	t.emit("clear", "")

	system := ai.CreateTextDocumentPrompt
	if args.Kind == database.DocumentCode {
		system = ai.CodePrompt
	}

	draft, err := t.generateDraft(ctx, args.Kind, system, args.Title, "")
	if err != nil {
		return nil, fmt.Errorf("error generating document: %w", err)
	}

	t.emit("finish", "")

	if t.session != nil {
		if _, err := database.SaveDocument(ctx, t.db, id, args.Title, args.Kind, draft, t.session.User.Id); err != nil {
			return nil, err
		}
	}

	return documentResult{Id: id, Title: args.Title, Kind: args.Kind, Content: documentCreatedMessage}, nil
}

type updateDocumentArgs struct {
	Id          string `json:"id"`
	Description string `json:"description"`
}

// findDocument returns the latest version of a document visible to the
// caller. ok is false when there is no such document.
func (t *toolbox) findDocument(ctx context.Context, rawId string) (database.Document, bool, error) {
	id, err := uuid.Parse(rawId)
	if err != nil {
		return database.Document{}, false, nil
	}

	doc, err := database.GetDocumentById(ctx, t.db, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Document{}, false, nil
		}
		return database.Document{}, false, err
	}

	if t.session == nil || doc.UserId != t.session.User.Id {
		return database.Document{}, false, nil
	}
	return doc, true, nil
}

func (t *toolbox) updateDocument(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[updateDocumentArgs](ToolUpdateDocument, raw)
	if err != nil {
		return nil, err
	}

	doc, ok, err := t.findDocument(ctx, args.Id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return toolError{Error: documentNotFoundMessage}, nil
	}

	t.emit("clear", doc.Title)

	draft, err := t.generateDraft(ctx, doc.Kind, ai.UpdateDocumentPrompt(doc.Content), args.Description, doc.Content)
	if err != nil {
		return nil, fmt.Errorf("error updating document: %w", err)
	}

	t.emit("finish", "")

	if _, err := database.SaveDocument(ctx, t.db, doc.Id, doc.Title, doc.Kind, draft, t.session.User.Id); err != nil {
		return nil, err
	}

	return documentResult{Id: doc.Id, Title: doc.Title, Kind: doc.Kind, Content: documentUpdatedMessage}, nil
}

type requestSuggestionsArgs struct {
	DocumentId string `json:"documentId"`
}

func (t *toolbox) requestSuggestions(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[requestSuggestionsArgs](ToolRequestSuggestions, raw)
	if err != nil {
		return nil, err
	}

	doc, ok, err := t.findDocument(ctx, args.DocumentId)
	if err != nil {
		return nil, err
	}
	if !ok || doc.Content == "" {
		return toolError{Error: documentNotFoundMessage}, nil
	}

	var suggestions []database.Suggestion
	for element, err := range ai.StreamArray(ctx, t.provider, ai.StreamObjectOptions{
		Model:  t.model.ApiIdentifier,
		System: ai.SuggestionsPrompt,
		Prompt: doc.Content,
		Schema: suggestionSchema,
	}) {
		if err != nil {
			return nil, fmt.Errorf("error generating suggestions: %w", err)
		}

		suggestion := database.Suggestion{
			Id:                uuid.New(),
			DocumentId:        doc.Id,
			DocumentCreatedAt: doc.CreatedAt,
			OriginalText:      element.Get("originalSentence").String(),
			SuggestedText:     element.Get("suggestedSentence").String(),
			Description:       element.Get("description").String(),
			UserId:            t.session.User.Id,
			CreatedAt:         time.Now().UTC(),
		}

		t.emit("suggestion", suggestionEvent{
			Id:            suggestion.Id,
			DocumentId:    suggestion.DocumentId,
			OriginalText:  suggestion.OriginalText,
			SuggestedText: suggestion.SuggestedText,
			Description:   suggestion.Description,
		})
		suggestions = append(suggestions, suggestion)

		if len(suggestions) == MaxSuggestions {
			break
		}
	}

	if len(suggestions) > 0 {
		if err := database.SaveSuggestions(ctx, t.db, suggestions); err != nil {
			return nil, err
		}
	}

	return documentResult{Id: doc.Id, Title: doc.Title, Kind: doc.Kind, Message: suggestionsAddedMessage}, nil
}
