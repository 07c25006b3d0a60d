package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ToolInvocationPartialCall = "partial-call"
	ToolInvocationCall        = "call"
	ToolInvocationResult      = "result"
)

type ToolInvocation struct {
	State      string          `json:"state"`
	ToolCallId string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// ChatMessage is a turn as the client holds it.
type ChatMessage struct {
	Id              string           `json:"id"`
	Role            string           `json:"role"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`
}

type ChatRequest struct {
	Id       string        `json:"id"`
	Messages []ChatMessage `json:"messages"`
	ModelId  string        `json:"modelId"`
}

type ChatIdParams struct {
	Id string `schema:"id"`
}

type Chat struct {
	Id         uuid.UUID `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	Title      string    `json:"title"`
	UserId     uuid.UUID `json:"userId"`
	Visibility string    `json:"visibility"`
}

// Message is a saved turn. Content is either a string or a list of content
// parts.
type Message struct {
	Id        uuid.UUID       `json:"id"`
	ChatId    uuid.UUID       `json:"chatId"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
}

type UpdateVisibilityRequest struct {
	Visibility string `json:"visibility"`
}

type VoteParams struct {
	ChatId string `schema:"chatId"`
}

type VoteRequest struct {
	ChatId    string `json:"chatId"`
	MessageId string `json:"messageId"`
	Type      string `json:"type"` // "up" or "down"
}

type Vote struct {
	ChatId    uuid.UUID `json:"chatId"`
	MessageId uuid.UUID `json:"messageId"`
	IsUpvoted bool      `json:"isUpvoted"`
}

type DocumentParams struct {
	Id        string `schema:"id"`
	Timestamp string `schema:"timestamp"`
}

type SaveDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Kind    string `json:"kind"`
}

type Document struct {
	Id        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Kind      string    `json:"kind"`
	UserId    uuid.UUID `json:"userId"`
}

type SuggestionParams struct {
	DocumentId string `schema:"documentId"`
}

type Suggestion struct {
	Id                uuid.UUID `json:"id"`
	DocumentId        uuid.UUID `json:"documentId"`
	DocumentCreatedAt time.Time `json:"documentCreatedAt"`
	OriginalText      string    `json:"originalText"`
	SuggestedText     string    `json:"suggestedText"`
	Description       string    `json:"description"`
	IsResolved        bool      `json:"isResolved"`
	UserId            uuid.UUID `json:"userId"`
	CreatedAt         time.Time `json:"createdAt"`
}

type ModelInfo struct {
	Id            string `json:"id"`
	Label         string `json:"label"`
	ApiIdentifier string `json:"apiIdentifier"`
	Description   string `json:"description"`
}

type ModelsResponse struct {
	Models         []ModelInfo `json:"models"`
	DefaultModelId string      `json:"defaultModelId"`
}
