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
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrModelNotFound = errors.New("model not found")
	ErrNoUserMessage = errors.New("no user message found")
	ErrInvalidChatId = errors.New("invalid chat id")
)

// MaxSteps bounds the number of model rounds in one response, and so the
// number of chained tool calls.
const MaxSteps = 5

const streamErrorMessage = "An error occurred."

// Phase is where a chat request is in its lifecycle. Each phase only starts
// once the side effects of the previous one are complete.
type Phase int

const (
	PhaseValidating Phase = iota
	PhasePersisted
	PhaseStreaming
	PhaseFinalizing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseValidating:
		return "validating"
	case PhasePersisted:
		return "persisted"
	case PhaseStreaming:
		return "streaming"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Orchestrator struct {
	db       *gorm.DB
	registry *ai.Registry
	provider ai.Provider
	titler   ai.Titler
}

func NewOrchestrator(db *gorm.DB, registry *ai.Registry, provider ai.Provider, titler ai.Titler) *Orchestrator {
	return &Orchestrator{
		db:       db,
		registry: registry,
		provider: provider,
		titler:   titler,
	}
}

type Request struct {
	ChatId   string
	Messages []ai.Message
	ModelId  string
}

// Run is a validated chat request whose user message has been saved and
// which is ready to stream.
type Run struct {
	orchestrator *Orchestrator

	phase         Phase
	session       *auth.Session
	model         ai.Model
	chatId        uuid.UUID
	createdChat   bool
	userMessageId uuid.UUID
	system        string
	messages      []ai.Message
}

func (r *Run) Phase() Phase {
	return r.phase
}

func (r *Run) ChatId() uuid.UUID {
	return r.chatId
}

func (r *Run) CreatedChat() bool {
	return r.createdChat
}

func (r *Run) UserMessageId() uuid.UUID {
	return r.userMessageId
}

func lastUserMessage(messages []ai.Message) (ai.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == ai.RoleUser {
			return messages[i], true
		}
	}
	return ai.Message{}, false
}

// Prepare validates a chat request and performs the side effects that have
// to happen before any output is streamed: creating the chat if it is new and
// saving the user's message. Validation failures have no side effects.
func (o *Orchestrator) Prepare(ctx context.Context, session *auth.Session, req Request) (*Run, error) {
	run, err := o.prepare(ctx, session, req)
	if err != nil {
		metrics.ChatRequests.WithLabelValues("rejected").Inc()
		return nil, err
	}
	return run, nil
}

func (o *Orchestrator) prepare(ctx context.Context, session *auth.Session, req Request) (*Run, error) {
	if session == nil {
		return nil, ErrUnauthorized
	}

	model, ok := o.registry.Find(req.ModelId)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrModelNotFound, req.ModelId)
	}

	userMessage, ok := lastUserMessage(req.Messages)
	if !ok {
		return nil, ErrNoUserMessage
	}

	chatId, err := uuid.Parse(req.ChatId)
	if err != nil {
		return nil, fmt.Errorf("%w '%s'", ErrInvalidChatId, req.ChatId)
	}

	run := &Run{
		orchestrator: o,
		phase:        PhaseValidating,
		session:      session,
		model:        model,
		chatId:       chatId,
		messages:     req.Messages,
	}

	chat, err := database.GetChatById(ctx, o.db, chatId)
	switch {
	case errors.Is(err, database.ErrNotFound):
		title := ai.TitleOrFallback(ctx, o.titler, userMessage.Text())
		if _, err := database.SaveChat(ctx, o.db, chatId, session.User.Id, title); err != nil {
			return nil, err
		}
		run.createdChat = true
		slog.Info("created chat", "chat_id", chatId, "title", title)
	case err != nil:
		return nil, err
	case chat.UserId != session.User.Id:
		return nil, fmt.Errorf("%w: chat '%s' belongs to another user", ErrUnauthorized, chatId)
	}

	content, err := json.Marshal(userMessage.Text())
	if err != nil {
		return nil, fmt.Errorf("error serializing user message: %w", err)
	}

	run.userMessageId = uuid.New()
	if err := database.SaveMessages(ctx, o.db, []database.Message{{
		Id:        run.userMessageId,
		ChatId:    chatId,
		Role:      database.RoleUser,
		Content:   datatypes.JSON(content),
		CreatedAt: time.Now().UTC(),
	}}); err != nil {
		return nil, err
	}
	run.phase = PhasePersisted

	run.system, err = BuildSystemPrompt(ctx, o.db, session.User)
	if err != nil {
		return nil, err
	}

	return run, nil
}

// Stream generates the assistant's response, relaying every event to w as it
// arrives, then saves the response messages. A failure of the model or of a
// tool ends the stream with an error part and nothing is saved. A failure to
// save the response is logged and not returned, the client already has it.
func (r *Run) Stream(ctx context.Context, w *DataStreamWriter) error {
	if r.phase != PhasePersisted {
		return fmt.Errorf("chat run cannot stream in phase %s", r.phase)
	}
	r.phase = PhaseStreaming
	defer func() { r.phase = PhaseClosed }()

	w.WriteData(streamEvent{Type: "user-message-id", Content: r.userMessageId})

	tools := &toolbox{
		db:       r.orchestrator.db,
		provider: r.orchestrator.provider,
		model:    r.model,
		session:  r.session,
		stream:   w,
	}

	stream := ai.StreamText(r.orchestrator.provider, ai.StreamTextOptions{
		Model:    r.model.ApiIdentifier,
		System:   r.system,
		Messages: r.messages,
		Tools:    tools.tools(),
		MaxSteps: MaxSteps,
	})

	for part, err := range stream.FullStream(ctx) {
		if err != nil {
			slog.Error("error streaming chat response", "chat_id", r.chatId, "error", err)
			w.WriteError(streamErrorMessage)
			metrics.ChatRequests.WithLabelValues("stream_error").Inc()
			return fmt.Errorf("error streaming chat response: %w", err)
		}
		w.WriteStreamPart(part)
	}

	if dropped := stream.DroppedToolCalls(); dropped > 0 {
		slog.Warn("stream ended with unterminated tool calls", "chat_id", r.chatId, "dropped", dropped)
	}
	if err := w.Err(); err != nil {
		slog.Warn("client disconnected before the response finished", "chat_id", r.chatId, "error", err)
	}

	r.phase = PhaseFinalizing
	r.finalize(ctx, w, stream.ResponseMessages())

	metrics.ChatRequests.WithLabelValues("completed").Inc()
	return nil
}

func (r *Run) finalize(ctx context.Context, w *DataStreamWriter, response []ai.Message) {
	messages := SanitizeResponseMessages(response)
	if len(messages) == 0 {
		return
	}

	base := time.Now().UTC()
	rows := make([]database.Message, 0, len(messages))
	for i, msg := range messages {
		content, err := json.Marshal(msg.Content)
		if err != nil {
			slog.Error("failed to save chat", "chat_id", r.chatId, "error", err)
			metrics.ChatPersistFailures.Inc()
			return
		}

		id := uuid.New()
		if msg.Role == ai.RoleAssistant {
			w.WriteMessageAnnotation(map[string]any{"messageIdFromServer": id})
		}

		rows = append(rows, database.Message{
			Id:        id,
			ChatId:    r.chatId,
			Role:      string(msg.Role),
			Content:   datatypes.JSON(content),
			CreatedAt: base.Add(time.Duration(i) * time.Microsecond),
		})
	}

	if err := database.SaveMessages(ctx, r.orchestrator.db, rows); err != nil {
		slog.Error("failed to save chat", "chat_id", r.chatId, "error", err)
		metrics.ChatPersistFailures.Inc()
	}
}
