package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"hatch-backend/internal/auth"
	"hatch-backend/internal/chat"
	"hatch-backend/internal/database"
	"hatch-backend/pkg/api"
)

const internalErrorMessage = "An error occurred while processing your request"

type ChatService struct {
	db           *gorm.DB
	orchestrator *chat.Orchestrator
	timeout      time.Duration
}

func NewChatService(db *gorm.DB, orchestrator *chat.Orchestrator, timeout time.Duration) *ChatService {
	return &ChatService{db: db, orchestrator: orchestrator, timeout: timeout}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	// Streams carry their own deadline, set in RestDataStreamHandler.
	r.Post("/chat", RestDataStreamHandler(s.timeout, s.PostChat))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Delete("/chat", RestHandler(s.DeleteChat))
		r.Get("/chat/{chat_id}/messages", RestHandler(s.GetMessages))
		r.Patch("/chat/{chat_id}/visibility", RestHandler(s.UpdateVisibility))
		r.Get("/history", RestHandler(s.GetHistory))
		r.Route("/vote", func(r chi.Router) {
			r.Get("/", RestHandler(s.GetVotes))
			r.Patch("/", RestHandler(s.Vote))
		})
		r.Route("/document", func(r chi.Router) {
			r.Get("/", RestHandler(s.GetDocument))
			r.Post("/", RestHandler(s.SaveDocument))
			r.Delete("/", RestHandler(s.DeleteDocumentVersions))
		})
		r.Get("/suggestions", RestHandler(s.GetSuggestions))
	})
}

func requireSession(r *http.Request) (*auth.Session, error) {
	session := auth.FromContext(r.Context())
	if session == nil {
		return nil, CodedErrorf(http.StatusUnauthorized, "Unauthorized")
	}
	return session, nil
}

func (s *ChatService) PostChat(r *http.Request) (DataStream, error) {
	req, err := ParseRequest[api.ChatRequest](r)
	if err != nil {
		return nil, err
	}

	run, err := s.orchestrator.Prepare(r.Context(), auth.FromContext(r.Context()), chat.Request{
		ChatId:   req.Id,
		Messages: toAIMessages(req.Messages),
		ModelId:  req.ModelId,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrUnauthorized):
			return nil, CodedErrorf(http.StatusUnauthorized, "Unauthorized")
		case errors.Is(err, chat.ErrModelNotFound):
			return nil, CodedErrorf(http.StatusNotFound, "Model not found")
		case errors.Is(err, chat.ErrNoUserMessage):
			return nil, CodedErrorf(http.StatusBadRequest, "No user message found")
		case errors.Is(err, chat.ErrInvalidChatId):
			return nil, CodedError(http.StatusBadRequest, err)
		default:
			slog.Error("error preparing chat", "chat_id", req.Id, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, internalErrorMessage)
		}
	}

	slog.Info("streaming chat response", "chat_id", run.ChatId(), "user_message_id", run.UserMessageId(), "new_chat", run.CreatedChat())
	return run.Stream, nil
}

// loadOwnedChat returns the chat if it belongs to the caller. Missing chats
// are 404, chats of other users 401.
func (s *ChatService) loadOwnedChat(ctx context.Context, session *auth.Session, chatId uuid.UUID) (database.Chat, error) {
	c, err := database.GetChatById(ctx, s.db, chatId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Chat{}, CodedErrorf(http.StatusNotFound, "Not Found")
		}
		return database.Chat{}, err
	}
	if c.UserId != session.User.Id {
		return database.Chat{}, CodedErrorf(http.StatusUnauthorized, "Unauthorized")
	}
	return c, nil
}

func (s *ChatService) DeleteChat(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ChatIdParams](r)
	if err != nil {
		return nil, err
	}
	if params.Id == "" {
		return nil, CodedErrorf(http.StatusNotFound, "Not Found")
	}

	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}

	chatId, err := uuid.Parse(params.Id)
	if err != nil {
		return nil, CodedErrorf(http.StatusNotFound, "Not Found")
	}

	if _, err := s.loadOwnedChat(r.Context(), session, chatId); err != nil {
		var cerr *codedError
		if errors.As(err, &cerr) {
			return nil, err
		}
		slog.Error("error loading chat for deletion", "chat_id", chatId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, internalErrorMessage)
	}

	if err := database.DeleteChatById(r.Context(), s.db, chatId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "Not Found")
		}
		slog.Error("error deleting chat", "chat_id", chatId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, internalErrorMessage)
	}

	slog.Info("deleted chat", "chat_id", chatId)
	return TextResponse("Chat deleted"), nil
}

func (s *ChatService) GetHistory(r *http.Request) (any, error) {
	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}

	chats, err := database.GetChatsByUserId(r.Context(), s.db, session.User.Id)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return convertChats(chats), nil
}

// GetMessages returns the messages of a chat. Public chats are readable by
// anyone, private ones only by their owner.
func (s *ChatService) GetMessages(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}

	c, err := database.GetChatById(r.Context(), s.db, chatId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "Not Found")
		}
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	if c.Visibility != database.VisibilityPublic {
		session, err := requireSession(r)
		if err != nil {
			return nil, err
		}
		if c.UserId != session.User.Id {
			return nil, CodedErrorf(http.StatusUnauthorized, "Unauthorized")
		}
	}

	messages, err := database.GetMessagesByChatId(r.Context(), s.db, chatId)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return convertMessages(messages), nil
}

func (s *ChatService) UpdateVisibility(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.UpdateVisibilityRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Visibility != database.VisibilityPublic && req.Visibility != database.VisibilityPrivate {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid visibility '%s', must be '%s' or '%s'", req.Visibility, database.VisibilityPublic, database.VisibilityPrivate)
	}

	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadOwnedChat(r.Context(), session, chatId); err != nil {
		return nil, err
	}

	if err := database.UpdateChatVisibility(r.Context(), s.db, chatId, req.Visibility); err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return nil, nil
}

func (s *ChatService) GetVotes(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.VoteParams](r)
	if err != nil {
		return nil, err
	}
	chatId, err := ParseUUID("chatId", params.ChatId)
	if err != nil {
		return nil, err
	}

	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadOwnedChat(r.Context(), session, chatId); err != nil {
		return nil, err
	}

	votes, err := database.GetVotesByChatId(r.Context(), s.db, chatId)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return convertVotes(votes), nil
}

func (s *ChatService) Vote(r *http.Request) (any, error) {
	req, err := ParseRequest[api.VoteRequest](r)
	if err != nil {
		return nil, err
	}
	chatId, err := ParseUUID("chatId", req.ChatId)
	if err != nil {
		return nil, err
	}
	messageId, err := ParseUUID("messageId", req.MessageId)
	if err != nil {
		return nil, err
	}
	if req.Type != "up" && req.Type != "down" {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid vote type '%s', must be 'up' or 'down'", req.Type)
	}

	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadOwnedChat(r.Context(), session, chatId); err != nil {
		return nil, err
	}

	if err := database.VoteMessage(r.Context(), s.db, chatId, messageId, req.Type == "up"); err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return TextResponse("Message voted"), nil
}

func (s *ChatService) GetDocument(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.DocumentParams](r)
	if err != nil {
		return nil, err
	}
	docId, err := ParseUUID("id", params.Id)
	if err != nil {
		return nil, err
	}

	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}

	docs, err := database.GetDocumentsById(r.Context(), s.db, docId)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	if len(docs) == 0 {
		return nil, CodedErrorf(http.StatusNotFound, "Not Found")
	}
	if docs[0].UserId != session.User.Id {
		return nil, CodedErrorf(http.StatusUnauthorized, "Unauthorized")
	}
	return convertDocuments(docs), nil
}

// SaveDocument stores a new version of a document edited by the user.
func (s *ChatService) SaveDocument(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.DocumentParams](r)
	if err != nil {
		return nil, err
	}
	docId, err := ParseUUID("id", params.Id)
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.SaveDocumentRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Kind != database.DocumentText && req.Kind != database.DocumentCode {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid document kind '%s'", req.Kind)
	}

	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}

	existing, err := database.GetDocumentById(r.Context(), s.db, docId)
	switch {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		return nil, CodedError(http.StatusInternalServerError, err)
	case existing.UserId != session.User.Id:
		return nil, CodedErrorf(http.StatusUnauthorized, "Unauthorized")
	case existing.Kind != req.Kind:
		return nil, CodedErrorf(http.StatusBadRequest, "document kind cannot change from '%s' to '%s'", existing.Kind, req.Kind)
	}

	doc, err := database.SaveDocument(r.Context(), s.db, docId, req.Title, req.Kind, req.Content, session.User.Id)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return convertDocument(doc), nil
}

// DeleteDocumentVersions removes every version of a document newer than the
// given timestamp.
func (s *ChatService) DeleteDocumentVersions(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.DocumentParams](r)
	if err != nil {
		return nil, err
	}
	docId, err := ParseUUID("id", params.Id)
	if err != nil {
		return nil, err
	}
	after, err := time.Parse(time.RFC3339Nano, params.Timestamp)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid timestamp '%s', expected RFC 3339", params.Timestamp)
	}

	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}

	doc, err := database.GetDocumentById(r.Context(), s.db, docId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "Not Found")
		}
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	if doc.UserId != session.User.Id {
		return nil, CodedErrorf(http.StatusUnauthorized, "Unauthorized")
	}

	if err := database.DeleteDocumentsAfter(r.Context(), s.db, docId, after.UTC()); err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return TextResponse("Deleted"), nil
}

func (s *ChatService) GetSuggestions(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.SuggestionParams](r)
	if err != nil {
		return nil, err
	}
	docId, err := ParseUUID("documentId", params.DocumentId)
	if err != nil {
		return nil, err
	}

	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}

	suggestions, err := database.GetSuggestionsByDocumentId(r.Context(), s.db, docId)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	if len(suggestions) > 0 && suggestions[0].UserId != session.User.Id {
		return nil, CodedErrorf(http.StatusUnauthorized, "Unauthorized")
	}
	return convertSuggestions(suggestions), nil
}
