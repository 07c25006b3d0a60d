package chat_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"hatch-backend/internal/ai"
	"hatch-backend/internal/ai/aitest"
	"hatch-backend/internal/auth"
	"hatch-backend/internal/chat"
	"hatch-backend/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

type countingTitler struct {
	calls int
}

func (t *countingTitler) GenerateTitle(ctx context.Context, message string) (string, error) {
	t.calls++
	return "Generated title", nil
}

type fixture struct {
	db       *gorm.DB
	provider *aitest.Provider
	titler   *countingTitler
	session  *auth.Session
	orch     *chat.Orchestrator
}

func newFixture(t *testing.T, responses ...aitest.Response) *fixture {
	db := createDB(t)
	user := database.User{Id: uuid.New(), Email: "member@example.com"}
	require.NoError(t, db.Create(&user).Error)

	provider := aitest.NewProvider(responses...)
	titler := &countingTitler{}
	return &fixture{
		db:       db,
		provider: provider,
		titler:   titler,
		session:  &auth.Session{User: auth.User{Id: user.Id, Email: user.Email}},
		orch:     chat.NewOrchestrator(db, ai.DefaultRegistry(), provider, titler),
	}
}

func userRequest(chatId uuid.UUID, text string) chat.Request {
	return chat.Request{
		ChatId:   chatId.String(),
		ModelId:  ai.DefaultModelId,
		Messages: []ai.Message{ai.TextMessage(ai.RoleUser, text)},
	}
}

// run prepares and streams a request, returning the raw stream output.
func (f *fixture) run(t *testing.T, req chat.Request) (*chat.Run, string, error) {
	run, err := f.orch.Prepare(context.Background(), f.session, req)
	require.NoError(t, err)

	var out bytes.Buffer
	err = run.Stream(context.Background(), chat.NewDataStreamWriter(&out))
	return run, out.String(), err
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

type dataEvent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// dataEvents decodes every custom data part of a stream.
func dataEvents(t *testing.T, stream string) []dataEvent {
	var events []dataEvent
	scanner := bufio.NewScanner(strings.NewReader(stream))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "2:") {
			continue
		}
		var batch []dataEvent
		require.NoError(t, json.Unmarshal([]byte(line[2:]), &batch))
		events = append(events, batch...)
	}
	return events
}

func eventContents(t *testing.T, events []dataEvent, eventType string) []string {
	var out []string
	for _, e := range events {
		if e.Type != eventType {
			continue
		}
		var s string
		require.NoError(t, json.Unmarshal(e.Content, &s))
		out = append(out, s)
	}
	return out
}

func TestPrepareRejections(t *testing.T) {
	f := newFixture(t)
	chatId := uuid.New()

	tests := []struct {
		name    string
		session *auth.Session
		req     chat.Request
		err     error
	}{
		{
			name:    "no session",
			session: nil,
			req:     userRequest(chatId, "hello"),
			err:     chat.ErrUnauthorized,
		},
		{
			name:    "unknown model",
			session: f.session,
			req:     chat.Request{ChatId: chatId.String(), ModelId: "gpt-9", Messages: []ai.Message{ai.TextMessage(ai.RoleUser, "hello")}},
			err:     chat.ErrModelNotFound,
		},
		{
			name:    "no user message",
			session: f.session,
			req:     chat.Request{ChatId: chatId.String(), ModelId: ai.DefaultModelId, Messages: []ai.Message{ai.TextMessage(ai.RoleAssistant, "hi")}},
			err:     chat.ErrNoUserMessage,
		},
		{
			name:    "unauthorized before unknown model",
			session: nil,
			req:     chat.Request{ChatId: chatId.String(), ModelId: "gpt-9"},
			err:     chat.ErrUnauthorized,
		},
		{
			name:    "invalid chat id",
			session: f.session,
			req:     chat.Request{ChatId: "not-a-uuid", ModelId: ai.DefaultModelId, Messages: []ai.Message{ai.TextMessage(ai.RoleUser, "hello")}},
			err:     chat.ErrInvalidChatId,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			run, err := f.orch.Prepare(context.Background(), tc.session, tc.req)
			assert.ErrorIs(t, err, tc.err)
			assert.Nil(t, run)
		})
	}

	assert.Zero(t, count(t, f.db, &database.Chat{}))
	assert.Zero(t, count(t, f.db, &database.Message{}))
	assert.Zero(t, f.titler.calls)
	assert.Empty(t, f.provider.Requests())
}

func TestNewChatIsCreatedOnce(t *testing.T) {
	f := newFixture(t, aitest.Text("first"), aitest.Text("second"))
	chatId := uuid.New()

	first, _, err := f.run(t, userRequest(chatId, "What does my plan cover?"))
	require.NoError(t, err)
	assert.True(t, first.CreatedChat())
	assert.Equal(t, 1, f.titler.calls)

	second, _, err := f.run(t, userRequest(chatId, "And dental?"))
	require.NoError(t, err)
	assert.False(t, second.CreatedChat())
	assert.Equal(t, 1, f.titler.calls)

	assert.EqualValues(t, 1, count(t, f.db, &database.Chat{}))
	saved, err := database.GetChatById(context.Background(), f.db, chatId)
	require.NoError(t, err)
	assert.Equal(t, "Generated title", saved.Title)
	assert.Equal(t, f.session.User.Id, saved.UserId)
	assert.NotEqual(t, first.UserMessageId(), second.UserMessageId())
}

func TestUserMessageSavedBeforeStreaming(t *testing.T) {
	f := newFixture(t, aitest.Text("Hello", " there"))
	chatId := uuid.New()

	run, err := f.orch.Prepare(context.Background(), f.session, userRequest(chatId, "hi"))
	require.NoError(t, err)
	assert.Equal(t, chat.PhasePersisted, run.Phase())
	assert.Empty(t, f.provider.Requests())

	messages, err := database.GetMessagesByChatId(context.Background(), f.db, chatId)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, run.UserMessageId(), messages[0].Id)
	assert.Equal(t, database.RoleUser, messages[0].Role)
	assert.JSONEq(t, `"hi"`, string(messages[0].Content))

	var out bytes.Buffer
	require.NoError(t, run.Stream(context.Background(), chat.NewDataStreamWriter(&out)))
	assert.Equal(t, chat.PhaseClosed, run.Phase())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, fmt.Sprintf(`2:[{"type":"user-message-id","content":"%s"}]`, run.UserMessageId()), lines[0])
	assert.Contains(t, lines, `0:"Hello"`)
	assert.Contains(t, lines, `0:" there"`)
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], `8:[{"messageIdFromServer":`))

	messages, err = database.GetMessagesByChatId(context.Background(), f.db, chatId)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, database.RoleAssistant, messages[1].Role)
	assert.Contains(t, lines[len(lines)-1], messages[1].Id.String())

	// A run can only stream once.
	assert.Error(t, run.Stream(context.Background(), chat.NewDataStreamWriter(&out)))
}

func TestExistingChatOfAnotherUser(t *testing.T) {
	f := newFixture(t)
	other := database.User{Id: uuid.New(), Email: "other@example.com"}
	require.NoError(t, f.db.Create(&other).Error)

	chatId := uuid.New()
	_, err := database.SaveChat(context.Background(), f.db, chatId, other.Id, "Theirs")
	require.NoError(t, err)

	_, err = f.orch.Prepare(context.Background(), f.session, userRequest(chatId, "hi"))
	assert.ErrorIs(t, err, chat.ErrUnauthorized)
	assert.Zero(t, count(t, f.db, &database.Message{}))
}

func TestSystemPromptIncludesInsurance(t *testing.T) {
	f := newFixture(t, aitest.Text("ok"))
	ctx := context.Background()

	plan, err := database.EnsureInsurancePlan(ctx, f.db, "Acme Health", "Gold", "PPO")
	require.NoError(t, err)
	require.NoError(t, database.ReplaceUserInsurance(ctx, f.db, database.UserInsurance{
		UserId: f.session.User.Id,
		PlanId: plan.Id,
		Details: datatypes.NewJSONType(database.InsuranceDetails{
			Transcripts: []database.Transcript{{Date: "2024-03-01", Notes: "Annual physical"}},
		}),
	}))

	_, _, err = f.run(t, userRequest(uuid.New(), "hi"))
	require.NoError(t, err)

	requests := f.provider.Requests()
	require.Len(t, requests, 1)
	system := requests[0].System
	assert.True(t, strings.HasPrefix(system, ai.SystemPrompt))
	assert.Contains(t, system, "# Insurance data for member@example.com")
	assert.Contains(t, system, `"plan":"Gold","plan_type":"PPO","company":"Acme Health"`)
	assert.Contains(t, system, "Annual physical")
	assert.Contains(t, system, "## Coverage")
	assert.Contains(t, system, "## Clause")
	assert.Len(t, requests[0].Tools, 3)
}

func TestCreateCodeDocument(t *testing.T) {
	f := newFixture(t,
		aitest.ToolCall("call-1", chat.ToolCreateDocument, map[string]string{"title": "Fibonacci", "kind": "code"}),
		aitest.Text(`{"code": "print(`, `1)"}`),
		aitest.Text("Here is your snippet."),
	)

	_, out, err := f.run(t, userRequest(uuid.New(), "write fibonacci in python"))
	require.NoError(t, err)
	assert.Zero(t, f.provider.Remaining())

	events := dataEvents(t, out)
	deltas := eventContents(t, events, "code-delta")
	assert.Equal(t, []string{"print(", "print(1)"}, deltas)
	assert.Equal(t, []string{"Fibonacci"}, eventContents(t, events, "title"))
	assert.Equal(t, []string{"code"}, eventContents(t, events, "kind"))
	assert.Equal(t, []string{""}, eventContents(t, events, "clear"))
	assert.Equal(t, []string{""}, eventContents(t, events, "finish"))

	ids := eventContents(t, events, "id")
	require.Len(t, ids, 1)
	docId := uuid.MustParse(ids[0])

	doc, err := database.GetDocumentById(context.Background(), f.db, docId)
	require.NoError(t, err)
	assert.Equal(t, deltas[len(deltas)-1], doc.Content)
	assert.Equal(t, database.DocumentCode, doc.Kind)
	assert.Equal(t, f.session.User.Id, doc.UserId)

	assert.Contains(t, out, "A document was created and is now visible to the user.")

	// user, assistant tool call, tool result, final answer
	assert.EqualValues(t, 4, count(t, f.db, &database.Message{}))
}

func TestCreateTextDocument(t *testing.T) {
	f := newFixture(t,
		aitest.ToolCall("call-1", chat.ToolCreateDocument, map[string]string{"title": "Appeal letter", "kind": "text"}),
		aitest.Text("# Appeal", "\n\nDear insurer"),
		aitest.Text("Done."),
	)

	_, out, err := f.run(t, userRequest(uuid.New(), "draft an appeal"))
	require.NoError(t, err)

	events := dataEvents(t, out)
	assert.Equal(t, []string{"# Appeal", "\n\nDear insurer"}, eventContents(t, events, "text-delta"))

	ids := eventContents(t, events, "id")
	require.Len(t, ids, 1)
	doc, err := database.GetDocumentById(context.Background(), f.db, uuid.MustParse(ids[0]))
	require.NoError(t, err)
	assert.Equal(t, "# Appeal\n\nDear insurer", doc.Content)

	nested := f.provider.Requests()[1]
	assert.Equal(t, ai.CreateTextDocumentPrompt, nested.System)
	assert.Empty(t, nested.Tools)
}

func TestUpdateDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	docId := uuid.New()
	_, err := database.SaveDocument(ctx, f.db, docId, "Letter", database.DocumentText, "old content", f.session.User.Id)
	require.NoError(t, err)

	f.provider = aitest.NewProvider(
		aitest.ToolCall("call-1", chat.ToolUpdateDocument, map[string]string{"id": docId.String(), "description": "make it formal"}),
		aitest.Text("new", " content"),
		aitest.Text("Updated."),
	)
	f.orch = chat.NewOrchestrator(f.db, ai.DefaultRegistry(), f.provider, f.titler)

	_, out, err := f.run(t, userRequest(uuid.New(), "make it formal"))
	require.NoError(t, err)

	events := dataEvents(t, out)
	assert.Equal(t, []string{"Letter"}, eventContents(t, events, "clear"))
	assert.Equal(t, []string{"new", " content"}, eventContents(t, events, "text-delta"))

	doc, err := database.GetDocumentById(ctx, f.db, docId)
	require.NoError(t, err)
	assert.Equal(t, "new content", doc.Content)
	assert.Equal(t, database.DocumentText, doc.Kind)

	versions, err := database.GetDocumentsById(ctx, f.db, docId)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	nested := f.provider.Requests()[1]
	assert.Equal(t, "old content", nested.Prediction)
	assert.Contains(t, nested.System, "old content")
	assert.Contains(t, out, "The document has been updated successfully.")
}

func TestUpdateCodeDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	docId := uuid.New()
	_, err := database.SaveDocument(ctx, f.db, docId, "Fibonacci", database.DocumentCode, "print(1)", f.session.User.Id)
	require.NoError(t, err)

	f.provider = aitest.NewProvider(
		aitest.ToolCall("call-1", chat.ToolUpdateDocument, map[string]string{"id": docId.String(), "description": "print two numbers"}),
		aitest.Text(`{"code": "print(1)\n`, `print(2)"}`),
		aitest.Text("Updated."),
	)
	f.orch = chat.NewOrchestrator(f.db, ai.DefaultRegistry(), f.provider, f.titler)

	_, out, err := f.run(t, userRequest(uuid.New(), "print two numbers"))
	require.NoError(t, err)

	events := dataEvents(t, out)
	assert.Equal(t, []string{"Fibonacci"}, eventContents(t, events, "clear"))
	assert.Equal(t, []string{"print(1)\n", "print(1)\nprint(2)"}, eventContents(t, events, "code-delta"))
	assert.Empty(t, eventContents(t, events, "text-delta"))

	doc, err := database.GetDocumentById(ctx, f.db, docId)
	require.NoError(t, err)
	assert.Equal(t, "print(1)\nprint(2)", doc.Content)
	assert.Equal(t, database.DocumentCode, doc.Kind)

	nested := f.provider.Requests()[1]
	assert.Empty(t, nested.Prediction)
	assert.Contains(t, nested.System, "print(1)")
}

func TestUpdateMissingDocument(t *testing.T) {
	f := newFixture(t,
		aitest.ToolCall("call-1", chat.ToolUpdateDocument, map[string]string{"id": uuid.NewString(), "description": "shorter"}),
		aitest.Text("I could not find that document."),
	)

	_, out, err := f.run(t, userRequest(uuid.New(), "shorten it"))
	require.NoError(t, err)

	assert.Contains(t, out, `a:{"result":{"error":"Document not found"},"toolCallId":"call-1"}`)
	assert.Zero(t, count(t, f.db, &database.Document{}))
	assert.Zero(t, f.provider.Remaining())
	assert.Len(t, f.provider.Requests(), 2)
}

func TestRequestSuggestionsOnEmptyDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	docId := uuid.New()
	_, err := database.SaveDocument(ctx, f.db, docId, "Empty", database.DocumentText, "", f.session.User.Id)
	require.NoError(t, err)

	f.provider = aitest.NewProvider(
		aitest.ToolCall("call-1", chat.ToolRequestSuggestions, map[string]string{"documentId": docId.String()}),
		aitest.Text("That document is empty."),
	)
	f.orch = chat.NewOrchestrator(f.db, ai.DefaultRegistry(), f.provider, f.titler)

	_, out, err := f.run(t, userRequest(uuid.New(), "suggest edits"))
	require.NoError(t, err)

	assert.Contains(t, out, `"error":"Document not found"`)
	assert.Zero(t, count(t, f.db, &database.Suggestion{}))
}

func TestRequestSuggestionsIsCapped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	docId := uuid.New()
	_, err := database.SaveDocument(ctx, f.db, docId, "Essay", database.DocumentText, "This are a essay.", f.session.User.Id)
	require.NoError(t, err)

	var elements []string
	for i := range 7 {
		elements = append(elements, fmt.Sprintf(`{"originalSentence": "s%d", "suggestedSentence": "t%d", "description": "d%d"}`, i, i, i))
	}
	array := `{"elements": [` + strings.Join(elements, ", ") + `]}`

	f.provider = aitest.NewProvider(
		aitest.ToolCall("call-1", chat.ToolRequestSuggestions, map[string]string{"documentId": docId.String()}),
		aitest.Text(array[:len(array)/2], array[len(array)/2:]),
		aitest.Text("I added suggestions."),
	)
	f.orch = chat.NewOrchestrator(f.db, ai.DefaultRegistry(), f.provider, f.titler)

	_, out, err := f.run(t, userRequest(uuid.New(), "suggest edits"))
	require.NoError(t, err)

	var emitted []map[string]any
	for _, e := range dataEvents(t, out) {
		if e.Type == "suggestion" {
			var s map[string]any
			require.NoError(t, json.Unmarshal(e.Content, &s))
			emitted = append(emitted, s)
		}
	}
	require.Len(t, emitted, chat.MaxSuggestions)
	assert.Equal(t, "s0", emitted[0]["originalText"])
	assert.Equal(t, "t0", emitted[0]["suggestedText"])
	assert.Equal(t, false, emitted[0]["isResolved"])
	assert.Equal(t, docId.String(), emitted[0]["documentId"])

	saved, err := database.GetSuggestionsByDocumentId(ctx, f.db, docId)
	require.NoError(t, err)
	assert.Len(t, saved, chat.MaxSuggestions)
	for _, s := range saved {
		assert.Equal(t, f.session.User.Id, s.UserId)
		assert.False(t, s.IsResolved)
	}

	assert.Contains(t, out, "Suggestions have been added to the document")
}

func TestUpstreamErrorAbortsStream(t *testing.T) {
	f := newFixture(t, aitest.Response{
		Events: []ai.Event{{Type: ai.EventTextDelta, Text: "partial"}},
		Err:    errors.New("upstream unavailable"),
	})

	run, out, err := f.run(t, userRequest(uuid.New(), "hi"))
	assert.Error(t, err)
	assert.Equal(t, chat.PhaseClosed, run.Phase())

	assert.Contains(t, out, `0:"partial"`)
	assert.True(t, strings.HasSuffix(out, "3:\"An error occurred.\"\n"))
	assert.NotContains(t, out, "messageIdFromServer")

	// Only the user message was saved.
	assert.EqualValues(t, 1, count(t, f.db, &database.Message{}))
}

func TestToolFailureAbortsStream(t *testing.T) {
	f := newFixture(t,
		aitest.ToolCall("call-1", chat.ToolCreateDocument, map[string]string{"title": "Notes", "kind": "text"}),
		aitest.Response{Err: errors.New("nested generation failed")},
	)

	_, out, err := f.run(t, userRequest(uuid.New(), "take notes"))
	assert.Error(t, err)
	assert.Contains(t, out, `3:"An error occurred."`)
	assert.Zero(t, count(t, f.db, &database.Document{}))
}

func TestUnterminatedToolCallIsNotPersisted(t *testing.T) {
	f := newFixture(t, aitest.Response{Events: []ai.Event{
		{Type: ai.EventTextDelta, Text: "Let me write that."},
		{Type: ai.EventToolCallStart, ToolCallId: "call-1", ToolName: chat.ToolCreateDocument},
		{Type: ai.EventToolCallDelta, ToolCallId: "call-1", ToolName: chat.ToolCreateDocument, ArgsDelta: `{"title": "Ap`},
		aitest.Finish(ai.FinishLength),
	}})

	chatId := uuid.New()
	_, _, err := f.run(t, userRequest(chatId, "write an appeal"))
	require.NoError(t, err)

	messages, err := database.GetMessagesByChatId(context.Background(), f.db, chatId)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	var parts []ai.Part
	require.NoError(t, json.Unmarshal(messages[1].Content, &parts))
	assert.Equal(t, []ai.Part{{Type: ai.PartText, Text: "Let me write that."}}, parts)
}

func TestPersistFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, aitest.Text("answer"))

	run, err := f.orch.Prepare(context.Background(), f.session, userRequest(uuid.New(), "hi"))
	require.NoError(t, err)

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("fail_messages", func(tx *gorm.DB) {
		if tx.Statement.Table == "messages" {
			tx.AddError(errors.New("disk full"))
		}
	}))

	var out bytes.Buffer
	require.NoError(t, run.Stream(context.Background(), chat.NewDataStreamWriter(&out)))
	assert.Contains(t, out.String(), `0:"answer"`)
	assert.EqualValues(t, 1, count(t, f.db, &database.Message{}))
}

func TestSanitizeResponseMessages(t *testing.T) {
	args := json.RawMessage(`{"title":"x","kind":"text"}`)
	messages := []ai.Message{
		{Role: ai.RoleAssistant, Content: []ai.Part{
			{Type: ai.PartText, Text: "Creating"},
			{Type: ai.PartToolCall, ToolCallId: "done", ToolName: "createDocument", Args: args},
		}},
		{Role: ai.RoleTool, Content: []ai.Part{
			{Type: ai.PartToolResult, ToolCallId: "done", ToolName: "createDocument", Result: json.RawMessage(`{}`)},
		}},
		{Role: ai.RoleAssistant, Content: []ai.Part{
			{Type: ai.PartText, Text: ""},
			{Type: ai.PartToolCall, ToolCallId: "cut", ToolName: "createDocument"},
		}},
		{Role: ai.RoleAssistant, Content: []ai.Part{
			{Type: ai.PartText, Text: "Almost"},
			{Type: ai.PartToolCall, ToolCallId: "cut-2", ToolName: "updateDocument"},
		}},
	}

	sanitized := chat.SanitizeResponseMessages(messages)
	require.Len(t, sanitized, 3)
	assert.Equal(t, messages[0], sanitized[0])
	assert.Equal(t, messages[1], sanitized[1])
	assert.Equal(t, ai.Message{Role: ai.RoleAssistant, Content: []ai.Part{{Type: ai.PartText, Text: "Almost"}}}, sanitized[2])

	assert.Empty(t, chat.SanitizeResponseMessages(nil))
}
