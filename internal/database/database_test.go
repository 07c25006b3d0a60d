package database_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"hatch-backend/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func TestChatLifecycle(t *testing.T) {
	ctx := context.Background()
	user := &database.User{Id: uuid.New(), Email: "a@example.com"}
	db := createDB(t, user)

	chatId := uuid.New()
	_, err := database.GetChatById(ctx, db, chatId)
	assert.ErrorIs(t, err, database.ErrNotFound)

	chat, err := database.SaveChat(ctx, db, chatId, user.Id, "Dental coverage")
	require.NoError(t, err)
	assert.Equal(t, database.VisibilityPrivate, chat.Visibility)

	msgId := uuid.New()
	require.NoError(t, database.SaveMessages(ctx, db, []database.Message{
		{Id: msgId, ChatId: chatId, Role: database.RoleUser, Content: datatypes.JSON(`"hi"`), CreatedAt: time.Now().UTC()},
		{Id: uuid.New(), ChatId: chatId, Role: database.RoleAssistant, Content: datatypes.JSON(`[{"type":"text","text":"hello"}]`), CreatedAt: time.Now().UTC().Add(time.Millisecond)},
	}))
	require.NoError(t, database.VoteMessage(ctx, db, chatId, msgId, true))
	require.NoError(t, database.VoteMessage(ctx, db, chatId, msgId, false))

	votes, err := database.GetVotesByChatId(ctx, db, chatId)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.False(t, votes[0].IsUpvoted)

	messages, err := database.GetMessagesByChatId(ctx, db, chatId)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, msgId, messages[0].Id)

	chats, err := database.GetChatsByUserId(ctx, db, user.Id)
	require.NoError(t, err)
	assert.Len(t, chats, 1)

	require.NoError(t, database.DeleteChatById(ctx, db, chatId))

	_, err = database.GetChatById(ctx, db, chatId)
	assert.ErrorIs(t, err, database.ErrNotFound)
	messages, err = database.GetMessagesByChatId(ctx, db, chatId)
	require.NoError(t, err)
	assert.Empty(t, messages)

	assert.ErrorIs(t, database.DeleteChatById(ctx, db, chatId), database.ErrNotFound)
}

func TestDocumentVersions(t *testing.T) {
	ctx := context.Background()
	user := &database.User{Id: uuid.New(), Email: "b@example.com"}
	db := createDB(t, user)

	docId := uuid.New()
	_, err := database.GetDocumentById(ctx, db, docId)
	assert.ErrorIs(t, err, database.ErrNotFound)

	first, err := database.SaveDocument(ctx, db, docId, "Notes", database.DocumentText, "v1", user.Id)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = database.SaveDocument(ctx, db, docId, "Notes", database.DocumentText, "v2", user.Id)
	require.NoError(t, err)

	latest, err := database.GetDocumentById(ctx, db, docId)
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.Content)

	versions, err := database.GetDocumentsById(ctx, db, docId)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v1", versions[0].Content)

	require.NoError(t, database.SaveSuggestions(ctx, db, []database.Suggestion{{
		Id:                uuid.New(),
		DocumentId:        docId,
		DocumentCreatedAt: latest.CreatedAt,
		OriginalText:      "v2",
		SuggestedText:     "version two",
		UserId:            user.Id,
		CreatedAt:         time.Now().UTC(),
	}}))

	suggestions, err := database.GetSuggestionsByDocumentId(ctx, db, docId)
	require.NoError(t, err)
	assert.Len(t, suggestions, 1)

	require.NoError(t, database.DeleteDocumentsAfter(ctx, db, docId, first.CreatedAt))

	versions, err = database.GetDocumentsById(ctx, db, docId)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	suggestions, err = database.GetSuggestionsByDocumentId(ctx, db, docId)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestReplaceUserInsurance(t *testing.T) {
	ctx := context.Background()
	user := &database.User{Id: uuid.New(), Email: "c@example.com"}
	db := createDB(t, user)

	ppo, err := database.EnsureInsurancePlan(ctx, db, "Acme Health", "Gold", "PPO")
	require.NoError(t, err)
	again, err := database.EnsureInsurancePlan(ctx, db, "Acme Health", "Gold", "PPO")
	require.NoError(t, err)
	assert.Equal(t, ppo.Id, again.Id)

	hmo, err := database.EnsureInsurancePlan(ctx, db, "Acme Health", "Silver", "HMO")
	require.NoError(t, err)

	companies, err := database.ListInsuranceCompanies(ctx, db)
	require.NoError(t, err)
	require.Len(t, companies, 1)

	plans, err := database.ListInsurancePlans(ctx, db, companies[0].Id)
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	require.NoError(t, database.ReplaceUserInsurance(ctx, db, database.UserInsurance{
		UserId:  user.Id,
		PlanId:  ppo.Id,
		Details: datatypes.NewJSONType(database.InsuranceDetails{}),
	}))
	require.NoError(t, database.ReplaceUserInsurance(ctx, db, database.UserInsurance{
		UserId: user.Id,
		PlanId: hmo.Id,
		Details: datatypes.NewJSONType(database.InsuranceDetails{
			MedicalBills: []database.MedicalBill{{Date: "2024-01-02", Amount: "120.50", Description: "Checkup"}},
		}),
	}))

	records, err := database.GetUserInsurance(ctx, db, user.Id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Silver", records[0].PlanName)
	assert.Equal(t, "HMO", records[0].PlanType)
	assert.Equal(t, "Acme Health", records[0].CompanyName)
	assert.Equal(t, "Checkup", records[0].Details.Data().MedicalBills[0].Description)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	db := createDB(t)

	user, err := database.CreateUser(ctx, db, " Someone@Example.com ", "hash")
	require.NoError(t, err)

	found, err := database.GetUserByEmail(ctx, db, "someone@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.Id, found.Id)

	_, err = database.GetUserByEmail(ctx, db, "nobody@example.com")
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = database.CreateUser(ctx, db, "someone@example.com", "hash")
	assert.Error(t, err)
}
