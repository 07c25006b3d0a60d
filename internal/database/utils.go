package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func GetChatById(ctx context.Context, txn *gorm.DB, id uuid.UUID) (Chat, error) {
	var chat Chat
	if err := txn.WithContext(ctx).First(&chat, "id = ?", id).Error; err != nil {
		return Chat{}, notFound(err, "error getting chat %v", id)
	}
	return chat, nil
}

func SaveChat(ctx context.Context, txn *gorm.DB, id, userId uuid.UUID, title string) (Chat, error) {
	chat := Chat{
		Id:         id,
		CreatedAt:  now(),
		Title:      title,
		UserId:     userId,
		Visibility: VisibilityPrivate,
	}

	if err := txn.WithContext(ctx).Create(&chat).Error; err != nil {
		slog.Error("error saving chat", "chat_id", id, "error", err)
		return Chat{}, fmt.Errorf("error saving chat: %w", err)
	}
	return chat, nil
}

func GetChatsByUserId(ctx context.Context, txn *gorm.DB, userId uuid.UUID) ([]Chat, error) {
	var chats []Chat
	if err := txn.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("error listing chats: %w", err)
	}
	return chats, nil
}

func UpdateChatVisibility(ctx context.Context, txn *gorm.DB, id uuid.UUID, visibility string) error {
	if err := txn.WithContext(ctx).Model(&Chat{Id: id}).Update("visibility", visibility).Error; err != nil {
		return fmt.Errorf("error updating chat visibility: %w", err)
	}
	return nil
}

// DeleteChatById removes the chat together with its votes and messages.
func DeleteChatById(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Where("chat_id = ?", id).Delete(&Vote{}).Error; err != nil {
			return fmt.Errorf("error deleting votes: %w", err)
		}
		if err := txn.Where("chat_id = ?", id).Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("error deleting messages: %w", err)
		}
		result := txn.Delete(&Chat{Id: id})
		if result.Error != nil {
			return fmt.Errorf("error deleting chat: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("error deleting chat %v: %w", id, ErrNotFound)
		}
		return nil
	})
}

func SaveMessages(ctx context.Context, txn *gorm.DB, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	if err := txn.WithContext(ctx).Create(&messages).Error; err != nil {
		return fmt.Errorf("error saving messages: %w", err)
	}
	return nil
}

func GetMessagesByChatId(ctx context.Context, txn *gorm.DB, chatId uuid.UUID) ([]Message, error) {
	var messages []Message
	if err := txn.WithContext(ctx).
		Where("chat_id = ?", chatId).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("error listing messages: %w", err)
	}
	return messages, nil
}

func VoteMessage(ctx context.Context, txn *gorm.DB, chatId, messageId uuid.UUID, upvote bool) error {
	vote := Vote{ChatId: chatId, MessageId: messageId, IsUpvoted: upvote}
	if err := txn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_upvoted"}),
	}).Create(&vote).Error; err != nil {
		return fmt.Errorf("error saving vote: %w", err)
	}
	return nil
}

func GetVotesByChatId(ctx context.Context, txn *gorm.DB, chatId uuid.UUID) ([]Vote, error) {
	var votes []Vote
	if err := txn.WithContext(ctx).Where("chat_id = ?", chatId).Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("error listing votes: %w", err)
	}
	return votes, nil
}
