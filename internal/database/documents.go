package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GetDocumentById returns the latest version of the document.
func GetDocumentById(ctx context.Context, txn *gorm.DB, id uuid.UUID) (Document, error) {
	var doc Document
	if err := txn.WithContext(ctx).
		Where("id = ?", id).
		Order("created_at DESC").
		First(&doc).Error; err != nil {
		return Document{}, notFound(err, "error getting document %v", id)
	}
	return doc, nil
}

// GetDocumentsById returns every version of the document, oldest first.
func GetDocumentsById(ctx context.Context, txn *gorm.DB, id uuid.UUID) ([]Document, error) {
	var docs []Document
	if err := txn.WithContext(ctx).
		Where("id = ?", id).
		Order("created_at ASC").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("error listing document versions: %w", err)
	}
	return docs, nil
}

// SaveDocument stores a new version of the document under id.
func SaveDocument(ctx context.Context, txn *gorm.DB, id uuid.UUID, title, kind, content string, userId uuid.UUID) (Document, error) {
	doc := Document{
		Id:        id,
		CreatedAt: now(),
		Title:     title,
		Content:   content,
		Kind:      kind,
		UserId:    userId,
	}
	if err := txn.WithContext(ctx).Create(&doc).Error; err != nil {
		return Document{}, fmt.Errorf("error saving document: %w", err)
	}
	return doc, nil
}

// DeleteDocumentsAfter drops every version of the document newer than the
// given timestamp, along with their suggestions.
func DeleteDocumentsAfter(ctx context.Context, db *gorm.DB, id uuid.UUID, after time.Time) error {
	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.
			Where("document_id = ? AND document_created_at > ?", id, after).
			Delete(&Suggestion{}).Error; err != nil {
			return fmt.Errorf("error deleting suggestions: %w", err)
		}
		if err := txn.
			Where("id = ? AND created_at > ?", id, after).
			Delete(&Document{}).Error; err != nil {
			return fmt.Errorf("error deleting document versions: %w", err)
		}
		return nil
	})
}

func SaveSuggestions(ctx context.Context, txn *gorm.DB, suggestions []Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	if err := txn.WithContext(ctx).Create(&suggestions).Error; err != nil {
		return fmt.Errorf("error saving suggestions: %w", err)
	}
	return nil
}

func GetSuggestionsByDocumentId(ctx context.Context, txn *gorm.DB, documentId uuid.UUID) ([]Suggestion, error) {
	var suggestions []Suggestion
	if err := txn.WithContext(ctx).
		Where("document_id = ?", documentId).
		Order("created_at ASC").
		Find(&suggestions).Error; err != nil {
		return nil, fmt.Errorf("error listing suggestions: %w", err)
	}
	return suggestions, nil
}
