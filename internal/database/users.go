package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func CreateUser(ctx context.Context, txn *gorm.DB, email, passwordHash string) (User, error) {
	user := User{
		Id:        uuid.New(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Password:  sql.NullString{String: passwordHash, Valid: passwordHash != ""},
		CreatedAt: now(),
	}
	if err := txn.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, fmt.Errorf("error creating user: %w", err)
	}
	return user, nil
}

func GetUserByEmail(ctx context.Context, txn *gorm.DB, email string) (User, error) {
	var user User
	if err := txn.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error; err != nil {
		return User{}, notFound(err, "error getting user %q", email)
	}
	return user, nil
}

func GetUserById(ctx context.Context, txn *gorm.DB, id uuid.UUID) (User, error) {
	var user User
	if err := txn.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return User{}, notFound(err, "error getting user %v", id)
	}
	return user, nil
}
