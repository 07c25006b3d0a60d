package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Snapshot of the schema as it was first deployed. These types must not be
// changed, later migrations modify the tables instead.

type User struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Email     string         `gorm:"size:64;not null;uniqueIndex"`
	Password  sql.NullString `gorm:"size:64"`
	CreatedAt time.Time
}

type Chat struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt  time.Time `gorm:"not null"`
	Title      string    `gorm:"not null"`
	UserId     uuid.UUID `gorm:"type:uuid;not null;index"`
	User       *User     `gorm:"foreignKey:UserId"`
	Visibility string    `gorm:"size:10;not null;default:private"`

	Messages []Message `gorm:"foreignKey:ChatId;constraint:OnDelete:CASCADE"`
}

type Message struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ChatId    uuid.UUID      `gorm:"type:uuid;not null;index"`
	Role      string         `gorm:"size:20;not null"`
	Content   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

type Vote struct {
	ChatId    uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Message   *Message  `gorm:"foreignKey:MessageId;constraint:OnDelete:CASCADE"`
	IsUpvoted bool      `gorm:"not null"`
}

type Document struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"primaryKey"`
	Title     string    `gorm:"not null"`
	Content   string
	Kind      string    `gorm:"size:10;not null;default:text"`
	UserId    uuid.UUID `gorm:"type:uuid;not null;index"`
	User      *User     `gorm:"foreignKey:UserId"`
}

type Suggestion struct {
	Id                uuid.UUID `gorm:"type:uuid;primaryKey"`
	DocumentId        uuid.UUID `gorm:"type:uuid;not null;index"`
	DocumentCreatedAt time.Time `gorm:"not null"`
	Document          *Document `gorm:"foreignKey:DocumentId,DocumentCreatedAt;references:Id,CreatedAt;constraint:OnDelete:CASCADE"`
	OriginalText      string    `gorm:"not null"`
	SuggestedText     string    `gorm:"not null"`
	Description       string
	IsResolved        bool      `gorm:"not null;default:false"`
	UserId            uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt         time.Time `gorm:"not null"`
}

type InsuranceCompany struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:255;not null;uniqueIndex"`
	CreatedAt time.Time

	Plans []InsurancePlan `gorm:"foreignKey:CompanyId;constraint:OnDelete:CASCADE"`
}

type InsurancePlan struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompanyId uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string    `gorm:"size:255;not null"`
	Type      string    `gorm:"size:64;not null"`
	CreatedAt time.Time
}

type UserInsurance struct {
	UserId    uuid.UUID      `gorm:"type:uuid;primaryKey"`
	User      *User          `gorm:"foreignKey:UserId"`
	PlanId    uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Plan      *InsurancePlan `gorm:"foreignKey:PlanId"`
	MemberId  sql.NullString `gorm:"size:255"`
	GroupId   sql.NullString `gorm:"size:255"`
	CreatedAt time.Time
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&User{}, &Chat{}, &Message{}, &Vote{}, &Document{}, &Suggestion{},
		&InsuranceCompany{}, &InsurancePlan{}, &UserInsurance{},
	); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
