package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type User struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Email     string         `gorm:"size:64;not null;uniqueIndex"`
	Password  sql.NullString `gorm:"size:64"`
	CreatedAt time.Time
}

const (
	VisibilityPublic  string = "public"
	VisibilityPrivate string = "private"
)

type Chat struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt  time.Time `gorm:"not null"`
	Title      string    `gorm:"not null"`
	UserId     uuid.UUID `gorm:"type:uuid;not null;index"`
	User       *User     `gorm:"foreignKey:UserId"`
	Visibility string    `gorm:"size:10;not null;default:private"`

	Messages []Message `gorm:"foreignKey:ChatId;constraint:OnDelete:CASCADE"`
}

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
	RoleTool      string = "tool"
)

// Content holds either a JSON string (plain text turns) or a JSON array of
// content parts.
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

const (
	DocumentText string = "text"
	DocumentCode string = "code"
)

// Documents are versioned: every save inserts a new (id, created_at) row and
// reads return the most recent one.
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

type MedicalBill struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type Transcript struct {
	Date  string `json:"date"`
	Notes string `json:"notes"`
}

type InsuranceDetails struct {
	MedicalBills []MedicalBill `json:"medicalBills"`
	Transcripts  []Transcript  `json:"transcripts"`
}

type UserInsurance struct {
	UserId    uuid.UUID                            `gorm:"type:uuid;primaryKey"`
	User      *User                                `gorm:"foreignKey:UserId"`
	PlanId    uuid.UUID                            `gorm:"type:uuid;primaryKey"`
	Plan      *InsurancePlan                       `gorm:"foreignKey:PlanId"`
	MemberId  sql.NullString                       `gorm:"size:255"`
	GroupId   sql.NullString                       `gorm:"size:255"`
	Details   datatypes.JSONType[InsuranceDetails] `gorm:"column:details_json;not null"`
	CreatedAt time.Time
}
