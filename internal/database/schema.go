package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Conversation struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title  string `gorm:"not null"`
	UserId int64  `gorm:"index;not null"`

	// LastResponseId is the durable copy of the upstream continuation token.
	// The in-memory copy lives in chat.ContinuationStore; this column is the
	// authoritative one.
	LastResponseId sql.NullString

	CreationTime time.Time

	Messages []Message `gorm:"foreignKey:ConversationId;constraint:OnDelete:CASCADE"`
}

type Message struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ConversationId uuid.UUID `gorm:"type:uuid;index;not null"`

	Content  string
	FromUser bool

	CreationTime time.Time

	// Metadata carries usage stats for assistant messages, null for user ones.
	Metadata datatypes.JSON

	Attachments []Attachment `gorm:"foreignKey:MessageId"`
}

type Attachment struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name    string `gorm:"not null"`
	Content string // extracted text, not the raw upload

	UserId int64 `gorm:"index;not null"`

	// MessageId is null between upload and first use in a message.
	MessageId uuid.NullUUID `gorm:"type:uuid;index"`

	CreationTime time.Time
}
