package database

import (
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SQLite only supports one writer at a time, so we need a lock
// whenever we write to the database
var dbMutex sync.Mutex

func GetConversations(db *gorm.DB, userId int64) ([]Conversation, error) {
	var conversations []Conversation
	err := db.Where("user_id = ?", userId).Order("creation_time DESC").Find(&conversations).Error
	return conversations, err
}

func CreateConversation(db *gorm.DB, conversation *Conversation) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Create(conversation).Error
}

// GetConversation scopes by owner: a conversation belonging to another user
// is indistinguishable from a missing one.
func GetConversation(db *gorm.DB, conversationId uuid.UUID, userId int64) (Conversation, error) {
	var conversation Conversation
	err := db.First(&conversation, "id = ? AND user_id = ?", conversationId, userId).Error
	return conversation, err
}

func RenameConversation(db *gorm.DB, conversationId uuid.UUID, userId int64, title string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Model(&Conversation{}).
		Where("id = ? AND user_id = ?", conversationId, userId).
		Update("title", title).Error
}

func DeleteConversation(db *gorm.DB, conversationId uuid.UUID, userId int64) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	if err := db.Delete(&Message{}, "conversation_id = ?", conversationId).Error; err != nil {
		return err
	}
	return db.Delete(&Conversation{}, "id = ? AND user_id = ?", conversationId, userId).Error
}

func GetConversationResponseId(db *gorm.DB, conversationId uuid.UUID) (sql.NullString, error) {
	var conversation Conversation
	err := db.Select("last_response_id").First(&conversation, "id = ?", conversationId).Error
	return conversation.LastResponseId, err
}

func UpdateConversationResponseId(db *gorm.DB, conversationId uuid.UUID, responseId string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Model(&Conversation{}).
		Where("id = ?", conversationId).
		Update("last_response_id", responseId).Error
}

func GetMessages(db *gorm.DB, conversationId uuid.UUID) ([]Message, error) {
	var messages []Message
	err := db.Where("conversation_id = ?", conversationId).
		Order("creation_time ASC").
		Preload("Attachments").
		Find(&messages).Error
	return messages, err
}

func GetMessagesPage(db *gorm.DB, conversationId uuid.UUID, limit, offset int) ([]Message, error) {
	var messages []Message
	err := db.Where("conversation_id = ?", conversationId).
		Order("creation_time ASC").
		Limit(limit).
		Offset(offset).
		Preload("Attachments").
		Find(&messages).Error
	return messages, err
}

func SaveMessage(db *gorm.DB, message *Message) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Create(message).Error
}

func CreateAttachment(db *gorm.DB, attachment *Attachment) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Create(attachment).Error
}

// GetOwnedAttachments returns only attachments that both exist and belong to
// userId; callers compare the result count against the requested ids to
// reject turns referencing anything foreign.
func GetOwnedAttachments(db *gorm.DB, attachmentIds []uuid.UUID, userId int64) ([]Attachment, error) {
	if len(attachmentIds) == 0 {
		return nil, nil
	}
	var attachments []Attachment
	err := db.Where("id IN ? AND user_id = ?", attachmentIds, userId).Find(&attachments).Error
	return attachments, err
}

func LinkAttachments(db *gorm.DB, messageId uuid.UUID, attachmentIds []uuid.UUID) error {
	if len(attachmentIds) == 0 {
		return nil
	}
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Model(&Attachment{}).
		Where("id IN ?", attachmentIds).
		Update("message_id", messageId).Error
}
