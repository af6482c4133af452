// Package api holds the request and response types shared between the
// backend and its clients.
package api

import (
	"github.com/google/uuid"
)

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type CreateConversationResponse struct {
	ConversationId string `json:"conversation_id"`
}

type ConversationMetadata struct {
	Id           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	CreationTime string    `json:"creation_time"`
}

type GetConversationsResponse struct {
	Conversations []ConversationMetadata `json:"conversations"`
}

type RenameConversationRequest struct {
	Title string `json:"title"`
}

type SendMessageRequest struct {
	Message       string      `json:"message"`
	AttachmentIds []uuid.UUID `json:"attachment_ids,omitempty"`

	// Stream requests incremental delivery: the response body becomes a
	// sequence of JSON frames, one per model output fragment, followed by a
	// final frame carrying the completed exchange.
	Stream bool `json:"stream"`
}

type MessageView struct {
	Id            uuid.UUID   `json:"id"`
	Content       string      `json:"content"`
	FromUser      bool        `json:"from_user"`
	Timestamp     string      `json:"timestamp"`
	AttachmentIds []uuid.UUID `json:"attachment_ids,omitempty"`
	Metadata      any         `json:"metadata,omitempty"`
}

type SendMessageResponse struct {
	UserMessage      MessageView `json:"user_message"`
	AssistantMessage MessageView `json:"assistant_message"`
}

// StreamDelta is the payload of one intermediate frame of a streamed
// send-message response.
type StreamDelta struct {
	Delta string `json:"delta"`
}

type GetMessagesResponse struct {
	Messages []MessageView `json:"messages"`
}

type UploadAttachmentResponse struct {
	AttachmentId string `json:"attachment_id"`
	Name         string `json:"name"`
	TextLength   int    `json:"text_length"`
}
