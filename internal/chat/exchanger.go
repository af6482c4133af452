// Package chat coordinates a single conversational turn: persist the user's
// message, call the inference server, persist the assistant's reply.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"portal-backend/internal/database"
	"portal-backend/internal/inference"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrAttachmentNotFound   = errors.New("attachment not found")
)

const systemRules = "You are the AI mentor of a university portal. You help students with " +
	"their subjects, schedules, lecturers and syllabi. Answer concisely and only from " +
	"the information you are given; say so when you do not know something."

// ModelClient is the inference surface the exchanger needs. *inference.Client
// satisfies it; tests substitute stubs.
type ModelClient interface {
	Send(ctx context.Context, prompt, previousResponseID string, sink inference.Sink) (*inference.Response, error)
}

type Exchanger struct {
	db            *gorm.DB
	llm           ModelClient
	continuations *ContinuationStore
}

func NewExchanger(db *gorm.DB, llm ModelClient, continuations *ContinuationStore) *Exchanger {
	return &Exchanger{
		db:            db,
		llm:           llm,
		continuations: continuations,
	}
}

// Exchange is one completed turn: both messages as persisted.
type Exchange struct {
	UserMessage      database.Message
	AssistantMessage database.Message
}

// SendMessage runs one turn of conversationId on behalf of userId. Attachment
// ids must all resolve to attachments owned by userId or the whole turn fails
// before anything is persisted. A non-nil sink streams the model's output
// fragments as they arrive; the assistant message is only persisted once the
// complete response is in hand, so an abandoned stream leaves no reply row.
// Exactly two messages are persisted per successful call; a model failure
// after the user message is persisted surfaces the error with no retry.
func (e *Exchanger) SendMessage(ctx context.Context, conversationId uuid.UUID, userId int64, text string, attachmentIds []uuid.UUID, sink inference.Sink) (*Exchange, error) {
	conversation, err := database.GetConversation(e.db, conversationId, userId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	} else if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	attachments, err := database.GetOwnedAttachments(e.db, attachmentIds, userId)
	if err != nil {
		return nil, fmt.Errorf("resolving attachments: %w", err)
	}
	if len(attachments) != len(attachmentIds) {
		return nil, ErrAttachmentNotFound
	}
	attachments = inRequestOrder(attachments, attachmentIds)

	userMessage := database.Message{
		Id:             uuid.New(),
		ConversationId: conversation.Id,
		Content:        text,
		FromUser:       true,
		CreationTime:   time.Now().UTC(),
	}
	if err := database.SaveMessage(e.db, &userMessage); err != nil {
		return nil, fmt.Errorf("saving user message: %w", err)
	}
	if err := database.LinkAttachments(e.db, userMessage.Id, attachmentIds); err != nil {
		return nil, fmt.Errorf("linking attachments: %w", err)
	}

	previousResponseId, err := e.continuations.Get(conversation.Id)
	if err != nil {
		return nil, err
	}

	completion, err := e.llm.Send(ctx, buildPrompt(text, attachments), previousResponseId, sink)
	if err != nil {
		// Surfaced undecorated; the user message stays, no assistant row is
		// written and no retry happens at this layer.
		return nil, err
	}

	if err := e.continuations.Set(conversation.Id, completion.ID); err != nil {
		return nil, err
	}

	assistantMessage := database.Message{
		Id:             uuid.New(),
		ConversationId: conversation.Id,
		Content:        completion.OutputText(),
		FromUser:       false,
		CreationTime:   time.Now().UTC(),
		Metadata:       usageMetadata(completion),
	}
	if err := database.SaveMessage(e.db, &assistantMessage); err != nil {
		return nil, fmt.Errorf("saving assistant message: %w", err)
	}

	userMessage.Attachments = attachments
	return &Exchange{UserMessage: userMessage, AssistantMessage: assistantMessage}, nil
}

// buildPrompt concatenates, in order: system rules, the user's text, then one
// name/extracted-text pair per attachment.
func buildPrompt(text string, attachments []database.Attachment) string {
	var b strings.Builder
	b.WriteString(systemRules)
	b.WriteString("\n\n")
	b.WriteString(text)
	for _, attachment := range attachments {
		fmt.Fprintf(&b, "\n\nAttached file %q:\n%s", attachment.Name, attachment.Content)
	}
	return b.String()
}

// InvalidateContinuation drops the cached continuation token for a deleted
// conversation.
func (e *Exchanger) InvalidateContinuation(conversationId uuid.UUID) {
	e.continuations.Invalidate(conversationId)
}

// inRequestOrder rearranges the fetched attachments to match the order the
// caller referenced them in, which is the order they appear in the prompt.
func inRequestOrder(attachments []database.Attachment, ids []uuid.UUID) []database.Attachment {
	byId := make(map[uuid.UUID]database.Attachment, len(attachments))
	for _, attachment := range attachments {
		byId[attachment.Id] = attachment
	}

	ordered := make([]database.Attachment, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byId[id])
	}
	return ordered
}

func usageMetadata(completion *inference.Response) datatypes.JSON {
	metadata, err := json.Marshal(completion.Usage)
	if err != nil {
		return nil
	}
	return datatypes.JSON(metadata)
}
